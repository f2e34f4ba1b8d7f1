package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/swapi-etl/pkg/swapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesLoadedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapi_batches_loaded_total",
		Help: "Batches written to the store by outcome",
	}, []string{"outcome"})

	rowsLoadedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swapi_rows_loaded_total",
		Help: "Rows committed to the store",
	})

	batchLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swapi_batch_load_duration_seconds",
		Help:    "Duration of batch transactions",
		Buckets: prometheus.DefBuckets,
	})
)

// Loader writes batches, one transaction per batch.
type Loader struct {
	store *Store
	query string
}

// NewLoader creates a loader writing to s.
func NewLoader(s *Store) *Loader {
	return &Loader{store: s, query: s.insertSQL()}
}

// Load inserts every person of batch in a single transaction. On any
// failure the transaction is rolled back and a *PersistenceError is
// returned; either all rows of the batch become visible or none do.
// An empty batch is a no-op.
func (l *Loader) Load(ctx context.Context, batch swapi.Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	start := time.Now()
	err := l.load(ctx, batch)
	batchLoadDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		batchesLoadedTotal.WithLabelValues("error").Inc()
		l.store.logger.Warn().
			Err(err).
			Int("page", batch.Page).
			Int("rows", batch.Len()).
			Msg("Batch rolled back")
		return &PersistenceError{Page: batch.Page, Rows: batch.Len(), Err: err}
	}

	batchesLoadedTotal.WithLabelValues("ok").Inc()
	rowsLoadedTotal.Add(float64(batch.Len()))
	l.store.logger.Debug().
		Int("page", batch.Page).
		Int("rows", batch.Len()).
		Dur("duration", time.Since(start)).
		Msg("Batch committed")
	return nil
}

func (l *Loader) load(ctx context.Context, batch swapi.Batch) error {
	tx, err := l.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	// No-op after a successful Commit.
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, l.query)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range batch.People {
		if _, err := stmt.ExecContext(ctx, values(p)...); err != nil {
			return fmt.Errorf("insert %q: %w", p.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
