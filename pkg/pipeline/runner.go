// Package pipeline runs the catalog ETL: it pages through the people
// listing, enriches every page concurrently and loads the batches in page
// order. The first failure anywhere cancels the whole run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/swapi-etl/pkg/enrich"
	"github.com/Sternrassler/swapi-etl/pkg/pagination"
	"github.com/Sternrassler/swapi-etl/pkg/progress"
	"github.com/Sternrassler/swapi-etl/pkg/swapi"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapi_pipeline_runs_total",
		Help: "Pipeline runs by outcome",
	}, []string{"outcome"})

	pagesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swapi_pages_in_flight",
		Help: "Pages currently being enriched or loaded",
	})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swapi_run_duration_seconds",
		Help:    "Wall-clock duration of pipeline runs",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})
)

// Schema prepares the destination table. *store.Store implements it.
type Schema interface {
	EnsureSchema(ctx context.Context) error
	ResetSchema(ctx context.Context) error
}

// Loader persists one batch atomically. *store.Loader implements it.
type Loader interface {
	Load(ctx context.Context, batch swapi.Batch) error
}

// Config holds run configuration
type Config struct {
	// ResetSchema drops and recreates the table before the first batch
	ResetSchema bool
	// MaxPagesInFlight bounds concurrently processed pages (0 = unbounded)
	MaxPagesInFlight int
	// Pagination configures the listing cursor
	Pagination pagination.Config
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Pagination: pagination.DefaultConfig(),
	}
}

// Options wires a runner to its collaborators. Reporter is optional; an
// empty RunID gets a random UUID.
type Options struct {
	RunID    string
	Source   pagination.PageFetcher
	Enricher *enrich.Enricher
	Schema   Schema
	Loader   Loader
	Reporter *progress.Reporter
}

// Result summarizes a run.
type Result struct {
	RunID    string
	Pages    int
	Records  int
	Duration time.Duration
}

// Runner executes a single ETL run. It is not restartable.
type Runner struct {
	config   Config
	source   pagination.PageFetcher
	enricher *enrich.Enricher
	schema   Schema
	loader   Loader
	reporter *progress.Reporter
	runID    string
	state    atomic.Int32
	records  atomic.Int64
	logger   zerolog.Logger
}

// New creates a runner. Nothing is fetched until Run.
func New(config Config, opts Options) (*Runner, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("page source is required")
	}
	if opts.Enricher == nil {
		return nil, fmt.Errorf("enricher is required")
	}
	if opts.Schema == nil || opts.Loader == nil {
		return nil, fmt.Errorf("schema and loader are required")
	}
	if config.MaxPagesInFlight < 0 {
		return nil, fmt.Errorf("max_pages_in_flight must be >= 0 (got %d)", config.MaxPagesInFlight)
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Runner{
		config:   config,
		source:   opts.Source,
		enricher: opts.Enricher,
		schema:   opts.Schema,
		loader:   opts.Loader,
		reporter: opts.Reporter,
		runID:    runID,
		logger:   log.With().Str("component", "pipeline").Str("run_id", runID).Logger(),
	}, nil
}

// RunID returns the identifier stamped on this run's events.
func (r *Runner) RunID() string {
	return r.runID
}

// State returns the current run state. Safe for concurrent use.
func (r *Runner) State() State {
	return State(r.state.Load())
}

// Run executes the ETL once. On failure the first error is returned and
// the state becomes StateFailed; batches committed before the failure are
// kept.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	result := Result{RunID: r.runID}

	err := r.run(ctx, &result)

	result.Records = int(r.records.Load())
	result.Duration = time.Since(start)
	runDuration.Observe(result.Duration.Seconds())

	// Delivered even when ctx is already cancelled.
	finished := progress.Event{
		Kind: progress.KindRunFinished,
		Rows: result.Records,
	}

	if err != nil {
		r.setState(StateFailed)
		runsTotal.WithLabelValues("failed").Inc()
		r.logger.Error().
			Err(err).
			Int("records", result.Records).
			Dur("duration", result.Duration).
			Msg("Run failed")
		finished.State = StateFailed.String()
		finished.Err = err.Error()
		r.emit(context.Background(), finished)
		return result, err
	}

	r.setState(StateDone)
	runsTotal.WithLabelValues("done").Inc()
	r.logger.Info().
		Int("pages", result.Pages).
		Int("records", result.Records).
		Dur("duration", result.Duration).
		Msg("Run completed")
	finished.State = StateDone.String()
	r.emit(context.Background(), finished)
	return result, nil
}

func (r *Runner) run(ctx context.Context, result *Result) error {
	if !r.state.CompareAndSwap(int32(StateInit), int32(StatePaginating)) {
		return fmt.Errorf("run %s already started", r.runID)
	}
	r.emit(ctx, progress.Event{Kind: progress.KindStateChanged, State: StatePaginating.String()})

	// Schema work finishes before any batch is loaded.
	if r.config.ResetSchema {
		if err := r.schema.ResetSchema(ctx); err != nil {
			return err
		}
	} else if err := r.schema.EnsureSchema(ctx); err != nil {
		return err
	}

	cursor, err := pagination.Open(ctx, r.source, r.config.Pagination)
	if err != nil {
		return err
	}
	result.Pages = cursor.TotalPages()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	if r.config.MaxPagesInFlight > 0 {
		g.SetLimit(r.config.MaxPagesInFlight)
	}

	// Each page waits for its predecessor's load before loading itself.
	prev := make(chan struct{})
	close(prev)

	var listErr error
	for {
		page, err := cursor.Next(gctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			listErr = err
			cancel()
			break
		}

		done := make(chan struct{})
		wait := prev
		g.Go(func() error {
			return r.processPage(gctx, page, wait, done)
		})
		prev = done
	}

	waitErr := g.Wait()
	switch {
	case listErr == nil:
		return waitErr
	case waitErr != nil && !errors.Is(waitErr, context.Canceled):
		// A page failed first; the listing error is a consequence.
		return waitErr
	default:
		return listErr
	}
}

func (r *Runner) processPage(ctx context.Context, page pagination.Page, wait <-chan struct{}, done chan<- struct{}) error {
	pagesInFlight.Inc()
	defer pagesInFlight.Dec()

	r.setState(StateEnriching)
	people, err := r.enricher.EnrichAll(ctx, page.Records, func(p swapi.Person) {
		r.emit(ctx, progress.Event{
			Kind:      progress.KindRecordEnriched,
			Page:      page.Number,
			Name:      p.Name,
			Homeworld: p.Homeworld,
		})
	})
	if err != nil {
		return fmt.Errorf("page %d: %w", page.Number, err)
	}

	select {
	case <-wait:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.setState(StateLoading)
	batch := swapi.Batch{Page: page.Number, People: people}
	if err := r.loader.Load(ctx, batch); err != nil {
		return err
	}
	r.records.Add(int64(batch.Len()))
	close(done)

	r.logger.Debug().Int("page", page.Number).Int("rows", batch.Len()).Msg("Page loaded")
	r.emit(ctx, progress.Event{Kind: progress.KindBatchLoaded, Page: page.Number, Rows: batch.Len()})
	return nil
}

// setState records s unless the run already reached a terminal state.
func (r *Runner) setState(s State) {
	for {
		old := State(r.state.Load())
		if old == s || old.Terminal() {
			return
		}
		if r.state.CompareAndSwap(int32(old), int32(s)) {
			break
		}
	}
	r.logger.Debug().Str("state", s.String()).Msg("State changed")
	r.emit(context.Background(), progress.Event{Kind: progress.KindStateChanged, State: s.String()})
}

func (r *Runner) emit(ctx context.Context, e progress.Event) {
	if r.reporter == nil {
		return
	}
	e.RunID = r.runID
	r.reporter.Emit(ctx, e)
}
