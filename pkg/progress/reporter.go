package progress

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapi_progress_events_total",
		Help: "Progress events emitted by kind",
	}, []string{"kind"})

	sinkErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapi_progress_sink_errors_total",
		Help: "Progress events a sink failed to write",
	}, []string{"sink"})
)

// Sink receives progress events. Write is only ever called from the
// reporter goroutine.
type Sink interface {
	Name() string
	Write(ctx context.Context, e Event) error
}

// ReporterConfig holds reporter configuration
type ReporterConfig struct {
	// Buffer is the event channel capacity
	Buffer int
	// WriteTimeout bounds a single sink write
	WriteTimeout time.Duration
}

// DefaultReporterConfig returns sensible defaults
func DefaultReporterConfig() ReporterConfig {
	return ReporterConfig{
		Buffer:       256,
		WriteTimeout: 5 * time.Second,
	}
}

// Reporter serializes events from many goroutines onto its sinks.
type Reporter struct {
	config ReporterConfig
	sinks  []Sink
	events chan Event
	done   chan struct{}
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewReporter starts a reporter forwarding to sinks. Close must be called
// to flush pending events.
func NewReporter(config ReporterConfig, sinks ...Sink) *Reporter {
	if config.Buffer < 0 {
		config.Buffer = 0
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}

	r := &Reporter{
		config: config,
		sinks:  sinks,
		events: make(chan Event, config.Buffer),
		done:   make(chan struct{}),
		logger: log.With().Str("component", "progress").Logger(),
	}
	go r.run()
	return r
}

// Emit queues e for delivery. It blocks while the buffer is full, but never
// past ctx. Events emitted after Close are dropped.
func (r *Reporter) Emit(ctx context.Context, e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	select {
	case r.events <- e:
		eventsTotal.WithLabelValues(string(e.Kind)).Inc()
	case <-ctx.Done():
	}
}

// Close stops accepting events and waits until every queued event has been
// handed to the sinks.
func (r *Reporter) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	close(r.events)
	r.mu.Unlock()

	<-r.done
}

func (r *Reporter) run() {
	defer close(r.done)

	for e := range r.events {
		for _, s := range r.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
			err := s.Write(ctx, e)
			cancel()
			if err != nil {
				sinkErrorsTotal.WithLabelValues(s.Name()).Inc()
				r.logger.Warn().
					Err(err).
					Str("sink", s.Name()).
					Str("kind", string(e.Kind)).
					Msg("Progress sink write failed")
			}
		}
	}
}
