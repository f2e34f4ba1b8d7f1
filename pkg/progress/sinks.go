package progress

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// LogSink writes one log line per event.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink logging to logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Name implements Sink.
func (s *LogSink) Name() string { return "log" }

// Write implements Sink.
func (s *LogSink) Write(_ context.Context, e Event) error {
	switch e.Kind {
	case KindRecordEnriched:
		s.logger.Info().
			Str("run_id", e.RunID).
			Int("page", e.Page).
			Str("name", e.Name).
			Str("homeworld", e.Homeworld).
			Msg("Record enriched")
	case KindBatchLoaded:
		s.logger.Info().
			Str("run_id", e.RunID).
			Int("page", e.Page).
			Int("rows", e.Rows).
			Msg("Batch loaded")
	case KindStateChanged:
		s.logger.Debug().
			Str("run_id", e.RunID).
			Str("state", e.State).
			Msg("State changed")
	case KindRunFinished:
		ev := s.logger.Info()
		if e.Err != "" {
			ev = s.logger.Error().Str("error", e.Err)
		}
		ev.Str("run_id", e.RunID).
			Str("state", e.State).
			Int("rows", e.Rows).
			Msg("Run finished")
	default:
		s.logger.Debug().Str("kind", string(e.Kind)).Msg("Unknown progress event")
	}
	return nil
}

// StreamKey returns the Redis stream key for a run.
func StreamKey(runID string) string {
	return "swapi:progress:" + runID
}

// RedisSink appends events to a Redis stream, trimmed to roughly MaxLen
// entries.
type RedisSink struct {
	redis  *redis.Client
	stream string
	maxLen int64
}

// NewRedisSink creates a sink writing to stream. maxLen <= 0 disables
// trimming.
func NewRedisSink(client *redis.Client, stream string, maxLen int64) *RedisSink {
	return &RedisSink{
		redis:  client,
		stream: stream,
		maxLen: maxLen,
	}
}

// Name implements Sink.
func (s *RedisSink) Name() string { return "redis" }

// Stream returns the stream key events are appended to.
func (s *RedisSink) Stream() string { return s.stream }

// Write implements Sink.
func (s *RedisSink) Write(ctx context.Context, e Event) error {
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: e.Values(),
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if err := s.redis.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}
