package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/swapi-etl/pkg/client"
	"github.com/Sternrassler/swapi-etl/pkg/config"
	"github.com/Sternrassler/swapi-etl/pkg/enrich"
	"github.com/Sternrassler/swapi-etl/pkg/logging"
	"github.com/Sternrassler/swapi-etl/pkg/metrics"
	"github.com/Sternrassler/swapi-etl/pkg/pipeline"
	"github.com/Sternrassler/swapi-etl/pkg/progress"
	"github.com/Sternrassler/swapi-etl/pkg/store"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		log.Error().Err(err).Msg("ETL failed")
		stop()
		os.Exit(1)
	}
}

// run executes one ETL run. Logs go to stderr.
func run(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("swapi-etl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", getEnv("SWAPI_CONFIG", ""), "path to a YAML config file")
	resetSchema := fs.Bool("reset-schema", false, "drop and recreate the people table before loading")
	metricsAddr := fs.String("metrics-addr", "", "serve /metrics and /health on this address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *resetSchema {
		cfg.ResetSchema = true
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	lc := cfg.Logging()
	lc.Output = stderr
	logging.Setup(lc)
	logger := logging.NewLogger("main")

	start := time.Now()
	defer func() {
		logger.Info().Dur("elapsed", time.Since(start)).Msg("Total elapsed time")
	}()

	if cfg.MetricsAddr != "" {
		srv := startMetricsServer(cfg.MetricsAddr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	catalog, err := client.New(cfg.Client())
	if err != nil {
		return fmt.Errorf("create catalog client: %w", err)
	}
	defer catalog.Close()

	st, err := store.Open(ctx, cfg.Store())
	if err != nil {
		return err
	}
	defer st.Close()

	runID := uuid.NewString()
	sinks := []progress.Sink{progress.NewLogSink(logging.NewLogger("progress"))}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		sink := progress.NewRedisSink(redisClient, progress.StreamKey(runID), cfg.ProgressMaxLen)
		sinks = append(sinks, sink)
		logger.Info().Str("stream", sink.Stream()).Msg("Publishing progress to Redis")
	}

	reporter := progress.NewReporter(progress.DefaultReporterConfig(), sinks...)
	defer reporter.Close()

	runner, err := pipeline.New(cfg.Pipeline(), pipeline.Options{
		RunID:    runID,
		Source:   catalog,
		Enricher: enrich.New(catalog),
		Schema:   st,
		Loader:   store.NewLoader(st),
		Reporter: reporter,
	})
	if err != nil {
		return err
	}

	logger.Info().
		Str("run_id", runID).
		Str("base_url", cfg.BaseURL).
		Str("driver", cfg.Database.Driver).
		Bool("reset_schema", cfg.ResetSchema).
		Int("max_concurrency", cfg.MaxConcurrency).
		Msg("Starting ETL run")

	result, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}

	total, err := st.Count(ctx)
	if err != nil {
		return err
	}
	logger.Info().
		Int("pages", result.Pages).
		Int("records", result.Records).
		Int("table_rows", total).
		Msg("ETL run complete")
	return nil
}

func startMetricsServer(addr string, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", healthHandler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return srv
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
