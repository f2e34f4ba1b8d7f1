// Package metrics exposes the Prometheus registry of the ETL.
// Metrics are defined next to the code that updates them (client, enrich,
// store, pipeline, progress) and registered via promauto; this package only
// serves them and documents what exists.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all ETL metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the source Handler serves from.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - swapi_requests_total{kind, status} (Counter): Requests by kind (listing, reference) and HTTP status
//   - swapi_request_duration_seconds{kind} (Histogram): Request duration by kind
//   - swapi_errors_total{class} (Counter): Errors by class (client, server, unexpected, network, decode)
//   - swapi_requests_in_flight (Gauge): Requests holding a concurrency slot
//
// Enrichment Metrics (pkg/enrich):
//   - swapi_records_enriched_total{outcome} (Counter): Records enriched by outcome (ok, error)
//   - swapi_aggregations_total{category, outcome} (Counter): Category aggregations
//
// Store Metrics (pkg/store):
//   - swapi_batches_loaded_total{outcome} (Counter): Batch transactions by outcome
//   - swapi_rows_loaded_total (Counter): Committed rows
//   - swapi_batch_load_duration_seconds (Histogram): Batch transaction duration
//
// Pipeline Metrics (pkg/pipeline):
//   - swapi_pipeline_runs_total{outcome} (Counter): Runs by outcome (done, failed)
//   - swapi_pages_in_flight (Gauge): Pages being enriched or loaded
//   - swapi_run_duration_seconds (Histogram): Run wall-clock duration
//
// Progress Metrics (pkg/progress):
//   - swapi_progress_events_total{kind} (Counter): Events emitted by kind
//   - swapi_progress_sink_errors_total{sink} (Counter): Failed sink writes
//
// Example Prometheus Queries:
//
//   # Reference error rate
//   rate(swapi_errors_total[5m])
//
//   # P95 reference latency
//   histogram_quantile(0.95, rate(swapi_request_duration_seconds_bucket{kind="reference"}[5m]))
//
//   # Rows per second
//   rate(swapi_rows_loaded_total[1m])
