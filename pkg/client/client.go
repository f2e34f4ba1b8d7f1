// Package client provides the HTTP client for the catalog API: listing pages,
// reference resolution, error classification and a global cap on in-flight
// requests.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/swapi-etl/pkg/swapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// Prometheus metrics for catalog client operations.
var (
	swapiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapi_requests_total",
		Help: "Total catalog requests by kind and status",
	}, []string{"kind", "status"})

	swapiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "swapi_request_duration_seconds",
		Help:    "Catalog request duration in seconds by kind",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"kind"})

	swapiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapi_errors_total",
		Help: "Total catalog errors by class",
	}, []string{"class"})

	swapiRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swapi_requests_in_flight",
		Help: "Catalog requests currently holding a concurrency slot",
	})
)

// Request kinds used as metric labels.
const (
	KindListing   = "listing"
	KindReference = "reference"
)

// DefaultBaseURL is the public catalog API root.
const DefaultBaseURL = "https://swapi.dev/api"

// Client is the catalog API client. It is safe for concurrent use; the
// underlying http.Client and the concurrency semaphore are shared by all
// callers.
type Client struct {
	httpClient *http.Client
	sem        *semaphore.Weighted
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root, e.g. "https://swapi.dev/api".
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout per HTTP request.
	Timeout time.Duration

	// MaxConcurrency caps in-flight requests across every caller of this client.
	MaxConcurrency int
}

// DefaultConfig returns a default configuration for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		UserAgent:      "swapi-etl/0.1.0",
		Timeout:        30 * time.Second,
		MaxConcurrency: 16,
	}
}

// New creates a new catalog client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url must be absolute (got %q)", cfg.BaseURL)
	}

	if cfg.MaxConcurrency < 1 {
		return nil, fmt.Errorf("max_concurrency must be >= 1 (got %d)", cfg.MaxConcurrency)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	logger := log.With().Str("component", "catalog-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		config: cfg,
		logger: logger,
	}, nil
}

// PeopleURL returns the listing URL for the given 1-based page.
func (c *Client) PeopleURL(page int) string {
	return c.config.BaseURL + "/people/?page=" + strconv.Itoa(page)
}

// FetchPage fetches one page of the people listing.
func (c *Client) FetchPage(ctx context.Context, page int) (swapi.PeoplePage, error) {
	var out swapi.PeoplePage

	listingURL := c.PeopleURL(page)
	body, err := c.get(ctx, KindListing, listingURL)
	if err != nil {
		return out, err
	}

	if err := json.Unmarshal(body, &out); err != nil {
		swapiErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return out, &APIError{
			URL:        listingURL,
			StatusCode: http.StatusOK,
			ErrorClass: ErrorClassDecode,
			Message:    "invalid listing payload",
			Err:        err,
		}
	}

	return out, nil
}

// Resolve follows one reference URL and returns the entity it names.
// Exactly one request is made; failures are returned as *ResolutionError.
func (c *Client) Resolve(ctx context.Context, ref string) (swapi.Entity, error) {
	var entity swapi.Entity

	body, err := c.get(ctx, KindReference, ref)
	if err != nil {
		return entity, &ResolutionError{URL: ref, Err: err}
	}

	if err := json.Unmarshal(body, &entity); err != nil {
		swapiErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return swapi.Entity{}, &ResolutionError{URL: ref, Err: &APIError{
			URL:        ref,
			StatusCode: http.StatusOK,
			ErrorClass: ErrorClassDecode,
			Message:    "invalid entity payload",
			Err:        err,
		}}
	}

	if entity.DisplayName() == "" {
		swapiErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return swapi.Entity{}, &ResolutionError{URL: ref, Err: ErrMissingName}
	}

	return entity, nil
}

// get performs a GET and returns the full body of a 2xx response. The
// concurrency slot is held until the body has been read.
func (c *Client) get(ctx context.Context, kind, target string) ([]byte, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire request slot: %w", err)
	}
	defer c.sem.Release(1)

	swapiRequestsInFlight.Inc()
	defer swapiRequestsInFlight.Dec()

	startTime := time.Now()
	defer func() {
		swapiRequestDuration.WithLabelValues(kind).Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("kind", kind).
		Str("url", target).
		Msg("Executing catalog request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("url", target).Msg("HTTP request failed")
		swapiErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		swapiRequestsTotal.WithLabelValues(kind, "network_error").Inc()
		return nil, &APIError{
			URL:        target,
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	swapiRequestsTotal.WithLabelValues(kind, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errClass := classifyStatus(resp.StatusCode)
		swapiErrorsTotal.WithLabelValues(string(errClass)).Inc()
		c.logger.Warn().
			Str("url", target).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Catalog request error")
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &APIError{
			URL:        target,
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    resp.Status,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		swapiErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &APIError{
			URL:        target,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read body",
			Err:        err,
		}
	}

	return body, nil
}

// Close releases idle connections held by the client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient replaces the HTTP client, e.g. to route requests through a
// custom transport. The configured timeout is not applied to client.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
