// Package enrich turns raw people into fully resolved rows. Every reference
// of a record is resolved concurrently; the first failure cancels the rest
// and no partial record is ever returned.
package enrich

import (
	"context"

	"github.com/Sternrassler/swapi-etl/pkg/swapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	recordsEnrichedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapi_records_enriched_total",
		Help: "Records processed by the enricher by outcome",
	}, []string{"outcome"})

	aggregationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapi_aggregations_total",
		Help: "Category aggregations by category and outcome",
	}, []string{"category", "outcome"})
)

// Resolver follows a reference URL. *client.Client implements it.
type Resolver interface {
	Resolve(ctx context.Context, url string) (swapi.Entity, error)
}

// Aggregate resolves every URL of one category concurrently and joins the
// display names in input order. An empty list yields "" without any request.
// If any resolution fails the remaining ones are cancelled and an
// *AggregationError wrapping the first failure is returned.
func Aggregate(ctx context.Context, r Resolver, category string, urls []string) (string, error) {
	if len(urls) == 0 {
		return "", nil
	}

	names := make([]string, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	for i, u := range urls {
		g.Go(func() error {
			entity, err := r.Resolve(gctx, u)
			if err != nil {
				return err
			}
			names[i] = entity.DisplayName()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		aggregationsTotal.WithLabelValues(category, "error").Inc()
		return "", &AggregationError{Category: category, Err: err}
	}

	aggregationsTotal.WithLabelValues(category, "ok").Inc()
	return swapi.Join(names), nil
}

// Enricher resolves all references of raw people.
type Enricher struct {
	resolver Resolver
	logger   zerolog.Logger
}

// New creates an enricher backed by r.
func New(r Resolver) *Enricher {
	return &Enricher{
		resolver: r,
		logger:   log.With().Str("component", "enricher").Logger(),
	}
}

// Enrich runs one aggregation per category plus the homeworld resolution
// concurrently and assembles the resolved person once all of them succeed.
func (e *Enricher) Enrich(ctx context.Context, raw swapi.RawPerson) (swapi.Person, error) {
	if raw.Homeworld == "" {
		recordsEnrichedTotal.WithLabelValues("error").Inc()
		return swapi.Person{}, &EnrichmentError{Record: raw.Name, URL: raw.URL, Err: ErrNoHomeworld}
	}

	joined := make([]string, len(swapi.Categories))
	var homeworld string

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range swapi.Categories {
		g.Go(func() error {
			s, err := Aggregate(gctx, e.resolver, c.Name, c.URLs(raw))
			if err != nil {
				return err
			}
			joined[i] = s
			return nil
		})
	}
	g.Go(func() error {
		entity, err := e.resolver.Resolve(gctx, raw.Homeworld)
		if err != nil {
			return err
		}
		homeworld = entity.DisplayName()
		return nil
	})

	if err := g.Wait(); err != nil {
		recordsEnrichedTotal.WithLabelValues("error").Inc()
		e.logger.Debug().Err(err).Str("record", raw.Name).Msg("Enrichment failed")
		return swapi.Person{}, &EnrichmentError{Record: raw.Name, URL: raw.URL, Err: err}
	}

	person := swapi.NewPerson(raw)
	for i, c := range swapi.Categories {
		c.Set(&person, joined[i])
	}
	person.Homeworld = homeworld

	recordsEnrichedTotal.WithLabelValues("ok").Inc()
	return person, nil
}

// EnrichAll enriches every record of one page concurrently and returns the
// results in input order. The first failure cancels the remaining records
// and is returned as is. onRecord, when non-nil, is called once per
// successfully enriched record, possibly from several goroutines.
func (e *Enricher) EnrichAll(ctx context.Context, raws []swapi.RawPerson, onRecord func(swapi.Person)) ([]swapi.Person, error) {
	people := make([]swapi.Person, len(raws))

	g, gctx := errgroup.WithContext(ctx)
	for i, raw := range raws {
		g.Go(func() error {
			p, err := e.Enrich(gctx, raw)
			if err != nil {
				return err
			}
			people[i] = p
			if onRecord != nil {
				onRecord(p)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return people, nil
}
