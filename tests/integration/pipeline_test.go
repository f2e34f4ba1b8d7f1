//go:build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Sternrassler/swapi-etl/internal/testutil"
	"github.com/Sternrassler/swapi-etl/pkg/client"
	"github.com/Sternrassler/swapi-etl/pkg/enrich"
	"github.com/Sternrassler/swapi-etl/pkg/pipeline"
	"github.com/Sternrassler/swapi-etl/pkg/progress"
	"github.com/Sternrassler/swapi-etl/pkg/store"
	"github.com/Sternrassler/swapi-etl/pkg/swapi"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// setupPostgres creates a Postgres container and opens a store on it.
func setupPostgres(t *testing.T) (*store.Store, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "swapi",
			"POSTGRES_PASSWORD": "swapi",
			"POSTGRES_DB":       "swapi",
		},
		// The server restarts once after init; wait for the second start.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://swapi:swapi@%s:%s/swapi?sslmode=disable", host, port.Port())
	s, err := store.Open(ctx, store.Config{Driver: store.DriverPostgres, DSN: dsn, MaxOpenConns: 4})
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to open store: %v", err)
	}

	cleanup := func() {
		s.Close()
		container.Terminate(ctx)
	}

	return s, cleanup
}

func seedCatalog(mock *testutil.MockCatalog, n int) []swapi.RawPerson {
	tatooine := mock.AddEntity("planets", 1, "Tatooine")
	hope := mock.AddEntity("films", 1, "A New Hope")
	empire := mock.AddEntity("films", 2, "The Empire Strikes Back")
	speeder := mock.AddEntity("vehicles", 14, "Snowspeeder")

	people := make([]swapi.RawPerson, n)
	for i := range people {
		people[i] = testutil.NewPerson(fmt.Sprintf("person-%d", i+1), tatooine, hope, empire)
		people[i].Vehicles = []string{speeder, speeder}
	}
	mock.SetPeople(people)
	return people
}

func newRunner(t *testing.T, mock *testutil.MockCatalog, s *store.Store, config pipeline.Config, reporter *progress.Reporter) *pipeline.Runner {
	t.Helper()

	c, err := client.New(client.DefaultConfig(mock.BaseURL()))
	if err != nil {
		t.Fatalf("client.New() error: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	r, err := pipeline.New(config, pipeline.Options{
		Source:   c,
		Enricher: enrich.New(c),
		Schema:   s,
		Loader:   store.NewLoader(s),
		Reporter: reporter,
	})
	if err != nil {
		t.Fatalf("pipeline.New() error: %v", err)
	}
	return r
}

// TestPipeline_Postgres runs the full ETL against Postgres and publishes
// progress to a Redis stream.
func TestPipeline_Postgres(t *testing.T) {
	s, cleanupPG := setupPostgres(t)
	defer cleanupPG()
	redisClient, cleanupRedis := setupRedis(t)
	defer cleanupRedis()

	mock := testutil.NewMockCatalog()
	defer mock.Close()
	seedCatalog(mock, 23)

	ctx := context.Background()
	config := pipeline.DefaultConfig()
	config.ResetSchema = true

	sink := progress.NewRedisSink(redisClient, progress.StreamKey("it-run"), 0)
	reporter := progress.NewReporter(progress.DefaultReporterConfig(), sink)
	r := newRunner(t, mock, s, config, reporter)

	result, err := r.Run(ctx)
	reporter.Close()
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Pages != 3 || result.Records != 23 {
		t.Errorf("Result = %+v", result)
	}

	people, err := s.People(ctx)
	if err != nil {
		t.Fatalf("People() error = %v", err)
	}
	if len(people) != 23 {
		t.Fatalf("rows = %d, want 23", len(people))
	}
	for i, p := range people {
		if p.Name != fmt.Sprintf("person-%d", i+1) {
			t.Errorf("row %d name = %q", i, p.Name)
		}
		if p.Films != "A New Hope,The Empire Strikes Back" || p.Vehicles != "Snowspeeder,Snowspeeder" || p.Homeworld != "Tatooine" {
			t.Errorf("row %d = %+v", i, p)
		}
	}

	entries, err := redisClient.XRange(ctx, sink.Stream(), "-", "+").Result()
	if err != nil {
		t.Fatalf("XRange() error = %v", err)
	}
	enriched := 0
	for _, e := range entries {
		if e.Values["kind"] == string(progress.KindRecordEnriched) {
			enriched++
		}
	}
	if enriched != 23 {
		t.Errorf("record_enriched entries = %d, want 23", enriched)
	}
	last := entries[len(entries)-1].Values
	if last["kind"] != string(progress.KindRunFinished) || last["state"] != "DONE" {
		t.Errorf("last stream entry = %v", last)
	}
}

// TestPipeline_Postgres_BatchAtomicity checks that a page with an
// unresolvable homeworld leaves none of its rows behind.
func TestPipeline_Postgres_BatchAtomicity(t *testing.T) {
	s, cleanup := setupPostgres(t)
	defer cleanup()

	mock := testutil.NewMockCatalog()
	defer mock.Close()
	people := seedCatalog(mock, 23)
	people[21].Homeworld = mock.Ref("/api/planets/404/")
	mock.SetPeople(people)

	ctx := context.Background()
	config := pipeline.DefaultConfig()
	config.ResetSchema = true
	r := newRunner(t, mock, s, config, nil)

	_, err := r.Run(ctx)
	var resErr *client.ResolutionError
	if !errors.As(err, &resErr) || resErr.StatusCode() != 404 {
		t.Fatalf("Run() error = %v, want 404 ResolutionError", err)
	}
	if r.State() != pipeline.StateFailed {
		t.Errorf("State() = %v, want FAILED", r.State())
	}

	rows, err := s.People(ctx)
	if err != nil {
		t.Fatalf("People() error = %v", err)
	}
	for _, p := range rows {
		var n int
		fmt.Sscanf(p.Name, "person-%d", &n)
		if n > 20 {
			t.Errorf("row from failed page 3 persisted: %q", p.Name)
		}
	}
}
