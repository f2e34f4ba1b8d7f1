package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/Sternrassler/swapi-etl/pkg/swapi"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "etl.db") + "?_pragma=busy_timeout(5000)"
	s, err := Open(context.Background(), Config{Driver: DriverSQLite, DSN: dsn})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error: %v", err)
	}
	return s
}

func testPeople(n int) []swapi.Person {
	people := make([]swapi.Person, n)
	for i := range people {
		people[i] = swapi.Person{
			Name:      fmt.Sprintf("person-%d", i+1),
			Height:    "172",
			Mass:      "77",
			HairColor: "blond",
			SkinColor: "fair",
			EyeColor:  "blue",
			BirthYear: "19BBY",
			Gender:    "male",
			Homeworld: "Tatooine",
			Films:     "A New Hope,The Empire Strikes Back",
			Species:   "",
			Starships: "X-wing",
			Vehicles:  "Snowspeeder,Imperial Speeder Bike",
		}
	}
	return people
}

func TestOpen_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:    "unknown driver",
			config:  Config{Driver: "mysql", DSN: "x"},
			wantErr: `unknown database driver: "mysql"`,
		},
		{
			name:    "missing dsn",
			config:  Config{Driver: DriverSQLite},
			wantErr: "database DSN is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(context.Background(), tt.config)
			if err == nil {
				t.Fatal("expected error")
			}
			if err.Error() != tt.wantErr {
				t.Errorf("error = %q, want %q", err.Error(), tt.wantErr)
			}
		})
	}

	_, err := Open(context.Background(), Config{Driver: "oracle", DSN: "x"})
	if !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("errors.Is(err, ErrUnknownDriver) = false for %v", err)
	}
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := NewLoader(s).Load(ctx, swapi.Batch{Page: 1, People: testPeople(2)}); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("second EnsureSchema() error: %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if n != 2 {
		t.Errorf("Count() = %d, want 2 (rows kept)", n)
	}
}

func TestResetSchema(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := NewLoader(s).Load(ctx, swapi.Batch{Page: 1, People: testPeople(3)}); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := s.ResetSchema(ctx); err != nil {
		t.Fatalf("ResetSchema() error: %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if n != 0 {
		t.Errorf("Count() after reset = %d, want 0", n)
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	loader := NewLoader(s)

	first := testPeople(10)
	second := testPeople(3)
	if err := loader.Load(ctx, swapi.Batch{Page: 1, People: first}); err != nil {
		t.Fatalf("Load(page 1) error: %v", err)
	}
	if err := loader.Load(ctx, swapi.Batch{Page: 2, People: second}); err != nil {
		t.Fatalf("Load(page 2) error: %v", err)
	}

	got, err := s.People(ctx)
	if err != nil {
		t.Fatalf("People() error: %v", err)
	}
	want := append(append([]swapi.Person{}, first...), second...)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("People() mismatch:\n got %d rows\nwant %d rows", len(got), len(want))
	}
	if got[0].Films != "A New Hope,The Empire Strikes Back" {
		t.Errorf("Films = %q", got[0].Films)
	}
}

func TestLoad_EmptyBatch(t *testing.T) {
	s := openTestStore(t)

	if err := NewLoader(s).Load(context.Background(), swapi.Batch{Page: 4}); err != nil {
		t.Fatalf("Load(empty) error: %v", err)
	}
	if n, _ := s.Count(context.Background()); n != 0 {
		t.Errorf("Count() = %d, want 0", n)
	}
}

func TestLoad_FailureRollsBackWholeBatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.DB().ExecContext(ctx, `CREATE TRIGGER reject_broken BEFORE INSERT ON swapi_people
WHEN NEW.name = 'Broken'
BEGIN
	SELECT RAISE(ABORT, 'rejected row');
END`)
	if err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	people := testPeople(5)
	people[3].Name = "Broken"

	err = NewLoader(s).Load(ctx, swapi.Batch{Page: 7, People: people})

	var persistErr *PersistenceError
	if !errors.As(err, &persistErr) {
		t.Fatalf("expected *PersistenceError, got %T: %v", err, err)
	}
	if persistErr.Page != 7 || persistErr.Rows != 5 {
		t.Errorf("PersistenceError = %+v", persistErr)
	}
	if !strings.Contains(err.Error(), "Broken") {
		t.Errorf("error %q does not name the failing row", err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if n != 0 {
		t.Errorf("Count() = %d, want 0 after rollback", n)
	}

	// The store stays usable after a rolled back batch.
	if err := NewLoader(s).Load(ctx, swapi.Batch{Page: 8, People: testPeople(2)}); err != nil {
		t.Fatalf("Load() after rollback error: %v", err)
	}
	if n, _ := s.Count(ctx); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}

func TestLoad_CancelledContext(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewLoader(s).Load(ctx, swapi.Batch{Page: 1, People: testPeople(2)})

	var persistErr *PersistenceError
	if !errors.As(err, &persistErr) {
		t.Fatalf("expected *PersistenceError, got %T: %v", err, err)
	}
	if n, _ := s.Count(context.Background()); n != 0 {
		t.Errorf("Count() = %d, want 0", n)
	}
}

func TestPersistenceError(t *testing.T) {
	inner := errors.New("disk full")
	err := &PersistenceError{Page: 3, Rows: 10, Err: inner}

	if err.Error() != "persist page 3 (10 rows): disk full" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("Unwrap() does not expose inner error")
	}
}
