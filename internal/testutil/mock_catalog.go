// Package testutil provides testing utilities for the catalog ETL.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/swapi-etl/pkg/swapi"
)

// PageSize is the number of people served per listing page.
const PageSize = 10

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// MockCatalog is a configurable mock of the catalog API for testing.
// Listing pages are served from the configured people; reference paths
// are served from registered entities.
type MockCatalog struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	entities map[string]string
	delays   map[string]time.Duration
	people   []swapi.RawPerson
	count    int

	// Tracking
	requestCount int64
	inFlight     int64
	peakInFlight int64
	pathCounts   map[string]int
}

// NewMockCatalog creates a new mock catalog server.
func NewMockCatalog() *MockCatalog {
	mock := &MockCatalog{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		entities:   make(map[string]string),
		delays:     make(map[string]time.Duration),
		pathCounts: make(map[string]int),
		count:      -1,
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&mock.requestCount, 1)
		current := atomic.AddInt64(&mock.inFlight, 1)
		defer atomic.AddInt64(&mock.inFlight, -1)
		mock.updatePeak(current)

		mock.mu.Lock()
		mock.pathCounts[r.URL.Path]++
		handler, hasHandler := mock.handlers[r.URL.Path]
		delay := mock.delays[r.URL.Path]
		mock.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		if hasHandler {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// BaseURL returns the API root to configure the client with.
func (m *MockCatalog) BaseURL() string {
	return m.server.URL + "/api"
}

// Ref returns the absolute reference URL for a resource path such as "/api/films/1/".
func (m *MockCatalog) Ref(path string) string {
	return m.server.URL + path
}

// Close shuts down the mock server.
func (m *MockCatalog) Close() {
	m.server.Close()
}

// SetHandler sets a custom handler for a specific path.
func (m *MockCatalog) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockCatalog) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetDelay delays every response served for path.
func (m *MockCatalog) SetDelay(path string, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[path] = delay
}

// AddEntity registers a reference resource. kind is the collection
// ("films", "planets", ...); films are served with a title, everything
// else with a name. It returns the absolute reference URL.
func (m *MockCatalog) AddEntity(kind string, id int, name string) string {
	path := fmt.Sprintf("/api/%s/%d/", kind, id)
	field := "name"
	if kind == "films" {
		field = "title"
	}
	body, _ := json.Marshal(map[string]any{
		field: name,
		"url": m.Ref(path),
	})

	m.mu.Lock()
	m.entities[path] = string(body)
	m.mu.Unlock()

	return m.Ref(path)
}

// SetPeople sets the people served by the listing endpoint.
func (m *MockCatalog) SetPeople(people []swapi.RawPerson) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.people = people
}

// SetCount overrides the count reported by the listing. A negative value
// reports len(people).
func (m *MockCatalog) SetCount(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count = count
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockCatalog) GetRequestCount() int {
	return int(atomic.LoadInt64(&m.requestCount))
}

// GetPathCount returns the number of requests made for path.
func (m *MockCatalog) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// GetPeakInFlight returns the highest number of concurrent requests observed.
func (m *MockCatalog) GetPeakInFlight() int {
	return int(atomic.LoadInt64(&m.peakInFlight))
}

// Reset clears all tracking counters.
func (m *MockCatalog) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	atomic.StoreInt64(&m.requestCount, 0)
	atomic.StoreInt64(&m.peakInFlight, 0)
	m.pathCounts = make(map[string]int)
}

func (m *MockCatalog) updatePeak(current int64) {
	for {
		peak := atomic.LoadInt64(&m.peakInFlight)
		if current <= peak {
			return
		}
		if atomic.CompareAndSwapInt64(&m.peakInFlight, peak, current) {
			return
		}
	}
}

// defaultHandler serves the people listing and registered entities.
func (m *MockCatalog) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path == "/api/people/" {
		m.listingHandler(w, r)
		return
	}

	m.mu.RLock()
	body, ok := m.entities[r.URL.Path]
	m.mu.RUnlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail": "Not found"}`))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

func (m *MockCatalog) listingHandler(w http.ResponseWriter, r *http.Request) {
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail": "Not found"}`))
			return
		}
		page = n
	}

	m.mu.RLock()
	people := m.people
	count := m.count
	m.mu.RUnlock()

	if count < 0 {
		count = len(people)
	}

	start := (page - 1) * PageSize
	if start >= len(people) && page != 1 {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail": "Not found"}`))
		return
	}
	end := start + PageSize
	if end > len(people) {
		end = len(people)
	}

	results := people[start:end]
	if results == nil {
		results = []swapi.RawPerson{}
	}

	var next *string
	if end < len(people) {
		n := fmt.Sprintf("%s/api/people/?page=%d", m.server.URL, page+1)
		next = &n
	}

	body, _ := json.Marshal(swapi.PeoplePage{
		Count:   count,
		Next:    next,
		Results: results,
	})

	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// NewPerson builds a raw person referencing the given homeworld and films.
func NewPerson(name, homeworld string, films ...string) swapi.RawPerson {
	if films == nil {
		films = []string{}
	}
	return swapi.RawPerson{
		Name:      name,
		Height:    "172",
		Mass:      "77",
		HairColor: "blond",
		SkinColor: "fair",
		EyeColor:  "blue",
		BirthYear: "19BBY",
		Gender:    "male",
		Homeworld: homeworld,
		Films:     films,
		Species:   []string{},
		Starships: []string{},
		Vehicles:  []string{},
	}
}
