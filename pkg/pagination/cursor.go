package pagination

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Sternrassler/swapi-etl/pkg/swapi"
	"github.com/rs/zerolog/log"
)

// Config holds cursor configuration
type Config struct {
	// PageSize is the number of items the API serves per page
	PageSize int
	// Timeout per page fetch
	Timeout time.Duration
}

// DefaultConfig returns the configuration matching the public API
func DefaultConfig() Config {
	return Config{
		PageSize: 10,
		Timeout:  30 * time.Second,
	}
}

// PageFetcher is the interface the catalog client implements for single-page fetching
type PageFetcher interface {
	// FetchPage fetches a single 1-based page of the people listing
	FetchPage(ctx context.Context, page int) (swapi.PeoplePage, error)
}

// Page is one page of raw records
type Page struct {
	Number  int
	Records []swapi.RawPerson
}

// PageError wraps a failed listing fetch
type PageError struct {
	Page int
	Err  error
}

// Error implements the error interface.
func (e *PageError) Error() string {
	return fmt.Sprintf("fetch page %d: %v", e.Page, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *PageError) Unwrap() error {
	return e.Err
}

// Cursor yields listing pages in order. It is safe for use by one
// goroutine at a time; Next calls are serialized.
type Cursor struct {
	fetcher    PageFetcher
	config     Config
	count      int
	totalPages int

	mu    sync.Mutex
	next  int
	first *Page
}

// TotalPages returns ceil(count / pageSize), or 0 for an empty listing.
func TotalPages(count, pageSize int) int {
	if count <= 0 || pageSize <= 0 {
		return 0
	}
	return (count + pageSize - 1) / pageSize
}

// Open fetches the first page to discover the item count and returns a
// cursor positioned before page 1. The first page is kept and returned by
// the first Next call, so it is fetched only once.
func Open(ctx context.Context, fetcher PageFetcher, config Config) (*Cursor, error) {
	if config.PageSize <= 0 {
		config.PageSize = 10
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	start := time.Now()

	pageCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	first, err := fetcher.FetchPage(pageCtx, 1)
	cancel()
	if err != nil {
		return nil, &PageError{Page: 1, Err: err}
	}

	c := &Cursor{
		fetcher:    fetcher,
		config:     config,
		count:      first.Count,
		totalPages: TotalPages(first.Count, config.PageSize),
		next:       1,
		first:      &Page{Number: 1, Records: first.Results},
	}

	log.Info().
		Int("count", c.count).
		Int("page_size", config.PageSize).
		Int("total_pages", c.totalPages).
		Dur("duration", time.Since(start)).
		Msg("Listing discovered")

	return c, nil
}

// Count returns the item count reported when the cursor was opened.
func (c *Cursor) Count() int {
	return c.count
}

// TotalPages returns the number of pages the cursor will yield.
func (c *Cursor) TotalPages() int {
	return c.totalPages
}

// Next returns the next page. After the last page it returns io.EOF, and
// keeps doing so. A failed fetch is returned as *PageError and does not
// advance the cursor.
func (c *Cursor) Next(ctx context.Context) (Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.next > c.totalPages {
		c.first = nil
		return Page{}, io.EOF
	}

	if c.next == 1 && c.first != nil {
		page := *c.first
		c.first = nil
		c.next++
		return page, nil
	}

	pageNum := c.next

	pageCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	data, err := c.fetcher.FetchPage(pageCtx, pageNum)
	cancel()
	if err != nil {
		log.Warn().
			Err(err).
			Int("page", pageNum).
			Msg("Page fetch failed")
		return Page{}, &PageError{Page: pageNum, Err: err}
	}

	c.next++

	log.Debug().
		Int("page", pageNum).
		Int("records", len(data.Results)).
		Int("total_pages", c.totalPages).
		Msg("Page fetched")

	return Page{Number: pageNum, Records: data.Results}, nil
}
