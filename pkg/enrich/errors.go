package enrich

import (
	"errors"
	"fmt"
)

// ErrNoHomeworld is returned for a record without a homeworld reference.
var ErrNoHomeworld = errors.New("record has no homeworld reference")

// AggregationError is returned when any reference of a category failed to
// resolve. Err is the first failure observed.
type AggregationError struct {
	Category string
	Err      error
}

// Error implements the error interface.
func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregate %s: %v", e.Category, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *AggregationError) Unwrap() error {
	return e.Err
}

// EnrichmentError is returned when a record could not be fully resolved.
// No partial record accompanies it.
type EnrichmentError struct {
	Record string
	URL    string
	Err    error
}

// Error implements the error interface.
func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("enrich %q: %v", e.Record, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *EnrichmentError) Unwrap() error {
	return e.Err
}
