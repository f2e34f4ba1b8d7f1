// Package progress carries run progress out of the pipeline. Concurrent
// tasks emit events to a Reporter, which forwards them from a single
// goroutine to every configured sink (log, Redis stream).
package progress

import (
	"strconv"
	"time"
)

// Kind identifies what an event reports.
type Kind string

// Event kinds.
const (
	KindRecordEnriched Kind = "record_enriched"
	KindBatchLoaded    Kind = "batch_loaded"
	KindStateChanged   Kind = "state_changed"
	KindRunFinished    Kind = "run_finished"
)

// Event is one progress notification. Fields that do not apply to a kind
// are left zero.
type Event struct {
	RunID     string
	Kind      Kind
	Page      int
	Rows      int
	Name      string
	Homeworld string
	State     string
	Err       string
	Time      time.Time
}

// Values returns the event as a flat field map, omitting zero fields.
func (e Event) Values() map[string]interface{} {
	v := map[string]interface{}{
		"run_id": e.RunID,
		"kind":   string(e.Kind),
		"time":   e.Time.UTC().Format(time.RFC3339Nano),
	}
	if e.Page > 0 {
		v["page"] = strconv.Itoa(e.Page)
	}
	if e.Rows > 0 {
		v["rows"] = strconv.Itoa(e.Rows)
	}
	if e.Name != "" {
		v["name"] = e.Name
	}
	if e.Homeworld != "" {
		v["homeworld"] = e.Homeworld
	}
	if e.State != "" {
		v["state"] = e.State
	}
	if e.Err != "" {
		v["error"] = e.Err
	}
	return v
}
