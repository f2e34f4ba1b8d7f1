package pipeline

// State is the lifecycle state of a run.
type State int32

// Run states. A run moves INIT -> PAGINATING -> (ENRICHING <-> LOADING)*
// and ends in DONE or FAILED.
const (
	StateInit State = iota
	StatePaginating
	StateEnriching
	StateLoading
	StateDone
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StatePaginating:
		return "PAGINATING"
	case StateEnriching:
		return "ENRICHING"
	case StateLoading:
		return "LOADING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}
