package reconcile

import "github.com/lherron/cartsync/internal/domain"

// Transition is the kind of identity change between two reconciled states.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionLogin
	TransitionLogout
	TransitionSwitch
)

func (t Transition) String() string {
	switch t {
	case TransitionLogin:
		return "login"
	case TransitionLogout:
		return "logout"
	case TransitionSwitch:
		return "switch"
	default:
		return "none"
	}
}

// Classify returns the transition from prev to cur.
func Classify(prev, cur domain.Identity) Transition {
	switch {
	case !prev.Present() && !cur.Present():
		return TransitionNone
	case !prev.Present():
		return TransitionLogin
	case !cur.Present():
		return TransitionLogout
	case prev.UserID != cur.UserID:
		return TransitionSwitch
	default:
		return TransitionNone
	}
}

// FetchFailurePolicy decides what a login merge does when the remote
// collections cannot be fetched.
type FetchFailurePolicy string

const (
	// FetchFailureAbort keeps local data, marks the merge pending and
	// suspends real-time push until Retry succeeds.
	FetchFailureAbort FetchFailurePolicy = "abort"
	// FetchFailureEmpty treats the remote as empty and uploads local data.
	FetchFailureEmpty FetchFailurePolicy = "empty"
)

// ParseFetchFailurePolicy validates a policy name. The empty string selects
// FetchFailureAbort.
func ParseFetchFailurePolicy(s string) (FetchFailurePolicy, error) {
	switch FetchFailurePolicy(s) {
	case "", FetchFailureAbort:
		return FetchFailureAbort, nil
	case FetchFailureEmpty:
		return FetchFailureEmpty, nil
	default:
		return "", &domain.ValidationError{Field: "fetch_failure", Reason: "must be one of: abort, empty"}
	}
}
