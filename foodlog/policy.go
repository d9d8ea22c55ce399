// ABOUTME: Failure policies for remote writes, chosen per operation.
// ABOUTME: Abort surfaces the error; best effort keeps the change locally.

package foodlog

// Operation names a coordinator entry point that may write remotely.
type Operation string

const (
	OpAddLog          Operation = "addLog"
	OpAddCustomItem   Operation = "addCustomItem"
	OpUpdateItemTitle Operation = "updateItemTitle"
	OpDeleteLog       Operation = "deleteLog"
)

// FailurePolicy decides what happens when the remote write behind an
// operation fails.
type FailurePolicy int

const (
	// AbortOnFailure leaves in-memory state untouched and returns the error.
	AbortOnFailure FailurePolicy = iota
	// BestEffortLocal applies the change in memory with a local id. The
	// change is not queued and disappears on the next remote load.
	BestEffortLocal
)

func (p FailurePolicy) String() string {
	if p == BestEffortLocal {
		return "best-effort-local"
	}
	return "abort-on-failure"
}

// DefaultPolicies: logging never silently fails, declaring a permanent item
// never fakes success.
func DefaultPolicies() map[Operation]FailurePolicy {
	return map[Operation]FailurePolicy{
		OpAddLog:          BestEffortLocal,
		OpAddCustomItem:   AbortOnFailure,
		OpUpdateItemTitle: AbortOnFailure,
		OpDeleteLog:       AbortOnFailure,
	}
}
