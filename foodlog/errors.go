// ABOUTME: Typed errors for local/remote persistence and coordinator operations.
// ABOUTME: Enables programmatic error handling with errors.Is() and errors.As().
package foodlog

import (
	"errors"
	"fmt"
)

// Sentinel errors for programmatic handling.
var (
	ErrNotConfigured   = errors.New("remote store not configured")
	ErrSignedOut       = errors.New("no signed-in user")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNetworkFailure  = errors.New("network failure")
	ErrServerError     = errors.New("server error")
	ErrRejected        = errors.New("request rejected")
	ErrInvalidImport   = errors.New("import file must contain a JSON array of log entries")
	ErrInvalidMealType = errors.New("invalid meal type")
	ErrUnknownCategory = errors.New("no category for meal type")
	ErrItemNotFound    = errors.New("item not found")
	ErrEntryNotFound   = errors.New("log entry not found")
	ErrEmptyName       = errors.New("name required")
)

// RemoteError wraps a failed remote request with operation context.
type RemoteError struct {
	Op     string // "fetchLogs", "insertLog", ...
	Table  string
	Status int    // HTTP status, 0 when the request never completed
	Err    error  // underlying typed error
	Detail string // server message if any
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// classifyStatus maps a non-2xx HTTP status onto a sentinel.
func classifyStatus(code int) error {
	switch {
	case code == 401 || code == 403:
		return ErrUnauthorized
	case code >= 500:
		return ErrServerError
	default:
		return ErrRejected
	}
}
