package target

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for adapter failure classification.
// Use errors.Is(err, target.ErrNotFound) to check.
var (
	ErrNotFound         = errors.New("target: not found")
	ErrPermissionDenied = errors.New("target: permission denied")
	ErrTimeout          = errors.New("target: timeout")
	ErrProtocol         = errors.New("target: protocol error")
	ErrUnsupported      = errors.New("target: operation not supported")
)

// Error wraps a sentinel error with the operation, the path it was applied
// to, and the underlying protocol error for debugging.
type Error struct {
	Op   string // "list", "stat", "read", "write", "mkdir", "rmdir", "delete", "connect", "settime"
	Path string
	Kind error // sentinel, for errors.Is()
	Err  error // underlying cause
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("target: %s %s: %v", e.Op, e.Path, e.Err)
	}

	return fmt.Sprintf("target: %s: %v", e.Op, e.Err)
}

// Unwrap exposes both the sentinel kind and the underlying cause to
// errors.Is/As chains.
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// newError builds a classified adapter error. A nil kind degrades to
// ErrProtocol so every adapter failure carries exactly one sentinel.
func newError(op, path string, kind, err error) *Error {
	if kind == nil {
		kind = ErrProtocol
	}

	return &Error{Op: op, Path: path, Kind: kind, Err: err}
}

// IsRetryable reports whether an operation that failed with err is worth
// retrying on the same connection. Only timeouts qualify; NotFound and
// PermissionDenied are deterministic, and protocol errors usually indicate
// a broken connection.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	return errors.Is(err, ErrTimeout)
}
