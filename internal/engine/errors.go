package engine

import (
	"errors"
	"fmt"

	"github.com/shin315/fetchopt/internal/fileopt"
)

// Sentinel errors callers can test with errors.Is.
var (
	// ErrInsufficientSpace is raised before any byte hits disk.
	ErrInsufficientSpace = fileopt.ErrInsufficientSpace

	// ErrCancelled marks a caller-initiated cancellation, which metrics
	// count separately from timeouts.
	ErrCancelled = errors.New("download cancelled")
)

// TransientError wraps connection resets, DNS failures and 5xx
// responses. The same request may be resubmitted as-is.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient network error during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// TimeoutError marks a request that outlived its adaptive timeout. It is
// distinct from generic failures so the timeout manager can raise future
// budgets.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout during %s: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// HTTPError carries a non-success status code from the origin.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("server returned status %d for %s", e.StatusCode, e.URL)
}

// IntegrityError reports a post-download hash or size mismatch. Bytes
// were transferred; the output file is retained unless the engine is
// configured to remove corrupt results.
type IntegrityError struct {
	Path     string
	Kind     string // "hash" or "size"
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s validation failed for %s: expected %s, got %s", e.Kind, e.Path, e.Expected, e.Actual)
}

// PartialWriteError reports a stream that died mid-write. The temp file
// was removed; the destination was never touched.
type PartialWriteError struct {
	Path string
	Err  error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("partial write to %s: %v", e.Path, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }

// IsRetryable reports whether err may be resolved by resubmitting the
// same download.
func IsRetryable(err error) bool {
	var te *TransientError
	var to *TimeoutError
	return errors.As(err, &te) || errors.As(err, &to)
}
