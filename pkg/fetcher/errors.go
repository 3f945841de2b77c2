package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Common errors returned by the fetcher.
var (
	// ErrRateLimited is returned when the 429 backoff budget is exhausted.
	ErrRateLimited = errors.New("rate limit backoff exhausted")

	// ErrTimeout is returned when a single request exceeded its deadline
	// and all retries were exhausted.
	ErrTimeout = errors.New("request timed out")

	// ErrContextCancelled is returned when the caller's context is
	// cancelled during a backoff wait.
	ErrContextCancelled = errors.New("context cancelled")
)

// UpstreamError is a non-success upstream response or a malformed body.
// The caller decides whether it is fatal to the whole query or only to one
// partition/page.
type UpstreamError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error (status %d): %s", e.StatusCode, e.Body)
}

// isTimeout reports whether err represents a request deadline expiry.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
