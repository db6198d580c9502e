package contentapi

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError reports a non-2xx response from the content backend.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("content api %s failed: %s", e.Endpoint, e.Status)
}

// Retryable reports whether another attempt may succeed.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ErrNotFound is matched by 404 responses.
var ErrNotFound = errors.New("content api: not found")

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// isClientError is true for 4xx other than 429; those are the caller's fault and
// do not count against the circuit breaker.
func isClientError(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode >= 400 && se.StatusCode < 500 && se.StatusCode != http.StatusTooManyRequests
}
