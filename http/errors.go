package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrCircuitOpen is returned when requests to a host are being short-circuited.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// StatusError records an upstream response the breaker counts as a failure.
type StatusError struct {
	Host       string
	StatusCode int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: status %d, retry after %v", e.Host, e.StatusCode, e.RetryAfter)
	}
	return fmt.Sprintf("%s: status %d", e.Host, e.StatusCode)
}

// RateLimited reports whether the upstream asked us to slow down.
func (e *StatusError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusServiceUnavailable
}

// IsTransient reports whether err should count towards opening a circuit.
// 5xx and 429 responses and transport failures are transient; other 4xx
// responses are the caller's fault and are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
