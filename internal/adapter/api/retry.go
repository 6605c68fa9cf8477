package api

import (
	"math"
	"net/http"
	"time"
)

// RetryPolicy decides which failed attempts are retried and how long to
// wait before each retry.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BackoffFactor scales the wait before retry n to factor * 2^(n-1) seconds.
	BackoffFactor float64
	// MaxBackoff caps a single wait.
	MaxBackoff time.Duration
	// RetryableStatus lists the HTTP statuses worth retrying.
	RetryableStatus map[int]bool
}

// DefaultRetryPolicy returns three attempts with a backoff factor of one
// second, retrying gateway and server errors.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		BackoffFactor:   1.0,
		MaxBackoff:      120 * time.Second,
		RetryableStatus: DefaultRetryableStatus(),
	}
}

// DefaultRetryableStatus returns {500, 502, 503, 504}.
func DefaultRetryableStatus() map[int]bool {
	return map[int]bool{
		http.StatusInternalServerError: true,
		http.StatusBadGateway:          true,
		http.StatusServiceUnavailable:  true,
		http.StatusGatewayTimeout:      true,
	}
}

// ShouldRetry reports whether an attempt that ended with status (0 when no
// response arrived) or transportErr is worth retrying. It does not consider
// the attempt budget.
func (p RetryPolicy) ShouldRetry(status int, transportErr error) bool {
	if transportErr != nil {
		return true
	}
	return p.RetryableStatus[status]
}

// Backoff returns the wait before retry n, where n counts from 1. Waits never
// shrink as n grows.
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n < 1 || p.BackoffFactor <= 0 {
		return 0
	}
	secs := p.BackoffFactor * math.Exp2(float64(n-1))
	if p.MaxBackoff > 0 && secs >= p.MaxBackoff.Seconds() {
		return p.MaxBackoff
	}
	return time.Duration(secs * float64(time.Second))
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}
