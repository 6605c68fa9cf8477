package api

import (
	"errors"
	"fmt"
)

// ErrAPI is the classified failure for any unsuccessful outages API call.
// Callers match it with errors.Is; the attached cause is for logging only.
var ErrAPI = errors.New("failed to communicate with the outages API")

// APIError describes a failed API call after retries, if any, were spent.
type APIError struct {
	Method     string
	Route      string
	StatusCode int // last HTTP status seen, 0 when no response was received
	Attempts   int
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s %s: status %d after %d attempt(s): %v",
			ErrAPI, e.Method, e.Route, e.StatusCode, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s: %s %s after %d attempt(s): %v",
		ErrAPI, e.Method, e.Route, e.Attempts, e.Err)
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrAPI.
func (e *APIError) Is(target error) bool {
	return target == ErrAPI
}
