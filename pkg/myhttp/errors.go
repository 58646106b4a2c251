package myhttp

import (
	"fmt"
	"net/http"
)

// NetworkError is returned when all attempts of a request have failed.
// History holds the error of each attempt, in order.
type NetworkError struct {
	Method   string
	URL      string
	Attempts int
	History  []error
}

func (e *NetworkError) Error() string {
	if len(e.History) == 0 {
		return fmt.Sprintf("%s %s: failed after %d attempt(s)", e.Method, e.URL, e.Attempts)
	}
	return fmt.Sprintf("%s %s: failed after %d attempt(s): %s", e.Method, e.URL, e.Attempts, e.Last())
}

// Last returns the error of the last attempt
func (e *NetworkError) Last() error {
	if len(e.History) == 0 {
		return nil
	}
	return e.History[len(e.History)-1]
}

func (e *NetworkError) Unwrap() error {
	return e.Last()
}

// StatusError is an HTTP error status
type StatusError struct {
	StatusCode int    // HTTP status
	Message    string // Response body
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}
