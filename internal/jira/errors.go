package jira

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is returned by FindIssue when the key does not exist.
var ErrNotFound = errors.New("issue not found")

// APIError is a non-2xx response from Jira. Transient errors are
// retried with backoff; the rest fail the current operation
// immediately and the pass moves on to the next record.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jira: HTTP %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the request is worth retrying: rate limits
// and server-side failures are, auth and validation failures are not.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsFatal reports whether err is a Jira auth or validation failure that
// no amount of retrying will fix.
func IsFatal(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && !apiErr.Transient()
}
