package httputil

import (
	"net/http"
	"time"
)

const DefaultTimeout = 30 * time.Second

// NewClient returns an HTTP client with the given overall timeout.
// A zero timeout disables the client-level deadline; callers that manage
// per-request budgets via context pass 0.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
	}
}

// NewDefaultClient returns a client with the standard timeout.
func NewDefaultClient() *http.Client {
	return NewClient(DefaultTimeout)
}
