package quoteapi

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited is returned when the provider throttles us (HTTP 429 or a "Note"/"Information" body).
	ErrRateLimited = errors.New("rate limited")
	// ErrTransient covers network failures, timeouts, 5xx and bodies that are not JSON.
	ErrTransient = errors.New("transient failure")
	// ErrProvider means the provider rejected the request; retrying will not help.
	ErrProvider = errors.New("provider rejected request")
)

// FetchError is returned by Client.Fetch once retries are exhausted or a
// permanent failure is hit.
type FetchError struct {
	Symbol   string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.Symbol, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
