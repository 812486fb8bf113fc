package common

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the venue does not know the requested
	// order or instrument.
	ErrNotFound = errors.New("exchange: not found")

	// ErrRateLimited is returned when the venue rejects a call for
	// exceeding its request limits.
	ErrRateLimited = errors.New("exchange: rate limited")
)

// APIError carries a venue-reported failure code and message.
type APIError struct {
	Op   string // which venue operation failed
	Code string // venue error code, "0" means success
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange: %s failed: code=%s msg=%s", e.Op, e.Code, e.Msg)
}

// IsAPIError reports whether err wraps a venue-reported failure and
// returns it when so.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
