package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedResponse marks an upstream body that does not match the
	// expected JSON shape.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrUnknownFeed is returned for a feed key with no site profile.
	ErrUnknownFeed = errors.New("unknown feed")
)

// FetchError is a failed upstream request: a non-success status, a transport
// failure, or a timeout.
type FetchError struct {
	Status  int
	Body    string
	Timeout bool
	Cause   error
}

func (e *FetchError) Error() string {
	switch {
	case e.Timeout:
		return "fetch timed out"
	case e.Status != 0 && e.Body != "":
		return fmt.Sprintf("upstream status %d: %s", e.Status, e.Body)
	case e.Status != 0:
		return fmt.Sprintf("upstream status %d", e.Status)
	case e.Cause != nil:
		return "fetch: " + e.Cause.Error()
	default:
		return "fetch failed"
	}
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}
