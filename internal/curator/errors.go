package curator

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport marks network, timeout and non-200 failures while fetching a page.
	ErrTransport = errors.New("curator transport error")
	// ErrParse marks a page response that could not be decoded.
	ErrParse = errors.New("curator parse error")
)

// StatusError is returned when the curator endpoint answers with a non-200 status.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s", e.StatusCode, e.URL)
}

// Unwrap lets callers match a StatusError against ErrTransport.
func (e *StatusError) Unwrap() error {
	return ErrTransport
}
