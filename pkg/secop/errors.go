package secop

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidLimit = errors.New("limit must be a positive integer")
	ErrNotArray     = errors.New("payload is not a JSON array of objects")
)

// ConnectionError reports a transport failure or a non-2xx response from the
// data source. StatusCode is 0 when no response was received.
type ConnectionError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *ConnectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("connection error: %s returned HTTP %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("connection error: %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// UnexpectedError reports any other failure at the loader boundary, such as a
// malformed payload.
type UnexpectedError struct {
	Err error
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected error: %v", e.Err)
}

func (e *UnexpectedError) Unwrap() error { return e.Err }
