package metrics

import (
	"errors"
	"fmt"
)

// ErrInsufficientData is matched by every *InsufficientDataError.
var ErrInsufficientData = errors.New("insufficient data")

// InsufficientDataError reports that a correlation could not be computed:
// fewer than two paired observations, or a series without variance.
type InsufficientDataError struct {
	Year   int
	Pairs  int
	Reason string
}

func (e *InsufficientDataError) Error() string {
	msg := fmt.Sprintf("insufficient data for correlation in %d: %d paired regions", e.Year, e.Pairs)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}
