package tracker

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by StartTest once the tracker has been closed.
var ErrClosed = errors.New("tracker is closed")

// ValidationError reports a command rejected before any record was touched.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// transitionError marks a rejected state change. It never leaves the package:
// rejected transitions are logged and treated as no-ops.
type transitionError struct {
	id       string
	from, to string
}

func (e *transitionError) Error() string {
	return fmt.Sprintf("test %s: illegal transition %s -> %s", e.id, e.from, e.to)
}
