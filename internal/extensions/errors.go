package extensions

import (
	"fmt"
)

// SpecializationError reports a generic id that cannot be specialized with
// the given arguments.
type SpecializationError struct {
	GenericID string
	Message   string
}

func (e *SpecializationError) Error() string {
	return fmt.Sprintf("%s: %s", e.GenericID, e.Message)
}

func specErr(generic, format string, args ...any) *SpecializationError {
	return &SpecializationError{GenericID: generic, Message: fmt.Sprintf(format, args...)}
}
