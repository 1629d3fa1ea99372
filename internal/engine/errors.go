package engine

import (
	"errors"
	"fmt"
)

// ErrUnauthorized marks a non-approver invoking an approver-only operation.
// The caller gets a denial message; nothing mutates.
var ErrUnauthorized = errors.New("unauthorized")

// ValidationError carries the user-facing message for a refused request.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
