package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for joint-control components.
var (
	// ErrInvalidParameter indicates a configuration value outside its valid range.
	ErrInvalidParameter = errors.New("dynamo: invalid parameter")

	// ErrInvalidState indicates an operation invoked before the component was set up.
	ErrInvalidState = errors.New("dynamo: invalid state (component not set up)")

	// ErrSizeMismatch indicates a per-tick vector whose length differs from the joint count.
	ErrSizeMismatch = errors.New("dynamo: size mismatch between input and configured joints")
)

// TickError wraps an error with the tick it happened on.
type TickError struct {
	Tick    uint64
	Wrapped error
}

func (e *TickError) Error() string {
	return fmt.Sprintf("tick %d: %v", e.Tick, e.Wrapped)
}

func (e *TickError) Unwrap() error {
	return e.Wrapped
}

// Invalid wraps ErrInvalidParameter with a formatted reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidParameter)
}

// Mismatch wraps ErrSizeMismatch with the offending lengths.
func Mismatch(what string, got, want int) error {
	return fmt.Errorf("%s has length %d, want %d: %w", what, got, want, ErrSizeMismatch)
}
