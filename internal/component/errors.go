package component

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrDuplicateVar   = errors.New("variable declared twice")
	ErrUndeclaredVar  = errors.New("variable not declared")
	ErrBadSize        = errors.New("value size does not match declaration")
	ErrNoPartials     = errors.New("exact partials declared but component does not implement ComputePartials")
	ErrNoComplex      = errors.New("component does not implement ComputeComplex")
	ErrPartialUnknown = errors.New("partial not declared")
	ErrNoMatch        = errors.New("pattern matches no variable")
	ErrBadMethod      = errors.New("unknown partial method")
)

// Error reports a failure inside a component.
type Error struct {
	Component string // Component name, filled in by the owning model
	Op        string // Operation that failed (e.g., "setup", "compute")
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("component %q: %s: %v", e.Component, e.Op, e.Err)
	}
	return fmt.Sprintf("component: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithComponent returns err tagged with the component name if it is an *Error.
func WithComponent(err error, name string) error {
	var ce *Error
	if errors.As(err, &ce) && ce.Component == "" {
		tagged := *ce
		tagged.Component = name
		return &tagged
	}
	return err
}
