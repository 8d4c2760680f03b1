package model

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrDuplicateSubsystem = errors.New("duplicate subsystem name")
	ErrBadName            = errors.New("invalid name")
	ErrUnknownVar         = errors.New("unknown variable")
	ErrPromotionConflict  = errors.New("promoted output name used twice")
	ErrAlreadyConnected   = errors.New("input already has a source")
	ErrSizeMismatch       = errors.New("connected variables differ in size")
	ErrCycle              = errors.New("component graph has a cycle")
	ErrNotIndependent     = errors.New("design variable is not an independent variable")
	ErrDuplicateResponse  = errors.New("variable registered twice")
	ErrNoBounds           = errors.New("constraint needs equals, lower or upper")
	ErrBadScaling         = errors.New("invalid scaling")
)

// SetupError reports a model wiring problem found during Setup.
type SetupError struct {
	Var     string // Variable or subsystem involved, if any
	Details string
	Err     error
}

// Error implements the error interface.
func (e *SetupError) Error() string {
	switch {
	case e.Var != "" && e.Details != "":
		return fmt.Sprintf("setup: %q: %v: %s", e.Var, e.Err, e.Details)
	case e.Var != "":
		return fmt.Sprintf("setup: %q: %v", e.Var, e.Err)
	case e.Details != "":
		return fmt.Sprintf("setup: %v: %s", e.Err, e.Details)
	}
	return fmt.Sprintf("setup: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *SetupError) Unwrap() error {
	return e.Err
}

func setupErr(name string, err error, format string, args ...any) *SetupError {
	return &SetupError{Var: name, Err: err, Details: fmt.Sprintf(format, args...)}
}
