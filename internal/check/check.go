// Package check verifies analytic derivatives against numerical estimates.
//
// Totals compares the chain-rule totals of a model with finite-difference or
// complex-step approximations of the whole model. Partials does the same for
// each component on its own. Both produce a Report that can be printed.
//
// Finite differences trade truncation error against round-off, so their
// relative error rarely drops below about 1e-6 with the default step.
// Complex step has no subtractive cancellation and agrees with exact
// derivatives to machine precision, but every component must implement
// ComputeComplex.
package check

import (
	"errors"
	"fmt"

	"github.com/born-ml/mdo/internal/component"
	"github.com/born-ml/mdo/internal/parallel"
	"github.com/born-ml/mdo/internal/totals"
	"go.uber.org/zap"
)

// Common errors.
var (
	ErrNoComplex = errors.New("check: complex step requested but a component lacks ComputeComplex")
	ErrBadMethod = errors.New("check: unknown method")
)

// Options configures a derivative check.
type Options struct {
	Method   component.Method // MethodFD or MethodCS (default: MethodFD)
	Form     component.Form   // FD form (default: Forward)
	Step     float64          // Step (default: 1e-6 for fd, 1e-40 for cs)
	RelTol   float64          // Relative tolerance (default: 1e-5 for fd, 1e-12 for cs)
	AbsTol   float64          // Absolute tolerance (default: 1e-10)
	Mode     totals.Mode      // Totals mode (default: Auto)
	Of       []string         // Totals rows (default: objectives then constraints)
	Wrt      []string         // Totals columns (default: design variables)
	Parallel parallel.Config  // Column evaluation (default: parallel.DefaultConfig())
	Logger   *zap.Logger      // Optional logger (default: no-op)
	Only     map[string]bool  // Partials: restrict to these components (default: all)
	Exclude  map[string]bool  // Partials: skip these components
}

func (o Options) withDefaults() (Options, error) {
	if o.Method == "" {
		o.Method = component.MethodFD
	}
	switch o.Method {
	case component.MethodFD:
		if o.Form == "" {
			o.Form = component.Forward
		}
		if o.Step == 0 {
			o.Step = component.DefaultFDStep
		}
		if o.RelTol == 0 {
			o.RelTol = 1e-5
		}
	case component.MethodCS:
		if o.Step == 0 {
			o.Step = component.DefaultCSStep
		}
		if o.RelTol == 0 {
			o.RelTol = 1e-12
		}
	default:
		return o, fmt.Errorf("%w %q", ErrBadMethod, o.Method)
	}
	if o.AbsTol == 0 {
		o.AbsTol = 1e-10
	}
	if o.Mode == "" {
		o.Mode = totals.Auto
	}
	if o.Parallel == (parallel.Config{}) {
		o.Parallel = parallel.DefaultConfig()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o, nil
}

// Label describes the approximation, e.g. "fd:forward" or "cs".
func (o Options) Label() string {
	if o.Method == component.MethodFD {
		return fmt.Sprintf("fd:%s", o.Form)
	}
	return string(o.Method)
}
