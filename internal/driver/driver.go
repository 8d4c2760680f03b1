// Package driver runs optimizers against a model.
//
// A Driver sees the model only through Target, which works in driver space:
// design variables, objective and constraints are flattened to float64
// slices and already scaled. The problem package provides the Target that
// runs the model and computes totals.
package driver

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Common errors.
var (
	ErrUnknownOptimizer       = errors.New("driver: unknown optimizer")
	ErrConstraintsUnsupported = errors.New("driver: optimizer does not support constraints")
	ErrNoDesignVars           = errors.New("driver: no design variables")
)

// Design describes the flattened design vector.
type Design struct {
	Names []string // Design variable names in order
	Sizes []int    // Elements per design variable
	X0    []float64
	Lower []float64 // -Inf when unbounded
	Upper []float64 // +Inf when unbounded
}

// Len returns the number of design elements.
func (d Design) Len() int {
	return len(d.X0)
}

// Bounded reports whether any element has a finite bound.
func (d Design) Bounded() bool {
	for i := range d.X0 {
		if !math.IsInf(d.Lower[i], -1) || !math.IsInf(d.Upper[i], 1) {
			return true
		}
	}
	return false
}

// Constraint describes one flattened constraint block in driver space.
type Constraint struct {
	Name     string
	Size     int
	Equality bool
	Equals   float64
	Lower    float64 // -Inf when absent
	Upper    float64 // +Inf when absent
}

// Target is the model as seen by a driver.
type Target interface {
	Design() Design
	Objective() string
	Constraints() []Constraint

	// Evaluate runs the model at x and returns the objective and the
	// constraint values, flattened in Constraints order.
	Evaluate(ctx context.Context, x []float64) (float64, []float64, error)

	// Gradient returns the objective gradient and the constraint Jacobian
	// (nil without constraints) at x.
	Gradient(ctx context.Context, x []float64) ([]float64, *mat.Dense, error)
}

// Result is the outcome of a driver run.
type Result struct {
	Optimizer  string
	Success    bool
	Message    string
	Iterations int
	FuncEvals  int
	GradEvals  int
	X          []float64 // Final design, driver space
	Objective  float64   // Final objective, driver space
}

// Driver runs an optimization.
type Driver interface {
	Run(ctx context.Context, t Target) (*Result, error)
}
