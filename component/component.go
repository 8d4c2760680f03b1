// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package component

import (
	"github.com/born-ml/mdo/internal/component"
	"github.com/born-ml/mdo/internal/exec"
)

// Explicit is a component whose outputs are explicit functions of its inputs.
type Explicit = component.Explicit

// PartialsComputer provides exact partial derivatives.
type PartialsComputer = component.PartialsComputer

// ComplexComputer evaluates a component over complex inputs for complex step.
type ComplexComputer = component.ComplexComputer

// Declarations collects what a component declares in Setup.
type Declarations = component.Declarations

// Vector holds named float64 values.
type Vector = component.Vector

// ComplexVector holds named complex128 values.
type ComplexVector = component.ComplexVector

// Jacobian holds partial derivative blocks keyed by (of, wrt).
type Jacobian = component.Jacobian

// VarMeta describes a declared variable.
type VarMeta = component.VarMeta

// VarOption configures a declared variable.
type VarOption = component.VarOption

// PartialOption configures a partial declaration.
type PartialOption = component.PartialOption

// Method selects how a partial derivative is obtained.
type Method = component.Method

// Form selects the finite-difference formula.
type Form = component.Form

// Partial methods.
const (
	MethodExact = component.MethodExact
	MethodFD    = component.MethodFD
	MethodCS    = component.MethodCS
)

// Finite-difference forms.
const (
	Forward  = component.Forward
	Backward = component.Backward
	Central  = component.Central
)

// Variable options.
var (
	WithSize   = component.WithSize
	WithVal    = component.WithVal
	WithRef    = component.WithRef
	WithBounds = component.WithBounds
	WithUnits  = component.WithUnits
	WithDesc   = component.WithDesc
)

// Partial options.
var (
	WithMethod = component.WithMethod
	WithStep   = component.WithStep
	WithForm   = component.WithForm
)

// Exec is a component defined by equations.
type Exec = exec.Comp

// ExecOption configures an equation component.
type ExecOption = exec.Option

// WithVarOptions attaches declaration options to an equation variable.
func WithVarOptions(name string, opts ...VarOption) ExecOption {
	return exec.WithVarOptions(name, opts...)
}

// NewExec parses equations of the form "lhs = rhs" into a component.
//
// Example:
//
//	comp, err := component.NewExec(
//	    []string{"b = 2*a1*a2"},
//	    component.WithVarOptions("b", component.WithRef(10, 0)),
//	)
func NewExec(equations []string, opts ...ExecOption) (*Exec, error) {
	return exec.New(equations, opts...)
}
