// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package component defines the explicit components a model is built from.
//
// # Overview
//
// An explicit component declares its inputs, outputs and partial
// derivatives in Setup, computes outputs from inputs in Compute, and may
// provide exact partials through ComputePartials. Partials declared with
// MethodFD or MethodCS are approximated instead.
//
// # Basic Usage
//
//	type Product struct{}
//
//	func (Product) Setup(d *component.Declarations) error {
//	    d.AddInput("a1")
//	    d.AddInput("a2")
//	    d.AddOutput("b", component.WithRef(10, 0))
//	    d.DeclarePartials([]string{"b"}, []string{"a1", "a2"})
//	    return nil
//	}
//
//	func (Product) Compute(in, out *component.Vector) error {
//	    out.Set("b", 2*in.Scalar("a1")*in.Scalar("a2"))
//	    return nil
//	}
//
//	func (Product) ComputePartials(in *component.Vector, j *component.Jacobian) error {
//	    j.Set("b", "a1", 2*in.Scalar("a2"))
//	    j.Set("b", "a2", 2*in.Scalar("a1"))
//	    return nil
//	}
//
// # Equations
//
// Components with closed-form outputs can be written as equations instead:
//
//	comp, err := component.NewExec([]string{"c = 2*b"})
//
// Equation components use complex-step partials, exact to machine precision.
package component
