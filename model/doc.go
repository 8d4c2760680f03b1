// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package model assembles components into a group and resolves it into a
// runnable system.
//
// Subsystems are added in order. Promoted variables share a name in the
// group; inputs with the same promoted name are driven by one source, and
// unconnected inputs get an automatic independent output. Design variables,
// objectives and constraints are registered by name and take scaling
// options:
//
//	g := model.NewGroup()
//	g.AddSubsystem("comp_1", product, model.Promotes("*"))
//	g.AddSubsystem("comp_2", doubler, model.Promotes("*"))
//	g.AddDesignVar("a1", model.Lower(0.5), model.Upper(1.5))
//	g.AddObjective("c", model.Ref(10))
//
// Scaled values are (physical + adder) * scaler. Ref and Ref0 set the
// scaler and adder so that Ref0 maps to 0 and Ref maps to 1.
package model
