// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package model

import "github.com/born-ml/mdo/internal/model"

// Group is an ordered collection of subsystems.
type Group = model.Group

// System is a group after setup.
type System = model.System

// SubsystemOption configures how a subsystem is added.
type SubsystemOption = model.SubsystemOption

// Option configures a design variable, objective or constraint.
type Option = model.Option

// DesignVar is a resolved design variable.
type DesignVar = model.DesignVar

// Response is a resolved objective or constraint.
type Response = model.Response

// Scaling maps physical values to driver values.
type Scaling = model.Scaling

// SetupError describes why a group could not be set up.
type SetupError = model.SetupError

// AutoIVC is the name of the subsystem that owns automatic independent outputs.
const AutoIVC = model.AutoIVC

// NewGroup returns an empty group.
func NewGroup() *Group {
	return model.NewGroup()
}

// Promotion options.
var (
	Promotes        = model.Promotes
	PromotesInputs  = model.PromotesInputs
	PromotesOutputs = model.PromotesOutputs
)

// Bound and scaling options.
var (
	Lower  = model.Lower
	Upper  = model.Upper
	Equals = model.Equals
	Ref    = model.Ref
	Ref0   = model.Ref0
	Scaler = model.Scaler
	Adder  = model.Adder
)
