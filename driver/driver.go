// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package driver runs optimizers over a problem.
//
// OptimizeDriver supports SLSQP for bound and general constraints, and
// BFGS, LBFGS, NelderMead and GradientDescent for unconstrained problems:
//
//	drv, err := driver.NewOptimizeDriver(driver.Options{
//	    Optimizer: driver.SLSQP,
//	    MaxIter:   200,
//	    Tol:       1e-6,
//	}, logger)
package driver

import (
	"github.com/born-ml/mdo/internal/driver"
	"go.uber.org/zap"
)

// Optimizer names.
const (
	SLSQP           = driver.SLSQP
	BFGS            = driver.BFGS
	LBFGS           = driver.LBFGS
	NelderMead      = driver.NelderMead
	GradientDescent = driver.GradientDescent
)

// Driver runs an optimization over a target.
type Driver = driver.Driver

// Target is what a driver optimizes.
type Target = driver.Target

// Options configures OptimizeDriver.
type Options = driver.Options

// Result summarizes a driver run.
type Result = driver.Result

// OptimizeDriver runs a gradient-based optimizer on a target.
type OptimizeDriver = driver.OptimizeDriver

// Errors returned by drivers.
var (
	ErrUnknownOptimizer       = driver.ErrUnknownOptimizer
	ErrConstraintsUnsupported = driver.ErrConstraintsUnsupported
	ErrNoDesignVars           = driver.ErrNoDesignVars
)

// DefaultOptions returns SLSQP with 200 iterations and tolerance 1e-6.
func DefaultOptions() Options {
	return driver.DefaultOptions()
}

// NewOptimizeDriver validates opts and returns a driver. A nil logger
// disables logging.
func NewOptimizeDriver(opts Options, logger *zap.Logger) (*OptimizeDriver, error) {
	return driver.NewOptimizeDriver(opts, logger)
}
