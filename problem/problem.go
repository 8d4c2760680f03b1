// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package problem

import (
	"github.com/born-ml/mdo/internal/check"
	"github.com/born-ml/mdo/internal/config"
	"github.com/born-ml/mdo/internal/model"
	"github.com/born-ml/mdo/internal/problem"
	"github.com/born-ml/mdo/internal/recorder"
	"github.com/born-ml/mdo/internal/totals"
	"go.uber.org/zap"
)

// Problem is a model plus the machinery to run and differentiate it.
type Problem = problem.Problem

// Option configures a Problem.
type Option = problem.Option

// CheckOptions configures derivative checks.
type CheckOptions = check.Options

// Report is the result of a derivative check.
type Report = check.Report

// Totals is a total derivative Jacobian.
type Totals = totals.Totals

// Recorder stores driver cases in SQLite.
type Recorder = recorder.Recorder

// Errors returned by Problem.
var (
	ErrNotSetup     = problem.ErrNotSetup
	ErrObjective    = problem.ErrObjective
	ErrSizeMismatch = problem.ErrSizeMismatch
)

// Options.
var (
	WithDriver   = problem.WithDriver
	WithLogger   = problem.WithLogger
	WithRecorder = problem.WithRecorder
	WithName     = problem.WithName
)

// New creates a problem around g.
func New(g *model.Group, opts ...Option) *Problem {
	return problem.New(g, opts...)
}

// Load reads a YAML problem file and returns the problem, not yet set up.
func Load(path string, logger *zap.Logger, opts ...Option) (*Problem, error) {
	f, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return f.Build(logger, opts...)
}

// OpenRecorder opens or creates a case database. A nil logger disables
// logging.
func OpenRecorder(path string, logger *zap.Logger) (*Recorder, error) {
	return recorder.Open(path, logger)
}
