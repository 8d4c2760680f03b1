// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package problem is the entry point for building, running and checking
// an optimization problem.
//
// # Basic Usage
//
//	g := model.NewGroup()
//	// add subsystems, design variables and an objective
//
//	drv, _ := driver.NewOptimizeDriver(driver.DefaultOptions(), logger)
//	p := problem.New(g, problem.WithDriver(drv), problem.WithLogger(logger))
//	if err := p.Setup(); err != nil {
//	    return err
//	}
//	res, err := p.RunDriver(ctx)
//
//	// Analytic totals against finite differences.
//	report, err := p.CheckTotals(ctx, problem.CheckOptions{Method: component.MethodFD})
//	report.Write(os.Stdout)
//
// # Problem Files
//
// Problems can also be described in YAML and loaded with Load:
//
//	p, err := problem.Load("problem.yaml", logger)
//
// # Recording
//
// WithRecorder stores every driver evaluation in a SQLite database opened
// with OpenRecorder.
package problem
