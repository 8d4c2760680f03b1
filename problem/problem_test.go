// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package problem_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/born-ml/mdo/component"
	"github.com/born-ml/mdo/driver"
	"github.com/born-ml/mdo/model"
	"github.com/born-ml/mdo/problem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ConstrainedParaboloid(t *testing.T) {
	ctx := context.Background()
	rec, err := problem.OpenRecorder(filepath.Join(t.TempDir(), "cases.db"), nil)
	require.NoError(t, err)

	p, err := problem.Load(filepath.Join("..", "examples", "paraboloid", "problem.yaml"), nil, problem.WithRecorder(rec))
	require.NoError(t, err)
	require.NoError(t, p.Setup())

	res, err := p.RunDriver(ctx)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	// The unconstrained minimum has x + y < 0, so g >= 0 is active.
	assert.InDelta(t, 7.0, p.MustGetScalar("x"), 1e-5)
	assert.InDelta(t, -7.0, p.MustGetScalar("y"), 1e-5)
	assert.InDelta(t, -27.0, p.MustGetScalar("f"), 1e-5)

	report, err := p.CheckTotals(ctx, problem.CheckOptions{Method: component.MethodCS})
	require.NoError(t, err)
	assert.True(t, report.OK(), "%+v", report.Failures())
	require.NoError(t, p.Final())
}

func TestNew_ExecComponents(t *testing.T) {
	ctx := context.Background()
	comp1, err := component.NewExec([]string{"b = 2*a1*a2"},
		component.WithVarOptions("b", component.WithRef(10, 0)))
	require.NoError(t, err)
	comp2, err := component.NewExec([]string{"c = 2*b"})
	require.NoError(t, err)

	g := model.NewGroup()
	g.AddSubsystem("comp_1", comp1, model.Promotes("*"))
	g.AddSubsystem("comp_2", comp2, model.Promotes("*"))
	g.AddDesignVar("a1", model.Lower(0.5), model.Upper(1.5))
	g.AddDesignVar("a2", model.Lower(0.5), model.Upper(1.5))
	g.SetInputDefaults("a1", 1.0)
	g.SetInputDefaults("a2", 1.0)
	g.AddObjective("c")

	drv, err := driver.NewOptimizeDriver(driver.DefaultOptions(), nil)
	require.NoError(t, err)
	p := problem.New(g, problem.WithDriver(drv))
	require.NoError(t, p.Setup())

	tot, err := p.ComputeTotals(ctx, nil, nil)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, tot.At("c", "a1", 0, 0), 1e-12)

	res, err := p.RunDriver(ctx)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	assert.InDelta(t, 1.0, p.MustGetScalar("c"), 1e-8)
}

func TestErrors(t *testing.T) {
	p := problem.New(model.NewGroup())
	assert.ErrorIs(t, p.SetVal("x", 1), problem.ErrNotSetup)

	_, err := driver.NewOptimizeDriver(driver.Options{Optimizer: "nope"}, nil)
	assert.ErrorIs(t, err, driver.ErrUnknownOptimizer)
}
