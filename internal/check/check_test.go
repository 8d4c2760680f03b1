package check_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/born-ml/mdo/internal/check"
	"github.com/born-ml/mdo/internal/component"
	"github.com/born-ml/mdo/internal/exec"
	"github.com/born-ml/mdo/internal/model"
	"github.com/born-ml/mdo/internal/parallel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// product is b = 2*a1*a2. When wrong is set, db/da2 is off by a factor of two.
type product struct{ wrong bool }

func (product) Setup(d *component.Declarations) error {
	d.AddInput("a1")
	d.AddInput("a2")
	d.AddOutput("b", component.WithRef(10, 0))
	d.DeclarePartials([]string{"b"}, []string{"a1", "a2"})
	return nil
}

func (product) Compute(in, out *component.Vector) error {
	out.Set("b", 2*in.Scalar("a1")*in.Scalar("a2"))
	return nil
}

func (p product) ComputePartials(in *component.Vector, j *component.Jacobian) error {
	j.Set("b", "a1", 2*in.Scalar("a2"))
	da2 := 2 * in.Scalar("a1")
	if p.wrong {
		da2 *= 2
	}
	j.Set("b", "a2", da2)
	return nil
}

// leaky declares only dy/dx but y also depends on z.
type leaky struct{}

func (leaky) Setup(d *component.Declarations) error {
	d.AddInput("x")
	d.AddInput("z")
	d.AddOutput("y")
	d.DeclarePartials([]string{"y"}, []string{"x"})
	return nil
}

func (leaky) Compute(in, out *component.Vector) error {
	out.Set("y", 3*in.Scalar("x")+in.Scalar("z"))
	return nil
}

func (leaky) ComputePartials(_ *component.Vector, j *component.Jacobian) error {
	j.Set("y", "x", 3)
	return nil
}

func build(t *testing.T, comp1 component.Explicit) (*model.System, *component.Vector) {
	t.Helper()
	g := model.NewGroup()
	g.AddSubsystem("comp_1", comp1, model.Promotes("*"))
	g.AddSubsystem("comp_2", exec.MustNew([]string{"c = 2*b"}), model.Promotes("*"))
	g.SetInputDefaults("a1", 1.0)
	g.SetInputDefaults("a2", 1.0)
	g.AddDesignVar("a1", model.Lower(0.5), model.Upper(1.5))
	g.AddDesignVar("a2", model.Lower(0.5), model.Upper(1.5))
	g.AddObjective("c")
	sys, err := g.Setup()
	require.NoError(t, err)
	st := sys.NewState()
	require.NoError(t, sys.Run(st))
	return sys, st
}

func TestTotals_Methods(t *testing.T) {
	sys, st := build(t, exec.MustNew([]string{"b = 2*a1*a2"}, exec.WithVarOptions("b", component.WithRef(10, 0))))

	cases := []check.Options{
		{Method: component.MethodFD},
		{Method: component.MethodFD, Form: component.Central},
		{Method: component.MethodFD, Form: component.Backward, Parallel: parallel.Sequential()},
		{Method: component.MethodCS},
	}
	for _, opts := range cases {
		t.Run(opts.Label(), func(t *testing.T) {
			r, err := check.Totals(context.Background(), sys, st, opts)
			require.NoError(t, err)
			require.Len(t, r.Entries, 2)
			assert.True(t, r.OK(), "failures: %+v", r.Failures())

			e, ok := r.Find("c", "a1")
			require.True(t, ok)
			assert.InDelta(t, 4.0, e.Analytic.At(0, 0), 1e-12)
			assert.InDelta(t, 4.0, e.Approx.At(0, 0), 1e-5)
		})
	}
}

func TestTotals_ComplexStepIsExact(t *testing.T) {
	sys, st := build(t, exec.MustNew([]string{"b = 2*a1*a2"}))
	r, err := check.Totals(context.Background(), sys, st, check.Options{Method: component.MethodCS})
	require.NoError(t, err)
	for _, e := range r.Entries {
		assert.Less(t, e.RelErr, 1e-14, "%s wrt %s", e.Of, e.Wrt)
	}
}

func TestTotals_DetectsWrongPartials(t *testing.T) {
	sys, st := build(t, product{wrong: true})
	r, err := check.Totals(context.Background(), sys, st, check.Options{})
	require.NoError(t, err)
	assert.False(t, r.OK())

	failures := r.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "a2", failures[0].Wrt)
	assert.InDelta(t, 8.0, failures[0].Analytic.At(0, 0), 1e-12)
	assert.InDelta(t, 4.0, failures[0].Approx.At(0, 0), 1e-5)
}

func TestTotals_ComplexStepNeedsComplexComponents(t *testing.T) {
	sys, st := build(t, product{})
	_, err := check.Totals(context.Background(), sys, st, check.Options{Method: component.MethodCS})
	assert.ErrorIs(t, err, check.ErrNoComplex)

	_, err = check.Totals(context.Background(), sys, st, check.Options{Method: "magic"})
	assert.ErrorIs(t, err, check.ErrBadMethod)
}

func TestPartials(t *testing.T) {
	sys, st := build(t, product{wrong: true})
	r, err := check.Partials(context.Background(), sys, st, check.Options{})
	require.NoError(t, err)

	require.Len(t, r.Entries, 3)
	e, ok := r.Find("b", "a1")
	require.True(t, ok)
	assert.True(t, e.OK)
	assert.Equal(t, "comp_1", e.Component)

	e, ok = r.Find("b", "a2")
	require.True(t, ok)
	assert.False(t, e.OK)

	e, ok = r.Find("c", "b")
	require.True(t, ok)
	assert.True(t, e.OK)
	assert.Equal(t, "comp_2", e.Component)
}

func TestPartials_Filters(t *testing.T) {
	sys, st := build(t, product{wrong: true})
	r, err := check.Partials(context.Background(), sys, st, check.Options{Exclude: map[string]bool{"comp_1": true}})
	require.NoError(t, err)
	assert.True(t, r.OK())
	require.Len(t, r.Entries, 1)

	r, err = check.Partials(context.Background(), sys, st, check.Options{Only: map[string]bool{"comp_1": true}})
	require.NoError(t, err)
	assert.Len(t, r.Entries, 2)
}

func TestPartials_UndeclaredDependency(t *testing.T) {
	g := model.NewGroup()
	g.AddSubsystem("leak", leaky{}, model.Promotes("*"))
	sys, err := g.Setup()
	require.NoError(t, err)
	st := sys.NewState()
	require.NoError(t, sys.Run(st))

	r, err := check.Partials(context.Background(), sys, st, check.Options{})
	require.NoError(t, err)

	e, ok := r.Find("y", "z")
	require.True(t, ok)
	assert.False(t, e.Declared)
	assert.False(t, e.OK)

	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf))
	assert.Contains(t, buf.String(), "Partial derivatives check (fd:forward")
	assert.Contains(t, buf.String(), "MISMATCH (undeclared)")
}

func TestReport_Write(t *testing.T) {
	sys, st := build(t, product{})
	r, err := check.Totals(context.Background(), sys, st, check.Options{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf))
	out := buf.String()
	assert.Contains(t, out, "Total derivatives check")
	assert.Contains(t, out, "a1")
	assert.NotContains(t, out, "MISMATCH")
}
