package problem_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/born-ml/mdo/internal/check"
	"github.com/born-ml/mdo/internal/component"
	"github.com/born-ml/mdo/internal/driver"
	"github.com/born-ml/mdo/internal/model"
	"github.com/born-ml/mdo/internal/problem"
	"github.com/born-ml/mdo/internal/recorder"
	"github.com/born-ml/mdo/internal/repro"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slsqp(t *testing.T) *driver.OptimizeDriver {
	t.Helper()
	d, err := driver.NewOptimizeDriver(driver.Options{Optimizer: driver.SLSQP}, nil)
	require.NoError(t, err)
	return d
}

func TestProblem_ReproScenario(t *testing.T) {
	ctx := context.Background()
	for _, ref := range []float64{1, 10, 0.01} {
		p := problem.New(repro.NewModel(ref), problem.WithDriver(slsqp(t)))
		require.NoError(t, p.Setup())
		p.SetSolverPrint(0)

		res, err := p.RunDriver(ctx)
		require.NoError(t, err)
		require.True(t, res.Success, "ref=%g: %s", ref, res.Message)

		assert.InDelta(t, 0.5, p.MustGetScalar("a1"), 1e-8, "ref=%g", ref)
		assert.InDelta(t, 0.5, p.MustGetScalar("a2"), 1e-8, "ref=%g", ref)
		assert.InDelta(t, 1.0, p.MustGetScalar("c"), 1e-8, "ref=%g", ref)

		tot, err := p.ComputeTotals(ctx, nil, nil)
		require.NoError(t, err)
		assert.InDelta(t, 2.0, tot.At("c", "a1", 0, 0), 1e-8)
		assert.InDelta(t, 2.0, tot.At("c", "a2", 0, 0), 1e-8)

		for _, method := range []component.Method{component.MethodFD, component.MethodCS} {
			report, err := p.CheckTotals(ctx, check.Options{Method: method})
			require.NoError(t, err)
			assert.True(t, report.OK(), "ref=%g method=%s: %+v", ref, method, report.Failures())
			require.Len(t, report.Entries, 2)
		}
		require.NoError(t, p.Final())
	}
}

func TestProblem_CheckPartials(t *testing.T) {
	p := problem.New(repro.NewModel(1))
	require.NoError(t, p.Setup())

	report, err := p.CheckPartials(context.Background(), check.Options{Method: component.MethodCS})
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Len(t, report.Entries, 3)
}

func TestProblem_SetValGetVal(t *testing.T) {
	ctx := context.Background()
	p := problem.New(repro.NewModel(1))
	require.NoError(t, p.Setup())

	require.NoError(t, p.SetVal("a1", 1.5))
	require.NoError(t, p.SetVal("comp_1.a2", 0.75))
	require.NoError(t, p.RunModel(ctx))
	assert.InDelta(t, 4.5, p.MustGetScalar("c"), 1e-15)

	v, err := p.GetVal("comp_2.b")
	require.NoError(t, err)
	assert.Equal(t, []float64{2.25}, v)

	// Totals rerun the model after a change.
	require.NoError(t, p.SetVal("a2", 1.0))
	tot, err := p.ComputeTotals(ctx, []string{"c"}, []string{"a1"})
	require.NoError(t, err)
	assert.InDelta(t, 4.0, tot.At("c", "a1", 0, 0), 1e-15)
	assert.InDelta(t, 6.0, p.MustGetScalar("c"), 1e-15)

	assert.ErrorIs(t, p.SetVal("a1", 1, 2), problem.ErrSizeMismatch)
	assert.ErrorIs(t, p.SetVal("nope", 1), model.ErrUnknownVar)
}

func TestProblem_NotSetup(t *testing.T) {
	ctx := context.Background()
	p := problem.New(repro.NewModel(1))

	assert.ErrorIs(t, p.SetVal("a1", 1), problem.ErrNotSetup)
	_, err := p.GetVal("a1")
	assert.ErrorIs(t, err, problem.ErrNotSetup)
	assert.ErrorIs(t, p.RunModel(ctx), problem.ErrNotSetup)
	_, err = p.RunDriver(ctx)
	assert.ErrorIs(t, err, problem.ErrNotSetup)
	_, err = p.ComputeTotals(ctx, nil, nil)
	assert.ErrorIs(t, err, problem.ErrNotSetup)
	_, err = p.CheckTotals(ctx, check.Options{})
	assert.ErrorIs(t, err, problem.ErrNotSetup)
	_, err = p.CheckPartials(ctx, check.Options{})
	assert.ErrorIs(t, err, problem.ErrNotSetup)
}

func TestProblem_RunDriverWithoutDriverRunsModel(t *testing.T) {
	p := problem.New(repro.NewModel(1))
	require.NoError(t, p.Setup())
	res, err := p.RunDriver(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.InDelta(t, 4.0, p.MustGetScalar("c"), 1e-15)
}

func TestProblem_ScaledConstraint(t *testing.T) {
	// b = 2*a1*a2 >= 1 keeps the optimizer off the lower corner: c = 2b >= 2.
	g := repro.NewModel(1)
	g.AddConstraint("b", model.Lower(1), model.Ref(10))
	p := problem.New(g, problem.WithDriver(slsqp(t)))
	require.NoError(t, p.Setup())

	res, err := p.RunDriver(context.Background())
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	assert.InDelta(t, 2.0, p.MustGetScalar("c"), 1e-4)
	assert.GreaterOrEqual(t, p.MustGetScalar("b"), 1-1e-6)
}

func TestProblem_Recorder(t *testing.T) {
	ctx := context.Background()
	rec, err := recorder.Open(filepath.Join(t.TempDir(), "cases.db"), nil)
	require.NoError(t, err)

	p := problem.New(repro.NewModel(1),
		problem.WithName("repro"),
		problem.WithDriver(slsqp(t)),
		problem.WithRecorder(rec),
	)
	require.NoError(t, p.Setup())
	res, err := p.RunDriver(ctx)
	require.NoError(t, err)

	runs, err := rec.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "repro", runs[0].Name)
	assert.Equal(t, driver.SLSQP, runs[0].Driver)

	cases, err := rec.Cases(ctx, runs[0].ID)
	require.NoError(t, err)
	require.NotEmpty(t, cases)
	assert.LessOrEqual(t, len(cases), res.FuncEvals)

	first, last := cases[0], cases[len(cases)-1]
	assert.Equal(t, []float64{1}, first.Values["a1"])
	assert.Equal(t, []float64{4}, first.Values["c"])
	assert.InDelta(t, 0.5, last.Values["a1"][0], 1e-8)
	assert.InDelta(t, 1.0, last.Values["c"][0], 1e-8)

	require.NoError(t, p.Final())
}

func TestProblem_DriverNeedsObjective(t *testing.T) {
	g := model.NewGroup()
	g.AddSubsystem("comp_1", repro.Product{}, model.Promotes("*"))
	g.AddDesignVar("a1", model.Lower(0), model.Upper(1))
	p := problem.New(g, problem.WithDriver(slsqp(t)))
	require.NoError(t, p.Setup())

	_, err := p.RunDriver(context.Background())
	assert.ErrorIs(t, err, problem.ErrObjective)
}

var errBelowLimit = errors.New("a1 below 0.9")

// guarded is repro.Product that fails for a1 < 0.9.
type guarded struct{ repro.Product }

func (g guarded) Compute(in, out *component.Vector) error {
	if in.Scalar("a1") < 0.9 {
		return errBelowLimit
	}
	return g.Product.Compute(in, out)
}

func TestProblem_FailedDriverRunLeavesModelStale(t *testing.T) {
	ctx := context.Background()
	g := model.NewGroup()
	g.AddSubsystem("comp_1", guarded{}, model.Promotes("*"))
	g.AddSubsystem("comp_2", repro.Doubler{}, model.Promotes("*"))
	g.AddDesignVar("a1", model.Lower(0.5), model.Upper(1.5))
	g.AddDesignVar("a2", model.Lower(0.5), model.Upper(1.5))
	g.AddObjective("c")

	p := problem.New(g, problem.WithDriver(slsqp(t)))
	require.NoError(t, p.Setup())
	_, err := p.RunDriver(ctx)
	require.ErrorIs(t, err, errBelowLimit)

	// The state holds the failing design, so totals must rerun the model
	// rather than use outputs from the previous point.
	assert.Less(t, p.MustGetScalar("a1"), 0.9)
	_, err = p.ComputeTotals(ctx, nil, nil)
	assert.ErrorIs(t, err, errBelowLimit)
}
