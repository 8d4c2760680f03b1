package sqp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// quadratic returns a problem for f = Σ (xᵢ - tᵢ)² without constraints.
func quadratic(target ...float64) Problem {
	return Problem{
		N: len(target),
		Eval: func(_ context.Context, x, _ []float64) (float64, error) {
			f := 0.0
			for i, t := range target {
				f += (x[i] - t) * (x[i] - t)
			}
			return f, nil
		},
		Jac: func(_ context.Context, x, g []float64, _ *mat.Dense) error {
			for i, t := range target {
				g[i] = 2 * (x[i] - t)
			}
			return nil
		},
	}
}

func TestMinimize_BoundedProduct(t *testing.T) {
	// f = 4*a1*a2 on [0.5, 1.5]², minimum at the lower corner.
	p := Problem{
		N: 2,
		Eval: func(_ context.Context, x, _ []float64) (float64, error) {
			return 4 * x[0] * x[1], nil
		},
		Jac: func(_ context.Context, x, g []float64, _ *mat.Dense) error {
			g[0], g[1] = 4*x[1], 4*x[0]
			return nil
		},
		Lower: []float64{0.5, 0.5},
		Upper: []float64{1.5, 1.5},
	}
	var iters []Iteration
	res, err := Minimize(context.Background(), p, []float64{1, 1}, Settings{
		Callback: func(it Iteration) { iters = append(iters, it) },
	})
	require.NoError(t, err)
	require.True(t, res.Success(), res.Status.String())

	assert.InDelta(t, 0.5, res.X[0], 1e-9)
	assert.InDelta(t, 0.5, res.X[1], 1e-9)
	assert.InDelta(t, 1.0, res.F, 1e-9)
	assert.NotEmpty(t, iters)
	assert.LessOrEqual(t, res.Iter, 5)
}

func TestMinimize_Unconstrained(t *testing.T) {
	res, err := Minimize(context.Background(), quadratic(3, -1, 0.5), []float64{0, 0, 0}, Settings{})
	require.NoError(t, err)
	require.True(t, res.Success(), res.Status.String())
	assert.InDeltaSlice(t, []float64{3, -1, 0.5}, res.X, 1e-5)
}

func TestMinimize_Rosenbrock(t *testing.T) {
	p := Problem{
		N: 2,
		Eval: func(_ context.Context, x, _ []float64) (float64, error) {
			a, b := 1-x[0], x[1]-x[0]*x[0]
			return a*a + 100*b*b, nil
		},
		Jac: func(_ context.Context, x, g []float64, _ *mat.Dense) error {
			b := x[1] - x[0]*x[0]
			g[0] = -2*(1-x[0]) - 400*x[0]*b
			g[1] = 200 * b
			return nil
		},
	}
	res, err := Minimize(context.Background(), p, []float64{-1.2, 1}, Settings{MaxIter: 200, Acc: 1e-10})
	require.NoError(t, err)
	require.True(t, res.Success(), res.Status.String())
	assert.InDelta(t, 1.0, res.X[0], 1e-3)
	assert.InDelta(t, 1.0, res.X[1], 1e-3)
}

func TestMinimize_InequalityConstraints(t *testing.T) {
	// min (x-1)² + (y-2.5)² subject to three linear inequalities and x, y ≥ 0.
	p := quadratic(1, 2.5)
	p.MIneq = 3
	eval := p.Eval
	p.Eval = func(ctx context.Context, x, c []float64) (float64, error) {
		c[0] = x[0] - 2*x[1] + 2
		c[1] = -x[0] - 2*x[1] + 6
		c[2] = -x[0] + 2*x[1] + 2
		return eval(ctx, x, c)
	}
	jac := p.Jac
	p.Jac = func(ctx context.Context, x, g []float64, a *mat.Dense) error {
		a.SetRow(0, []float64{1, -2})
		a.SetRow(1, []float64{-1, -2})
		a.SetRow(2, []float64{-1, 2})
		return jac(ctx, x, g, a)
	}
	p.Lower = []float64{0, 0}

	res, err := Minimize(context.Background(), p, []float64{2, 0}, Settings{})
	require.NoError(t, err)
	require.True(t, res.Success(), res.Status.String())
	assert.InDelta(t, 1.4, res.X[0], 1e-5)
	assert.InDelta(t, 1.7, res.X[1], 1e-5)
	assert.Greater(t, res.Lambda[0], 0.0, "first constraint is active")
}

func TestMinimize_EqualityConstraint(t *testing.T) {
	// min x² + y² subject to x + y = 1.
	p := quadratic(0, 0)
	p.MEq = 1
	eval := p.Eval
	p.Eval = func(ctx context.Context, x, c []float64) (float64, error) {
		c[0] = x[0] + x[1] - 1
		return eval(ctx, x, c)
	}
	jac := p.Jac
	p.Jac = func(ctx context.Context, x, g []float64, a *mat.Dense) error {
		a.SetRow(0, []float64{1, 1})
		return jac(ctx, x, g, a)
	}

	res, err := Minimize(context.Background(), p, []float64{2, -3}, Settings{})
	require.NoError(t, err)
	require.True(t, res.Success(), res.Status.String())
	assert.InDelta(t, 0.5, res.X[0], 1e-5)
	assert.InDelta(t, 0.5, res.X[1], 1e-5)
	assert.InDelta(t, 0.0, res.C[0], 1e-6)
}

func TestMinimize_StartIsClippedToBounds(t *testing.T) {
	p := quadratic(0)
	p.Lower, p.Upper = []float64{1}, []float64{2}
	res, err := Minimize(context.Background(), p, []float64{5}, Settings{})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.X[0], 1e-12)
}

func TestMinimize_IterationLimit(t *testing.T) {
	res, err := Minimize(context.Background(), quadratic(10, 10), []float64{0, 0}, Settings{MaxIter: 1})
	require.NoError(t, err)
	assert.Equal(t, IterationLimit, res.Status)
	assert.False(t, res.Success())
}

func TestMinimize_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Minimize(ctx, quadratic(1, 2), []float64{0}, Settings{})
	assert.ErrorIs(t, err, ErrDimension)

	p := quadratic(1)
	p.Lower, p.Upper = []float64{2}, []float64{1}
	_, err = Minimize(ctx, p, []float64{0}, Settings{})
	assert.ErrorIs(t, err, ErrBounds)

	boom := errors.New("model diverged")
	p = quadratic(1)
	p.Eval = func(context.Context, []float64, []float64) (float64, error) { return 0, boom }
	_, err = Minimize(ctx, p, []float64{0}, Settings{})
	assert.ErrorIs(t, err, boom)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = Minimize(cancelled, quadratic(1), []float64{0}, Settings{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQP_ActiveSet(t *testing.T) {
	// min ½|z|² - z₀ - z₁ subject to z₀ + z₁ ≤ 1.
	G := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	sub := &qp{
		G: G,
		g: []float64{-1, -1},
		a: mat.NewDense(1, 2, []float64{-1, -1}),
		b: []float64{-1},
	}
	z, mult, err := sub.solve([]float64{0, 0}, 50)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, z, 1e-12)
	assert.InDelta(t, 0.5, mult[0], 1e-12)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "optimization terminated successfully", Converged.String())
	assert.Equal(t, "iteration limit reached", IterationLimit.String())
	assert.Equal(t, "status(42)", Status(42).String())
}
