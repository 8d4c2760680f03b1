package driver

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/born-ml/mdo/internal/sqp"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// Optimizer names accepted by OptimizeDriver.
const (
	SLSQP           = "SLSQP"
	BFGS            = "BFGS"
	LBFGS           = "LBFGS"
	NelderMead      = "NelderMead"
	GradientDescent = "GradientDescent"
)

// Optimizers lists the supported optimizer names.
var Optimizers = []string{SLSQP, BFGS, LBFGS, NelderMead, GradientDescent}

// Options configures OptimizeDriver.
type Options struct {
	Optimizer string  // Optimizer name (default: SLSQP)
	MaxIter   int     // Maximum iterations (default: 200)
	Tol       float64 // Convergence tolerance (default: 1e-6)
	Disp      bool    // Log a summary when the run ends
}

// DefaultOptions returns SLSQP with 200 iterations and tolerance 1e-6.
func DefaultOptions() Options {
	return Options{Optimizer: SLSQP, MaxIter: 200, Tol: 1e-6, Disp: true}
}

// OptimizeDriver runs a gradient-based optimizer on a Target.
//
// SLSQP handles bounds, equality and inequality constraints. The gonum
// methods are unconstrained: bounds are ignored with a warning and
// constraints are rejected.
type OptimizeDriver struct {
	opts   Options
	logger *zap.Logger
	iprint bool
}

// NewOptimizeDriver validates opts and fills defaults.
func NewOptimizeDriver(opts Options, logger *zap.Logger) (*OptimizeDriver, error) {
	if opts.Optimizer == "" {
		opts.Optimizer = SLSQP
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = 200
	}
	if opts.Tol <= 0 {
		opts.Tol = 1e-6
	}
	name, ok := canonical(opts.Optimizer)
	if !ok {
		return nil, fmt.Errorf("%w %q (supported: %s)", ErrUnknownOptimizer, opts.Optimizer, strings.Join(Optimizers, ", "))
	}
	opts.Optimizer = name
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OptimizeDriver{opts: opts, logger: logger, iprint: true}, nil
}

func canonical(name string) (string, bool) {
	for _, o := range Optimizers {
		if strings.EqualFold(o, name) {
			return o, true
		}
	}
	switch strings.ToLower(name) {
	case "l-bfgs", "l-bfgs-b":
		return LBFGS, true
	case "nelder-mead":
		return NelderMead, true
	}
	return "", false
}

// Options returns the effective options.
func (d *OptimizeDriver) Options() Options {
	return d.opts
}

// SetIterationPrint turns per-iteration logging on or off.
func (d *OptimizeDriver) SetIterationPrint(on bool) {
	d.iprint = on
}

// Run optimizes t.
func (d *OptimizeDriver) Run(ctx context.Context, t Target) (*Result, error) {
	design := t.Design()
	if design.Len() == 0 {
		return nil, ErrNoDesignVars
	}

	var res *Result
	var err error
	if d.opts.Optimizer == SLSQP {
		res, err = d.runSQP(ctx, t, design)
	} else {
		res, err = d.runGonum(ctx, t, design)
	}
	if err != nil {
		return nil, err
	}
	res.Optimizer = d.opts.Optimizer

	if d.opts.Disp {
		d.logger.Info(res.Message,
			zap.String("optimizer", res.Optimizer),
			zap.Bool("success", res.Success),
			zap.Float64("objective", res.Objective),
			zap.Int("iterations", res.Iterations),
			zap.Int("function_evaluations", res.FuncEvals),
			zap.Int("gradient_evaluations", res.GradEvals),
		)
	}
	return res, nil
}

// row maps one sqp constraint row to a Target constraint entry:
// value = sign * (c[index] - bound).
type row struct {
	index int
	sign  float64
	bound float64
}

// constraintRows splits Target constraints into equality rows and
// inequality rows of the form g(x) ≥ 0.
func constraintRows(cons []Constraint) (eq, ineq []row) {
	off := 0
	for _, c := range cons {
		for k := 0; k < c.Size; k++ {
			i := off + k
			switch {
			case c.Equality:
				eq = append(eq, row{index: i, sign: 1, bound: c.Equals})
			default:
				if !math.IsInf(c.Lower, -1) {
					ineq = append(ineq, row{index: i, sign: 1, bound: c.Lower})
				}
				if !math.IsInf(c.Upper, 1) {
					ineq = append(ineq, row{index: i, sign: -1, bound: c.Upper})
				}
			}
		}
		off += c.Size
	}
	return eq, ineq
}

func (d *OptimizeDriver) runSQP(ctx context.Context, t Target, design Design) (*Result, error) {
	eq, ineq := constraintRows(t.Constraints())
	rows := append(append([]row(nil), eq...), ineq...)

	p := sqp.Problem{
		N:     design.Len(),
		MEq:   len(eq),
		MIneq: len(ineq),
		Lower: design.Lower,
		Upper: design.Upper,
		Eval: func(ctx context.Context, x, c []float64) (float64, error) {
			f, vals, err := t.Evaluate(ctx, x)
			if err != nil {
				return 0, err
			}
			for i, r := range rows {
				c[i] = r.sign * (vals[r.index] - r.bound)
			}
			return f, nil
		},
		Jac: func(ctx context.Context, x, g []float64, a *mat.Dense) error {
			grad, jac, err := t.Gradient(ctx, x)
			if err != nil {
				return err
			}
			copy(g, grad)
			for i, r := range rows {
				for j := range x {
					a.Set(i, j, r.sign*jac.At(r.index, j))
				}
			}
			return nil
		},
	}

	set := sqp.Settings{MaxIter: d.opts.MaxIter, Acc: d.opts.Tol}
	if d.iprint {
		set.Callback = func(it sqp.Iteration) {
			d.logger.Debug("driver iteration",
				zap.Int("iter", it.Iter),
				zap.Float64s("x", it.X),
				zap.Float64("objective", it.F),
				zap.Float64("violation", it.Vio),
			)
		}
	}

	r, err := sqp.Minimize(ctx, p, design.X0, set)
	if err != nil {
		return nil, err
	}
	return &Result{
		Success:    r.Success(),
		Message:    r.Status.String(),
		Iterations: r.Iter,
		FuncEvals:  r.FuncEvals,
		GradEvals:  r.GradEvals,
		X:          r.X,
		Objective:  r.F,
	}, nil
}

func (d *OptimizeDriver) method() optimize.Method {
	switch d.opts.Optimizer {
	case BFGS:
		return &optimize.BFGS{}
	case LBFGS:
		return &optimize.LBFGS{}
	case NelderMead:
		return &optimize.NelderMead{}
	default:
		return &optimize.GradientDescent{}
	}
}

func (d *OptimizeDriver) runGonum(ctx context.Context, t Target, design Design) (*Result, error) {
	if len(t.Constraints()) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrConstraintsUnsupported, d.opts.Optimizer)
	}
	if design.Bounded() {
		d.logger.Warn("design variable bounds are ignored by this optimizer",
			zap.String("optimizer", d.opts.Optimizer))
	}

	// gonum callbacks cannot fail, so the first error is kept and NaN is
	// returned to stop the method.
	var evalErr error
	iter := 0
	p := optimize.Problem{
		Func: func(x []float64) float64 {
			if evalErr == nil {
				evalErr = ctx.Err()
			}
			if evalErr != nil {
				return math.NaN()
			}
			f, _, err := t.Evaluate(ctx, x)
			if err != nil {
				evalErr = err
				return math.NaN()
			}
			return f
		},
		Grad: func(grad, x []float64) {
			if evalErr != nil {
				return
			}
			g, _, err := t.Gradient(ctx, x)
			if err != nil {
				evalErr = err
				return
			}
			copy(grad, g)
		},
	}

	settings := &optimize.Settings{
		MajorIterations:   d.opts.MaxIter,
		GradientThreshold: d.opts.Tol,
		Converger: &optimize.FunctionConverge{
			Absolute:   d.opts.Tol,
			Iterations: 20,
		},
	}
	if d.iprint {
		settings.Recorder = recorderFunc(func(loc *optimize.Location, op optimize.Operation) {
			if op != optimize.MajorIteration {
				return
			}
			iter++
			d.logger.Debug("driver iteration",
				zap.Int("iter", iter),
				zap.Float64s("x", loc.X),
				zap.Float64("objective", loc.F),
			)
		})
	}

	r, err := optimize.Minimize(p, append([]float64(nil), design.X0...), settings, d.method())
	if evalErr != nil {
		return nil, evalErr
	}
	res := &Result{Message: "optimization terminated successfully"}
	if r != nil {
		res.Iterations = r.Stats.MajorIterations
		res.FuncEvals = r.Stats.FuncEvaluations
		res.GradEvals = r.Stats.GradEvaluations
		res.X = r.X
		res.Objective = r.F
		res.Success = converged(r.Status)
		if !res.Success {
			res.Message = r.Status.String()
		}
	}
	if err != nil {
		res.Success = false
		res.Message = err.Error()
	}
	if res.X == nil {
		return nil, fmt.Errorf("driver: %s: %w", d.opts.Optimizer, err)
	}

	// Leave the model at the reported optimum.
	if _, _, err := t.Evaluate(ctx, res.X); err != nil {
		return nil, err
	}
	return res, nil
}

func converged(s optimize.Status) bool {
	switch s {
	case optimize.Success, optimize.FunctionThreshold, optimize.FunctionConvergence,
		optimize.GradientThreshold, optimize.StepConvergence, optimize.MethodConverge:
		return true
	}
	return false
}

// recorderFunc adapts a function to optimize.Recorder.
type recorderFunc func(*optimize.Location, optimize.Operation)

func (recorderFunc) Init() error { return nil }

func (f recorderFunc) Record(loc *optimize.Location, op optimize.Operation, _ *optimize.Stats) error {
	f(loc, op)
	return nil
}
