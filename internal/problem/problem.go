// Package problem ties a model, a driver and an optional case recorder
// together. It is the entry point most programs use:
//
//	p := problem.New(group, problem.WithDriver(drv))
//	if err := p.Setup(); err != nil { ... }
//	res, err := p.RunDriver(ctx)
//	report, err := p.CheckTotals(ctx, check.Options{})
//
// A Problem is not safe for concurrent use.
package problem

import (
	"context"
	"errors"
	"fmt"

	"github.com/born-ml/mdo/internal/check"
	"github.com/born-ml/mdo/internal/component"
	"github.com/born-ml/mdo/internal/driver"
	"github.com/born-ml/mdo/internal/model"
	"github.com/born-ml/mdo/internal/recorder"
	"github.com/born-ml/mdo/internal/totals"
	"go.uber.org/zap"
)

// Common errors.
var (
	ErrNotSetup     = errors.New("problem: Setup has not been called")
	ErrObjective    = errors.New("problem: driver needs exactly one scalar objective")
	ErrSizeMismatch = errors.New("problem: value size does not match variable size")
)

// Option configures a Problem.
type Option func(*Problem)

// WithDriver sets the driver used by RunDriver. Without one, RunDriver runs
// the model once.
func WithDriver(d driver.Driver) Option {
	return func(p *Problem) { p.driver = d }
}

// WithLogger sets the logger (default: no-op).
func WithLogger(l *zap.Logger) Option {
	return func(p *Problem) { p.logger = l }
}

// WithRecorder records every driver evaluation into rec.
func WithRecorder(rec *recorder.Recorder) Option {
	return func(p *Problem) { p.recorder = rec }
}

// WithName names the problem in logs and recorded runs.
func WithName(name string) Option {
	return func(p *Problem) { p.name = name }
}

// Problem is a model plus the machinery to run and differentiate it.
type Problem struct {
	name     string
	group    *model.Group
	sys      *model.System
	state    *component.Vector
	driver   driver.Driver
	recorder *recorder.Recorder
	logger   *zap.Logger

	solverPrint int
	stale       bool // values changed since the last run
}

// New creates a problem around g.
func New(g *model.Group, opts ...Option) *Problem {
	p := &Problem{name: "problem", group: g, solverPrint: 1}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

// Name returns the problem name.
func (p *Problem) Name() string {
	return p.name
}

// Driver returns the configured driver, or nil.
func (p *Problem) Driver() driver.Driver {
	return p.driver
}

// Setup resolves the model and initializes all values to their defaults.
func (p *Problem) Setup() error {
	sys, err := p.group.Setup()
	if err != nil {
		return err
	}
	p.sys = sys
	p.state = sys.NewState()
	p.stale = true
	p.logger.Debug("problem setup",
		zap.String("problem", p.name),
		zap.Strings("order", sys.ExecutionOrder()),
		zap.Int("design_vars", len(sys.DesignVars())),
		zap.Int("responses", len(sys.Responses())),
	)
	return nil
}

// System returns the set-up model, or nil before Setup.
func (p *Problem) System() *model.System {
	return p.sys
}

// SetSolverPrint sets how much the problem and its driver log per
// iteration. Level 0 or below silences iteration logs; 1 (the default)
// logs driver iterations at debug level; 2 also logs every model run.
func (p *Problem) SetSolverPrint(level int) {
	p.solverPrint = level
	if d, ok := p.driver.(interface{ SetIterationPrint(bool) }); ok {
		d.SetIterationPrint(level > 0)
	}
}

// SetVal sets a variable by promoted or absolute name. Setting an input
// sets the output that drives it.
func (p *Problem) SetVal(name string, vals ...float64) error {
	if p.sys == nil {
		return ErrNotSetup
	}
	abs, err := p.sys.Resolve(name)
	if err != nil {
		return err
	}
	size := p.state.Size(abs)
	switch {
	case len(vals) == size:
		p.state.Set(abs, vals...)
	case len(vals) == 1:
		dst := p.state.Get(abs)
		for i := range dst {
			dst[i] = vals[0]
		}
	default:
		return fmt.Errorf("%w: %s has size %d, got %d values", ErrSizeMismatch, name, size, len(vals))
	}
	p.stale = true
	return nil
}

// GetVal returns a copy of a variable's current value.
func (p *Problem) GetVal(name string) ([]float64, error) {
	if p.sys == nil {
		return nil, ErrNotSetup
	}
	abs, err := p.sys.Resolve(name)
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), p.state.Get(abs)...), nil
}

// MustGetScalar returns the first element of a variable and panics on
// error. Intended for examples and tests.
func (p *Problem) MustGetScalar(name string) float64 {
	v, err := p.GetVal(name)
	if err != nil {
		panic(err)
	}
	return v[0]
}

// RunModel executes every component once.
func (p *Problem) RunModel(ctx context.Context) error {
	if p.sys == nil {
		return ErrNotSetup
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.sys.Run(p.state); err != nil {
		return err
	}
	p.stale = false
	if p.solverPrint > 1 {
		p.logger.Debug("model run", zap.String("problem", p.name))
	}
	return nil
}

func (p *Problem) ensureRun(ctx context.Context) error {
	if p.sys == nil {
		return ErrNotSetup
	}
	if p.stale {
		return p.RunModel(ctx)
	}
	return nil
}

// RunDriver runs the driver, or the model once when no driver is set.
// The model is left at the final design.
func (p *Problem) RunDriver(ctx context.Context) (*driver.Result, error) {
	if p.sys == nil {
		return nil, ErrNotSetup
	}
	if p.driver == nil {
		if err := p.RunModel(ctx); err != nil {
			return nil, err
		}
		return &driver.Result{Success: true, Message: "model run", Iterations: 1, FuncEvals: 1}, nil
	}

	t, err := newTarget(p)
	if err != nil {
		return nil, err
	}
	if p.recorder != nil {
		id, err := p.recorder.StartRun(ctx, p.name, driverName(p.driver))
		if err != nil {
			return nil, err
		}
		t.runID = id
	}

	res, err := p.driver.Run(ctx, t)
	if err != nil {
		return nil, err
	}
	p.logger.Info("driver finished",
		zap.String("problem", p.name),
		zap.String("optimizer", res.Optimizer),
		zap.Bool("success", res.Success),
		zap.String("message", res.Message),
		zap.Int("iterations", res.Iterations),
	)
	return res, nil
}

func driverName(d driver.Driver) string {
	if od, ok := d.(*driver.OptimizeDriver); ok {
		return od.Options().Optimizer
	}
	return fmt.Sprintf("%T", d)
}

// ComputeTotals returns physical total derivatives at the current point.
// Empty of defaults to objectives and constraints; empty wrt to design
// variables.
func (p *Problem) ComputeTotals(ctx context.Context, of, wrt []string) (*totals.Totals, error) {
	if err := p.ensureRun(ctx); err != nil {
		return nil, err
	}
	if len(of) == 0 {
		for _, r := range p.sys.Responses() {
			of = append(of, r.Name)
		}
	}
	if len(wrt) == 0 {
		for _, dv := range p.sys.DesignVars() {
			wrt = append(wrt, dv.Name)
		}
	}
	t, err := totals.Compute(p.sys, p.state, totals.Request{Of: of, Wrt: wrt})
	if err != nil {
		return nil, err
	}
	if p.solverPrint > 1 {
		p.logger.Debug("totals", zap.String("mode", string(t.Mode)), zap.Stringer("jacobian", t))
	}
	return t, nil
}

// CheckTotals compares analytic totals with a numerical approximation at
// the current point.
func (p *Problem) CheckTotals(ctx context.Context, opts check.Options) (*check.Report, error) {
	if err := p.ensureRun(ctx); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = p.logger
	}
	return check.Totals(ctx, p.sys, p.state, opts)
}

// CheckPartials compares every component's partials with a numerical
// approximation at the current point.
func (p *Problem) CheckPartials(ctx context.Context, opts check.Options) (*check.Report, error) {
	if err := p.ensureRun(ctx); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = p.logger
	}
	return check.Partials(ctx, p.sys, p.state, opts)
}

// Final releases resources held by the problem, closing the recorder.
func (p *Problem) Final() error {
	if p.recorder != nil {
		return p.recorder.Close()
	}
	return nil
}
