package config

import (
	"fmt"
	"math"
	"sort"

	"github.com/born-ml/mdo/internal/component"
	"github.com/born-ml/mdo/internal/driver"
	"github.com/born-ml/mdo/internal/exec"
	"github.com/born-ml/mdo/internal/model"
	"github.com/born-ml/mdo/internal/problem"
	"github.com/born-ml/mdo/internal/repro"
	"go.uber.org/zap"
)

// builtins are the components selectable with "kind".
var builtins = map[string]func(params map[string]float64) component.Explicit{
	"product": func(p map[string]float64) component.Explicit { return repro.Product{Ref: p["ref"]} },
	"doubler": func(map[string]float64) component.Explicit { return repro.Doubler{} },
}

// Kinds lists the built-in component kinds.
func Kinds() []string {
	kinds := make([]string, 0, len(builtins))
	for k := range builtins {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func (v Var) options() []component.VarOption {
	var opts []component.VarOption
	if len(v.Val) > 0 {
		opts = append(opts, component.WithVal(v.Val...))
	}
	if v.Ref != nil || v.Ref0 != nil {
		ref, ref0 := 1.0, 0.0
		if v.Ref != nil {
			ref = *v.Ref
		}
		if v.Ref0 != nil {
			ref0 = *v.Ref0
		}
		opts = append(opts, component.WithRef(ref, ref0))
	}
	if v.Lower != nil || v.Upper != nil {
		lo, hi := math.Inf(-1), math.Inf(1)
		if v.Lower != nil {
			lo = *v.Lower
		}
		if v.Upper != nil {
			hi = *v.Upper
		}
		opts = append(opts, component.WithBounds(lo, hi))
	}
	if v.Units != "" {
		opts = append(opts, component.WithUnits(v.Units))
	}
	if v.Desc != "" {
		opts = append(opts, component.WithDesc(v.Desc))
	}
	return opts
}

func (c Component) build() (component.Explicit, error) {
	if c.Kind != "" {
		return builtins[c.Kind](c.Params), nil
	}
	var opts []exec.Option
	for _, vars := range []map[string]Var{c.Inputs, c.Outputs} {
		names := make([]string, 0, len(vars))
		for name := range vars {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			opts = append(opts, exec.WithVarOptions(name, vars[name].options()...))
		}
	}
	comp, err := exec.New(c.Equations, opts...)
	if err != nil {
		return nil, fmt.Errorf("component %q: %w", c.Name, err)
	}
	return comp, nil
}

func (b Bounds) options() []model.Option {
	var opts []model.Option
	add := func(v *float64, f func(float64) model.Option) {
		if v != nil {
			opts = append(opts, f(*v))
		}
	}
	add(b.Lower, model.Lower)
	add(b.Upper, model.Upper)
	add(b.Equals, model.Equals)
	add(b.Ref, model.Ref)
	add(b.Ref0, model.Ref0)
	add(b.Scaler, model.Scaler)
	add(b.Adder, model.Adder)
	return opts
}

// Model builds the group described by the file.
func (f *File) Model() (*model.Group, error) {
	g := model.NewGroup()
	for _, c := range f.Components {
		comp, err := c.build()
		if err != nil {
			return nil, err
		}
		var opts []model.SubsystemOption
		if len(c.Promotes) > 0 {
			opts = append(opts, model.Promotes(c.Promotes...))
		}
		if len(c.PromotesInputs) > 0 {
			opts = append(opts, model.PromotesInputs(c.PromotesInputs...))
		}
		if len(c.PromotesOutputs) > 0 {
			opts = append(opts, model.PromotesOutputs(c.PromotesOutputs...))
		}
		g.AddSubsystem(c.Name, comp, opts...)
	}
	for _, c := range f.Connections {
		g.Connect(c.Src, c.Tgt)
	}

	names := make([]string, 0, len(f.InputDefaults))
	for name := range f.InputDefaults {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		g.SetInputDefaults(name, f.InputDefaults[name]...)
	}

	for _, dv := range f.DesignVars {
		g.AddDesignVar(dv.Name, dv.Value.options()...)
	}
	if o := f.Objective; o != nil {
		g.AddObjective(o.Name, Bounds{Ref: o.Ref, Ref0: o.Ref0, Scaler: o.Scaler, Adder: o.Adder}.options()...)
	}
	for _, c := range f.Constraints {
		g.AddConstraint(c.Name, c.Value.options()...)
	}
	return g, nil
}

// DriverOptions returns the driver options with defaults for unset fields.
func (f *File) DriverOptions() driver.Options {
	opts := driver.DefaultOptions()
	if f.Driver.Optimizer != "" {
		opts.Optimizer = f.Driver.Optimizer
	}
	if f.Driver.MaxIter > 0 {
		opts.MaxIter = f.Driver.MaxIter
	}
	if f.Driver.Tol > 0 {
		opts.Tol = f.Driver.Tol
	}
	if f.Driver.Disp != nil {
		opts.Disp = *f.Driver.Disp
	}
	return opts
}

// Build returns a problem ready for Setup. A driver is attached when the
// file declares design variables.
func (f *File) Build(logger *zap.Logger, opts ...problem.Option) (*problem.Problem, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	g, err := f.Model()
	if err != nil {
		return nil, err
	}
	all := []problem.Option{problem.WithLogger(logger)}
	if f.Name != "" {
		all = append(all, problem.WithName(f.Name))
	}
	if len(f.DesignVars) > 0 {
		d, err := driver.NewOptimizeDriver(f.DriverOptions(), logger)
		if err != nil {
			return nil, err
		}
		all = append(all, problem.WithDriver(d))
	}
	return problem.New(g, append(all, opts...)...), nil
}
