package problem

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/born-ml/mdo/internal/driver"
	"github.com/born-ml/mdo/internal/model"
	"github.com/born-ml/mdo/internal/totals"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// target exposes a Problem to a driver in scaled, flattened form.
type target struct {
	p     *Problem
	dvs   []model.DesignVar
	obj   model.Response
	cons  []model.Response
	runID string

	lastX []float64 // design of the current model state
	f     float64
	c     []float64
}

func newTarget(p *Problem) (*target, error) {
	objs := p.sys.Objectives()
	if len(objs) != 1 || objs[0].Size != 1 {
		return nil, ErrObjective
	}
	return &target{
		p:    p,
		dvs:  p.sys.DesignVars(),
		obj:  objs[0],
		cons: p.sys.Constraints(),
	}, nil
}

// scaledBounds maps physical bounds to driver space, swapping them when
// the scaler is negative.
func scaledBounds(s model.Scaling, lower, upper float64) (float64, float64) {
	if s.Scaler >= 0 {
		return s.ScaleBound(lower), s.ScaleBound(upper)
	}
	lo, hi := math.Inf(-1), math.Inf(1)
	if !math.IsInf(upper, 1) {
		lo = s.Scale(upper)
	}
	if !math.IsInf(lower, -1) {
		hi = s.Scale(lower)
	}
	return lo, hi
}

func (t *target) Design() driver.Design {
	var d driver.Design
	for _, dv := range t.dvs {
		d.Names = append(d.Names, dv.Name)
		d.Sizes = append(d.Sizes, dv.Size)
		lo, hi := scaledBounds(dv.Scaling, dv.Lower, dv.Upper)
		for _, v := range t.p.state.Get(dv.Source) {
			d.X0 = append(d.X0, dv.Scale(v))
			d.Lower = append(d.Lower, lo)
			d.Upper = append(d.Upper, hi)
		}
	}
	return d
}

func (t *target) Objective() string {
	return t.obj.Name
}

func (t *target) Constraints() []driver.Constraint {
	out := make([]driver.Constraint, 0, len(t.cons))
	for _, c := range t.cons {
		lo, hi := scaledBounds(c.Scaling, c.Lower, c.Upper)
		out = append(out, driver.Constraint{
			Name:     c.Name,
			Size:     c.Size,
			Equality: c.IsEquality(),
			Equals:   c.Scale(c.Equals),
			Lower:    lo,
			Upper:    hi,
		})
	}
	return out
}

// Evaluate runs the model at the scaled design x. Repeated calls with the
// same x reuse the last run.
func (t *target) Evaluate(ctx context.Context, x []float64) (float64, []float64, error) {
	if t.lastX != nil && slices.Equal(t.lastX, x) {
		return t.f, t.c, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	st := t.p.state
	i := 0
	for _, dv := range t.dvs {
		vals := st.Get(dv.Source)
		for k := range vals {
			vals[k] = dv.Unscale(x[i])
			i++
		}
	}
	t.lastX = nil
	t.p.stale = true
	if err := t.p.RunModel(ctx); err != nil {
		return 0, nil, err
	}

	f := t.obj.Scale(st.Get(t.obj.Source)[0])
	var c []float64
	for _, con := range t.cons {
		for _, v := range st.Get(con.Source) {
			c = append(c, con.Scale(v))
		}
	}
	t.lastX = append([]float64(nil), x...)
	t.f, t.c = f, c

	if t.p.solverPrint > 0 {
		t.p.logger.Debug("driver evaluation",
			zap.Float64s("x", x),
			zap.Float64(t.obj.Name, f),
		)
	}
	if t.p.recorder != nil && t.runID != "" {
		if _, err := t.p.recorder.Record(ctx, t.runID, "driver", t.snapshot()); err != nil {
			return 0, nil, err
		}
	}
	return f, c, nil
}

// snapshot collects physical values of design variables and responses.
func (t *target) snapshot() map[string][]float64 {
	vals := make(map[string][]float64)
	st := t.p.state
	for _, dv := range t.dvs {
		vals[dv.Name] = append([]float64(nil), st.Get(dv.Source)...)
	}
	for _, r := range t.p.sys.Responses() {
		vals[r.Name] = append([]float64(nil), st.Get(r.Source)...)
	}
	return vals
}

// Gradient returns scaled totals of the objective and constraints with
// respect to the design variables at x.
func (t *target) Gradient(ctx context.Context, x []float64) ([]float64, *mat.Dense, error) {
	if _, _, err := t.Evaluate(ctx, x); err != nil {
		return nil, nil, err
	}

	of := []string{t.obj.Name}
	ofScaling := []model.Scaling{t.obj.Scaling}
	for _, c := range t.cons {
		of = append(of, c.Name)
		ofScaling = append(ofScaling, c.Scaling)
	}
	wrt := make([]string, len(t.dvs))
	wrtScaling := make([]model.Scaling, len(t.dvs))
	for i, dv := range t.dvs {
		wrt[i] = dv.Name
		wrtScaling[i] = dv.Scaling
	}

	tot, err := totals.Compute(t.p.sys, t.p.state, totals.Request{Of: of, Wrt: wrt})
	if err != nil {
		return nil, nil, fmt.Errorf("problem: totals: %w", err)
	}
	J := totals.Scale(tot, ofScaling, wrtScaling)
	rows, cols := J.Dims()

	grad := mat.Row(nil, 0, J)
	if rows == 1 {
		return grad, nil, nil
	}
	var jac mat.Dense
	jac.CloneFrom(J.Slice(1, rows, 0, cols))
	return grad, &jac, nil
}
