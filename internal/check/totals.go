package check

import (
	"context"
	"fmt"

	"github.com/born-ml/mdo/internal/component"
	"github.com/born-ml/mdo/internal/model"
	"github.com/born-ml/mdo/internal/parallel"
	"github.com/born-ml/mdo/internal/totals"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

type column struct {
	wrt    string
	source string
	index  int
}

// Totals compares analytic totals with a numerical approximation of the
// whole model at st. st must hold a converged run; it is not modified.
func Totals(ctx context.Context, sys *model.System, st *component.Vector, opts Options) (*Report, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if opts.Method == component.MethodCS && !sys.SupportsComplex() {
		return nil, ErrNoComplex
	}

	of, wrt := opts.Of, opts.Wrt
	if len(of) == 0 {
		for _, r := range sys.Responses() {
			of = append(of, r.Name)
		}
	}
	if len(wrt) == 0 {
		for _, dv := range sys.DesignVars() {
			wrt = append(wrt, dv.Name)
		}
	}

	analytic, err := totals.Compute(sys, st, totals.Request{Of: of, Wrt: wrt, Mode: opts.Mode})
	if err != nil {
		return nil, err
	}

	rowSources := make([]string, len(of))
	for i, name := range of {
		if rowSources[i], err = sys.Resolve(name); err != nil {
			return nil, err
		}
	}
	var cols []column
	for _, name := range wrt {
		src, err := sys.Resolve(name)
		if err != nil {
			return nil, err
		}
		v, _ := sys.Variable(src)
		for k := 0; k < v.Meta.Size; k++ {
			cols = append(cols, column{wrt: name, source: src, index: k})
		}
	}

	rows, _ := analytic.Dims()
	approx := mat.NewDense(rows, len(cols), nil)
	opts.Logger.Debug("checking totals",
		zap.String("method", opts.Label()),
		zap.String("mode", string(analytic.Mode)),
		zap.Int("rows", rows),
		zap.Int("cols", len(cols)),
	)

	err = parallel.For(ctx, len(cols), func(_ context.Context, j int) error {
		col, err := approxColumn(sys, st, rowSources, cols[j], opts)
		if err != nil {
			return err
		}
		approx.SetCol(j, col)
		return nil
	}, opts.Parallel)
	if err != nil {
		return nil, err
	}

	report := &Report{Kind: "totals", Method: opts.Label(), RelTol: opts.RelTol, AbsTol: opts.AbsTol}
	rowOff := 0
	for i, o := range of {
		v, _ := sys.Variable(rowSources[i])
		colOff := 0
		for _, w := range wrt {
			a, err := analytic.Block(o, w)
			if err != nil {
				return nil, err
			}
			r, c := a.Dims()
			var b mat.Dense
			b.CloneFrom(approx.Slice(rowOff, rowOff+r, colOff, colOff+c))
			report.add("", o, w, true, a, &b)
			colOff += c
		}
		rowOff += v.Meta.Size
	}
	for _, e := range report.Failures() {
		opts.Logger.Warn("total derivative mismatch",
			zap.String("of", e.Of),
			zap.String("wrt", e.Wrt),
			zap.Float64("rel_err", e.RelErr),
		)
	}
	return report, nil
}

// approxColumn estimates the flattened column d(rows)/d(source[index]).
func approxColumn(sys *model.System, st *component.Vector, rows []string, col column, opts Options) ([]float64, error) {
	if opts.Method == component.MethodCS {
		cst := component.Complexify(st)
		cst.Get(col.source)[col.index] += complex(0, opts.Step)
		if err := sys.RunComplex(cst); err != nil {
			return nil, fmt.Errorf("check: complex run for %s[%d]: %w", col.wrt, col.index, err)
		}
		var out []float64
		for _, r := range rows {
			for _, v := range cst.Get(r) {
				out = append(out, imag(v)/opts.Step)
			}
		}
		return out, nil
	}

	run := func(delta float64) ([]float64, error) {
		s := st.Clone()
		if delta != 0 {
			s.Get(col.source)[col.index] += delta
		}
		if err := sys.Run(s); err != nil {
			return nil, fmt.Errorf("check: run for %s[%d]: %w", col.wrt, col.index, err)
		}
		var out []float64
		for _, r := range rows {
			out = append(out, s.Get(r)...)
		}
		return out, nil
	}

	h := opts.Step
	var hi, lo []float64
	var err error
	denom := h
	switch opts.Form {
	case component.Backward:
		if hi, err = run(0); err != nil {
			return nil, err
		}
		lo, err = run(-h)
	case component.Central:
		if hi, err = run(h); err != nil {
			return nil, err
		}
		lo, err = run(-h)
		denom = 2 * h
	default:
		if hi, err = run(h); err != nil {
			return nil, err
		}
		lo, err = run(0)
	}
	if err != nil {
		return nil, err
	}
	for i := range hi {
		hi[i] = (hi[i] - lo[i]) / denom
	}
	return hi, nil
}
