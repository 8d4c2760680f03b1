package check

import (
	"context"
	"fmt"

	"github.com/born-ml/mdo/internal/component"
	"github.com/born-ml/mdo/internal/model"
	"github.com/born-ml/mdo/internal/parallel"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// Partials compares each component's declared partials with a numerical
// approximation at the inputs stored in st. Every (output, input) pair is
// approximated; undeclared pairs are reported with a zero analytic block and
// fail only when the approximation is nonzero.
func Partials(ctx context.Context, sys *model.System, st *component.Vector, opts Options) (*Report, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	var nodes []*model.Node
	var inputs []*component.Vector
	for _, n := range sys.Nodes() {
		if len(opts.Only) > 0 && !opts.Only[n.Name] {
			continue
		}
		if opts.Exclude[n.Name] {
			continue
		}
		if opts.Method == component.MethodCS && !component.SupportsComplex(n.Comp) {
			return nil, fmt.Errorf("%w: %s", ErrNoComplex, n.Name)
		}
		nodes = append(nodes, n)
		inputs = append(inputs, sys.Inputs(n, st))
	}

	reports := make([]*Report, len(nodes))
	err = parallel.For(ctx, len(nodes), func(_ context.Context, i int) error {
		r, err := checkNode(nodes[i], inputs[i], opts)
		if err != nil {
			return component.WithComponent(err, nodes[i].Name)
		}
		reports[i] = r
		return nil
	}, opts.Parallel)
	if err != nil {
		return nil, err
	}

	report := &Report{Kind: "partials", Method: opts.Label(), RelTol: opts.RelTol, AbsTol: opts.AbsTol}
	for _, r := range reports {
		report.Entries = append(report.Entries, r.Entries...)
	}
	for _, e := range report.Failures() {
		opts.Logger.Warn("partial derivative mismatch",
			zap.String("component", e.Component),
			zap.String("of", e.Of),
			zap.String("wrt", e.Wrt),
			zap.Bool("declared", e.Declared),
			zap.Float64("rel_err", e.RelErr),
		)
	}
	return report, nil
}

func checkNode(n *model.Node, in *component.Vector, opts Options) (*Report, error) {
	r := &Report{RelTol: opts.RelTol, AbsTol: opts.AbsTol}
	j, err := component.Linearize(n.Comp, n.Decl, in)
	if err != nil {
		return nil, err
	}

	outs := n.Decl.Outputs()
	rows := 0
	for _, o := range outs {
		rows += o.Size
	}
	for _, w := range n.Decl.Inputs() {
		approx, err := approxInput(n, in, w.Name, rows, opts)
		if err != nil {
			return nil, err
		}
		row := 0
		for _, o := range outs {
			var b mat.Dense
			b.CloneFrom(approx.Slice(row, row+o.Size, 0, w.Size))
			row += o.Size

			analytic := j.Block(o.Name, w.Name)
			declared := analytic != nil
			if !declared {
				analytic = mat.NewDense(o.Size, w.Size, nil)
			}
			r.add(n.Name, o.Name, w.Name, declared, analytic, &b)
		}
	}
	return r, nil
}

// approxInput estimates d(all outputs)/d(wrt) with outputs stacked in
// declaration order.
func approxInput(n *model.Node, in *component.Vector, wrt string, rows int, opts Options) (*mat.Dense, error) {
	size := in.Size(wrt)
	dst := mat.NewDense(rows, size, nil)

	if opts.Method == component.MethodCS {
		base := component.Complexify(in)
		for k := 0; k < size; k++ {
			p := base.Clone()
			p.Get(wrt)[k] += complex(0, opts.Step)
			out, err := component.EvaluateComplex(n.Comp, n.Decl, p)
			if err != nil {
				return nil, err
			}
			row := 0
			for _, o := range n.Decl.Outputs() {
				for i, v := range out.Get(o.Name) {
					dst.Set(row+i, k, imag(v)/opts.Step)
				}
				row += o.Size
			}
		}
		return dst, nil
	}

	var evalErr error
	f := func(y, x []float64) {
		if evalErr != nil {
			return
		}
		p := in.Clone()
		p.Set(wrt, x...)
		out, err := component.Evaluate(n.Comp, n.Decl, p)
		if err != nil {
			evalErr = err
			return
		}
		off := 0
		for _, o := range n.Decl.Outputs() {
			off += copy(y[off:], out.Get(o.Name))
		}
	}
	formula := fd.Forward
	switch opts.Form {
	case component.Backward:
		formula = fd.Backward
	case component.Central:
		formula = fd.Central
	}
	x := append([]float64(nil), in.Get(wrt)...)
	fd.Jacobian(dst, f, x, &fd.JacobianSettings{Formula: formula, Step: opts.Step})
	if evalErr != nil {
		return nil, fmt.Errorf("check: wrt %q: %w", wrt, evalErr)
	}
	return dst, nil
}
