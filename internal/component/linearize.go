package component

import (
	"fmt"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// Linearize computes every declared sub-Jacobian of c at in.
//
// Exact partials come from ComputePartials. FD partials are approximated with
// gonum's finite-difference Jacobian, grouped per input so each input is
// perturbed once for all outputs that depend on it. CS partials perturb each
// input element along the imaginary axis.
func Linearize(c Explicit, d *Declarations, in *Vector) (*Jacobian, error) {
	j := NewJacobian(d)

	if d.HasMethod(MethodExact) {
		pc := c.(PartialsComputer) // checked by Declare
		if err := pc.ComputePartials(in, j); err != nil {
			return nil, &Error{Op: "compute_partials", Err: err}
		}
		if err := j.Err(); err != nil {
			return nil, &Error{Op: "compute_partials", Err: err}
		}
	}

	for _, g := range groupApprox(d, MethodFD) {
		if err := fdGroup(c, d, in, j, g); err != nil {
			return nil, err
		}
	}
	for _, g := range groupApprox(d, MethodCS) {
		if err := csGroup(c, d, in, j, g); err != nil {
			return nil, err
		}
	}
	return j, nil
}

// approxGroup is a set of outputs approximated with respect to one input
// using the same settings.
type approxGroup struct {
	wrt  string
	ofs  []string
	step float64
	form Form
}

// approxKey identifies the group a partial belongs to.
type approxKey struct {
	wrt  string
	step float64
	form Form
}

func groupApprox(d *Declarations, m Method) []approxGroup {
	var groups []approxGroup
	index := make(map[approxKey]int)
	for _, p := range d.partials {
		if p.Method != m {
			continue
		}
		key := approxKey{wrt: p.Wrt, step: p.Step, form: p.Form}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, approxGroup{wrt: p.Wrt, step: p.Step, form: p.Form})
		}
		groups[i].ofs = append(groups[i].ofs, p.Of)
	}
	return groups
}

func fdFormula(f Form) fd.Formula {
	switch f {
	case Backward:
		return fd.Backward
	case Central:
		return fd.Central
	default:
		return fd.Forward
	}
}

func fdGroup(c Explicit, d *Declarations, in *Vector, j *Jacobian, g approxGroup) error {
	rows := 0
	for _, of := range g.ofs {
		meta, _ := d.Output(of)
		rows += meta.Size
	}
	x := append([]float64(nil), in.Get(g.wrt)...)
	dst := mat.NewDense(rows, len(x), nil)

	var evalErr error
	f := func(y, x []float64) {
		if evalErr != nil {
			return
		}
		perturbed := in.Clone()
		perturbed.Set(g.wrt, x...)
		out, err := Evaluate(c, d, perturbed)
		if err != nil {
			evalErr = err
			return
		}
		off := 0
		for _, of := range g.ofs {
			off += copy(y[off:], out.Get(of))
		}
	}
	fd.Jacobian(dst, f, x, &fd.JacobianSettings{
		Formula: fdFormula(g.form),
		Step:    g.step,
	})
	if evalErr != nil {
		return &Error{Op: "fd_partials", Err: fmt.Errorf("wrt %q: %w", g.wrt, evalErr)}
	}

	row := 0
	for _, of := range g.ofs {
		block := j.Block(of, g.wrt)
		r, _ := block.Dims()
		block.Copy(dst.Slice(row, row+r, 0, len(x)))
		row += r
	}
	return nil
}

func csGroup(c Explicit, d *Declarations, in *Vector, j *Jacobian, g approxGroup) error {
	base := Complexify(in)
	n := in.Size(g.wrt)
	for k := 0; k < n; k++ {
		perturbed := base.Clone()
		perturbed.Get(g.wrt)[k] += complex(0, g.step)
		out, err := EvaluateComplex(c, d, perturbed)
		if err != nil {
			return &Error{Op: "cs_partials", Err: fmt.Errorf("wrt %q: %w", g.wrt, err)}
		}
		for _, of := range g.ofs {
			block := j.Block(of, g.wrt)
			for i, v := range out.Get(of) {
				block.Set(i, k, imag(v)/g.step)
			}
		}
	}
	return nil
}
