// Package totals computes total derivatives of model responses with respect
// to independent variables by chaining component partials over the model DAG.
//
// Two propagation modes are available:
//   - Fwd: one pass per design-variable element, front to back
//   - Rev: one pass per response element, back to front (adjoint)
//
// Auto picks whichever needs fewer passes. Both give identical results up to
// round-off; the check package uses that as a self-test.
//
// Totals are physical: output reference scaling (VarMeta.Ref) and driver
// scaling do not enter here. Driver scaling is applied by Scale.
package totals

import (
	"errors"
	"fmt"
	"strings"

	"github.com/born-ml/mdo/internal/component"
	"github.com/born-ml/mdo/internal/model"
	"gonum.org/v1/gonum/mat"
)

// Mode selects the propagation direction.
type Mode string

// Propagation modes.
const (
	Auto Mode = "auto"
	Fwd  Mode = "fwd"
	Rev  Mode = "rev"
)

// Common errors.
var (
	ErrNotIndependent = errors.New("totals: wrt variable is not independent")
	ErrEmpty          = errors.New("totals: empty of or wrt")
	ErrBadMode        = errors.New("totals: unknown mode")
)

// Totals is a dense total-derivative Jacobian with named row and column blocks.
type Totals struct {
	Of   []string
	Wrt  []string
	Mode Mode // Mode actually used

	J          *mat.Dense
	rows, cols layout
	rowOffsets map[string]int
	colOffsets map[string]int
	rowSizes   map[string]int
	colSizes   map[string]int
}

// Block returns a copy of d(of)/d(wrt).
func (t *Totals) Block(of, wrt string) (*mat.Dense, error) {
	r, ok := t.rowOffsets[of]
	if !ok {
		return nil, fmt.Errorf("totals: %q not among of", of)
	}
	c, ok := t.colOffsets[wrt]
	if !ok {
		return nil, fmt.Errorf("totals: %q not among wrt", wrt)
	}
	var b mat.Dense
	b.CloneFrom(t.J.Slice(r, r+t.rowSizes[of], c, c+t.colSizes[wrt]))
	return &b, nil
}

// At returns a single entry of d(of)/d(wrt).
func (t *Totals) At(of, wrt string, i, j int) float64 {
	return t.J.At(t.rowOffsets[of]+i, t.colOffsets[wrt]+j)
}

// Dims returns the flattened Jacobian size.
func (t *Totals) Dims() (rows, cols int) {
	return t.J.Dims()
}

// String renders the Jacobian for debugging.
func (t *Totals) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "totals (%s) of=%v wrt=%v\n", t.Mode, t.Of, t.Wrt)
	fmt.Fprintf(&sb, "%v", mat.Formatted(t.J, mat.Squeeze()))
	return sb.String()
}

// Request names the rows and columns to compute. Names may be promoted or
// absolute; wrt names must resolve to independent outputs.
type Request struct {
	Of   []string
	Wrt  []string
	Mode Mode
}

type layout struct {
	names   []string
	sources []string
	sizes   []int
	offsets []int
	total   int
}

func resolve(sys *model.System, names []string, independent bool) (layout, error) {
	var l layout
	for _, name := range names {
		src, err := sys.Resolve(name)
		if err != nil {
			return l, err
		}
		if independent && !sys.IsIndependent(src) {
			return l, fmt.Errorf("%w: %q is driven by %s", ErrNotIndependent, name, src)
		}
		v, _ := sys.Variable(src)
		l.names = append(l.names, name)
		l.sources = append(l.sources, src)
		l.sizes = append(l.sizes, v.Meta.Size)
		l.offsets = append(l.offsets, l.total)
		l.total += v.Meta.Size
	}
	return l, nil
}

// Compute linearizes sys at st (which must hold a converged run) and returns
// the requested totals.
func Compute(sys *model.System, st *component.Vector, req Request) (*Totals, error) {
	if len(req.Of) == 0 || len(req.Wrt) == 0 {
		return nil, ErrEmpty
	}
	rows, err := resolve(sys, req.Of, false)
	if err != nil {
		return nil, err
	}
	cols, err := resolve(sys, req.Wrt, true)
	if err != nil {
		return nil, err
	}
	lins, err := sys.Linearize(st)
	if err != nil {
		return nil, err
	}
	tp := record(sys, lins)

	mode := req.Mode
	switch mode {
	case Auto, "":
		mode = Fwd
		if cols.total > rows.total {
			mode = Rev
		}
	case Fwd, Rev:
	default:
		return nil, fmt.Errorf("%w %q", ErrBadMode, mode)
	}

	J := mat.NewDense(rows.total, cols.total, nil)
	if mode == Fwd {
		for c, src := range cols.sources {
			for k := 0; k < cols.sizes[c]; k++ {
				seed := tp.zero(src)
				seed.SetVec(k, 1)
				d := tp.Forward(src, seed)
				for r, of := range rows.sources {
					dv, ok := d[of]
					if !ok {
						continue
					}
					for i := 0; i < rows.sizes[r]; i++ {
						J.Set(rows.offsets[r]+i, cols.offsets[c]+k, dv.AtVec(i))
					}
				}
			}
		}
	} else {
		for r, src := range rows.sources {
			for i := 0; i < rows.sizes[r]; i++ {
				seed := tp.zero(src)
				seed.SetVec(i, 1)
				adj := tp.Backward(src, seed)
				for c, wrt := range cols.sources {
					av, ok := adj[wrt]
					if !ok {
						continue
					}
					for k := 0; k < cols.sizes[c]; k++ {
						J.Set(rows.offsets[r]+i, cols.offsets[c]+k, av.AtVec(k))
					}
				}
			}
		}
	}

	t := &Totals{
		Of:         rows.names,
		Wrt:        cols.names,
		Mode:       mode,
		J:          J,
		rows:       rows,
		cols:       cols,
		rowOffsets: make(map[string]int),
		colOffsets: make(map[string]int),
		rowSizes:   make(map[string]int),
		colSizes:   make(map[string]int),
	}
	for i, name := range rows.names {
		t.rowOffsets[name] = rows.offsets[i]
		t.rowSizes[name] = rows.sizes[i]
	}
	for i, name := range cols.names {
		t.colOffsets[name] = cols.offsets[i]
		t.colSizes[name] = cols.sizes[i]
	}
	return t, nil
}

// Scale converts physical totals to driver space:
// d(scaled of)/d(scaled wrt) = of.Scaler / wrt.Scaler * d(of)/d(wrt).
// Adders cancel. ofScaling and wrtScaling are indexed like t.Of and t.Wrt;
// repeated names are scaled per position.
func Scale(t *Totals, ofScaling, wrtScaling []model.Scaling) *mat.Dense {
	var scaled mat.Dense
	scaled.CloneFrom(t.J)
	for r := range t.rows.names {
		for c := range t.cols.names {
			f := ofScaling[r].Scaler / wrtScaling[c].Scaler
			if f == 1 {
				continue
			}
			r0, c0 := t.rows.offsets[r], t.cols.offsets[c]
			for i := 0; i < t.rows.sizes[r]; i++ {
				for k := 0; k < t.cols.sizes[c]; k++ {
					scaled.Set(r0+i, c0+k, f*scaled.At(r0+i, c0+k))
				}
			}
		}
	}
	return &scaled
}
