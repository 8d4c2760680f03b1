package component

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Key identifies a sub-Jacobian d(Of)/d(Wrt).
type Key struct {
	Of  string
	Wrt string
}

// String returns "(of, wrt)".
func (k Key) String() string {
	return "(" + k.Of + ", " + k.Wrt + ")"
}

// Jacobian holds the declared sub-Jacobians of one component.
// Each block is size(Of) x size(Wrt). Undeclared pairs are structurally zero.
type Jacobian struct {
	blocks map[Key]*mat.Dense
	keys   []Key
	errs   []error
}

// NewJacobian allocates zero blocks for every partial in d.
func NewJacobian(d *Declarations) *Jacobian {
	j := &Jacobian{blocks: make(map[Key]*mat.Dense, len(d.partials))}
	for _, p := range d.partials {
		of, _ := d.Output(p.Of)
		wrt, _ := d.Input(p.Wrt)
		key := Key{Of: p.Of, Wrt: p.Wrt}
		j.blocks[key] = mat.NewDense(of.Size, wrt.Size, nil)
		j.keys = append(j.keys, key)
	}
	return j
}

// Set assigns a sub-Jacobian in row-major order. A single value is broadcast
// to every entry.
func (j *Jacobian) Set(of, wrt string, vals ...float64) {
	key := Key{Of: of, Wrt: wrt}
	block, ok := j.blocks[key]
	if !ok {
		j.errs = append(j.errs, fmt.Errorf("%s: %w", key, ErrPartialUnknown))
		return
	}
	r, c := block.Dims()
	switch len(vals) {
	case 1:
		for i := 0; i < r; i++ {
			for k := 0; k < c; k++ {
				block.Set(i, k, vals[0])
			}
		}
	case r * c:
		block.Copy(mat.NewDense(r, c, append([]float64(nil), vals...)))
	default:
		j.errs = append(j.errs, fmt.Errorf("%s: got %d values for %dx%d block: %w", key, len(vals), r, c, ErrBadSize))
	}
}

// SetDiagonal assigns the diagonal of a square sub-Jacobian.
func (j *Jacobian) SetDiagonal(of, wrt string, diag ...float64) {
	key := Key{Of: of, Wrt: wrt}
	block, ok := j.blocks[key]
	if !ok {
		j.errs = append(j.errs, fmt.Errorf("%s: %w", key, ErrPartialUnknown))
		return
	}
	r, c := block.Dims()
	if r != c || (len(diag) != r && len(diag) != 1) {
		j.errs = append(j.errs, fmt.Errorf("%s: diagonal of %dx%d block: %w", key, r, c, ErrBadSize))
		return
	}
	block.Zero()
	for i := 0; i < r; i++ {
		if len(diag) == 1 {
			block.Set(i, i, diag[0])
		} else {
			block.Set(i, i, diag[i])
		}
	}
}

// Block returns the sub-Jacobian for (of, wrt), or nil if undeclared.
func (j *Jacobian) Block(of, wrt string) *mat.Dense {
	return j.blocks[Key{Of: of, Wrt: wrt}]
}

// Keys returns declared pairs in declaration order.
func (j *Jacobian) Keys() []Key {
	return j.keys
}

// SortedKeys returns declared pairs ordered by (Of, Wrt).
func (j *Jacobian) SortedKeys() []Key {
	keys := append([]Key(nil), j.keys...)
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].Of != keys[b].Of {
			return keys[a].Of < keys[b].Of
		}
		return keys[a].Wrt < keys[b].Wrt
	})
	return keys
}

// Err returns accumulated Set errors.
func (j *Jacobian) Err() error {
	return errors.Join(j.errs...)
}
