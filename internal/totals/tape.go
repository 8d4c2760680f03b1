package totals

import (
	"github.com/born-ml/mdo/internal/model"
	"gonum.org/v1/gonum/mat"
)

// link is one nonzero partial d(output)/d(source of input), with the
// input already resolved to the absolute output that feeds it.
type link struct {
	out   string // absolute output
	src   string // absolute output feeding the input
	block *mat.Dense
}

// tape records the linearized model in execution order. Forward walks it
// front to back; Backward walks it in reverse and accumulates adjoints, the
// same way a gradient tape accumulates input gradients from output gradients.
type tape struct {
	entries [][]link // one slice per node, in execution order
	sizes   map[string]int
}

func record(sys *model.System, lins []model.Linearization) *tape {
	t := &tape{sizes: make(map[string]int)}
	for _, v := range sys.Independents() {
		t.sizes[v.Abs] = v.Meta.Size
	}
	for _, lin := range lins {
		n := lin.Node
		var links []link
		for _, out := range n.Outputs {
			t.sizes[out.Abs] = out.Meta.Size
			for _, in := range n.Inputs {
				block := lin.J.Block(out.Local, in.Local)
				if block == nil {
					continue
				}
				links = append(links, link{out: out.Abs, src: sys.Source(in.Abs), block: block})
			}
		}
		t.entries = append(t.entries, links)
	}
	return t
}

func (t *tape) zero(abs string) *mat.VecDense {
	return mat.NewVecDense(t.sizes[abs], nil)
}

// Forward propagates a seed on one independent output through the model and
// returns the directional derivative of every output.
func (t *tape) Forward(seed string, seedVec *mat.VecDense) map[string]*mat.VecDense {
	d := map[string]*mat.VecDense{seed: seedVec}
	for _, links := range t.entries {
		for _, l := range links {
			dsrc, ok := d[l.src]
			if !ok {
				continue
			}
			dout, ok := d[l.out]
			if !ok {
				dout = t.zero(l.out)
				d[l.out] = dout
			}
			var tmp mat.VecDense
			tmp.MulVec(l.block, dsrc)
			dout.AddVec(dout, &tmp)
		}
	}
	return d
}

// Backward propagates an adjoint seed on one output back to every output
// upstream of it, including the independents.
func (t *tape) Backward(seed string, seedVec *mat.VecDense) map[string]*mat.VecDense {
	adj := map[string]*mat.VecDense{seed: seedVec}
	for i := len(t.entries) - 1; i >= 0; i-- {
		for _, l := range t.entries[i] {
			aout, ok := adj[l.out]
			if !ok {
				continue
			}
			asrc, ok := adj[l.src]
			if !ok {
				asrc = t.zero(l.src)
				adj[l.src] = asrc
			}
			var tmp mat.VecDense
			tmp.MulVec(l.block.T(), aout)
			asrc.AddVec(asrc, &tmp)
		}
	}
	return adj
}
