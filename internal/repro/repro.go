// Package repro builds the two-component chain used to check that total
// derivatives are unaffected by output reference scaling:
//
//	comp_1: b = 2*a1*a2   (output b declared with ref)
//	comp_2: c = 2*b
//
// with design variables a1, a2 in [0.5, 1.5] (default 1) and objective c.
// The analytic totals are dc/da1 = 4*a2 and dc/da2 = 4*a1; the bounded
// minimum is c = 1 at a1 = a2 = 0.5.
package repro

import (
	"github.com/born-ml/mdo/internal/component"
	"github.com/born-ml/mdo/internal/model"
)

// Product computes b = 2*a1*a2.
type Product struct {
	Ref float64 // Reference scale of b (0 means 1)
}

// Setup declares a1, a2, b and the two exact partials.
func (p Product) Setup(d *component.Declarations) error {
	ref := p.Ref
	if ref == 0 {
		ref = 1
	}
	d.AddInput("a1")
	d.AddInput("a2")
	d.AddOutput("b", component.WithRef(ref, 0))
	d.DeclarePartials([]string{"b"}, []string{"a1", "a2"})
	return nil
}

// Compute sets b.
func (Product) Compute(in, out *component.Vector) error {
	out.Set("b", 2*in.Scalar("a1")*in.Scalar("a2"))
	return nil
}

// ComputeComplex is Compute over complex inputs.
func (Product) ComputeComplex(in, out *component.ComplexVector) error {
	out.Set("b", 2*in.Scalar("a1")*in.Scalar("a2"))
	return nil
}

// ComputePartials sets db/da1 and db/da2.
func (Product) ComputePartials(in *component.Vector, j *component.Jacobian) error {
	j.Set("b", "a1", 2*in.Scalar("a2"))
	j.Set("b", "a2", 2*in.Scalar("a1"))
	return nil
}

// Doubler computes c = 2*b.
type Doubler struct{}

// Setup declares b, c and dc/db.
func (Doubler) Setup(d *component.Declarations) error {
	d.AddInput("b")
	d.AddOutput("c")
	d.DeclarePartials([]string{"c"}, []string{"b"})
	return nil
}

// Compute sets c.
func (Doubler) Compute(in, out *component.Vector) error {
	out.Set("c", 2*in.Scalar("b"))
	return nil
}

// ComputeComplex is Compute over complex inputs.
func (Doubler) ComputeComplex(in, out *component.ComplexVector) error {
	out.Set("c", 2*in.Scalar("b"))
	return nil
}

// ComputePartials sets the constant dc/db.
func (Doubler) ComputePartials(_ *component.Vector, j *component.Jacobian) error {
	j.Set("c", "b", 2)
	return nil
}

// NewModel returns the scenario group with b declared with the given ref.
func NewModel(ref float64) *model.Group {
	g := model.NewGroup()
	g.AddSubsystem("comp_1", Product{Ref: ref}, model.Promotes("*"))
	g.AddSubsystem("comp_2", Doubler{}, model.Promotes("*"))

	g.AddDesignVar("a1", model.Lower(0.5), model.Upper(1.5))
	g.AddDesignVar("a2", model.Lower(0.5), model.Upper(1.5))

	g.SetInputDefaults("a1", 1.0)
	g.SetInputDefaults("a2", 1.0)

	g.AddObjective("c")
	return g
}
