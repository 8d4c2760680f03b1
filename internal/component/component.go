// Package component defines explicit components: the nodes of a model graph.
//
// An explicit component declares named inputs and outputs during Setup,
// computes its outputs from its inputs, and either supplies its partial
// derivatives directly or asks for them to be approximated.
//
// Partials are declared per (of, wrt) pair and come in three flavours:
//   - Exact: the component fills them in ComputePartials
//   - FD: finite differences around the current inputs
//   - CS: complex step, which requires ComputeComplex
//
// Example:
//
//	type product struct{}
//
//	func (product) Setup(d *component.Declarations) error {
//	    d.AddInput("x")
//	    d.AddInput("y")
//	    d.AddOutput("z")
//	    d.DeclarePartials([]string{"z"}, []string{"x", "y"})
//	    return nil
//	}
//
//	func (product) Compute(in, out *component.Vector) error {
//	    out.Set("z", in.Scalar("x")*in.Scalar("y"))
//	    return nil
//	}
//
//	func (product) ComputePartials(in *component.Vector, j *component.Jacobian) error {
//	    j.Set("z", "x", in.Scalar("y"))
//	    j.Set("z", "y", in.Scalar("x"))
//	    return nil
//	}
package component

// Explicit is the base interface for all explicit components.
type Explicit interface {
	// Setup declares the component's variables and partials.
	Setup(d *Declarations) error

	// Compute evaluates outputs from inputs. Only declared outputs may be set.
	Compute(in, out *Vector) error
}

// PartialsComputer is implemented by components that provide exact partials.
type PartialsComputer interface {
	// ComputePartials fills the sub-Jacobians declared with MethodExact.
	ComputePartials(in *Vector, j *Jacobian) error
}

// ComplexComputer is implemented by components that can be evaluated with
// complex inputs. It enables complex-step partials and complex-step checks
// of whole models.
type ComplexComputer interface {
	ComputeComplex(in, out *ComplexVector) error
}

// Evaluate runs c.Compute on in and returns a fresh output vector seeded with
// the declared output defaults. The result is validated against the
// declarations.
func Evaluate(c Explicit, d *Declarations, in *Vector) (*Vector, error) {
	out := NewVector()
	for _, meta := range d.outputs {
		out.Add(meta.Name, meta.Val)
	}
	if err := c.Compute(in, out); err != nil {
		return nil, &Error{Op: "compute", Err: err}
	}
	if err := d.checkOutputs(out.names, out.Size); err != nil {
		return nil, err
	}
	return out, nil
}

// EvaluateComplex is Evaluate for complex inputs.
func EvaluateComplex(c Explicit, d *Declarations, in *ComplexVector) (*ComplexVector, error) {
	cc, ok := c.(ComplexComputer)
	if !ok {
		return nil, &Error{Op: "compute_complex", Err: ErrNoComplex}
	}
	out := NewComplexVector()
	for _, meta := range d.outputs {
		vals := make([]complex128, len(meta.Val))
		for i, v := range meta.Val {
			vals[i] = complex(v, 0)
		}
		out.Add(meta.Name, vals)
	}
	if err := cc.ComputeComplex(in, out); err != nil {
		return nil, &Error{Op: "compute_complex", Err: err}
	}
	if err := d.checkOutputs(out.names, out.Size); err != nil {
		return nil, err
	}
	return out, nil
}

// SupportsComplex reports whether c can be evaluated with complex inputs.
func SupportsComplex(c Explicit) bool {
	_, ok := c.(ComplexComputer)
	return ok
}
