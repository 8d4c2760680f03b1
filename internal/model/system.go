package model

import (
	"math"

	"github.com/born-ml/mdo/internal/component"
)

// Variable is a resolved input or output.
type Variable struct {
	Abs      string // Absolute name, e.g. "comp_1.a1"
	Promoted string // Name visible at group level
	Local    string // Name inside the owning component
	Owner    string // Subsystem name, or AutoIVC
	Meta     component.VarMeta
	Input    bool
}

// Node is a component placed in the model.
type Node struct {
	Name    string
	Comp    component.Explicit
	Decl    *component.Declarations
	Inputs  []*Variable
	Outputs []*Variable
}

// Linearization is one node's Jacobian at a point.
type Linearization struct {
	Node *Node
	J    *component.Jacobian
}

// System is a model after Setup. It is immutable; all values live in a
// separate state vector keyed by absolute names, so a System can be shared
// by goroutines working on distinct states.
type System struct {
	nodes       []*Node // execution order
	ivcs        []*Variable
	vars        map[string]*Variable
	source      map[string]string   // absolute input -> absolute output
	promotedOut map[string]string   // promoted output -> absolute output
	promotedIn  map[string][]string // promoted input -> absolute inputs
	designVars  []DesignVar
	objectives  []Response
	constraints []Response
}

func isInf(v float64) bool {
	return math.IsInf(v, 0)
}

// Nodes returns components in execution order.
func (s *System) Nodes() []*Node {
	return s.nodes
}

// ExecutionOrder returns component names in execution order.
func (s *System) ExecutionOrder() []string {
	names := make([]string, len(s.nodes))
	for i, n := range s.nodes {
		names[i] = n.Name
	}
	return names
}

// Independents returns the automatically created independent outputs.
func (s *System) Independents() []*Variable {
	return s.ivcs
}

// Variable looks up a variable by absolute name.
func (s *System) Variable(abs string) (*Variable, bool) {
	v, ok := s.vars[abs]
	return v, ok
}

// Source returns the absolute output feeding an absolute input.
func (s *System) Source(absInput string) string {
	return s.source[absInput]
}

// DesignVars returns design variables in registration order.
func (s *System) DesignVars() []DesignVar {
	return s.designVars
}

// Objectives returns objectives in registration order.
func (s *System) Objectives() []Response {
	return s.objectives
}

// Constraints returns constraints in registration order.
func (s *System) Constraints() []Response {
	return s.constraints
}

// Responses returns objectives followed by constraints.
func (s *System) Responses() []Response {
	out := append([]Response(nil), s.objectives...)
	return append(out, s.constraints...)
}

// Resolve maps a promoted or absolute variable name to the absolute output
// that holds its value. Inputs resolve to their source.
func (s *System) Resolve(name string) (string, error) {
	if abs, ok := s.promotedOut[name]; ok {
		return abs, nil
	}
	if ins, ok := s.promotedIn[name]; ok {
		return s.source[ins[0]], nil
	}
	if v, ok := s.vars[name]; ok {
		if v.Input {
			return s.source[name], nil
		}
		return name, nil
	}
	return "", setupErr(name, ErrUnknownVar, "")
}

// IsIndependent reports whether the absolute output is driven by nothing.
func (s *System) IsIndependent(abs string) bool {
	v, ok := s.vars[abs]
	return ok && v.Owner == AutoIVC
}

// NewState returns a state vector holding every variable at its default.
func (s *System) NewState() *component.Vector {
	st := component.NewVector()
	for _, v := range s.ivcs {
		st.Add(v.Abs, v.Meta.Val)
	}
	for _, n := range s.nodes {
		for _, v := range n.Inputs {
			st.Add(v.Abs, v.Meta.Val)
		}
		for _, v := range n.Outputs {
			st.Add(v.Abs, v.Meta.Val)
		}
	}
	return st
}

// gather transfers sources into a node's inputs and returns them under
// local names.
func gather[T component.Scalar](s *System, n *Node, st *component.Values[T], in *component.Values[T]) {
	for _, v := range n.Inputs {
		vals := st.Get(s.source[v.Abs])
		st.Set(v.Abs, vals...)
		in.Add(v.Local, vals)
	}
}

// Inputs returns the node's current inputs under local names.
func (s *System) Inputs(n *Node, st *component.Vector) *component.Vector {
	in := component.NewVector()
	gather(s, n, st, in)
	return in
}

// Run executes every component in order, updating st in place.
func (s *System) Run(st *component.Vector) error {
	for _, n := range s.nodes {
		out, err := component.Evaluate(n.Comp, n.Decl, s.Inputs(n, st))
		if err != nil {
			return component.WithComponent(err, n.Name)
		}
		for _, v := range n.Outputs {
			st.Set(v.Abs, out.Get(v.Local)...)
		}
	}
	return nil
}

// SupportsComplex reports whether every component can run with complex
// inputs, which complex-step checks of the whole model require.
func (s *System) SupportsComplex() bool {
	for _, n := range s.nodes {
		if !component.SupportsComplex(n.Comp) {
			return false
		}
	}
	return true
}

// RunComplex is Run over a complex state.
func (s *System) RunComplex(st *component.ComplexVector) error {
	for _, n := range s.nodes {
		in := component.NewComplexVector()
		gather(s, n, st, in)
		out, err := component.EvaluateComplex(n.Comp, n.Decl, in)
		if err != nil {
			return component.WithComponent(err, n.Name)
		}
		for _, v := range n.Outputs {
			st.Set(v.Abs, out.Get(v.Local)...)
		}
	}
	return nil
}

// Linearize computes every node's Jacobian at st, in execution order.
// Inputs are taken as currently stored in st; call Run first.
func (s *System) Linearize(st *component.Vector) ([]Linearization, error) {
	lins := make([]Linearization, 0, len(s.nodes))
	for _, n := range s.nodes {
		j, err := component.Linearize(n.Comp, n.Decl, s.Inputs(n, st))
		if err != nil {
			return nil, component.WithComponent(err, n.Name)
		}
		lins = append(lins, Linearization{Node: n, J: j})
	}
	return lins, nil
}
