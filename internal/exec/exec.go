// Package exec builds components from algebraic equations.
//
// An equation has the form "lhs = rhs" where rhs is a Go expression over
// float variables, numeric literals and a small set of functions. Every free
// identifier on the right-hand side becomes an input; the left-hand side
// becomes an output. Expressions are evaluated over complex128 so that partial
// derivatives can be taken by complex step, which is exact to machine
// precision for analytic expressions.
//
// Example:
//
//	comp, err := exec.New([]string{"b = 2*a1*a2"})
package exec

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"sort"
	"strings"

	"github.com/born-ml/mdo/internal/component"
)

// Common errors.
var (
	ErrSyntax       = errors.New("exec: invalid equation")
	ErrDuplicateOut = errors.New("exec: output assigned twice")
	ErrOutputAsIn   = errors.New("exec: output also used as input")
)

// equation is one parsed "lhs = rhs" line.
type equation struct {
	src    string
	output string
	expr   ast.Expr
	inputs []string
}

// Comp is an explicit component defined by equations.
type Comp struct {
	equations []equation
	inputs    []string
	outputs   []string
	varOpts   map[string][]component.VarOption
}

// Option configures a Comp.
type Option func(*Comp)

// WithVarOptions attaches declaration options to a variable.
func WithVarOptions(name string, opts ...component.VarOption) Option {
	return func(c *Comp) {
		c.varOpts[name] = append(c.varOpts[name], opts...)
	}
}

// New parses equations into a component.
func New(equations []string, opts ...Option) (*Comp, error) {
	if len(equations) == 0 {
		return nil, fmt.Errorf("%w: no equations", ErrSyntax)
	}
	c := &Comp{varOpts: make(map[string][]component.VarOption)}
	for _, opt := range opts {
		opt(c)
	}

	outputs := make(map[string]bool)
	inputs := make(map[string]bool)
	for _, src := range equations {
		eq, err := parseEquation(src)
		if err != nil {
			return nil, err
		}
		if outputs[eq.output] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateOut, eq.output)
		}
		outputs[eq.output] = true
		c.outputs = append(c.outputs, eq.output)
		for _, in := range eq.inputs {
			inputs[in] = true
		}
		c.equations = append(c.equations, eq)
	}
	for in := range inputs {
		if outputs[in] {
			return nil, fmt.Errorf("%w: %q", ErrOutputAsIn, in)
		}
		c.inputs = append(c.inputs, in)
	}
	sort.Strings(c.inputs)
	return c, nil
}

// MustNew is New that panics on error. Intended for literals in tests and
// examples.
func MustNew(equations []string, opts ...Option) *Comp {
	c, err := New(equations, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

func parseEquation(src string) (equation, error) {
	lhs, rhs, ok := strings.Cut(src, "=")
	if !ok || strings.Contains(rhs, "=") {
		return equation{}, fmt.Errorf("%w: %q: want \"lhs = rhs\"", ErrSyntax, src)
	}
	lhs = strings.TrimSpace(lhs)
	if !isIdent(lhs) {
		return equation{}, fmt.Errorf("%w: %q: left-hand side must be a name", ErrSyntax, src)
	}
	expr, err := parser.ParseExpr(rhs)
	if err != nil {
		return equation{}, fmt.Errorf("%w: %q: %v", ErrSyntax, src, err)
	}
	idents, err := freeIdents(expr)
	if err != nil {
		return equation{}, fmt.Errorf("%w: %q: %v", ErrSyntax, src, err)
	}
	return equation{src: src, output: lhs, expr: expr, inputs: idents}, nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// Inputs returns input names in lexical order.
func (c *Comp) Inputs() []string {
	return c.inputs
}

// Outputs returns output names in equation order.
func (c *Comp) Outputs() []string {
	return c.outputs
}

// Setup declares one scalar input per free identifier, one output per
// equation, and complex-step partials of each output with respect to the
// inputs it references.
func (c *Comp) Setup(d *component.Declarations) error {
	for _, in := range c.inputs {
		d.AddInput(in, c.varOpts[in]...)
	}
	for _, eq := range c.equations {
		d.AddOutput(eq.output, c.varOpts[eq.output]...)
		if len(eq.inputs) > 0 {
			d.DeclarePartials([]string{eq.output}, eq.inputs, component.WithMethod(component.MethodCS))
		}
	}
	return nil
}

// Compute evaluates every equation.
func (c *Comp) Compute(in, out *component.Vector) error {
	cin := component.Complexify(in)
	cout := component.NewComplexVector()
	if err := c.ComputeComplex(cin, cout); err != nil {
		return err
	}
	for _, name := range cout.Names() {
		vals := cout.Get(name)
		real64 := make([]float64, len(vals))
		for i, v := range vals {
			real64[i] = real(v)
		}
		out.Set(name, real64...)
	}
	return nil
}

// ComputeComplex evaluates every equation over complex inputs.
func (c *Comp) ComputeComplex(in, out *component.ComplexVector) error {
	for _, eq := range c.equations {
		v, err := eval(eq.expr, in)
		if err != nil {
			return fmt.Errorf("%s: %w", eq.src, err)
		}
		out.Set(eq.output, v)
	}
	return nil
}
