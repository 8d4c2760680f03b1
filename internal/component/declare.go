package component

import (
	"errors"
	"fmt"
	"math"
	"path"
)

// VarMeta describes a declared input or output.
type VarMeta struct {
	Name  string
	Size  int
	Val   []float64 // Default value (default: ones)
	Ref   float64   // Value that scales to 1 (default: 1)
	Ref0  float64   // Value that scales to 0 (default: 0)
	Lower float64   // Lower bound for reporting (default: -Inf)
	Upper float64   // Upper bound for reporting (default: +Inf)
	Units string
	Desc  string
}

// VarOption configures a VarMeta.
type VarOption func(*VarMeta)

// WithSize sets the flat size of the variable.
func WithSize(n int) VarOption {
	return func(m *VarMeta) {
		m.Size = n
	}
}

// WithVal sets the default value. A single value is broadcast to the size.
func WithVal(vals ...float64) VarOption {
	return func(m *VarMeta) {
		m.Val = append([]float64(nil), vals...)
	}
}

// WithRef sets the reference values used for scaling.
func WithRef(ref, ref0 float64) VarOption {
	return func(m *VarMeta) {
		m.Ref = ref
		m.Ref0 = ref0
	}
}

// WithBounds sets informational bounds.
func WithBounds(lower, upper float64) VarOption {
	return func(m *VarMeta) {
		m.Lower = lower
		m.Upper = upper
	}
}

// WithUnits sets the units label.
func WithUnits(units string) VarOption {
	return func(m *VarMeta) {
		m.Units = units
	}
}

// WithDesc sets a description.
func WithDesc(desc string) VarOption {
	return func(m *VarMeta) {
		m.Desc = desc
	}
}

func newVarMeta(name string, opts []VarOption) (VarMeta, error) {
	m := VarMeta{
		Name:  name,
		Size:  0,
		Ref:   1,
		Lower: math.Inf(-1),
		Upper: math.Inf(1),
	}
	for _, opt := range opts {
		opt(&m)
	}
	switch {
	case m.Size == 0 && len(m.Val) > 1:
		m.Size = len(m.Val)
	case m.Size == 0:
		m.Size = 1
	}
	if m.Size < 0 {
		return m, fmt.Errorf("%q: negative size %d", name, m.Size)
	}
	switch len(m.Val) {
	case 0:
		m.Val = filled(m.Size, 1)
	case 1:
		m.Val = filled(m.Size, m.Val[0])
	case m.Size:
	default:
		return m, fmt.Errorf("%q: default has %d values, size is %d: %w", name, len(m.Val), m.Size, ErrBadSize)
	}
	if m.Ref == m.Ref0 {
		return m, fmt.Errorf("%q: ref and ref0 must differ", name)
	}
	return m, nil
}

func filled(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Method selects how a partial derivative is obtained.
type Method string

// Partial methods.
const (
	MethodExact Method = "exact"
	MethodFD    Method = "fd"
	MethodCS    Method = "cs"
)

// Form selects the finite-difference formula.
type Form string

// Finite-difference forms.
const (
	Forward  Form = "forward"
	Backward Form = "backward"
	Central  Form = "central"
)

// Default approximation steps.
const (
	DefaultFDStep = 1e-6
	DefaultCSStep = 1e-40
)

// PartialMeta describes one declared (of, wrt) sub-Jacobian.
type PartialMeta struct {
	Of     string
	Wrt    string
	Method Method
	Step   float64
	Form   Form
}

// PartialOption configures declared partials.
type PartialOption func(*PartialMeta)

// WithMethod sets the partial method.
func WithMethod(m Method) PartialOption {
	return func(p *PartialMeta) {
		p.Method = m
	}
}

// WithStep sets the approximation step.
func WithStep(step float64) PartialOption {
	return func(p *PartialMeta) {
		p.Step = step
	}
}

// WithForm sets the finite-difference form.
func WithForm(f Form) PartialOption {
	return func(p *PartialMeta) {
		p.Form = f
	}
}

type partialPattern struct {
	of, wrt []string
	opts    []PartialOption
}

// Declarations collects everything a component declares in Setup.
type Declarations struct {
	inputs   []VarMeta
	outputs  []VarMeta
	byName   map[string]int // index into inputs (>= 0) or outputs (-1 - idx)
	patterns []partialPattern
	partials []PartialMeta
	index    map[Key]int
	errs     []error
}

func newDeclarations() *Declarations {
	return &Declarations{
		byName: make(map[string]int),
		index:  make(map[Key]int),
	}
}

// AddInput declares an input.
func (d *Declarations) AddInput(name string, opts ...VarOption) {
	m, err := d.add(name, opts)
	if err != nil {
		d.errs = append(d.errs, fmt.Errorf("input %w", err))
		return
	}
	d.byName[name] = len(d.inputs)
	d.inputs = append(d.inputs, m)
}

// AddOutput declares an output.
func (d *Declarations) AddOutput(name string, opts ...VarOption) {
	m, err := d.add(name, opts)
	if err != nil {
		d.errs = append(d.errs, fmt.Errorf("output %w", err))
		return
	}
	d.byName[name] = -1 - len(d.outputs)
	d.outputs = append(d.outputs, m)
}

func (d *Declarations) add(name string, opts []VarOption) (VarMeta, error) {
	if name == "" {
		return VarMeta{}, errors.New("empty variable name")
	}
	if _, dup := d.byName[name]; dup {
		return VarMeta{}, fmt.Errorf("%q: %w", name, ErrDuplicateVar)
	}
	return newVarMeta(name, opts)
}

// DeclarePartials declares partials of every output matching an of pattern
// with respect to every input matching a wrt pattern. Patterns use path.Match
// syntax, so "*" selects everything. Patterns are resolved after Setup.
func (d *Declarations) DeclarePartials(of, wrt []string, opts ...PartialOption) {
	d.patterns = append(d.patterns, partialPattern{of: of, wrt: wrt, opts: opts})
}

// Inputs returns declared inputs in declaration order.
func (d *Declarations) Inputs() []VarMeta {
	return d.inputs
}

// Outputs returns declared outputs in declaration order.
func (d *Declarations) Outputs() []VarMeta {
	return d.outputs
}

// Input looks up an input by name.
func (d *Declarations) Input(name string) (VarMeta, bool) {
	i, ok := d.byName[name]
	if !ok || i < 0 {
		return VarMeta{}, false
	}
	return d.inputs[i], true
}

// Output looks up an output by name.
func (d *Declarations) Output(name string) (VarMeta, bool) {
	i, ok := d.byName[name]
	if !ok || i >= 0 {
		return VarMeta{}, false
	}
	return d.outputs[-1-i], true
}

// Partials returns the resolved partial declarations.
func (d *Declarations) Partials() []PartialMeta {
	return d.partials
}

// Partial looks up the declaration for (of, wrt).
func (d *Declarations) Partial(of, wrt string) (PartialMeta, bool) {
	i, ok := d.index[Key{Of: of, Wrt: wrt}]
	if !ok {
		return PartialMeta{}, false
	}
	return d.partials[i], true
}

// HasMethod reports whether any partial uses m.
func (d *Declarations) HasMethod(m Method) bool {
	for _, p := range d.partials {
		if p.Method == m {
			return true
		}
	}
	return false
}

func (d *Declarations) resolve() error {
	for _, pat := range d.patterns {
		ofs, err := match(pat.of, d.outputs)
		if err != nil {
			return fmt.Errorf("of: %w", err)
		}
		wrts, err := match(pat.wrt, d.inputs)
		if err != nil {
			return fmt.Errorf("wrt: %w", err)
		}
		for _, of := range ofs {
			for _, wrt := range wrts {
				p := PartialMeta{Of: of, Wrt: wrt, Method: MethodExact, Form: Forward}
				for _, opt := range pat.opts {
					opt(&p)
				}
				if err := p.normalize(); err != nil {
					return err
				}
				key := Key{Of: of, Wrt: wrt}
				if i, ok := d.index[key]; ok {
					d.partials[i] = p // later declarations win
					continue
				}
				d.index[key] = len(d.partials)
				d.partials = append(d.partials, p)
			}
		}
	}
	return nil
}

func (p *PartialMeta) normalize() error {
	switch p.Method {
	case MethodExact:
	case MethodFD:
		if p.Step == 0 {
			p.Step = DefaultFDStep
		}
		switch p.Form {
		case Forward, Backward, Central:
		default:
			return fmt.Errorf("(%s, %s): unknown form %q", p.Of, p.Wrt, p.Form)
		}
	case MethodCS:
		if p.Step == 0 {
			p.Step = DefaultCSStep
		}
	default:
		return fmt.Errorf("(%s, %s): %w %q", p.Of, p.Wrt, ErrBadMethod, p.Method)
	}
	return nil
}

func match(patterns []string, vars []VarMeta) ([]string, error) {
	var names []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		found := false
		for _, v := range vars {
			ok, err := path.Match(pattern, v.Name)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", pattern, err)
			}
			if !ok {
				continue
			}
			found = true
			if !seen[v.Name] {
				seen[v.Name] = true
				names = append(names, v.Name)
			}
		}
		if !found {
			return nil, fmt.Errorf("%q: %w", pattern, ErrNoMatch)
		}
	}
	return names, nil
}

func (d *Declarations) checkOutputs(names []string, size func(string) int) error {
	for _, name := range names {
		m, ok := d.Output(name)
		if !ok {
			return &Error{Op: "compute", Err: fmt.Errorf("output %q: %w", name, ErrUndeclaredVar)}
		}
		if n := size(name); n != m.Size {
			return &Error{Op: "compute", Err: fmt.Errorf("output %q has %d values, want %d: %w", name, n, m.Size, ErrBadSize)}
		}
	}
	return nil
}

// Declare runs c.Setup and validates the result.
func Declare(c Explicit) (*Declarations, error) {
	d := newDeclarations()
	if err := c.Setup(d); err != nil {
		return nil, &Error{Op: "setup", Err: err}
	}
	if len(d.errs) > 0 {
		return nil, &Error{Op: "setup", Err: errors.Join(d.errs...)}
	}
	if err := d.resolve(); err != nil {
		return nil, &Error{Op: "declare_partials", Err: err}
	}
	if _, ok := c.(PartialsComputer); !ok && d.HasMethod(MethodExact) {
		return nil, &Error{Op: "declare_partials", Err: ErrNoPartials}
	}
	if _, ok := c.(ComplexComputer); !ok && d.HasMethod(MethodCS) {
		return nil, &Error{Op: "declare_partials", Err: ErrNoComplex}
	}
	return d, nil
}
