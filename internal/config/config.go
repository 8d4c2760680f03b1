// Package config loads optimization problems from YAML files.
//
// A problem file lists expression components, how their variables are
// promoted or connected, design variables, responses and the driver:
//
//	name: totals-repro
//	components:
//	  - name: comp_1
//	    equations: ["b = 2*a1*a2"]
//	    promotes: ["*"]
//	    outputs: {b: {ref: 1}}
//	  - name: comp_2
//	    equations: ["c = 2*b"]
//	    promotes: ["*"]
//	design_vars:
//	  a1: {lower: 0.5, upper: 1.5}
//	  a2: {lower: 0.5, upper: 1.5}
//	input_defaults: {a1: 1.0, a2: 1.0}
//	objective: c
//	driver: {optimizer: SLSQP, maxiter: 200, tol: 1e-6}
//
// Design variables and constraints keep their file order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("config: invalid problem file")

// File is a parsed problem file.
type File struct {
	Name          string            `yaml:"name"`
	Components    []Component       `yaml:"components"`
	Connections   []Connection      `yaml:"connections,omitempty"`
	InputDefaults map[string]Floats `yaml:"input_defaults,omitempty"`
	DesignVars    Named[Bounds]     `yaml:"design_vars,omitempty"`
	Objective     *Response         `yaml:"objective,omitempty"`
	Constraints   Named[Bounds]     `yaml:"constraints,omitempty"`
	Driver        Driver            `yaml:"driver,omitempty"`
}

// Component is one subsystem. Kind selects a built-in component; without a
// kind the component is built from Equations.
type Component struct {
	Name            string             `yaml:"name"`
	Kind            string             `yaml:"kind,omitempty"`
	Params          map[string]float64 `yaml:"params,omitempty"`
	Equations       []string           `yaml:"equations,omitempty"`
	Promotes        []string           `yaml:"promotes,omitempty"`
	PromotesInputs  []string           `yaml:"promotes_inputs,omitempty"`
	PromotesOutputs []string           `yaml:"promotes_outputs,omitempty"`
	Inputs          map[string]Var     `yaml:"inputs,omitempty"`
	Outputs         map[string]Var     `yaml:"outputs,omitempty"`
}

// Var holds optional metadata for an expression variable.
type Var struct {
	Val   Floats   `yaml:"val,omitempty"`
	Ref   *float64 `yaml:"ref,omitempty"`
	Ref0  *float64 `yaml:"ref0,omitempty"`
	Lower *float64 `yaml:"lower,omitempty"`
	Upper *float64 `yaml:"upper,omitempty"`
	Units string   `yaml:"units,omitempty"`
	Desc  string   `yaml:"desc,omitempty"`
}

// Connection links an output to an input by absolute or promoted name.
type Connection struct {
	Src string `yaml:"src"`
	Tgt string `yaml:"tgt"`
}

// Bounds configures a design variable or constraint.
type Bounds struct {
	Lower  *float64 `yaml:"lower,omitempty"`
	Upper  *float64 `yaml:"upper,omitempty"`
	Equals *float64 `yaml:"equals,omitempty"`
	Ref    *float64 `yaml:"ref,omitempty"`
	Ref0   *float64 `yaml:"ref0,omitempty"`
	Scaler *float64 `yaml:"scaler,omitempty"`
	Adder  *float64 `yaml:"adder,omitempty"`
}

// Response is the objective: a bare name or a mapping with scaling.
type Response struct {
	Name   string   `yaml:"name"`
	Ref    *float64 `yaml:"ref,omitempty"`
	Ref0   *float64 `yaml:"ref0,omitempty"`
	Scaler *float64 `yaml:"scaler,omitempty"`
	Adder  *float64 `yaml:"adder,omitempty"`
}

// UnmarshalYAML accepts "objective: c" as well as a full mapping.
func (r *Response) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*r = Response{Name: node.Value}
		return nil
	}
	type plain Response
	var p plain
	if err := decodeStrict(node, &p); err != nil {
		return err
	}
	*r = Response(p)
	return nil
}

// Driver configures the optimizer.
type Driver struct {
	Optimizer string  `yaml:"optimizer,omitempty"`
	MaxIter   int     `yaml:"maxiter,omitempty"`
	Tol       float64 `yaml:"tol,omitempty"`
	Disp      *bool   `yaml:"disp,omitempty"`
}

// Floats is a scalar or a list of numbers.
type Floats []float64

// UnmarshalYAML implements yaml.Unmarshaler for Floats.
func (f *Floats) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var v float64
		if err := node.Decode(&v); err != nil {
			return err
		}
		*f = Floats{v}
		return nil
	case yaml.SequenceNode:
		var list []float64
		if err := node.Decode(&list); err != nil {
			return err
		}
		*f = list
		return nil
	default:
		return fmt.Errorf("line %d: expected number or list of numbers", node.Line)
	}
}

// Entry is one item of an ordered mapping.
type Entry[T any] struct {
	Name  string
	Value T
}

// Named is a YAML mapping that keeps its key order.
type Named[T any] []Entry[T]

// UnmarshalYAML implements yaml.Unmarshaler for Named.
func (n *Named[T]) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	out := make(Named[T], 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var e Entry[T]
		e.Name = node.Content[i].Value
		if err := decodeStrict(node.Content[i+1], &e.Value); err != nil {
			return fmt.Errorf("%s: %w", e.Name, err)
		}
		out = append(out, e)
	}
	*n = out
	return nil
}

// MarshalYAML writes Named back as an ordered mapping.
func (n Named[T]) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range n {
		var v yaml.Node
		if err := v.Encode(e.Value); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: e.Name}, &v)
	}
	return node, nil
}

// decodeStrict decodes node into v rejecting unknown keys. node.Decode
// starts a fresh decoder that does not inherit KnownFields.
func decodeStrict(node *yaml.Node, v any) error {
	data, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	return nil
}

// Load reads and validates a problem file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates a problem file. Unknown keys are errors.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks the file for problems that do not need a model setup.
func (f *File) Validate() error {
	if len(f.Components) == 0 {
		return invalid("no components")
	}
	seen := make(map[string]bool)
	for i, c := range f.Components {
		if c.Name == "" {
			return invalid("component %d has no name", i)
		}
		if seen[c.Name] {
			return invalid("duplicate component %q", c.Name)
		}
		seen[c.Name] = true
		switch {
		case c.Kind == "" && len(c.Equations) == 0:
			return invalid("component %q needs equations or a kind", c.Name)
		case c.Kind != "" && len(c.Equations) > 0:
			return invalid("component %q has both equations and kind %q", c.Name, c.Kind)
		case c.Kind != "":
			if _, ok := builtins[c.Kind]; !ok {
				return invalid("component %q: unknown kind %q", c.Name, c.Kind)
			}
		}
	}
	for _, c := range f.Connections {
		if c.Src == "" || c.Tgt == "" {
			return invalid("connection needs src and tgt")
		}
	}
	if len(f.DesignVars) > 0 && f.Objective == nil {
		return invalid("design variables without an objective")
	}
	if f.Objective != nil && f.Objective.Name == "" {
		return invalid("objective has no name")
	}
	for _, c := range f.Constraints {
		b := c.Value
		if b.Lower == nil && b.Upper == nil && b.Equals == nil {
			return invalid("constraint %q needs lower, upper or equals", c.Name)
		}
	}
	if f.Driver.MaxIter < 0 || f.Driver.Tol < 0 {
		return invalid("driver maxiter and tol must be positive")
	}
	return nil
}
