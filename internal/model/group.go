// Package model wires explicit components into a directed acyclic graph.
//
// A Group collects subsystems, promotions, connections and the optimization
// registrations (design variables, objectives, constraints). Setup resolves
// all of it into an immutable System that can run the model and linearize
// every component at a point.
//
// Naming follows the usual convention: a variable's absolute name is
// "<subsystem>.<local>". Promoting a variable exposes it under its local name
// at group level; a promoted input with the same name as a promoted output is
// connected to it implicitly. Promoted inputs without a source are driven by
// automatically created independent outputs ("_auto_ivc.vN").
//
// Example:
//
//	g := model.NewGroup()
//	g.AddSubsystem("comp_1", comp1, model.Promotes("*"))
//	g.AddSubsystem("comp_2", comp2, model.Promotes("*"))
//	g.SetInputDefaults("a1", 1.0)
//	g.AddDesignVar("a1", model.Lower(0.5), model.Upper(1.5))
//	g.AddObjective("c")
//	sys, err := g.Setup()
package model

import (
	"fmt"
	"strings"

	"github.com/born-ml/mdo/internal/component"
)

// AutoIVC is the owner name of automatically created independent outputs.
const AutoIVC = "_auto_ivc"

type subsystem struct {
	name        string
	comp        component.Explicit
	promotesIn  []string
	promotesOut []string
}

// SubsystemOption configures how a subsystem is added.
type SubsystemOption func(*subsystem)

// Promotes promotes inputs and outputs matching the patterns.
func Promotes(patterns ...string) SubsystemOption {
	return func(s *subsystem) {
		s.promotesIn = append(s.promotesIn, patterns...)
		s.promotesOut = append(s.promotesOut, patterns...)
	}
}

// PromotesInputs promotes inputs matching the patterns.
func PromotesInputs(patterns ...string) SubsystemOption {
	return func(s *subsystem) {
		s.promotesIn = append(s.promotesIn, patterns...)
	}
}

// PromotesOutputs promotes outputs matching the patterns.
func PromotesOutputs(patterns ...string) SubsystemOption {
	return func(s *subsystem) {
		s.promotesOut = append(s.promotesOut, patterns...)
	}
}

type connection struct {
	src, tgt string
}

type registration struct {
	name string
	kind ResponseKind
	lim  limits
}

// Group is a mutable model description. It is not safe for concurrent use.
type Group struct {
	subsystems  []*subsystem
	conns       []connection
	defaults    map[string][]float64
	designVars  []registration
	responses   []registration
	errs        []error
	subsysIndex map[string]bool
}

// NewGroup creates an empty group.
func NewGroup() *Group {
	return &Group{
		defaults:    make(map[string][]float64),
		subsysIndex: make(map[string]bool),
	}
}

// AddSubsystem adds a component under name. Errors are reported by Setup.
func (g *Group) AddSubsystem(name string, c component.Explicit, opts ...SubsystemOption) {
	switch {
	case name == "" || strings.ContainsAny(name, ". ") || name == AutoIVC:
		g.errs = append(g.errs, setupErr(name, ErrBadName, "subsystem names must be non-empty without dots or spaces"))
		return
	case g.subsysIndex[name]:
		g.errs = append(g.errs, setupErr(name, ErrDuplicateSubsystem, ""))
		return
	case c == nil:
		g.errs = append(g.errs, setupErr(name, ErrBadName, "nil component"))
		return
	}
	s := &subsystem{name: name, comp: c}
	for _, opt := range opts {
		opt(s)
	}
	g.subsysIndex[name] = true
	g.subsystems = append(g.subsystems, s)
}

// Connect connects an output (promoted or absolute name) to an input.
func (g *Group) Connect(src, tgt string) {
	g.conns = append(g.conns, connection{src: src, tgt: tgt})
}

// SetInputDefaults sets the value of the independent output that will drive
// the promoted input name. A single value is broadcast to the input size.
func (g *Group) SetInputDefaults(name string, val ...float64) {
	g.defaults[name] = append([]float64(nil), val...)
}

// AddDesignVar registers an independent variable the driver may change.
func (g *Group) AddDesignVar(name string, opts ...Option) {
	g.designVars = append(g.designVars, registration{name: name, lim: newLimits(opts)})
}

// AddObjective registers the objective.
func (g *Group) AddObjective(name string, opts ...Option) {
	g.responses = append(g.responses, registration{name: name, kind: Objective, lim: newLimits(opts)})
}

// AddConstraint registers a constraint. Give Equals for an equality, or
// Lower and/or Upper for an inequality.
func (g *Group) AddConstraint(name string, opts ...Option) {
	g.responses = append(g.responses, registration{name: name, kind: Constraint, lim: newLimits(opts)})
}

// Subsystems returns subsystem names in the order they were added.
func (g *Group) Subsystems() []string {
	names := make([]string, len(g.subsystems))
	for i, s := range g.subsystems {
		names[i] = s.name
	}
	return names
}

func (g *Group) String() string {
	return fmt.Sprintf("Group(%s)", strings.Join(g.Subsystems(), ", "))
}
