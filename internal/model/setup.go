package model

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/born-ml/mdo/internal/component"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// setupState carries intermediate tables while a Group is resolved.
type setupState struct {
	g           *Group
	sys         *System
	nodeOf      map[string]int // subsystem name -> index in declaration order
	nodes       []*Node        // declaration order
	promotedIn  map[string][]*Variable
	promotedOrd []string
}

// Setup resolves the group into a System.
func (g *Group) Setup() (*System, error) {
	if len(g.errs) > 0 {
		return nil, errors.Join(g.errs...)
	}
	st := &setupState{
		g: g,
		sys: &System{
			vars:        make(map[string]*Variable),
			source:      make(map[string]string),
			promotedOut: make(map[string]string),
			promotedIn:  make(map[string][]string),
		},
		nodeOf:     make(map[string]int),
		promotedIn: make(map[string][]*Variable),
	}
	steps := []func() error{
		st.declare,
		st.promote,
		st.connect,
		st.autoIVC,
		st.order,
		st.designVars,
		st.responses,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return st.sys, nil
}

func promoted(patterns []string, local string) bool {
	for _, p := range patterns {
		if ok, _ := path.Match(p, local); ok {
			return true
		}
	}
	return false
}

func (st *setupState) declare() error {
	for i, s := range st.g.subsystems {
		decl, err := component.Declare(s.comp)
		if err != nil {
			return component.WithComponent(err, s.name)
		}
		for _, p := range append(append([]string(nil), s.promotesIn...), s.promotesOut...) {
			if _, err := path.Match(p, ""); err != nil {
				return setupErr(s.name, ErrBadName, "promotes pattern %q: %v", p, err)
			}
		}
		n := &Node{Name: s.name, Comp: s.comp, Decl: decl}
		for _, meta := range decl.Inputs() {
			v := &Variable{Abs: s.name + "." + meta.Name, Local: meta.Name, Owner: s.name, Meta: meta, Input: true}
			v.Promoted = v.Abs
			if promoted(s.promotesIn, meta.Name) {
				v.Promoted = meta.Name
			}
			n.Inputs = append(n.Inputs, v)
			st.sys.vars[v.Abs] = v
		}
		for _, meta := range decl.Outputs() {
			v := &Variable{Abs: s.name + "." + meta.Name, Local: meta.Name, Owner: s.name, Meta: meta}
			v.Promoted = v.Abs
			if promoted(s.promotesOut, meta.Name) {
				v.Promoted = meta.Name
			}
			n.Outputs = append(n.Outputs, v)
			st.sys.vars[v.Abs] = v
		}
		st.nodeOf[s.name] = i
		st.nodes = append(st.nodes, n)
	}
	return nil
}

func (st *setupState) promote() error {
	for _, n := range st.nodes {
		for _, v := range n.Outputs {
			if prev, dup := st.sys.promotedOut[v.Promoted]; dup {
				return setupErr(v.Promoted, ErrPromotionConflict, "%s and %s", prev, v.Abs)
			}
			st.sys.promotedOut[v.Promoted] = v.Abs
		}
		for _, v := range n.Inputs {
			if _, ok := st.promotedIn[v.Promoted]; !ok {
				st.promotedOrd = append(st.promotedOrd, v.Promoted)
			}
			st.promotedIn[v.Promoted] = append(st.promotedIn[v.Promoted], v)
			st.sys.promotedIn[v.Promoted] = append(st.sys.promotedIn[v.Promoted], v.Abs)
		}
	}
	// Implicit connections by promotion.
	for _, name := range st.promotedOrd {
		src, ok := st.sys.promotedOut[name]
		if !ok {
			continue
		}
		for _, in := range st.promotedIn[name] {
			if err := st.link(src, in); err != nil {
				return err
			}
		}
	}
	return nil
}

func (st *setupState) link(src string, in *Variable) error {
	if prev, ok := st.sys.source[in.Abs]; ok {
		return setupErr(in.Abs, ErrAlreadyConnected, "from %s, cannot also connect %s", prev, src)
	}
	out := st.sys.vars[src]
	if out.Meta.Size != in.Meta.Size {
		return setupErr(in.Abs, ErrSizeMismatch, "%s has size %d, input has size %d", src, out.Meta.Size, in.Meta.Size)
	}
	st.sys.source[in.Abs] = src
	return nil
}

func (st *setupState) connect() error {
	for _, c := range st.g.conns {
		src, ok := st.sys.promotedOut[c.src]
		if !ok {
			if v, isVar := st.sys.vars[c.src]; isVar && !v.Input {
				src = c.src
			} else {
				return setupErr(c.src, ErrUnknownVar, "connect source must be an output")
			}
		}
		targets, ok := st.promotedIn[c.tgt]
		if !ok {
			v, isVar := st.sys.vars[c.tgt]
			if !isVar || !v.Input {
				return setupErr(c.tgt, ErrUnknownVar, "connect target must be an input")
			}
			targets = []*Variable{v}
		}
		for _, in := range targets {
			if err := st.link(src, in); err != nil {
				return err
			}
		}
	}
	return nil
}

func (st *setupState) autoIVC() error {
	for name := range st.g.defaults {
		if _, ok := st.promotedIn[name]; !ok {
			return setupErr(name, ErrUnknownVar, "input defaults set for a name that is not a promoted input")
		}
	}
	for _, name := range st.promotedOrd {
		ins := st.promotedIn[name]
		var unsourced []*Variable
		for _, in := range ins {
			if _, ok := st.sys.source[in.Abs]; !ok {
				unsourced = append(unsourced, in)
			}
		}
		if len(unsourced) == 0 {
			if _, ok := st.g.defaults[name]; ok {
				return setupErr(name, ErrAlreadyConnected, "input defaults apply only to unconnected inputs")
			}
			continue
		}
		size := unsourced[0].Meta.Size
		for _, in := range unsourced[1:] {
			if in.Meta.Size != size {
				return setupErr(name, ErrSizeMismatch, "promoted inputs %s and %s differ in size", unsourced[0].Abs, in.Abs)
			}
		}
		val := unsourced[0].Meta.Val
		if def, ok := st.g.defaults[name]; ok {
			switch len(def) {
			case 1:
				val = make([]float64, size)
				for i := range val {
					val[i] = def[0]
				}
			case size:
				val = def
			default:
				return setupErr(name, ErrSizeMismatch, "input default has %d values, input size is %d", len(def), size)
			}
		}
		meta := unsourced[0].Meta
		meta.Name = name
		meta.Val = append([]float64(nil), val...)
		ivc := &Variable{
			Abs:      fmt.Sprintf("%s.v%d", AutoIVC, len(st.sys.ivcs)),
			Promoted: name,
			Local:    fmt.Sprintf("v%d", len(st.sys.ivcs)),
			Owner:    AutoIVC,
			Meta:     meta,
		}
		st.sys.vars[ivc.Abs] = ivc
		st.sys.ivcs = append(st.sys.ivcs, ivc)
		for _, in := range unsourced {
			st.sys.source[in.Abs] = ivc.Abs
		}
	}
	return nil
}

func (st *setupState) order() error {
	g := simple.NewDirectedGraph()
	for i := range st.nodes {
		g.AddNode(simple.Node(i))
	}
	for k, n := range st.nodes {
		for _, in := range n.Inputs {
			owner := st.sys.vars[st.sys.source[in.Abs]].Owner
			if owner == AutoIVC {
				continue
			}
			j := st.nodeOf[owner]
			if j == k {
				return setupErr(n.Name, ErrCycle, "%s depends on its own output", in.Abs)
			}
			if !g.HasEdgeFromTo(int64(j), int64(k)) {
				g.SetEdge(g.NewEdge(simple.Node(j), simple.Node(k)))
			}
		}
	}

	sorted, err := topo.SortStabilized(g, func(nodes []graph.Node) {
		sort.Slice(nodes, func(a, b int) bool { return nodes[a].ID() < nodes[b].ID() })
	})
	if err != nil {
		var cycles topo.Unorderable
		if errors.As(err, &cycles) {
			var parts []string
			for _, scc := range cycles {
				var names []string
				for _, node := range scc {
					names = append(names, st.nodes[node.ID()].Name)
				}
				sort.Strings(names)
				parts = append(parts, "["+strings.Join(names, ", ")+"]")
			}
			return setupErr("", ErrCycle, "strongly connected: %s", strings.Join(parts, " "))
		}
		return err
	}
	for _, node := range sorted {
		st.sys.nodes = append(st.sys.nodes, st.nodes[node.ID()])
	}
	return nil
}

func (st *setupState) designVars() error {
	seen := make(map[string]bool)
	for _, r := range st.g.designVars {
		src, err := st.sys.Resolve(r.name)
		if err != nil {
			return err
		}
		v := st.sys.vars[src]
		if v.Owner != AutoIVC {
			return setupErr(r.name, ErrNotIndependent, "driven by %s", src)
		}
		if seen[src] {
			return setupErr(r.name, ErrDuplicateResponse, "design variable")
		}
		seen[src] = true
		scaling, err := r.lim.scaling(r.name)
		if err != nil {
			return err
		}
		if r.lim.hasEquals {
			return setupErr(r.name, ErrBadScaling, "design variables take lower/upper, not equals")
		}
		st.sys.designVars = append(st.sys.designVars, DesignVar{
			Name:    r.name,
			Source:  src,
			Size:    v.Meta.Size,
			Lower:   r.lim.lower,
			Upper:   r.lim.upper,
			Scaling: scaling,
		})
	}
	return nil
}

func (st *setupState) responses() error {
	seen := make(map[string]bool)
	for _, r := range st.g.responses {
		src, err := st.sys.Resolve(r.name)
		if err != nil {
			return err
		}
		if seen[r.name] {
			return setupErr(r.name, ErrDuplicateResponse, "response")
		}
		seen[r.name] = true
		scaling, err := r.lim.scaling(r.name)
		if err != nil {
			return err
		}
		if r.kind == Constraint && !r.lim.hasEquals && isInf(r.lim.lower) && isInf(r.lim.upper) {
			return setupErr(r.name, ErrNoBounds, "")
		}
		resp := Response{
			Name:      r.name,
			Source:    src,
			Size:      st.sys.vars[src].Meta.Size,
			Kind:      r.kind,
			Lower:     r.lim.lower,
			Upper:     r.lim.upper,
			Equals:    r.lim.equals,
			HasEquals: r.lim.hasEquals,
			Scaling:   scaling,
		}
		if r.kind == Objective {
			st.sys.objectives = append(st.sys.objectives, resp)
		} else {
			st.sys.constraints = append(st.sys.constraints, resp)
		}
	}
	return nil
}
