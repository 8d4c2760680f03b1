// Package sqp implements a sequential quadratic programming optimizer for
// smooth problems with bounds, equality and inequality constraints:
//
//	minimize f(x)
//	subject to cⱼ(x) = 0 (j < MEq), cⱼ(x) ≥ 0 (j ≥ MEq), l ≤ x ≤ u
//
// Each iteration solves a quadratic model of the Lagrangian with linearized
// constraints for a search direction d, then takes a step along d chosen by
// a backtracking line search on the L1 merit function
//
//	φ(x) = f(x) + Σ μⱼ‖cⱼ(x)‖₁
//
// The Hessian is approximated with the damped BFGS update of Powell, which
// keeps the approximation positive definite. When general constraints are
// present the subproblem is relaxed with a variable δ ∈ [0, 1] scaling the
// constraint residuals, so d = 0, δ = 1 is always feasible.
//
// Convergence follows the SLSQP criteria of Kraft: the iterate must be
// feasible to within Acc, and either the objective change or the step norm
// must fall below Acc.
//
// Reference: D. Kraft, "A software package for sequential quadratic
// programming", DFVLR-FB 88-28, 1988.
package sqp

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Common errors.
var (
	ErrDimension = errors.New("sqp: inconsistent problem dimensions")
	ErrBounds    = errors.New("sqp: lower bound exceeds upper bound")
)

// Problem describes a constrained minimization.
type Problem struct {
	N     int // Number of variables
	MEq   int // Number of equality constraints
	MIneq int // Number of inequality constraints

	// Eval returns f(x) and writes the MEq+MIneq constraint values into c,
	// equalities first.
	Eval func(ctx context.Context, x, c []float64) (float64, error)

	// Jac writes ∇f(x) into g and the constraint Jacobian into a, which is
	// nil when there are no constraints.
	Jac func(ctx context.Context, x, g []float64, a *mat.Dense) error

	Lower []float64 // Optional; nil means -Inf
	Upper []float64 // Optional; nil means +Inf
}

// Iteration is passed to Settings.Callback after every accepted step.
type Iteration struct {
	Iter int
	X    []float64
	F    float64
	Vio  float64 // Sum of constraint violations
}

// Settings controls the iteration.
type Settings struct {
	MaxIter  int     // Maximum major iterations (default: 100)
	Acc      float64 // Requested accuracy (default: 1e-6)
	Callback func(Iteration)
}

// Status reports why the iteration stopped.
type Status int

// Termination statuses.
const (
	Converged Status = iota
	IterationLimit
	NotDescent
	SubproblemFailed
)

// String returns a human-readable status.
func (s Status) String() string {
	switch s {
	case Converged:
		return "optimization terminated successfully"
	case IterationLimit:
		return "iteration limit reached"
	case NotDescent:
		return "positive directional derivative for linesearch"
	case SubproblemFailed:
		return "quadratic subproblem failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the outcome of Minimize.
type Result struct {
	X         []float64
	F         float64
	C         []float64 // Constraint values at X
	Lambda    []float64 // Constraint multipliers from the last subproblem
	Status    Status
	Iter      int
	FuncEvals int
	GradEvals int
}

// Success reports whether the optimizer converged.
func (r *Result) Success() bool {
	return r.Status == Converged
}

type state struct {
	p   *Problem
	ctx context.Context
	n   int
	m   int
	lo  []float64
	hi  []float64

	x  []float64
	f  float64
	c  []float64
	g  []float64
	a  *mat.Dense
	B  *mat.Dense
	mu []float64

	res *Result
}

// Minimize solves p starting at x0. It returns an error only when the
// problem is malformed, an evaluation fails or ctx is cancelled; failure to
// converge is reported through Result.Status.
func Minimize(ctx context.Context, p Problem, x0 []float64, set Settings) (*Result, error) {
	if set.MaxIter <= 0 {
		set.MaxIter = 100
	}
	if set.Acc <= 0 {
		set.Acc = 1e-6
	}
	s, err := newState(ctx, &p, x0)
	if err != nil {
		return nil, err
	}
	if err := s.eval(s.x); err != nil {
		return nil, err
	}
	if err := s.jac(); err != nil {
		return nil, err
	}

	status, err := s.iterate(set)
	if err != nil {
		return nil, err
	}
	s.res.Status = status
	s.res.X = s.x
	s.res.F = s.f
	s.res.C = s.c
	return s.res, nil
}

func newState(ctx context.Context, p *Problem, x0 []float64) (*state, error) {
	n, m := p.N, p.MEq+p.MIneq
	if n <= 0 || len(x0) != n || p.MEq < 0 || p.MIneq < 0 {
		return nil, ErrDimension
	}
	if (p.Lower != nil && len(p.Lower) != n) || (p.Upper != nil && len(p.Upper) != n) {
		return nil, ErrDimension
	}
	if p.Eval == nil || p.Jac == nil {
		return nil, fmt.Errorf("%w: Eval and Jac are required", ErrDimension)
	}

	s := &state{
		p:   p,
		ctx: ctx,
		n:   n,
		m:   m,
		lo:  make([]float64, n),
		hi:  make([]float64, n),
		x:   append([]float64(nil), x0...),
		c:   make([]float64, m),
		g:   make([]float64, n),
		mu:  make([]float64, m),
		res: &Result{},
	}
	for i := range s.lo {
		s.lo[i], s.hi[i] = math.Inf(-1), math.Inf(1)
		if p.Lower != nil {
			s.lo[i] = p.Lower[i]
		}
		if p.Upper != nil {
			s.hi[i] = p.Upper[i]
		}
		if s.lo[i] > s.hi[i] {
			return nil, fmt.Errorf("%w: x[%d] in [%g, %g]", ErrBounds, i, s.lo[i], s.hi[i])
		}
	}
	if m > 0 {
		s.a = mat.NewDense(m, n, nil)
	}
	s.clip(s.x)
	s.resetHessian()
	return s, nil
}

func (s *state) clip(x []float64) {
	for i := range x {
		x[i] = math.Min(math.Max(x[i], s.lo[i]), s.hi[i])
	}
}

func (s *state) resetHessian() {
	s.B = mat.NewDense(s.n, s.n, nil)
	for i := 0; i < s.n; i++ {
		s.B.Set(i, i, 1)
	}
}

func (s *state) eval(x []float64) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	f, err := s.p.Eval(s.ctx, x, s.c)
	if err != nil {
		return err
	}
	s.f = f
	s.res.FuncEvals++
	return nil
}

func (s *state) jac() error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	if err := s.p.Jac(s.ctx, s.x, s.g, s.a); err != nil {
		return err
	}
	s.res.GradEvals++
	return nil
}

// violation returns ‖cⱼ‖₁ for one constraint.
func (s *state) violation(j int, c float64) float64 {
	if j < s.p.MEq {
		return math.Abs(c)
	}
	return math.Max(-c, 0)
}

func (s *state) totalViolation() float64 {
	v := 0.0
	for j, c := range s.c {
		v += s.violation(j, c)
	}
	return v
}

// lagrangianGrad returns ∇f - Aᵀλ at the current point.
func (s *state) lagrangianGrad(lambda []float64) []float64 {
	out := append([]float64(nil), s.g...)
	if s.m == 0 {
		return out
	}
	var atl mat.VecDense
	atl.MulVec(s.a.T(), mat.NewVecDense(s.m, lambda))
	floats.Sub(out, atl.RawVector().Data)
	return out
}

func (s *state) iterate(set Settings) (Status, error) {
	acc := set.Acc
	tol := 10 * acc
	resets := 0

	for s.res.Iter < set.MaxIter {
		s.res.Iter++

		d, lambda, delta, err := s.direction()
		if err != nil {
			if errors.Is(err, ErrQP) {
				return SubproblemFailed, nil
			}
			return 0, err
		}
		s.res.Lambda = lambda

		gs := floats.Dot(s.g, d)
		opt := math.Abs(gs)
		vio := 0.0
		for j, c := range s.c {
			l := math.Abs(lambda[j])
			vio += s.violation(j, c)
			opt += l * math.Abs(c)
			s.mu[j] = math.Max(l, (s.mu[j]+l)/2)
		}
		if opt < acc && vio < acc {
			return Converged, nil
		}

		pen := 0.0
		for j, c := range s.c {
			pen += s.mu[j] * s.violation(j, c)
		}
		t0 := s.f + pen
		dd := gs - pen*(1-delta)
		if dd >= 0 {
			resets++
			if resets > 5 {
				if vio < tol {
					return Converged, nil
				}
				return NotDescent, nil
			}
			s.resetHessian()
			continue
		}

		f0 := s.f
		x0 := append([]float64(nil), s.x...)
		g0 := s.lagrangianGrad(lambda)

		step, err := s.lineSearch(x0, d, t0, dd)
		if err != nil {
			return 0, err
		}

		if set.Callback != nil {
			set.Callback(Iteration{Iter: s.res.Iter, X: append([]float64(nil), s.x...), F: s.f, Vio: s.totalViolation()})
		}
		if s.totalViolation() < acc && (math.Abs(s.f-f0) < acc || floats.Norm(step, 2) < acc) {
			return Converged, nil
		}

		if err := s.jac(); err != nil {
			return 0, err
		}
		if !s.updateHessian(step, floats.SubTo(make([]float64, s.n), s.lagrangianGrad(lambda), g0)) {
			resets++
			if resets > 5 {
				if s.totalViolation() < tol {
					return Converged, nil
				}
				return NotDescent, nil
			}
			s.resetHessian()
		}
	}
	return IterationLimit, nil
}

// lineSearch backtracks along d from x0 until the merit function decreases
// by at least a tenth of the predicted amount, and returns the accepted step.
func (s *state) lineSearch(x0, d []float64, t0, dd float64) ([]float64, error) {
	alpha := 1.0
	step := make([]float64, s.n)
	for line := 1; ; line++ {
		copy(s.x, x0)
		floats.AddScaled(s.x, alpha, d)
		s.clip(s.x)
		if err := s.eval(s.x); err != nil {
			return nil, err
		}

		t := s.f
		for j, c := range s.c {
			t += s.mu[j] * s.violation(j, c)
		}
		pred := alpha * dd
		dec := t - t0
		switch {
		case line > 10 || dec <= pred/10:
			floats.SubTo(step, s.x, x0)
			return step, nil
		case math.IsNaN(dec):
			alpha *= 0.1
		default:
			// Minimizer of the quadratic through t0 with slope dd and t,
			// kept within [0.1, 0.5] of the current step.
			r := pred / (2 * (pred - dec))
			alpha *= math.Min(math.Max(r, 0.1), 0.5)
		}
	}
}

// updateHessian applies the damped BFGS update with step s and Lagrangian
// gradient change eta. It reports false when the update is degenerate.
func (s *state) updateHessian(step, eta []float64) bool {
	sv := mat.NewVecDense(s.n, step)
	var bs mat.VecDense
	bs.MulVec(s.B, sv)

	sEta := floats.Dot(step, eta)
	sBs := mat.Dot(sv, &bs)
	q := append([]float64(nil), eta...)
	if sEta < 0.2*sBs {
		theta := 0.8 * sBs / (sBs - sEta)
		floats.Scale(theta, q)
		floats.AddScaled(q, 1-theta, bs.RawVector().Data)
		sEta = 0.2 * sBs
	}
	if sEta == 0 || sBs == 0 || math.IsNaN(sEta) || math.IsNaN(sBs) {
		return false
	}

	qv := mat.NewVecDense(s.n, q)
	var up mat.Dense
	up.Outer(1/sEta, qv, qv)
	s.B.Add(s.B, &up)
	up.Outer(-1/sBs, &bs, &bs)
	s.B.Add(s.B, &up)
	return true
}

// direction solves the quadratic subproblem at the current point and
// returns the step d, the general constraint multipliers and the
// relaxation δ (zero when the problem has no general constraints).
func (s *state) direction() ([]float64, []float64, float64, error) {
	n, m := s.n, s.m
	if m == 0 {
		sub, z0 := s.boundsQP(n)
		z, _, err := sub.solve(z0, 10*(n+1)+100)
		if err != nil {
			return nil, nil, 0, err
		}
		return z, nil, 0, nil
	}

	rho := 100.0
	var lastErr error
	for relax := 0; relax <= 5; relax++ {
		sub, z0 := s.relaxedQP(rho)
		z, mult, err := sub.solve(z0, 10*(n+m+2)+100)
		if err != nil {
			lastErr = err
			rho *= 10
			continue
		}
		return z[:n], mult[:m], z[n], nil
	}
	return nil, nil, 0, lastErr
}

// boundRows appends lᵢ - xᵢ ≤ dᵢ ≤ uᵢ - xᵢ as inequality rows over nz
// variables.
func (s *state) boundRows(nz int, rows [][]float64, rhs []float64) ([][]float64, []float64) {
	for i := 0; i < s.n; i++ {
		if !math.IsInf(s.lo[i], -1) {
			r := make([]float64, nz)
			r[i] = 1
			rows = append(rows, r)
			rhs = append(rhs, s.lo[i]-s.x[i])
		}
		if !math.IsInf(s.hi[i], 1) {
			r := make([]float64, nz)
			r[i] = -1
			rows = append(rows, r)
			rhs = append(rhs, s.x[i]-s.hi[i])
		}
	}
	return rows, rhs
}

func toDense(rows [][]float64, cols int) *mat.Dense {
	if len(rows) == 0 {
		return nil
	}
	a := mat.NewDense(len(rows), cols, nil)
	for i, r := range rows {
		a.SetRow(i, r)
	}
	return a
}

func (s *state) boundsQP(n int) (*qp, []float64) {
	rows, rhs := s.boundRows(n, nil, nil)
	return &qp{G: s.B, g: s.g, a: toDense(rows, n), b: rhs}, make([]float64, n)
}

// relaxedQP builds the subproblem over z = (d, δ):
//
//	minimize ½ dᵀBd + gᵀd + ½ρδ²
//	subject to ∇cⱼd + (1-δ)cⱼ = 0          (j < MEq)
//	           ∇cⱼd + (1-δζⱼ)cⱼ ≥ 0        (ζⱼ = 1 if cⱼ < 0, else 0)
//	           bounds on d, 0 ≤ δ ≤ 1
func (s *state) relaxedQP(rho float64) (*qp, []float64) {
	n, nz := s.n, s.n+1
	G := mat.NewDense(nz, nz, nil)
	G.Slice(0, n, 0, n).(*mat.Dense).Copy(s.B)
	G.Set(n, n, rho)
	g := append(append([]float64(nil), s.g...), 0)

	var rows [][]float64
	var rhs []float64
	for j := 0; j < s.m; j++ {
		r := make([]float64, nz)
		copy(r, s.a.RawRowView(j))
		c := s.c[j]
		if j < s.p.MEq || c < 0 {
			r[n] = -c
		}
		rows = append(rows, r)
		rhs = append(rhs, -c)
	}
	rows, rhs = s.boundRows(nz, rows, rhs)

	lower := make([]float64, nz)
	lower[n] = 1
	upper := make([]float64, nz)
	upper[n] = -1
	rows = append(rows, lower, upper)
	rhs = append(rhs, 0, -1)

	z0 := make([]float64, nz)
	z0[n] = 1
	return &qp{G: G, g: g, a: toDense(rows, nz), b: rhs, meq: s.p.MEq}, z0
}
