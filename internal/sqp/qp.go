package sqp

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrQP is returned when the quadratic subproblem cannot be solved.
var ErrQP = errors.New("sqp: quadratic subproblem failed")

// qp is the convex quadratic program
//
//	minimize ½ zᵀGz + gᵀz
//	subject to aᵢᵀz = bᵢ (i < meq), aᵢᵀz ≥ bᵢ (i ≥ meq)
//
// with G positive definite. Rows of a hold every constraint, bounds included.
type qp struct {
	G   *mat.Dense
	g   []float64
	a   *mat.Dense // rows × n
	b   []float64
	meq int
}

// solve runs a primal active-set method from the feasible point z0.
// It returns the minimizer and one multiplier per constraint row
// (zero for inactive rows).
func (p *qp) solve(z0 []float64, maxIter int) ([]float64, []float64, error) {
	n := len(z0)
	rows := 0
	if p.a != nil {
		rows, _ = p.a.Dims()
	}
	z := append([]float64(nil), z0...)

	active := make([]bool, rows)
	var work []int
	for i := 0; i < p.meq; i++ {
		active[i] = true
		work = append(work, i)
	}

	grad := make([]float64, n)
	for iter := 0; iter < maxIter; iter++ {
		// grad = Gz + g
		gz := mat.NewVecDense(n, grad)
		gz.MulVec(p.G, mat.NewVecDense(n, z))
		floats.Add(grad, p.g)

		step, lambda, err := p.equalityStep(grad, work)
		if err != nil {
			return nil, nil, err
		}

		if floats.Norm(step, math.Inf(1)) <= 1e-12*(1+floats.Norm(z, math.Inf(1))) {
			// Stationary on the working set; drop the most negative
			// inequality multiplier or stop.
			drop, worst := -1, -1e-12
			for k, i := range work {
				if i >= p.meq && lambda[k] < worst {
					drop, worst = k, lambda[k]
				}
			}
			if drop < 0 {
				mult := make([]float64, rows)
				for k, i := range work {
					mult[i] = lambda[k]
				}
				return z, mult, nil
			}
			active[work[drop]] = false
			work = append(work[:drop], work[drop+1:]...)
			continue
		}

		alpha, block := 1.0, -1
		for i := p.meq; i < rows; i++ {
			if active[i] {
				continue
			}
			ai := p.a.RawRowView(i)
			ap := floats.Dot(ai, step)
			if ap >= 0 {
				continue
			}
			slack := floats.Dot(ai, z) - p.b[i]
			if t := math.Max(slack, 0) / -ap; t < alpha {
				alpha, block = t, i
			}
		}
		floats.AddScaled(z, alpha, step)
		if block >= 0 {
			active[block] = true
			work = append(work, block)
		}
	}
	return nil, nil, fmt.Errorf("%w: no convergence in %d iterations", ErrQP, maxIter)
}

// equalityStep solves the KKT system of the working set:
//
//	[G  -Aᵀ] [p]   [-grad]
//	[A   0 ] [λ] = [  0  ]
func (p *qp) equalityStep(grad []float64, work []int) ([]float64, []float64, error) {
	n := len(grad)
	k := len(work)
	kkt := mat.NewDense(n+k, n+k, nil)
	kkt.Slice(0, n, 0, n).(*mat.Dense).Copy(p.G)
	for j, i := range work {
		ai := p.a.RawRowView(i)
		for c, v := range ai {
			kkt.Set(n+j, c, v)
			kkt.Set(c, n+j, -v)
		}
	}
	rhs := mat.NewVecDense(n+k, nil)
	for i, v := range grad {
		rhs.SetVec(i, -v)
	}

	var sol mat.VecDense
	if err := sol.SolveVec(kkt, rhs); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, nil, fmt.Errorf("%w: singular working set: %v", ErrQP, err)
		}
	}
	raw := sol.RawVector().Data
	return append([]float64(nil), raw[:n]...), append([]float64(nil), raw[n:]...), nil
}
