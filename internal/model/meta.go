package model

import "math"

// Scaling maps physical values to driver values: scaled = (phys + Adder) * Scaler.
type Scaling struct {
	Scaler float64
	Adder  float64
}

// Scale converts a physical value to driver space.
func (s Scaling) Scale(phys float64) float64 {
	return (phys + s.Adder) * s.Scaler
}

// Unscale converts a driver value to physical space.
func (s Scaling) Unscale(scaled float64) float64 {
	return scaled/s.Scaler - s.Adder
}

// ScaleBound scales a bound, keeping infinities infinite.
func (s Scaling) ScaleBound(b float64) float64 {
	if math.IsInf(b, 0) {
		return b
	}
	return s.Scale(b)
}

// IsIdentity reports whether the scaling is a no-op.
func (s Scaling) IsIdentity() bool {
	return s.Scaler == 1 && s.Adder == 0
}

// DesignVar is a resolved design variable.
type DesignVar struct {
	Name   string // Name as registered (usually promoted)
	Source string // Absolute name of the independent output it drives
	Size   int
	Lower  float64 // Physical lower bound (default: -Inf)
	Upper  float64 // Physical upper bound (default: +Inf)
	Scaling
}

// ResponseKind distinguishes objectives from constraints.
type ResponseKind int

// Response kinds.
const (
	Objective ResponseKind = iota
	Constraint
)

// String returns the kind name.
func (k ResponseKind) String() string {
	if k == Objective {
		return "objective"
	}
	return "constraint"
}

// Response is a resolved objective or constraint.
type Response struct {
	Name      string
	Source    string
	Size      int
	Kind      ResponseKind
	Lower     float64
	Upper     float64
	Equals    float64
	HasEquals bool
	Scaling
}

// IsEquality reports whether the response is an equality constraint.
func (r Response) IsEquality() bool {
	return r.Kind == Constraint && r.HasEquals
}

// Option configures a design variable, objective or constraint.
type Option func(*limits)

type limits struct {
	lower, upper   float64
	equals         float64
	hasEquals      bool
	ref, ref0      float64
	scaler, adder  float64
	hasRef         bool
	hasScalerAdder bool
}

func newLimits(opts []Option) limits {
	s := limits{
		lower:  math.Inf(-1),
		upper:  math.Inf(1),
		ref:    1,
		scaler: 1,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Lower sets the lower bound.
func Lower(v float64) Option {
	return func(s *limits) {
		s.lower = v
	}
}

// Upper sets the upper bound.
func Upper(v float64) Option {
	return func(s *limits) {
		s.upper = v
	}
}

// Equals makes a constraint an equality.
func Equals(v float64) Option {
	return func(s *limits) {
		s.equals = v
		s.hasEquals = true
	}
}

// Ref sets the physical value that maps to 1 in driver space.
func Ref(v float64) Option {
	return func(s *limits) {
		s.ref = v
		s.hasRef = true
	}
}

// Ref0 sets the physical value that maps to 0 in driver space.
func Ref0(v float64) Option {
	return func(s *limits) {
		s.ref0 = v
		s.hasRef = true
	}
}

// Scaler sets the multiplicative scale factor.
func Scaler(v float64) Option {
	return func(s *limits) {
		s.scaler = v
		s.hasScalerAdder = true
	}
}

// Adder sets the additive offset applied before scaling.
func Adder(v float64) Option {
	return func(s *limits) {
		s.adder = v
		s.hasScalerAdder = true
	}
}

func (s limits) scaling(name string) (Scaling, error) {
	if s.hasRef && s.hasScalerAdder {
		return Scaling{}, setupErr(name, ErrBadScaling, "ref/ref0 cannot be combined with scaler/adder")
	}
	if s.hasRef {
		if s.ref == s.ref0 {
			return Scaling{}, setupErr(name, ErrBadScaling, "ref equals ref0")
		}
		return Scaling{Scaler: 1 / (s.ref - s.ref0), Adder: -s.ref0}, nil
	}
	if s.scaler == 0 {
		return Scaling{}, setupErr(name, ErrBadScaling, "zero scaler")
	}
	return Scaling{Scaler: s.scaler, Adder: s.adder}, nil
}
