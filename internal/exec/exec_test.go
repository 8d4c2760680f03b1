package exec

import (
	"math"
	"testing"

	"github.com/born-ml/mdo/internal/component"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InputsAndOutputs(t *testing.T) {
	c, err := New([]string{"b = 2*a1*a2", "d = sqrt(a1) + pi"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a1", "a2"}, c.Inputs())
	assert.Equal(t, []string{"b", "d"}, c.Outputs())
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name string
		eqs  []string
		err  error
	}{
		{"empty", nil, ErrSyntax},
		{"no assignment", []string{"2*x"}, ErrSyntax},
		{"bad lhs", []string{"2x = y"}, ErrSyntax},
		{"comparison", []string{"y = x == 2"}, ErrSyntax},
		{"unknown function", []string{"y = gamma(x)"}, ErrSyntax},
		{"arity", []string{"y = pow(x)"}, ErrSyntax},
		{"selector", []string{"y = math.Pi"}, ErrSyntax},
		{"remainder", []string{"c = a % b"}, ErrSyntax},
		{"less than", []string{"c = a < b"}, ErrSyntax},
		{"logical not", []string{"c = !a"}, ErrSyntax},
		{"string literal", []string{`c = "a" + b`}, ErrSyntax},
		{"imaginary literal", []string{"c = 2i * b"}, ErrSyntax},
		{"duplicate output", []string{"y = x", "y = 2*x"}, ErrDuplicateOut},
		{"output as input", []string{"y = x", "z = y"}, ErrOutputAsIn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.eqs)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestCompute(t *testing.T) {
	c := MustNew([]string{
		"b = 2*a1*a2",
		"f = pow(a1, 3) - abs(-a2) / (1 + exp(0))",
		"g = log(a2) + sin(a1)*cos(a1) + tan(0) + tanh(0)",
	})
	d, err := component.Declare(c)
	require.NoError(t, err)

	in := component.NewVector()
	in.Add("a1", []float64{1.5})
	in.Add("a2", []float64{0.5})

	out, err := component.Evaluate(c, d, in)
	require.NoError(t, err)

	assert.InDelta(t, 1.5, out.Scalar("b"), 1e-15)
	assert.InDelta(t, 1.5*1.5*1.5-0.5/2, out.Scalar("f"), 1e-15)
	assert.InDelta(t, math.Log(0.5)+math.Sin(1.5)*math.Cos(1.5), out.Scalar("g"), 1e-15)
}

func TestLinearize_ComplexStep(t *testing.T) {
	c := MustNew([]string{"b = 2*a1*a2", "y = a1 / a2"})
	d, err := component.Declare(c)
	require.NoError(t, err)

	in := component.NewVector()
	in.Add("a1", []float64{0.75})
	in.Add("a2", []float64{1.25})

	j, err := component.Linearize(c, d, in)
	require.NoError(t, err)

	assert.InDelta(t, 2*1.25, j.Block("b", "a1").At(0, 0), 1e-15)
	assert.InDelta(t, 2*0.75, j.Block("b", "a2").At(0, 0), 1e-15)
	assert.InDelta(t, 1/1.25, j.Block("y", "a1").At(0, 0), 1e-15)
	assert.InDelta(t, -0.75/(1.25*1.25), j.Block("y", "a2").At(0, 0), 1e-15)
}

func TestWithVarOptions(t *testing.T) {
	c := MustNew([]string{"c = 2*b"}, WithVarOptions("b", component.WithVal(3)), WithVarOptions("c", component.WithRef(5, 0)))
	d, err := component.Declare(c)
	require.NoError(t, err)

	b, ok := d.Input("b")
	require.True(t, ok)
	assert.Equal(t, []float64{3}, b.Val)

	out, ok := d.Output("c")
	require.True(t, ok)
	assert.Equal(t, 5.0, out.Ref)
}

func TestPow_IntegerFastPath(t *testing.T) {
	assert.Equal(t, complex(-8, 0), pow(-2, 3))
	assert.Equal(t, complex(0.25, 0), pow(2, -2))
	assert.InDelta(t, math.Sqrt(2), real(pow(2, 0.5)), 1e-15)
}
