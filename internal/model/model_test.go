package model_test

import (
	"math"
	"testing"

	"github.com/born-ml/mdo/internal/component"
	"github.com/born-ml/mdo/internal/exec"
	"github.com/born-ml/mdo/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reproGroup() *model.Group {
	g := model.NewGroup()
	// Added out of order on purpose: execution order must follow the data flow.
	g.AddSubsystem("comp_2", exec.MustNew([]string{"c = 2*b"}), model.Promotes("*"))
	g.AddSubsystem("comp_1", exec.MustNew([]string{"b = 2*a1*a2"}), model.Promotes("*"))
	g.SetInputDefaults("a1", 1.0)
	g.SetInputDefaults("a2", 1.0)
	g.AddDesignVar("a1", model.Lower(0.5), model.Upper(1.5))
	g.AddDesignVar("a2", model.Lower(0.5), model.Upper(1.5))
	g.AddObjective("c")
	return g
}

func TestSetup_PromotionAndAutoIVC(t *testing.T) {
	sys, err := reproGroup().Setup()
	require.NoError(t, err)

	assert.Equal(t, []string{"comp_1", "comp_2"}, sys.ExecutionOrder())
	assert.Equal(t, "comp_1.b", sys.Source("comp_2.b"))

	ivcs := sys.Independents()
	require.Len(t, ivcs, 2)
	assert.Equal(t, "a1", ivcs[0].Promoted)
	assert.Equal(t, "a2", ivcs[1].Promoted)
	assert.Equal(t, model.AutoIVC, ivcs[0].Owner)

	src, err := sys.Resolve("a1")
	require.NoError(t, err)
	assert.Equal(t, ivcs[0].Abs, src)

	src, err = sys.Resolve("c")
	require.NoError(t, err)
	assert.Equal(t, "comp_2.c", src)

	dvs := sys.DesignVars()
	require.Len(t, dvs, 2)
	assert.Equal(t, 0.5, dvs[0].Lower)
	assert.True(t, dvs[0].IsIdentity())

	require.Len(t, sys.Objectives(), 1)
	assert.Empty(t, sys.Constraints())
}

func TestRun(t *testing.T) {
	sys, err := reproGroup().Setup()
	require.NoError(t, err)

	st := sys.NewState()
	require.NoError(t, sys.Run(st))
	assert.Equal(t, 4.0, st.Scalar("comp_2.c"))

	a1, _ := sys.Resolve("a1")
	st.Set(a1, 1.5)
	require.NoError(t, sys.Run(st))
	assert.Equal(t, 3.0, st.Scalar("comp_1.b"))
	assert.Equal(t, 1.5, st.Scalar("comp_1.a1"), "inputs receive their source value")
	assert.Equal(t, 6.0, st.Scalar("comp_2.c"))
}

func TestRunComplex(t *testing.T) {
	sys, err := reproGroup().Setup()
	require.NoError(t, err)
	require.True(t, sys.SupportsComplex())

	st := component.Complexify(sys.NewState())
	a2, _ := sys.Resolve("a2")
	st.Get(a2)[0] += complex(0, 1e-30)
	require.NoError(t, sys.RunComplex(st))
	assert.InDelta(t, 4.0, imag(st.Scalar("comp_2.c"))/1e-30, 1e-12)
}

func TestLinearize(t *testing.T) {
	sys, err := reproGroup().Setup()
	require.NoError(t, err)

	st := sys.NewState()
	require.NoError(t, sys.Run(st))
	lins, err := sys.Linearize(st)
	require.NoError(t, err)
	require.Len(t, lins, 2)

	assert.Equal(t, "comp_1", lins[0].Node.Name)
	assert.InDelta(t, 2.0, lins[0].J.Block("b", "a1").At(0, 0), 1e-15)
	assert.InDelta(t, 2.0, lins[1].J.Block("c", "b").At(0, 0), 1e-15)
}

func TestExplicitConnect(t *testing.T) {
	g := model.NewGroup()
	g.AddSubsystem("src", exec.MustNew([]string{"y = 3*x"}))
	g.AddSubsystem("dst", exec.MustNew([]string{"z = u + 1"}))
	g.Connect("src.y", "dst.u")
	g.AddConstraint("dst.z", model.Upper(10), model.Ref(5))

	sys, err := g.Setup()
	require.NoError(t, err)
	assert.Equal(t, "src.y", sys.Source("dst.u"))
	require.Len(t, sys.Independents(), 1)
	assert.Equal(t, "src.x", sys.Independents()[0].Promoted)

	cons := sys.Constraints()
	require.Len(t, cons, 1)
	assert.InDelta(t, 0.2, cons[0].Scaler, 1e-15)
	assert.InDelta(t, 2.0, cons[0].ScaleBound(cons[0].Upper), 1e-15)
	assert.True(t, math.IsInf(cons[0].ScaleBound(cons[0].Lower), -1))
}

type loop struct{}

func (loop) Setup(d *component.Declarations) error {
	d.AddInput("x")
	d.AddOutput("y")
	return nil
}

func (loop) Compute(in, out *component.Vector) error {
	out.Set("y", in.Scalar("x"))
	return nil
}

func TestSetup_Errors(t *testing.T) {
	tests := []struct {
		name  string
		build func(g *model.Group)
		err   error
	}{
		{"duplicate subsystem", func(g *model.Group) {
			g.AddSubsystem("a", loop{})
			g.AddSubsystem("a", loop{})
		}, model.ErrDuplicateSubsystem},
		{"dotted name", func(g *model.Group) {
			g.AddSubsystem("a.b", loop{})
		}, model.ErrBadName},
		{"self loop", func(g *model.Group) {
			g.AddSubsystem("a", loop{})
			g.Connect("a.y", "a.x")
		}, model.ErrCycle},
		{"two node cycle", func(g *model.Group) {
			g.AddSubsystem("a", exec.MustNew([]string{"y = 2*x"}))
			g.AddSubsystem("b", exec.MustNew([]string{"x = y + 1"}), model.Promotes("*"))
			g.Connect("b.x", "a.x")
			g.Connect("a.y", "y")
		}, model.ErrCycle},
		{"promotion conflict", func(g *model.Group) {
			g.AddSubsystem("a", loop{}, model.Promotes("*"))
			g.AddSubsystem("b", loop{}, model.PromotesOutputs("y"))
		}, model.ErrPromotionConflict},
		{"design var on computed output", func(g *model.Group) {
			g.AddSubsystem("a", loop{}, model.Promotes("*"))
			g.AddDesignVar("y")
		}, model.ErrNotIndependent},
		{"unknown objective", func(g *model.Group) {
			g.AddSubsystem("a", loop{})
			g.AddObjective("nope")
		}, model.ErrUnknownVar},
		{"unbounded constraint", func(g *model.Group) {
			g.AddSubsystem("a", loop{})
			g.AddConstraint("a.y")
		}, model.ErrNoBounds},
		{"mixed scaling", func(g *model.Group) {
			g.AddSubsystem("a", loop{}, model.Promotes("*"))
			g.AddDesignVar("x", model.Ref(2), model.Scaler(3))
		}, model.ErrBadScaling},
		{"defaults for unknown input", func(g *model.Group) {
			g.AddSubsystem("a", loop{})
			g.SetInputDefaults("zz", 1)
		}, model.ErrUnknownVar},
		{"size mismatch", func(g *model.Group) {
			g.AddSubsystem("a", loop{}, model.Promotes("*"))
			g.SetInputDefaults("x", 1, 2)
		}, model.ErrSizeMismatch},
		{"double connection", func(g *model.Group) {
			g.AddSubsystem("a", loop{}, model.Promotes("*"))
			g.AddSubsystem("b", exec.MustNew([]string{"z = 2*x"}), model.Promotes("*"))
			g.Connect("a.y", "x")
			g.Connect("a.y", "x")
		}, model.ErrAlreadyConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := model.NewGroup()
			tt.build(g)
			_, err := g.Setup()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}
