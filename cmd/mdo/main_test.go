package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/born-ml/mdo/internal/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const problemYAML = `name: chain
components:
  - name: comp_1
    equations: ["b = 2*a1*a2"]
    promotes: ["*"]
    outputs:
      b: {ref: 0.01}
  - name: comp_2
    equations: ["c = 2*b"]
    promotes: ["*"]
design_vars:
  a1: {lower: 0.5, upper: 1.5}
  a2: {lower: 0.5, upper: 1.5}
input_defaults: {a1: 1.0, a2: 1.0}
objective: c
driver: {disp: false}
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	logger = zap.NewNop()
	verbose = false
	reproRefs, reproOptimizer, reproMethod = []float64{1, 10, 0.01}, "SLSQP", "fd"
	runRecord, runWatch = "", false
	checkMethod, checkForm, checkPartials, checkRun = "fd", "forward", false, false
	casesRun = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeProblem(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "problem.yaml")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "mdo "+version+"\n", out)
}

func TestRepro(t *testing.T) {
	out, err := execute(t, "repro", "--ref", "1", "--ref", "10", "--method", "cs")
	require.NoError(t, err)
	assert.Contains(t, out, "ref = 1")
	assert.Contains(t, out, "ref = 10")
	assert.Contains(t, out, "optimization terminated successfully")
	assert.Equal(t, 2, strings.Count(out, "ok (cs, 2 entries"))
	assert.Contains(t, out, "0.5")
}

func TestRepro_UnknownOptimizer(t *testing.T) {
	_, err := execute(t, "repro", "--optimizer", "simplex-magic")
	assert.Error(t, err)
}

func TestRun_RecordsCases(t *testing.T) {
	path := writeProblem(t, problemYAML)
	db := filepath.Join(t.TempDir(), "cases.db")

	out, err := execute(t, "run", path, "--record", db)
	require.NoError(t, err)
	assert.Contains(t, out, "chain")
	assert.Contains(t, out, "c (objective)")
	assert.Contains(t, out, "recorded to")

	rec, err := recorder.Open(db, nil)
	require.NoError(t, err)
	runs, err := rec.Runs(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.NoError(t, rec.Close())

	out, err = execute(t, "cases", db)
	require.NoError(t, err)
	assert.Contains(t, out, runs[0].ID)
	assert.Contains(t, out, "SLSQP")

	out, err = execute(t, "cases", db, "--run", runs[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "a1=1 a2=1 c=4")
}

func TestRun_ModelOnly(t *testing.T) {
	path := writeProblem(t, `
components:
  - {name: sq, equations: ["y = pow(x, 2)"], promotes: ["*"]}
input_defaults: {x: 3}
`)
	out, err := execute(t, "run", path)
	require.NoError(t, err)
	assert.Contains(t, out, "model run")
}

func TestRun_InvalidFile(t *testing.T) {
	path := writeProblem(t, "components: []\n")
	_, err := execute(t, "run", path)
	assert.ErrorContains(t, err, "no components")
}

func TestRun_BuildFailureOpensNoDatabase(t *testing.T) {
	path := writeProblem(t, `components: [{name: a, equations: ["y = = x"]}]`)
	db := filepath.Join(t.TempDir(), "out", "cases.db")

	_, err := execute(t, "run", path, "--record", db)
	require.ErrorContains(t, err, `component "a"`)
	assert.NoFileExists(t, db)
}

func TestCheck(t *testing.T) {
	path := writeProblem(t, problemYAML)

	out, err := execute(t, "check", path, "--method", "cs")
	require.NoError(t, err)
	assert.Contains(t, out, "Total derivatives check (cs")
	assert.NotContains(t, out, "MISMATCH")

	out, err = execute(t, "check", path, "--partials", "--run")
	require.NoError(t, err)
	assert.Contains(t, out, "Partial derivatives check (fd")
	assert.Contains(t, out, "comp_1")
}

func TestCheck_BadMethod(t *testing.T) {
	path := writeProblem(t, problemYAML)
	_, err := execute(t, "check", path, "--method", "magic")
	assert.Error(t, err)
}

func TestWatch_RerunsOnWrite(t *testing.T) {
	logger = zap.NewNop()
	path := writeProblem(t, problemYAML)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- watch(ctx, path, 20*time.Millisecond, func(context.Context) { calls <- struct{}{} })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.yaml"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte(problemYAML+"# edit\n"), 0o644))

	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not rerun after a write")
	}
	cancel()
	require.NoError(t, <-done)
}
