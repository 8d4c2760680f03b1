package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/born-ml/mdo/internal/config"
	"github.com/born-ml/mdo/internal/driver"
	"github.com/born-ml/mdo/internal/problem"
	"github.com/born-ml/mdo/internal/recorder"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runRecord string
	runWatch  bool
)

var runCmd = &cobra.Command{
	Use:   "run [problem.yaml]",
	Short: "Set up a problem file and run its driver",
	Long: `Loads a YAML problem file, runs its driver (or the model once when the
file has no design variables) and prints the final design and totals.

With --record every evaluation is stored in a SQLite case database.
With --watch the file is rerun whenever it changes.`,
	Args: cobra.ExactArgs(1),
	RunE: runProblem,
}

func init() {
	runCmd.Flags().StringVar(&runRecord, "record", "", "Record cases into this SQLite database")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "Rerun when the problem file changes")
}

func runProblem(cmd *cobra.Command, args []string) error {
	path := args[0]
	once := func(ctx context.Context) error {
		return runFile(ctx, cmd, path)
	}
	if !runWatch {
		return once(cmd.Context())
	}
	if err := once(cmd.Context()); err != nil {
		logger.Error("run failed", zap.String("file", path), zap.Error(err))
	}
	return watch(cmd.Context(), path, 200*time.Millisecond, func(ctx context.Context) {
		if err := once(ctx); err != nil {
			logger.Error("run failed", zap.String("file", path), zap.Error(err))
		}
	})
}

func runFile(ctx context.Context, cmd *cobra.Command, path string) error {
	f, err := config.Load(path)
	if err != nil {
		return err
	}
	p, err := f.Build(logger)
	if err != nil {
		return err
	}
	if runRecord != "" {
		rec, err := recorder.Open(runRecord, logger)
		if err != nil {
			return err
		}
		problem.WithRecorder(rec)(p)
	}
	defer func() {
		if err := p.Final(); err != nil {
			logger.Warn("closing problem", zap.Error(err))
		}
	}()
	if err := p.Setup(); err != nil {
		return err
	}
	if verbose {
		p.SetSolverPrint(2)
	}
	res, err := p.RunDriver(ctx)
	if err != nil {
		return err
	}

	fields := resultFields(p, res)
	if len(p.System().DesignVars()) > 0 && len(p.System().Responses()) > 0 {
		tot, err := p.ComputeTotals(ctx, nil, nil)
		if err != nil {
			return err
		}
		fields = append(fields, field{"totals", "\n" + tot.String()})
	}
	if runRecord != "" {
		fields = append(fields, field{"recorded to", runRecord})
	}
	fmt.Fprintln(cmd.OutOrStdout(), summary(p.Name(), fields))
	if !res.Success {
		return fmt.Errorf("%s: %s", p.Name(), res.Message)
	}
	return nil
}

func resultFields(p *problem.Problem, res *driver.Result) []field {
	fields := []field{
		{"optimizer", res.Optimizer},
		{"status", status(res.Success, res.Message)},
		{"iterations", fmt.Sprintf("%d (%d evals, %d grads)", res.Iterations, res.FuncEvals, res.GradEvals)},
	}
	if res.Optimizer == "" {
		fields = fields[1:]
	}
	sys := p.System()
	for _, dv := range sys.DesignVars() {
		v, _ := p.GetVal(dv.Name)
		fields = append(fields, field{dv.Name, floats(v)})
	}
	for _, r := range sys.Responses() {
		v, _ := p.GetVal(r.Name)
		fields = append(fields, field{fmt.Sprintf("%s (%s)", r.Name, r.Kind), floats(v)})
	}
	return fields
}

// watch calls fn after path is written, collapsing bursts of events that
// arrive within the debounce window. It returns when ctx is done.
func watch(ctx context.Context, path string, debounce time.Duration, fn func(context.Context)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Editors often replace the file, so watch the directory.
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	logger.Info("watching for changes", zap.String("file", path))

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			logger.Debug("file changed", zap.String("file", event.Name), zap.String("op", event.Op.String()))
			pending = time.After(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", zap.Error(err))
		case <-pending:
			pending = nil
			fn(ctx)
		}
	}
}
