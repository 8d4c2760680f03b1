package main

import (
	"fmt"

	"github.com/born-ml/mdo/internal/check"
	"github.com/born-ml/mdo/internal/component"
	"github.com/born-ml/mdo/internal/config"
	"github.com/spf13/cobra"
)

var (
	checkMethod   string
	checkForm     string
	checkPartials bool
	checkRun      bool
)

var checkCmd = &cobra.Command{
	Use:   "check [problem.yaml]",
	Short: "Compare analytic derivatives with finite differences or complex step",
	Long: `Sets up a problem file, runs the model once (or the driver with --run)
and checks total derivatives of the responses with respect to the design
variables. With --partials every component's partials are checked instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkMethod, "method", string(component.MethodFD), "Approximation method (fd or cs)")
	checkCmd.Flags().StringVar(&checkForm, "form", string(component.Forward), "Finite-difference form (forward, backward, central)")
	checkCmd.Flags().BoolVar(&checkPartials, "partials", false, "Check component partials instead of totals")
	checkCmd.Flags().BoolVar(&checkRun, "run", false, "Run the driver before checking")
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	f, err := config.Load(args[0])
	if err != nil {
		return err
	}
	p, err := f.Build(logger)
	if err != nil {
		return err
	}
	if err := p.Setup(); err != nil {
		return err
	}
	if checkRun {
		if _, err := p.RunDriver(ctx); err != nil {
			return err
		}
	} else if err := p.RunModel(ctx); err != nil {
		return err
	}

	opts := check.Options{Method: component.Method(checkMethod), Form: component.Form(checkForm)}
	var report *check.Report
	if checkPartials {
		report, err = p.CheckPartials(ctx, opts)
	} else {
		report, err = p.CheckTotals(ctx, opts)
	}
	if err != nil {
		return err
	}
	if err := report.Write(cmd.OutOrStdout()); err != nil {
		return err
	}
	if !report.OK() {
		return fmt.Errorf("%d of %d derivative checks failed", len(report.Failures()), len(report.Entries))
	}
	return nil
}
