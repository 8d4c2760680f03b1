package main

import (
	"fmt"

	"github.com/born-ml/mdo/internal/check"
	"github.com/born-ml/mdo/internal/component"
	"github.com/born-ml/mdo/internal/driver"
	"github.com/born-ml/mdo/internal/problem"
	"github.com/born-ml/mdo/internal/repro"
	"github.com/spf13/cobra"
)

var (
	reproRefs      []float64
	reproOptimizer string
	reproMethod    string
)

var reproCmd = &cobra.Command{
	Use:   "repro",
	Short: "Optimize the two-component chain for several output references",
	Long: `Runs b = 2*a1*a2, c = 2*b with a1, a2 in [0.5, 1.5] and minimizes c,
once per --ref value given to output b. The optimum (a1 = a2 = 0.5, c = 1)
and the total derivatives must not depend on the reference.`,
	Args: cobra.NoArgs,
	RunE: runRepro,
}

func init() {
	reproCmd.Flags().Float64SliceVar(&reproRefs, "ref", []float64{1, 10, 0.01}, "Reference values for output b")
	reproCmd.Flags().StringVar(&reproOptimizer, "optimizer", driver.SLSQP, "Optimizer name")
	reproCmd.Flags().StringVar(&reproMethod, "method", string(component.MethodFD), "Totals check method (fd or cs)")
}

func runRepro(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	allOK := true
	for _, ref := range reproRefs {
		drv, err := driver.NewOptimizeDriver(driver.Options{Optimizer: reproOptimizer}, logger)
		if err != nil {
			return err
		}
		p := problem.New(repro.NewModel(ref),
			problem.WithName(fmt.Sprintf("repro-ref-%g", ref)),
			problem.WithDriver(drv),
			problem.WithLogger(logger),
		)
		if err := p.Setup(); err != nil {
			return err
		}
		res, err := p.RunDriver(ctx)
		if err != nil {
			return err
		}
		report, err := p.CheckTotals(ctx, check.Options{Method: component.Method(reproMethod)})
		if err != nil {
			return err
		}
		ok := res.Success && report.OK()
		allOK = allOK && ok

		fields := resultFields(p, res)
		fields = append(fields, field{"totals check", status(report.OK(), checkSummary(report))})
		fmt.Fprintln(out, summary(fmt.Sprintf("ref = %g", ref), fields))
		if err := p.Final(); err != nil {
			return err
		}
	}
	if !allOK {
		return fmt.Errorf("repro: at least one reference failed")
	}
	return nil
}

func checkSummary(r *check.Report) string {
	worst := 0.0
	for _, e := range r.Entries {
		worst = max(worst, e.RelErr)
	}
	if r.OK() {
		return fmt.Sprintf("ok (%s, %d entries, max rel err %.2e)", r.Method, len(r.Entries), worst)
	}
	return fmt.Sprintf("%d of %d entries failed (%s)", len(r.Failures()), len(r.Entries), r.Method)
}
