package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/born-ml/mdo/internal/recorder"
	"github.com/spf13/cobra"
)

var casesRun string

var casesCmd = &cobra.Command{
	Use:   "cases [cases.db]",
	Short: "List recorded runs, or the cases of one run",
	Args:  cobra.ExactArgs(1),
	RunE:  runCases,
}

func init() {
	casesCmd.Flags().StringVar(&casesRun, "run", "", "Show the cases of this run ID")
}

func runCases(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rec, err := recorder.Open(args[0], logger)
	if err != nil {
		return err
	}
	defer rec.Close()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	if casesRun == "" {
		runs, err := rec.Runs(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "RUN\tNAME\tDRIVER\tCREATED")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Driver, r.Created.Format(time.RFC3339))
		}
		return w.Flush()
	}

	cases, err := rec.Cases(ctx, casesRun)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "CASE\tSOURCE\tVALUES")
	for _, c := range cases {
		names := make([]string, 0, len(c.Values))
		for name := range c.Values {
			names = append(names, name)
		}
		sort.Strings(names)
		vals := make([]string, len(names))
		for i, name := range names {
			vals[i] = name + "=" + floats(c.Values[name])
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", c.Counter, c.Source, strings.Join(vals, " "))
	}
	return w.Flush()
}
