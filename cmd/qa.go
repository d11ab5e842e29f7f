package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ledgerline/catalog-ingest/internal/model"
	"github.com/ledgerline/catalog-ingest/internal/qa"
)

var (
	qaAsOf          string
	qaFailOnDrift   bool
	qaRunTransforms bool
)

var qaCmd = &cobra.Command{
	Use:   "qa",
	Short: "Evaluate QA gates for an ingestion date",
	Long:  "Runs row-count, freshness, drift and transform-test checks against the store, persists the results, and exits non-zero when the gate fails.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		asOf := qaAsOf
		if asOf == "" {
			asOf = time.Now().UTC().Format(model.DateFormat)
		}
		if _, err := time.Parse(model.DateFormat, asOf); err != nil {
			return eris.Wrapf(err, "parse as-of date %q", asOf)
		}

		qaCfg := cfg.QA
		if cmd.Flags().Changed("fail-on-drift") {
			qaCfg.FailOnDrift = qaFailOnDrift
		}
		if cmd.Flags().Changed("run-transform-tests") {
			qaCfg.RunTransformTests = qaRunTransforms
		}

		report, err := qa.New(st, qaCfg).Evaluate(ctx, asOf)
		if err != nil {
			return eris.Wrap(err, "evaluate qa gates")
		}

		formatQAReport(os.Stdout, report)

		if !report.Passed {
			return eris.Errorf("qa gate failed for %s (qa run %s)", asOf, report.QARunID)
		}
		return nil
	},
}

// formatQAReport writes a per-check table followed by the verdict.
func formatQAReport(out io.Writer, report *qa.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CHECK\tRESULT\tOBSERVED\tTHRESHOLD\tDETAILS")
	_, _ = fmt.Fprintln(w, "-----\t------\t--------\t---------\t-------")

	for _, r := range report.Results {
		verdict := "PASS"
		if !r.Passed {
			verdict = "FAIL"
		}
		if r.Advisory {
			verdict += " (advisory)"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.Name, verdict, formatMetric(r.Observed), formatMetric(r.Threshold), r.Details)
	}
	_ = w.Flush()

	verdict := "PASSED"
	if !report.Passed {
		verdict = "FAILED"
	}
	_, _ = fmt.Fprintf(out, "\nQA gate %s for %s (qa run %s)\n", verdict, report.AsOf, report.QARunID)
}

func formatMetric(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *v)
}

func init() {
	qaCmd.Flags().StringVar(&qaAsOf, "as-of", "", "partition date YYYY-MM-DD (default today UTC)")
	qaCmd.Flags().BoolVar(&qaFailOnDrift, "fail-on-drift", false, "treat drift events as a gate failure instead of advisory")
	qaCmd.Flags().BoolVar(&qaRunTransforms, "run-transform-tests", false, "run the external transform test command")
	rootCmd.AddCommand(qaCmd)
}
