package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ledgerline/catalog-ingest/internal/model"
	"github.com/ledgerline/catalog-ingest/internal/store"
)

var driftCmd = &cobra.Command{
	Use:   "drift",
	Short: "List recorded schema drift events",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		providerID, _ := cmd.Flags().GetString("provider")
		asOf, _ := cmd.Flags().GetString("as-of")
		limit, _ := cmd.Flags().GetInt("limit")

		events, err := st.ListDriftEvents(ctx, store.DriftFilter{
			ProviderID: providerID,
			AsOf:       asOf,
			Limit:      limit,
		})
		if err != nil {
			return eris.Wrap(err, "drift list")
		}

		if len(events) == 0 {
			fmt.Fprintln(os.Stderr, "No drift events recorded.")
			return nil
		}

		formatDriftEvents(os.Stdout, events)
		return nil
	},
}

func formatDriftEvents(out io.Writer, events []model.DriftEvent) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "AS_OF\tPROVIDER\tENDPOINT\tKIND\tFIELD\tPREVIOUS\tOBSERVED")
	_, _ = fmt.Fprintln(w, "-----\t--------\t--------\t----\t-----\t--------\t--------")

	for _, e := range events {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.AsOf,
			e.ProviderID,
			e.Endpoint,
			e.Kind,
			e.FieldPath,
			e.Previous,
			e.Observed,
		)
	}
	_ = w.Flush()
}

func init() {
	driftCmd.Flags().String("provider", "", "filter by provider id")
	driftCmd.Flags().String("as-of", "", "filter by partition date YYYY-MM-DD")
	driftCmd.Flags().Int("limit", 100, "max number of events to display")
	rootCmd.AddCommand(driftCmd)
}
