package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ledgerline/catalog-ingest/internal/model"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the providers from the latest discovery",
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

		providers, err := st.ListProviders(ctx)
		if err != nil {
			return eris.Wrap(err, "providers list")
		}

		if len(providers) == 0 {
			fmt.Fprintln(os.Stderr, "No providers found. Run a discovery first.")
			return nil
		}

		formatProviders(os.Stdout, providers)
		return nil
	},
}

func formatProviders(out io.Writer, providers []model.Provider) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tGROUP\tINDUSTRIES\tBASE_URI")
	_, _ = fmt.Fprintln(w, "--\t----\t-----\t----------\t--------")

	for _, p := range providers {
		name := p.Name
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncateID(p.ID),
			name,
			p.Group,
			strings.Join(p.Industries, ","),
			p.BaseURI,
		)
	}
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(providersCmd)
}
