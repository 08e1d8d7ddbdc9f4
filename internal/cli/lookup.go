package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <first-name> <last-name>",
		Short: "Show one visitor's history",
		Long:  "List every visit recorded under exactly this first and last name, newest first.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := newAPIClient().Lookup(args[0], args[1])
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(out(cmd), recs)
			}
			if err := printRecordTable(out(cmd), recs); err != nil {
				return err
			}
			if len(recs) > 0 {
				fmt.Fprintf(out(cmd), "\nTotal: %d visits\n", len(recs))
			}
			return nil
		},
	}
}
