package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show visit statistics",
		Long:  "Show today's count, month-over-month growth, resource and department shares, and the last days' histogram.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := newAPIClient().Stats()
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(out(cmd), st)
			}
			printStats(out(cmd), st.Stats)
			if st.LastError != "" {
				fmt.Fprintf(out(cmd), "\nwarning: figures may be stale: %s\n", st.LastError)
			}
			return nil
		},
	}
}
