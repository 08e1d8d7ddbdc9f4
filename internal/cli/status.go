package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the connection to the server",
		Long:  "Tests the connection to the server and shows today's date and the next ordinal.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd)
		},
	}
}

func runStatus(cmd *cobra.Command) error {
	w := out(cmd)
	serverURL := getServerURL()
	c := newAPIClient()

	if err := c.Health(); err != nil {
		if isJSON() {
			return printJSON(w, map[string]interface{}{"server": serverURL, "ok": false, "error": err.Error()})
		}
		fmt.Fprintf(w, "Server:  %s\n", serverURL)
		fmt.Fprintf(w, "Status:  ✗ %v\n", err)
		return nil
	}

	today, err := c.Today()
	if err != nil {
		return err
	}

	if isJSON() {
		return printJSON(w, map[string]interface{}{
			"server":        serverURL,
			"ok":            true,
			"date":          today.Date,
			"next_sequence": today.NextSequence,
		})
	}
	fmt.Fprintf(w, "Server:  %s\n", serverURL)
	fmt.Fprintln(w, "Status:  ✓ connected")
	fmt.Fprintf(w, "Today:   %s, next visitor is #%d\n", today.Date, today.NextSequence)
	return nil
}
