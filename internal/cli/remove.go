package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newRemoveCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a visit",
		Long:  "Delete a visit permanently. Asks for confirmation unless --yes is given.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd, args[0], yes)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}

func runRemove(cmd *cobra.Command, id string, yes bool) error {
	c := newAPIClient()

	if !yes {
		rec, err := c.GetVisit(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(out(cmd), "Delete %s (%s, #%d, %s)? This cannot be undone. [y/N] ",
			rec.DisplayName(), rec.VisitDate, rec.Sequence, rec.Resource)
		answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes", "ha":
		default:
			fmt.Fprintln(out(cmd), "Cancelled.")
			return nil
		}
	}

	if err := c.DeleteVisit(id); err != nil {
		return err
	}

	if isJSON() {
		return printJSON(out(cmd), map[string]interface{}{
			"id":      id,
			"removed": true,
		})
	}

	fmt.Fprintf(out(cmd), "Visit %s removed.\n", id)
	return nil
}
