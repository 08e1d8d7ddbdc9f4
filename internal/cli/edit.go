package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jizpi/arm-ledger/internal/ledger"
)

func newEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Correct a visit",
		Long:  "Change some fields of a visit. Only the flags given are sent; the ordinal and creation time never change.",
		Args:  cobra.ExactArgs(1),
		RunE:  runEdit,
	}

	cmd.Flags().String("first", "", "first name")
	cmd.Flags().String("last", "", "last name")
	cmd.Flags().Int("team", 0, "team size (0 or 1 makes the visit an individual one)")
	cmd.Flags().String("group", "", "study group label")
	cmd.Flags().String("department", "", "faculty or department")
	cmd.Flags().String("resource", "", "resource used")
	cmd.Flags().String("class", "", "visitor class (internal|external)")
	cmd.Flags().String("date", "", "visit date (dd.mm.yyyy)")

	return cmd
}

// editRequest builds a partial update from the flags the user set.
func editRequest(cmd *cobra.Command) (ledger.UpdateRequest, error) {
	var req ledger.UpdateRequest
	flags := cmd.Flags()

	str := func(name string) *string {
		if !flags.Changed(name) {
			return nil
		}
		v, _ := flags.GetString(name)
		return &v
	}
	req.FirstName = str("first")
	req.LastName = str("last")
	req.Group = str("group")
	req.Department = str("department")
	req.Resource = str("resource")
	req.Class = str("class")
	req.VisitDate = str("date")
	if flags.Changed("team") {
		n, _ := flags.GetInt("team")
		req.GroupSize = &n
	}

	if req == (ledger.UpdateRequest{}) {
		return req, errors.New("nothing to change: pass at least one field flag")
	}
	return req, nil
}

func runEdit(cmd *cobra.Command, args []string) error {
	req, err := editRequest(cmd)
	if err != nil {
		return err
	}

	rec, err := newAPIClient().UpdateVisit(args[0], req)
	if err != nil {
		return fmt.Errorf("editing visit: %w", err)
	}

	if isJSON() {
		return printJSON(out(cmd), rec)
	}

	fmt.Fprintln(out(cmd), "Visit updated.")
	printRecordSummary(out(cmd), rec)
	return nil
}
