package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jizpi/arm-ledger/internal/ledger"
)

func newAddCmd() *cobra.Command {
	var req ledger.CreateRequest

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Check a visitor in",
		Long: `Record a check-in dated today. An individual needs --first and --last;
a team of two or more is recorded with --team N and no names.`,
		Example: `  arm add --first Ali --last Valiyev --group 211-21 --department Energetika --resource "Ilmiy zal"
  arm add --team 12 --group 305 --department Qurilish --resource "O'quv zali" --class tashqi`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, req)
		},
	}

	cmd.Flags().StringVar(&req.FirstName, "first", "", "first name (individuals)")
	cmd.Flags().StringVar(&req.LastName, "last", "", "last name (individuals)")
	cmd.Flags().IntVar(&req.GroupSize, "team", 0, "number of people when checking in a team")
	cmd.Flags().StringVar(&req.Group, "group", "", "study group label")
	cmd.Flags().StringVar(&req.Department, "department", "", "faculty or department")
	cmd.Flags().StringVar(&req.SubUnit, "sub-unit", "", "sub-unit appended to the department")
	cmd.Flags().StringVar(&req.Resource, "resource", "", "resource used (see 'arm stats' for the catalog)")
	cmd.Flags().StringVar(&req.Class, "class", "internal", "visitor class (internal|external)")

	return cmd
}

func runAdd(cmd *cobra.Command, req ledger.CreateRequest) error {
	rec, err := newAPIClient().CreateVisit(req)
	if err != nil {
		return fmt.Errorf("adding visit: %w", err)
	}

	if isJSON() {
		return printJSON(out(cmd), rec)
	}

	fmt.Fprintf(out(cmd), "Visit recorded as #%d for %s.\n", rec.Sequence, rec.VisitDate)
	printRecordSummary(out(cmd), rec)
	return nil
}
