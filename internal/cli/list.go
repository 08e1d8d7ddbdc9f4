package cli

import (
	"github.com/spf13/cobra"

	"github.com/jizpi/arm-ledger/internal/client"
)

func newListCmd() *cobra.Command {
	var opts client.ListOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visits",
		Long:  "List visits newest first, 20 per page. Filters combine; the text search matches names, group, department and resource.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := newAPIClient().ListVisits(opts)
			if err != nil {
				return err
			}
			if isJSON() {
				return printJSON(out(cmd), page)
			}
			return printPage(out(cmd), page)
		},
	}

	addFilterFlags(cmd, &opts)
	cmd.Flags().StringVar(&opts.Sort, "sort", "", "sort key (created_at, sequence_number, visit_date, last_name, department, ...)")
	cmd.Flags().StringVar(&opts.Dir, "dir", "", "sort direction (asc|desc)")
	cmd.Flags().IntVar(&opts.Page, "page", 1, "page number")

	return cmd
}

// addFilterFlags registers the filter flags shared by list and export.
func addFilterFlags(cmd *cobra.Command, opts *client.ListOptions) {
	cmd.Flags().StringVarP(&opts.Filter.Text, "search", "q", "", "case-insensitive text search")
	cmd.Flags().StringVar(&opts.Filter.Date, "date", "", "visit date (yyyy-mm-dd or dd.mm.yyyy)")
	cmd.Flags().StringVar(&opts.Filter.Resource, "resource", "", "exact resource name")
	cmd.Flags().StringVar(&opts.Filter.Department, "department", "", "exact department name")
}
