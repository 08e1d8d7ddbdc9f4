package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jizpi/arm-ledger/internal/client"
)

func newExportCmd() *cobra.Command {
	var opts client.ListOptions
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download the visit list as an Excel workbook",
		Long:  "Write the filtered visit list and a statistics sheet to an .xlsx file. The file name defaults to the one the server suggests.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, name, err := newAPIClient().Export(opts.Filter)
			if err != nil {
				return fmt.Errorf("exporting: %w", err)
			}

			path := output
			if path == "" {
				path = filepath.Base(name)
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}

			if isJSON() {
				return printJSON(out(cmd), map[string]interface{}{"file": path, "bytes": len(data)})
			}
			fmt.Fprintf(out(cmd), "Saved %s (%d bytes)\n", path, len(data))
			return nil
		},
	}

	addFilterFlags(cmd, &opts)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file path")

	return cmd
}
