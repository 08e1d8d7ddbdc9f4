// Package cli defines the cobra command tree for arm.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jizpi/arm-ledger/internal/client"
	"github.com/jizpi/arm-ledger/internal/config"
	"github.com/jizpi/arm-ledger/internal/db"
)

var (
	flagFormat string
	flagDB     string
	flagConfig string
	flagServer string
)

// NewRootCmd creates the root cobra command with global flags.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "arm",
		Short:         "Record and review visits to the resource center",
		Long:          "A visit ledger for an information-resource center. Check visitors in at the desk, browse and filter the log, and follow live statistics from the CLI or over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format (text|json)")
	root.PersistentFlags().StringVar(&flagDB, "db", "", "database path or postgres:// URL (default: ~/.arm/ledger.db)")
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "server config file (default: ./"+config.DefaultFile+" if present)")
	root.PersistentFlags().StringVar(&flagServer, "server", "", "API server URL (overrides ARM_SERVER_URL and the CLI config)")

	root.AddCommand(
		newServeCmd(),
		newAddCmd(),
		newListCmd(),
		newEditCmd(),
		newRemoveCmd(),
		newStatsCmd(),
		newLookupCmd(),
		newExportCmd(),
		newImportCmd(),
		newReportCmd(),
		newWatchCmd(),
		newStatusCmd(),
		newUseCmd(),
		newVersionCmd(),
	)

	return root
}

// loadServerConfig reads the server config and applies the --db flag.
func loadServerConfig() (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return config.Config{}, err
	}
	if flagDB != "" {
		cfg.DatabaseURL = flagDB
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL, err = db.DefaultPath()
		if err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

// newAPIClient creates an HTTP client for the ledger API.
func newAPIClient() *client.Client {
	return client.New(getServerURL())
}

// isJSON returns true if the --format flag is set to json.
func isJSON() bool {
	return flagFormat == "json"
}

// closeDB closes the database, logging any error to stderr.
func closeDB(database *db.DB) {
	if err := database.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing database: %v\n", err)
	}
}

// out returns the writer a command prints to.
func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
