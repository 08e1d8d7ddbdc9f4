package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

func newUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <server-url>",
		Short: "Save the API server URL",
		Long:  "Store the server URL in ~/.config/arm/config.yaml so later commands talk to it.",
		Args:  cobra.ExactArgs(1),
		RunE:  runUse,
	}
}

func runUse(cmd *cobra.Command, args []string) error {
	u, err := url.Parse(args[0])
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server URL: %s", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.ServerURL = u.String()
	if err := saveConfig(cfg); err != nil {
		return err
	}

	if isJSON() {
		return printJSON(out(cmd), cfg)
	}
	fmt.Fprintf(out(cmd), "Server set to %s\n", cfg.ServerURL)
	return nil
}
