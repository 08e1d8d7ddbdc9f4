package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jizpi/arm-ledger/internal/config"
	"github.com/jizpi/arm-ledger/internal/report"
)

func newReportCmd() *cobra.Command {
	var send bool
	var to []string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print or email the daily summary",
		Long: `Build a plain-text summary of today's figures from the server's statistics.
With --send it is mailed through the SMTP server in the server config to
report_recipients, or to the --to addresses.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, send, to)
		},
	}

	cmd.Flags().BoolVar(&send, "send", false, "email the report instead of only printing it")
	cmd.Flags().StringSliceVar(&to, "to", nil, "recipient addresses (default: report_recipients from config)")

	return cmd
}

func runReport(cmd *cobra.Command, send bool, to []string) error {
	st, err := newAPIClient().Stats()
	if err != nil {
		return err
	}
	subject := report.Subject(st.Stats)
	body := report.Format(st.Stats)

	if !send {
		if isJSON() {
			return printJSON(out(cmd), map[string]interface{}{"subject": subject, "body": body, "sent": false})
		}
		fmt.Fprintln(out(cmd), body)
		return nil
	}

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if len(to) == 0 {
		to = cfg.ReportRecipients
	}
	if len(to) == 0 {
		return errors.New("no recipients: set report_recipients or pass --to")
	}
	if err := report.Send(cfg.SMTP, to, subject, body); err != nil {
		return fmt.Errorf("sending report: %w", err)
	}

	if isJSON() {
		return printJSON(out(cmd), map[string]interface{}{"subject": subject, "to": to, "sent": true})
	}
	fmt.Fprintf(out(cmd), "Report sent to %d recipient(s).\n", len(to))
	return nil
}
