package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v2"

	"grimm.is/rnsgate/internal/audit"
	"grimm.is/rnsgate/internal/brand"
	"grimm.is/rnsgate/internal/ctlplane"
)

// RunAudit prints the audit trail kept by the control plane.
func RunAudit(args []string) error {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	configFile := fs.String("config", brand.GetConfigPath(), "Runtime configuration file")
	fs.StringVar(configFile, "c", brand.GetConfigPath(), "Runtime configuration file (short)")
	since := fs.Duration("since", 24*time.Hour, "Show events newer than this")
	action := fs.String("action", "", "Only this action (service, template, utilities, diagnostics)")
	outcome := fs.String("outcome", "", "Only this outcome (ok, failed, rejected)")
	limit := fs.Int("limit", 100, "Maximum number of events")
	format := fs.String("format", "table", "Output format: table, json, yaml")
	fs.StringVar(format, "o", "table", "Output format (short)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := dialControlPlane(*configFile)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	events, err := client.AuditEvents(ctx, &ctlplane.AuditArgs{
		Since:   time.Now().Add(-*since),
		Action:  *action,
		Outcome: *outcome,
		Limit:   *limit,
	})
	if err != nil {
		return fmt.Errorf("failed to query audit trail: %w", err)
	}
	return printEvents(os.Stdout, events, *format)
}

func printEvents(w io.Writer, events []audit.Event, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(events)
	case "table":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		Printer.Fprintln(tw, "TIME\tCALLER\tCOMMAND\tOUTCOME\tDURATION")
		for _, e := range events {
			Printer.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				e.Timestamp.Local().Format(time.DateTime), e.Caller, e.Command, e.Outcome,
				e.Duration.Round(time.Millisecond))
		}
		return tw.Flush()
	}
	return fmt.Errorf("unknown format %q", format)
}
