package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"grimm.is/rnsgate/internal/config"
)

// RunCheck validates the runtime configuration and the Reticulum settings
// it points to.
func RunCheck(configFile string, verbose bool) error {
	return check(os.Stdout, configFile, verbose)
}

func check(w io.Writer, configFile string, verbose bool) error {
	rt, err := config.LoadRuntime(configFile)
	if err != nil {
		return fmt.Errorf("runtime configuration invalid: %w", err)
	}
	Printer.Fprintf(w, "Runtime configuration valid: %s\n", configFile)
	Printer.Fprintf(w, "API listen: %s (auth required: %t, keys: %d)\n", rt.API.Listen, rt.AuthRequired(), len(rt.API.Keys))
	Printer.Fprintf(w, "Control plane socket: %s\n", rt.ControlPlane.Socket)

	settings, err := config.NewFileStore(rt.Paths.SettingsFile).Load()
	if err != nil {
		return fmt.Errorf("settings invalid: %w", err)
	}
	if errs := settings.Validate(); errs.HasErrors() {
		for _, e := range errs {
			Printer.Fprintf(w, "  %s: %s\n", e.Field, e.Message)
		}
		return fmt.Errorf("settings invalid: %d errors", len(errs))
	}

	Printer.Fprintf(w, "Settings valid: %s\n", rt.Paths.SettingsFile)
	Printer.Fprintf(w, "Enabled: %t\n", settings.IsEnabled())
	Printer.Fprintf(w, "Interfaces: %d\n", len(settings.Interfaces))

	if verbose {
		Printer.Fprintln(w)
		printSummary(w, settings)
	}
	return nil
}

func printSummary(out io.Writer, s *config.Settings) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)

	Printer.Fprintln(w, "NAME\tTYPE\tMODE\tENABLED\tUUID")
	for _, iface := range s.Interfaces {
		enabled := "no"
		if iface.Enabled == "1" {
			enabled = "yes"
		}
		Printer.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", iface.Name, iface.InterfaceType, iface.Mode, enabled, iface.UUID)
	}
	Printer.Fprintln(w)
	w.Flush()

	Printer.Fprintln(w, "PROPAGATION\tLXMF\tTRANSPORT")
	Printer.Fprintf(w, "%s\t%s\t%s\n", s.Propagation.EnableNode, s.General.EnableLXMF, s.General.EnableTransport)
	w.Flush()
}
