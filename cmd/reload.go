package cmd

import (
	"context"
	"fmt"
	"time"

	"grimm.is/rnsgate/internal/config"
	"grimm.is/rnsgate/internal/ctlplane"
)

// serviceTimeout covers a full restart of rnsd and lxmd.
const serviceTimeout = 2 * time.Minute

// RunReload validates the stored settings, renders the Reticulum
// configuration files and, unless noRestart is set, restarts the service
// (or stops it when it is disabled).
func RunReload(configFile string, noRestart bool) error {
	rt, err := config.LoadRuntime(configFile)
	if err != nil {
		return err
	}

	Printer.Printf("Validating settings: %s\n", rt.Paths.SettingsFile)
	settings, err := config.NewFileStore(rt.Paths.SettingsFile).Load()
	if err != nil {
		return err
	}
	if errs := settings.Validate(); errs.HasErrors() {
		return fmt.Errorf("settings validation failed: %w", errs)
	}

	client, err := dialControlPlane(configFile)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), serviceTimeout)
	defer cancel()
	return reload(ctx, client, settings.IsEnabled(), noRestart)
}

func reload(ctx context.Context, runner ctlplane.Runner, enabled, noRestart bool) error {
	out, err := runner.Run(ctx, ctlplane.Template(ctlplane.TemplateReload))
	if err != nil {
		return fmt.Errorf("template reload failed: %w", err)
	}
	Printer.Println(out)
	if noRestart {
		return nil
	}

	action := ctlplane.ServiceRestart
	if !enabled {
		action = ctlplane.ServiceStop
	}
	out, err = runner.Run(ctx, ctlplane.Service(action))
	if err != nil {
		return fmt.Errorf("service %s failed: %w", action, err)
	}
	if out != "" {
		Printer.Println(out)
	}
	return nil
}

// RunService runs a single service action on the control plane.
func RunService(configFile, action string) error {
	cmd := ctlplane.Service(action)
	if err := cmd.Validate(); err != nil {
		return err
	}

	client, err := dialControlPlane(configFile)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), serviceTimeout)
	defer cancel()

	out, err := client.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("service %s failed: %w", action, err)
	}
	if out != "" {
		Printer.Println(out)
	}
	return nil
}
