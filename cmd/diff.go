package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"grimm.is/rnsgate/internal/ctlplane"
)

// ErrPendingChanges is returned by RunDiff when the rendered configuration
// differs from the files on disk.
var ErrPendingChanges = errors.New("configuration differs")

// RunDiff shows how the Reticulum configuration files would change on the
// next reload.
func RunDiff(configFile string) error {
	client, err := dialControlPlane(configFile)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return diff(ctx, client)
}

func diff(ctx context.Context, runner ctlplane.Runner) error {
	out, err := runner.Run(ctx, ctlplane.Template(ctlplane.TemplateDiff))
	if err != nil {
		return fmt.Errorf("template diff failed: %w", err)
	}
	if out == "" {
		Printer.Println("No changes detected.")
		return nil
	}
	Printer.Println("Configuration differs from the files on disk:")
	fmt.Print(out)
	return ErrPendingChanges
}
