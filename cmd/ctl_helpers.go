package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"grimm.is/rnsgate/internal/audit"
	"grimm.is/rnsgate/internal/brand"
	"grimm.is/rnsgate/internal/config"
	"grimm.is/rnsgate/internal/ctlplane"
	"grimm.is/rnsgate/internal/logging"
)

// initializeLogging builds the process logger from the runtime configuration
// and installs it as the default.
func initializeLogging(rt *config.Runtime, component string) *logging.Logger {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(rt.LogLevel)
	cfg.JSON = rt.LogFormat == "json"
	logger := logging.New(cfg)
	logging.SetDefault(logger)
	return logger.WithComponent(component)
}

// setupPIDFile writes the PID file for name and restores it if something
// removes it while ctx is alive.
func setupPIDFile(ctx context.Context, name string) (cleanup func(), err error) {
	runDir := brand.GetRunDir()
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	pidFile := filepath.Join(runDir, brand.LowerName+"-"+name+".pid")
	pid := fmt.Sprintf("%d", os.Getpid())

	writePID := func() error {
		return os.WriteFile(pidFile, []byte(pid), 0644)
	}
	if err := writePID(); err != nil {
		return nil, fmt.Errorf("failed to write PID file: %w", err)
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				data, err := os.ReadFile(pidFile)
				if err != nil || strings.TrimSpace(string(data)) != pid {
					if err := writePID(); err != nil {
						logging.Error("Failed to restore PID file", "file", pidFile, "error", err)
					} else {
						logging.Info("Restored PID file", "file", pidFile)
					}
				}
			}
		}
	}()

	cleanup = func() {
		if data, err := os.ReadFile(pidFile); err == nil && strings.TrimSpace(string(data)) == pid {
			os.Remove(pidFile)
		}
	}
	return cleanup, nil
}

// startAuditPruning drops expired audit events once an hour.
func startAuditPruning(ctx context.Context, store *audit.Store, logger *logging.Logger) {
	prune := func() {
		n, err := store.Prune()
		if err != nil {
			logger.Warn("Audit prune failed", "error", err)
		} else if n > 0 {
			logger.Info("Pruned audit events", "count", n)
		}
	}
	prune()

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				prune()
			}
		}
	}()
}

// runMainEventLoop waits for signals. SIGHUP re-renders the Reticulum
// configuration files from the stored settings.
func runMainEventLoop(ctx context.Context, cancel context.CancelFunc, runner ctlplane.Runner, logger *logging.Logger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				logger.Info("Received SIGHUP, rendering configuration")
				rctx := ctlplane.WithCaller(ctx, "signal")
				if out, err := runner.Run(rctx, ctlplane.Template(ctlplane.TemplateReload)); err != nil {
					logger.Error("Template reload failed", "error", err)
				} else {
					logger.Info("Template reload done", "result", out)
				}
			default:
				logger.Info("Received signal, shutting down", "signal", sig)
				cancel()
				return nil
			}
		}
	}
}

// cliCaller names the invoking user in the audit trail.
func cliCaller() string {
	if u, err := user.Current(); err == nil {
		return "cli:" + u.Username
	}
	return "cli"
}

// dialControlPlane loads the runtime configuration and connects to the
// control plane socket it names.
func dialControlPlane(configFile string) (*ctlplane.Client, error) {
	rt, err := config.LoadRuntime(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", configFile, err)
	}
	client, err := ctlplane.NewClient(rt.ControlPlane.Socket, cliCaller())
	if err != nil {
		return nil, fmt.Errorf("%w (is the control plane running? start it with: %s ctl)", err, brand.BinaryName)
	}
	return client, nil
}
