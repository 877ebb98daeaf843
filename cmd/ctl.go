package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/rnsgate/internal/audit"
	"grimm.is/rnsgate/internal/brand"
	"grimm.is/rnsgate/internal/config"
	"grimm.is/rnsgate/internal/ctlplane"
	"grimm.is/rnsgate/internal/i18n"
	"grimm.is/rnsgate/internal/logging"
	"grimm.is/rnsgate/internal/metrics"
)

// Printer is the global message printer for the CLI
var Printer = i18n.NewCLIPrinter()

// RunCtl runs the privileged control plane: it owns the Reticulum daemons and
// configuration files and answers commands on a Unix socket.
func RunCtl(configFile string) (err error) {
	rt, err := config.LoadRuntime(configFile)
	if err != nil {
		return err
	}
	logger := initializeLogging(rt, "ctl")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("PANIC: %v", r)
			logger.Error("Control plane panic", "panic", r)
		}
	}()

	if err := os.MkdirAll(brand.GetStateDir(), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	pidCleanup, err := setupPIDFile(ctx, "ctl")
	if err != nil {
		return err
	}
	defer pidCleanup()

	store := config.NewFileStore(rt.Paths.SettingsFile)
	if _, err := store.Load(); err != nil {
		return fmt.Errorf("settings %s: %w", store.Path(), err)
	}
	exec := ctlplane.NewExecutor(*rt.Paths, store, logger)

	auditStore, err := audit.NewStore(rt.ControlPlane.AuditDB, rt.ControlPlane.RetentionDays)
	if err != nil {
		return fmt.Errorf("failed to open audit store: %w", err)
	}
	defer auditStore.Close()
	startAuditPruning(ctx, auditStore, logger)

	reg := metrics.Get()
	server := ctlplane.NewServer(exec, logger,
		ctlplane.WithAuditStore(auditStore),
		ctlplane.WithMetrics(reg),
	)

	socket := rt.ControlPlane.Socket
	if err := os.MkdirAll(filepath.Dir(socket), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := server.Start(socket); err != nil {
		return err
	}
	defer server.Stop()

	if addr := rt.ControlPlane.MetricsListen; addr != "" {
		go serveMetrics(ctx, addr, logger)
	}

	logging.Info("Control plane ready",
		"version", brand.Version,
		"socket", socket,
		"settings", store.Path(),
	)
	return runMainEventLoop(ctx, cancel, exec, logger)
}

// serveMetrics exposes the command counters of the control plane process.
func serveMetrics(ctx context.Context, addr string, logger *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Metrics server failed", "error", err)
	}
}
