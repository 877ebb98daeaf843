package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grimm.is/rnsgate/internal/api"
	"grimm.is/rnsgate/internal/auth"
	"grimm.is/rnsgate/internal/config"
	"grimm.is/rnsgate/internal/ctlplane"
	"grimm.is/rnsgate/internal/logging"
	"grimm.is/rnsgate/internal/metrics"
)

const (
	ctlRetryCount    = 30
	ctlRetryInterval = time.Second

	// collectInterval is how often the Reticulum gauges are refreshed.
	collectInterval = 15 * time.Second
)

// RunAPI runs the unprivileged HTTP API. Commands are forwarded to the
// control plane; settings are read and written directly.
func RunAPI(configFile string) error {
	rt, err := config.LoadRuntime(configFile)
	if err != nil {
		return err
	}
	logger := initializeLogging(rt, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := connectToControlPlane(ctx, rt.ControlPlane.Socket, logger)
	defer client.Close()

	store := config.NewFileStore(rt.Paths.SettingsFile)

	srvCfg := api.DefaultServerConfig()
	srvCfg.MaxConnections = rt.API.MaxConnections

	server, err := api.NewServer(api.ServerOptions{
		Store:          store,
		Client:         client,
		Keys:           auth.NewKeyStore(rt.API.Keys),
		RequireAuth:    rt.AuthRequired(),
		Logger:         logger,
		StreamInterval: rt.StreamEvery(),
		Config:         srvCfg,
	})
	if err != nil {
		return err
	}

	if err := store.Watch(ctx, server.NotifySettingsChanged); err != nil {
		logger.Warn("Settings watch disabled", "error", err)
	}

	collector := metrics.NewCollector(metrics.Get(), ctlplane.SnapshotSource{Runner: client}, logger, collectInterval, nil)
	collector.Start()
	defer collector.Stop()

	return server.Start(ctx, rt.API.Listen)
}

// connectToControlPlane waits for the control plane to answer a ping. The
// API starts regardless; the lazy client keeps retrying on each request.
func connectToControlPlane(ctx context.Context, socket string, logger *logging.Logger) *ctlplane.Client {
	client := ctlplane.NewLazyClient(socket, "api")

	var err error
	for i := 0; i < ctlRetryCount; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		var reply *ctlplane.PingReply
		reply, err = client.Ping(pingCtx)
		cancel()
		if err == nil {
			logger.Info("Connected to control plane",
				"version", reply.Version,
				"pid", reply.PID,
				"uptime", time.Since(reply.Started).Round(time.Second).String(),
			)
			return client
		}
		if i%5 == 0 {
			logger.Info(fmt.Sprintf("Waiting for control plane... (%v)", err))
		}
		select {
		case <-ctx.Done():
			return client
		case <-time.After(ctlRetryInterval):
		}
	}
	logger.Warn("Control plane not reachable, continuing", "socket", socket, "error", err)
	return client
}
