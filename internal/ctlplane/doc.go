// Package ctlplane implements the privileged side of rnsgate.
//
// # Overview
//
// The control plane runs as root and is the only component that touches the
// host:
//   - starting and stopping rnsd and lxmd
//   - rendering the daemon configs from the settings tree
//   - running the Reticulum CLI tools (rnstatus, rnpath, rnprobe, ...)
//
// # Architecture
//
// The control plane exposes an RPC server over a Unix socket. The
// unprivileged API server connects as a client and sends [Command] values
// from a closed vocabulary; the server validates each one again before the
// [Executor] runs it.
//
//	API Server → Client → Unix Socket → Server → Executor → rnsd/lxmd/tools
//
// Command output is returned verbatim. Service status, diagnostics and
// utilities print JSON; lifecycle actions print plain text.
//
// # Key Types
//
//   - [Command]: one entry of the command vocabulary
//   - [Runner]: anything that executes commands
//   - [Server]: RPC server, audit trail and metrics
//   - [Client]: RPC client used by the API server
//   - [Executor]: runs commands against the host
//   - [ControlPlaneClient]: interface for mocking in tests
//
// # Example
//
// Starting the server:
//
//	exec := ctlplane.NewExecutor(rt.Paths, config.NewFileStore(rt.Paths.SettingsFile), logger)
//	server := ctlplane.NewServer(exec, logger, ctlplane.WithAuditStore(auditStore))
//	server.Start(ctlplane.GetSocketPath())
//
// Using the client:
//
//	client := ctlplane.NewLazyClient(ctlplane.GetSocketPath(), "api")
//	out, err := client.Run(ctx, ctlplane.RNProbe(hash, 10))
package ctlplane
