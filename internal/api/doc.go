// Package api implements the unprivileged HTTP API of rnsgate.
//
// # Overview
//
// The API answers the Reticulum plugin endpoints of the firewall web UI. It
// never touches daemons or rendered config files itself: every privileged
// operation is a [ctlplane.Command] sent to the control plane over RPC.
// Settings are read and written through a [config.Store].
//
// # Request Flow
//
//	HTTP Request → AccessLog → i18n → Auth → Handler → ctlplane.Client → CTL Server
//
// # Endpoints
//
//   - /api/reticulum/service/*     status, reconfigure, start, stop, restart, pending, stream
//   - /api/reticulum/settings/*    general, propagation and interface CRUD
//   - /api/reticulum/utilities/*   rnstatus, rnid, rnpath, rnprobe, rnodeconfig, rncp, rnx
//   - /api/reticulum/diagnostics/* rnstatus, paths, announces, propagation, interfaces, log, ...
//   - /metrics                     Prometheus metrics
//   - /healthz                     control plane reachability
//
// # Response Shapes
//
// Responses keep the plugin's JSON contract: write endpoints answer
// {"result": ...}, command pass-through endpoints wrap the decoded command
// output as {"status": "ok", "data": ...}. Non-2xx codes are reserved for
// authentication failures, malformed bodies and a missing control plane.
package api
