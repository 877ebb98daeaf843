package ctlplane

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"grimm.is/rnsgate/internal/config"
)

// Service states reported by the status action.
const (
	StateRunning  = "running"
	StateStopped  = "stopped"
	StateDisabled = "disabled"
	StateUnknown  = "unknown"
)

// ServiceState is the JSON document printed by "reticulum status".
type ServiceState struct {
	Status string `json:"status"`
	RNSD   bool   `json:"rnsd"`
	LXMD   bool   `json:"lxmd"`
}

func (e *Executor) status() ServiceState {
	_, rnsd := e.procs.Find(e.rnsdDaemon().PIDFile, e.bin("rnsd"))
	_, lxmd := e.procs.Find(e.lxmdDaemon(nil).PIDFile, e.bin("lxmd"))
	st := ServiceState{Status: StateStopped, RNSD: rnsd, LXMD: lxmd}
	if rnsd {
		st.Status = StateRunning
	}
	return st
}

func (e *Executor) service(ctx context.Context, action string) (string, error) {
	if action == ServiceStatus {
		return marshal(e.status())
	}

	settings, err := e.store.Load()
	if err != nil {
		return "", fmt.Errorf("failed to load settings: %w", err)
	}

	var out []string
	switch action {
	case ServiceStart:
		out, err = e.startAll(ctx, settings)
	case ServiceStop:
		out, err = e.stopAll(ctx, settings)
	case ServiceRestart:
		if out, err = e.stopAll(ctx, settings); err == nil {
			var started []string
			started, err = e.startAll(ctx, settings)
			out = append(out, started...)
		}
	case ServiceStartRN:
		out, err = e.start(ctx, e.rnsdDaemon())
	case ServiceStopRN:
		out, err = e.stop(ctx, e.rnsdDaemon())
	case ServiceStartLX:
		out, err = e.start(ctx, e.lxmdDaemon(settings))
	case ServiceStopLX:
		out, err = e.stop(ctx, e.lxmdDaemon(settings))
	default:
		return "", fmt.Errorf("unknown service action %q", action)
	}
	return strings.Join(out, "\n"), err
}

// startAll starts rnsd and, when wanted, lxmd. A disabled service is left
// alone.
func (e *Executor) startAll(ctx context.Context, s *config.Settings) ([]string, error) {
	if !s.IsEnabled() {
		return []string{"reticulum is disabled"}, nil
	}
	out, err := e.start(ctx, e.rnsdDaemon())
	if err != nil || !s.LXMDWanted() {
		return out, err
	}
	lx, err := e.start(ctx, e.lxmdDaemon(s))
	return append(out, lx...), err
}

// stopAll stops lxmd first since it may be attached to the shared instance.
func (e *Executor) stopAll(ctx context.Context, s *config.Settings) ([]string, error) {
	lx, lxErr := e.stop(ctx, e.lxmdDaemon(s))
	rn, rnErr := e.stop(ctx, e.rnsdDaemon())
	return append(lx, rn...), errors.Join(lxErr, rnErr)
}

func (e *Executor) start(ctx context.Context, d Daemon) ([]string, error) {
	started, err := e.daemons.Start(ctx, d)
	if err != nil {
		e.logger.Error("Failed to start daemon", "daemon", d.Name, "error", err)
		return nil, err
	}
	if !started {
		return []string{d.Name + " is already running"}, nil
	}
	e.logger.Info("Daemon started", "daemon", d.Name)
	return []string{d.Name + " started"}, nil
}

func (e *Executor) stop(ctx context.Context, d Daemon) ([]string, error) {
	stopped, err := e.daemons.Stop(ctx, d)
	if err != nil {
		e.logger.Error("Failed to stop daemon", "daemon", d.Name, "error", err)
		return nil, err
	}
	if !stopped {
		return []string{d.Name + " is not running"}, nil
	}
	e.logger.Info("Daemon stopped", "daemon", d.Name)
	return []string{d.Name + " stopped"}, nil
}
