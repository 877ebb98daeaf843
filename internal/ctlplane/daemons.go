package ctlplane

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Daemon describes how to run one of the Reticulum daemons.
type Daemon struct {
	Name    string
	Binary  string
	Args    []string
	PIDFile string
	LogFile string
}

// DaemonController starts and stops daemons.
type DaemonController interface {
	Start(ctx context.Context, d Daemon) (started bool, err error)
	Stop(ctx context.Context, d Daemon) (stopped bool, err error)
}

// HostDaemons runs daemons as detached child processes tracked by pid files.
type HostDaemons struct {
	Procs       ProcessTable
	StopTimeout time.Duration
}

// Start launches d unless it is already running.
func (h HostDaemons) Start(ctx context.Context, d Daemon) (bool, error) {
	if _, running := h.Procs.Find(d.PIDFile, d.Binary); running {
		return false, nil
	}

	out, err := openLog(d.LogFile)
	if err != nil {
		return false, err
	}

	cmd := exec.Command(d.Binary, d.Args...)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		out.Close()
		return false, fmt.Errorf("failed to start %s: %w", d.Name, err)
	}

	if err := writePIDFile(d.PIDFile, cmd.Process.Pid); err != nil {
		cmd.Process.Kill()
		out.Close()
		return false, fmt.Errorf("failed to write pid file for %s: %w", d.Name, err)
	}

	// Reap the child so it does not linger as a zombie.
	go func() {
		cmd.Wait()
		out.Close()
	}()
	return true, nil
}

// Stop sends SIGTERM and escalates to SIGKILL after StopTimeout.
func (h HostDaemons) Stop(ctx context.Context, d Daemon) (bool, error) {
	info, running := h.Procs.Find(d.PIDFile, d.Binary)
	if !running {
		os.Remove(d.PIDFile)
		return false, nil
	}

	if err := unix.Kill(info.PID, unix.SIGTERM); err != nil && err != unix.ESRCH {
		return false, fmt.Errorf("failed to signal %s: %w", d.Name, err)
	}

	timeout := h.StopTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for alive(info.PID) {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			unix.Kill(info.PID, unix.SIGKILL)
		case <-ticker.C:
		}
	}

	os.Remove(d.PIDFile)
	return true, nil
}

func openLog(path string) (*os.File, error) {
	if path == "" {
		return os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}
