package ctlplane

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"grimm.is/rnsgate/internal/clock"
	"grimm.is/rnsgate/internal/config"
	"grimm.is/rnsgate/internal/logging"
)

// Executor runs validated commands against the host. It is the Runner the
// control plane server is built with.
type Executor struct {
	paths   config.PathsConfig
	store   config.Store
	tools   ToolRunner
	procs   ProcessTable
	daemons DaemonController
	clock   clock.Clock
	logger  *logging.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithTools replaces the CLI tool runner.
func WithTools(t ToolRunner) ExecutorOption {
	return func(e *Executor) { e.tools = t }
}

// WithProcesses replaces the process table.
func WithProcesses(p ProcessTable) ExecutorOption {
	return func(e *Executor) { e.procs = p }
}

// WithDaemons replaces the daemon controller.
func WithDaemons(d DaemonController) ExecutorOption {
	return func(e *Executor) { e.daemons = d }
}

// WithExecutorClock overrides the time source used for uptimes.
func WithExecutorClock(c clock.Clock) ExecutorOption {
	return func(e *Executor) { e.clock = c }
}

// NewExecutor creates an executor that reads settings from store and finds
// binaries, configs and state under paths.
func NewExecutor(paths config.PathsConfig, store config.Store, logger *logging.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		paths:  paths,
		store:  store,
		tools:  HostTools{BinDir: paths.BinDir},
		procs:  HostProcesses{},
		clock:  clock.Real{},
		logger: logger.WithComponent("exec"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.daemons == nil {
		e.daemons = HostDaemons{Procs: e.procs}
	}
	return e
}

// Run implements Runner.
func (e *Executor) Run(ctx context.Context, cmd Command) (string, error) {
	switch cmd.Kind {
	case KindService:
		return e.service(ctx, cmd.Name)
	case KindTemplate:
		return e.template(cmd.Name)
	case KindUtility:
		return marshal(e.utility(ctx, cmd.Name, cmd.Args))
	case KindDiagnostic:
		return marshal(e.diagnostic(ctx, cmd.Name))
	}
	return "", fmt.Errorf("unsupported command kind %q", cmd.Kind)
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (e *Executor) bin(name string) string {
	return filepath.Join(e.paths.BinDir, name)
}

func (e *Executor) rnsdDaemon() Daemon {
	return Daemon{
		Name:    "rnsd",
		Binary:  e.bin("rnsd"),
		Args:    []string{"--config", e.paths.RNSConfigDir},
		PIDFile: filepath.Join(e.paths.RunDir, "rnsd.pid"),
		LogFile: e.paths.LogFile,
	}
}

func (e *Executor) lxmdDaemon(s *config.Settings) Daemon {
	args := []string{"--config", e.paths.LXMDConfigDir}
	if s != nil && s.General != nil && s.General.LXMFBindToRNSD == "1" {
		args = append(args, "--rnsconfig", e.paths.RNSConfigDir)
	}
	return Daemon{
		Name:    "lxmd",
		Binary:  e.bin("lxmd"),
		Args:    args,
		PIDFile: filepath.Join(e.paths.RunDir, "lxmd.pid"),
		LogFile: filepath.Join(filepath.Dir(e.paths.LogFile), "lxmd.log"),
	}
}

func (e *Executor) messageStore() string {
	return filepath.Join(e.paths.LXMDStorage, "messagestore")
}

func (e *Executor) lxmdConfigFile() string {
	return filepath.Join(e.paths.LXMDConfigDir, "config")
}

func (e *Executor) rnsConfigFile() string {
	return filepath.Join(e.paths.RNSConfigDir, "config")
}
