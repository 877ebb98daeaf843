package ctlplane

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/rnsgate/internal/clock"
	"grimm.is/rnsgate/internal/config"
)

type toolCall struct {
	Timeout time.Duration
	Argv    string
}

// fakeTools answers tool invocations from a table keyed by argv.
type fakeTools struct {
	mu      sync.Mutex
	results map[string]ToolResult
	calls   []toolCall
}

func newFakeTools() *fakeTools {
	return &fakeTools{results: map[string]ToolResult{}}
}

func (f *fakeTools) on(argv string, res ToolResult) {
	f.results[argv] = res
}

func (f *fakeTools) RunTool(ctx context.Context, timeout time.Duration, name string, args ...string) ToolResult {
	argv := strings.Join(append([]string{name}, args...), " ")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, toolCall{timeout, argv})
	if res, ok := f.results[argv]; ok {
		return res
	}
	return ToolResult{NotFound: true, ExitCode: 1}
}

func (f *fakeTools) argvs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.Argv)
	}
	return out
}

// fakeProcs reports daemons as running by binary path.
type fakeProcs map[string]ProcInfo

func (f fakeProcs) Find(pidfile, binary string) (ProcInfo, bool) {
	info, ok := f[binary]
	return info, ok
}

type fakeDaemons struct {
	procs   fakeProcs
	actions []string
	failOn  string
}

func (f *fakeDaemons) Start(ctx context.Context, d Daemon) (bool, error) {
	if f.failOn == "start "+d.Name {
		return false, fmt.Errorf("%s exited immediately", d.Name)
	}
	f.actions = append(f.actions, "start "+d.Name+" "+strings.Join(d.Args, " "))
	if _, ok := f.procs[d.Binary]; ok {
		return false, nil
	}
	f.procs[d.Binary] = ProcInfo{PID: 100}
	return true, nil
}

func (f *fakeDaemons) Stop(ctx context.Context, d Daemon) (bool, error) {
	f.actions = append(f.actions, "stop "+d.Name)
	if _, ok := f.procs[d.Binary]; !ok {
		return false, nil
	}
	delete(f.procs, d.Binary)
	return true, nil
}

type executorFixture struct {
	exec    *Executor
	tools   *fakeTools
	procs   fakeProcs
	daemons *fakeDaemons
	store   *config.MemoryStore
	paths   config.PathsConfig
	clock   *clock.Mock
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()
	root := t.TempDir()
	paths := config.PathsConfig{
		BinDir:        "/usr/local/bin",
		RNSConfigDir:  filepath.Join(root, "reticulum"),
		LXMDConfigDir: filepath.Join(root, "lxmd"),
		LXMDStorage:   filepath.Join(root, "db", "lxmd"),
		RunDir:        filepath.Join(root, "run"),
		LogFile:       filepath.Join(root, "log", "rnsd.log"),
	}
	f := &executorFixture{
		tools: newFakeTools(),
		procs: fakeProcs{},
		store: config.NewMemoryStore(config.Defaults()),
		paths: paths,
		clock: clock.NewMock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)),
	}
	f.daemons = &fakeDaemons{procs: f.procs}
	f.exec = NewExecutor(paths, f.store, testLogger(),
		WithTools(f.tools), WithProcesses(f.procs), WithDaemons(f.daemons), WithExecutorClock(f.clock))
	return f
}

func (f *executorFixture) run(t *testing.T, cmd Command) string {
	t.Helper()
	out, err := f.exec.Run(context.Background(), cmd)
	require.NoError(t, err)
	return out
}

func (f *executorFixture) runJSON(t *testing.T, cmd Command) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(f.run(t, cmd)), &v))
	return v
}

func (f *executorFixture) writeSettings(t *testing.T, mutate func(*config.Settings)) {
	t.Helper()
	s, err := f.store.Load()
	require.NoError(t, err)
	mutate(s)
	require.NoError(t, f.store.Save(s))
}

func TestExecutor_Status(t *testing.T) {
	f := newExecutorFixture(t)
	assert.JSONEq(t, `{"status":"stopped","rnsd":false,"lxmd":false}`, f.run(t, Service(ServiceStatus)))

	f.procs["/usr/local/bin/rnsd"] = ProcInfo{PID: 42}
	assert.JSONEq(t, `{"status":"running","rnsd":true,"lxmd":false}`, f.run(t, Service(ServiceStatus)))

	delete(f.procs, "/usr/local/bin/rnsd")
	f.procs["/usr/local/bin/lxmd"] = ProcInfo{PID: 43}
	assert.JSONEq(t, `{"status":"stopped","rnsd":false,"lxmd":true}`, f.run(t, Service(ServiceStatus)))
}

func TestExecutor_StartDisabled(t *testing.T) {
	f := newExecutorFixture(t)
	assert.Equal(t, "reticulum is disabled", f.run(t, Service(ServiceStart)))
	assert.Empty(t, f.daemons.actions)
}

func TestExecutor_StartStopRestart(t *testing.T) {
	f := newExecutorFixture(t)
	f.writeSettings(t, func(s *config.Settings) {
		s.General.Enabled = "1"
		s.General.EnableLXMF = "1"
	})

	out := f.run(t, Service(ServiceStart))
	assert.Equal(t, "rnsd started\nlxmd started", out)
	assert.Equal(t, []string{
		"start rnsd --config " + f.paths.RNSConfigDir,
		"start lxmd --config " + f.paths.LXMDConfigDir + " --rnsconfig " + f.paths.RNSConfigDir,
	}, f.daemons.actions)

	assert.Equal(t, "rnsd is already running\nlxmd is already running", f.run(t, Service(ServiceStart)))

	f.daemons.actions = nil
	out = f.run(t, Service(ServiceRestart))
	assert.Equal(t, "lxmd stopped\nrnsd stopped\nrnsd started\nlxmd started", out)
	assert.Equal(t, "stop lxmd", f.daemons.actions[0])

	out = f.run(t, Service(ServiceStop))
	assert.Equal(t, "lxmd stopped\nrnsd stopped", out)
	assert.Empty(t, f.procs)
}

func TestExecutor_StartWithoutLXMF(t *testing.T) {
	f := newExecutorFixture(t)
	f.writeSettings(t, func(s *config.Settings) {
		s.General.Enabled = "1"
		s.General.LXMFBindToRNSD = "0"
	})
	assert.Equal(t, "rnsd started", f.run(t, Service(ServiceStart)))

	out := f.run(t, Service(ServiceStartLX))
	assert.Equal(t, "lxmd started", out)
	assert.Equal(t, "start lxmd --config "+f.paths.LXMDConfigDir, f.daemons.actions[1])
}

func TestExecutor_StartFailure(t *testing.T) {
	f := newExecutorFixture(t)
	f.writeSettings(t, func(s *config.Settings) { s.General.Enabled = "1" })
	f.daemons.failOn = "start rnsd"

	_, err := f.exec.Run(context.Background(), Service(ServiceStart))
	assert.ErrorContains(t, err, "exited immediately")
}

func TestExecutor_UtilityArgv(t *testing.T) {
	f := newExecutorFixture(t)
	cfg := f.paths.RNSConfigDir
	hash := "0123456789abcdef0123456789abcdef"

	tests := []struct {
		cmd  Command
		argv string
	}{
		{RNStatus(false), "rnstatus --config " + cfg},
		{RNStatus(true), "rnstatus -a --config " + cfg},
		{RNID(""), "rnid --config " + cfg},
		{RNID(hash), "rnid " + hash + " --config " + cfg},
		{RNPath(hash), "rnpath " + hash + " --config " + cfg},
		{RNProbe(hash, 30), "rnprobe " + hash + " --config " + cfg + " --timeout 30"},
		{RNodeConf(""), "rnodeconf --list"},
		{RNodeConf("/dev/cuaU0"), "rnodeconf /dev/cuaU0 --info"},
	}
	for _, tt := range tests {
		f.tools.on(tt.argv, ToolResult{Stdout: "out\n", Stderr: "warn\n"})
		got := f.runJSON(t, tt.cmd)
		assert.Equal(t, "out\nwarn", got["output"], tt.argv)
		assert.Equal(t, true, got["success"], tt.argv)
		assert.EqualValues(t, 0, got["returncode"], tt.argv)
	}
	assert.Len(t, f.tools.argvs(), len(tests))
}

func TestExecutor_ProbeTimeout(t *testing.T) {
	f := newExecutorFixture(t)
	hash := "0123456789abcdef0123456789abcdef"
	argv := "rnprobe " + hash + " --config " + f.paths.RNSConfigDir + " --timeout 60"
	f.tools.on(argv, ToolResult{TimedOut: true, ExitCode: 1})

	got := f.runJSON(t, RNProbe(hash, 60))
	assert.Equal(t, "Command timed out after 65 seconds.", got["output"])
	assert.Equal(t, false, got["success"])
	assert.Equal(t, 65*time.Second, f.tools.calls[0].Timeout)
}

func TestExecutor_UtilityRejections(t *testing.T) {
	f := newExecutorFixture(t)

	tests := []struct {
		cmd  Command
		want string
	}{
		{RNPath(""), "Destination hash is required."},
		{RNPath("abcd"), "Invalid destination hash. Must be 32 hex characters."},
		{Command{Kind: KindUtility, Name: UtilRNProbe, Args: []string{"abcd", "10"}}, "Invalid destination hash. Must be 32 hex characters."},
		{RNID("abcd"), "Invalid destination hash. Must be 32 hex characters."},
		{RNodeConf("ttyUSB0"), "Invalid device path. Must be a /dev/ path."},
		{RNodeConf("/dev/../etc/passwd"), "Invalid device path. Must be a /dev/ path."},
		{Command{Kind: KindUtility, Name: "rnsh"}, "Unknown utility: rnsh"},
	}
	for _, tt := range tests {
		got := f.runJSON(t, tt.cmd)
		assert.Equal(t, tt.want, got["output"], tt.cmd.String())
		assert.EqualValues(t, 1, got["returncode"])
		assert.Equal(t, false, got["success"])
	}
	assert.Empty(t, f.tools.argvs(), "rejected utilities never run a tool")
}

func TestExecutor_UtilityFailures(t *testing.T) {
	f := newExecutorFixture(t)

	got := f.runJSON(t, RNStatus(false))
	assert.Equal(t, "Command not found: rnstatus", got["output"])

	f.tools.on("rnstatus --config "+f.paths.RNSConfigDir, ToolResult{Stderr: "No shared instance\n", ExitCode: 2})
	got = f.runJSON(t, RNStatus(false))
	assert.Equal(t, "No shared instance", got["output"])
	assert.EqualValues(t, 2, got["returncode"])
	assert.Equal(t, false, got["success"])
}

func TestExecutor_HelpFallback(t *testing.T) {
	f := newExecutorFixture(t)
	f.tools.on("rncp --help", ToolResult{ExitCode: 1})
	f.tools.on("rnx --help", ToolResult{ExitCode: 2})

	got := f.runJSON(t, RNCPHelp())
	assert.EqualValues(t, 1, got["returncode"])
	assert.True(t, strings.HasPrefix(got["output"].(string), "rncp - Reticulum File Copy"))

	got = f.runJSON(t, RNXHelp())
	assert.Contains(t, got["output"], "Usage: rnx [options] <destination_hash> <command>")

	f.tools.on("rncp --help", ToolResult{NotFound: true, ExitCode: 1})
	got = f.runJSON(t, RNCPHelp())
	assert.Equal(t, "Command not found: rncp", got["output"])

	f.tools.on("rnx --help", ToolResult{Stdout: "usage: rnx ...\n"})
	got = f.runJSON(t, RNXHelp())
	assert.Equal(t, "usage: rnx ...", got["output"])
}
