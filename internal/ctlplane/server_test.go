package ctlplane

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/rnsgate/internal/audit"
	"grimm.is/rnsgate/internal/clock"
	"grimm.is/rnsgate/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Output: io.Discard, Level: logging.LevelDebug})
}

// recordingRunner remembers every command it was asked to run.
type recordingRunner struct {
	mu   sync.Mutex
	cmds []Command
	out  string
	err  error
}

func (r *recordingRunner) Run(ctx context.Context, cmd Command) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd)
	return r.out, r.err
}

func (r *recordingRunner) calls() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.cmds...)
}

func startTestServer(t *testing.T, runner Runner, opts ...ServerOption) (*Server, string) {
	t.Helper()
	socket := filepath.Join(t.TempDir(), "ctl.sock")
	s := NewServer(runner, testLogger(), opts...)
	require.NoError(t, s.Start(socket))
	t.Cleanup(func() { s.Stop() })
	return s, socket
}

func TestServer_RunOverSocket(t *testing.T) {
	runner := &recordingRunner{out: `{"status":"running","rnsd":true,"lxmd":false}`}
	_, socket := startTestServer(t, runner)

	client, err := NewClient(socket, "test")
	require.NoError(t, err)
	defer client.Close()

	out, err := client.Run(context.Background(), Service(ServiceStatus))
	require.NoError(t, err)
	assert.Equal(t, runner.out, out)
	assert.Equal(t, []Command{Service(ServiceStatus)}, runner.calls())
}

func TestServer_RejectsInvalidCommand(t *testing.T) {
	store, err := audit.NewStore(":memory:", 0)
	require.NoError(t, err)
	defer store.Close()

	runner := &recordingRunner{}
	s := NewServer(runner, testLogger(), WithAuditStore(store))

	var reply RunReply
	err = s.Run(&RunArgs{Command: Command{Kind: KindService, Name: "reboot"}, Caller: "api"}, &reply)
	assert.ErrorIs(t, err, ErrInvalidCommand)
	assert.Empty(t, runner.calls(), "rejected commands never reach the runner")

	events, err := store.Query(audit.Filter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.OutcomeRejected, events[0].Outcome)
	assert.Equal(t, "api", events[0].Caller)
}

func TestServer_AuditTrail(t *testing.T) {
	store, err := audit.NewStore(":memory:", 0)
	require.NoError(t, err)
	defer store.Close()

	clk := clock.NewMock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	runner := &recordingRunner{out: "rnsd started"}
	_, socket := startTestServer(t, runner, WithAuditStore(store), WithClock(clk))

	client := NewLazyClient(socket, "api")
	defer client.Close()

	_, err = client.Run(WithCaller(context.Background(), "opnsense"), Service(ServiceStart))
	require.NoError(t, err)

	runner.mu.Lock()
	runner.err = errors.New("boom")
	runner.mu.Unlock()
	_, err = client.Run(context.Background(), Service(ServiceStop))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	events, err := client.AuditEvents(context.Background(), &AuditArgs{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "reticulum stop", events[0].Command)
	assert.Equal(t, audit.OutcomeFailed, events[0].Outcome)
	assert.Equal(t, "boom", events[0].Details["error"])
	assert.Equal(t, "reticulum start", events[1].Command)
	assert.Equal(t, audit.OutcomeOK, events[1].Outcome)
	assert.Equal(t, "service", events[1].Action)
	assert.Equal(t, "opnsense", events[1].Caller)
	assert.Equal(t, "api", events[0].Caller)
}

func TestServer_AuditEventsWithoutStore(t *testing.T) {
	s := NewServer(&recordingRunner{}, testLogger())
	err := s.AuditEvents(&AuditArgs{}, &AuditReply{})
	assert.Error(t, err)
}

func TestServer_Ping(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	_, socket := startTestServer(t, &recordingRunner{}, WithClock(clock.NewMock(started)))

	client, err := NewClient(socket, "test")
	require.NoError(t, err)
	defer client.Close()

	reply, err := client.Ping(context.Background())
	require.NoError(t, err)
	assert.True(t, reply.Started.Equal(started))
	assert.NotZero(t, reply.PID)
}

func TestClient_ReconnectsAfterRestart(t *testing.T) {
	runner := &recordingRunner{out: "ok"}
	socket := filepath.Join(t.TempDir(), "ctl.sock")

	first := NewServer(runner, testLogger())
	require.NoError(t, first.Start(socket))

	client := NewLazyClient(socket, "test")
	defer client.Close()
	_, err := client.Run(context.Background(), Diagnostic(DiagLog))
	require.NoError(t, err)

	// Closing the listener leaves the established connection up, so drop it
	// from the client side to simulate a control plane restart.
	require.NoError(t, first.Stop())
	client.mu.Lock()
	client.client.Close()
	client.mu.Unlock()

	second := NewServer(runner, testLogger())
	require.NoError(t, second.Start(socket))
	defer second.Stop()

	out, err := client.Run(context.Background(), Diagnostic(DiagLog))
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestClient_NoControlPlane(t *testing.T) {
	_, err := NewClient(filepath.Join(t.TempDir(), "missing.sock"), "test")
	assert.Error(t, err)

	client := NewLazyClient(filepath.Join(t.TempDir(), "missing.sock"), "test")
	_, err = client.Run(context.Background(), Service(ServiceStatus))
	assert.Error(t, err)
}

func TestServer_MutatingCommandsSerialize(t *testing.T) {
	var mu sync.Mutex
	active, peak := 0, 0
	runner := RunnerFunc(func(ctx context.Context, cmd Command) (string, error) {
		mu.Lock()
		active++
		peak = max(peak, active)
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return "", nil
	})
	s := NewServer(runner, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Run(&RunArgs{Command: Service(ServiceRestart)}, &RunReply{})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, peak)
}
