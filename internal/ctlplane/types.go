package ctlplane

import (
	"context"
	"time"

	"grimm.is/rnsgate/internal/audit"
	"grimm.is/rnsgate/internal/brand"
)

// GetSocketPath returns the default path of the control plane socket.
func GetSocketPath() string {
	return brand.GetSocketPath()
}

// Runner executes commands from the privileged vocabulary and returns their
// raw output. The Executor runs them in-process; the Client forwards them to
// the control plane over RPC.
type Runner interface {
	Run(ctx context.Context, cmd Command) (string, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, cmd Command) (string, error)

func (f RunnerFunc) Run(ctx context.Context, cmd Command) (string, error) {
	return f(ctx, cmd)
}

type callerKey struct{}

// WithCaller names the originator of the commands run with ctx. The Client
// sends it to the control plane for the audit trail.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

func callerFrom(ctx context.Context, fallback string) string {
	if caller, _ := ctx.Value(callerKey{}).(string); caller != "" {
		return caller
	}
	return fallback
}

// Empty is used for RPC methods without arguments or results.
type Empty struct{}

// RunArgs asks the control plane to execute a command.
type RunArgs struct {
	Command Command
	Caller  string
}

// RunReply carries the command output as produced by the executor.
type RunReply struct {
	Output string
}

// PingReply describes the running control plane.
type PingReply struct {
	Version string
	Started time.Time
	PID     int
}

// AuditArgs filters the audit trail.
type AuditArgs struct {
	Since   time.Time
	Action  string
	Outcome string
	Limit   int
}

// AuditReply returns audit events, newest first.
type AuditReply struct {
	Events []audit.Event
}
