package ctlplane

import (
	"context"

	"grimm.is/rnsgate/internal/audit"
)

// ControlPlaneClient defines the interface for communicating with the control plane.
// This interface enables mocking in unit tests.
type ControlPlaneClient interface {
	Runner
	Ping(ctx context.Context) (*PingReply, error)
	AuditEvents(ctx context.Context, args *AuditArgs) ([]audit.Event, error)
	Close() error
}

var _ ControlPlaneClient = (*Client)(nil)
