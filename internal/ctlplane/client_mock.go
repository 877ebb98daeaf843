package ctlplane

import (
	"context"

	"github.com/stretchr/testify/mock"

	"grimm.is/rnsgate/internal/audit"
)

// MockControlPlaneClient is a mock implementation of ControlPlaneClient for testing.
type MockControlPlaneClient struct {
	mock.Mock
}

func (m *MockControlPlaneClient) Run(ctx context.Context, cmd Command) (string, error) {
	args := m.Called(ctx, cmd)
	return args.String(0), args.Error(1)
}

func (m *MockControlPlaneClient) Ping(ctx context.Context) (*PingReply, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PingReply), args.Error(1)
}

func (m *MockControlPlaneClient) AuditEvents(ctx context.Context, a *AuditArgs) ([]audit.Event, error) {
	args := m.Called(ctx, a)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]audit.Event), args.Error(1)
}

func (m *MockControlPlaneClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ ControlPlaneClient = (*MockControlPlaneClient)(nil)
