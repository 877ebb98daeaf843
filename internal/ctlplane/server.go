package ctlplane

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"os"
	"sync"
	"time"

	"grimm.is/rnsgate/internal/audit"
	"grimm.is/rnsgate/internal/brand"
	"grimm.is/rnsgate/internal/clock"
	"grimm.is/rnsgate/internal/logging"
	"grimm.is/rnsgate/internal/metrics"
)

// MaxCommandTime bounds a single command on the control plane side.
const MaxCommandTime = 2 * time.Minute

// Server is the privileged RPC endpoint. It validates each command, runs it
// through the executor and records it in the audit trail.
type Server struct {
	runner  Runner
	audit   *audit.Store
	metrics *metrics.Registry
	logger  *logging.Logger
	clock   clock.Clock
	started time.Time

	rpc      *rpc.Server
	listener net.Listener

	// Mutating commands run one at a time.
	mu sync.Mutex
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAuditStore persists every command to store.
func WithAuditStore(store *audit.Store) ServerOption {
	return func(s *Server) { s.audit = store }
}

// WithMetrics records command counts and durations in reg.
func WithMetrics(reg *metrics.Registry) ServerOption {
	return func(s *Server) { s.metrics = reg }
}

// WithClock overrides the time source.
func WithClock(c clock.Clock) ServerOption {
	return func(s *Server) { s.clock = c }
}

// NewServer creates a control plane server that executes commands with runner.
func NewServer(runner Runner, logger *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		runner: runner,
		logger: logger.WithComponent("ctl"),
		clock:  clock.Real{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.started = s.clock.Now()
	return s
}

// Start starts the RPC server on the Unix socket at socketPath.
func (s *Server) Start(socketPath string) error {
	// Remove a stale socket from a previous run.
	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", socketPath, err)
	}

	// The API runs unprivileged and must be able to connect.
	if err := os.Chmod(socketPath, 0666); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	return s.StartWithListener(listener)
}

// StartWithListener starts the RPC server with an existing listener.
func (s *Server) StartWithListener(listener net.Listener) error {
	s.rpc = rpc.NewServer()
	if err := s.rpc.RegisterName("Server", s); err != nil {
		return fmt.Errorf("failed to register RPC service: %w", err)
	}
	s.listener = listener

	s.logger.Info("Control plane listening", "addr", listener.Addr().String())

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Error("Accept error", "error", err)
				return
			}
			go func() {
				defer func() {
					if r := recover(); r != nil {
						s.logger.Error("RPC connection handler panicked", "panic", r)
					}
				}()
				s.rpc.ServeConn(conn)
			}()
		}
	}()

	return nil
}

// Stop closes the listener. In-flight commands finish on their own.
func (s *Server) Stop() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// Run validates and executes a command.
func (s *Server) Run(args *RunArgs, reply *RunReply) error {
	cmd := args.Command
	caller := args.Caller
	if caller == "" {
		caller = "unknown"
	}

	if err := cmd.Validate(); err != nil {
		s.record(caller, cmd, audit.OutcomeRejected, 0, map[string]string{"error": err.Error()})
		return err
	}

	if cmd.Mutating() {
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	ctx, cancel := context.WithTimeout(context.Background(), MaxCommandTime)
	defer cancel()

	start := s.clock.Now()
	out, err := s.runner.Run(ctx, cmd)
	elapsed := s.clock.Since(start)

	if err != nil {
		s.record(caller, cmd, audit.OutcomeFailed, elapsed, map[string]string{"error": err.Error()})
		return err
	}
	s.record(caller, cmd, audit.OutcomeOK, elapsed, nil)
	reply.Output = out
	return nil
}

// Ping reports the control plane identity.
func (s *Server) Ping(args *Empty, reply *PingReply) error {
	reply.Version = brand.Version
	reply.Started = s.started
	reply.PID = os.Getpid()
	return nil
}

// AuditEvents returns recent audit events.
func (s *Server) AuditEvents(args *AuditArgs, reply *AuditReply) error {
	if s.audit == nil {
		return errors.New("audit trail is not enabled")
	}
	limit := args.Limit
	if limit <= 0 {
		limit = 50
	}
	events, err := s.audit.Query(audit.Filter{
		Since:   args.Since,
		Action:  args.Action,
		Outcome: args.Outcome,
		Limit:   limit,
	})
	if err != nil {
		return err
	}
	reply.Events = events
	return nil
}
