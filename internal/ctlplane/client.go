package ctlplane

import (
	"context"
	"errors"
	"fmt"
	"net/rpc"
	"strings"
	"sync"

	"grimm.is/rnsgate/internal/audit"
)

// Client is the RPC client for communicating with the control plane
type Client struct {
	socketPath string
	caller     string
	client     *rpc.Client
	mu         sync.RWMutex
}

// NewClient connects to the control plane listening on socketPath. caller
// names this process in the audit trail.
func NewClient(socketPath, caller string) (*Client, error) {
	client, err := rpc.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to control plane at %s: %w", socketPath, err)
	}
	return &Client{socketPath: socketPath, caller: caller, client: client}, nil
}

// NewLazyClient returns a client that connects on first use, so the API can
// come up before the control plane does.
func NewLazyClient(socketPath, caller string) *Client {
	return &Client{socketPath: socketPath, caller: caller}
}

// Close closes the RPC connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		err := c.client.Close()
		c.client = nil
		return err
	}
	return nil
}

// call wraps the RPC call with reconnection logic and honours ctx. A
// cancelled context abandons the reply; the control plane still finishes
// the command.
func (c *Client) call(ctx context.Context, serviceMethod string, args any, reply any) error {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()

	if client == nil {
		if err := c.reconnect(nil); err != nil {
			return err
		}
		c.mu.RLock()
		client = c.client
		c.mu.RUnlock()
	}

	err := wait(ctx, client, serviceMethod, args, reply)
	if err == nil {
		return nil
	}

	if errors.Is(err, rpc.ErrShutdown) || isNetworkError(err) {
		if recErr := c.reconnect(client); recErr != nil {
			return fmt.Errorf("RPC call failed (%v) and reconnection failed: %w", err, recErr)
		}
		c.mu.RLock()
		client = c.client
		c.mu.RUnlock()
		return wait(ctx, client, serviceMethod, args, reply)
	}

	return err
}

func wait(ctx context.Context, client *rpc.Client, serviceMethod string, args any, reply any) error {
	call := client.Go(serviceMethod, args, reply, make(chan *rpc.Call, 1))
	select {
	case <-call.Done:
		return call.Error
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reconnect attempts to establish a new connection
func (c *Client) reconnect(oldClient *rpc.Client) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Someone else reconnected while we waited.
	if c.client != oldClient && c.client != nil {
		return nil
	}

	if c.client != nil {
		c.client.Close()
	}

	client, err := rpc.Dial("unix", c.socketPath)
	if err != nil {
		c.client = nil
		return fmt.Errorf("failed to connect to control plane at %s: %w", c.socketPath, err)
	}

	c.client = client
	return nil
}

func isNetworkError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection is shut down") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "bad file descriptor") ||
		strings.Contains(msg, "unexpected EOF") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "use of closed network connection")
}

// Run executes cmd on the control plane and returns its raw output.
func (c *Client) Run(ctx context.Context, cmd Command) (string, error) {
	var reply RunReply
	if err := c.call(ctx, "Server.Run", &RunArgs{Command: cmd, Caller: callerFrom(ctx, c.caller)}, &reply); err != nil {
		return "", err
	}
	return reply.Output, nil
}

// Ping checks that the control plane is up.
func (c *Client) Ping(ctx context.Context) (*PingReply, error) {
	var reply PingReply
	if err := c.call(ctx, "Server.Ping", &Empty{}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// AuditEvents returns recent audit events.
func (c *Client) AuditEvents(ctx context.Context, args *AuditArgs) ([]audit.Event, error) {
	var reply AuditReply
	if err := c.call(ctx, "Server.AuditEvents", args, &reply); err != nil {
		return nil, err
	}
	return reply.Events, nil
}
