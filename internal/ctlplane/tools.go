package ctlplane

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// ToolResult is the outcome of running one Reticulum CLI tool.
type ToolResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	NotFound bool
	Err      error
}

// ToolRunner runs a CLI tool with a deadline.
type ToolRunner interface {
	RunTool(ctx context.Context, timeout time.Duration, name string, args ...string) ToolResult
}

// HostTools runs tools from BinDir, falling back to $PATH.
type HostTools struct {
	BinDir string
}

func (h HostTools) RunTool(ctx context.Context, timeout time.Duration, name string, args ...string) ToolResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, h.resolve(name), args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	res := ToolResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res
	}

	res.ExitCode = 1
	var exitErr *exec.ExitError
	switch {
	case ctx.Err() != nil:
		res.TimedOut = true
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		res.NotFound = true
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.Err = err
	}
	return res
}

func (h HostTools) resolve(name string) string {
	if filepath.IsAbs(name) || h.BinDir == "" {
		return name
	}
	path := filepath.Join(h.BinDir, name)
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return name
}
