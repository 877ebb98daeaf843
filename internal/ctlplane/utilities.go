package ctlplane

import (
	"context"
	"strconv"
	"strings"
	"time"

	"grimm.is/rnsgate/internal/validation"
)

const utilityTimeout = 15 * time.Second

// UtilityResult is the JSON document printed by the utilities commands.
type UtilityResult struct {
	Output     string `json:"output"`
	ReturnCode int    `json:"returncode"`
	Success    bool   `json:"success"`
}

func utilityFailure(msg string) UtilityResult {
	return UtilityResult{Output: msg, ReturnCode: 1}
}

const rncpUsage = `rncp - Reticulum File Copy

Usage: rncp [options] <source> <destination>

rncp transfers files to or from a remote Reticulum destination.
It is designed for use as a CLI tool and requires shell access.

To use rncp from the command line:
  rncp <local_file> <destination_hash>:<remote_path>
  rncp <destination_hash>:<remote_path> <local_file>

Run "rncp --help" from the shell for full documentation.`

const rnxUsage = `rnx - Reticulum Remote Execution

Usage: rnx [options] <destination_hash> <command>

rnx executes a command on a remote Reticulum destination.
It is designed for use as a CLI tool and requires shell access.

To use rnx from the command line:
  rnx <destination_hash> <command>

Run "rnx --help" from the shell for full documentation.`

func (e *Executor) utility(ctx context.Context, name string, args []string) UtilityResult {
	cfg := e.paths.RNSConfigDir

	switch name {
	case UtilRNStatus:
		return e.runUtility(ctx, utilityTimeout, "rnstatus", "--config", cfg)

	case UtilRNStatusDetail:
		return e.runUtility(ctx, utilityTimeout, "rnstatus", "-a", "--config", cfg)

	case UtilRNID:
		if len(args) == 0 || args[0] == "" {
			return e.runUtility(ctx, utilityTimeout, "rnid", "--config", cfg)
		}
		if validation.ValidateHash(args[0]) != nil {
			return utilityFailure(validation.ErrHashInvalid)
		}
		return e.runUtility(ctx, utilityTimeout, "rnid", args[0], "--config", cfg)

	case UtilRNPath:
		if len(args) == 0 {
			return utilityFailure(validation.ErrHashRequired)
		}
		if err := validation.ValidateHash(args[0]); err != nil {
			return utilityFailure(err.Error())
		}
		return e.runUtility(ctx, utilityTimeout, "rnpath", args[0], "--config", cfg)

	case UtilRNProbe:
		if len(args) == 0 {
			return utilityFailure(validation.ErrHashRequired)
		}
		if err := validation.ValidateHash(args[0]); err != nil {
			return utilityFailure(err.Error())
		}
		timeout := validation.DefaultProbeTimeout
		if len(args) > 1 {
			if n, err := strconv.Atoi(args[1]); err == nil {
				timeout = validation.ClampTimeout(n)
			}
		}
		return e.runUtility(ctx, time.Duration(timeout+5)*time.Second,
			"rnprobe", args[0], "--config", cfg, "--timeout", strconv.Itoa(timeout))

	case UtilRNodeConf:
		if len(args) == 0 || args[0] == "" {
			return e.runUtility(ctx, utilityTimeout, "rnodeconf", "--list")
		}
		if err := validation.ValidateDevicePath(args[0]); err != nil {
			return utilityFailure(err.Error())
		}
		return e.runUtility(ctx, utilityTimeout, "rnodeconf", args[0], "--info")

	case UtilRNCPHelp:
		return withUsage(e.runUtility(ctx, utilityTimeout, "rncp", "--help"), rncpUsage)

	case UtilRNXHelp:
		return withUsage(e.runUtility(ctx, utilityTimeout, "rnx", "--help"), rnxUsage)
	}

	return utilityFailure("Unknown utility: " + name)
}

// withUsage substitutes built-in usage text when the tool printed nothing.
func withUsage(res UtilityResult, usage string) UtilityResult {
	if !res.Success && res.Output == "" {
		res.Output = usage
	}
	return res
}

func (e *Executor) runUtility(ctx context.Context, timeout time.Duration, name string, args ...string) UtilityResult {
	res := e.tools.RunTool(ctx, timeout, name, args...)
	switch {
	case res.TimedOut:
		return utilityFailure("Command timed out after " + strconv.Itoa(int(timeout/time.Second)) + " seconds.")
	case res.NotFound:
		return utilityFailure("Command not found: " + name)
	case res.Err != nil:
		return utilityFailure(res.Err.Error())
	}
	return UtilityResult{
		Output:     strings.TrimSpace(res.Stdout + res.Stderr),
		ReturnCode: res.ExitCode,
		Success:    res.ExitCode == 0,
	}
}
