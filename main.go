package main

import (
	"errors"
	"flag"
	"os"

	"grimm.is/rnsgate/cmd"
	"grimm.is/rnsgate/internal/brand"
	"grimm.is/rnsgate/internal/i18n"
)

var printer = i18n.NewCLIPrinter()

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Every command reads the runtime configuration; -c/--config picks it.
	configFlags := func(name string) (*flag.FlagSet, *string) {
		fs := flag.NewFlagSet(name, flag.ExitOnError)
		configFile := fs.String("config", brand.GetConfigPath(), "Runtime configuration file")
		fs.StringVar(configFile, "c", brand.GetConfigPath(), "Runtime configuration file (short)")
		return fs, configFile
	}

	switch os.Args[1] {
	case "ctl":
		// Privileged control plane daemon
		fs, configFile := configFlags("ctl")
		fs.Parse(os.Args[2:])
		if err := cmd.RunCtl(*configFile); err != nil {
			printer.Fprintf(os.Stderr, "Control plane failed: %v\n", err)
			os.Exit(1)
		}

	case "api":
		// Unprivileged HTTP API
		fs, configFile := configFlags("api")
		fs.Parse(os.Args[2:])
		if err := cmd.RunAPI(*configFile); err != nil {
			printer.Fprintf(os.Stderr, "API server failed: %v\n", err)
			os.Exit(1)
		}

	case "status":
		fs, configFile := configFlags("status")
		fs.Parse(os.Args[2:])
		if err := cmd.RunStatus(*configFile); err != nil {
			printer.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

	case "service":
		fs, configFile := configFlags("service")
		fs.Parse(os.Args[2:])
		if fs.NArg() != 1 {
			printer.Println("Usage: " + brand.BinaryName + " service [-c file] <start|stop|restart|start_rnsd|stop_rnsd|start_lxmd|stop_lxmd|status>")
			os.Exit(1)
		}
		if err := cmd.RunService(*configFile, fs.Arg(0)); err != nil {
			printer.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

	case "reload":
		fs, configFile := configFlags("reload")
		noRestart := fs.Bool("no-restart", false, "Only render the configuration files")
		fs.Parse(os.Args[2:])
		if err := cmd.RunReload(*configFile, *noRestart); err != nil {
			printer.Fprintf(os.Stderr, "Reload failed: %v\n", err)
			os.Exit(1)
		}

	case "diff":
		fs, configFile := configFlags("diff")
		fs.Parse(os.Args[2:])
		if err := cmd.RunDiff(*configFile); err != nil {
			if !errors.Is(err, cmd.ErrPendingChanges) {
				printer.Fprintf(os.Stderr, "%v\n", err)
			}
			os.Exit(1)
		}

	case "check":
		fs, configFile := configFlags("check")
		verbose := fs.Bool("verbose", false, "Verbose output")
		fs.BoolVar(verbose, "v", false, "Verbose output (short)")
		fs.Parse(os.Args[2:])
		if err := cmd.RunCheck(*configFile, *verbose); err != nil {
			printer.Fprintf(os.Stderr, "Check failed: %v\n", err)
			os.Exit(1)
		}

	case "audit":
		if err := cmd.RunAudit(os.Args[2:]); err != nil {
			printer.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

	case "apikey":
		if err := cmd.RunAPIKey(os.Args[2:]); err != nil {
			printer.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

	case "watch":
		if err := cmd.RunWatch(os.Args[2:]); err != nil {
			printer.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

	case "query":
		if err := cmd.RunQuery(os.Args[2:]); err != nil {
			printer.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

	case "version":
		printer.Printf("%s version %s\n", brand.Name, brand.Version)
		printer.Printf("Build: %s (%s)\n", brand.BuildTime, brand.GitCommit)

	case "help", "-h", "--help":
		printUsage()

	default:
		printer.Printf("Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printer.Printf(`%s - Reticulum service management API

Usage:
  %s <command> [options]

Daemons:
  ctl       Run the privileged control plane (owns rnsd and lxmd)
  api       Run the HTTP API (talks to the control plane)
            Options: --config (-c) <file>

Management Commands:
  status    Show service and interface status
  service   Run a service action (start, stop, restart, start_rnsd, ...)
  reload    Render the Reticulum configuration and restart the service
            Options: --no-restart
  diff      Show pending configuration changes
  check     Validate the runtime configuration and settings
            Options: --verbose (-v)
  audit     Show the command audit trail
            Options: --since <dur>, --action, --outcome, --limit, --format (-o) table|json|yaml
  apikey    Manage API credentials
            Subcommands: generate, hash, help

Remote Commands:
  watch     Follow the status stream of a running API
  query     Call a utilities or diagnostics endpoint
            Options: --remote (-r) <url>, --api-key (-k), --api-secret

Examples:
  %s ctl -c /usr/local/etc/rnsgate/rnsgate.hcl
  %s apikey generate --name opnsense
  %s check -v
  %s query rnpath hash=4faf1b2e0a077e6a9d92fa051f256038
  %s watch --topics status
`,
		brand.Name,
		brand.LowerName,
		brand.LowerName, brand.LowerName, brand.LowerName, brand.LowerName, brand.LowerName)
}
