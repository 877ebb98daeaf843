package ctlplane

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"grimm.is/rnsgate/internal/brand"
	"grimm.is/rnsgate/internal/validation"
)

// Kind groups the command vocabulary.
type Kind string

const (
	KindService    Kind = "service"
	KindTemplate   Kind = "template"
	KindUtility    Kind = "utilities"
	KindDiagnostic Kind = "diagnostics"
)

// Service actions.
const (
	ServiceStatus  = "status"
	ServiceStart   = "start"
	ServiceStop    = "stop"
	ServiceRestart = "restart"
	ServiceStartRN = "start_rnsd"
	ServiceStopRN  = "stop_rnsd"
	ServiceStartLX = "start_lxmd"
	ServiceStopLX  = "stop_lxmd"
)

// Template actions.
const (
	TemplateReload = "reload"
	TemplateDiff   = "diff"
)

// Utility subcommands.
const (
	UtilRNStatus       = "rnstatus"
	UtilRNStatusDetail = "rnstatus_detail"
	UtilRNID           = "rnid"
	UtilRNPath         = "rnpath"
	UtilRNProbe        = "rnprobe"
	UtilRNodeConf      = "rnodeconf"
	UtilRNCPHelp       = "rncp_help"
	UtilRNXHelp        = "rnx_help"
)

// Diagnostic subcommands.
const (
	DiagRNStatus          = "rnstatus"
	DiagPaths             = "paths"
	DiagAnnounces         = "announces"
	DiagPropagation       = "propagation"
	DiagInterfaces        = "interfaces"
	DiagLog               = "log"
	DiagGeneralStatus     = "general_status"
	DiagRNSDInfo          = "rnsd_info"
	DiagLXMFInfo          = "lxmf_info"
	DiagPropagationDetail = "propagation_detail"
	DiagInterfacesDetail  = "interfaces_detail"
)

// Command is a single entry of the privileged command vocabulary. Build it
// with the constructors below; the control plane re-checks it with Validate
// before anything runs. Arguments are passed as argv, never through a shell.
type Command struct {
	Kind Kind
	Name string
	Args []string
}

type argKind int

const (
	argHash argKind = iota
	argDevice
	argNumber
)

type arity struct {
	args     []argKind
	required int
}

var serviceNames = map[string]bool{
	ServiceStatus: true, ServiceStart: true, ServiceStop: true, ServiceRestart: true,
	ServiceStartRN: true, ServiceStopRN: true, ServiceStartLX: true, ServiceStopLX: true,
}

var templateNames = map[string]bool{
	TemplateReload: true, TemplateDiff: true,
}

var utilityArity = map[string]arity{
	UtilRNStatus:       {},
	UtilRNStatusDetail: {},
	UtilRNID:           {args: []argKind{argHash}},
	UtilRNPath:         {args: []argKind{argHash}},
	UtilRNProbe:        {args: []argKind{argHash, argNumber}, required: 1},
	UtilRNodeConf:      {args: []argKind{argDevice}},
	UtilRNCPHelp:       {},
	UtilRNXHelp:        {},
}

var (
	nameRegex   = regexp.MustCompile(`^[a-z][a-z_]{0,31}$`)
	hexRegex    = regexp.MustCompile(`^[a-fA-F0-9]{1,128}$`)
	deviceRegex = regexp.MustCompile(`^[a-zA-Z0-9/_\-.]{1,128}$`)
	numberRegex = regexp.MustCompile(`^[0-9]{1,4}$`)
)

// ErrInvalidCommand is wrapped by every Validate and ParseCommand failure.
var ErrInvalidCommand = errors.New("invalid command")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidCommand, fmt.Sprintf(format, args...))
}

// Service returns the service lifecycle command for action.
func Service(action string) Command {
	return Command{Kind: KindService, Name: action}
}

// Template returns the template command for action (reload or diff).
func Template(action string) Command {
	return Command{Kind: KindTemplate, Name: action}
}

// Diagnostic returns the diagnostics command for sub.
func Diagnostic(sub string) Command {
	return Command{Kind: KindDiagnostic, Name: sub}
}

// RNStatus runs rnstatus, with all details when detail is set.
func RNStatus(detail bool) Command {
	if detail {
		return Command{Kind: KindUtility, Name: UtilRNStatusDetail}
	}
	return Command{Kind: KindUtility, Name: UtilRNStatus}
}

// RNID shows the local identity, or looks up hash when it is not empty.
func RNID(hash string) Command {
	return utility(UtilRNID, hash)
}

// RNPath asks for the path to hash.
func RNPath(hash string) Command {
	return utility(UtilRNPath, hash)
}

// RNProbe probes hash, waiting timeout seconds.
func RNProbe(hash string, timeout int) Command {
	return Command{Kind: KindUtility, Name: UtilRNProbe, Args: []string{hash, strconv.Itoa(timeout)}}
}

// RNodeConf lists RNode devices, or inspects device when it is not empty.
func RNodeConf(device string) Command {
	return utility(UtilRNodeConf, device)
}

// RNCPHelp shows rncp usage.
func RNCPHelp() Command { return Command{Kind: KindUtility, Name: UtilRNCPHelp} }

// RNXHelp shows rnx usage.
func RNXHelp() Command { return Command{Kind: KindUtility, Name: UtilRNXHelp} }

func utility(name, optional string) Command {
	cmd := Command{Kind: KindUtility, Name: name}
	if optional != "" {
		cmd.Args = []string{optional}
	}
	return cmd
}

// String renders the textual form used in logs and the audit trail, e.g.
// "reticulum utilities rnprobe <hash> 10".
func (c Command) String() string {
	var parts []string
	switch c.Kind {
	case KindService:
		parts = []string{"reticulum", c.Name}
	case KindTemplate:
		parts = []string{"template", c.Name, brand.TemplateName}
	default:
		parts = []string{"reticulum", string(c.Kind), c.Name}
	}
	return strings.Join(append(parts, c.Args...), " ")
}

// Mutating reports whether the command changes daemon state or files.
func (c Command) Mutating() bool {
	switch c.Kind {
	case KindService:
		return c.Name != ServiceStatus
	case KindTemplate:
		return c.Name == TemplateReload
	}
	return false
}

// Validate checks the command against the vocabulary. Unknown utility and
// diagnostic subcommands pass, so the executor can answer them the way the
// tools report unknown subcommands.
func (c Command) Validate() error {
	if !nameRegex.MatchString(c.Name) {
		return invalid("malformed subcommand %q", c.Name)
	}

	switch c.Kind {
	case KindService:
		if !serviceNames[c.Name] {
			return invalid("unknown service action %q", c.Name)
		}
		return noArgs(c)
	case KindTemplate:
		if !templateNames[c.Name] {
			return invalid("unknown template action %q", c.Name)
		}
		return noArgs(c)
	case KindDiagnostic:
		return noArgs(c)
	case KindUtility:
		a, ok := utilityArity[c.Name]
		if !ok {
			return noArgs(c)
		}
		if len(c.Args) < a.required || len(c.Args) > len(a.args) {
			return invalid("%s takes %d to %d arguments, got %d", c.Name, a.required, len(a.args), len(c.Args))
		}
		for i, arg := range c.Args {
			if err := checkArg(a.args[i], arg); err != nil {
				return err
			}
		}
		return nil
	}
	return invalid("unknown command kind %q", c.Kind)
}

func noArgs(c Command) error {
	if len(c.Args) > 0 {
		return invalid("%s %s takes no arguments", c.Kind, c.Name)
	}
	return nil
}

func checkArg(kind argKind, arg string) error {
	switch kind {
	case argHash:
		if !hexRegex.MatchString(arg) {
			return invalid("argument %q is not hexadecimal", arg)
		}
	case argDevice:
		if !deviceRegex.MatchString(arg) {
			return invalid("argument %q is not a device path", arg)
		}
	case argNumber:
		if !numberRegex.MatchString(arg) {
			return invalid("argument %q is not a number", arg)
		}
		n, _ := strconv.Atoi(arg)
		if n < validation.MinProbeTimeout || n > validation.MaxProbeTimeout {
			return invalid("timeout %d out of range", n)
		}
	}
	return nil
}

// ParseCommand parses the textual form produced by String.
func ParseCommand(s string) (Command, error) {
	f := strings.Fields(s)
	if len(f) < 2 {
		return Command{}, invalid("%q is too short", s)
	}

	var cmd Command
	switch {
	case f[0] == "template":
		if len(f) != 3 || f[2] != brand.TemplateName {
			return Command{}, invalid("template commands take the form \"template <action> %s\"", brand.TemplateName)
		}
		cmd = Command{Kind: KindTemplate, Name: f[1]}
	case f[0] == "reticulum" && (f[1] == string(KindUtility) || f[1] == string(KindDiagnostic)):
		if len(f) < 3 {
			return Command{}, invalid("missing %s subcommand", f[1])
		}
		cmd = Command{Kind: Kind(f[1]), Name: f[2]}
		if len(f) > 3 {
			cmd.Args = f[3:]
		}
	case f[0] == "reticulum":
		cmd = Command{Kind: KindService, Name: f[1]}
		if len(f) > 2 {
			cmd.Args = f[2:]
		}
	default:
		return Command{}, invalid("unknown command %q", f[0])
	}

	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}
