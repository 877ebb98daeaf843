package config

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"grimm.is/rnsgate/internal/validation"
)

// ValidationError is a single validation failure bound to a node path,
// e.g. "general.loglevel" or "interfaces.interface.<uuid>.name".
type ValidationError struct {
	Field    string
	Message  string
	Severity string // "error" (default), "warning"
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Under returns the errors whose field lies below node, keyed by the field
// path relative to node. Errors elsewhere in the tree keep their full path
// in the second map.
func (e ValidationErrors) Under(node string) (inside, outside map[string]string) {
	inside = map[string]string{}
	outside = map[string]string{}
	prefix := node + "."
	for _, err := range e {
		if rel, ok := strings.CutPrefix(err.Field, prefix); ok {
			inside[rel] = err.Message
		} else {
			outside[err.Field] = err.Message
		}
	}
	return inside, outside
}

const msgRequired = "This field is required."

type fieldRule struct {
	required bool
	check    func(string) error
}

func boolRule(required bool) fieldRule {
	return fieldRule{required: required, check: validation.ValidateBool}
}

func portRule(required bool) fieldRule {
	return fieldRule{required: required, check: validation.ValidatePort}
}

func rangeRule(required bool, lo, hi int) fieldRule {
	return fieldRule{required: required, check: func(s string) error {
		return validation.ValidateIntRange(s, lo, hi)
	}}
}

func optionRule(required bool, options []string) fieldRule {
	return fieldRule{required: required, check: func(s string) error {
		return validation.ValidateAllowlist(s, options)
	}}
}

func listRule(each func(string) error) fieldRule {
	return fieldRule{check: func(s string) error {
		for _, item := range validation.SplitList(s) {
			if err := each(item); err != nil {
				return err
			}
		}
		return nil
	}}
}

func textRule(required bool, maxLen int) fieldRule {
	return fieldRule{required: required, check: func(s string) error {
		return validation.ValidateText(s, maxLen)
	}}
}

var generalRules = map[string]fieldRule{
	"enabled":                  boolRule(true),
	"enable_transport":         boolRule(true),
	"share_instance":           boolRule(true),
	"shared_instance_port":     portRule(true),
	"instance_control_port":    portRule(true),
	"panic_on_interface_error": boolRule(false),
	"respond_to_probes":        boolRule(false),
	"loglevel":                 rangeRule(true, 0, 7),
	"enable_lxmf":              boolRule(false),
	"lxmf_bind_to_rnsd":        boolRule(false),
}

var propagationRules = map[string]fieldRule{
	"enabled":                boolRule(true),
	"enable_node":            boolRule(true),
	"node_name":              textRule(false, 64),
	"announce_interval":      rangeRule(true, 1, 1440),
	"message_storage_limit":  rangeRule(true, 1, 1000000),
	"periodic_sync_interval": rangeRule(true, 10, 86400),
	"max_transfer_size":      rangeRule(false, 1, 100000),
	"static_peers":           listRule(validation.ValidateHash),
	"auth_required":          boolRule(false),
}

var interfaceRules = map[string]fieldRule{
	"enabled":       boolRule(true),
	"name":          textRule(true, 64),
	"interfaceType": optionRule(true, InterfaceTypes),
	"mode":          optionRule(true, InterfaceModes),
	"outgoing":      boolRule(false),

	"tcp_server_listen_ip":   {check: validation.ValidateIP},
	"tcp_server_listen_port": portRule(false),
	"tcp_client_target_host": {check: validation.ValidateHost},
	"tcp_client_target_port": portRule(false),

	"udp_listen_ip":    {check: validation.ValidateIP},
	"udp_listen_port":  portRule(false),
	"udp_forward_ip":   {check: validation.ValidateIP},
	"udp_forward_port": portRule(false),

	"auto_group_id":        {check: validation.ValidateIdentifier},
	"auto_discovery_scope": optionRule(false, DiscoveryScopes),
	"auto_discovery_port":  portRule(false),
	"auto_data_port":       portRule(false),
	"auto_devices":         listRule(validation.ValidateInterfaceName),

	"port":            {check: validation.ValidateDevicePath},
	"speed":           rangeRule(false, 110, 4000000),
	"frequency":       rangeRule(false, 137000000, 3000000000),
	"bandwidth":       rangeRule(false, 7800, 1625000),
	"txpower":         rangeRule(false, 0, 30),
	"spreadingfactor": rangeRule(false, 5, 12),
	"codingrate":      rangeRule(false, 5, 8),

	"i2p_peers": listRule(validation.ValidateI2PPeer),
}

// requiredByType lists the type-specific parameters an interface must carry.
var requiredByType = map[string][]string{
	TypeTCPServer: {"tcp_server_listen_port"},
	TypeTCPClient: {"tcp_client_target_host", "tcp_client_target_port"},
	TypeUDP:       {"udp_listen_port"},
	TypeRNode:     {"port", "frequency", "bandwidth", "txpower", "spreadingfactor", "codingrate"},
	TypeSerial:    {"port", "speed"},
	TypeKISS:      {"port", "speed"},
	TypeAX25KISS:  {"port", "speed"},
}

// Validate checks the whole settings tree and returns every failure found.
// It never stops at the first error.
func (s *Settings) Validate() ValidationErrors {
	var errs ValidationErrors

	if s.General != nil {
		fields := fieldsOf(s.General)
		errs = append(errs, checkFields(NodeGeneral, fields, generalRules)...)
		if fields["share_instance"] == "1" && fields["shared_instance_port"] != "" &&
			fields["shared_instance_port"] == fields["instance_control_port"] {
			errs = append(errs, ValidationError{
				Field:   NodeGeneral + ".instance_control_port",
				Message: "Must differ from the shared instance port.",
			})
		}
	}
	if s.Propagation != nil {
		errs = append(errs, checkFields(NodePropagation, fieldsOf(s.Propagation), propagationRules)...)
	}

	names := make(map[string]string, len(s.Interfaces))
	for i := range s.Interfaces {
		iface := &s.Interfaces[i]
		path := InterfacePath(iface.UUID)
		fields := iface.Fields()
		errs = append(errs, checkFields(path, fields, interfaceRules)...)

		for _, name := range requiredByType[iface.InterfaceType] {
			if fields[name] == "" {
				errs = append(errs, ValidationError{
					Field:   path + "." + name,
					Message: fmt.Sprintf("Required for %s.", iface.InterfaceType),
				})
			}
		}

		key := strings.ToLower(strings.TrimSpace(iface.Name))
		if key == "" {
			continue
		}
		if other, dup := names[key]; dup && other != iface.UUID {
			errs = append(errs, ValidationError{
				Field:   path + ".name",
				Message: "An interface with this name already exists.",
			})
			continue
		}
		names[key] = iface.UUID
	}

	return errs
}

func checkFields(node string, fields map[string]string, rules map[string]fieldRule) ValidationErrors {
	// Stable order keeps responses and logs deterministic.
	keys := make([]string, 0, len(rules))
	for k := range rules {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs ValidationErrors
	for _, name := range keys {
		rule := rules[name]
		value := fields[name]
		if value == "" {
			if rule.required {
				errs = append(errs, ValidationError{Field: node + "." + name, Message: msgRequired})
			}
			continue
		}
		if rule.check == nil {
			continue
		}
		if err := rule.check(value); err != nil {
			errs = append(errs, ValidationError{Field: node + "." + name, Message: sentence(err.Error())})
		}
	}
	return errs
}

// sentence capitalizes msg and terminates it with a period.
func sentence(msg string) string {
	if msg == "" {
		return msg
	}
	r, size := utf8.DecodeRuneInString(msg)
	msg = string(unicode.ToUpper(r)) + msg[size:]
	if !strings.HasSuffix(msg, ".") {
		msg += "."
	}
	return msg
}
