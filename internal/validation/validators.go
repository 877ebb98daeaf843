// Package validation holds the input checks shared by the API layer and the
// privileged control plane. Sanitizers never fail; validators return an error
// describing the first problem found.
package validation

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Probe timeout bounds, in seconds.
const (
	MinProbeTimeout     = 1
	MaxProbeTimeout     = 60
	DefaultProbeTimeout = 10
)

var (
	nonHexRegex    = regexp.MustCompile(`[^a-fA-F0-9]`)
	nonDeviceRegex = regexp.MustCompile(`[^a-zA-Z0-9/_\-.]`)

	hashRegex       = regexp.MustCompile(`^[a-fA-F0-9]{32}$`)
	devicePathRegex = regexp.MustCompile(`^/dev/[a-zA-Z0-9_.\-]+$`)

	// Valid NIC name: alphanumeric, dash, underscore, dot (for VLANs), max 15 chars
	nicNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,15}$`)

	// Valid identifier: alphanumeric, dash, underscore
	identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	hostnameRegex = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)*[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)
	i2pPeerRegex  = regexp.MustCompile(`^[a-z2-7]{52}\.b32\.i2p$`)

	// Characters that must never reach a rendered daemon config or argv.
	dangerousChars = []string{";", "|", "&", "$", "`", "(", ")", "<", ">", "\\", "\"", "'", "\n", "\r", "[", "]"}
)

// Messages returned to API callers for the destination and device checks.
const (
	ErrHashRequired  = "Destination hash is required."
	ErrHashInvalid   = "Invalid destination hash. Must be 32 hex characters."
	ErrDeviceInvalid = "Invalid device path. Must be a /dev/ path."
)

// SanitizeHash drops every character outside [a-fA-F0-9], preserving order.
func SanitizeHash(s string) string {
	return nonHexRegex.ReplaceAllString(s, "")
}

// SanitizeDevice drops every character outside [a-zA-Z0-9/_\-.], preserving order.
func SanitizeDevice(s string) string {
	return nonDeviceRegex.ReplaceAllString(s, "")
}

// ClampTimeout bounds a probe timeout to [MinProbeTimeout, MaxProbeTimeout].
func ClampTimeout(t int) int {
	return max(MinProbeTimeout, min(MaxProbeTimeout, t))
}

// ParseInt reads a leading optionally-signed integer, ignoring any trailing
// text ("12abc" is 12). Input without a leading number yields 0.
func ParseInt(s string) int {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		// Out of range: saturate.
		if s[0] == '-' {
			return -1 << 31
		}
		return 1<<31 - 1
	}
	return n
}

// ValidateHash checks for a full 32 character hex destination hash.
func ValidateHash(hash string) error {
	if hash == "" {
		return errors.New(ErrHashRequired)
	}
	if !hashRegex.MatchString(hash) {
		return errors.New(ErrHashInvalid)
	}
	return nil
}

// ValidateDevicePath checks for a /dev/ device node path.
func ValidateDevicePath(path string) error {
	if !devicePathRegex.MatchString(path) || strings.Contains(path, "..") {
		return errors.New(ErrDeviceInvalid)
	}
	return nil
}

// ValidateInterfaceName validates a host network interface name
func ValidateInterfaceName(name string) error {
	if name == "" {
		return fmt.Errorf("interface name cannot be empty")
	}
	if !nicNameRegex.MatchString(name) {
		return fmt.Errorf("invalid interface name: %s (alphanumeric with -_. and at most 15 characters)", name)
	}
	return nil
}

// ValidateIdentifier validates a general identifier (group ids and the like)
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(id) > 255 {
		return fmt.Errorf("identifier too long (max 255 characters)")
	}
	if !identifierRegex.MatchString(id) {
		return fmt.Errorf("invalid identifier: %s (must be alphanumeric with -_)", id)
	}
	return nil
}

// ValidateText checks free text that ends up inside a rendered config file.
func ValidateText(s string, maxLen int) error {
	if maxLen > 0 && len(s) > maxLen {
		return fmt.Errorf("must be at most %d characters", maxLen)
	}
	for _, char := range dangerousChars {
		if strings.Contains(s, char) {
			return fmt.Errorf("contains forbidden character %q", char)
		}
	}
	return nil
}

// ValidateBool accepts the "0"/"1" boolean encoding.
func ValidateBool(s string) error {
	if s != "0" && s != "1" {
		return fmt.Errorf("must be 0 or 1")
	}
	return nil
}

// ValidateIntRange checks that s is a base-10 integer within [lo, hi].
func ValidateIntRange(s string, lo, hi int) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("must be a whole number")
	}
	if n < lo || n > hi {
		return fmt.Errorf("must be between %d and %d", lo, hi)
	}
	return nil
}

// ValidatePort checks a TCP/UDP port number given as a string.
func ValidatePort(s string) error {
	if err := ValidateIntRange(s, 1, 65535); err != nil {
		return fmt.Errorf("invalid port: %s", s)
	}
	return nil
}

// ValidateIP checks for a literal IPv4 or IPv6 address.
func ValidateIP(s string) error {
	if net.ParseIP(s) == nil {
		return fmt.Errorf("invalid IP address: %s", s)
	}
	return nil
}

// ValidateHost accepts an IP address or a DNS hostname.
func ValidateHost(s string) error {
	if net.ParseIP(s) != nil {
		return nil
	}
	if len(s) > 253 || !hostnameRegex.MatchString(s) {
		return fmt.Errorf("invalid host: %s", s)
	}
	return nil
}

// ValidateI2PPeer checks for a base32 .b32.i2p destination.
func ValidateI2PPeer(s string) error {
	if !i2pPeerRegex.MatchString(s) {
		return fmt.Errorf("invalid I2P peer: %s", s)
	}
	return nil
}

// ValidateAllowlist checks if value is in allowed list
func ValidateAllowlist(value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("must be one of: %s", strings.Join(allowed, ", "))
}

// SplitList splits a comma separated list, trimming blanks and dropping empties.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
