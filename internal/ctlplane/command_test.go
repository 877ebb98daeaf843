package ctlplane

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommand_String(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{Service(ServiceStatus), "reticulum status"},
		{Service(ServiceRestart), "reticulum restart"},
		{Template(TemplateReload), "template reload OPNsense/Reticulum"},
		{Diagnostic(DiagGeneralStatus), "reticulum diagnostics general_status"},
		{RNStatus(false), "reticulum utilities rnstatus"},
		{RNStatus(true), "reticulum utilities rnstatus_detail"},
		{RNID(""), "reticulum utilities rnid"},
		{RNPath("abcdef0123456789abcdef0123456789"), "reticulum utilities rnpath abcdef0123456789abcdef0123456789"},
		{RNProbe("abcdef0123456789abcdef0123456789", 30), "reticulum utilities rnprobe abcdef0123456789abcdef0123456789 30"},
		{RNodeConf("/dev/cuaU0"), "reticulum utilities rnodeconf /dev/cuaU0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.cmd.String())
	}
}

func TestCommand_ParseRoundTrip(t *testing.T) {
	for _, cmd := range []Command{
		Service(ServiceStopLX),
		Template(TemplateDiff),
		Diagnostic(DiagLog),
		RNProbe("00112233445566778899aabbccddeeff", 5),
		RNodeConf("/dev/ttyUSB0"),
	} {
		parsed, err := ParseCommand(cmd.String())
		require.NoError(t, err, cmd.String())
		assert.Equal(t, cmd, parsed)
	}
}

func TestCommand_Validate(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		ok   bool
	}{
		{"service action", Service(ServiceStart), true},
		{"unknown service action", Service("reboot"), false},
		{"service with args", Command{Kind: KindService, Name: ServiceStart, Args: []string{"x"}}, false},
		{"unknown template action", Template("render"), false},
		{"unknown diagnostic passes", Diagnostic("foobar"), true},
		{"diagnostic with args", Command{Kind: KindDiagnostic, Name: DiagLog, Args: []string{"1"}}, false},
		{"unknown utility passes", Command{Kind: KindUtility, Name: "rnsh"}, true},
		{"rnpath without hash", RNPath(""), true},
		{"rnpath shell metachars", Command{Kind: KindUtility, Name: UtilRNPath, Args: []string{"abc;rm"}}, false},
		{"rnprobe needs hash", Command{Kind: KindUtility, Name: UtilRNProbe}, false},
		{"rnprobe timeout out of range", Command{Kind: KindUtility, Name: UtilRNProbe, Args: []string{"ab", "61"}}, false},
		{"rnprobe too many args", Command{Kind: KindUtility, Name: UtilRNProbe, Args: []string{"ab", "1", "2"}}, false},
		{"rnodeconf relative device", RNodeConf("ttyUSB0"), true},
		{"rnodeconf device with space", Command{Kind: KindUtility, Name: UtilRNodeConf, Args: []string{"/dev/tty USB"}}, false},
		{"malformed name", Command{Kind: KindUtility, Name: "RN status"}, false},
		{"unknown kind", Command{Kind: "shell", Name: "sh"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidCommand)
			}
		})
	}
}

func TestCommand_Mutating(t *testing.T) {
	assert.False(t, Service(ServiceStatus).Mutating())
	assert.True(t, Service(ServiceStop).Mutating())
	assert.True(t, Service(ServiceStartLX).Mutating())
	assert.True(t, Template(TemplateReload).Mutating())
	assert.False(t, Template(TemplateDiff).Mutating())
	assert.False(t, RNStatus(true).Mutating())
	assert.False(t, Diagnostic(DiagLog).Mutating())
}

func TestParseCommand_Errors(t *testing.T) {
	for _, s := range []string{
		"",
		"reticulum",
		"template reload",
		"template reload OPNsense/Other",
		"sh -c id",
		"reticulum utilities",
	} {
		_, err := ParseCommand(s)
		assert.Error(t, err, "%q should not parse", s)
		assert.True(t, strings.Contains(err.Error(), "invalid command"))
	}
}
