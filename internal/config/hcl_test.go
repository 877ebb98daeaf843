package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSettings(t *testing.T) {
	src := `
general {
  enabled          = "1"
  enable_transport = "1"
}

interface "0b6d1c1e-8a43-4d34-9a8e-6f5a6f1f9c11" {
  name                   = "uplink"
  interfaceType          = "TCPClientInterface"
  tcp_client_target_host = "amsterdam.connect.reticulum.network"
  tcp_client_target_port = "4965"
}
`
	s, err := ParseSettings("reticulum", []byte(src))
	require.NoError(t, err)

	assert.True(t, s.IsEnabled())
	assert.Equal(t, "1", s.General.EnableTransport)
	assert.Equal(t, "37428", s.General.SharedInstancePort)
	require.NotNil(t, s.Propagation)
	require.Len(t, s.Interfaces, 1)

	iface := s.Interfaces[0]
	assert.Equal(t, "0b6d1c1e-8a43-4d34-9a8e-6f5a6f1f9c11", iface.UUID)
	assert.Equal(t, "uplink", iface.Name)
	assert.Equal(t, "1", iface.Enabled)
	assert.Equal(t, "4965", iface.TCPClientTargetPort)
}

func TestParseSettings_Empty(t *testing.T) {
	s, err := ParseSettings("reticulum.hcl", nil)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), s)
}

func TestParseSettings_Invalid(t *testing.T) {
	_, err := ParseSettings("reticulum.hcl", []byte(`general { enabled = `))
	assert.Error(t, err)

	_, err = ParseSettings("reticulum.hcl", []byte(`general { bogus = "1" }`))
	assert.Error(t, err)
}

func TestMarshalSettings_RoundTrip(t *testing.T) {
	s := Defaults()
	s.General.Enabled = "1"
	s.Propagation.NodeName = "Relay \"north\""
	s.AddInterface(map[string]string{"name": "auto", "auto_devices": "em0,em1"})
	s.AddInterface(map[string]string{
		"name":                   "srv",
		"interfaceType":          TypeTCPServer,
		"tcp_server_listen_ip":   "0.0.0.0",
		"tcp_server_listen_port": "4242",
	})

	out := MarshalSettings(s)
	assert.Contains(t, string(out), `interface "`+s.Interfaces[0].UUID+`"`)
	assert.NotContains(t, string(out), `node_name = ""`)

	back, err := ParseSettings("reticulum.hcl", out)
	require.NoError(t, err)
	assert.Equal(t, s, back)
}
