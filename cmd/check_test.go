package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeRuntime writes an rnsgate.hcl pointing at settings and returns its path.
func writeRuntime(t *testing.T, settings string) string {
	t.Helper()
	dir := t.TempDir()

	settingsPath := filepath.Join(dir, "reticulum.hcl")
	require.NoError(t, os.WriteFile(settingsPath, []byte(settings), 0644))

	runtime := `
log_level = "debug"

api {
  listen       = "127.0.0.1:8085"
  require_auth = false
}

control_plane {
  socket   = "` + filepath.Join(dir, "ctl.sock") + `"
  audit_db = "` + filepath.Join(dir, "audit.db") + `"
}

paths {
  settings_file = "` + settingsPath + `"
}
`
	configPath := filepath.Join(dir, "rnsgate.hcl")
	require.NoError(t, os.WriteFile(configPath, []byte(runtime), 0644))
	return configPath
}

func TestRunCheck_ValidConfig(t *testing.T) {
	configPath := writeRuntime(t, `
general {
  enabled = "1"
}

interface "0b6d1c1e-8a43-4d34-9a8e-6f5a6f1f9c11" {
  name                   = "uplink"
  interfaceType          = "TCPClientInterface"
  tcp_client_target_host = "amsterdam.connect.reticulum.network"
  tcp_client_target_port = "4965"
}
`)

	var out bytes.Buffer
	require.NoError(t, check(&out, configPath, true))
	assert.Contains(t, out.String(), "auth required: false")
	assert.Contains(t, out.String(), "Enabled: true")
	assert.Contains(t, out.String(), "Interfaces: 1")
	assert.Contains(t, out.String(), "uplink")
	assert.Contains(t, out.String(), "TCPClientInterface")
}

func TestRunCheck_MissingSettingsUsesDefaults(t *testing.T) {
	configPath := writeRuntime(t, "")
	require.NoError(t, os.Remove(filepath.Join(filepath.Dir(configPath), "reticulum.hcl")))

	var out bytes.Buffer
	require.NoError(t, check(&out, configPath, false))
	assert.Contains(t, out.String(), "Enabled: false")
}

func TestRunCheck_InvalidSettings(t *testing.T) {
	configPath := writeRuntime(t, `
general {
  loglevel = "12"
}
`)

	var out bytes.Buffer
	err := check(&out, configPath, false)
	require.Error(t, err)
	assert.Contains(t, out.String(), "general.loglevel")
}

func TestRunCheck_BrokenSettings(t *testing.T) {
	configPath := writeRuntime(t, `
general {
    # Missing closing brace
`)
	assert.Error(t, check(&bytes.Buffer{}, configPath, false))
}

func TestRunCheck_BrokenRuntime(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "rnsgate.hcl")
	require.NoError(t, os.WriteFile(configPath, []byte(`log_format = "xml"`), 0644))

	assert.Error(t, RunCheck(configPath, false))
}
