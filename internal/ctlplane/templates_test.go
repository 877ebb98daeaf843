package ctlplane

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/rnsgate/internal/config"
)

func TestTemplates_ReloadWritesConfigs(t *testing.T) {
	f := newExecutorFixture(t)
	f.writeSettings(t, func(s *config.Settings) {
		s.General.Enabled = "1"
		s.General.EnableTransport = "1"
		s.Propagation.Enabled = "1"
		s.Propagation.EnableNode = "1"
		s.Propagation.NodeName = "Gateway"
		s.Propagation.StaticPeers = "aa,bb"
		s.Interfaces = []config.Interface{
			{UUID: "u1", Enabled: "1", Name: "Backbone", InterfaceType: config.TypeTCPServer,
				TCPServerListenIP: "0.0.0.0", TCPServerListenPort: "4242"},
			{UUID: "u2", Enabled: "0", Name: "LoRa", InterfaceType: config.TypeRNode,
				Port: "/dev/cuaU0", Frequency: "867200000", Bandwidth: "125000"},
		}
	})

	out := f.run(t, Template(TemplateReload))
	assert.Contains(t, out, "wrote "+filepath.Join(f.paths.RNSConfigDir, "config"))
	assert.Contains(t, out, "wrote "+filepath.Join(f.paths.LXMDConfigDir, "config"))

	rns, err := os.ReadFile(filepath.Join(f.paths.RNSConfigDir, "config"))
	require.NoError(t, err)
	text := string(rns)
	assert.Contains(t, text, "[reticulum]\n  enable_transport = yes\n  share_instance = yes\n  shared_instance_port = 37428")
	assert.Contains(t, text, "  [[Backbone]]\n    type = TCPServerInterface\n    enabled = yes\n    mode = full\n    outgoing = yes\n    listen_ip = 0.0.0.0\n    listen_port = 4242\n")
	assert.Contains(t, text, "  [[LoRa]]\n    type = RNodeInterface\n    enabled = no")
	assert.Contains(t, text, "    frequency = 867200000\n")
	assert.NotContains(t, text, "spreadingfactor", "empty values are omitted")

	lxmd, err := os.ReadFile(filepath.Join(f.paths.LXMDConfigDir, "config"))
	require.NoError(t, err)
	assert.Contains(t, string(lxmd), "enable_node = yes")
	assert.Contains(t, string(lxmd), "node_name = Gateway")
	assert.Contains(t, string(lxmd), "static_peers = aa, bb")
	assert.Contains(t, string(lxmd), "message_storage_limit = 500\n")

	limit, ok := readStorageLimit(filepath.Join(f.paths.LXMDConfigDir, "config"))
	assert.True(t, ok)
	assert.Equal(t, 500, limit)

	assert.Equal(t, "OK", f.run(t, Template(TemplateReload)), "unchanged configs are not rewritten")
}

func TestTemplates_NodeNeedsPropagationEnabled(t *testing.T) {
	f := newExecutorFixture(t)
	f.writeSettings(t, func(s *config.Settings) {
		s.Propagation.Enabled = "0"
		s.Propagation.EnableNode = "1"
	})
	f.run(t, Template(TemplateReload))

	lxmd, err := os.ReadFile(filepath.Join(f.paths.LXMDConfigDir, "config"))
	require.NoError(t, err)
	assert.Contains(t, string(lxmd), "enable_node = no")
	assert.Contains(t, string(lxmd), "display_name = Anonymous Peer")
}

func TestTemplates_Diff(t *testing.T) {
	f := newExecutorFixture(t)

	diff := f.run(t, Template(TemplateDiff))
	assert.Contains(t, diff, "+++ "+filepath.Join(f.paths.RNSConfigDir, "config")+" (pending)")
	assert.Contains(t, diff, "+[reticulum]")

	f.run(t, Template(TemplateReload))
	assert.Empty(t, f.run(t, Template(TemplateDiff)))

	f.writeSettings(t, func(s *config.Settings) { s.General.LogLevel = "6" })
	diff = f.run(t, Template(TemplateDiff))
	assert.Contains(t, diff, "-  loglevel = 4")
	assert.Contains(t, diff, "+  loglevel = 6")
	assert.Equal(t, 2, strings.Count(diff, "+++ "), "both configs carry the log level")
}
