package brand

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	b := Get()
	assert.Equal(t, "RNSGate", b.Name)
	assert.Equal(t, "rnsgate", LowerName)
	assert.Equal(t, "OPNsense/Reticulum", TemplateName)
	assert.NotEmpty(t, Version)
}

func TestUserAgent(t *testing.T) {
	assert.Equal(t, "RNSGate/1.0.0", UserAgent("1.0.0"))
	assert.Equal(t, "RNSGate/dev", UserAgent(""))
}

func TestGetDirectories(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv(ConfigEnvPrefix+"_PREFIX", "")
		t.Setenv(ConfigEnvPrefix+"_RUN_DIR", "")
		t.Setenv(ConfigEnvPrefix+"_CONFIG_DIR", "")

		assert.Equal(t, DefaultRunDir, GetRunDir())
		assert.Equal(t, DefaultConfigDir, GetConfigDir())
		assert.Equal(t, filepath.Join(DefaultRunDir, "rnsgate-ctl.sock"), GetSocketPath())
	})

	t.Run("prefix", func(t *testing.T) {
		t.Setenv(ConfigEnvPrefix+"_PREFIX", "/tmp/rg")
		t.Setenv(ConfigEnvPrefix+"_RUN_DIR", "")

		assert.Equal(t, "/tmp/rg/run", GetRunDir())
		assert.Equal(t, "/tmp/rg/state", GetStateDir())
		assert.Equal(t, "/tmp/rg/state/audit.db", GetAuditDBPath())
	})

	t.Run("explicit dir wins over prefix", func(t *testing.T) {
		t.Setenv(ConfigEnvPrefix+"_PREFIX", "/tmp/rg")
		t.Setenv(ConfigEnvPrefix+"_CONFIG_DIR", "/etc/custom")

		assert.Equal(t, "/etc/custom", GetConfigDir())
		assert.Equal(t, "/etc/custom/reticulum.hcl", GetSettingsPath())
		assert.Equal(t, "/etc/custom/rnsgate.hcl", GetConfigPath())
	})
}
