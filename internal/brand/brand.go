// Package brand provides centralized naming and default locations.
//
// The identity is loaded from brand.json at compile time via go:embed so
// packaging scripts can read the same file.
package brand

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
)

//go:embed brand.json
var brandJSON []byte

// Brand holds all branding information
type Brand struct {
	Name             string `json:"name"`
	LowerName        string `json:"lowerName"`
	Vendor           string `json:"vendor"`
	Website          string `json:"website"`
	Description      string `json:"description"`
	ConfigEnvPrefix  string `json:"configEnvPrefix"`
	DefaultConfigDir string `json:"defaultConfigDir"`
	DefaultStateDir  string `json:"defaultStateDir"`
	DefaultLogDir    string `json:"defaultLogDir"`
	DefaultRunDir    string `json:"defaultRunDir"`
	SocketName       string `json:"socketName"`
	BinaryName       string `json:"binaryName"`
	ConfigFileName   string `json:"configFileName"`
	SettingsFileName string `json:"settingsFileName"`
	TemplateName     string `json:"templateName"`
	License          string `json:"license"`
}

var b Brand

func init() {
	if err := json.Unmarshal(brandJSON, &b); err != nil {
		panic("failed to parse brand.json: " + err.Error())
	}

	Name = b.Name
	LowerName = b.LowerName
	ConfigEnvPrefix = b.ConfigEnvPrefix
	DefaultConfigDir = b.DefaultConfigDir
	DefaultStateDir = b.DefaultStateDir
	DefaultLogDir = b.DefaultLogDir
	DefaultRunDir = b.DefaultRunDir
	SocketName = b.SocketName
	BinaryName = b.BinaryName
	ConfigFileName = b.ConfigFileName
	SettingsFileName = b.SettingsFileName
	TemplateName = b.TemplateName
}

var (
	Name             string
	LowerName        string
	ConfigEnvPrefix  string
	DefaultConfigDir string
	DefaultStateDir  string
	DefaultLogDir    string
	DefaultRunDir    string
	SocketName       string
	BinaryName       string
	ConfigFileName   string
	SettingsFileName string
	TemplateName     string

	// Version is set at build time via -ldflags
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Get returns the full Brand struct
func Get() Brand {
	return b
}

// UserAgent returns a User-Agent string for HTTP requests
func UserAgent(version string) string {
	if version == "" {
		version = "dev"
	}
	return Name + "/" + version
}

// Env returns the value of a brand-prefixed environment variable,
// e.g. Env("RUN_DIR") reads RNSGATE_RUN_DIR.
func Env(key string) string {
	return os.Getenv(ConfigEnvPrefix + "_" + key)
}

func dirFor(key, sub, fallback string) string {
	if dir := Env(key); dir != "" {
		return dir
	}
	if prefix := Env("PREFIX"); prefix != "" {
		return filepath.Join(prefix, sub)
	}
	return fallback
}

// GetStateDir returns the state directory.
// Priority: RNSGATE_STATE_DIR > RNSGATE_PREFIX/state > DefaultStateDir
func GetStateDir() string {
	return dirFor("STATE_DIR", "state", DefaultStateDir)
}

// GetLogDir returns the log directory.
// Priority: RNSGATE_LOG_DIR > RNSGATE_PREFIX/log > DefaultLogDir
func GetLogDir() string {
	return dirFor("LOG_DIR", "log", DefaultLogDir)
}

// GetConfigDir returns the config directory.
// Priority: RNSGATE_CONFIG_DIR > RNSGATE_PREFIX/config > DefaultConfigDir
func GetConfigDir() string {
	return dirFor("CONFIG_DIR", "config", DefaultConfigDir)
}

// GetRunDir returns the runtime directory for sockets and PID files.
// Priority: RNSGATE_RUN_DIR > RNSGATE_PREFIX/run > DefaultRunDir
func GetRunDir() string {
	return dirFor("RUN_DIR", "run", DefaultRunDir)
}

// GetSocketPath returns the full path to the control plane socket,
// e.g. /var/run/rnsgate-ctl.sock.
func GetSocketPath() string {
	return filepath.Join(GetRunDir(), LowerName+"-"+SocketName)
}

// GetConfigPath returns the default runtime configuration file.
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), ConfigFileName)
}

// GetSettingsPath returns the default Reticulum settings file.
func GetSettingsPath() string {
	return filepath.Join(GetConfigDir(), SettingsFileName)
}

// GetAuditDBPath returns the default audit database.
func GetAuditDBPath() string {
	return filepath.Join(GetStateDir(), "audit.db")
}
