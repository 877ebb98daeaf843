package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/joho/godotenv"

	"grimm.is/rnsgate/internal/brand"
)

// Runtime is the configuration of rnsgate itself (rnsgate.hcl), as opposed
// to the Reticulum settings it manages.
//
//	log_level       = "info"
//	stream_interval = "5s"
//
//	api {
//	  listen       = ":8085"
//	  require_auth = true
//	  key "opnsense" {
//	    secret_hash = "$2a$10$..."
//	  }
//	}
//
//	control_plane {
//	  socket         = "/var/run/rnsgate-ctl.sock"
//	  retention_days = 30
//	}
//
//	paths {
//	  rns_config_dir = "/usr/local/etc/reticulum"
//	}
type Runtime struct {
	LogLevel       string `hcl:"log_level,optional"`
	LogFormat      string `hcl:"log_format,optional"` // console, json
	StreamInterval string `hcl:"stream_interval,optional"`

	API          *APIConfig          `hcl:"api,block"`
	ControlPlane *ControlPlaneConfig `hcl:"control_plane,block"`
	Paths        *PathsConfig        `hcl:"paths,block"`
}

// APIConfig configures the unprivileged HTTP server.
type APIConfig struct {
	Listen         string   `hcl:"listen,optional"`
	RequireAuth    *bool    `hcl:"require_auth,optional"`
	MaxConnections int      `hcl:"max_connections,optional"`
	Keys           []APIKey `hcl:"key,block"`
}

// APIKey is a key/secret pair accepted through HTTP Basic auth.
type APIKey struct {
	Name       string `hcl:"name,label"`
	SecretHash string `hcl:"secret_hash"`
}

// ControlPlaneConfig configures the privileged command runner.
type ControlPlaneConfig struct {
	Socket        string `hcl:"socket,optional"`
	AuditDB       string `hcl:"audit_db,optional"`
	RetentionDays int    `hcl:"retention_days,optional"`
	MetricsListen string `hcl:"metrics_listen,optional"` // empty disables the command metrics endpoint
}

// PathsConfig locates the Reticulum tools and files on the host.
type PathsConfig struct {
	SettingsFile  string `hcl:"settings_file,optional"`
	BinDir        string `hcl:"bin_dir,optional"`
	RNSConfigDir  string `hcl:"rns_config_dir,optional"`
	LXMDConfigDir string `hcl:"lxmd_config_dir,optional"`
	LXMDStorage   string `hcl:"lxmd_storage,optional"`
	RunDir        string `hcl:"run_dir,optional"`
	LogFile       string `hcl:"log_file,optional"`
}

// Defaults for the runtime configuration.
const (
	DefaultListen         = ":8085"
	DefaultStreamInterval = 5 * time.Second
	DefaultRetentionDays  = 30
	DefaultMaxConnections = 64
)

// DefaultRuntime returns the runtime configuration used when no file exists.
func DefaultRuntime() *Runtime {
	rt := &Runtime{}
	rt.applyDefaults()
	return rt
}

func (rt *Runtime) applyDefaults() {
	if rt.LogLevel == "" {
		rt.LogLevel = "info"
	}
	if rt.LogFormat == "" {
		rt.LogFormat = "console"
	}
	if rt.StreamInterval == "" {
		rt.StreamInterval = DefaultStreamInterval.String()
	}

	if rt.API == nil {
		rt.API = &APIConfig{}
	}
	if rt.API.Listen == "" {
		rt.API.Listen = DefaultListen
	}
	if rt.API.RequireAuth == nil {
		on := true
		rt.API.RequireAuth = &on
	}
	if rt.API.MaxConnections <= 0 {
		rt.API.MaxConnections = DefaultMaxConnections
	}

	if rt.ControlPlane == nil {
		rt.ControlPlane = &ControlPlaneConfig{}
	}
	if rt.ControlPlane.Socket == "" {
		rt.ControlPlane.Socket = brand.GetSocketPath()
	}
	if rt.ControlPlane.AuditDB == "" {
		rt.ControlPlane.AuditDB = brand.GetAuditDBPath()
	}
	if rt.ControlPlane.RetentionDays <= 0 {
		rt.ControlPlane.RetentionDays = DefaultRetentionDays
	}

	if rt.Paths == nil {
		rt.Paths = &PathsConfig{}
	}
	p := rt.Paths
	if p.SettingsFile == "" {
		p.SettingsFile = brand.GetSettingsPath()
	}
	if p.BinDir == "" {
		p.BinDir = "/usr/local/bin"
	}
	if p.RNSConfigDir == "" {
		p.RNSConfigDir = "/usr/local/etc/reticulum"
	}
	if p.LXMDConfigDir == "" {
		p.LXMDConfigDir = "/usr/local/etc/lxmd"
	}
	if p.LXMDStorage == "" {
		p.LXMDStorage = "/var/db/lxmd"
	}
	if p.RunDir == "" {
		p.RunDir = "/var/run"
	}
	if p.LogFile == "" {
		p.LogFile = "/var/log/reticulum/rnsd.log"
	}
}

// LoadRuntime reads the runtime configuration from path, then applies
// RNSGATE_* environment overrides. A .env file next to the configuration is
// loaded first when present; variables already set in the environment win.
// A missing configuration file yields the defaults.
func LoadRuntime(path string) (*Runtime, error) {
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	rt := &Runtime{}
	if _, err := os.Stat(path); err == nil {
		if err := hclsimple.DecodeFile(path, nil, rt); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := rt.applyEnv(); err != nil {
		return nil, err
	}
	rt.applyDefaults()
	if err := rt.Validate(); err != nil {
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) applyEnv() error {
	if v := brand.Env("LOG_LEVEL"); v != "" {
		rt.LogLevel = v
	}
	if v := brand.Env("LOG_FORMAT"); v != "" {
		rt.LogFormat = v
	}
	if rt.API == nil {
		rt.API = &APIConfig{}
	}
	if v := brand.Env("LISTEN"); v != "" {
		rt.API.Listen = v
	}
	if v := brand.Env("REQUIRE_AUTH"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s_REQUIRE_AUTH: %w", brand.ConfigEnvPrefix, err)
		}
		rt.API.RequireAuth = &on
	}
	if rt.ControlPlane == nil {
		rt.ControlPlane = &ControlPlaneConfig{}
	}
	if v := brand.Env("SOCKET"); v != "" {
		rt.ControlPlane.Socket = v
	}
	if rt.Paths == nil {
		rt.Paths = &PathsConfig{}
	}
	if v := brand.Env("SETTINGS_FILE"); v != "" {
		rt.Paths.SettingsFile = v
	}
	return nil
}

// Validate checks the runtime configuration after defaults are applied.
func (rt *Runtime) Validate() error {
	var errs ValidationErrors
	if _, err := time.ParseDuration(rt.StreamInterval); err != nil {
		errs = append(errs, ValidationError{Field: "stream_interval", Message: "must be a duration such as 5s"})
	}
	switch rt.LogFormat {
	case "console", "json":
	default:
		errs = append(errs, ValidationError{Field: "log_format", Message: "must be console or json"})
	}
	seen := map[string]bool{}
	for _, k := range rt.API.Keys {
		field := "api.key." + k.Name
		if seen[k.Name] {
			errs = append(errs, ValidationError{Field: field, Message: "duplicate key"})
		}
		seen[k.Name] = true
		if !strings.HasPrefix(k.SecretHash, "$2") {
			errs = append(errs, ValidationError{Field: field + ".secret_hash", Message: "must be a bcrypt hash"})
		}
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}

// AuthRequired reports whether the API demands credentials.
func (rt *Runtime) AuthRequired() bool {
	return rt.API.RequireAuth == nil || *rt.API.RequireAuth
}

// StreamEvery returns the status stream interval.
func (rt *Runtime) StreamEvery() time.Duration {
	d, err := time.ParseDuration(rt.StreamInterval)
	if err != nil || d <= 0 {
		return DefaultStreamInterval
	}
	return d
}
