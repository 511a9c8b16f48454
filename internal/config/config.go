// Package config loads and saves recce.json, the CLI-facing project
// configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ConfigFileName is the name of the configuration file.
const ConfigFileName = "recce.json"

// Snapshot store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
)

// Config is the recce.json schema. Durations are JSON strings in
// time.ParseDuration syntax ("30s", "5m").
type Config struct {
	// Name is the project name, informational only.
	Name string `json:"name,omitempty"`

	// Addr is the listen address.
	Addr string `json:"addr,omitempty"`

	// Session contains per-session tuning.
	Session SessionConfig `json:"session,omitempty"`

	// Limits contains server-wide caps.
	Limits LimitsConfig `json:"limits,omitempty"`

	// Snapshot selects where detached-session snapshots are stored.
	Snapshot SnapshotConfig `json:"snapshot,omitempty"`

	// Security contains transport hardening settings.
	Security SecurityConfig `json:"security,omitempty"`

	// Metrics contains Prometheus settings.
	Metrics MetricsConfig `json:"metrics,omitempty"`

	// configPath stores the path the config was loaded from.
	configPath string
}

// SessionConfig contains per-session settings.
type SessionConfig struct {
	// ResumeWindow is how long a disconnected session stays resumable.
	ResumeWindow string `json:"resumeWindow,omitempty"`

	// IdleTimeout closes sessions without events for this long.
	IdleTimeout string `json:"idleTimeout,omitempty"`
}

// LimitsConfig contains server-wide caps. Zero means unlimited or the
// server default.
type LimitsConfig struct {
	MaxSessions      int `json:"maxSessions,omitempty"`
	MaxSessionsPerIP int `json:"maxSessionsPerIp,omitempty"`
}

// SnapshotConfig selects the snapshot store backend.
type SnapshotConfig struct {
	// Backend is one of "memory", "sqlite", or "s3".
	Backend string `json:"backend,omitempty"`

	// Path is the SQLite database file for the sqlite backend.
	Path string `json:"path,omitempty"`

	// Bucket, Prefix, and Region configure the s3 backend.
	Bucket string `json:"bucket,omitempty"`
	Prefix string `json:"prefix,omitempty"`
	Region string `json:"region,omitempty"`
}

// SecurityConfig contains transport hardening settings.
type SecurityConfig struct {
	// CSRFSecretEnv names the environment variable holding the CSRF
	// signing secret. The secret itself never lives in recce.json.
	CSRFSecretEnv string `json:"csrfSecretEnv,omitempty"`

	// TrustedProxies lists proxy IPs or CIDRs whose forwarding headers
	// are honored.
	TrustedProxies []string `json:"trustedProxies,omitempty"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// Enabled mounts /metrics and wires the navigation middleware.
	Enabled bool `json:"enabled,omitempty"`

	// Namespace prefixes every metric name. Default "recce".
	Namespace string `json:"namespace,omitempty"`
}

// New creates a Config with default values.
func New() *Config {
	return &Config{
		Addr: ":8080",
		Session: SessionConfig{
			ResumeWindow: "5m",
			IdleTimeout:  "5m",
		},
		Snapshot: SnapshotConfig{
			Backend: BackendMemory,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "recce",
		},
	}
}

// Load reads recce.json from the given directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from an explicit file path. Fields absent
// from the file keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.configPath = path
	return cfg, nil
}

// Find walks up from dir looking for recce.json. It returns the loaded
// config and the directory it was found in.
func Find(dir string) (*Config, string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, "", err
	}
	for {
		path := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(path); err == nil {
			cfg, err := LoadFile(path)
			return cfg, dir, err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, "", fmt.Errorf("config: no %s found", ConfigFileName)
		}
		dir = parent
	}
}

// Save writes the config back to the path it was loaded from, or to
// recce.json in dir when it was built fresh.
func (c *Config) Save(dir string) error {
	path := c.configPath
	if path == "" {
		path = filepath.Join(dir, ConfigFileName)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	c.configPath = path
	return nil
}

// Path returns where the config was loaded from, or "" for a fresh one.
func (c *Config) Path() string {
	return c.configPath
}

// Validate checks cross-field constraints that JSON decoding cannot.
func (c *Config) Validate() error {
	switch c.Snapshot.Backend {
	case "", BackendMemory:
	case BackendSQLite:
		if c.Snapshot.Path == "" {
			return fmt.Errorf("snapshot backend %q needs a path", BackendSQLite)
		}
	case BackendS3:
		if c.Snapshot.Bucket == "" {
			return fmt.Errorf("snapshot backend %q needs a bucket", BackendS3)
		}
	default:
		return fmt.Errorf("unknown snapshot backend %q", c.Snapshot.Backend)
	}
	if _, err := c.ResumeWindow(); err != nil {
		return err
	}
	if _, err := c.IdleTimeout(); err != nil {
		return err
	}
	return nil
}

// ResumeWindow parses the session resume window. Empty means zero, which
// leaves the server default in place.
func (c *Config) ResumeWindow() (time.Duration, error) {
	return parseDuration("session.resumeWindow", c.Session.ResumeWindow)
}

// IdleTimeout parses the session idle timeout.
func (c *Config) IdleTimeout() (time.Duration, error) {
	return parseDuration("session.idleTimeout", c.Session.IdleTimeout)
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %s", field, value)
	}
	return d, nil
}
