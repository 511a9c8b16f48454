package recce

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/DataRecce/recce-sub014/pkg/server"
	"github.com/DataRecce/recce-sub014/pkg/state"
)

// Config is the application configuration. The zero value is usable: every
// section falls back to its Default*Config and the demo slots are declared.
type Config struct {
	// Addr is the listen address for Run. Default: ":8080".
	Addr string

	// WebSocketPath is where the session transport is mounted.
	// Default: "/_recce/ws".
	WebSocketPath string

	// Session configures per-session timeouts and limits.
	Session SessionConfig

	// Limits configures server-wide session caps.
	Limits LimitsConfig

	// Snapshot configures detached-session persistence.
	Snapshot SnapshotConfig

	// Security configures CSRF and proxy trust.
	Security SecurityConfig

	// Slots declares the persistent views and their activation routes.
	// Empty means DefaultSlots. Duplicate names or conflicting routes
	// are fatal in New.
	Slots []Declaration

	// Routes binds extra path patterns to declared slots (alias paths,
	// parameterized variants), pattern -> slot name.
	Routes map[string]string

	// Middleware wraps every session's navigation pipeline, outermost
	// first.
	Middleware []Middleware

	// QueryRunner executes statements submitted from the query view.
	// Nil leaves query execution unconfigured; submitted runs are
	// recorded as failed.
	QueryRunner QueryRunner

	// Logger is the base structured logger. Nil means slog.Default.
	Logger *slog.Logger
}

// SessionConfig holds per-session tuning knobs.
type SessionConfig struct {
	// ReadTimeout is the maximum wait for a client frame. Default: 60s.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time spent writing one frame.
	// Default: 10s.
	WriteTimeout time.Duration

	// IdleTimeout closes sessions without events for this long.
	// Default: 5m.
	IdleTimeout time.Duration

	// HeartbeatInterval is how often the server pings. Default: 30s.
	HeartbeatInterval time.Duration

	// ResumeWindow is how long a disconnected session stays resumable.
	// Default: 5m.
	ResumeWindow time.Duration

	// MaxMessageSize caps inbound frame size in bytes. Default: 64KB.
	MaxMessageSize int64

	// MaxEventQueue is the inbound event queue capacity. Default: 256.
	MaxEventQueue int
}

// DefaultSessionConfig returns a SessionConfig with production defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       5 * time.Minute,
		HeartbeatInterval: 30 * time.Second,
		ResumeWindow:      5 * time.Minute,
		MaxMessageSize:    64 * 1024,
		MaxEventQueue:     256,
	}
}

// LimitsConfig caps server-wide resource use. Zero fields mean unlimited
// or the state manager default.
type LimitsConfig struct {
	// MaxSessions caps concurrently connected sessions.
	MaxSessions int

	// MaxSessionsPerIP caps sessions per client IP.
	MaxSessionsPerIP int

	// MaxDetachedSessions caps detached sessions held for resume.
	MaxDetachedSessions int

	// EvictionPolicy selects which detached sessions go first under
	// pressure.
	EvictionPolicy state.EvictionPolicy
}

// SnapshotConfig configures where detached session snapshots live.
type SnapshotConfig struct {
	// Store persists snapshots across process restarts. Nil keeps them
	// in manager memory only.
	Store Store
}

// SecurityConfig configures transport hardening.
type SecurityConfig struct {
	// CSRFSecret enables signed handshake tokens when non-empty.
	CSRFSecret []byte

	// TrustedProxies lists proxy IPs or CIDRs whose X-Forwarded-For
	// headers are honored.
	TrustedProxies []string

	// CheckOrigin overrides the WebSocket upgrade origin check. Nil
	// means same-origin.
	CheckOrigin func(r *http.Request) bool
}

// withDefaults fills every zero field from the section defaults.
func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.WebSocketPath == "" {
		c.WebSocketPath = "/_recce/ws"
	}
	def := DefaultSessionConfig()
	if c.Session.ReadTimeout <= 0 {
		c.Session.ReadTimeout = def.ReadTimeout
	}
	if c.Session.WriteTimeout <= 0 {
		c.Session.WriteTimeout = def.WriteTimeout
	}
	if c.Session.IdleTimeout <= 0 {
		c.Session.IdleTimeout = def.IdleTimeout
	}
	if c.Session.HeartbeatInterval <= 0 {
		c.Session.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.Session.ResumeWindow <= 0 {
		c.Session.ResumeWindow = def.ResumeWindow
	}
	if c.Session.MaxMessageSize <= 0 {
		c.Session.MaxMessageSize = def.MaxMessageSize
	}
	if c.Session.MaxEventQueue <= 0 {
		c.Session.MaxEventQueue = def.MaxEventQueue
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if len(c.Slots) == 0 {
		c.Slots = DefaultSlots()
	}
	return c
}

// buildServerConfig translates the application config into the internal
// server config.
func (c Config) buildServerConfig() *server.ServerConfig {
	sc := server.DefaultServerConfig()
	sc.Address = c.Addr
	sc.Session.ReadTimeout = c.Session.ReadTimeout
	sc.Session.WriteTimeout = c.Session.WriteTimeout
	sc.Session.IdleTimeout = c.Session.IdleTimeout
	sc.Session.HeartbeatInterval = c.Session.HeartbeatInterval
	sc.Session.MaxMessageSize = c.Session.MaxMessageSize
	sc.Session.MaxEventQueue = c.Session.MaxEventQueue
	sc.ResumeWindow = c.Session.ResumeWindow
	sc.MaxSessions = c.Limits.MaxSessions
	sc.MaxSessionsPerIP = c.Limits.MaxSessionsPerIP
	sc.MaxDetachedSessions = c.Limits.MaxDetachedSessions
	sc.EvictionPolicy = c.Limits.EvictionPolicy
	sc.Store = c.Snapshot.Store
	sc.CSRFSecret = c.Security.CSRFSecret
	sc.TrustedProxies = c.Security.TrustedProxies
	sc.CheckOrigin = c.Security.CheckOrigin
	return sc
}
