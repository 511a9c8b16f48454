package server

import (
	"net/http"
	"net/url"
	"time"

	"github.com/DataRecce/recce-sub014/pkg/state"
)

// SessionConfig holds per-session tuning knobs.
type SessionConfig struct {
	// ReadTimeout is the maximum time to wait for a frame from the
	// client. Heartbeat pongs refresh it. Default: 60s.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to spend writing one frame.
	// Default: 10s.
	WriteTimeout time.Duration

	// IdleTimeout closes sessions that have produced no events for this
	// long, even if heartbeats are still flowing. Default: 5m.
	IdleTimeout time.Duration

	// HandshakeTimeout is the window the client has to send its hello
	// after the WebSocket upgrade. Default: 10s.
	HandshakeTimeout time.Duration

	// HeartbeatInterval is how often the server pings the client.
	// Default: 30s.
	HeartbeatInterval time.Duration

	// MaxMessageSize caps inbound frame size in bytes. Default: 64KB.
	MaxMessageSize int64

	// MaxPatchHistory is the number of sent patch frames kept for resume
	// replay. Default: 100.
	MaxPatchHistory int

	// MaxEventQueue is the inbound event queue capacity. Events beyond
	// it are dropped with a rate-limit error. Default: 256.
	MaxEventQueue int
}

// DefaultSessionConfig returns a SessionConfig with production defaults.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       5 * time.Minute,
		HandshakeTimeout:  10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		MaxMessageSize:    64 * 1024,
		MaxPatchHistory:   100,
		MaxEventQueue:     256,
	}
}

// Clone returns a copy of the config.
func (c *SessionConfig) Clone() *SessionConfig {
	clone := *c
	return &clone
}

// ServerConfig holds server-wide settings.
type ServerConfig struct {
	// Address is the listen address for Run. Default: ":8080".
	Address string

	// ReadBufferSize and WriteBufferSize size the WebSocket upgrader
	// buffers. Default: 4096 each.
	ReadBufferSize  int
	WriteBufferSize int

	// CheckOrigin validates the Origin header during upgrade. Nil means
	// SameOriginCheck.
	CheckOrigin func(r *http.Request) bool

	// Session is the per-session config. Nil means DefaultSessionConfig.
	Session *SessionConfig

	// ShutdownTimeout bounds graceful shutdown. Default: 30s.
	ShutdownTimeout time.Duration

	// MaxSessions caps concurrently connected sessions. 0 means
	// unlimited.
	MaxSessions int

	// CSRFSecret enables signed handshake tokens when non-empty. The
	// token must round-trip through both the hello frame and the
	// double-submit cookie.
	CSRFSecret []byte

	// TrustedProxies lists proxy IPs or CIDRs whose X-Forwarded-For
	// headers are honored when resolving the client IP.
	TrustedProxies []string

	// Store persists detached session snapshots. Nil keeps snapshots in
	// memory only.
	Store state.Store

	// ResumeWindow is how long a disconnected session stays resumable.
	// Zero means the state manager default (5m).
	ResumeWindow time.Duration

	// MaxDetachedSessions caps detached sessions held for resume. Zero
	// means the state manager default.
	MaxDetachedSessions int

	// MaxSessionsPerIP caps sessions per client IP. Zero means the state
	// manager default.
	MaxSessionsPerIP int

	// EvictionPolicy selects which detached sessions are evicted under
	// pressure.
	EvictionPolicy state.EvictionPolicy
}

// DefaultServerConfig returns a ServerConfig with production defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:         ":8080",
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		Session:         DefaultSessionConfig(),
		ShutdownTimeout: 30 * time.Second,
	}
}

// Clone returns a deep copy of the config.
func (c *ServerConfig) Clone() *ServerConfig {
	clone := *c
	if c.Session != nil {
		clone.Session = c.Session.Clone()
	}
	if c.CSRFSecret != nil {
		clone.CSRFSecret = append([]byte(nil), c.CSRFSecret...)
	}
	if c.TrustedProxies != nil {
		clone.TrustedProxies = append([]string(nil), c.TrustedProxies...)
	}
	return &clone
}

// WithAddress sets the listen address.
func (c *ServerConfig) WithAddress(addr string) *ServerConfig {
	c.Address = addr
	return c
}

// WithMaxSessions sets the connected-session cap.
func (c *ServerConfig) WithMaxSessions(n int) *ServerConfig {
	c.MaxSessions = n
	return c
}

// WithCSRFSecret sets the handshake token signing secret.
func (c *ServerConfig) WithCSRFSecret(secret []byte) *ServerConfig {
	c.CSRFSecret = secret
	return c
}

// WithStore sets the snapshot persistence store.
func (c *ServerConfig) WithStore(store state.Store) *ServerConfig {
	c.Store = store
	return c
}

// WithResumeWindow sets how long detached sessions stay resumable.
func (c *ServerConfig) WithResumeWindow(d time.Duration) *ServerConfig {
	c.ResumeWindow = d
	return c
}

// WithCheckOrigin sets the upgrade origin check.
func (c *ServerConfig) WithCheckOrigin(fn func(r *http.Request) bool) *ServerConfig {
	c.CheckOrigin = fn
	return c
}

// WithTrustedProxies sets the proxies whose forwarding headers are honored.
func (c *ServerConfig) WithTrustedProxies(proxies ...string) *ServerConfig {
	c.TrustedProxies = proxies
	return c
}

// managerConfig translates the server-level state knobs into a
// state.ManagerConfig, falling back to the manager defaults for zero values.
func (c *ServerConfig) managerConfig() state.ManagerConfig {
	mc := state.DefaultManagerConfig()
	if c.ResumeWindow > 0 {
		mc.ResumeWindow = c.ResumeWindow
	}
	if c.MaxDetachedSessions > 0 {
		mc.MaxDetachedSessions = c.MaxDetachedSessions
	}
	if c.MaxSessionsPerIP > 0 {
		mc.MaxSessionsPerIP = c.MaxSessionsPerIP
	}
	mc.EvictionPolicy = c.EvictionPolicy
	return mc
}

// SameOriginCheck returns an origin check that accepts requests whose
// Origin host matches the request Host. Requests without an Origin header
// (non-browser clients) are accepted.
func SameOriginCheck() func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	}
}
