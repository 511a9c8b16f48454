package server

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DataRecce/recce-sub014/pkg/protocol"
	"github.com/DataRecce/recce-sub014/pkg/router"
	"github.com/DataRecce/recce-sub014/pkg/slot"
	"github.com/DataRecce/recce-sub014/pkg/state"
)

// CSRFCookieName is the double-submit cookie carrying the handshake token.
const CSRFCookieName = "recce_csrf"

// csrfNonceLen is the random prefix of a CSRF token; the rest is an
// HMAC-SHA256 over it.
const csrfNonceLen = 16

// Data bag keys the server seeds from the client hello. Resize handlers
// typically keep them current afterwards.
const (
	DataViewportWidth  = "viewport_width"
	DataViewportHeight = "viewport_height"
)

// Server accepts WebSocket connections, runs the handshake, and owns the
// live session set. Routes, slot declarations, middleware, and event
// handlers are registered once at startup and shared by every session.
type Server struct {
	config *ServerConfig

	logger        *slog.Logger // server-level logging
	sessionLogger *slog.Logger // base logger sessions derive theirs from

	metrics *MetricsCollector
	manager *state.Manager

	router *router.Router
	decls  []slot.Declaration
	navMW  []Middleware

	handlers map[protocol.EventType]EventHandler

	upgrader websocket.Upgrader
	proxies  *proxyMatcher

	mu         sync.RWMutex
	sessions   map[string]*Session
	httpServer *http.Server

	closed atomic.Bool
}

// New creates a server. A nil config uses defaults; a nil logger uses
// slog.Default.
func New(config *ServerConfig, logger *slog.Logger) *Server {
	if config == nil {
		config = DefaultServerConfig()
	} else {
		config = config.Clone()
	}
	if config.Session == nil {
		config.Session = DefaultSessionConfig()
	}
	if config.Address == "" {
		config.Address = ":8080"
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	checkOrigin := config.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = SameOriginCheck()
	}

	s := &Server{
		config:        config,
		logger:        logger.With("component", "server"),
		sessionLogger: logger,
		metrics:       NewMetricsCollector(),
		router:        router.New(),
		handlers:      make(map[protocol.EventType]EventHandler),
		sessions:      make(map[string]*Session),
		proxies:       newProxyMatcher(config.TrustedProxies),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     checkOrigin,
		},
	}
	s.manager = state.NewManager(config.Store, config.managerConfig(), logger)
	return s
}

// Declare registers persistent slots and binds their routes. Duplicate or
// incomplete declarations are configuration errors and fail the whole batch.
// Must be called before the server accepts connections.
func (s *Server) Declare(decls ...slot.Declaration) error {
	if err := slot.ValidateDeclarations(append(append([]slot.Declaration(nil), s.decls...), decls...)); err != nil {
		return err
	}
	for _, d := range decls {
		if err := s.router.Bind(d.Route, d.Name); err != nil {
			return err
		}
	}
	s.decls = append(s.decls, decls...)
	return nil
}

// Router exposes the route table so callers can bind extra patterns (alias
// paths, parameterized variants) to declared slots.
func (s *Server) Router() *router.Router {
	return s.router
}

// Use appends navigation middleware. Middleware wraps every session's
// navigation pipeline in registration order, outermost first. Must be
// called before the server accepts connections.
func (s *Server) Use(mw ...Middleware) {
	s.navMW = append(s.navMW, mw...)
}

// HandleEvent registers a handler for a typed client event. All sessions
// share the handler table; registration must happen before the server
// accepts connections.
func (s *Server) HandleEvent(t protocol.EventType, h EventHandler) {
	s.handlers[t] = h
}

// Metrics returns the server's metrics collector.
func (s *Server) Metrics() *MetricsCollector {
	return s.metrics
}

// Manager returns the session state manager.
func (s *Server) Manager() *state.Manager {
	return s.manager
}

// Session returns a connected session by ID, or nil.
func (s *Server) Session(id string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// Sessions returns a snapshot of the connected sessions.
func (s *Server) Sessions() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// SessionCount returns the number of connected sessions.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Server) addSession(sess *Session) {
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
}

func (s *Server) removeSession(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Handler returns the server as an http.Handler for mounting on a mux.
func (s *Server) Handler() http.Handler {
	return s
}

// ServeHTTP upgrades the request and runs the connection lifecycle.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.HandleWebSocket(w, r)
}

// HandleWebSocket upgrades an HTTP request to a WebSocket connection and
// performs the handshake. The first frame must be a ClientHello; anything
// else ends the connection with a handshake error status.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.closed.Load() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.logger.Debug("websocket upgrade rejected",
			"remote", r.RemoteAddr,
			"error", err)
		return
	}

	ip := clientIP(r, s.proxies)

	conn.SetReadLimit(s.config.Session.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(s.config.Session.HandshakeTimeout))

	_, data, err := conn.ReadMessage()
	if err != nil {
		s.logger.Debug("handshake read failed", "ip", ip, "error", err)
		_ = conn.Close()
		return
	}
	s.metrics.RecordBytesReceived(len(data))

	frame, err := protocol.DecodeFrame(data)
	if err != nil || frame.Type != protocol.FrameHandshake {
		s.rejectHandshake(conn, ip, protocol.HandshakeInvalidFormat, "first frame is not a client hello")
		return
	}

	hello, err := protocol.DecodeClientHello(frame.Payload)
	if err != nil {
		s.rejectHandshake(conn, ip, protocol.HandshakeInvalidFormat, err.Error())
		return
	}

	if hello.Version.Major != protocol.CurrentVersion.Major {
		s.logger.Warn("protocol version mismatch",
			"ip", ip,
			"client_major", hello.Version.Major,
			"client_minor", hello.Version.Minor)
		s.sendHandshakeError(conn, protocol.HandshakeVersionMismatch)
		_ = conn.Close()
		return
	}

	if len(s.config.CSRFSecret) > 0 && !s.validateCSRF(r, hello.Token) {
		s.rejectHandshake(conn, ip, protocol.HandshakeInvalidToken, "csrf validation failed")
		return
	}

	if hello.SessionID != "" && s.tryResume(conn, ip, hello) {
		return
	}

	s.startSession(conn, ip, hello)
}

// rejectHandshake sends a handshake error status and closes the connection.
func (s *Server) rejectHandshake(conn *websocket.Conn, ip string, status protocol.HandshakeStatus, reason string) {
	s.logger.Warn("handshake rejected",
		"ip", ip,
		"status", uint8(status),
		"reason", reason)
	s.sendHandshakeError(conn, status)
	_ = conn.Close()
}

// sendHandshakeError writes an error ServerHello on a connection that has
// no session yet.
func (s *Server) sendHandshakeError(conn *websocket.Conn, status protocol.HandshakeStatus) {
	hello := protocol.NewServerHelloError(status)
	frame := protocol.NewFrame(protocol.FrameHandshake, protocol.EncodeServerHello(hello))
	_ = conn.SetWriteDeadline(time.Now().Add(s.config.Session.WriteTimeout))
	_ = conn.WriteMessage(websocket.BinaryMessage, frame.Encode())
}

// completeHandshake sends the success ServerHello through the session's
// connection. NextSeq tells the client the sequence the next patch frame
// will carry.
func (s *Server) completeHandshake(sess *Session, resumed bool) error {
	hello := protocol.NewServerHello(sess.ID, uint32(sess.sendSeq.Load()+1), uint64(time.Now().UnixMilli()))
	hello.Resumed = resumed
	frame := protocol.NewFrame(protocol.FrameHandshake, protocol.EncodeServerHello(hello))
	return sess.writeFrame(frame.Encode())
}

// attachSession wires server-owned collaborators into a new session.
func (s *Server) attachSession(sess *Session) {
	sess.handlers = s.handlers
	sess.onClose = s.detachSession
	sess.navigator = NewNavigator(s.router, s.decls, sess.registry, sess.logger, s.metrics, s.navMW...)
}

// startSession builds a fresh session around the connection: mount the
// slots for the hello path, register with the state manager, confirm the
// handshake, send the initial render, and start the loops.
func (s *Server) startSession(conn *websocket.Conn, ip string, hello *protocol.ClientHello) {
	if s.config.MaxSessions > 0 && s.SessionCount() >= s.config.MaxSessions {
		s.rejectHandshake(conn, ip, protocol.HandshakeServerBusy, "session limit reached")
		return
	}
	if err := s.manager.CheckIPLimit(ip); err != nil {
		s.rejectHandshake(conn, ip, protocol.HandshakeServerBusy, err.Error())
		return
	}

	sess := newSession(conn, ip, s.config.Session, s.sessionLogger, s.metrics)
	s.attachSession(sess)

	if hello.ViewportW > 0 && hello.ViewportH > 0 {
		sess.Set(DataViewportWidth, int(hello.ViewportW))
		sess.Set(DataViewportHeight, int(hello.ViewportH))
	}

	path := hello.Path
	if path == "" {
		path = "/"
	}
	res := sess.Navigate(path)
	if res.Err != nil {
		var initErr *slot.InitError
		if !errors.As(res.Err, &initErr) {
			// A garbled or hostile hello path falls back to the shell root.
			res = sess.Navigate("/")
		}
	}

	if err := s.manager.Register(&state.ManagedSession{
		ID:         sess.ID,
		IP:         ip,
		CreatedAt:  sess.CreatedAt,
		LastActive: time.Now(),
		Connected:  true,
		Path:       sess.Path(),
	}); err != nil {
		s.rejectHandshake(conn, ip, protocol.HandshakeServerBusy, err.Error())
		return
	}

	s.addSession(sess)
	s.metrics.RecordSessionCreated()

	if err := s.completeHandshake(sess, false); err != nil {
		s.logger.Warn("handshake write failed",
			"session_id", sess.ID,
			"error", err)
		sess.Close()
		return
	}

	sess.sendPatches(sess.initialPatches())
	sess.navigator.MarkDelivered()
	if res.Err != nil {
		// Surfaced as retryable; the slot stays unmounted until a later
		// navigation succeeds.
		sess.sendError(protocol.NewError(protocol.ErrSlotInit, res.Err.Error()))
	}
	sess.Start()

	s.logger.Info("session started",
		"session_id", sess.ID,
		"ip", ip,
		"path", sess.Path())
}

// tryResume attaches the connection to an existing session. It returns
// false when the session is unknown or expired; the caller then falls back
// to a fresh session under a new ID.
func (s *Server) tryResume(conn *websocket.Conn, ip string, hello *protocol.ClientHello) bool {
	lastSeq := uint64(hello.LastSeq)

	// Live session: the previous connection is still attached or only just
	// dropped. Swap the connection in place and replay missed frames.
	if live := s.Session(hello.SessionID); live != nil && !live.Closed() {
		live.Resume(conn, lastSeq)
		if _, _, err := s.manager.Resume(live.ID); err != nil {
			s.logger.Debug("manager resume", "session_id", live.ID, "error", err)
		}
		if err := s.completeHandshake(live, true); err != nil {
			s.logger.Warn("resume handshake write failed",
				"session_id", live.ID,
				"error", err)
			live.Close()
			return true
		}
		if live.NeedsRestart() {
			live.Start()
		} else {
			// Loops are still running; only the reader is bound to the
			// dead connection.
			go live.ReadLoop(conn)
		}
		if err := live.Dispatch(func() { live.resyncClient(lastSeq) }); err != nil {
			s.logger.Warn("resync dispatch failed",
				"session_id", live.ID,
				"error", err)
		}
		s.metrics.RecordSessionResumed(false)
		s.logger.Info("session resumed",
			"session_id", live.ID,
			"mode", "live",
			"last_seq", lastSeq)
		return true
	}

	ms, data, err := s.manager.Resume(hello.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, state.ErrSessionNotFound), errors.Is(err, state.ErrSessionExpired):
			s.logger.Info("resume rejected",
				"session_id", hello.SessionID,
				"reason", err.Error())
			return false
		default:
			s.logger.Error("resume lookup failed",
				"session_id", hello.SessionID,
				"error", err)
			s.sendHandshakeError(conn, protocol.HandshakeInternalError)
			_ = conn.Close()
			return true
		}
	}

	s.rebuildSession(conn, ip, hello, ms, data)
	return true
}

// rebuildSession reconstructs a detached session around a new connection.
// The session keeps the ID the client presented. Views are remounted by
// replaying the snapshot path, then captured view state is restored into
// them.
func (s *Server) rebuildSession(conn *websocket.Conn, ip string, hello *protocol.ClientHello, ms *state.ManagedSession, data []byte) {
	if s.config.MaxSessions > 0 && s.SessionCount() >= s.config.MaxSessions {
		s.rejectHandshake(conn, ip, protocol.HandshakeServerBusy, "session limit reached")
		return
	}

	sess := newSessionWithID(hello.SessionID, conn, ip, s.config.Session, s.sessionLogger, s.metrics)
	if ms != nil {
		sess.CreatedAt = ms.CreatedAt
	}
	s.attachSession(sess)

	if hello.ViewportW > 0 && hello.ViewportH > 0 {
		sess.Set(DataViewportWidth, int(hello.ViewportW))
		sess.Set(DataViewportHeight, int(hello.ViewportH))
	}

	path := hello.Path
	var snap *state.Snapshot
	if len(data) > 0 {
		decoded, derr := state.DecodeSnapshot(data)
		if derr != nil {
			s.logger.Warn("snapshot decode failed, resuming fresh",
				"session_id", sess.ID,
				"error", derr)
		} else {
			snap = decoded
			if snap.Path != "" {
				path = snap.Path
			}
		}
	}
	if path == "" {
		path = "/"
	}

	// Mount first, then restore: captured state can only land in views
	// that exist.
	res := sess.Navigate(path)
	if res.Err != nil {
		s.logger.Warn("resume navigation failed",
			"session_id", sess.ID,
			"path", path,
			"error", res.Err)
	}
	if snap != nil {
		if err := snap.Restore(sess.Slots()); err != nil {
			s.logger.Warn("snapshot restore failed, views start fresh",
				"session_id", sess.ID,
				"error", err)
		}
	}

	if ms == nil {
		// Evicted from manager memory; the snapshot came from the store.
		if err := s.manager.Register(&state.ManagedSession{
			ID:         sess.ID,
			IP:         ip,
			CreatedAt:  sess.CreatedAt,
			LastActive: time.Now(),
			Connected:  true,
			Path:       sess.Path(),
		}); err != nil {
			s.rejectHandshake(conn, ip, protocol.HandshakeServerBusy, err.Error())
			return
		}
	}

	s.addSession(sess)
	s.metrics.RecordSessionResumed(true)

	if err := s.completeHandshake(sess, true); err != nil {
		s.logger.Warn("resume handshake write failed",
			"session_id", sess.ID,
			"error", err)
		sess.Close()
		return
	}

	// History is empty after a rebuild, so replay is never possible: send
	// a full render and let the client reset its sequence tracking.
	sess.sendResyncPatches(sess.fullRenderPatches())
	sess.navigator.MarkDelivered()
	sess.Start()

	s.logger.Info("session resumed",
		"session_id", sess.ID,
		"mode", "rebuilt",
		"path", sess.Path())
}

// detachSession is the session onClose hook. It snapshots view state,
// hands the session to the state manager for the resume window, and drops
// it from the live set.
func (s *Server) detachSession(sess *Session) {
	snap := state.NewSnapshot(sess.ID, sess.Path())
	if err := snap.Capture(sess.Slots()); err != nil {
		s.logger.Warn("snapshot capture failed",
			"session_id", sess.ID,
			"error", err)
	}
	data, err := state.EncodeSnapshot(snap)
	if err != nil {
		s.logger.Warn("snapshot encode failed",
			"session_id", sess.ID,
			"error", err)
		data = nil
	}
	s.manager.Detach(sess.ID, data)
	s.removeSession(sess.ID)
	s.metrics.RecordSessionClosed()
}

// GenerateCSRFToken mints a handshake token: a random nonce plus an
// HMAC-SHA256 over it keyed with the configured secret. The page handler
// embeds the token client-side and mirrors it in the double-submit cookie.
func (s *Server) GenerateCSRFToken() (string, error) {
	if len(s.config.CSRFSecret) == 0 {
		return "", errors.New("server: csrf secret not configured")
	}
	nonce := make([]byte, csrfNonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, s.config.CSRFSecret)
	mac.Write(nonce)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nonce)), nil
}

// SetCSRFCookie attaches the double-submit cookie to a page response.
func (s *Server) SetCSRFCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   strings.HasSuffix(s.config.Address, ":443"),
	})
}

// validateCSRF checks the hello token against the double-submit cookie and
// verifies its HMAC.
func (s *Server) validateCSRF(r *http.Request, token string) bool {
	if token == "" {
		return false
	}
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil || cookie.Value != token {
		return false
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != csrfNonceLen+sha256.Size {
		return false
	}
	mac := hmac.New(sha256.New, s.config.CSRFSecret)
	mac.Write(raw[:csrfNonceLen])
	return hmac.Equal(raw[csrfNonceLen:], mac.Sum(nil))
}

// Run listens on the configured address and blocks until the listener
// fails or the process receives SIGINT or SIGTERM, then shuts down
// gracefully.
func (s *Server) Run() error {
	if s.closed.Load() {
		return ErrServerClosed
	}

	httpSrv := &http.Server{
		Addr:              s.config.Address,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = httpSrv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "address", s.config.Address)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case err := <-errCh:
		return err
	case received := <-sig:
		s.logger.Info("shutting down", "signal", received.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown closes every session with a going-away notice, flushes detached
// snapshots through the state manager, and stops the HTTP listener. Safe
// to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}

	sessions := s.Sessions()
	s.logger.Info("closing sessions", "count", len(sessions))
	for _, sess := range sessions {
		sess.SendClose(protocol.CloseServerShutdown, "server shutting down")
		sess.Close()
	}

	mgrErr := s.manager.Shutdown(ctx)

	s.mu.RLock()
	httpSrv := s.httpServer
	s.mu.RUnlock()

	var httpErr error
	if httpSrv != nil {
		httpErr = httpSrv.Shutdown(ctx)
	}

	if mgrErr != nil {
		return mgrErr
	}
	return httpErr
}
