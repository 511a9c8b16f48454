package server

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DataRecce/recce-sub014/pkg/protocol"
	"github.com/DataRecce/recce-sub014/pkg/slot"
	"github.com/DataRecce/recce-sub014/pkg/vdom"
)

// dispatchQueueSize is the capacity of the dispatch channel used to run
// callbacks on the event loop from other goroutines.
const dispatchQueueSize = 256

// EventHandler processes one typed client event on the session's event
// loop. Returned patches are sent to the client; a returned error becomes a
// non-fatal protocol error frame. Handlers may touch slot views freely: the
// event loop is the only goroutine that runs them.
type EventHandler func(s *Session, ev *protocol.Event) ([]vdom.Patch, error)

// Session is the server half of one client connection. It owns the slot
// registry holding the mounted views, the navigator that flips their
// visibility, and the patch history used for resume replay.
//
// A session outlives its WebSocket: on disconnect its state is snapshotted
// and kept resumable for the configured window.
type Session struct {
	// ID is the session identifier, a 128-bit random hex string.
	ID string

	// IP is the client address the session was created from.
	IP string

	// CreatedAt is when the session was created.
	CreatedAt time.Time

	lastActive atomic.Int64 // unix nanos of the last inbound frame
	lastEvent  atomic.Int64 // unix nanos of the last application event

	// mu guards conn writes and the conn swap on resume.
	mu   sync.Mutex
	conn *websocket.Conn

	closed atomic.Bool

	sendSeq atomic.Uint64 // last patch frame sequence sent
	recvSeq atomic.Uint64 // last event sequence received
	ackSeq  atomic.Uint64 // last patch sequence the client acknowledged

	registry  *slot.Registry
	navigator *Navigator
	history   *PatchHistory

	events     chan *protocol.Event
	dispatchCh chan func()
	done       chan struct{}

	handlers map[protocol.EventType]EventHandler

	config  *SessionConfig
	logger  *slog.Logger
	metrics *MetricsCollector

	// onClose runs exactly once while the session shuts down, before the
	// final connection teardown. The server hooks session detach here.
	onClose func(*Session)

	data   map[string]any
	dataMu sync.RWMutex

	eventLoopRunning atomic.Bool

	eventsProcessed atomic.Uint64
	patchFrames     atomic.Uint64
	patchesSent     atomic.Uint64
	bytesSent       atomic.Uint64
	bytesReceived   atomic.Uint64
}

// generateSessionID returns a 128-bit random identifier in hex.
func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("server: failed to read session id entropy: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// newSession creates a session around an accepted connection. The caller
// attaches a navigator and handlers before Start.
func newSession(conn *websocket.Conn, ip string, config *SessionConfig, logger *slog.Logger, metrics *MetricsCollector) *Session {
	return newSessionWithID(generateSessionID(), conn, ip, config, logger, metrics)
}

// newSessionWithID creates a session with a caller-chosen ID. Rebuilding a
// detached session from its snapshot uses this to keep the original identity
// the client reconnects with.
func newSessionWithID(id string, conn *websocket.Conn, ip string, config *SessionConfig, logger *slog.Logger, metrics *MetricsCollector) *Session {
	if config == nil {
		config = DefaultSessionConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetricsCollector()
	}

	s := &Session{
		ID:         id,
		IP:         ip,
		CreatedAt:  time.Now(),
		conn:       conn,
		history:    NewPatchHistory(config.MaxPatchHistory),
		events:     make(chan *protocol.Event, config.MaxEventQueue),
		dispatchCh: make(chan func(), dispatchQueueSize),
		done:       make(chan struct{}),
		config:     config,
		logger:     logger.With("session_id", id),
		metrics:    metrics,
		data:       make(map[string]any),
	}
	s.registry = slot.NewRegistry(s.logger)
	s.UpdateLastActive()
	s.lastEvent.Store(time.Now().UnixNano())
	return s
}

// NewMockSession creates a connection-less session for tests. It has a
// default config, an empty registry, and no navigator.
func NewMockSession() *Session {
	s := &Session{
		ID:         "test-session-id",
		CreatedAt:  time.Now(),
		history:    NewPatchHistory(16),
		events:     make(chan *protocol.Event, 256),
		dispatchCh: make(chan func(), dispatchQueueSize),
		done:       make(chan struct{}),
		config:     DefaultSessionConfig(),
		logger:     slog.Default().With("session_id", "test-session-id"),
		metrics:    NewMetricsCollector(),
		data:       make(map[string]any),
	}
	s.registry = slot.NewRegistry(s.logger)
	s.UpdateLastActive()
	s.lastEvent.Store(time.Now().UnixNano())
	return s
}

// Slots returns the session's slot registry.
func (s *Session) Slots() *slot.Registry {
	return s.registry
}

// Navigator returns the session's navigator, nil before attachment.
func (s *Session) Navigator() *Navigator {
	return s.navigator
}

// Path returns the current canonical path, or "" before the first
// navigation.
func (s *Session) Path() string {
	if s.navigator == nil {
		return ""
	}
	return s.navigator.Path()
}

// Visibility returns the current slot visibility state.
func (s *Session) Visibility() slot.VisibilityState {
	if s.navigator == nil {
		return nil
	}
	return s.navigator.Visibility()
}

// Navigate runs a navigation synchronously. It must only be called from
// the event loop or before the loops start.
func (s *Session) Navigate(path string) *NavigateResult {
	if s.navigator == nil {
		return &NavigateResult{Err: errors.New("server: session has no navigator")}
	}
	return s.navigator.Navigate(path)
}

// HandleEvent registers a handler for a typed event. Registration must
// happen before Start.
func (s *Session) HandleEvent(t protocol.EventType, h EventHandler) {
	if s.handlers == nil {
		s.handlers = make(map[protocol.EventType]EventHandler)
	}
	s.handlers[t] = h
}

// Get reads a value from the session data bag.
func (s *Session) Get(key string) (any, bool) {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Set stores a value in the session data bag.
func (s *Session) Set(key string, value any) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	s.data[key] = value
}

// Delete removes a value from the session data bag.
func (s *Session) Delete(key string) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	delete(s.data, key)
}

// UpdateLastActive records inbound traffic.
func (s *Session) UpdateLastActive() {
	s.lastActive.Store(time.Now().UnixNano())
}

// LastActive returns the time of the last inbound frame.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// markEvent records application-level activity, which is what the idle
// timeout measures. Heartbeats deliberately do not count.
func (s *Session) markEvent() {
	s.lastEvent.Store(time.Now().UnixNano())
}

// idleFor returns how long the session has gone without application
// events.
func (s *Session) idleFor() time.Duration {
	return time.Since(time.Unix(0, s.lastEvent.Load()))
}

// Closed reports whether the session has shut down.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// QueueEvent hands an event to the event loop without blocking. A full
// queue drops the event and returns ErrEventQueueFull.
func (s *Session) QueueEvent(ev *protocol.Event) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	select {
	case s.events <- ev:
		s.metrics.RecordEventReceived()
		return nil
	default:
		s.metrics.RecordEventDropped()
		return ErrEventQueueFull
	}
}

// Dispatch schedules fn on the event loop, where it may safely touch slot
// views. It never blocks; a saturated loop returns ErrEventQueueFull.
func (s *Session) Dispatch(fn func()) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	select {
	case s.dispatchCh <- fn:
		return nil
	default:
		return ErrEventQueueFull
	}
}

// handleEvent processes one event on the event loop.
func (s *Session) handleEvent(ev *protocol.Event) {
	s.markEvent()
	s.eventsProcessed.Add(1)
	if ev.Seq > s.recvSeq.Load() {
		s.recvSeq.Store(ev.Seq)
	}

	defer func() {
		if r := recover(); r != nil {
			perr := &HandlerPanicError{
				SessionID: s.ID,
				EventType: ev.Type,
				Recovered: r,
				Stack:     debug.Stack(),
			}
			s.metrics.RecordHandlerPanic()
			s.logger.Error("event handler panicked",
				"event_type", ev.Type.String(),
				"panic", r,
				"stack", string(perr.Stack))
			s.sendError(protocol.NewError(protocol.ErrServerError, "internal error"))
		}
	}()

	switch ev.Type {
	case protocol.EventNavigate:
		s.handleNavigate(ev)
	default:
		s.dispatchTyped(ev)
	}
}

// handleNavigate runs the navigation pipeline. The Replace flag only
// affects client-side history handling, so the server ignores it.
func (s *Session) handleNavigate(ev *protocol.Event) {
	data, ok := ev.Payload.(*protocol.NavigateEventData)
	if !ok {
		s.sendError(protocol.NewError(protocol.ErrInvalidEvent, "malformed navigate payload"))
		return
	}
	if s.navigator == nil {
		s.sendError(protocol.NewError(protocol.ErrServerError, "navigation unavailable"))
		return
	}

	res := s.navigator.Navigate(data.Path)
	if res.Err != nil {
		var initErr *slot.InitError
		switch {
		case errors.As(res.Err, &initErr):
			s.sendError(protocol.NewError(protocol.ErrSlotInit, res.Err.Error()))
		default:
			s.sendError(protocol.NewError(protocol.ErrValidation, res.Err.Error()))
		}
	}
	if len(res.Patches) > 0 {
		s.sendPatches(res.Patches)
	}
}

// dispatchTyped routes a non-navigation event to its registered handler.
// Events without a handler are dropped quietly; the client may be newer
// than the server.
func (s *Session) dispatchTyped(ev *protocol.Event) {
	h, ok := s.handlers[ev.Type]
	if !ok {
		s.logger.Debug("no handler for event", "event_type", ev.Type.String())
		return
	}

	patches, err := h(s, ev)
	if err != nil {
		var initErr *slot.InitError
		code := protocol.ErrServerError
		if errors.As(err, &initErr) {
			code = protocol.ErrSlotInit
		}
		s.logger.Warn("event handler failed",
			"event_type", ev.Type.String(),
			"error", err)
		s.sendError(protocol.NewError(code, err.Error()))
	}
	if len(patches) > 0 {
		s.sendPatches(patches)
	}
}

// executeDispatch runs a dispatched callback with panic recovery.
func (s *Session) executeDispatch(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordHandlerPanic()
			s.logger.Error("dispatch panicked",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

// initialPatches builds the inserts that create every mounted slot
// container beneath the shell root, plus the current-path attribute. Sent
// once after a fresh handshake.
func (s *Session) initialPatches() []vdom.Patch {
	handles := s.registry.Handles()
	patches := make([]vdom.Patch, 0, len(handles)+1)
	for i, h := range handles {
		patches = append(patches, vdom.NewInsertNodePatch(RootHID, i, h.Render()))
	}
	if p := s.Path(); p != "" {
		patches = append(patches, vdom.NewSetAttrPatch(RootHID, PathAttr, p))
	}
	return patches
}

// fullRenderPatches rebuilds every slot container in place. Used when a
// resumed client is too far behind for patch replay.
func (s *Session) fullRenderPatches() []vdom.Patch {
	handles := s.registry.Handles()
	patches := make([]vdom.Patch, 0, len(handles)+1)
	for _, h := range handles {
		patches = append(patches, vdom.NewReplaceNodePatch(h.ContainerHID(), h.Render()))
	}
	if p := s.Path(); p != "" {
		patches = append(patches, vdom.NewSetAttrPatch(RootHID, PathAttr, p))
	}
	return patches
}

// Close shuts the session down. Safe to call multiple times.
func (s *Session) Close() {
	s.closeInternal()
}

// closeInternal performs the actual shutdown once.
func (s *Session) closeInternal() {
	if s.closed.Swap(true) {
		return
	}

	select {
	case <-s.done:
	default:
		close(s.done)
	}

	if s.onClose != nil {
		s.onClose(s)
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	}

	s.logger.Info("session closed",
		"path", s.Path(),
		"events", s.eventsProcessed.Load(),
		"patch_frames", s.patchFrames.Load(),
		"bytes_sent", s.bytesSent.Load(),
		"bytes_received", s.bytesReceived.Load(),
		"age", time.Since(s.CreatedAt).Round(time.Millisecond).String())
}

// SessionStats is a point-in-time view of one session.
type SessionStats struct {
	ID              string    `json:"id"`
	IP              string    `json:"ip,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	LastActive      time.Time `json:"last_active"`
	Path            string    `json:"path"`
	MountedSlots    int       `json:"mounted_slots"`
	EventsProcessed uint64    `json:"events_processed"`
	PatchFrames     uint64    `json:"patch_frames"`
	PatchesSent     uint64    `json:"patches_sent"`
	BytesSent       uint64    `json:"bytes_sent"`
	BytesReceived   uint64    `json:"bytes_received"`
	SendSeq         uint64    `json:"send_seq"`
	AckSeq          uint64    `json:"ack_seq"`
}

// Stats returns a snapshot of the session's counters.
func (s *Session) Stats() SessionStats {
	return SessionStats{
		ID:              s.ID,
		IP:              s.IP,
		CreatedAt:       s.CreatedAt,
		LastActive:      s.LastActive(),
		Path:            s.Path(),
		MountedSlots:    s.registry.Len(),
		EventsProcessed: s.eventsProcessed.Load(),
		PatchFrames:     s.patchFrames.Load(),
		PatchesSent:     s.patchesSent.Load(),
		BytesSent:       s.bytesSent.Load(),
		BytesReceived:   s.bytesReceived.Load(),
		SendSeq:         s.sendSeq.Load(),
		AckSeq:          s.ackSeq.Load(),
	}
}
