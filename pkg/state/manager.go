package state

import (
	"container/list"
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// Manager tracks live and detached sessions and bounds the memory they
// hold. Detached sessions keep their serialized snapshot in memory for
// fast resume and are mirrored to the Store so a snapshot survives both
// eviction and server restart.
type Manager struct {
	mu sync.RWMutex

	// All sessions by ID
	sessions map[string]*ManagedSession

	// Detached sessions in LRU order (front = most recently accessed)
	detachedQueue *list.List
	detachedIndex map[string]*list.Element

	// Session count per IP address
	sessionsByIP map[string]int

	config ManagerConfig
	store  Store
	logger *slog.Logger

	// Random source (for EvictionRandom); overrideable for tests.
	randIntN func(n int) int

	done    chan struct{}
	stopped bool
}

// ManagedSession wraps a review session with lifecycle metadata.
type ManagedSession struct {
	// ID is the unique session identifier.
	ID string

	// IP is the client IP address for per-IP limiting.
	IP string

	// CreatedAt is when the session was created.
	CreatedAt time.Time

	// LastActive is when the session was last accessed.
	LastActive time.Time

	// DetachedAt is when the client disconnected (zero while connected).
	DetachedAt time.Time

	// Snapshot is the serialized session snapshot (set while detached).
	Snapshot []byte

	// Connected indicates whether the client has an active WebSocket.
	Connected bool

	// Path is the navigation path at detach time.
	Path string
}

// ManagerConfig configures the session manager.
type ManagerConfig struct {
	// MaxDetachedSessions is the maximum number of detached sessions
	// held in memory before eviction kicks in. Default: 10000.
	MaxDetachedSessions int

	// MaxSessionsPerIP is the maximum number of active sessions per IP
	// address. Default: 100.
	MaxSessionsPerIP int

	// ResumeWindow is how long a detached session remains resumable.
	// Default: 5 minutes.
	ResumeWindow time.Duration

	// CleanupInterval is how often expired detached sessions are
	// collected. Default: 1 minute.
	CleanupInterval time.Duration

	// EvictionPolicy determines which detached sessions are evicted
	// when MaxDetachedSessions is exceeded. Default: EvictionLRU.
	EvictionPolicy EvictionPolicy
}

// EvictionPolicy determines which detached sessions are evicted first.
type EvictionPolicy int

const (
	// EvictionLRU evicts the least recently accessed sessions first.
	EvictionLRU EvictionPolicy = iota

	// EvictionOldest evicts the oldest sessions first (by creation time).
	EvictionOldest

	// EvictionRandom evicts sessions randomly (faster but less fair).
	EvictionRandom
)

// DefaultManagerConfig returns a ManagerConfig with sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxDetachedSessions: 10000,
		MaxSessionsPerIP:    100,
		ResumeWindow:        5 * time.Minute,
		CleanupInterval:     time.Minute,
		EvictionPolicy:      EvictionLRU,
	}
}

// Error values for session lifecycle management.
var (
	// ErrTooManySessionsFromIP is returned when the per-IP session limit is exceeded.
	ErrTooManySessionsFromIP = errors.New("state: too many sessions from this IP address")

	// ErrSessionExpired is returned when resuming a session whose resume window has passed.
	ErrSessionExpired = errors.New("state: session has expired")

	// ErrSessionNotFound is returned when a session doesn't exist.
	ErrSessionNotFound = errors.New("state: session not found")

	// ErrManagerStopped is returned when operations are attempted on a stopped manager.
	ErrManagerStopped = errors.New("state: session manager is stopped")
)

// NewManager creates a session manager backed by the given store. A nil
// store disables persistence; detached sessions then live only in memory.
func NewManager(store Store, config ManagerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}

	m := &Manager{
		sessions:      make(map[string]*ManagedSession),
		detachedQueue: list.New(),
		detachedIndex: make(map[string]*list.Element),
		sessionsByIP:  make(map[string]int),
		config:        config,
		store:         store,
		logger:        logger.With("component", "state-manager"),
		randIntN:      rand.IntN,
		done:          make(chan struct{}),
	}

	go m.cleanupLoop()

	return m
}

// CheckIPLimit verifies that the IP hasn't exceeded its session limit.
// Call before creating a new session.
func (m *Manager) CheckIPLimit(ip string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.stopped {
		return ErrManagerStopped
	}

	if m.config.MaxSessionsPerIP > 0 && m.sessionsByIP[ip] >= m.config.MaxSessionsPerIP {
		return ErrTooManySessionsFromIP
	}
	return nil
}

// Register adds a new session to the manager and marks it connected.
func (m *Manager) Register(sess *ManagedSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrManagerStopped
	}

	if m.config.MaxSessionsPerIP > 0 && m.sessionsByIP[sess.IP] >= m.config.MaxSessionsPerIP {
		return ErrTooManySessionsFromIP
	}

	m.sessions[sess.ID] = sess
	m.sessionsByIP[sess.IP]++
	sess.Connected = true
	sess.LastActive = time.Now()

	m.logger.Debug("session registered",
		"session_id", sess.ID,
		"ip", sess.IP,
		"ip_session_count", m.sessionsByIP[sess.IP])

	return nil
}

// Detach handles a client disconnect. The session keeps its snapshot in
// memory and can be resumed within ResumeWindow; the snapshot is also
// written to the store in the background.
func (m *Manager) Detach(sessionID string, snapshot []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, exists := m.sessions[sessionID]
	if !exists || m.stopped {
		return
	}

	now := time.Now()
	sess.Connected = false
	sess.DetachedAt = now
	sess.Snapshot = snapshot

	// Keep at most one queue entry per session.
	if elem, ok := m.detachedIndex[sessionID]; ok {
		m.detachedQueue.Remove(elem)
		delete(m.detachedIndex, sessionID)
	}

	elem := m.detachedQueue.PushFront(sessionID)
	m.detachedIndex[sessionID] = elem

	for m.detachedQueue.Len() > m.config.MaxDetachedSessions {
		m.evictOneLocked()
	}

	if m.store != nil && len(snapshot) > 0 {
		expiresAt := now.Add(m.config.ResumeWindow)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.store.Save(ctx, sessionID, snapshot, expiresAt); err != nil {
				m.logger.Warn("failed to persist detached session",
					"session_id", sessionID,
					"error", err)
			}
		}()
	}

	m.logger.Debug("session detached",
		"session_id", sessionID,
		"detached_count", m.detachedQueue.Len())
}

// Resume restores a detached session after reconnect. Returns the
// session and its snapshot bytes. If the session was evicted from
// memory but persisted, the session is nil and the snapshot comes from
// the store; the caller rebuilds the session around it.
func (m *Manager) Resume(sessionID string) (*ManagedSession, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, nil, ErrManagerStopped
	}

	sess, exists := m.sessions[sessionID]
	if !exists {
		if m.store != nil {
			data, err := m.store.Load(context.Background(), sessionID)
			if err != nil {
				return nil, nil, err
			}
			if data != nil {
				return nil, data, nil
			}
		}
		return nil, nil, ErrSessionNotFound
	}

	if !sess.DetachedAt.IsZero() {
		if time.Since(sess.DetachedAt) > m.config.ResumeWindow {
			m.removeSessionLocked(sessionID)
			return nil, nil, ErrSessionExpired
		}
	}

	if elem, ok := m.detachedIndex[sessionID]; ok {
		m.detachedQueue.Remove(elem)
		delete(m.detachedIndex, sessionID)
	}

	sess.Connected = true
	sess.DetachedAt = time.Time{}
	sess.LastActive = time.Now()
	snapshot := sess.Snapshot
	sess.Snapshot = nil

	m.logger.Debug("session resumed",
		"session_id", sessionID,
		"detached_count", m.detachedQueue.Len())

	return sess, snapshot, nil
}

// Get retrieves a session by ID.
func (m *Manager) Get(sessionID string) *ManagedSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[sessionID]
}

// Touch updates the last active time for a session.
func (m *Manager) Touch(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, exists := m.sessions[sessionID]; exists {
		sess.LastActive = time.Now()

		if elem, ok := m.detachedIndex[sessionID]; ok {
			m.detachedQueue.MoveToFront(elem)
		}
	}
}

// Remove removes a session from the manager. Called on explicit close
// or session termination.
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeSessionLocked(sessionID)
}

// removeSessionLocked removes a session (must be called with lock held).
func (m *Manager) removeSessionLocked(sessionID string) {
	sess, exists := m.sessions[sessionID]
	if !exists {
		return
	}

	delete(m.sessions, sessionID)
	m.sessionsByIP[sess.IP]--
	if m.sessionsByIP[sess.IP] <= 0 {
		delete(m.sessionsByIP, sess.IP)
	}

	if elem, ok := m.detachedIndex[sessionID]; ok {
		m.detachedQueue.Remove(elem)
		delete(m.detachedIndex, sessionID)
	}

	if m.store != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			m.store.Delete(ctx, sessionID)
		}()
	}

	m.logger.Debug("session removed",
		"session_id", sessionID,
		"remaining", len(m.sessions))
}

// evictOneLocked evicts one detached session according to the configured
// EvictionPolicy (must be called with lock held).
func (m *Manager) evictOneLocked() {
	if m.detachedQueue.Len() == 0 {
		return
	}

	var sessionID string

	switch m.config.EvictionPolicy {
	case EvictionLRU:
		// Least recently used detached session is at the back.
		if back := m.detachedQueue.Back(); back != nil {
			sessionID = back.Value.(string)
		}
	case EvictionOldest:
		// Oldest by creation time among detached sessions.
		var oldestID string
		var oldestTime time.Time
		found := false

		for e := m.detachedQueue.Front(); e != nil; e = e.Next() {
			id := e.Value.(string)
			sess := m.sessions[id]
			if sess == nil {
				continue
			}
			if !found || sess.CreatedAt.Before(oldestTime) {
				found = true
				oldestID = id
				oldestTime = sess.CreatedAt
			}
		}

		if found {
			sessionID = oldestID
		} else if back := m.detachedQueue.Back(); back != nil {
			sessionID = back.Value.(string)
		}
	case EvictionRandom:
		// Random detached session; deterministic in tests via randIntN override.
		n := m.detachedQueue.Len()
		if n == 0 {
			return
		}

		intn := m.randIntN
		if intn == nil {
			intn = rand.IntN
		}

		idx := intn(n)
		if idx < 0 {
			idx = 0
		} else if idx >= n {
			idx = n - 1
		}

		e := m.detachedQueue.Front()
		for i := 0; i < idx && e != nil; i++ {
			e = e.Next()
		}
		if e == nil {
			e = m.detachedQueue.Back()
		}
		if e != nil {
			sessionID = e.Value.(string)
		}
	default:
		// Fail-safe: treat unknown values as LRU.
		if back := m.detachedQueue.Back(); back != nil {
			sessionID = back.Value.(string)
		}
	}

	if sessionID == "" {
		return
	}

	sess := m.sessions[sessionID]

	// Persist before eviction so the snapshot survives in the store.
	if m.store != nil && sess != nil && len(sess.Snapshot) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		expiresAt := time.Now().Add(m.config.ResumeWindow)
		_ = m.store.Save(ctx, sessionID, sess.Snapshot, expiresAt)
		cancel()
	}

	m.removeSessionLocked(sessionID)

	m.logger.Debug("evicted session",
		"session_id", sessionID,
		"policy", m.config.EvictionPolicy,
		"reason", "detached_limit_exceeded")
}

// cleanupLoop periodically cleans up expired sessions.
func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupExpired()
		case <-m.done:
			return
		}
	}
}

// cleanupExpired removes sessions that have exceeded ResumeWindow.
func (m *Manager) cleanupExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}

	now := time.Now()
	var expired []string

	for id, sess := range m.sessions {
		// Connected sessions never expire.
		if sess.DetachedAt.IsZero() {
			continue
		}

		if now.Sub(sess.DetachedAt) > m.config.ResumeWindow {
			expired = append(expired, id)
		}
	}

	for _, id := range expired {
		m.removeSessionLocked(id)
	}

	if len(expired) > 0 {
		m.logger.Debug("cleaned up expired sessions",
			"count", len(expired),
			"remaining", len(m.sessions))
	}
}

// Shutdown gracefully shuts down the manager, flushing every detached
// session's snapshot to the store.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()

	if m.stopped {
		m.mu.Unlock()
		return nil
	}

	m.stopped = true
	close(m.done)

	snapshotsToSave := make(map[string]SnapshotData)
	for id, sess := range m.sessions {
		if len(sess.Snapshot) > 0 {
			snapshotsToSave[id] = SnapshotData{
				Data:      sess.Snapshot,
				ExpiresAt: time.Now().Add(m.config.ResumeWindow),
			}
		}
	}

	m.mu.Unlock()

	if m.store != nil && len(snapshotsToSave) > 0 {
		if err := m.store.SaveAll(ctx, snapshotsToSave); err != nil {
			m.logger.Warn("failed to persist sessions on shutdown",
				"error", err,
				"count", len(snapshotsToSave))
			return err
		}
		m.logger.Info("persisted sessions on shutdown",
			"count", len(snapshotsToSave))
	}

	return nil
}

// Stats returns manager statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	connected := 0
	for _, sess := range m.sessions {
		if sess.Connected {
			connected++
		}
	}

	return ManagerStats{
		Total:     len(m.sessions),
		Connected: connected,
		Detached:  m.detachedQueue.Len(),
		UniqueIPs: len(m.sessionsByIP),
	}
}

// ManagerStats contains session manager statistics.
type ManagerStats struct {
	// Total is the total number of sessions (connected + detached).
	Total int

	// Connected is the number of sessions with active WebSocket connections.
	Connected int

	// Detached is the number of sessions waiting for reconnection.
	Detached int

	// UniqueIPs is the number of unique client IP addresses.
	UniqueIPs int
}
