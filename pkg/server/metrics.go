package server

import "sync/atomic"

// MetricsCollector accumulates server counters. All methods are safe for
// concurrent use; counters are plain atomics so the hot paths stay cheap.
type MetricsCollector struct {
	sessionsCreated atomic.Int64
	sessionsResumed atomic.Int64
	sessionsClosed  atomic.Int64
	activeSessions  atomic.Int64

	navigations      atomic.Int64
	unmatchedRoutes  atomic.Int64
	navigationErrors atomic.Int64

	slotMounts       atomic.Int64
	slotInitFailures atomic.Int64

	eventsReceived atomic.Int64
	eventsDropped  atomic.Int64

	patchFrames atomic.Int64
	patchCount  atomic.Int64

	bytesSent     atomic.Int64
	bytesReceived atomic.Int64

	handlerPanics atomic.Int64
	readErrors    atomic.Int64
	writeErrors   atomic.Int64
}

// NewMetricsCollector creates a zeroed collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

func (m *MetricsCollector) RecordSessionCreated() {
	m.sessionsCreated.Add(1)
	m.activeSessions.Add(1)
}

// RecordSessionResumed counts a successful resume. A rebuilt resume brings
// back a session that was already counted closed, so it rejoins the active
// gauge; a live connection swap was never closed and must not.
func (m *MetricsCollector) RecordSessionResumed(rebuilt bool) {
	m.sessionsResumed.Add(1)
	if rebuilt {
		m.activeSessions.Add(1)
	}
}

func (m *MetricsCollector) RecordSessionClosed() {
	m.sessionsClosed.Add(1)
	m.activeSessions.Add(-1)
}

// RecordNavigation counts one completed navigation. Unmatched paths are
// normal outcomes and tracked separately from errors.
func (m *MetricsCollector) RecordNavigation(matched bool) {
	m.navigations.Add(1)
	if !matched {
		m.unmatchedRoutes.Add(1)
	}
}

func (m *MetricsCollector) RecordNavigationError() {
	m.navigationErrors.Add(1)
}

func (m *MetricsCollector) RecordSlotMount() {
	m.slotMounts.Add(1)
}

func (m *MetricsCollector) RecordSlotInitFailure() {
	m.slotInitFailures.Add(1)
}

func (m *MetricsCollector) RecordEventReceived() {
	m.eventsReceived.Add(1)
}

func (m *MetricsCollector) RecordEventDropped() {
	m.eventsDropped.Add(1)
}

// RecordPatchesSent counts one patch frame carrying n patches.
func (m *MetricsCollector) RecordPatchesSent(n int) {
	m.patchFrames.Add(1)
	m.patchCount.Add(int64(n))
}

func (m *MetricsCollector) RecordBytesSent(n int) {
	m.bytesSent.Add(int64(n))
}

func (m *MetricsCollector) RecordBytesReceived(n int) {
	m.bytesReceived.Add(int64(n))
}

func (m *MetricsCollector) RecordHandlerPanic() {
	m.handlerPanics.Add(1)
}

func (m *MetricsCollector) RecordReadError() {
	m.readErrors.Add(1)
}

func (m *MetricsCollector) RecordWriteError() {
	m.writeErrors.Add(1)
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	SessionsCreated int64 `json:"sessions_created"`
	SessionsResumed int64 `json:"sessions_resumed"`
	SessionsClosed  int64 `json:"sessions_closed"`
	ActiveSessions  int64 `json:"active_sessions"`

	Navigations      int64 `json:"navigations"`
	UnmatchedRoutes  int64 `json:"unmatched_routes"`
	NavigationErrors int64 `json:"navigation_errors"`

	SlotMounts       int64 `json:"slot_mounts"`
	SlotInitFailures int64 `json:"slot_init_failures"`

	EventsReceived int64 `json:"events_received"`
	EventsDropped  int64 `json:"events_dropped"`

	PatchFrames int64 `json:"patch_frames"`
	PatchCount  int64 `json:"patch_count"`

	BytesSent     int64 `json:"bytes_sent"`
	BytesReceived int64 `json:"bytes_received"`

	HandlerPanics int64 `json:"handler_panics"`
	ReadErrors    int64 `json:"read_errors"`
	WriteErrors   int64 `json:"write_errors"`
}

// Snapshot returns a copy of the current counter values.
func (m *MetricsCollector) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		SessionsCreated:  m.sessionsCreated.Load(),
		SessionsResumed:  m.sessionsResumed.Load(),
		SessionsClosed:   m.sessionsClosed.Load(),
		ActiveSessions:   m.activeSessions.Load(),
		Navigations:      m.navigations.Load(),
		UnmatchedRoutes:  m.unmatchedRoutes.Load(),
		NavigationErrors: m.navigationErrors.Load(),
		SlotMounts:       m.slotMounts.Load(),
		SlotInitFailures: m.slotInitFailures.Load(),
		EventsReceived:   m.eventsReceived.Load(),
		EventsDropped:    m.eventsDropped.Load(),
		PatchFrames:      m.patchFrames.Load(),
		PatchCount:       m.patchCount.Load(),
		BytesSent:        m.bytesSent.Load(),
		BytesReceived:    m.bytesReceived.Load(),
		HandlerPanics:    m.handlerPanics.Load(),
		ReadErrors:       m.readErrors.Load(),
		WriteErrors:      m.writeErrors.Load(),
	}
}

// Reset zeroes all counters. Intended for tests.
func (m *MetricsCollector) Reset() {
	m.sessionsCreated.Store(0)
	m.sessionsResumed.Store(0)
	m.sessionsClosed.Store(0)
	m.activeSessions.Store(0)
	m.navigations.Store(0)
	m.unmatchedRoutes.Store(0)
	m.navigationErrors.Store(0)
	m.slotMounts.Store(0)
	m.slotInitFailures.Store(0)
	m.eventsReceived.Store(0)
	m.eventsDropped.Store(0)
	m.patchFrames.Store(0)
	m.patchCount.Store(0)
	m.bytesSent.Store(0)
	m.bytesReceived.Store(0)
	m.handlerPanics.Store(0)
	m.readErrors.Store(0)
	m.writeErrors.Store(0)
}
