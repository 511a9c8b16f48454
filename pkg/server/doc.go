// Package server hosts review sessions over WebSocket.
//
// The server package is the integration layer of the review shell: it binds
// the route table (pkg/router), the persistent slot registry (pkg/slot), the
// binary wire protocol (pkg/protocol), and session state persistence
// (pkg/state) into a running service.
//
// # Architecture
//
//   - Session: per-connection container owning a slot registry, the current
//     navigation path, sequence counters, and a patch history ring
//   - Navigator: the canonicalize -> resolve -> mount -> apply pipeline that
//     turns a requested path into visibility patches
//   - Server: WebSocket endpoint with handshake, resume, per-IP limits, and
//     graceful shutdown
//   - MetricsCollector: atomic counters exposed via Snapshot
//
// # Session Lifecycle
//
// A fresh handshake constructs a Session, mounts every declared slot once,
// and navigates to the handshake path. The session then runs three
// goroutines:
//
//   - ReadLoop: receives frames, decodes events, queues them
//   - EventLoop: processes events one at a time, producing patches
//   - WriteLoop: sends heartbeat pings and enforces the idle timeout
//
// Because the event loop is the sole writer of view state, views never need
// their own locking.
//
// On disconnect the session's slot state is captured into a snapshot and
// handed to the state manager. A client reconnecting within the resume
// window gets its session back: either live (connection swap plus patch
// replay) or rebuilt from the snapshot. Mounted views survive navigation in
// both directions; hiding a slot never tears its view down.
//
// # Event Processing
//
// Navigation events are handled by the session itself through the Navigator.
// All other event types dispatch through handlers registered with
// Server.HandleEvent, so domain packages (lineage, query) stay out of the
// transport layer. Handler panics are recovered and logged; the session
// survives.
package server
