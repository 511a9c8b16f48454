// Package state persists and manages detached review sessions.
//
// A connected session lives entirely in memory: its slot registry holds
// the mounted lineage and query views, and no snapshot exists. When the
// client disconnects, the session is detached: the view state of every
// snapshot-capable slot is captured into a Snapshot, serialized, and
// handed to the Manager. If the client reconnects within the resume
// window the snapshot is restored into a fresh registry and the review
// continues where it left off.
//
// # Snapshot Storage
//
// The Store interface defines the contract for snapshot persistence:
//
//	store := state.NewSQLStore(db, state.WithSQLDialect(state.DialectSQLite))
//	// or
//	store := state.NewS3Store(s3Client, "recce-snapshots")
//	// or (default)
//	store := state.NewMemoryStore()
//
// # Snapshots
//
// A Snapshot carries per-slot view state keyed by slot name:
//
//	snap := state.NewSnapshot(sessionID, currentPath)
//	if err := snap.Capture(registry); err != nil { ... }
//	data, err := state.EncodeSnapshot(snap)
//
// # Memory Protection
//
// The Manager bounds how many detached sessions the server keeps and
// evicts according to the configured policy:
//
//	manager := state.NewManager(store, state.DefaultManagerConfig(), logger)
//	manager.Detach(sessionID, data)
//	sess, data, err := manager.Resume(sessionID)
package state
