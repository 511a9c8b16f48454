package rtest

import (
	"context"
	"time"

	"github.com/DataRecce/recce-sub014/pkg/state"
)

// shellSessionID identifies the shell's pseudo-session in snapshots and
// stores.
const shellSessionID = "rtest-shell"

// Snapshot captures the shell's current path and view state, the way the
// server does when a session detaches.
func (sh *Shell) Snapshot() *state.Snapshot {
	sh.tb.Helper()
	snap := state.NewSnapshot(shellSessionID, sh.navigator.Path())
	if err := snap.Capture(sh.registry); err != nil {
		sh.tb.Fatalf("rtest: capture snapshot: %v", err)
	}
	return snap
}

// Restore applies a snapshot's view state to the currently mounted slots.
func (sh *Shell) Restore(snap *state.Snapshot) {
	sh.tb.Helper()
	if err := snap.Restore(sh.registry); err != nil {
		sh.tb.Fatalf("rtest: restore snapshot: %v", err)
	}
}

// SimulateReload tears the shell down and rebuilds it from a snapshot,
// following the same path the server takes when a client reconnects after
// its session was detached: snapshot, encode, fresh registry, remount at
// the captured path, then restore.
//
// View instances are fresh afterwards. Only state the views expose for
// snapshotting survives.
func (sh *Shell) SimulateReload() {
	sh.tb.Helper()

	snap := sh.Snapshot()
	data, err := state.EncodeSnapshot(snap)
	if err != nil {
		sh.tb.Fatalf("rtest: encode snapshot: %v", err)
	}
	decoded, err := state.DecodeSnapshot(data)
	if err != nil {
		sh.tb.Fatalf("rtest: decode snapshot: %v", err)
	}

	sh.rebuild()
	if decoded.Path != "" {
		if res := sh.navigator.Navigate(decoded.Path); res.Err != nil {
			sh.tb.Fatalf("rtest: remount at %q: %v", decoded.Path, res.Err)
		}
	}
	sh.Restore(decoded)
}

// SimulateRestart persists the shell's snapshot to store, rebuilds from
// scratch, and restores from what the store returns. Use it to exercise a
// store implementation end to end; SimulateReload covers the common case
// without one.
func (sh *Shell) SimulateRestart(store state.Store) {
	sh.tb.Helper()

	ctx := context.Background()
	snap := sh.Snapshot()
	data, err := state.EncodeSnapshot(snap)
	if err != nil {
		sh.tb.Fatalf("rtest: encode snapshot: %v", err)
	}
	if err := store.Save(ctx, shellSessionID, data, time.Now().Add(time.Hour)); err != nil {
		sh.tb.Fatalf("rtest: save snapshot: %v", err)
	}

	loaded, err := store.Load(ctx, shellSessionID)
	if err != nil {
		sh.tb.Fatalf("rtest: load snapshot: %v", err)
	}
	if loaded == nil {
		sh.tb.Fatal("rtest: snapshot missing from store after save")
	}
	decoded, err := state.DecodeSnapshot(loaded)
	if err != nil {
		sh.tb.Fatalf("rtest: decode stored snapshot: %v", err)
	}

	sh.rebuild()
	if decoded.Path != "" {
		if res := sh.navigator.Navigate(decoded.Path); res.Err != nil {
			sh.tb.Fatalf("rtest: remount at %q: %v", decoded.Path, res.Err)
		}
	}
	sh.Restore(decoded)
}
