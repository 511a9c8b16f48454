// Package slot implements persistent view slots, the mechanism that keeps
// expensive views alive across navigation.
//
// A slot is a named mount point for exactly one view instance. The first
// registration of a slot constructs its view; every later registration
// returns the same handle. Once mounted, a view is never torn down for the
// lifetime of the session: navigating away only hides it, so in-memory view
// state (graph layout, pan/zoom, selections, cached query results) survives.
//
// # Registry
//
// Registry maps slot names to mounted handles. Register is idempotent and
// all-or-nothing: a failing view constructor leaves the registry unchanged
// so the registration can be retried later. Handle is lookup-only.
//
// # Visibility
//
// Apply recomputes, for every registered slot, whether it is presented,
// given the route match for the current navigation. At most one slot is
// visible at a time; an unmatched route hides all slots but unmounts none.
// Visibility changes are realized as hidden-attribute patches, never as
// node removal.
//
// # Mount states
//
// Each handle moves through a three-state machine: Unmounted before first
// registration, then MountedHidden or MountedVisible forever after. There
// is no transition back to Unmounted while the session lives.
package slot
