// Package recce is a server-driven shell for reviewing dbt data-lineage
// changes.
//
// The shell keeps its expensive views (the lineage graph, the query
// scratchpad) mounted for the whole session: navigating away hides a view,
// it never unmounts it, so graph layout, pan/zoom, selections, and cached
// query results survive any navigation sequence. The mechanism lives in
// pkg/slot; this package wires it into a runnable application.
//
// Usage:
//
//	app, err := recce.New(recce.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(app.Run())
//
// The zero Config serves the demo lineage graph and an empty query
// scratchpad on :8080. Applications with their own views declare slots:
//
//	app, err := recce.New(recce.Config{
//	    Slots: []recce.Declaration{
//	        {Name: "lineage", Route: "/lineage", Build: buildLineage},
//	    },
//	})
package recce

import (
	"github.com/DataRecce/recce-sub014/pkg/router"
	"github.com/DataRecce/recce-sub014/pkg/server"
	"github.com/DataRecce/recce-sub014/pkg/slot"
	"github.com/DataRecce/recce-sub014/pkg/state"
)

// Core slot types, re-exported so applications only import recce.
type (
	// View is the contract a slot-hosted view implements.
	View = slot.View

	// Declaration binds a slot name to its route and view constructor.
	Declaration = slot.Declaration

	// Handle is the stable identity of a mounted slot.
	Handle = slot.Handle

	// VisibilityState maps slot names to their presented flag.
	VisibilityState = slot.VisibilityState

	// Match is the outcome of resolving one path.
	Match = router.Match

	// NavigateResult is the outcome of one navigation.
	NavigateResult = server.NavigateResult

	// Middleware decorates the navigation pipeline.
	Middleware = server.Middleware

	// Session is one connected browser tab.
	Session = server.Session

	// Store persists detached session snapshots.
	Store = state.Store
)

// Snapshot store constructors, re-exported for serve wiring.
var (
	NewMemoryStore = state.NewMemoryStore
	NewSQLStore    = state.NewSQLStore
	NewS3Store     = state.NewS3Store
)
