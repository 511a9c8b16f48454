package server

import (
	"log/slog"

	"github.com/DataRecce/recce-sub014/pkg/router"
	"github.com/DataRecce/recce-sub014/pkg/slot"
	"github.com/DataRecce/recce-sub014/pkg/vdom"
)

// RootHID is the hydration ID of the shell element that hosts every slot
// container. The shell page renders it as an empty div; slot subtrees are
// inserted beneath it on the first navigation.
const RootHID = "app"

// PathAttr is the attribute on the shell root that mirrors the current
// canonical path. The client syncs its address bar from it, which is how
// canonicalization rewrites (/lineage/ -> /lineage) reach the URL bar.
const PathAttr = "data-path"

// NavigateResult is the outcome of one pass through the navigation
// pipeline.
type NavigateResult struct {
	// Path is the canonical path after the navigation, including any
	// query string.
	Path string

	// Match is the route resolution outcome. An unmatched path is a
	// normal result, not an error: all slots hide and the shell shows
	// its not-found surface.
	Match router.Match

	// Visibility maps slot names to their visibility after this
	// navigation.
	Visibility slot.VisibilityState

	// Patches are the DOM updates the client needs to reflect the
	// navigation.
	Patches []vdom.Patch

	// Suggestion is the closest bound pattern when the path looks like a
	// typo of a known route. Empty when matched or nothing is close.
	Suggestion string

	// Err is set when the navigation could not complete cleanly: the
	// path failed canonicalization, or a slot view failed to initialize.
	// For slot failures the rest of the result is still valid and the
	// failed slot will be retried on the next navigation.
	Err error
}

// NavigateFunc runs one navigation to the given client-supplied path.
type NavigateFunc func(path string) *NavigateResult

// Middleware decorates the navigation pipeline. Middleware runs on the
// session's event loop, so implementations must not block.
type Middleware func(next NavigateFunc) NavigateFunc

// Navigator owns one session's navigation pipeline:
//
//	canonicalize -> resolve -> ensure mounts -> apply visibility
//
// Slot views are constructed on the first navigation that needs them and
// then kept for the session's lifetime; later navigations only flip
// visibility. A constructor that fails is retried on every subsequent
// navigation until it succeeds.
//
// A Navigator is owned by a single event loop and is not safe for
// concurrent use.
type Navigator struct {
	router  *router.Router
	decls   []slot.Declaration
	reg     *slot.Registry
	logger  *slog.Logger
	metrics *MetricsCollector

	chain NavigateFunc

	path      string
	visible   slot.VisibilityState
	delivered bool
}

// NewNavigator creates a navigator over the given route table and slot
// declarations. Middleware wraps the pipeline outermost-first.
func NewNavigator(r *router.Router, decls []slot.Declaration, reg *slot.Registry, logger *slog.Logger, metrics *MetricsCollector, mw ...Middleware) *Navigator {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetricsCollector()
	}
	n := &Navigator{
		router:  r,
		decls:   decls,
		reg:     reg,
		logger:  logger.With("component", "navigator"),
		metrics: metrics,
	}
	n.chain = n.navigate
	for i := len(mw) - 1; i >= 0; i-- {
		n.chain = mw[i](n.chain)
	}
	return n
}

// Navigate runs the middleware-wrapped pipeline for path.
func (n *Navigator) Navigate(path string) *NavigateResult {
	return n.chain(path)
}

// Path returns the current canonical path, or "" before the first
// successful navigation.
func (n *Navigator) Path() string {
	return n.path
}

// Visibility returns the current slot visibility state.
func (n *Navigator) Visibility() slot.VisibilityState {
	return n.visible
}

// Registry returns the slot registry the navigator mounts into.
func (n *Navigator) Registry() *slot.Registry {
	return n.reg
}

// MarkDelivered records that the client has received a render containing
// the containers mounted so far. From then on, every container mounted by
// a later navigation is delivered as an explicit insert in the navigate
// result; before this point the initial render already carries it.
func (n *Navigator) MarkDelivered() {
	n.delivered = true
}

// navigate is the terminal pipeline stage.
func (n *Navigator) navigate(rawPath string) *NavigateResult {
	res := &NavigateResult{}

	canonical, err := router.CanonicalizeNavPath(rawPath)
	if err != nil {
		n.metrics.RecordNavigationError()
		n.logger.Warn("navigation path rejected",
			"path", rawPath,
			"error", err)
		res.Path = n.path
		res.Visibility = n.visible
		res.Err = err
		return res
	}
	res.Path = canonical

	pathOnly, _ := router.SplitPathAndQuery(canonical)
	res.Match = n.router.Resolve(pathOnly)

	// Mount failures do not abort the navigation: the remaining slots
	// still update, and the failed constructor runs again next time.
	mounted, mountErr := n.ensureMounted()
	res.Err = mountErr

	res.Visibility, res.Patches = slot.Apply(res.Match, n.reg)

	// Containers mounted after the client already holds a render do not
	// exist in its tree yet, so visibility patches alone would target
	// nothing. Insert them first, rendered in their post-Apply state.
	if n.delivered && len(mounted) > 0 {
		res.Patches = append(n.insertPatches(mounted), res.Patches...)
	}

	if canonical != n.path {
		res.Patches = append(res.Patches, vdom.NewSetAttrPatch(RootHID, PathAttr, canonical))
	}
	n.path = canonical
	n.visible = res.Visibility

	if !res.Match.Matched {
		if pattern, ok := n.router.Suggest(pathOnly); ok {
			res.Suggestion = pattern
		}
	}

	n.metrics.RecordNavigation(res.Match.Matched)
	n.logger.Debug("navigated",
		"path", canonical,
		"matched", res.Match.Matched,
		"slot", res.Match.Slot,
		"patches", len(res.Patches))
	return res
}

// ensureMounted registers every declared slot that is not mounted yet.
// It returns the handles mounted in this pass and the first mount
// failure, if any.
func (n *Navigator) ensureMounted() ([]*slot.Handle, error) {
	var mounted []*slot.Handle
	var firstErr error
	for _, d := range n.decls {
		if _, ok := n.reg.Handle(d.Name); ok {
			continue
		}
		h, err := n.reg.Register(d.Name, d.Build)
		if err != nil {
			n.metrics.RecordSlotInitFailure()
			n.logger.Error("slot mount failed",
				"slot", d.Name,
				"error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		mounted = append(mounted, h)
		n.metrics.RecordSlotMount()
	}
	return mounted, firstErr
}

// insertPatches builds container inserts for late-mounted slots. The
// insert position is the handle's place in name order, so the client's
// child list ends up matching a fresh initial render.
func (n *Navigator) insertPatches(mounted []*slot.Handle) []vdom.Patch {
	handles := n.reg.Handles()
	index := make(map[string]int, len(handles))
	for i, h := range handles {
		index[h.Name()] = i
	}
	patches := make([]vdom.Patch, 0, len(mounted))
	for _, h := range mounted {
		patches = append(patches, vdom.NewInsertNodePatch(RootHID, index[h.Name()], h.Render()))
	}
	return patches
}
