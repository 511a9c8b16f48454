package rtest

import (
	"io"
	"log/slog"
	"testing"

	"github.com/DataRecce/recce-sub014/pkg/router"
	"github.com/DataRecce/recce-sub014/pkg/server"
	"github.com/DataRecce/recce-sub014/pkg/slot"
	"github.com/DataRecce/recce-sub014/pkg/vdom"
)

// Shell drives the navigation pipeline over a set of slot declarations the
// way one live session would: views are constructed on the first navigation
// that needs them, then kept and toggled for the shell's lifetime.
//
// A Shell is not safe for concurrent use; drive it from the test goroutine.
type Shell struct {
	tb    testing.TB
	decls []slot.Declaration
	mw    []server.Middleware

	router    *router.Router
	registry  *slot.Registry
	navigator *server.Navigator

	logger *slog.Logger
}

// Option configures a Shell.
type Option func(*Shell)

// WithMiddleware installs navigation middleware, outermost first.
func WithMiddleware(mw ...server.Middleware) Option {
	return func(sh *Shell) {
		sh.mw = append(sh.mw, mw...)
	}
}

// WithLogger routes pipeline logging somewhere visible. The default
// discards it.
func WithLogger(logger *slog.Logger) Option {
	return func(sh *Shell) {
		sh.logger = logger
	}
}

// NewShell builds a test shell over decls. Declaration problems (duplicate
// names, route conflicts, missing constructors) fail the test immediately,
// matching what server startup does with the same declarations.
func NewShell(tb testing.TB, decls []slot.Declaration, opts ...Option) *Shell {
	tb.Helper()

	sh := &Shell{
		tb:     tb,
		decls:  decls,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(sh)
	}

	if err := slot.ValidateDeclarations(decls); err != nil {
		tb.Fatalf("rtest: invalid declarations: %v", err)
	}
	sh.router = router.New()
	for _, d := range decls {
		if err := sh.router.Bind(d.Route, d.Name); err != nil {
			tb.Fatalf("rtest: bind %q: %v", d.Route, err)
		}
	}
	sh.rebuild()
	return sh
}

// rebuild resets the registry and navigator the way a fresh session starts.
func (sh *Shell) rebuild() {
	sh.registry = slot.NewRegistry(sh.logger)
	sh.navigator = server.NewNavigator(sh.router, sh.decls, sh.registry, sh.logger, server.NewMetricsCollector(), sh.mw...)
}

// Navigate runs one navigation and returns its result. Failures surface in
// the result, not the test; use MustNavigate to fail fast.
func (sh *Shell) Navigate(path string) *server.NavigateResult {
	sh.tb.Helper()
	return sh.navigator.Navigate(path)
}

// MustNavigate runs one navigation and fails the test on any error.
func (sh *Shell) MustNavigate(path string) *server.NavigateResult {
	sh.tb.Helper()
	res := sh.navigator.Navigate(path)
	if res.Err != nil {
		sh.tb.Fatalf("rtest: navigate %q: %v", path, res.Err)
	}
	return res
}

// Path returns the current canonical path, or "" before the first
// navigation.
func (sh *Shell) Path() string {
	return sh.navigator.Path()
}

// Visible returns the name of the visible slot, or "" when everything is
// hidden.
func (sh *Shell) Visible() string {
	return sh.navigator.Visibility().Visible()
}

// Handle returns the mounted handle for name, failing the test if the slot
// has not been constructed yet.
func (sh *Shell) Handle(name string) *slot.Handle {
	sh.tb.Helper()
	h, ok := sh.registry.Handle(name)
	if !ok {
		sh.tb.Fatalf("rtest: slot %q is not mounted", name)
	}
	return h
}

// View returns the live view instance for name. Tests typically assert on
// it after a type assertion to the concrete view.
func (sh *Shell) View(name string) slot.View {
	sh.tb.Helper()
	return sh.Handle(name).View()
}

// Registry returns the shell's slot registry.
func (sh *Shell) Registry() *slot.Registry {
	return sh.registry
}

// Router returns the shell's route table, for binding alias patterns.
func (sh *Shell) Router() *router.Router {
	return sh.router
}

// AssertPath fails unless the current canonical path equals want.
func (sh *Shell) AssertPath(want string) {
	sh.tb.Helper()
	if got := sh.navigator.Path(); got != want {
		sh.tb.Errorf("rtest: path = %q, want %q", got, want)
	}
}

// AssertVisible fails unless slot name is mounted and visible, with a
// container rendering that agrees.
func (sh *Shell) AssertVisible(name string) {
	sh.tb.Helper()
	h := sh.Handle(name)
	if h.State() != slot.MountedVisible {
		sh.tb.Errorf("rtest: slot %q state = %v, want %v", name, h.State(), slot.MountedVisible)
		return
	}
	if _, hidden := h.Render().Props.Attr(vdom.HiddenAttr); hidden {
		sh.tb.Errorf("rtest: slot %q rendered its container hidden", name)
	}
}

// AssertHidden fails unless slot name is mounted, hidden, and rendering its
// container with the hidden attribute.
func (sh *Shell) AssertHidden(name string) {
	sh.tb.Helper()
	h := sh.Handle(name)
	if h.State() != slot.MountedHidden {
		sh.tb.Errorf("rtest: slot %q state = %v, want %v", name, h.State(), slot.MountedHidden)
		return
	}
	if _, hidden := h.Render().Props.Attr(vdom.HiddenAttr); !hidden {
		sh.tb.Errorf("rtest: slot %q rendered its container without the hidden attribute", name)
	}
}

// AssertMounted fails unless slot name has been constructed.
func (sh *Shell) AssertMounted(name string) {
	sh.tb.Helper()
	if _, ok := sh.registry.Handle(name); !ok {
		sh.tb.Errorf("rtest: slot %q is not mounted", name)
	}
}

// AssertNotMounted fails if slot name has been constructed.
func (sh *Shell) AssertNotMounted(name string) {
	sh.tb.Helper()
	if _, ok := sh.registry.Handle(name); ok {
		sh.tb.Errorf("rtest: slot %q is mounted", name)
	}
}
