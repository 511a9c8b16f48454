package recce

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/DataRecce/recce-sub014/pkg/slot"
	"github.com/DataRecce/recce-sub014/pkg/vdom"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// nullView is a minimal slot view for wiring tests.
type nullView struct {
	visible bool
}

func (v *nullView) Render() *vdom.VNode {
	return vdom.El("div", nil)
}

func (v *nullView) SetVisible(visible bool) {
	v.visible = visible
}

func nullDecl(name, route string) Declaration {
	return Declaration{
		Name:  name,
		Route: route,
		Build: func() (slot.View, error) { return &nullView{}, nil },
	}
}

func TestNewDefaults(t *testing.T) {
	app, err := New(Config{Logger: testLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// The zero config declares the demo slots and binds their routes.
	for _, pattern := range []string{"/lineage", "/query"} {
		if name, ok := app.Router().SlotFor(pattern); !ok || name == "" {
			t.Errorf("expected a slot bound to %s", pattern)
		}
	}
	if app.config.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", app.config.Addr)
	}
	if app.config.WebSocketPath != "/_recce/ws" {
		t.Errorf("WebSocketPath = %q, want /_recce/ws", app.config.WebSocketPath)
	}
}

func TestNewRejectsDuplicateSlotNames(t *testing.T) {
	_, err := New(Config{
		Logger: testLogger(),
		Slots: []Declaration{
			nullDecl("lineage", "/lineage"),
			nullDecl("lineage", "/graph"),
		},
	})
	if !errors.Is(err, slot.ErrDuplicateSlot) {
		t.Fatalf("expected ErrDuplicateSlot, got %v", err)
	}
}

func TestNewRejectsConflictingRoutes(t *testing.T) {
	_, err := New(Config{
		Logger: testLogger(),
		Slots: []Declaration{
			nullDecl("a", "/view"),
			nullDecl("b", "/view"),
		},
	})
	if err == nil {
		t.Fatal("expected an error for two slots on one route")
	}
}

func TestNewRejectsNilConstructor(t *testing.T) {
	_, err := New(Config{
		Logger: testLogger(),
		Slots:  []Declaration{{Name: "a", Route: "/a"}},
	})
	if !errors.Is(err, slot.ErrNilConstructor) {
		t.Fatalf("expected ErrNilConstructor, got %v", err)
	}
}

func TestNewBindsAliasRoutes(t *testing.T) {
	app, err := New(Config{
		Logger: testLogger(),
		Slots:  []Declaration{nullDecl("lineage", "/lineage")},
		Routes: map[string]string{"/lineage/:model": "lineage"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	m := app.Router().Resolve("/lineage/orders")
	if !m.Matched || m.Slot != "lineage" {
		t.Fatalf("alias resolve = %+v, want lineage", m)
	}
	if m.Params["model"] != "orders" {
		t.Errorf("params = %v, want model=orders", m.Params)
	}
}

func TestNewRejectsAliasForUndeclaredSlot(t *testing.T) {
	_, err := New(Config{
		Logger: testLogger(),
		Slots:  []Declaration{nullDecl("lineage", "/lineage")},
		Routes: map[string]string{"/checks": "checks"},
	})
	if err == nil {
		t.Fatal("expected an error for an alias naming an undeclared slot")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Logger: testLogger()}.withDefaults()

	def := DefaultSessionConfig()
	if cfg.Session != def {
		t.Errorf("Session = %+v, want defaults %+v", cfg.Session, def)
	}
	if len(cfg.Slots) != 2 {
		t.Errorf("expected 2 default slots, got %d", len(cfg.Slots))
	}
}

func TestConfigKeepsExplicitValues(t *testing.T) {
	in := Config{Logger: testLogger(), Addr: ":9000"}
	in.Session.MaxEventQueue = 16

	cfg := in.withDefaults()
	if cfg.Addr != ":9000" {
		t.Errorf("Addr = %q, want :9000", cfg.Addr)
	}
	if cfg.Session.MaxEventQueue != 16 {
		t.Errorf("MaxEventQueue = %d, want 16", cfg.Session.MaxEventQueue)
	}
	// Untouched fields still default.
	if cfg.Session.ReadTimeout != DefaultSessionConfig().ReadTimeout {
		t.Errorf("ReadTimeout = %v, want default", cfg.Session.ReadTimeout)
	}
}

func TestBuildServerConfig(t *testing.T) {
	cfg := Config{
		Logger: testLogger(),
		Addr:   ":9000",
		Limits: LimitsConfig{MaxSessions: 7, MaxSessionsPerIP: 3},
	}.withDefaults()

	sc := cfg.buildServerConfig()
	if sc.Address != ":9000" {
		t.Errorf("Address = %q, want :9000", sc.Address)
	}
	if sc.MaxSessions != 7 || sc.MaxSessionsPerIP != 3 {
		t.Errorf("limits = %d/%d, want 7/3", sc.MaxSessions, sc.MaxSessionsPerIP)
	}
	if sc.Session.ReadTimeout != cfg.Session.ReadTimeout {
		t.Errorf("ReadTimeout not carried over")
	}
}
