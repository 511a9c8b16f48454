package slot

import (
	"testing"

	"github.com/DataRecce/recce-sub014/pkg/router"
	"github.com/DataRecce/recce-sub014/pkg/vdom"
)

func matchFor(name string) router.Match {
	return router.Match{Matched: true, Slot: name, Pattern: "/" + name}
}

func registryWith(t *testing.T, names ...string) *Registry {
	t.Helper()
	reg := NewRegistry(nil)
	for _, name := range names {
		if _, err := reg.Register(name, newStub); err != nil {
			t.Fatalf("Register(%q): %v", name, err)
		}
	}
	return reg
}

func TestApplyShowsMatchedSlot(t *testing.T) {
	reg := registryWith(t, "lineage", "query")

	state, patches := Apply(matchFor("lineage"), reg)

	want := VisibilityState{"lineage": true, "query": false}
	if !state.Equal(want) {
		t.Errorf("state = %v, want %v", state, want)
	}
	if state.Visible() != "lineage" {
		t.Errorf("Visible() = %q, want %q", state.Visible(), "lineage")
	}

	h, _ := reg.Handle("lineage")
	if h.State() != MountedVisible {
		t.Errorf("lineage state = %v, want %v", h.State(), MountedVisible)
	}

	// Both slots start hidden, so only the shown slot changes.
	if len(patches) != 1 {
		t.Fatalf("got %d patches, want 1: %v", len(patches), patches)
	}
	p := patches[0]
	if p.Op != vdom.PatchRemoveAttr || p.HID != "slot-lineage" || p.Key != vdom.HiddenAttr {
		t.Errorf("patch = %+v, want remove hidden on slot-lineage", p)
	}
}

func TestApplySwitchesVisibleSlot(t *testing.T) {
	reg := registryWith(t, "lineage", "query")

	Apply(matchFor("lineage"), reg)
	state, patches := Apply(matchFor("query"), reg)

	if state.Visible() != "query" {
		t.Errorf("Visible() = %q, want %q", state.Visible(), "query")
	}
	if len(patches) != 2 {
		t.Fatalf("got %d patches, want 2: %v", len(patches), patches)
	}

	byHID := map[string]vdom.Patch{}
	for _, p := range patches {
		byHID[p.HID] = p
	}
	if p := byHID["slot-lineage"]; p.Op != vdom.PatchSetAttr || p.Key != vdom.HiddenAttr {
		t.Errorf("lineage patch = %+v, want set hidden", p)
	}
	if p := byHID["slot-query"]; p.Op != vdom.PatchRemoveAttr || p.Key != vdom.HiddenAttr {
		t.Errorf("query patch = %+v, want remove hidden", p)
	}
}

func TestApplyUnmatchedHidesAll(t *testing.T) {
	reg := registryWith(t, "lineage", "query")
	Apply(matchFor("lineage"), reg)

	state, _ := Apply(router.Match{}, reg)

	if state.Visible() != "" {
		t.Errorf("Visible() = %q, want every slot hidden", state.Visible())
	}
	for _, name := range []string{"lineage", "query"} {
		h, ok := reg.Handle(name)
		if !ok {
			t.Fatalf("slot %q unmounted by unmatched route", name)
		}
		if h.State() != MountedHidden {
			t.Errorf("%s state = %v, want %v", name, h.State(), MountedHidden)
		}
	}
	if reg.Len() != 2 {
		t.Errorf("registry shrank to %d slots, want 2", reg.Len())
	}
}

func TestApplyIdempotent(t *testing.T) {
	reg := registryWith(t, "lineage", "query")

	first, _ := Apply(matchFor("lineage"), reg)
	second, patches := Apply(matchFor("lineage"), reg)

	if !first.Equal(second) {
		t.Errorf("second apply state = %v, want %v", second, first)
	}
	if len(patches) != 0 {
		t.Errorf("second apply emitted %d patches, want 0: %v", len(patches), patches)
	}
}

func TestApplyNeverRemovesNodes(t *testing.T) {
	reg := registryWith(t, "lineage", "query")

	matches := []router.Match{
		matchFor("lineage"),
		matchFor("query"),
		{},
		matchFor("lineage"),
		{},
	}
	for _, m := range matches {
		_, patches := Apply(m, reg)
		for _, p := range patches {
			if p.Op == vdom.PatchRemoveNode || p.Op == vdom.PatchReplaceNode {
				t.Fatalf("visibility change used destructive op %v", p.Op)
			}
			if p.Key != vdom.HiddenAttr {
				t.Errorf("visibility patch touched attribute %q, want %q", p.Key, vdom.HiddenAttr)
			}
		}
	}
}

func TestApplyAtMostOneVisible(t *testing.T) {
	reg := registryWith(t, "checks", "lineage", "query")

	matches := []router.Match{
		matchFor("lineage"),
		matchFor("query"),
		matchFor("checks"),
		{},
		matchFor("query"),
	}
	for i, m := range matches {
		state, _ := Apply(m, reg)
		visible := 0
		for _, on := range state {
			if on {
				visible++
			}
		}
		if visible > 1 {
			t.Errorf("step %d: %d slots visible, want at most 1", i, visible)
		}
	}
}

func TestApplyHandleSurvivesRoundTrip(t *testing.T) {
	reg := registryWith(t, "lineage")
	before, _ := reg.Handle("lineage")

	Apply(matchFor("lineage"), reg)
	Apply(router.Match{}, reg)
	Apply(matchFor("lineage"), reg)

	after, ok := reg.Handle("lineage")
	if !ok {
		t.Fatal("slot disappeared across navigation round trip")
	}
	if after != before {
		t.Error("navigation round trip replaced the handle")
	}
	if after.State() != MountedVisible {
		t.Errorf("state after return = %v, want %v", after.State(), MountedVisible)
	}
}

func TestApplySignalsViewEveryNavigation(t *testing.T) {
	reg := registryWith(t, "lineage")
	h, _ := reg.Handle("lineage")
	view := h.View().(*stubView)

	Apply(matchFor("lineage"), reg)
	Apply(matchFor("lineage"), reg)
	Apply(router.Match{}, reg)

	want := []bool{true, true, false}
	if len(view.signals) != len(want) {
		t.Fatalf("view received %d signals, want %d", len(view.signals), len(want))
	}
	for i := range want {
		if view.signals[i] != want[i] {
			t.Errorf("signal %d = %v, want %v", i, view.signals[i], want[i])
		}
	}
}

func TestApplyMatchedSlotMissingFromRegistry(t *testing.T) {
	reg := registryWith(t, "query")

	// The matched slot failed to mount earlier; everything registered
	// stays hidden and nothing is invented.
	state, _ := Apply(matchFor("lineage"), reg)

	if state.Visible() != "" {
		t.Errorf("Visible() = %q, want none", state.Visible())
	}
	if _, ok := state["lineage"]; ok {
		t.Error("state contains an entry for an unregistered slot")
	}
}

func TestVisibilityStateEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b VisibilityState
		want bool
	}{
		{"both empty", VisibilityState{}, VisibilityState{}, true},
		{"same", VisibilityState{"a": true, "b": false}, VisibilityState{"a": true, "b": false}, true},
		{"different value", VisibilityState{"a": true}, VisibilityState{"a": false}, false},
		{"different keys", VisibilityState{"a": true}, VisibilityState{"b": true}, false},
		{"different size", VisibilityState{"a": true}, VisibilityState{"a": true, "b": false}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}
