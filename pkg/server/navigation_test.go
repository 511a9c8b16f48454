package server

import (
	"errors"
	"testing"

	"github.com/DataRecce/recce-sub014/pkg/slot"
	"github.com/DataRecce/recce-sub014/pkg/vdom"
)

func TestNavigatorMountsAllSlots(t *testing.T) {
	lineage := &testView{name: "lineage"}
	query := &testView{name: "query"}
	nav := newTestNavigator(t, nil,
		declFor("lineage", "/lineage", lineage),
		declFor("query", "/query", query),
	)

	res := nav.Navigate("/lineage")
	if res.Err != nil {
		t.Fatalf("Navigate: %v", res.Err)
	}
	if !res.Match.Matched || res.Match.Slot != "lineage" {
		t.Fatalf("expected match for lineage, got %+v", res.Match)
	}

	// Every declared slot mounts on the first navigation, not only the
	// matched one.
	if nav.Registry().Len() != 2 {
		t.Fatalf("expected 2 mounted slots, got %d", nav.Registry().Len())
	}
	if lineage.builds != 1 || query.builds != 1 {
		t.Errorf("builds = %d/%d, want 1/1", lineage.builds, query.builds)
	}

	if !res.Visibility["lineage"] || res.Visibility["query"] {
		t.Errorf("visibility = %v, want lineage only", res.Visibility)
	}
	if !lineage.visible || query.visible {
		t.Errorf("view visibility = %v/%v, want true/false", lineage.visible, query.visible)
	}

	// The matched slot is revealed; the other slot was constructed hidden
	// and needs no patch.
	if _, ok := findPatch(res.Patches, vdom.PatchRemoveAttr, slot.ContainerHID("lineage")); !ok {
		t.Error("expected a show patch for the lineage container")
	}
	if p, ok := findPatch(res.Patches, vdom.PatchSetAttr, RootHID); !ok || p.Key != PathAttr || p.Value != "/lineage" {
		t.Errorf("expected %s=%q on the shell root, got %+v (ok=%v)", PathAttr, "/lineage", p, ok)
	}
	if len(res.Patches) != 2 {
		t.Errorf("expected 2 patches, got %d: %+v", len(res.Patches), res.Patches)
	}
}

func TestNavigatorFlipsVisibility(t *testing.T) {
	lineage := &testView{name: "lineage"}
	query := &testView{name: "query"}
	nav := newTestNavigator(t, nil,
		declFor("lineage", "/lineage", lineage),
		declFor("query", "/query", query),
	)

	nav.Navigate("/lineage")
	res := nav.Navigate("/query")

	if _, ok := findPatch(res.Patches, vdom.PatchSetAttr, slot.ContainerHID("lineage")); !ok {
		t.Error("expected a hide patch for the lineage container")
	}
	if _, ok := findPatch(res.Patches, vdom.PatchRemoveAttr, slot.ContainerHID("query")); !ok {
		t.Error("expected a show patch for the query container")
	}
	if lineage.visible || !query.visible {
		t.Errorf("view visibility = %v/%v, want false/true", lineage.visible, query.visible)
	}

	// Views survive: flipping visibility never reconstructs.
	if lineage.builds != 1 || query.builds != 1 {
		t.Errorf("builds = %d/%d, want 1/1", lineage.builds, query.builds)
	}

	// Every mounted view hears about every navigation.
	if lineage.visCalls != 2 || query.visCalls != 2 {
		t.Errorf("visCalls = %d/%d, want 2/2", lineage.visCalls, query.visCalls)
	}
}

func TestNavigatorIdempotent(t *testing.T) {
	lineage := &testView{name: "lineage"}
	nav := newTestNavigator(t, nil, declFor("lineage", "/lineage", lineage))

	first := nav.Navigate("/lineage")
	second := nav.Navigate("/lineage")

	if second.Err != nil {
		t.Fatalf("repeat Navigate: %v", second.Err)
	}
	if len(second.Patches) != 0 {
		t.Errorf("repeat navigation produced %d patches: %+v", len(second.Patches), second.Patches)
	}
	if !second.Visibility.Equal(first.Visibility) {
		t.Errorf("visibility changed across identical navigations: %v vs %v", first.Visibility, second.Visibility)
	}
	if lineage.builds != 1 {
		t.Errorf("builds = %d, want 1", lineage.builds)
	}
}

func TestNavigatorUnmatchedHidesAll(t *testing.T) {
	lineage := &testView{name: "lineage"}
	query := &testView{name: "query"}
	nav := newTestNavigator(t, nil,
		declFor("lineage", "/lineage", lineage),
		declFor("query", "/query", query),
	)

	nav.Navigate("/lineage")
	res := nav.Navigate("/settings")

	if res.Err != nil {
		t.Fatalf("unmatched navigation must not error: %v", res.Err)
	}
	if res.Match.Matched {
		t.Fatal("expected no match for /settings")
	}
	if res.Visibility.Visible() != "" {
		t.Errorf("expected all slots hidden, %q is visible", res.Visibility.Visible())
	}
	if _, ok := findPatch(res.Patches, vdom.PatchSetAttr, slot.ContainerHID("lineage")); !ok {
		t.Error("expected a hide patch for the previously visible slot")
	}

	// Both views stay mounted and can come back without rebuilding.
	back := nav.Navigate("/lineage")
	if !back.Visibility["lineage"] {
		t.Error("expected lineage visible again")
	}
	if lineage.builds != 1 {
		t.Errorf("builds = %d, want 1", lineage.builds)
	}
}

func TestNavigatorSuggestion(t *testing.T) {
	nav := newTestNavigator(t, nil,
		declFor("lineage", "/lineage", &testView{name: "lineage"}),
		declFor("query", "/query", &testView{name: "query"}),
	)

	res := nav.Navigate("/lineag")
	if res.Match.Matched {
		t.Fatal("expected no match for /lineag")
	}
	if res.Suggestion != "/lineage" {
		t.Errorf("Suggestion = %q, want /lineage", res.Suggestion)
	}

	if res := nav.Navigate("/zzzzzz"); res.Suggestion != "" {
		t.Errorf("Suggestion = %q, want none for a far miss", res.Suggestion)
	}

	if res := nav.Navigate("/lineage"); res.Suggestion != "" {
		t.Errorf("Suggestion = %q, want none on a match", res.Suggestion)
	}
}

func TestNavigatorCanonicalization(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		matched bool
	}{
		{"trailing slash", "/lineage/", "/lineage", true},
		{"double slashes", "//lineage", "", false}, // protocol-relative URL, rejected
		{"inner slashes", "/lineage//graph/..", "/lineage", true},
		{"dot segments", "/./lineage/.", "/lineage", true},
		{"query preserved", "/lineage?sel=model.orders", "/lineage?sel=model.orders", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nav := newTestNavigator(t, nil, declFor("lineage", "/lineage", &testView{name: "lineage"}))
			res := nav.Navigate(tt.input)
			if tt.want == "" {
				if res.Err == nil {
					t.Fatalf("expected rejection for %q", tt.input)
				}
				return
			}
			if res.Err != nil {
				t.Fatalf("Navigate(%q): %v", tt.input, res.Err)
			}
			if res.Path != tt.want {
				t.Errorf("Path = %q, want %q", res.Path, tt.want)
			}
			if res.Match.Matched != tt.matched {
				t.Errorf("Matched = %v, want %v", res.Match.Matched, tt.matched)
			}
			if p, ok := findPatch(res.Patches, vdom.PatchSetAttr, RootHID); !ok || p.Value != tt.want {
				t.Errorf("shell path attribute = %q (ok=%v), want %q", p.Value, ok, tt.want)
			}
		})
	}
}

func TestNavigatorQueryChangeOnlyUpdatesPath(t *testing.T) {
	nav := newTestNavigator(t, nil, declFor("lineage", "/lineage", &testView{name: "lineage"}))

	nav.Navigate("/lineage?sel=a")
	res := nav.Navigate("/lineage?sel=b")

	if len(res.Patches) != 1 {
		t.Fatalf("expected only the path attribute patch, got %d: %+v", len(res.Patches), res.Patches)
	}
	if p := res.Patches[0]; p.Op != vdom.PatchSetAttr || p.HID != RootHID || p.Value != "/lineage?sel=b" {
		t.Errorf("unexpected patch %+v", p)
	}
}

func TestNavigatorRejectsHostilePaths(t *testing.T) {
	lineage := &testView{name: "lineage"}
	nav := newTestNavigator(t, nil, declFor("lineage", "/lineage", lineage))
	nav.Navigate("/lineage")

	for _, path := range []string{
		"http://evil.example/x",
		"https://evil.example/x",
		"//evil.example/x",
		"relative/path",
		"",
		"/a/../../etc/passwd",
		"/a\\b",
	} {
		res := nav.Navigate(path)
		if res.Err == nil {
			t.Errorf("Navigate(%q): expected rejection", path)
			continue
		}
		if res.Path != "/lineage" {
			t.Errorf("Navigate(%q): path moved to %q", path, res.Path)
		}
		if !res.Visibility["lineage"] {
			t.Errorf("Navigate(%q): visibility lost", path)
		}
		if len(res.Patches) != 0 {
			t.Errorf("Navigate(%q): emitted %d patches", path, len(res.Patches))
		}
	}

	if nav.Path() != "/lineage" {
		t.Errorf("navigator path = %q, want /lineage", nav.Path())
	}
}

func TestNavigatorInitFailureRetries(t *testing.T) {
	lineage := &testView{name: "lineage"}
	flaky := &testView{name: "flaky"}
	nav := newTestNavigator(t, nil,
		declFor("lineage", "/lineage", lineage),
		flakyDecl("flaky", "/flaky", flaky, 1),
	)

	res := nav.Navigate("/flaky")
	var initErr *slot.InitError
	if !errors.As(res.Err, &initErr) {
		t.Fatalf("expected *slot.InitError, got %v", res.Err)
	}
	if initErr.Slot != "flaky" {
		t.Errorf("InitError.Slot = %q, want flaky", initErr.Slot)
	}

	// The failed slot is absent; the healthy slot still mounted and the
	// navigation otherwise completed.
	if _, ok := nav.Registry().Handle("flaky"); ok {
		t.Error("failed slot must not be registered")
	}
	if _, ok := nav.Registry().Handle("lineage"); !ok {
		t.Error("healthy slot should have mounted despite the failure")
	}
	if res.Path != "/flaky" {
		t.Errorf("Path = %q, want /flaky", res.Path)
	}

	// The next navigation retries the constructor.
	res = nav.Navigate("/flaky")
	if res.Err != nil {
		t.Fatalf("retry Navigate: %v", res.Err)
	}
	if !res.Visibility["flaky"] {
		t.Errorf("visibility = %v, want flaky visible", res.Visibility)
	}
	if flaky.builds != 1 {
		t.Errorf("builds = %d, want 1", flaky.builds)
	}
}

func TestNavigatorInsertsContainerMountedAfterDelivery(t *testing.T) {
	lineage := &testView{name: "lineage"}
	flaky := &testView{name: "flaky"}
	nav := newTestNavigator(t, nil,
		declFor("lineage", "/lineage", lineage),
		flakyDecl("flaky", "/flaky", flaky, 1),
	)

	// The flaky constructor fails, so the render the client receives
	// contains only the lineage container.
	res := nav.Navigate("/lineage")
	var initErr *slot.InitError
	if !errors.As(res.Err, &initErr) {
		t.Fatalf("expected *slot.InitError, got %v", res.Err)
	}
	nav.MarkDelivered()

	// The retry mounts the slot into a client tree that has no container
	// for it, so the result must create the node before showing it.
	res = nav.Navigate("/flaky")
	if res.Err != nil {
		t.Fatalf("retry Navigate: %v", res.Err)
	}
	insert, ok := findPatch(res.Patches, vdom.PatchInsertNode, slot.ContainerHID("flaky"))
	if !ok {
		t.Fatalf("no insert patch for the recovered container, patches = %+v", res.Patches)
	}
	if insert.ParentID != RootHID {
		t.Errorf("insert ParentID = %q, want %q", insert.ParentID, RootHID)
	}
	// Handles order by name, so "flaky" slots in before "lineage".
	if insert.Index != 0 {
		t.Errorf("insert Index = %d, want 0", insert.Index)
	}
	if insert.Node == nil {
		t.Fatal("insert patch carries no node")
	}
	if _, hidden := insert.Node.Props[vdom.HiddenAttr]; hidden {
		t.Error("inserted container should be visible")
	}
	if !res.Visibility["flaky"] {
		t.Errorf("visibility = %v, want flaky visible", res.Visibility)
	}

	// An already-delivered container is never re-inserted.
	res = nav.Navigate("/lineage")
	if res.Err != nil {
		t.Fatalf("Navigate: %v", res.Err)
	}
	for _, p := range res.Patches {
		if p.Op == vdom.PatchInsertNode {
			t.Errorf("unexpected insert patch %+v", p)
		}
	}
}

func TestNavigatorNoInsertsBeforeDelivery(t *testing.T) {
	lineage := &testView{name: "lineage"}
	nav := newTestNavigator(t, nil, declFor("lineage", "/lineage", lineage))

	// Before the initial render goes out, mounts are carried by that
	// render itself; the navigate result only flips visibility.
	res := nav.Navigate("/lineage")
	if res.Err != nil {
		t.Fatalf("Navigate: %v", res.Err)
	}
	for _, p := range res.Patches {
		if p.Op == vdom.PatchInsertNode {
			t.Errorf("unexpected insert patch %+v", p)
		}
	}
}

func TestNavigatorMiddlewareOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next NavigateFunc) NavigateFunc {
			return func(path string) *NavigateResult {
				order = append(order, name+":before")
				res := next(path)
				order = append(order, name+":after")
				return res
			}
		}
	}

	nav := newTestNavigator(t,
		[]Middleware{tag("outer"), tag("inner")},
		declFor("lineage", "/lineage", &testView{name: "lineage"}),
	)
	nav.Navigate("/lineage")

	want := []string{"outer:before", "inner:before", "inner:after", "outer:after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestNavigatorMiddlewareRewrite(t *testing.T) {
	alias := func(next NavigateFunc) NavigateFunc {
		return func(path string) *NavigateResult {
			if path == "/graph" {
				path = "/lineage"
			}
			return next(path)
		}
	}

	nav := newTestNavigator(t, []Middleware{alias},
		declFor("lineage", "/lineage", &testView{name: "lineage"}),
	)

	res := nav.Navigate("/graph")
	if !res.Match.Matched || res.Match.Slot != "lineage" {
		t.Errorf("expected the alias to land on lineage, got %+v", res.Match)
	}
	if res.Path != "/lineage" {
		t.Errorf("Path = %q, want /lineage", res.Path)
	}
}
