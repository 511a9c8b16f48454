package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/DataRecce/recce-sub014/pkg/router"
	"github.com/DataRecce/recce-sub014/pkg/slot"
	"github.com/DataRecce/recce-sub014/pkg/vdom"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testView is a minimal slot view that records how it is driven.
type testView struct {
	name     string
	visible  bool
	renders  int
	visCalls int
	builds   int
}

func (v *testView) Render() *vdom.VNode {
	v.renders++
	return vdom.El("div", vdom.Props{"class": "view-" + v.name}, vdom.Text(v.name))
}

func (v *testView) SetVisible(visible bool) {
	v.visCalls++
	v.visible = visible
}

// snapshotView additionally persists a counter across detach and resume.
type snapshotView struct {
	testView
	Counter int `json:"counter"`
}

func (v *snapshotView) StateJSON() ([]byte, error) {
	return json.Marshal(struct {
		Counter int `json:"counter"`
	}{v.Counter})
}

func (v *snapshotView) RestoreJSON(data []byte) error {
	var s struct {
		Counter int `json:"counter"`
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v.Counter = s.Counter
	return nil
}

// declFor declares a slot whose constructor hands out view and counts
// invocations.
func declFor(name, route string, view *testView) slot.Declaration {
	return slot.Declaration{
		Name:  name,
		Route: route,
		Build: func() (slot.View, error) {
			view.builds++
			return view, nil
		},
	}
}

// flakyDecl declares a slot whose constructor fails the first failures
// calls, then succeeds.
func flakyDecl(name, route string, view *testView, failures int) slot.Declaration {
	remaining := failures
	return slot.Declaration{
		Name:  name,
		Route: route,
		Build: func() (slot.View, error) {
			if remaining > 0 {
				remaining--
				return nil, errors.New("view backend unavailable")
			}
			view.builds++
			return view, nil
		},
	}
}

// newTestNavigator builds a navigator over a fresh router and registry with
// the given declarations bound.
func newTestNavigator(t *testing.T, mw []Middleware, decls ...slot.Declaration) *Navigator {
	t.Helper()
	r := router.New()
	for _, d := range decls {
		if err := r.Bind(d.Route, d.Name); err != nil {
			t.Fatalf("Bind(%q, %q): %v", d.Route, d.Name, err)
		}
	}
	reg := slot.NewRegistry(testLogger())
	return NewNavigator(r, decls, reg, testLogger(), NewMetricsCollector(), mw...)
}

// findPatch returns the first patch with the given op and target HID.
func findPatch(patches []vdom.Patch, op vdom.PatchOp, hid string) (vdom.Patch, bool) {
	for _, p := range patches {
		if p.Op == op && p.HID == hid {
			return p, true
		}
	}
	return vdom.Patch{}, false
}
