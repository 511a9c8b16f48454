package recce

import (
	"context"
	"errors"
	"testing"

	"github.com/DataRecce/recce-sub014/pkg/lineage"
	"github.com/DataRecce/recce-sub014/pkg/protocol"
	"github.com/DataRecce/recce-sub014/pkg/query"
	"github.com/DataRecce/recce-sub014/pkg/server"
	"github.com/DataRecce/recce-sub014/pkg/slot"
	"github.com/DataRecce/recce-sub014/pkg/vdom"
)

// handlerSession builds a mock session with the default slots mounted.
func handlerSession(t *testing.T) *server.Session {
	t.Helper()
	s := server.NewMockSession()
	for _, d := range DefaultSlots() {
		if _, err := s.Slots().Register(d.Name, d.Build); err != nil {
			t.Fatalf("mount %s: %v", d.Name, err)
		}
	}
	return s
}

func mustLineage(t *testing.T, s *server.Session) *lineage.View {
	t.Helper()
	v, _, err := lineageView(s)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func mustQuery(t *testing.T, s *server.Session) *query.View {
	t.Helper()
	v, _, err := queryView(s)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestHandleSelectNode(t *testing.T) {
	app := testApp(t, Config{})
	s := handlerSession(t)
	nodeID := lineage.DemoGraph().Nodes()[0].ID

	patches, err := app.handleSelectNode(s, &protocol.Event{
		Type:    protocol.EventSelectNode,
		Payload: &protocol.SelectNodeEventData{NodeID: nodeID},
	})
	if err != nil {
		t.Fatalf("handleSelectNode: %v", err)
	}
	if !mustLineage(t, s).IsSelected(nodeID) {
		t.Errorf("node %s not selected", nodeID)
	}
	// The slot content refreshes in place; its container HID is stable.
	if len(patches) != 1 || patches[0].Op != vdom.PatchReplaceNode || patches[0].HID != slot.ContainerHID(SlotLineage) {
		t.Errorf("unexpected patches: %+v", patches)
	}
}

func TestHandleSelectNodeUnknownNode(t *testing.T) {
	app := testApp(t, Config{})
	s := handlerSession(t)

	patches, err := app.handleSelectNode(s, &protocol.Event{
		Type:    protocol.EventSelectNode,
		Payload: &protocol.SelectNodeEventData{NodeID: "ghost"},
	})
	if err != nil {
		t.Fatalf("handleSelectNode: %v", err)
	}
	if len(patches) != 0 {
		t.Errorf("expected no patches for an unknown node, got %+v", patches)
	}
}

func TestHandleSelectNodeClearsSelection(t *testing.T) {
	app := testApp(t, Config{})
	s := handlerSession(t)
	v := mustLineage(t, s)
	v.Select(lineage.DemoGraph().Nodes()[0].ID, false)

	if _, err := app.handleSelectNode(s, &protocol.Event{
		Type:    protocol.EventSelectNode,
		Payload: &protocol.SelectNodeEventData{},
	}); err != nil {
		t.Fatalf("handleSelectNode: %v", err)
	}
	if got := v.Selected(); len(got) != 0 {
		t.Errorf("selection = %v, want empty", got)
	}
}

func TestHandleSelectNodeUnmountedSlot(t *testing.T) {
	app := testApp(t, Config{})
	s := server.NewMockSession() // nothing mounted

	_, err := app.handleSelectNode(s, &protocol.Event{
		Type:    protocol.EventSelectNode,
		Payload: &protocol.SelectNodeEventData{NodeID: "x"},
	})
	if err == nil {
		t.Fatal("expected an error when the lineage slot is not mounted")
	}
}

func TestHandleViewport(t *testing.T) {
	app := testApp(t, Config{})
	s := handlerSession(t)

	patches, err := app.handleViewport(s, &protocol.Event{
		Type:    protocol.EventViewport,
		Payload: &protocol.ViewportEventData{X: 40, Y: -12, Zoom: 1.5},
	})
	if err != nil {
		t.Fatalf("handleViewport: %v", err)
	}
	// Pan/zoom is recorded server-side only; the client already moved.
	if len(patches) != 0 {
		t.Errorf("expected no patches, got %+v", patches)
	}
	if vp := mustLineage(t, s).Viewport(); vp.X != 40 || vp.Y != -12 || vp.Zoom != 1.5 {
		t.Errorf("viewport = %+v", vp)
	}
}

func TestHandleRunQueryWithoutRunner(t *testing.T) {
	app := testApp(t, Config{})
	s := handlerSession(t)

	patches, err := app.handleRunQuery(s, &protocol.Event{
		Type:    protocol.EventRunQuery,
		Payload: &protocol.RunQueryEventData{SQL: "select 1"},
	})
	if err != nil {
		t.Fatalf("handleRunQuery: %v", err)
	}
	if len(patches) != 1 {
		t.Fatalf("expected a rerender patch, got %+v", patches)
	}

	v := mustQuery(t, s)
	if v.SQL() != "select 1" {
		t.Errorf("SQL = %q, want select 1", v.SQL())
	}
	run, ok := v.LastRun()
	if !ok || !run.Failed() {
		t.Errorf("expected a recorded failed run, got %+v (ok=%v)", run, ok)
	}
}

func TestHandleRunQueryWithRunner(t *testing.T) {
	want := &query.Result{Columns: []string{"n"}, Rows: [][]string{{"1"}}}
	app := testApp(t, Config{
		QueryRunner: func(ctx context.Context, sql string, limit int) (*query.Result, error) {
			if sql != "select 1" {
				return nil, errors.New("unexpected sql")
			}
			return want, nil
		},
	})
	s := handlerSession(t)

	if _, err := app.handleRunQuery(s, &protocol.Event{
		Type:    protocol.EventRunQuery,
		Payload: &protocol.RunQueryEventData{SQL: "select 1"},
	}); err != nil {
		t.Fatalf("handleRunQuery: %v", err)
	}

	v := mustQuery(t, s)
	run, ok := v.LastRun()
	if !ok || run.Failed() {
		t.Fatalf("expected a successful run, got %+v (ok=%v)", run, ok)
	}
	if res := v.Result(); res == nil || len(res.Rows) != 1 {
		t.Errorf("result = %+v, want one row", res)
	}
}

func TestHandleResize(t *testing.T) {
	app := testApp(t, Config{})
	s := handlerSession(t)

	if _, err := app.handleResize(s, &protocol.Event{
		Type:    protocol.EventResize,
		Payload: &protocol.ResizeEventData{Width: 1280, Height: 720},
	}); err != nil {
		t.Fatalf("handleResize: %v", err)
	}
	if w, _ := s.Get(server.DataViewportWidth); w != 1280 {
		t.Errorf("viewport width = %v, want 1280", w)
	}
}

func TestHandlersRejectMalformedPayloads(t *testing.T) {
	app := testApp(t, Config{})
	s := handlerSession(t)

	handlers := map[string]server.EventHandler{
		"select":        app.handleSelectNode,
		"toggle-column": app.handleToggleColumn,
		"viewport":      app.handleViewport,
		"run-query":     app.handleRunQuery,
		"resize":        app.handleResize,
	}
	for name, h := range handlers {
		if _, err := h(s, &protocol.Event{Payload: "garbage"}); err == nil {
			t.Errorf("%s: expected an error for a malformed payload", name)
		}
	}
}
