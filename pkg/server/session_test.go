package server

import (
	"errors"
	"testing"
	"time"

	"github.com/DataRecce/recce-sub014/pkg/protocol"
	"github.com/DataRecce/recce-sub014/pkg/router"
	"github.com/DataRecce/recce-sub014/pkg/slot"
	"github.com/DataRecce/recce-sub014/pkg/vdom"
)

// attachNavigator wires a navigator over the given declarations into a
// connection-less session.
func attachNavigator(t *testing.T, s *Session, decls ...slot.Declaration) {
	t.Helper()
	r := router.New()
	for _, d := range decls {
		if err := r.Bind(d.Route, d.Name); err != nil {
			t.Fatalf("Bind(%q, %q): %v", d.Route, d.Name, err)
		}
	}
	s.navigator = NewNavigator(r, decls, s.registry, testLogger(), s.metrics)
}

func TestNewMockSession(t *testing.T) {
	s := NewMockSession()

	if s.ID != "test-session-id" {
		t.Errorf("ID = %q, want test-session-id", s.ID)
	}
	if s.Closed() {
		t.Error("fresh session reports closed")
	}
	if s.Slots().Len() != 0 {
		t.Errorf("fresh session has %d slots", s.Slots().Len())
	}
	if s.Path() != "" {
		t.Errorf("Path = %q, want empty before first navigation", s.Path())
	}
	if res := s.Navigate("/anywhere"); res.Err == nil {
		t.Error("Navigate without a navigator must error")
	}
}

func TestGenerateSessionID(t *testing.T) {
	a := generateSessionID()
	b := generateSessionID()
	if len(a) != 32 {
		t.Errorf("len = %d, want 32 hex chars", len(a))
	}
	if a == b {
		t.Error("two session IDs collided")
	}
}

func TestSessionDataBag(t *testing.T) {
	s := NewMockSession()

	if _, ok := s.Get("missing"); ok {
		t.Error("Get on an empty bag reported ok")
	}

	s.Set("checks", 3)
	if v, ok := s.Get("checks"); !ok || v.(int) != 3 {
		t.Errorf("Get = %v (ok=%v), want 3", v, ok)
	}

	s.Set("checks", 4)
	if v, _ := s.Get("checks"); v.(int) != 4 {
		t.Errorf("Get after overwrite = %v, want 4", v)
	}

	s.Delete("checks")
	if _, ok := s.Get("checks"); ok {
		t.Error("Get after Delete reported ok")
	}
}

func TestSessionQueueEvent(t *testing.T) {
	s := NewMockSession()

	ev := &protocol.Event{Type: protocol.EventSelectNode}
	for i := 0; i < cap(s.events); i++ {
		if err := s.QueueEvent(ev); err != nil {
			t.Fatalf("QueueEvent %d: %v", i, err)
		}
	}

	if err := s.QueueEvent(ev); !errors.Is(err, ErrEventQueueFull) {
		t.Errorf("expected ErrEventQueueFull, got %v", err)
	}

	snap := s.metrics.Snapshot()
	if snap.EventsReceived != int64(cap(s.events)) {
		t.Errorf("EventsReceived = %d, want %d", snap.EventsReceived, cap(s.events))
	}
	if snap.EventsDropped != 1 {
		t.Errorf("EventsDropped = %d, want 1", snap.EventsDropped)
	}
}

func TestSessionQueueEventClosed(t *testing.T) {
	s := NewMockSession()
	s.Close()

	if err := s.QueueEvent(&protocol.Event{Type: protocol.EventSelectNode}); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	if err := s.Dispatch(func() {}); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Dispatch: expected ErrSessionClosed, got %v", err)
	}
	if !s.Closed() {
		t.Error("Closed() = false after Close")
	}

	// Close is idempotent.
	s.Close()
}

func TestSessionInitialPatches(t *testing.T) {
	s := NewMockSession()
	attachNavigator(t, s,
		declFor("lineage", "/lineage", &testView{name: "lineage"}),
		declFor("query", "/query", &testView{name: "query"}),
	)

	if res := s.Navigate("/query"); res.Err != nil {
		t.Fatalf("Navigate: %v", res.Err)
	}

	patches := s.initialPatches()
	if len(patches) != 3 {
		t.Fatalf("expected 2 inserts and a path attribute, got %d: %+v", len(patches), patches)
	}

	// Containers are inserted under the shell root in name order.
	for i, name := range []string{"lineage", "query"} {
		p := patches[i]
		if p.Op != vdom.PatchInsertNode {
			t.Fatalf("patch %d op = %v, want InsertNode", i, p.Op)
		}
		if p.ParentID != RootHID || p.Index != i {
			t.Errorf("patch %d parent/index = %s/%d, want %s/%d", i, p.ParentID, p.Index, RootHID, i)
		}
		if p.Node == nil || p.Node.HID != slot.ContainerHID(name) {
			t.Errorf("patch %d node HID = %v, want %s", i, p.Node, slot.ContainerHID(name))
		}
	}

	last := patches[len(patches)-1]
	if last.Op != vdom.PatchSetAttr || last.HID != RootHID || last.Key != PathAttr || last.Value != "/query" {
		t.Errorf("expected path attribute patch, got %+v", last)
	}
}

func TestSessionFullRenderPatches(t *testing.T) {
	s := NewMockSession()
	attachNavigator(t, s,
		declFor("lineage", "/lineage", &testView{name: "lineage"}),
		declFor("query", "/query", &testView{name: "query"}),
	)
	s.Navigate("/lineage")

	patches := s.fullRenderPatches()
	if len(patches) != 3 {
		t.Fatalf("expected 2 replacements and a path attribute, got %d", len(patches))
	}
	for i, name := range []string{"lineage", "query"} {
		p := patches[i]
		if p.Op != vdom.PatchReplaceNode || p.HID != slot.ContainerHID(name) {
			t.Errorf("patch %d = %+v, want ReplaceNode on %s", i, p, slot.ContainerHID(name))
		}
	}
}

func TestSessionHandleNavigateEvent(t *testing.T) {
	s := NewMockSession()
	attachNavigator(t, s, declFor("lineage", "/lineage", &testView{name: "lineage"}))

	// Drive the event loop path directly; the mock has no connection, so
	// patch delivery fails and closes the session, but navigation state
	// must still be applied first.
	s.handleEvent(&protocol.Event{
		Seq:     1,
		Type:    protocol.EventNavigate,
		Payload: &protocol.NavigateEventData{Path: "/lineage"},
	})

	if s.Path() != "/lineage" {
		t.Errorf("Path = %q, want /lineage", s.Path())
	}
	if got := s.Visibility().Visible(); got != "lineage" {
		t.Errorf("visible slot = %q, want lineage", got)
	}
	if s.recvSeq.Load() != 1 {
		t.Errorf("recvSeq = %d, want 1", s.recvSeq.Load())
	}
}

func TestSessionDispatchTypedHandler(t *testing.T) {
	s := NewMockSession()

	var got *protocol.Event
	s.HandleEvent(protocol.EventSelectNode, func(sess *Session, ev *protocol.Event) ([]vdom.Patch, error) {
		got = ev
		return nil, nil
	})

	ev := &protocol.Event{
		Seq:     7,
		Type:    protocol.EventSelectNode,
		Payload: &protocol.SelectNodeEventData{NodeID: "model.orders"},
	}
	s.handleEvent(ev)

	if got == nil {
		t.Fatal("handler was not invoked")
	}
	data, ok := got.Payload.(*protocol.SelectNodeEventData)
	if !ok || data.NodeID != "model.orders" {
		t.Errorf("payload = %+v, want model.orders", got.Payload)
	}

	// An event without a handler is dropped quietly.
	s.handleEvent(&protocol.Event{Seq: 8, Type: protocol.EventToggleColumn})
	if s.eventsProcessed.Load() != 2 {
		t.Errorf("eventsProcessed = %d, want 2", s.eventsProcessed.Load())
	}
}

func TestSessionHandlerPanicRecovered(t *testing.T) {
	s := NewMockSession()
	s.HandleEvent(protocol.EventSelectNode, func(sess *Session, ev *protocol.Event) ([]vdom.Patch, error) {
		panic("boom")
	})

	// Must not propagate.
	s.handleEvent(&protocol.Event{Seq: 1, Type: protocol.EventSelectNode})

	if s.metrics.Snapshot().HandlerPanics != 1 {
		t.Errorf("HandlerPanics = %d, want 1", s.metrics.Snapshot().HandlerPanics)
	}
}

func TestSessionStats(t *testing.T) {
	s := NewMockSession()
	attachNavigator(t, s, declFor("lineage", "/lineage", &testView{name: "lineage"}))
	s.Navigate("/lineage")

	stats := s.Stats()
	if stats.ID != s.ID {
		t.Errorf("ID = %q, want %q", stats.ID, s.ID)
	}
	if stats.MountedSlots != 1 {
		t.Errorf("MountedSlots = %d, want 1", stats.MountedSlots)
	}
	if stats.Path != "/lineage" {
		t.Errorf("Path = %q, want /lineage", stats.Path)
	}
}

func TestSessionIdleTracking(t *testing.T) {
	s := NewMockSession()

	s.lastEvent.Store(time.Now().Add(-time.Hour).UnixNano())
	if s.idleFor() < 30*time.Minute {
		t.Fatalf("idleFor = %v, want about an hour", s.idleFor())
	}

	s.markEvent()
	if s.idleFor() > time.Minute {
		t.Errorf("idleFor = %v after markEvent, want near zero", s.idleFor())
	}
}
