package state

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/DataRecce/recce-sub014/pkg/slot"
	"github.com/DataRecce/recce-sub014/pkg/vdom"
)

// snapView is a slot view whose state survives detach via StateJSON.
type snapView struct {
	visible  bool
	Selected string
	failWith error
}

func (v *snapView) Render() *vdom.VNode    { return vdom.Text("snap") }
func (v *snapView) SetVisible(visible bool) { v.visible = visible }

func (v *snapView) StateJSON() ([]byte, error) {
	if v.failWith != nil {
		return nil, v.failWith
	}
	return json.Marshal(map[string]string{"selected": v.Selected})
}

func (v *snapView) RestoreJSON(data []byte) error {
	if v.failWith != nil {
		return v.failWith
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	v.Selected = m["selected"]
	return nil
}

// plainView has no snapshot support.
type plainView struct {
	visible bool
}

func (v *plainView) Render() *vdom.VNode    { return vdom.Text("plain") }
func (v *plainView) SetVisible(visible bool) { v.visible = visible }

func TestSnapshotEncodeDecode(t *testing.T) {
	snap := NewSnapshot("session-1", "/lineage")
	snap.Views["lineage"] = json.RawMessage(`{"selected":"stg_orders"}`)

	data, err := EncodeSnapshot(snap)
	if err != nil {
		t.Fatalf("EncodeSnapshot failed: %v", err)
	}

	decoded, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot failed: %v", err)
	}

	if decoded.ID != snap.ID {
		t.Errorf("ID: got %q want %q", decoded.ID, snap.ID)
	}
	if decoded.SessionID != "session-1" {
		t.Errorf("SessionID: got %q want %q", decoded.SessionID, "session-1")
	}
	if decoded.Path != "/lineage" {
		t.Errorf("Path: got %q want %q", decoded.Path, "/lineage")
	}
	if decoded.Version != CurrentSnapshotVersion {
		t.Errorf("Version: got %d want %d", decoded.Version, CurrentSnapshotVersion)
	}
	if string(decoded.Views["lineage"]) != `{"selected":"stg_orders"}` {
		t.Errorf("Views[lineage]: got %s", decoded.Views["lineage"])
	}
}

func TestSnapshotIDsUnique(t *testing.T) {
	a := NewSnapshot("s", "/")
	b := NewSnapshot("s", "/")
	if a.ID == b.ID {
		t.Errorf("snapshot IDs collide: %q", a.ID)
	}
}

func TestSnapshotDecodeInvalid(t *testing.T) {
	if _, err := DecodeSnapshot([]byte("not json")); err == nil {
		t.Error("DecodeSnapshot accepted invalid JSON")
	}
}

func TestSnapshotCapture(t *testing.T) {
	reg := slot.NewRegistry(nil)
	lineage := &snapView{Selected: "stg_orders"}
	if _, err := reg.Register("lineage", func() (slot.View, error) { return lineage, nil }); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := reg.Register("query", func() (slot.View, error) { return &plainView{}, nil }); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	snap := NewSnapshot("session-1", "/lineage")
	if err := snap.Capture(reg); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	if _, ok := snap.Views["lineage"]; !ok {
		t.Error("snapshot-capable slot missing from capture")
	}
	if _, ok := snap.Views["query"]; ok {
		t.Error("plain slot captured; views without StateJSON must be skipped")
	}
	if string(snap.Views["lineage"]) != `{"selected":"stg_orders"}` {
		t.Errorf("captured state: got %s", snap.Views["lineage"])
	}
}

func TestSnapshotCaptureError(t *testing.T) {
	reg := slot.NewRegistry(nil)
	boom := errors.New("boom")
	if _, err := reg.Register("lineage", func() (slot.View, error) { return &snapView{failWith: boom}, nil }); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	snap := NewSnapshot("session-1", "/lineage")
	err := snap.Capture(reg)
	if err == nil {
		t.Fatal("Capture succeeded with failing view")
	}
	if !errors.Is(err, boom) {
		t.Errorf("Capture error does not wrap cause: %v", err)
	}
	if !strings.Contains(err.Error(), `"lineage"`) {
		t.Errorf("Capture error does not name the slot: %v", err)
	}
}

func TestSnapshotRestore(t *testing.T) {
	reg := slot.NewRegistry(nil)
	lineage := &snapView{}
	if _, err := reg.Register("lineage", func() (slot.View, error) { return lineage, nil }); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	snap := NewSnapshot("session-1", "/lineage")
	snap.Views["lineage"] = json.RawMessage(`{"selected":"dim_customers"}`)
	snap.Views["retired-slot"] = json.RawMessage(`{"gone":true}`)

	if err := snap.Restore(reg); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if lineage.Selected != "dim_customers" {
		t.Errorf("restored state: got %q want %q", lineage.Selected, "dim_customers")
	}
}

func TestSnapshotRoundTripThroughRegistry(t *testing.T) {
	src := slot.NewRegistry(nil)
	before := &snapView{Selected: "fct_sales"}
	if _, err := src.Register("lineage", func() (slot.View, error) { return before, nil }); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	snap := NewSnapshot("session-1", "/lineage")
	if err := snap.Capture(src); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	data, err := EncodeSnapshot(snap)
	if err != nil {
		t.Fatalf("EncodeSnapshot failed: %v", err)
	}

	// Fresh registry, as after a server restart.
	dst := slot.NewRegistry(nil)
	after := &snapView{}
	if _, err := dst.Register("lineage", func() (slot.View, error) { return after, nil }); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	decoded, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot failed: %v", err)
	}
	if err := decoded.Restore(dst); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	if after.Selected != "fct_sales" {
		t.Errorf("round trip lost state: got %q want %q", after.Selected, "fct_sales")
	}
}
