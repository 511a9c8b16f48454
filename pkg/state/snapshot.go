package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/DataRecce/recce-sub014/pkg/slot"
)

// Snapshot is the JSON-serializable state of a detached session. It
// carries the view state of every snapshot-capable slot keyed by slot
// name, plus the path the client was on when it disconnected.
type Snapshot struct {
	// ID uniquely identifies this snapshot.
	ID string `json:"id"`

	// SessionID is the session the snapshot belongs to.
	SessionID string `json:"session_id"`

	// Path is the canonical navigation path at detach time.
	Path string `json:"path,omitempty"`

	// TakenAt is when the snapshot was captured.
	TakenAt time.Time `json:"taken_at"`

	// Views contains per-slot view state keyed by slot name. Slots
	// whose views don't implement slot.Snapshotter are absent.
	Views map[string]json.RawMessage `json:"views,omitempty"`

	// Version is the serialization format version.
	Version int `json:"version"`
}

// CurrentSnapshotVersion is the current version of the snapshot format.
// Increment when making breaking changes to the format.
const CurrentSnapshotVersion = 1

// NewSnapshot creates an empty snapshot for a session.
func NewSnapshot(sessionID, path string) *Snapshot {
	return &Snapshot{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Path:      path,
		TakenAt:   time.Now().UTC(),
		Views:     make(map[string]json.RawMessage),
	}
}

// Capture records the state of every snapshot-capable view in the
// registry. Views that don't implement slot.Snapshotter are skipped;
// they start fresh on resume.
func (s *Snapshot) Capture(reg *slot.Registry) error {
	for _, h := range reg.Handles() {
		snapper, ok := h.View().(slot.Snapshotter)
		if !ok {
			continue
		}
		data, err := snapper.StateJSON()
		if err != nil {
			return fmt.Errorf("state: capture slot %q: %w", h.Name(), err)
		}
		if s.Views == nil {
			s.Views = make(map[string]json.RawMessage)
		}
		s.Views[h.Name()] = data
	}
	return nil
}

// Restore pushes captured view state back into matching registry slots.
// Snapshot entries without a registered slot are dropped silently, so a
// snapshot taken under an older slot layout still restores what it can.
func (s *Snapshot) Restore(reg *slot.Registry) error {
	for name, data := range s.Views {
		h, ok := reg.Handle(name)
		if !ok {
			continue
		}
		snapper, ok := h.View().(slot.Snapshotter)
		if !ok {
			continue
		}
		if err := snapper.RestoreJSON(data); err != nil {
			return fmt.Errorf("state: restore slot %q: %w", name, err)
		}
	}
	return nil
}

// EncodeSnapshot converts a snapshot to bytes, stamping the current
// format version.
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	s.Version = CurrentSnapshotVersion
	return json.Marshal(s)
}

// DecodeSnapshot converts bytes back to a Snapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
