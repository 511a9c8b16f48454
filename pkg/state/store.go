package state

import (
	"context"
	"time"
)

// Store is the interface for snapshot persistence backends.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores a serialized snapshot with an expiration time.
	// Saving over an existing session ID replaces the previous snapshot.
	Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error

	// Load retrieves a snapshot if it exists and hasn't expired.
	// Returns nil data (no error) if the snapshot doesn't exist.
	Load(ctx context.Context, sessionID string) ([]byte, error)

	// Delete removes a snapshot from the store.
	Delete(ctx context.Context, sessionID string) error

	// Touch extends the expiration time of a snapshot without rewriting it.
	Touch(ctx context.Context, sessionID string, expiresAt time.Time) error

	// SaveAll persists multiple snapshots at once, used during graceful
	// shutdown to flush every detached session in one pass.
	SaveAll(ctx context.Context, snapshots map[string]SnapshotData) error

	// Close releases any resources held by the store.
	Close() error
}

// SnapshotData pairs a serialized snapshot with its expiration time.
type SnapshotData struct {
	Data      []byte
	ExpiresAt time.Time
}

// SnapshotNotFoundError is returned when a snapshot doesn't exist.
type SnapshotNotFoundError struct {
	SessionID string
}

func (e SnapshotNotFoundError) Error() string {
	return "state: snapshot not found: " + e.SessionID
}

// ErrStoreClosed is returned when operations are attempted on a closed store.
type ErrStoreClosed struct{}

func (ErrStoreClosed) Error() string {
	return "state: store is closed"
}
