package slot

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry owns the mounted slot handles of one session. Registration is
// idempotent and construction-once; lookups never construct.
//
// A session's event loop is the only writer. Reads may come from other
// goroutines (snapshots, stats), so access is guarded by a RWMutex.
type Registry struct {
	mu     sync.RWMutex
	slots  map[string]*Handle
	logger *slog.Logger
}

// NewRegistry creates an empty registry. A nil logger defaults to
// slog.Default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		slots:  make(map[string]*Handle),
		logger: logger.With("component", "slot-registry"),
	}
}

// Register returns the handle for name, constructing the view on first
// call. Subsequent calls for the same name return the existing handle
// without invoking build. If build fails the registry is left unchanged
// and the error is returned wrapped in *InitError, so the caller may retry
// on a later navigation.
func (r *Registry) Register(name string, build Constructor) (*Handle, error) {
	if build == nil {
		return nil, ErrNilConstructor
	}

	r.mu.RLock()
	h, ok := r.slots[name]
	r.mu.RUnlock()
	if ok {
		return h, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check: another registration may have won the race between the
	// read unlock and the write lock.
	if h, ok := r.slots[name]; ok {
		return h, nil
	}

	view, err := build()
	if err != nil {
		r.logger.Warn("slot view construction failed",
			"slot", name,
			"error", err)
		return nil, &InitError{Slot: name, Err: err}
	}

	h = newHandle(name, view)
	r.slots[name] = h
	r.logger.Debug("slot mounted",
		"slot", name,
		"handle_id", h.id)
	return h, nil
}

// Handle returns the mounted handle for name. It never constructs; a name
// that was never successfully registered reports ok=false.
func (r *Registry) Handle(name string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.slots[name]
	return h, ok
}

// Handles returns all mounted handles sorted by slot name.
func (r *Registry) Handles() []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Handle, 0, len(r.slots))
	for _, h := range r.slots {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Names returns the registered slot names sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.slots))
	for name := range r.slots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of mounted slots.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots)
}
