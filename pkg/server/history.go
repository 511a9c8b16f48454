package server

import "sync"

// PatchHistory retains the most recent encoded patch frames so a resumed
// session can replay what a briefly disconnected client missed. It is a
// fixed-capacity ring: old frames are evicted as new ones arrive, and a
// client whose last acknowledged sequence predates the oldest retained
// frame cannot be recovered by replay.
type PatchHistory struct {
	mu      sync.Mutex
	entries []historyEntry
	next    int
	count   int
	maxSeq  uint64
}

type historyEntry struct {
	seq   uint64
	frame []byte
}

// NewPatchHistory creates a history retaining up to capacity frames.
// Capacity below one is clamped to one.
func NewPatchHistory(capacity int) *PatchHistory {
	if capacity < 1 {
		capacity = 1
	}
	return &PatchHistory{
		entries: make([]historyEntry, capacity),
	}
}

// Add stores a copy of an encoded frame under its sequence number.
// Sequence numbers must be added in increasing order.
func (h *PatchHistory) Add(seq uint64, frame []byte) {
	buf := make([]byte, len(frame))
	copy(buf, frame)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[h.next] = historyEntry{seq: seq, frame: buf}
	h.next = (h.next + 1) % len(h.entries)
	if h.count < len(h.entries) {
		h.count++
	}
	if seq > h.maxSeq {
		h.maxSeq = seq
	}
}

// FramesSince returns the retained frames with sequence numbers greater
// than afterSeq, in send order. ok=false reports a gap: at least one frame
// after afterSeq has already been evicted, so replay cannot reconstruct the
// stream and the caller must fall back to a full resync.
func (h *PatchHistory) FramesSince(afterSeq uint64) (frames [][]byte, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if afterSeq >= h.maxSeq {
		return nil, true
	}
	if h.count == 0 || afterSeq+1 < h.oldestLocked() {
		return nil, false
	}

	start := (h.next - h.count + len(h.entries)) % len(h.entries)
	for i := 0; i < h.count; i++ {
		e := h.entries[(start+i)%len(h.entries)]
		if e.seq > afterSeq {
			frames = append(frames, e.frame)
		}
	}
	return frames, true
}

// CanRecover reports whether a client that last saw lastSeq can be brought
// current by replaying retained frames.
func (h *PatchHistory) CanRecover(lastSeq uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if lastSeq >= h.maxSeq {
		return true
	}
	return h.count > 0 && lastSeq+1 >= h.oldestLocked()
}

// oldestLocked returns the sequence number of the oldest retained frame.
// Caller holds h.mu; h.count must be positive.
func (h *PatchHistory) oldestLocked() uint64 {
	start := (h.next - h.count + len(h.entries)) % len(h.entries)
	return h.entries[start].seq
}

// MinSeq returns the oldest retained sequence number, or 0 when empty.
func (h *PatchHistory) MinSeq() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		return 0
	}
	return h.oldestLocked()
}

// MaxSeq returns the highest sequence number ever added, or 0.
func (h *PatchHistory) MaxSeq() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.maxSeq
}

// Count returns the number of retained frames.
func (h *PatchHistory) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Clear drops all retained frames but keeps the high-water sequence, so
// recovery checks remain correct across a resume.
func (h *PatchHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.entries {
		h.entries[i] = historyEntry{}
	}
	h.next = 0
	h.count = 0
}
