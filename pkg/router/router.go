package router

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Binding errors. All of them indicate configuration mistakes and are
// surfaced at startup, never during navigation.
var (
	ErrInvalidPattern   = errors.New("router: invalid pattern")
	ErrDuplicatePattern = errors.New("router: pattern already bound")
	ErrPatternConflict  = errors.New("router: pattern conflicts with existing binding")
)

// Match is the outcome of resolving one path. The zero value is the
// unmatched result.
type Match struct {
	// Matched reports whether the path activates a slot.
	Matched bool

	// Slot is the activated slot name ("" when unmatched).
	Slot string

	// Pattern is the bound pattern that matched.
	Pattern string

	// Params holds captured parameter segments, keyed by parameter name.
	Params map[string]string
}

// Router resolves canonical paths to slot names. Bind all patterns before
// calling Resolve; the router is immutable afterwards and safe for
// concurrent readers.
type Router struct {
	root     *node
	bindings map[string]string // pattern -> slot
}

// New creates an empty router.
func New() *Router {
	return &Router{
		root:     newNode(""),
		bindings: make(map[string]string),
	}
}

// Bind registers pattern as the activation route for slot. Binding fails
// when the pattern is malformed, already bound, or indistinguishable from
// an existing binding.
func (r *Router) Bind(pattern, slot string) error {
	if slot == "" {
		return fmt.Errorf("%w: empty slot name for %q", ErrInvalidPattern, pattern)
	}
	if pattern == "" || !strings.HasPrefix(pattern, "/") {
		return fmt.Errorf("%w: %q must start with /", ErrInvalidPattern, pattern)
	}
	if _, dup := r.bindings[pattern]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicatePattern, pattern)
	}

	leaf, err := r.root.insert(pattern)
	if err != nil {
		return fmt.Errorf("%w: %q", err, pattern)
	}
	if leaf.slot != "" {
		return fmt.Errorf("%w: %q and %q bind the same shape", ErrPatternConflict, pattern, leaf.pattern)
	}

	leaf.slot = slot
	leaf.pattern = pattern
	r.bindings[pattern] = slot
	return nil
}

// Resolve maps a canonical path to the slot it activates. Resolution is
// pure and total: it never modifies the router, and any input yields a
// Match. A path outside every binding resolves to the zero Match.
func (r *Router) Resolve(path string) Match {
	segments := splitPath(path)
	params := make(map[string]string)

	leaf, ok := r.root.match(segments, params)
	if !ok {
		return Match{}
	}

	m := Match{
		Matched: true,
		Slot:    leaf.slot,
		Pattern: leaf.pattern,
	}
	if len(params) > 0 {
		m.Params = params
	}
	return m
}

// Patterns returns every bound pattern, sorted.
func (r *Router) Patterns() []string {
	out := make([]string, 0, len(r.bindings))
	for pattern := range r.bindings {
		out = append(out, pattern)
	}
	sort.Strings(out)
	return out
}

// SlotFor returns the slot bound to the exact pattern text.
func (r *Router) SlotFor(pattern string) (string, bool) {
	slot, ok := r.bindings[pattern]
	return slot, ok
}

// Len returns the number of bindings.
func (r *Router) Len() int {
	return len(r.bindings)
}
