package slot

import (
	"github.com/DataRecce/recce-sub014/pkg/router"
	"github.com/DataRecce/recce-sub014/pkg/vdom"
)

// VisibilityState maps every registered slot name to whether it is
// presented after a navigation. At most one entry is true.
type VisibilityState map[string]bool

// Visible returns the name of the presented slot, or "" when every slot is
// hidden.
func (v VisibilityState) Visible() string {
	for name, on := range v {
		if on {
			return name
		}
	}
	return ""
}

// Equal reports whether two visibility states present the same slots.
func (v VisibilityState) Equal(o VisibilityState) bool {
	if len(v) != len(o) {
		return false
	}
	for name, on := range v {
		if o[name] != on {
			return false
		}
	}
	return true
}

// Apply reconciles every mounted slot against the route match of the
// current navigation. The slot named by a matched route becomes visible;
// all other slots, and every slot on an unmatched route, become hidden.
// No slot is ever unmounted.
//
// Apply returns the resulting visibility state together with the patches
// that realize it. It is idempotent: re-applying the same match returns an
// equal state and no patches.
func Apply(m router.Match, reg *Registry) (VisibilityState, []vdom.Patch) {
	handles := reg.Handles()
	state := make(VisibilityState, len(handles))
	var patches []vdom.Patch
	for _, h := range handles {
		visible := m.Matched && m.Slot == h.name
		state[h.name] = visible
		patches = append(patches, transition(h, visible)...)
	}
	return state, patches
}

// transition moves one handle to the wanted visibility. The view receives
// its visibility signal on every navigation; patches are emitted only when
// the mount state actually changes, and only as hidden-attribute toggles
// on the slot container.
func transition(h *Handle, visible bool) []vdom.Patch {
	h.view.SetVisible(visible)

	next := MountedHidden
	if visible {
		next = MountedVisible
	}
	if h.State() == next {
		return nil
	}
	h.setState(next)

	if visible {
		return []vdom.Patch{vdom.NewShowPatch(h.hid)}
	}
	return []vdom.Patch{vdom.NewHidePatch(h.hid)}
}
