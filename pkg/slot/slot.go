package slot

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/DataRecce/recce-sub014/pkg/vdom"
)

// MountState tracks where a slot sits in its lifecycle. A slot starts
// Unmounted and moves to a mounted state on first registration; it never
// returns to Unmounted within a session.
type MountState uint8

const (
	// Unmounted means the slot's view has not been constructed yet.
	Unmounted MountState = iota

	// MountedHidden means the view is alive but not presented.
	MountedHidden

	// MountedVisible means the view is alive and presented.
	MountedVisible
)

// String returns a human-readable name for the mount state.
func (s MountState) String() string {
	switch s {
	case Unmounted:
		return "unmounted"
	case MountedHidden:
		return "mounted-hidden"
	case MountedVisible:
		return "mounted-visible"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Mounted reports whether the state is one of the mounted states.
func (s MountState) Mounted() bool {
	return s == MountedHidden || s == MountedVisible
}

// View is the contract a slot-hosted view implements. Render produces the
// view's subtree for the initial mount. SetVisible delivers the visibility
// signal on every navigation; it is the only routing information a view
// receives.
type View interface {
	Render() *vdom.VNode
	SetVisible(visible bool)
}

// Snapshotter is implemented by views whose in-memory state should survive
// a session detach. StateJSON captures the state; RestoreJSON rebuilds it
// on a freshly constructed view.
type Snapshotter interface {
	StateJSON() ([]byte, error)
	RestoreJSON(data []byte) error
}

// Constructor builds a slot's view. It runs at most once per slot per
// session unless it fails, in which case registration may be retried.
type Constructor func() (View, error)

// Declaration binds a slot name to the route pattern that activates it and
// the constructor that builds its view. Applications declare slots up
// front; names and patterns must be unique across the declaration set.
type Declaration struct {
	Name  string
	Route string
	Build Constructor
}

var handleIDCounter atomic.Uint64

func generateHandleID() string {
	return fmt.Sprintf("h%d", handleIDCounter.Add(1))
}

// Handle is the stable identity of a mounted slot. Two registrations of
// the same slot within a session yield the same *Handle; pointer equality
// is the identity test.
type Handle struct {
	id        string
	name      string
	hid       string
	view      View
	mountedAt time.Time

	state atomic.Int32
}

func newHandle(name string, view View) *Handle {
	h := &Handle{
		id:        generateHandleID(),
		name:      name,
		hid:       ContainerHID(name),
		view:      view,
		mountedAt: time.Now(),
	}
	h.state.Store(int32(MountedHidden))
	return h
}

// ID returns the handle's session-unique instance ID.
func (h *Handle) ID() string { return h.id }

// Name returns the slot name the handle was registered under.
func (h *Handle) Name() string { return h.name }

// View returns the mounted view instance.
func (h *Handle) View() View { return h.view }

// ContainerHID returns the hydration ID of the DOM container that hosts
// the view's subtree. Visibility patches target this node.
func (h *Handle) ContainerHID() string { return h.hid }

// MountedAt returns when the view was constructed.
func (h *Handle) MountedAt() time.Time { return h.mountedAt }

// State returns the handle's current mount state.
func (h *Handle) State() MountState {
	return MountState(h.state.Load())
}

// setState records a transition. Mounted handles never return to
// Unmounted; such a transition is a bug in the caller.
func (h *Handle) setState(next MountState) {
	if next == Unmounted && h.State().Mounted() {
		panic("slot: illegal transition to Unmounted for mounted slot " + h.name)
	}
	h.state.Store(int32(next))
}

// Render produces the slot's container node wrapping the view's subtree.
// The container carries the slot's stable HID and, when the slot is
// hidden, the hidden attribute.
func (h *Handle) Render() *vdom.VNode {
	props := vdom.Props{"data-slot": h.name}
	if h.State() != MountedVisible {
		props[vdom.HiddenAttr] = ""
	}
	return vdom.El("div", props, h.view.Render()).WithHID(h.hid)
}

// ContainerHID returns the hydration ID used for the container node of the
// named slot.
func ContainerHID(name string) string {
	return "slot-" + name
}
