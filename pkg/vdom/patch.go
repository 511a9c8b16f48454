package vdom

// PatchOp is the type of patch operation.
type PatchOp uint8

const (
	PatchSetText     PatchOp = 0x01 // Update text content
	PatchSetAttr     PatchOp = 0x02 // Set/update attribute
	PatchRemoveAttr  PatchOp = 0x03 // Remove attribute
	PatchInsertNode  PatchOp = 0x04 // Insert new node
	PatchRemoveNode  PatchOp = 0x05 // Remove node
	PatchReplaceNode PatchOp = 0x06 // Replace node entirely
	PatchScrollTo    PatchOp = 0x07 // Scroll element to position
)

// String returns the string representation of the PatchOp.
func (op PatchOp) String() string {
	switch op {
	case PatchSetText:
		return "SetText"
	case PatchSetAttr:
		return "SetAttr"
	case PatchRemoveAttr:
		return "RemoveAttr"
	case PatchInsertNode:
		return "InsertNode"
	case PatchRemoveNode:
		return "RemoveNode"
	case PatchReplaceNode:
		return "ReplaceNode"
	case PatchScrollTo:
		return "ScrollTo"
	default:
		return "Unknown"
	}
}

// Patch represents a single presentation operation to apply.
type Patch struct {
	Op       PatchOp // Operation type
	HID      string  // Target node's hydration ID
	Key      string  // Attribute key (for SetAttr/RemoveAttr)
	Value    string  // New value
	Node     *VNode  // For InsertNode/ReplaceNode
	Index    int     // Insert position
	ParentID string  // Parent HID for InsertNode
	X, Y     int     // For ScrollTo
}

// HiddenAttr is the attribute toggled to show or hide a node subtree.
// Toggling it never detaches the subtree, so node state survives.
const HiddenAttr = "hidden"

// NewSetTextPatch creates a SetText patch.
func NewSetTextPatch(hid, text string) Patch {
	return Patch{Op: PatchSetText, HID: hid, Value: text}
}

// NewSetAttrPatch creates a SetAttr patch.
func NewSetAttrPatch(hid, key, value string) Patch {
	return Patch{Op: PatchSetAttr, HID: hid, Key: key, Value: value}
}

// NewRemoveAttrPatch creates a RemoveAttr patch.
func NewRemoveAttrPatch(hid, key string) Patch {
	return Patch{Op: PatchRemoveAttr, HID: hid, Key: key}
}

// NewInsertNodePatch creates an InsertNode patch.
func NewInsertNodePatch(parentID string, index int, node *VNode) Patch {
	return Patch{Op: PatchInsertNode, ParentID: parentID, Index: index, Node: node, HID: nodeHID(node)}
}

// NewRemoveNodePatch creates a RemoveNode patch.
func NewRemoveNodePatch(hid string) Patch {
	return Patch{Op: PatchRemoveNode, HID: hid}
}

// NewReplaceNodePatch creates a ReplaceNode patch.
func NewReplaceNodePatch(hid string, node *VNode) Patch {
	return Patch{Op: PatchReplaceNode, HID: hid, Node: node}
}

// NewScrollToPatch creates a ScrollTo patch.
func NewScrollToPatch(hid string, x, y int) Patch {
	return Patch{Op: PatchScrollTo, HID: hid, X: x, Y: y}
}

// NewHidePatch hides the node subtree without detaching it.
func NewHidePatch(hid string) Patch {
	return NewSetAttrPatch(hid, HiddenAttr, "")
}

// NewShowPatch reveals a subtree hidden by NewHidePatch.
func NewShowPatch(hid string) Patch {
	return NewRemoveAttrPatch(hid, HiddenAttr)
}

func nodeHID(node *VNode) string {
	if node == nil {
		return ""
	}
	return node.HID
}
