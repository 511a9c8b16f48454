package vdom

import "fmt"

// VKind is the node type discriminator.
type VKind uint8

const (
	KindElement  VKind = iota // <div>, <section>, etc.
	KindText                  // Plain text node
	KindFragment              // Grouping without wrapper
)

// String returns the string representation of the VKind.
func (k VKind) String() string {
	switch k {
	case KindElement:
		return "Element"
	case KindText:
		return "Text"
	case KindFragment:
		return "Fragment"
	default:
		return "Unknown"
	}
}

// VNode is a virtual presentation node.
type VNode struct {
	Kind     VKind    // Node type
	Tag      string   // Element tag name (e.g., "div")
	Props    Props    // Attributes
	Children []*VNode // Child nodes
	Key      string   // Reconciliation key
	Text     string   // For KindText
	HID      string   // Stable hydration ID addressing this node in patches
}

// Props holds element attributes.
type Props map[string]any

// Attr returns the string form of an attribute value, if present.
func (p Props) Attr(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case fmt.Stringer:
		return s.String(), true
	default:
		return fmt.Sprint(v), true
	}
}

// El creates an element node.
func El(tag string, props Props, children ...*VNode) *VNode {
	node := &VNode{
		Kind:  KindElement,
		Tag:   tag,
		Props: props,
	}
	for _, child := range children {
		if child != nil {
			node.Children = append(node.Children, child)
		}
	}
	return node
}

// Text creates a text node.
func Text(content string) *VNode {
	return &VNode{
		Kind: KindText,
		Text: content,
	}
}

// Textf creates a formatted text node.
func Textf(format string, args ...any) *VNode {
	return Text(fmt.Sprintf(format, args...))
}

// Fragment groups children without a wrapper element.
// Nil children are skipped.
func Fragment(children ...*VNode) *VNode {
	node := &VNode{
		Kind: KindFragment,
	}
	for _, child := range children {
		if child != nil {
			node.Children = append(node.Children, child)
		}
	}
	return node
}

// WithHID sets the node's hydration ID and returns the node.
func (v *VNode) WithHID(hid string) *VNode {
	v.HID = hid
	return v
}

// WithKey sets the node's reconciliation key and returns the node.
func (v *VNode) WithKey(key string) *VNode {
	v.Key = key
	return v
}

// Walk visits v and every descendant in depth-first order.
// Walking stops early if fn returns false.
func (v *VNode) Walk(fn func(*VNode) bool) bool {
	if v == nil {
		return true
	}
	if !fn(v) {
		return false
	}
	for _, child := range v.Children {
		if !child.Walk(fn) {
			return false
		}
	}
	return true
}

// FindHID returns the first node in the tree with the given HID.
func (v *VNode) FindHID(hid string) *VNode {
	var found *VNode
	v.Walk(func(n *VNode) bool {
		if n.HID == hid {
			found = n
			return false
		}
		return true
	})
	return found
}
