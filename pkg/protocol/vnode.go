package protocol

import (
	"errors"

	"github.com/DataRecce/recce-sub014/pkg/vdom"
)

// MaxVNodeDepth limits the nesting depth accepted when decoding a node
// tree, preventing stack exhaustion from maliciously deep input.
const MaxVNodeDepth = 256

// ErrMaxDepthExceeded reports a node tree nested beyond MaxVNodeDepth.
var ErrMaxDepthExceeded = errors.New("protocol: maximum nesting depth exceeded")

// nullNodeMarker encodes a nil node.
const nullNodeMarker = 0xFF

// VNodeWire is the wire form of a vdom.VNode: only serializable data,
// with props flattened to string attributes.
type VNodeWire struct {
	Kind     vdom.VKind
	Tag      string
	HID      string
	Attrs    map[string]string
	Children []*VNodeWire
	Text     string
}

// VNodeToWire converts a vdom.VNode tree to wire format.
func VNodeToWire(node *vdom.VNode) *VNodeWire {
	if node == nil {
		return nil
	}

	w := &VNodeWire{
		Kind: node.Kind,
		Tag:  node.Tag,
		HID:  node.HID,
		Text: node.Text,
	}

	if len(node.Props) > 0 {
		w.Attrs = make(map[string]string, len(node.Props))
		for key := range node.Props {
			if value, ok := node.Props.Attr(key); ok {
				w.Attrs[key] = value
			}
		}
	}

	if len(node.Children) > 0 {
		w.Children = make([]*VNodeWire, 0, len(node.Children))
		for _, child := range node.Children {
			if child != nil {
				w.Children = append(w.Children, VNodeToWire(child))
			}
		}
	}

	return w
}

// ToVNode converts wire format back to a vdom.VNode.
func (w *VNodeWire) ToVNode() *vdom.VNode {
	if w == nil {
		return nil
	}

	node := &vdom.VNode{
		Kind: w.Kind,
		Tag:  w.Tag,
		HID:  w.HID,
		Text: w.Text,
	}

	if len(w.Attrs) > 0 {
		node.Props = make(vdom.Props, len(w.Attrs))
		for k, v := range w.Attrs {
			node.Props[k] = v
		}
	}

	if len(w.Children) > 0 {
		node.Children = make([]*vdom.VNode, len(w.Children))
		for i, child := range w.Children {
			node.Children[i] = child.ToVNode()
		}
	}

	return node
}

// EncodeVNodeWire encodes a node tree using the provided encoder.
func EncodeVNodeWire(e *Encoder, node *VNodeWire) {
	if node == nil {
		e.WriteByte(nullNodeMarker)
		return
	}

	e.WriteByte(byte(node.Kind))

	switch node.Kind {
	case vdom.KindElement:
		e.WriteString(node.Tag)
		e.WriteString(node.HID)

		e.WriteUvarint(uint64(len(node.Attrs)))
		for k, v := range node.Attrs {
			e.WriteString(k)
			e.WriteString(v)
		}

		e.WriteUvarint(uint64(len(node.Children)))
		for _, child := range node.Children {
			EncodeVNodeWire(e, child)
		}

	case vdom.KindText:
		e.WriteString(node.Text)

	case vdom.KindFragment:
		e.WriteUvarint(uint64(len(node.Children)))
		for _, child := range node.Children {
			EncodeVNodeWire(e, child)
		}
	}
}

// DecodeVNodeWire decodes a node tree from the decoder, enforcing
// MaxVNodeDepth.
func DecodeVNodeWire(d *Decoder) (*VNodeWire, error) {
	return decodeVNodeWire(d, 0)
}

func decodeVNodeWire(d *Decoder, depth int) (*VNodeWire, error) {
	if depth > MaxVNodeDepth {
		return nil, ErrMaxDepthExceeded
	}

	kindByte, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	if kindByte == nullNodeMarker {
		return nil, nil
	}

	node := &VNodeWire{Kind: vdom.VKind(kindByte)}

	switch node.Kind {
	case vdom.KindElement:
		if node.Tag, err = d.ReadString(); err != nil {
			return nil, err
		}
		if node.HID, err = d.ReadString(); err != nil {
			return nil, err
		}

		attrCount, err := d.ReadCollectionCount()
		if err != nil {
			return nil, err
		}
		if attrCount > 0 {
			node.Attrs = make(map[string]string, attrCount)
			for i := 0; i < attrCount; i++ {
				key, err := d.ReadString()
				if err != nil {
					return nil, err
				}
				value, err := d.ReadString()
				if err != nil {
					return nil, err
				}
				node.Attrs[key] = value
			}
		}

		if node.Children, err = decodeWireChildren(d, depth); err != nil {
			return nil, err
		}

	case vdom.KindText:
		if node.Text, err = d.ReadString(); err != nil {
			return nil, err
		}

	case vdom.KindFragment:
		if node.Children, err = decodeWireChildren(d, depth); err != nil {
			return nil, err
		}

	default:
		// Unknown kind: nothing further to read, keep going.
	}

	return node, nil
}

func decodeWireChildren(d *Decoder, depth int) ([]*VNodeWire, error) {
	count, err := d.ReadCollectionCount()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	children := make([]*VNodeWire, count)
	for i := 0; i < count; i++ {
		child, err := decodeVNodeWire(d, depth+1)
		if err != nil {
			return nil, err
		}
		children[i] = child
	}
	return children, nil
}
