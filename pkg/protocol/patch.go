package protocol

import "github.com/DataRecce/recce-sub014/pkg/vdom"

// PatchOp is the wire form of a patch operation. Values match
// vdom.PatchOp one to one.
type PatchOp uint8

const (
	PatchSetText     PatchOp = 0x01
	PatchSetAttr     PatchOp = 0x02
	PatchRemoveAttr  PatchOp = 0x03
	PatchInsertNode  PatchOp = 0x04
	PatchRemoveNode  PatchOp = 0x05
	PatchReplaceNode PatchOp = 0x06
	PatchScrollTo    PatchOp = 0x07
)

// String returns the string representation of the patch operation.
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

// Patch is one presentation operation on the wire.
type Patch struct {
	Op       PatchOp
	HID      string     // Target node's hydration ID
	Key      string     // Attribute key for SetAttr/RemoveAttr
	Value    string     // Text or attribute value
	ParentID string     // Parent HID for InsertNode
	Index    int        // Insert position
	Node     *VNodeWire // For InsertNode/ReplaceNode
	X, Y     int        // For ScrollTo
}

// PatchFromVDOM converts a vdom patch to its wire form.
func PatchFromVDOM(p vdom.Patch) Patch {
	wire := Patch{
		Op:       PatchOp(p.Op),
		HID:      p.HID,
		Key:      p.Key,
		Value:    p.Value,
		ParentID: p.ParentID,
		Index:    p.Index,
		X:        p.X,
		Y:        p.Y,
	}
	if p.Node != nil {
		wire.Node = VNodeToWire(p.Node)
	}
	return wire
}

// PatchesFromVDOM converts a batch of vdom patches to wire form.
func PatchesFromVDOM(patches []vdom.Patch) []Patch {
	if len(patches) == 0 {
		return nil
	}
	out := make([]Patch, len(patches))
	for i, p := range patches {
		out[i] = PatchFromVDOM(p)
	}
	return out
}

// PatchesFrame is a sequenced batch of patches. The client applies
// batches in sequence order and acknowledges them by sequence number.
type PatchesFrame struct {
	Seq     uint64
	Patches []Patch
}

// EncodePatches encodes a patches frame to bytes.
func EncodePatches(pf *PatchesFrame) []byte {
	e := NewEncoder()
	e.WriteUvarint(pf.Seq)
	e.WriteUvarint(uint64(len(pf.Patches)))
	for i := range pf.Patches {
		encodePatch(e, &pf.Patches[i])
	}
	return e.Bytes()
}

func encodePatch(e *Encoder, p *Patch) {
	e.WriteByte(byte(p.Op))
	e.WriteString(p.HID)

	switch p.Op {
	case PatchSetText:
		e.WriteString(p.Value)

	case PatchSetAttr:
		e.WriteString(p.Key)
		e.WriteString(p.Value)

	case PatchRemoveAttr:
		e.WriteString(p.Key)

	case PatchInsertNode:
		e.WriteString(p.ParentID)
		e.WriteUvarint(uint64(p.Index))
		EncodeVNodeWire(e, p.Node)

	case PatchRemoveNode:
		// HID is sufficient.

	case PatchReplaceNode:
		EncodeVNodeWire(e, p.Node)

	case PatchScrollTo:
		e.WriteSvarint(int64(p.X))
		e.WriteSvarint(int64(p.Y))
	}
}

// DecodePatches decodes a patches frame from bytes.
func DecodePatches(data []byte) (*PatchesFrame, error) {
	d := NewDecoder(data)

	seq, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	count, err := d.ReadCollectionCount()
	if err != nil {
		return nil, err
	}

	patches := make([]Patch, count)
	for i := 0; i < count; i++ {
		if err := decodePatch(d, &patches[i]); err != nil {
			return nil, err
		}
	}

	return &PatchesFrame{Seq: seq, Patches: patches}, nil
}

func decodePatch(d *Decoder, p *Patch) error {
	opByte, err := d.ReadByte()
	if err != nil {
		return err
	}
	p.Op = PatchOp(opByte)

	if p.HID, err = d.ReadString(); err != nil {
		return err
	}

	switch p.Op {
	case PatchSetText:
		p.Value, err = d.ReadString()

	case PatchSetAttr:
		if p.Key, err = d.ReadString(); err != nil {
			return err
		}
		p.Value, err = d.ReadString()

	case PatchRemoveAttr:
		p.Key, err = d.ReadString()

	case PatchInsertNode:
		if p.ParentID, err = d.ReadString(); err != nil {
			return err
		}
		var idx uint64
		if idx, err = d.ReadUvarint(); err != nil {
			return err
		}
		p.Index = int(idx)
		p.Node, err = DecodeVNodeWire(d)

	case PatchRemoveNode:
		// HID is sufficient.

	case PatchReplaceNode:
		p.Node, err = DecodeVNodeWire(d)

	case PatchScrollTo:
		var x, y int64
		if x, err = d.ReadSvarint(); err != nil {
			return err
		}
		if y, err = d.ReadSvarint(); err != nil {
			return err
		}
		p.X = int(x)
		p.Y = int(y)

	default:
		// Unknown op: nothing further to read, keep going.
	}

	return err
}
