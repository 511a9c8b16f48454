package protocol

import "errors"

// EventType identifies a client interaction.
type EventType uint8

const (
	// EventNavigate is a location change. The server resolves the new
	// path and answers with visibility patches.
	EventNavigate EventType = 0x01

	// EventSelectNode selects a node in the lineage graph.
	EventSelectNode EventType = 0x02

	// EventToggleColumn expands or collapses a column on a graph node.
	EventToggleColumn EventType = 0x03

	// EventViewport reports a pan or zoom of the graph canvas.
	EventViewport EventType = 0x04

	// EventRunQuery submits the query editor's statement for execution.
	EventRunQuery EventType = 0x05

	// EventCancelQuery aborts the running query.
	EventCancelQuery EventType = 0x06

	// EventResize reports a browser viewport resize.
	EventResize EventType = 0x07

	// EventCustom carries application-defined payloads.
	EventCustom EventType = 0xFF
)

// String returns the string representation of the event type.
func (et EventType) String() string {
	switch et {
	case EventNavigate:
		return "Navigate"
	case EventSelectNode:
		return "SelectNode"
	case EventToggleColumn:
		return "ToggleColumn"
	case EventViewport:
		return "Viewport"
	case EventRunQuery:
		return "RunQuery"
	case EventCancelQuery:
		return "CancelQuery"
	case EventResize:
		return "Resize"
	case EventCustom:
		return "Custom"
	default:
		return "Unknown"
	}
}

// NavigateEventData is the payload of EventNavigate.
type NavigateEventData struct {
	Path    string // Target path, including query
	Replace bool   // True for history.replaceState navigations
}

// SelectNodeEventData is the payload of EventSelectNode.
type SelectNodeEventData struct {
	NodeID   string
	Additive bool // True when the selection extends the current set
}

// ToggleColumnEventData is the payload of EventToggleColumn.
type ToggleColumnEventData struct {
	NodeID string
	Column string
}

// ViewportEventData is the payload of EventViewport.
type ViewportEventData struct {
	X    float64
	Y    float64
	Zoom float64
}

// RunQueryEventData is the payload of EventRunQuery.
type RunQueryEventData struct {
	SQL   string
	Limit uint32 // Row limit, 0 for the server default
}

// ResizeEventData is the payload of EventResize.
type ResizeEventData struct {
	Width  uint16
	Height uint16
}

// CustomEventData is the payload of EventCustom.
type CustomEventData struct {
	Name string
	Data []byte
}

// Event is one decoded client interaction.
type Event struct {
	Seq     uint64
	Type    EventType
	HID     string // Originating element, empty for document-level events
	Payload any    // Type-specific payload, nil for payload-free events
}

// Event encoding errors.
var (
	ErrInvalidEventType = errors.New("protocol: invalid event type")
	ErrInvalidPayload   = errors.New("protocol: invalid event payload")
)

// EncodeEvent encodes an event to bytes.
func EncodeEvent(ev *Event) []byte {
	e := NewEncoder()
	e.WriteUvarint(ev.Seq)
	e.WriteByte(byte(ev.Type))
	e.WriteString(ev.HID)

	switch ev.Type {
	case EventNavigate:
		data, _ := ev.Payload.(*NavigateEventData)
		if data == nil {
			data = &NavigateEventData{}
		}
		e.WriteString(data.Path)
		e.WriteBool(data.Replace)

	case EventSelectNode:
		data, _ := ev.Payload.(*SelectNodeEventData)
		if data == nil {
			data = &SelectNodeEventData{}
		}
		e.WriteString(data.NodeID)
		e.WriteBool(data.Additive)

	case EventToggleColumn:
		data, _ := ev.Payload.(*ToggleColumnEventData)
		if data == nil {
			data = &ToggleColumnEventData{}
		}
		e.WriteString(data.NodeID)
		e.WriteString(data.Column)

	case EventViewport:
		data, _ := ev.Payload.(*ViewportEventData)
		if data == nil {
			data = &ViewportEventData{}
		}
		e.WriteFloat64(data.X)
		e.WriteFloat64(data.Y)
		e.WriteFloat64(data.Zoom)

	case EventRunQuery:
		data, _ := ev.Payload.(*RunQueryEventData)
		if data == nil {
			data = &RunQueryEventData{}
		}
		e.WriteString(data.SQL)
		e.WriteUint32(data.Limit)

	case EventCancelQuery:
		// No payload.

	case EventResize:
		data, _ := ev.Payload.(*ResizeEventData)
		if data == nil {
			data = &ResizeEventData{}
		}
		e.WriteUint16(data.Width)
		e.WriteUint16(data.Height)

	case EventCustom:
		data, _ := ev.Payload.(*CustomEventData)
		if data == nil {
			data = &CustomEventData{}
		}
		e.WriteString(data.Name)
		e.WriteLenBytes(data.Data)
	}

	return e.Bytes()
}

// DecodeEvent decodes an event from bytes.
func DecodeEvent(data []byte) (*Event, error) {
	d := NewDecoder(data)
	ev := &Event{}

	seq, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	ev.Seq = seq

	typeByte, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	ev.Type = EventType(typeByte)

	if ev.HID, err = d.ReadString(); err != nil {
		return nil, err
	}

	switch ev.Type {
	case EventNavigate:
		payload := &NavigateEventData{}
		if payload.Path, err = d.ReadString(); err != nil {
			return nil, err
		}
		if payload.Replace, err = d.ReadBool(); err != nil {
			return nil, err
		}
		ev.Payload = payload

	case EventSelectNode:
		payload := &SelectNodeEventData{}
		if payload.NodeID, err = d.ReadString(); err != nil {
			return nil, err
		}
		if payload.Additive, err = d.ReadBool(); err != nil {
			return nil, err
		}
		ev.Payload = payload

	case EventToggleColumn:
		payload := &ToggleColumnEventData{}
		if payload.NodeID, err = d.ReadString(); err != nil {
			return nil, err
		}
		if payload.Column, err = d.ReadString(); err != nil {
			return nil, err
		}
		ev.Payload = payload

	case EventViewport:
		payload := &ViewportEventData{}
		if payload.X, err = d.ReadFloat64(); err != nil {
			return nil, err
		}
		if payload.Y, err = d.ReadFloat64(); err != nil {
			return nil, err
		}
		if payload.Zoom, err = d.ReadFloat64(); err != nil {
			return nil, err
		}
		ev.Payload = payload

	case EventRunQuery:
		payload := &RunQueryEventData{}
		if payload.SQL, err = d.ReadString(); err != nil {
			return nil, err
		}
		if payload.Limit, err = d.ReadUint32(); err != nil {
			return nil, err
		}
		ev.Payload = payload

	case EventCancelQuery:
		// No payload.

	case EventResize:
		payload := &ResizeEventData{}
		if payload.Width, err = d.ReadUint16(); err != nil {
			return nil, err
		}
		if payload.Height, err = d.ReadUint16(); err != nil {
			return nil, err
		}
		ev.Payload = payload

	case EventCustom:
		payload := &CustomEventData{}
		if payload.Name, err = d.ReadString(); err != nil {
			return nil, err
		}
		if payload.Data, err = d.ReadLenBytes(); err != nil {
			return nil, err
		}
		ev.Payload = payload

	default:
		return nil, ErrInvalidEventType
	}

	return ev, nil
}

// NewNavigateEvent creates a navigation event for path.
func NewNavigateEvent(seq uint64, path string, replace bool) *Event {
	return &Event{
		Seq:     seq,
		Type:    EventNavigate,
		Payload: &NavigateEventData{Path: path, Replace: replace},
	}
}
