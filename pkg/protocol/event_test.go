package protocol

import (
	"errors"
	"reflect"
	"testing"
)

func TestEventRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		event *Event
	}{
		{
			name:  "navigate",
			event: NewNavigateEvent(7, "/lineage?model=orders", false),
		},
		{
			name: "navigate replace",
			event: &Event{
				Seq:     8,
				Type:    EventNavigate,
				Payload: &NavigateEventData{Path: "/query", Replace: true},
			},
		},
		{
			name: "select node",
			event: &Event{
				Seq:     9,
				Type:    EventSelectNode,
				HID:     "node-stg_orders",
				Payload: &SelectNodeEventData{NodeID: "model.stg_orders", Additive: true},
			},
		},
		{
			name: "toggle column",
			event: &Event{
				Seq:     10,
				Type:    EventToggleColumn,
				HID:     "node-orders",
				Payload: &ToggleColumnEventData{NodeID: "model.orders", Column: "order_id"},
			},
		},
		{
			name: "viewport",
			event: &Event{
				Seq:     11,
				Type:    EventViewport,
				Payload: &ViewportEventData{X: -120.5, Y: 48.25, Zoom: 0.75},
			},
		},
		{
			name: "run query",
			event: &Event{
				Seq:     12,
				Type:    EventRunQuery,
				HID:     "query-editor",
				Payload: &RunQueryEventData{SQL: "select * from orders", Limit: 500},
			},
		},
		{
			name:  "cancel query",
			event: &Event{Seq: 13, Type: EventCancelQuery},
		},
		{
			name: "resize",
			event: &Event{
				Seq:     14,
				Type:    EventResize,
				Payload: &ResizeEventData{Width: 1280, Height: 720},
			},
		},
		{
			name: "custom",
			event: &Event{
				Seq:     15,
				Type:    EventCustom,
				Payload: &CustomEventData{Name: "export", Data: []byte(`{"format":"csv"}`)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeEvent(EncodeEvent(tt.event))
			if err != nil {
				t.Fatalf("DecodeEvent: %v", err)
			}
			if got.Seq != tt.event.Seq || got.Type != tt.event.Type || got.HID != tt.event.HID {
				t.Errorf("envelope = (%d, %v, %q), want (%d, %v, %q)",
					got.Seq, got.Type, got.HID, tt.event.Seq, tt.event.Type, tt.event.HID)
			}
			if !reflect.DeepEqual(got.Payload, tt.event.Payload) {
				t.Errorf("payload = %#v, want %#v", got.Payload, tt.event.Payload)
			}
		})
	}
}

func TestDecodeEventUnknownType(t *testing.T) {
	e := NewEncoder()
	e.WriteUvarint(1)
	e.WriteByte(0x7E)
	e.WriteString("")

	if _, err := DecodeEvent(e.Bytes()); !errors.Is(err, ErrInvalidEventType) {
		t.Errorf("DecodeEvent error = %v, want ErrInvalidEventType", err)
	}
}

func TestDecodeEventTruncated(t *testing.T) {
	data := EncodeEvent(NewNavigateEvent(3, "/lineage", false))

	if _, err := DecodeEvent(data[:len(data)-1]); err == nil {
		t.Error("truncated event decoded without error")
	}
}

func TestEventTypeString(t *testing.T) {
	tests := []struct {
		et   EventType
		want string
	}{
		{EventNavigate, "Navigate"},
		{EventSelectNode, "SelectNode"},
		{EventToggleColumn, "ToggleColumn"},
		{EventViewport, "Viewport"},
		{EventRunQuery, "RunQuery"},
		{EventCancelQuery, "CancelQuery"},
		{EventResize, "Resize"},
		{EventCustom, "Custom"},
		{EventType(0x60), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.et.String(); got != tt.want {
			t.Errorf("%#x String() = %q, want %q", uint8(tt.et), got, tt.want)
		}
	}
}
