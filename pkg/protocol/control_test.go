package protocol

import (
	"testing"
)

func TestControlPingPong(t *testing.T) {
	for _, ct := range []ControlType{ControlPing, ControlPong} {
		t.Run(ct.String(), func(t *testing.T) {
			data := EncodeControl(ct, &PingPong{Timestamp: 1724580000000})

			gotType, payload, err := DecodeControl(data)
			if err != nil {
				t.Fatalf("DecodeControl: %v", err)
			}
			if gotType != ct {
				t.Errorf("type = %v, want %v", gotType, ct)
			}
			pp, ok := payload.(*PingPong)
			if !ok {
				t.Fatalf("payload type = %T", payload)
			}
			if pp.Timestamp != 1724580000000 {
				t.Errorf("Timestamp = %d", pp.Timestamp)
			}
		})
	}
}

func TestControlResyncRequest(t *testing.T) {
	data := EncodeControl(ControlResyncRequest, &ResyncRequest{LastSeq: 99})

	ct, payload, err := DecodeControl(data)
	if err != nil {
		t.Fatalf("DecodeControl: %v", err)
	}
	if ct != ControlResyncRequest {
		t.Errorf("type = %v", ct)
	}
	rr := payload.(*ResyncRequest)
	if rr.LastSeq != 99 {
		t.Errorf("LastSeq = %d, want 99", rr.LastSeq)
	}
}

func TestControlResyncPatches(t *testing.T) {
	resp := &ResyncResponse{
		Type:    ControlResyncPatches,
		FromSeq: 100,
		Patches: []Patch{
			{Op: PatchSetAttr, HID: "slot-lineage", Key: "hidden", Value: ""},
			{Op: PatchRemoveAttr, HID: "slot-query", Key: "hidden"},
		},
	}
	data := EncodeControl(ControlResyncPatches, resp)

	ct, payload, err := DecodeControl(data)
	if err != nil {
		t.Fatalf("DecodeControl: %v", err)
	}
	if ct != ControlResyncPatches {
		t.Errorf("type = %v", ct)
	}
	got := payload.(*ResyncResponse)
	if got.FromSeq != 100 || len(got.Patches) != 2 {
		t.Errorf("response = %+v", got)
	}
	if got.Patches[1].Op != PatchRemoveAttr || got.Patches[1].HID != "slot-query" {
		t.Errorf("patch = %+v", got.Patches[1])
	}
}

func TestControlResyncFull(t *testing.T) {
	data := EncodeControl(ControlResyncFull, &ResyncResponse{
		Type: ControlResyncFull,
		HTML: "<div id=\"app\"></div>",
	})

	_, payload, err := DecodeControl(data)
	if err != nil {
		t.Fatalf("DecodeControl: %v", err)
	}
	got := payload.(*ResyncResponse)
	if got.HTML != "<div id=\"app\"></div>" {
		t.Errorf("HTML = %q", got.HTML)
	}
}

func TestControlClose(t *testing.T) {
	data := EncodeControl(ControlClose, &CloseMessage{
		Reason:  CloseServerShutdown,
		Message: "draining",
	})

	ct, payload, err := DecodeControl(data)
	if err != nil {
		t.Fatalf("DecodeControl: %v", err)
	}
	if ct != ControlClose {
		t.Errorf("type = %v", ct)
	}
	cm := payload.(*CloseMessage)
	if cm.Reason != CloseServerShutdown || cm.Message != "draining" {
		t.Errorf("close = %+v", cm)
	}
}

func TestControlUnknownType(t *testing.T) {
	ct, payload, err := DecodeControl([]byte{0x7F})
	if err != nil {
		t.Fatalf("DecodeControl: %v", err)
	}
	if ct != ControlType(0x7F) || payload != nil {
		t.Errorf("got (%v, %v), want unknown type with nil payload", ct, payload)
	}
}

func TestAckRoundTrip(t *testing.T) {
	got, err := DecodeAck(EncodeAck(&Ack{LastSeq: 41, Window: DefaultWindow}))
	if err != nil {
		t.Fatalf("DecodeAck: %v", err)
	}
	if got.LastSeq != 41 || got.Window != DefaultWindow {
		t.Errorf("ack = %+v", got)
	}
}

func TestErrorMessageRoundTrip(t *testing.T) {
	want := &ErrorMessage{
		Code:    ErrSlotInit,
		Message: "lineage: graph service unavailable",
		Fatal:   false,
	}

	got, err := DecodeErrorMessage(EncodeErrorMessage(want))
	if err != nil {
		t.Fatalf("DecodeErrorMessage: %v", err)
	}
	if *got != *want {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}
}

func TestErrorMessageError(t *testing.T) {
	em := NewError(ErrQueryFailed, "syntax error")
	if got := em.Error(); got != "QueryFailed: syntax error" {
		t.Errorf("Error() = %q", got)
	}

	fatal := NewFatalError(ErrServerError, "boom")
	if got := fatal.Error(); got != "fatal: ServerError: boom" {
		t.Errorf("Error() = %q", got)
	}
}
