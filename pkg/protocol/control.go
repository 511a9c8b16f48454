package protocol

// ControlType identifies a control message.
type ControlType uint8

const (
	ControlPing          ControlType = 0x01 // Liveness probe
	ControlPong          ControlType = 0x02 // Answer to Ping
	ControlResyncRequest ControlType = 0x10 // Client asks for missed patches
	ControlResyncPatches ControlType = 0x11 // Server replays missed patches
	ControlResyncFull    ControlType = 0x12 // Server sends a full re-render
	ControlClose         ControlType = 0x20 // Session close
)

// String returns the string representation of the control type.
func (ct ControlType) String() string {
	switch ct {
	case ControlPing:
		return "Ping"
	case ControlPong:
		return "Pong"
	case ControlResyncRequest:
		return "ResyncRequest"
	case ControlResyncPatches:
		return "ResyncPatches"
	case ControlResyncFull:
		return "ResyncFull"
	case ControlClose:
		return "Close"
	default:
		return "Unknown"
	}
}

// CloseReason explains why a session is being closed.
type CloseReason uint8

const (
	CloseNormal         CloseReason = 0x00
	CloseGoingAway      CloseReason = 0x01
	CloseSessionExpired CloseReason = 0x02
	CloseServerShutdown CloseReason = 0x03
	CloseError          CloseReason = 0x04
)

// String returns the string representation of the close reason.
func (cr CloseReason) String() string {
	switch cr {
	case CloseNormal:
		return "Normal"
	case CloseGoingAway:
		return "GoingAway"
	case CloseSessionExpired:
		return "SessionExpired"
	case CloseServerShutdown:
		return "ServerShutdown"
	case CloseError:
		return "Error"
	default:
		return "Unknown"
	}
}

// PingPong is the payload of Ping and Pong.
type PingPong struct {
	Timestamp uint64 // Unix milliseconds
}

// ResyncRequest asks the server to replay patches after LastSeq.
type ResyncRequest struct {
	LastSeq uint64
}

// ResyncResponse replays missed patches, or carries a full re-render when
// the requested range is no longer buffered.
type ResyncResponse struct {
	Type    ControlType // ResyncPatches or ResyncFull
	FromSeq uint64      // First sequence in Patches
	Patches []Patch
	HTML    string // Full document for ResyncFull
}

// CloseMessage announces session close.
type CloseMessage struct {
	Reason  CloseReason
	Message string
}

// EncodeControl encodes a control message to bytes.
func EncodeControl(ct ControlType, payload any) []byte {
	e := NewEncoder()
	e.WriteByte(byte(ct))

	switch ct {
	case ControlPing, ControlPong:
		pp, _ := payload.(*PingPong)
		if pp == nil {
			pp = &PingPong{}
		}
		e.WriteUint64(pp.Timestamp)

	case ControlResyncRequest:
		rr, _ := payload.(*ResyncRequest)
		if rr == nil {
			rr = &ResyncRequest{}
		}
		e.WriteUvarint(rr.LastSeq)

	case ControlResyncPatches:
		rr, _ := payload.(*ResyncResponse)
		if rr == nil {
			rr = &ResyncResponse{}
		}
		e.WriteUvarint(rr.FromSeq)
		e.WriteUvarint(uint64(len(rr.Patches)))
		for i := range rr.Patches {
			encodePatch(e, &rr.Patches[i])
		}

	case ControlResyncFull:
		rr, _ := payload.(*ResyncResponse)
		if rr == nil {
			rr = &ResyncResponse{}
		}
		e.WriteString(rr.HTML)

	case ControlClose:
		cm, _ := payload.(*CloseMessage)
		if cm == nil {
			cm = &CloseMessage{}
		}
		e.WriteByte(byte(cm.Reason))
		e.WriteString(cm.Message)
	}

	return e.Bytes()
}

// DecodeControl decodes a control message, returning its type and payload.
func DecodeControl(data []byte) (ControlType, any, error) {
	d := NewDecoder(data)

	typeByte, err := d.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	ct := ControlType(typeByte)

	switch ct {
	case ControlPing, ControlPong:
		ts, err := d.ReadUint64()
		if err != nil {
			return ct, nil, err
		}
		return ct, &PingPong{Timestamp: ts}, nil

	case ControlResyncRequest:
		lastSeq, err := d.ReadUvarint()
		if err != nil {
			return ct, nil, err
		}
		return ct, &ResyncRequest{LastSeq: lastSeq}, nil

	case ControlResyncPatches:
		fromSeq, err := d.ReadUvarint()
		if err != nil {
			return ct, nil, err
		}
		count, err := d.ReadCollectionCount()
		if err != nil {
			return ct, nil, err
		}
		patches := make([]Patch, count)
		for i := 0; i < count; i++ {
			if err := decodePatch(d, &patches[i]); err != nil {
				return ct, nil, err
			}
		}
		return ct, &ResyncResponse{
			Type:    ControlResyncPatches,
			FromSeq: fromSeq,
			Patches: patches,
		}, nil

	case ControlResyncFull:
		html, err := d.ReadString()
		if err != nil {
			return ct, nil, err
		}
		return ct, &ResyncResponse{Type: ControlResyncFull, HTML: html}, nil

	case ControlClose:
		reason, err := d.ReadByte()
		if err != nil {
			return ct, nil, err
		}
		message, err := d.ReadString()
		if err != nil {
			return ct, nil, err
		}
		return ct, &CloseMessage{
			Reason:  CloseReason(reason),
			Message: message,
		}, nil

	default:
		return ct, nil, nil
	}
}
