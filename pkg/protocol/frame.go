package protocol

import (
	"errors"
	"io"
)

const (
	// FrameHeaderSize is the size of the frame header in bytes.
	FrameHeaderSize = 4

	// MaxPayloadSize is the largest payload a frame can carry (the length
	// field is 16 bits).
	MaxPayloadSize = 65535
)

// FrameType identifies the kind of message a frame carries.
type FrameType uint8

const (
	FrameHandshake FrameType = 0x00 // ClientHello / ServerHello
	FrameEvent     FrameType = 0x01 // Client -> server events
	FramePatches   FrameType = 0x02 // Server -> client patch batches
	FrameControl   FrameType = 0x03 // Ping, pong, resync, close
	FrameAck       FrameType = 0x04 // Patch acknowledgment
	FrameError     FrameType = 0x05 // Error report
)

// String returns the string representation of the frame type.
func (ft FrameType) String() string {
	switch ft {
	case FrameHandshake:
		return "Handshake"
	case FrameEvent:
		return "Event"
	case FramePatches:
		return "Patches"
	case FrameControl:
		return "Control"
	case FrameAck:
		return "Ack"
	case FrameError:
		return "Error"
	default:
		return "Unknown"
	}
}

// FrameFlags carry per-frame processing hints.
type FrameFlags uint8

const (
	FlagCompressed FrameFlags = 0x01 // Payload is gzip compressed
	FlagSequenced  FrameFlags = 0x02 // Payload starts with a sequence number
	FlagFinal      FrameFlags = 0x04 // Last frame in a batch
)

// Has reports whether flag is set.
func (ff FrameFlags) Has(flag FrameFlags) bool {
	return ff&flag != 0
}

// Frame errors.
var (
	ErrFrameTooLarge    = errors.New("protocol: frame payload too large")
	ErrInvalidFrameType = errors.New("protocol: invalid frame type")
)

// Frame is one protocol frame: a 4-byte header followed by the payload.
type Frame struct {
	Type    FrameType
	Flags   FrameFlags
	Payload []byte
}

// NewFrame creates a frame with the given type and payload.
func NewFrame(ft FrameType, payload []byte) *Frame {
	return &Frame{Type: ft, Payload: payload}
}

// Encode serializes the frame, header included. The payload must not
// exceed MaxPayloadSize: the length field is 16 bits, so a longer payload
// cannot be represented. WriteFrame enforces the limit; callers encoding
// directly must keep payloads within it.
func (f *Frame) Encode() []byte {
	length := len(f.Payload)
	buf := make([]byte, FrameHeaderSize+length)
	buf[0] = byte(f.Type)
	buf[1] = byte(f.Flags)
	buf[2] = byte(length >> 8)
	buf[3] = byte(length)
	copy(buf[FrameHeaderSize:], f.Payload)
	return buf
}

// DecodeFrame parses a frame from data. The input must contain the full
// header and payload.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < FrameHeaderSize {
		return nil, io.ErrUnexpectedEOF
	}

	length := int(data[2])<<8 | int(data[3])
	if len(data) < FrameHeaderSize+length {
		return nil, io.ErrUnexpectedEOF
	}

	payload := make([]byte, length)
	copy(payload, data[FrameHeaderSize:FrameHeaderSize+length])

	return &Frame{
		Type:    FrameType(data[0]),
		Flags:   FrameFlags(data[1]),
		Payload: payload,
	}, nil
}

// ReadFrame reads one complete frame from r.
func ReadFrame(r io.Reader) (*Frame, error) {
	header := make([]byte, FrameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	length := int(header[2])<<8 | int(header[3])
	if length > MaxPayloadSize {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}

	return &Frame{
		Type:    FrameType(header[0]),
		Flags:   FrameFlags(header[1]),
		Payload: payload,
	}, nil
}

// WriteFrame writes one complete frame to w.
func WriteFrame(w io.Writer, f *Frame) error {
	if len(f.Payload) > MaxPayloadSize {
		return ErrFrameTooLarge
	}
	_, err := w.Write(f.Encode())
	return err
}
