package protocol

import "math"

// Encoder appends binary payload data to an internal buffer. The zero
// value is not usable; create one with NewEncoder.
type Encoder struct {
	buf []byte
}

// NewEncoder creates an encoder with a small initial capacity.
func NewEncoder() *Encoder {
	return &Encoder{buf: make([]byte, 0, 256)}
}

// Reset empties the encoder, keeping the underlying buffer.
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

// Bytes returns the encoded payload. The slice is only valid until the
// next write or Reset.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of encoded bytes.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// WriteByte appends one byte. It never fails; the buffer grows as needed.
func (e *Encoder) WriteByte(b byte) {
	e.buf = append(e.buf, b)
}

// WriteBytes appends raw bytes without a length prefix.
func (e *Encoder) WriteBytes(b []byte) {
	e.buf = append(e.buf, b...)
}

// WriteUvarint appends an unsigned varint: 7 data bits per byte, high bit
// set on continuation bytes.
func (e *Encoder) WriteUvarint(v uint64) {
	for v >= 0x80 {
		e.buf = append(e.buf, byte(v)|0x80)
		v >>= 7
	}
	e.buf = append(e.buf, byte(v))
}

// WriteSvarint appends a signed varint using ZigZag encoding
// (0, -1, 1, -2, ... map to 0, 1, 2, 3, ...).
func (e *Encoder) WriteSvarint(v int64) {
	e.WriteUvarint(uint64((v << 1) ^ (v >> 63)))
}

// WriteString appends a varint length prefix followed by the UTF-8 bytes.
func (e *Encoder) WriteString(s string) {
	e.WriteUvarint(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

// WriteLenBytes appends a varint length prefix followed by the bytes.
func (e *Encoder) WriteLenBytes(b []byte) {
	e.WriteUvarint(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

// WriteBool appends a boolean as 0x00 or 0x01.
func (e *Encoder) WriteBool(b bool) {
	if b {
		e.buf = append(e.buf, 0x01)
	} else {
		e.buf = append(e.buf, 0x00)
	}
}

// WriteUint16 appends a uint16 in big-endian byte order.
func (e *Encoder) WriteUint16(v uint16) {
	e.buf = append(e.buf, byte(v>>8), byte(v))
}

// WriteUint32 appends a uint32 in big-endian byte order.
func (e *Encoder) WriteUint32(v uint32) {
	e.buf = append(e.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// WriteUint64 appends a uint64 in big-endian byte order.
func (e *Encoder) WriteUint64(v uint64) {
	e.buf = append(e.buf,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// WriteFloat64 appends a float64 in IEEE 754 big-endian format.
func (e *Encoder) WriteFloat64(v float64) {
	e.WriteUint64(math.Float64bits(v))
}
