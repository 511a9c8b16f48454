package protocol

// DefaultWindow is the default receive window size.
const DefaultWindow = 100

// Ack acknowledges applied patch batches. The server uses LastSeq to trim
// its resync history and Window for flow control.
type Ack struct {
	LastSeq uint64 // Last applied patch sequence
	Window  uint64 // How many more batches the client can accept
}

// EncodeAck encodes an Ack to bytes.
func EncodeAck(ack *Ack) []byte {
	e := NewEncoder()
	e.WriteUvarint(ack.LastSeq)
	e.WriteUvarint(ack.Window)
	return e.Bytes()
}

// DecodeAck decodes an Ack from bytes.
func DecodeAck(data []byte) (*Ack, error) {
	d := NewDecoder(data)

	lastSeq, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	window, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}

	return &Ack{LastSeq: lastSeq, Window: window}, nil
}
