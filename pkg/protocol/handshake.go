package protocol

// HandshakeStatus is the result of a handshake attempt.
type HandshakeStatus uint8

const (
	HandshakeOK              HandshakeStatus = 0x00
	HandshakeVersionMismatch HandshakeStatus = 0x01
	HandshakeInvalidToken    HandshakeStatus = 0x02
	HandshakeSessionExpired  HandshakeStatus = 0x03
	HandshakeServerBusy      HandshakeStatus = 0x04
	HandshakeInvalidFormat   HandshakeStatus = 0x05
	HandshakeInternalError   HandshakeStatus = 0x06
)

// String returns the string representation of the handshake status.
func (hs HandshakeStatus) String() string {
	switch hs {
	case HandshakeOK:
		return "OK"
	case HandshakeVersionMismatch:
		return "VersionMismatch"
	case HandshakeInvalidToken:
		return "InvalidToken"
	case HandshakeSessionExpired:
		return "SessionExpired"
	case HandshakeServerBusy:
		return "ServerBusy"
	case HandshakeInvalidFormat:
		return "InvalidFormat"
	case HandshakeInternalError:
		return "InternalError"
	default:
		return "Unknown"
	}
}

// ProtocolVersion is a protocol version as major.minor.
type ProtocolVersion struct {
	Major uint8
	Minor uint8
}

// CurrentVersion is the protocol version this package speaks.
var CurrentVersion = ProtocolVersion{Major: 1, Minor: 0}

// ClientHello opens a connection. Path carries the browser's current
// location so the server can resolve and present the right view before
// the first interaction. SessionID and LastSeq are set when resuming.
type ClientHello struct {
	Version   ProtocolVersion
	Token     string // CSRF token issued with the page
	SessionID string // Existing session ID, empty for a fresh session
	LastSeq   uint32 // Last patch sequence the client applied
	Path      string // Current location path, including query
	ViewportW uint16
	ViewportH uint16
}

// ServerHello answers a ClientHello.
type ServerHello struct {
	Status     HandshakeStatus
	SessionID  string // Assigned or resumed session ID
	NextSeq    uint32 // Next patch sequence the server will send
	ServerTime uint64 // Unix milliseconds
	Resumed    bool   // True when an existing session was picked up
}

// EncodeClientHello encodes a ClientHello to bytes.
func EncodeClientHello(ch *ClientHello) []byte {
	e := NewEncoder()
	e.WriteByte(ch.Version.Major)
	e.WriteByte(ch.Version.Minor)
	e.WriteString(ch.Token)
	e.WriteString(ch.SessionID)
	e.WriteUint32(ch.LastSeq)
	e.WriteString(ch.Path)
	e.WriteUint16(ch.ViewportW)
	e.WriteUint16(ch.ViewportH)
	return e.Bytes()
}

// DecodeClientHello decodes a ClientHello from bytes.
func DecodeClientHello(data []byte) (*ClientHello, error) {
	d := NewDecoder(data)
	ch := &ClientHello{}

	major, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	minor, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	ch.Version = ProtocolVersion{Major: major, Minor: minor}

	if ch.Token, err = d.ReadString(); err != nil {
		return nil, err
	}
	if ch.SessionID, err = d.ReadString(); err != nil {
		return nil, err
	}
	if ch.LastSeq, err = d.ReadUint32(); err != nil {
		return nil, err
	}
	if ch.Path, err = d.ReadString(); err != nil {
		return nil, err
	}
	if ch.ViewportW, err = d.ReadUint16(); err != nil {
		return nil, err
	}
	if ch.ViewportH, err = d.ReadUint16(); err != nil {
		return nil, err
	}

	return ch, nil
}

// EncodeServerHello encodes a ServerHello to bytes.
func EncodeServerHello(sh *ServerHello) []byte {
	e := NewEncoder()
	e.WriteByte(byte(sh.Status))
	e.WriteString(sh.SessionID)
	e.WriteUint32(sh.NextSeq)
	e.WriteUint64(sh.ServerTime)
	e.WriteBool(sh.Resumed)
	return e.Bytes()
}

// DecodeServerHello decodes a ServerHello from bytes.
func DecodeServerHello(data []byte) (*ServerHello, error) {
	d := NewDecoder(data)
	sh := &ServerHello{}

	status, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	sh.Status = HandshakeStatus(status)

	if sh.SessionID, err = d.ReadString(); err != nil {
		return nil, err
	}
	if sh.NextSeq, err = d.ReadUint32(); err != nil {
		return nil, err
	}
	if sh.ServerTime, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if sh.Resumed, err = d.ReadBool(); err != nil {
		return nil, err
	}

	return sh, nil
}

// NewClientHello creates a ClientHello for a fresh session at path.
func NewClientHello(token, path string) *ClientHello {
	return &ClientHello{
		Version: CurrentVersion,
		Token:   token,
		Path:    path,
	}
}

// NewServerHello creates a successful ServerHello.
func NewServerHello(sessionID string, nextSeq uint32, serverTime uint64) *ServerHello {
	return &ServerHello{
		Status:     HandshakeOK,
		SessionID:  sessionID,
		NextSeq:    nextSeq,
		ServerTime: serverTime,
	}
}

// NewServerHelloError creates a ServerHello carrying a failure status.
func NewServerHelloError(status HandshakeStatus) *ServerHello {
	return &ServerHello{Status: status}
}
