package protocol

// ErrorCode classifies a server-reported error.
type ErrorCode uint16

const (
	ErrUnknown        ErrorCode = 0x0000
	ErrInvalidFrame   ErrorCode = 0x0001 // Malformed frame
	ErrInvalidEvent   ErrorCode = 0x0002 // Malformed event
	ErrSlotInit       ErrorCode = 0x0003 // View construction failed; retryable
	ErrSessionExpired ErrorCode = 0x0004 // Session no longer valid
	ErrRateLimited    ErrorCode = 0x0005 // Too many requests
	ErrQueryFailed    ErrorCode = 0x0006 // Query execution failed
	ErrServerError    ErrorCode = 0x0100 // Internal server error
	ErrValidation     ErrorCode = 0x0101 // Validation failed
)

// String returns the string representation of the error code.
func (ec ErrorCode) String() string {
	switch ec {
	case ErrUnknown:
		return "Unknown"
	case ErrInvalidFrame:
		return "InvalidFrame"
	case ErrInvalidEvent:
		return "InvalidEvent"
	case ErrSlotInit:
		return "SlotInit"
	case ErrSessionExpired:
		return "SessionExpired"
	case ErrRateLimited:
		return "RateLimited"
	case ErrQueryFailed:
		return "QueryFailed"
	case ErrServerError:
		return "ServerError"
	case ErrValidation:
		return "Validation"
	default:
		return "Unknown"
	}
}

// ErrorMessage reports an error to the client. Non-fatal errors leave the
// connection open; fatal ones precede a close.
type ErrorMessage struct {
	Code    ErrorCode
	Message string
	Fatal   bool
}

// Error implements the error interface.
func (em *ErrorMessage) Error() string {
	if em.Fatal {
		return "fatal: " + em.Code.String() + ": " + em.Message
	}
	return em.Code.String() + ": " + em.Message
}

// EncodeErrorMessage encodes an ErrorMessage to bytes.
func EncodeErrorMessage(em *ErrorMessage) []byte {
	e := NewEncoder()
	e.WriteUint16(uint16(em.Code))
	e.WriteString(em.Message)
	e.WriteBool(em.Fatal)
	return e.Bytes()
}

// DecodeErrorMessage decodes an ErrorMessage from bytes.
func DecodeErrorMessage(data []byte) (*ErrorMessage, error) {
	d := NewDecoder(data)

	code, err := d.ReadUint16()
	if err != nil {
		return nil, err
	}
	message, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	fatal, err := d.ReadBool()
	if err != nil {
		return nil, err
	}

	return &ErrorMessage{
		Code:    ErrorCode(code),
		Message: message,
		Fatal:   fatal,
	}, nil
}

// NewError creates a non-fatal ErrorMessage.
func NewError(code ErrorCode, message string) *ErrorMessage {
	return &ErrorMessage{Code: code, Message: message}
}

// NewFatalError creates a fatal ErrorMessage.
func NewFatalError(code ErrorCode, message string) *ErrorMessage {
	return &ErrorMessage{Code: code, Message: message, Fatal: true}
}
