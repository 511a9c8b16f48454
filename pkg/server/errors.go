package server

import (
	"errors"
	"fmt"

	"github.com/DataRecce/recce-sub014/pkg/protocol"
)

// Sentinel errors for session and server lifecycle.
var (
	// ErrSessionClosed is returned when operating on a closed session.
	ErrSessionClosed = errors.New("server: session closed")

	// ErrNoConnection is returned when a session has no live WebSocket.
	ErrNoConnection = errors.New("server: no connection")

	// ErrEventQueueFull is returned when the inbound event queue is at
	// capacity and an event had to be dropped.
	ErrEventQueueFull = errors.New("server: event queue full")

	// ErrMaxSessionsReached is returned by the handshake when the server
	// is at its configured session capacity.
	ErrMaxSessionsReached = errors.New("server: maximum sessions reached")

	// ErrServerClosed is returned by Run after a graceful shutdown.
	ErrServerClosed = errors.New("server: closed")
)

// SessionError wraps an error with the session and operation it came from.
type SessionError struct {
	SessionID string
	Op        string
	Err       error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("server: session %s: %s: %v", e.SessionID, e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// HandlerPanicError records a recovered panic from an event handler. The
// stack is captured at recovery time for logging.
type HandlerPanicError struct {
	SessionID string
	EventType protocol.EventType
	Recovered any
	Stack     []byte
}

func (e *HandlerPanicError) Error() string {
	return fmt.Sprintf("server: session %s: handler for %s panicked: %v",
		e.SessionID, e.EventType, e.Recovered)
}
