package transport

import (
	"errors"
	"fmt"
)

// ConnectionState is the lifecycle position of a client Session.
//
//	StateDisconnected ──► StateConnecting ──dial ok──► StateOpen ──Close──► StateClosing
//
// A session never returns to Open once it started closing.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateOpen
	StateBusy // reserved, never entered
	StateClosing
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateBusy:
		return "busy"
	case StateClosing:
		return "closing"
	}
	return fmt.Sprintf("ConnectionState(%d)", int32(s))
}

var (
	// ErrConnectionRefused matches every *ConnectionRefusedError via errors.Is.
	ErrConnectionRefused = errors.New("connection refused")
	// ErrTimeout is returned by Send when no response arrived within the wait cap.
	ErrTimeout = errors.New("no response")
	// ErrNotOpen is returned by Send on a session that is not in StateOpen.
	ErrNotOpen = errors.New("session is not open")
	// ErrSessionClosed fails requests still pending when the session's reader exits.
	ErrSessionClosed = errors.New("session closed")
)

// ConnectionRefusedError reports the address a refused connect targeted.
type ConnectionRefusedError struct {
	Addr string
	Err  error
}

func (e *ConnectionRefusedError) Error() string {
	return fmt.Sprintf("connection refused while attempting to connect to %s", e.Addr)
}

func (e *ConnectionRefusedError) Unwrap() error { return e.Err }

func (e *ConnectionRefusedError) Is(target error) bool { return target == ErrConnectionRefused }
