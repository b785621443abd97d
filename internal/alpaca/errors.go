package alpaca

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks against remote call failures.
var (
	// ErrTimeout marks a remote call that exceeded its caller-supplied bound.
	ErrTimeout = errors.New("alpaca: call timed out")

	// ErrTransport marks a network-level failure (refused, reset, DNS).
	ErrTransport = errors.New("alpaca: transport failure")

	// ErrProtocol marks a call the server answered with a non-zero Alpaca
	// error number or an unexpected HTTP status.
	ErrProtocol = errors.New("alpaca: protocol error")

	// ErrDecode is returned when a binary image payload is malformed.
	// No partial image is ever exposed alongside this error.
	ErrDecode = errors.New("alpaca: malformed image payload")
)

// CallKind classifies a remote call failure.
type CallKind int

// CallKind values.
const (
	KindTimeout CallKind = iota
	KindTransport
	KindProtocol
)

// String returns the kind name for logging.
func (k CallKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// CallError describes a failed remote call, carrying the transport status
// and the server's error detail when one was returned.
type CallError struct {
	Kind    CallKind
	Action  string
	Status  int    // HTTP status, when a response was received
	Number  int32  // Alpaca error number, when non-zero
	Message string // server-supplied error message
	Err     error  // underlying cause
}

// Error implements the error interface.
func (e *CallError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("alpaca: %s call %q failed: %s (error %d)", e.Kind, e.Action, e.Message, e.Number)
	case e.Err != nil:
		return fmt.Sprintf("alpaca: %s call %q failed: %v", e.Kind, e.Action, e.Err)
	default:
		return fmt.Sprintf("alpaca: %s call %q failed with status %d", e.Kind, e.Action, e.Status)
	}
}

// Unwrap returns the underlying cause.
func (e *CallError) Unwrap() error { return e.Err }

// Is maps the failure kind onto the package sentinels so callers can write
// errors.Is(err, alpaca.ErrTimeout) without inspecting the struct.
func (e *CallError) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrProtocol:
		return e.Kind == KindProtocol
	default:
		return false
	}
}
