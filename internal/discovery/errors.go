package discovery

import (
	"errors"
	"fmt"
)

// ErrDiscovery marks scan and manual-add failures for errors.Is checks.
var ErrDiscovery = errors.New("discovery: probe failed")

// ErrInvalidAddress rejects a manual entry before any network traffic.
var ErrInvalidAddress = errors.New("discovery: invalid address or port")

// Error is a discovery failure carrying the endpoint that was attempted.
type Error struct {
	Endpoint string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("discovery: %s: %v", e.Endpoint, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports true for ErrDiscovery, so callers can classify without
// unpacking the struct.
func (e *Error) Is(target error) bool { return target == ErrDiscovery }
