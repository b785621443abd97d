// Package device defines the device record and the in-memory registry that is
// the single source of truth for known instruments and their live property
// state.
//
// The registry owns device identity and state. Connection state transitions
// go through internal/lifecycle, property writes through internal/dispatch;
// observers consume change events from internal/bus or pull current state via
// Get/List, which always return deep copies.
package device
