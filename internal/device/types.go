package device

import (
	"fmt"
	"time"
)

// Device represents a single controllable instrument reachable over the
// Alpaca protocol (telescope, camera, focuser, ...).
type Device struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`

	// Classification
	Type DeviceType `json:"type"`

	// Number is the device index scoping the device within its server.
	// It is a protocol requirement and is not globally unique.
	Number int `json:"number"`

	// Endpoint is the base URL used for all remote calls to this device.
	// It may be a proxy URL rewritten to keep browser clients same-origin.
	Endpoint string `json:"endpoint"`

	// Server address the device was discovered on (original, not proxied).
	ServerAddress string `json:"server_address"`
	ServerPort    int    `json:"server_port"`

	// ConnectionState is mutated only by the lifecycle manager.
	ConnectionState ConnectionState `json:"connection_state"`

	// Properties holds the live property state, last-writer-wins per key.
	Properties Properties `json:"properties"`

	// LastError is the last failure message for this device.
	// Cleared on the next successful operation.
	LastError string `json:"last_error,omitempty"`

	// IsManualEntry marks devices registered through manual server entry
	// rather than an automatic network scan. The flag is sticky.
	IsManualEntry bool `json:"is_manual_entry"`

	// Timestamps
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Properties holds the current device property state as a JSON map.
//
// Values are heterogeneous: numeric (gain, cooler temperature), string
// (filter name), boolean (isexposing), or binary blobs (captured images).
type Properties map[string]any

// DeepCopy creates a complete independent copy of the Device.
// Map fields are cloned so modifications to the copy do not affect the
// original. This is essential for registry cache isolation.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d // Shallow copy of value fields
	cpy.Properties = deepCopyMap(d.Properties)
	return &cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	case []byte:
		cpy := make([]byte, len(val))
		copy(cpy, val)
		return cpy
	default:
		// Primitives (string, bool, int, float64, etc.) are safe to copy by value
		return v
	}
}

// ConnectionState represents the connection lifecycle state of a device.
type ConnectionState string

// ConnectionState constants. A device is always in exactly one of these.
const (
	StateDisconnected  ConnectionState = "disconnected"
	StateConnecting    ConnectionState = "connecting"
	StateConnected     ConnectionState = "connected"
	StateDisconnecting ConnectionState = "disconnecting"
)

// AllConnectionStates returns all valid connection state values.
func AllConnectionStates() []ConnectionState {
	return []ConnectionState{
		StateDisconnected, StateConnecting, StateConnected, StateDisconnecting,
	}
}

// DeviceType represents the Alpaca device category.
type DeviceType string //nolint:revive // device.DeviceType is clearer than device.Type in calling code

// DeviceType constants, matching the path segments of the Alpaca API.
const (
	DeviceTypeTelescope           DeviceType = "telescope"
	DeviceTypeCamera              DeviceType = "camera"
	DeviceTypeFocuser             DeviceType = "focuser"
	DeviceTypeFilterWheel         DeviceType = "filterwheel"
	DeviceTypeDome                DeviceType = "dome"
	DeviceTypeRotator             DeviceType = "rotator"
	DeviceTypeSwitch              DeviceType = "switch"
	DeviceTypeCoverCalibrator     DeviceType = "covercalibrator"
	DeviceTypeSafetyMonitor       DeviceType = "safetymonitor"
	DeviceTypeObservingConditions DeviceType = "observingconditions"
)

// AllDeviceTypes returns all valid device type values.
func AllDeviceTypes() []DeviceType {
	return []DeviceType{
		DeviceTypeTelescope, DeviceTypeCamera, DeviceTypeFocuser,
		DeviceTypeFilterWheel, DeviceTypeDome, DeviceTypeRotator,
		DeviceTypeSwitch, DeviceTypeCoverCalibrator,
		DeviceTypeSafetyMonitor, DeviceTypeObservingConditions,
	}
}

// ValidType reports whether t is a recognised device type.
func ValidType(t DeviceType) bool {
	for _, known := range AllDeviceTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// MakeID builds the canonical device id for a device enumerated from a
// server: {address}:{port}:{type}:{number}. Ids are stable for the process
// lifetime and never reused for a different physical endpoint.
func MakeID(address string, port int, deviceType DeviceType, number int) string {
	return fmt.Sprintf("%s:%d:%s:%d", address, port, deviceType, number)
}
