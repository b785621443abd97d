package device

import "github.com/astrohub/astrohub-core/internal/bus"

// Event types published by the registry and its collaborators.
const (
	EventAdded             bus.Type = "device.added"
	EventRemoved           bus.Type = "device.removed"
	EventConnectionChanged bus.Type = "device.connection_changed"
	EventPropertyChanged   bus.Type = "device.property_changed"
	EventError             bus.Type = "device.error"
)

// AddedEvent is published when a device is inserted into the registry.
type AddedEvent struct {
	Device Device `json:"device"`
}

// EventType implements bus.Event.
func (AddedEvent) EventType() bus.Type { return EventAdded }

// RemovedEvent is published when a device is removed from the registry.
type RemovedEvent struct {
	DeviceID string `json:"device_id"`
}

// EventType implements bus.Event.
func (RemovedEvent) EventType() bus.Type { return EventRemoved }

// ConnectionChangedEvent is published on every connection state transition.
// Error carries the failure detail when a transition ended in a failure.
type ConnectionChangedEvent struct {
	DeviceID string          `json:"device_id"`
	State    ConnectionState `json:"state"`
	Error    string          `json:"error,omitempty"`
}

// EventType implements bus.Event.
func (ConnectionChangedEvent) EventType() bus.Type { return EventConnectionChanged }

// PropertyChangedEvent is published once per changed property key.
type PropertyChangedEvent struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
	Value    any    `json:"value"`
}

// EventType implements bus.Event.
func (PropertyChangedEvent) EventType() bus.Type { return EventPropertyChanged }

// ErrorEvent is published when an operation on a device fails.
type ErrorEvent struct {
	DeviceID string `json:"device_id,omitempty"`
	Op       string `json:"op"`
	Error    string `json:"error"`
}

// EventType implements bus.Event.
func (ErrorEvent) EventType() bus.Type { return EventError }
