package device

import (
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/astrohub/astrohub-core/internal/bus"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the authoritative in-memory store mapping device id to Device.
//
// Lookups are synchronous and never touch the network, so the presentation
// layer can call them on every render. All reads return deep copies; the
// registry's own copy is mutated only through the methods below.
//
// Events are published after the lock is released so a handler may call back
// into the registry without deadlocking.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device
	events  *bus.Bus
	logger  Logger
}

// NewRegistry creates an empty device registry publishing on the given bus.
func NewRegistry(events *bus.Bus) *Registry {
	return &Registry{
		devices: make(map[string]*Device),
		events:  events,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Add inserts a new device into the registry.
// Returns ErrDeviceExists if the id is already present.
func (r *Registry) Add(dev *Device) error {
	r.mu.Lock()
	if _, ok := r.devices[dev.ID]; ok {
		r.mu.Unlock()
		return ErrDeviceExists
	}
	if dev.ConnectionState == "" {
		dev.ConnectionState = StateDisconnected
	}
	if dev.CreatedAt.IsZero() {
		dev.CreatedAt = time.Now().UTC()
	}
	stored := dev.DeepCopy()
	r.devices[dev.ID] = stored
	snapshot := *stored.DeepCopy()
	r.mu.Unlock()

	r.logger.Info("device registered", "id", dev.ID, "type", dev.Type, "number", dev.Number)
	r.events.Publish(AddedEvent{Device: snapshot})
	return nil
}

// Remove deletes a device from the registry.
// Removing an unknown id is a no-op, not an error. Callers are responsible
// for issuing a best-effort disconnect first when the device was connected.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	_, existed := r.devices[id]
	delete(r.devices, id)
	r.mu.Unlock()

	if !existed {
		return
	}
	r.logger.Info("device removed", "id", id)
	r.events.Publish(RemovedEvent{DeviceID: id})
}

// Get retrieves a device by id.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) Get(id string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dev, ok := r.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return dev.DeepCopy(), nil
}

// Find returns the first device matching type and number, scanning the
// registry in sorted-id order so the result is deterministic. It is the
// fallback for legacy numeric-only identifiers.
func (r *Registry) Find(t DeviceType, number int) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.sortedIDs() {
		d := r.devices[id]
		if d.Type == t && d.Number == number {
			return d.DeepCopy(), nil
		}
	}
	return nil, ErrDeviceNotFound
}

// List returns a snapshot of all devices in sorted-id order.
// The returned devices are deep copies; mutations made to the registry after
// List returns are not visible in the snapshot.
func (r *Registry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]Device, 0, len(r.devices))
	for _, id := range r.sortedIDs() {
		devices = append(devices, *r.devices[id].DeepCopy())
	}
	return devices
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// sortedIDs returns all ids in ascending order. Caller must hold the lock.
func (r *Registry) sortedIDs() []string {
	ids := make([]string, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// UpdateProperties merges the partial map into the device's properties with
// last-writer-wins per key and publishes one PropertyChanged event per key
// whose value actually changed.
//
// An unknown id is logged and ignored, never an error: the UI calls this
// speculatively and must not crash on stale ids. A write on a device that is
// not connected is rejected with ErrNotConnected without mutating anything.
func (r *Registry) UpdateProperties(id string, partial Properties) error {
	if len(partial) == 0 {
		return nil
	}

	r.mu.Lock()
	dev, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		r.logger.Warn("property update for unknown device", "id", id)
		return nil
	}
	if dev.ConnectionState != StateConnected {
		r.mu.Unlock()
		return ErrNotConnected
	}

	if dev.Properties == nil {
		dev.Properties = make(Properties, len(partial))
	}
	var changed []PropertyChangedEvent
	for k, v := range partial {
		if prev, exists := dev.Properties[k]; exists && reflect.DeepEqual(prev, v) {
			continue
		}
		dev.Properties[k] = deepCopyValue(v)
		changed = append(changed, PropertyChangedEvent{DeviceID: id, Name: k, Value: v})
	}
	if len(changed) > 0 {
		now := time.Now().UTC()
		dev.UpdatedAt = &now
	}
	r.mu.Unlock()

	for _, ev := range changed {
		r.events.Publish(ev)
	}
	return nil
}

// TransitionState atomically moves the device to next if its current state is
// one of allowed. It returns the state observed at call time and whether the
// transition was applied. The intermediate connecting/disconnecting states
// double as the mutual-exclusion lock on the lifecycle transition itself.
func (r *Registry) TransitionState(id string, allowed []ConnectionState, next ConnectionState) (ConnectionState, bool, error) {
	r.mu.Lock()
	dev, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		return "", false, ErrDeviceNotFound
	}
	current := dev.ConnectionState
	permitted := false
	for _, from := range allowed {
		if current == from {
			permitted = true
			break
		}
	}
	if !permitted {
		r.mu.Unlock()
		return current, false, nil
	}
	dev.ConnectionState = next
	r.mu.Unlock()

	r.logger.Debug("connection state transition", "id", id, "from", current, "to", next)
	r.events.Publish(ConnectionChangedEvent{DeviceID: id, State: next})
	return current, true, nil
}

// ConcludeTransition finishes an in-flight lifecycle transition owned by the
// caller: if the device is still in from, it moves to final, records lastErr
// (empty clears it), and publishes ConnectionChanged carrying the failure
// detail. It reports false when the device left from in the meantime — the
// transition was canceled by another caller, or the device was removed — in
// which case nothing is mutated.
func (r *Registry) ConcludeTransition(id string, from, final ConnectionState, lastErr string) (bool, error) {
	r.mu.Lock()
	dev, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		return false, ErrDeviceNotFound
	}
	if dev.ConnectionState != from {
		r.mu.Unlock()
		return false, nil
	}
	dev.ConnectionState = final
	dev.LastError = lastErr
	r.mu.Unlock()

	r.logger.Debug("connection state transition", "id", id, "from", from, "to", final)
	r.events.Publish(ConnectionChangedEvent{DeviceID: id, State: final, Error: lastErr})
	return true, nil
}

// SetConnectionState concludes a lifecycle transition: it unconditionally
// sets the state, records lastErr (or clears lastError when lastErr is
// empty), and publishes ConnectionChanged with the failure detail.
//
// Only the lifecycle manager may call this.
func (r *Registry) SetConnectionState(id string, st ConnectionState, lastErr string) error {
	r.mu.Lock()
	dev, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		return ErrDeviceNotFound
	}
	dev.ConnectionState = st
	dev.LastError = lastErr
	r.mu.Unlock()

	r.events.Publish(ConnectionChangedEvent{DeviceID: id, State: st, Error: lastErr})
	return nil
}

// DeleteProperty removes a property key entirely, publishing a final
// PropertyChanged with a nil value so observers drop the value they saw.
// Used when rolling back an optimistic write on a previously-absent key:
// the key must not linger as a phantom nil entry.
func (r *Registry) DeleteProperty(id string, name string) {
	r.mu.Lock()
	dev, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, exists := dev.Properties[name]; !exists {
		r.mu.Unlock()
		return
	}
	delete(dev.Properties, name)
	now := time.Now().UTC()
	dev.UpdatedAt = &now
	r.mu.Unlock()

	r.events.Publish(PropertyChangedEvent{DeviceID: id, Name: name, Value: nil})
}

// SetLastError records a failure message on the device without touching its
// connection state. An empty message clears the field.
func (r *Registry) SetLastError(id string, msg string) {
	r.mu.Lock()
	if dev, ok := r.devices[id]; ok {
		dev.LastError = msg
	}
	r.mu.Unlock()
}

// ClearLastError clears the device's failure message after a successful
// operation.
func (r *Registry) ClearLastError(id string) {
	r.SetLastError(id, "")
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	TotalDevices int
	ByType       map[DeviceType]int
	ByState      map[ConnectionState]int
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		TotalDevices: len(r.devices),
		ByType:       make(map[DeviceType]int),
		ByState:      make(map[ConnectionState]int),
	}
	for _, d := range r.devices {
		stats.ByType[d.Type]++
		stats.ByState[d.ConnectionState]++
	}
	return stats
}
