package lifecycle

import (
	"context"
	"fmt"

	"github.com/astrohub/astrohub-core/internal/alpaca"
	"github.com/astrohub/astrohub-core/internal/device"
	"github.com/astrohub/astrohub-core/internal/metrics"
)

// Transport is the remote half of a lifecycle transition. The production
// implementation is the Alpaca client writing and reading the connected
// property.
type Transport interface {
	SetConnected(ctx context.Context, ref alpaca.DeviceRef, connected bool) error
	Connected(ctx context.Context, ref alpaca.DeviceRef) (bool, error)
}

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager executes connect and disconnect transitions against the registry
// and the remote transport.
//
// Thread Safety:
//   - All methods are safe for concurrent use. The registry's atomic state
//     transition is the only lock: whichever caller moves the device into
//     connecting or disconnecting owns the transition until it concludes,
//     and a conclusion checks it still owns the in-flight state before
//     writing the result.
type Manager struct {
	registry  *device.Registry
	transport Transport
	logger    Logger
}

// NewManager creates a lifecycle manager over the given registry and
// transport.
func NewManager(registry *device.Registry, transport Transport) *Manager {
	return &Manager{
		registry:  registry,
		transport: transport,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Connect brings the device with the given id to the connected state.
//
// A device that is already connected or connecting is left untouched and no
// remote call is made: a double-clicked connect is a no-op, never an error.
// After the remote write is accepted the connected property is read back;
// a device that accepted the write but still reports connected=false fails
// the transition. On any failure the device returns to disconnected with
// the failure recorded as its last error. A Disconnect issued while the
// remote call is in flight cancels the transition: the cancel owns the
// final state and Connect returns nil.
func (m *Manager) Connect(ctx context.Context, id string) error {
	prev, applied, err := m.registry.TransitionState(id, []device.ConnectionState{device.StateDisconnected}, device.StateConnecting)
	if err != nil {
		return err
	}
	if !applied {
		if prev == device.StateDisconnecting {
			return fmt.Errorf("%w: connect from %s", device.ErrInvalidTransition, prev)
		}
		m.logger.Debug("connect skipped", "id", id, "state", prev)
		return nil
	}

	dev, err := m.registry.Get(id)
	if err != nil {
		// Removed between transition and read; nothing left to release.
		return err
	}

	m.logger.Info("connecting device", "id", id, "endpoint", dev.Endpoint)
	if err := m.transport.SetConnected(ctx, deviceRef(dev), true); err != nil {
		m.logger.Error("connect failed", "id", id, "error", err)
		m.recordOutcome(device.StateConnected, err)
		if m.concludeConnecting(id, device.StateDisconnected, err.Error()) {
			return fmt.Errorf("lifecycle: connecting %s: %w", id, err)
		}
		return nil
	}

	// Verify the device agrees before reporting connected. A failed
	// read-back keeps the accepted write; a read-back of false does not.
	if ok, rbErr := m.transport.Connected(ctx, deviceRef(dev)); rbErr != nil {
		m.logger.Debug("connected read-back failed, trusting the write", "id", id, "error", rbErr)
	} else if !ok {
		m.logger.Error("device reports connected=false after accepting connect", "id", id)
		err := fmt.Errorf("lifecycle: connecting %s: device reports connected=false", id)
		m.recordOutcome(device.StateConnected, err)
		if m.concludeConnecting(id, device.StateDisconnected, "device reports connected=false after connect") {
			return err
		}
		return nil
	}

	m.recordOutcome(device.StateConnected, nil)
	if !m.concludeConnecting(id, device.StateConnected, "") {
		m.logger.Info("connect canceled by disconnect", "id", id)
		return nil
	}
	m.logger.Info("device connected", "id", id)
	return nil
}

// Disconnect releases the device with the given id.
//
// Allowed from connected, and from connecting to cancel an in-flight
// connect. A device that is already disconnected is left untouched. The
// remote release is best-effort: the device always ends disconnected
// locally, and a remote failure is recorded as the device's last error and
// returned.
func (m *Manager) Disconnect(ctx context.Context, id string) error {
	prev, applied, err := m.registry.TransitionState(id, []device.ConnectionState{device.StateConnected, device.StateConnecting}, device.StateDisconnecting)
	if err != nil {
		return err
	}
	if !applied {
		m.logger.Debug("disconnect skipped", "id", id, "state", prev)
		return nil
	}
	if prev == device.StateConnecting {
		m.logger.Info("canceling in-flight connect", "id", id)
	}

	dev, err := m.registry.Get(id)
	if err != nil {
		return err
	}

	m.logger.Info("disconnecting device", "id", id)
	remoteErr := m.transport.SetConnected(ctx, deviceRef(dev), false)

	lastErr := ""
	if remoteErr != nil {
		lastErr = remoteErr.Error()
		m.logger.Warn("remote release failed, device marked disconnected anyway", "id", id, "error", remoteErr)
	}
	m.recordOutcome(device.StateDisconnected, remoteErr)
	if err := m.registry.SetConnectionState(id, device.StateDisconnected, lastErr); err != nil {
		return err
	}

	if remoteErr != nil {
		return fmt.Errorf("lifecycle: disconnecting %s: %w", id, remoteErr)
	}
	m.logger.Info("device disconnected", "id", id)
	return nil
}

// concludeConnecting finishes a connect this caller still owns. It reports
// false when the device left connecting in the meantime: canceled by a
// disconnect, or removed.
func (m *Manager) concludeConnecting(id string, final device.ConnectionState, lastErr string) bool {
	applied, err := m.registry.ConcludeTransition(id, device.StateConnecting, final, lastErr)
	return err == nil && applied
}

// recordOutcome updates the transition counter and the per-state gauge.
func (m *Manager) recordOutcome(target device.ConnectionState, err error) {
	metrics.IncConnectionTransition(string(target), err)
	stats := m.registry.GetStats()
	for _, st := range device.AllConnectionStates() {
		metrics.SetDevicesByState(string(st), stats.ByState[st])
	}
}

// deviceRef builds the transport reference for a registry device.
func deviceRef(dev *device.Device) alpaca.DeviceRef {
	return alpaca.DeviceRef{
		Endpoint: dev.Endpoint,
		Type:     string(dev.Type),
		Number:   dev.Number,
	}
}
