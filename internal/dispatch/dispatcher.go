package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/astrohub/astrohub-core/internal/alpaca"
	"github.com/astrohub/astrohub-core/internal/device"
	"github.com/astrohub/astrohub-core/internal/metrics"
)

// Transport is the remote call surface the dispatcher needs. The production
// implementation is the Alpaca client.
type Transport interface {
	Get(ctx context.Context, ref alpaca.DeviceRef, action string, params url.Values) (json.RawMessage, error)
	Put(ctx context.Context, ref alpaca.DeviceRef, action string, params url.Values) (json.RawMessage, error)
	ImageArray(ctx context.Context, ref alpaca.DeviceRef) (*alpaca.Image, error)
}

// Logger defines the logging interface used by the Dispatcher.
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

// Dispatcher executes device operations against the transport, keeping the
// registry's property cache in step with what the device reports.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Dispatcher struct {
	registry  *device.Registry
	transport Transport
	logger    Logger
}

// NewDispatcher creates a dispatcher over the given registry and transport.
func NewDispatcher(registry *device.Registry, transport Transport) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		transport: transport,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// guard loads the device and rejects the call unless it is connected.
// Nothing touches the network for a device that is not connected.
func (d *Dispatcher) guard(id string) (*device.Device, error) {
	dev, err := d.registry.Get(id)
	if err != nil {
		return nil, err
	}
	if dev.ConnectionState != device.StateConnected {
		return nil, fmt.Errorf("%w: %s is %s", device.ErrNotConnected, id, dev.ConnectionState)
	}
	return dev, nil
}

// GetProperty reads a device property over the transport and mirrors the
// decoded value into the registry's property cache.
func (d *Dispatcher) GetProperty(ctx context.Context, id string, property string) (any, error) {
	dev, err := d.guard(id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := d.transport.Get(ctx, deviceRef(dev), property, nil)
	observeCall(dev.Type, property, start, err)
	if err != nil {
		d.recordFailure(id, property, err)
		return nil, err
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", alpaca.ErrDecode, property, err)
	}

	if err := d.registry.UpdateProperties(id, device.Properties{property: value}); err != nil {
		// Disconnected between the call and the cache write; the caller
		// still gets the value the device reported.
		d.logger.Debug("property cache write skipped", "id", id, "property", property, "error", err)
	}
	return value, nil
}

// Ticket tracks one optimistic property write until it is reconciled.
type Ticket struct {
	DeviceID string
	Property string

	prior    any
	hadPrior bool
}

// ApplyOptimistic records the desired property value in the registry before
// the remote write completes, so observers see intent immediately. The
// returned ticket must be passed to Reconcile exactly once.
func (d *Dispatcher) ApplyOptimistic(id string, property string, value any) (Ticket, error) {
	dev, err := d.guard(id)
	if err != nil {
		return Ticket{}, err
	}

	prior, hadPrior := dev.Properties[property]
	t := Ticket{DeviceID: id, Property: property, prior: prior, hadPrior: hadPrior}

	if err := d.registry.UpdateProperties(id, device.Properties{property: value}); err != nil {
		return Ticket{}, err
	}
	return t, nil
}

// Reconcile concludes an optimistic write. On success the confirmed value
// (what the device reports, which may differ from what was requested)
// replaces the optimistic one; on failure the registry rolls back to the
// prior value and the failure is recorded on the device.
func (d *Dispatcher) Reconcile(t Ticket, confirmed any, callErr error) {
	if callErr == nil {
		if err := d.registry.UpdateProperties(t.DeviceID, device.Properties{t.Property: confirmed}); err != nil {
			d.logger.Debug("reconcile write skipped", "id", t.DeviceID, "property", t.Property, "error", err)
		}
		return
	}

	if !t.hadPrior {
		// The key never existed: remove it rather than leaving a phantom
		// nil entry behind.
		d.registry.DeleteProperty(t.DeviceID, t.Property)
	} else if err := d.registry.UpdateProperties(t.DeviceID, device.Properties{t.Property: t.prior}); err != nil {
		d.logger.Debug("rollback skipped", "id", t.DeviceID, "property", t.Property, "error", err)
	}
	d.recordFailure(t.DeviceID, t.Property, callErr)
}

// SetProperty performs the full two-phase property write: optimistic apply,
// remote call, read-back, reconcile. The action is the device operation
// name and param the protocol parameter carrying the value (for a focuser
// move, action "position" with param "Position").
func (d *Dispatcher) SetProperty(ctx context.Context, id string, action string, param string, value any) error {
	ticket, err := d.ApplyOptimistic(id, action, value)
	if err != nil {
		return err
	}

	dev, err := d.guard(id)
	if err != nil {
		d.Reconcile(ticket, nil, err)
		return err
	}

	params := url.Values{}
	params.Set(param, formatValue(value))
	start := time.Now()
	_, err = d.transport.Put(ctx, deviceRef(dev), action, params)
	observeCall(dev.Type, action, start, err)
	if err != nil {
		d.Reconcile(ticket, nil, err)
		return err
	}

	// Read back what the device settled on; it may clamp or round the
	// requested value. A failed read-back keeps the optimistic value.
	confirmed := value
	if raw, err := d.transport.Get(ctx, deviceRef(dev), action, nil); err == nil {
		var v any
		if json.Unmarshal(raw, &v) == nil {
			confirmed = v
		}
	} else {
		d.logger.Debug("read-back failed, keeping optimistic value", "id", id, "property", action, "error", err)
	}

	d.Reconcile(ticket, confirmed, nil)
	return nil
}

// CallMethod invokes a device action with the given parameters. Methods are
// fire-per-call: no caching, no retry.
//
// The optional optimistic map is written to the registry before the call
// goes out, so latency-sensitive controls (startexposure marking
// isexposing=true) reflect intent without waiting on the round trip. On
// success the optimistic values are committed; on failure they are rolled
// back and the failure recorded on the device.
func (d *Dispatcher) CallMethod(ctx context.Context, id string, action string, params url.Values, optimistic device.Properties) (json.RawMessage, error) {
	dev, err := d.guard(id)
	if err != nil {
		return nil, err
	}

	tickets := make([]Ticket, 0, len(optimistic))
	for name, value := range optimistic {
		t, err := d.ApplyOptimistic(id, name, value)
		if err != nil {
			for _, applied := range tickets {
				d.Reconcile(applied, nil, err)
			}
			return nil, err
		}
		tickets = append(tickets, t)
	}

	d.logger.Debug("dispatching method", "id", id, "action", action)
	start := time.Now()
	raw, err := d.transport.Put(ctx, deviceRef(dev), action, params)
	observeCall(dev.Type, action, start, err)
	for _, t := range tickets {
		d.Reconcile(t, optimistic[t.Property], err)
	}
	if err != nil {
		d.recordFailure(id, action, err)
		return nil, err
	}
	return raw, nil
}

// FetchImage retrieves the device's current image via the binary transfer
// path.
func (d *Dispatcher) FetchImage(ctx context.Context, id string) (*alpaca.Image, error) {
	dev, err := d.guard(id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	img, err := d.transport.ImageArray(ctx, deviceRef(dev))
	observeCall(dev.Type, "imagearray", start, err)
	if err != nil {
		d.recordFailure(id, "imagearray", err)
		return nil, err
	}
	return img, nil
}

// recordFailure stores the failure on the device so the UI can surface it.
func (d *Dispatcher) recordFailure(id string, op string, err error) {
	d.logger.Warn("device call failed", "id", id, "op", op, "error", err)
	d.registry.SetLastError(id, fmt.Sprintf("%s: %v", op, err))
}

// observeCall records latency and outcome metrics for one transport call.
func observeCall(deviceType device.DeviceType, op string, start time.Time, err error) {
	metrics.ObserveAlpacaCall(string(deviceType), op, time.Since(start), err)
	if err != nil {
		metrics.IncAlpacaError(errorKind(err))
	}
}

// errorKind maps a remote failure onto its metric label.
func errorKind(err error) string {
	switch {
	case errors.Is(err, alpaca.ErrTimeout):
		return "timeout"
	case errors.Is(err, alpaca.ErrTransport):
		return "transport"
	case errors.Is(err, alpaca.ErrProtocol):
		return "protocol"
	case errors.Is(err, alpaca.ErrDecode):
		return "decode"
	default:
		return "unknown"
	}
}

// formatValue renders a property value as a protocol form parameter.
func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprintf("%v", val)
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
