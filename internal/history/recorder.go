package history

import (
	"github.com/astrohub/astrohub-core/internal/bus"
	"github.com/astrohub/astrohub-core/internal/device"
)

// Writer is the time-series sink the recorder writes to. The production
// implementation is the InfluxDB client.
type Writer interface {
	WritePropertySample(deviceID string, deviceType string, property string, value float64)
	WriteConnectionTransition(deviceID string, state string, failed bool)
}

// Resolver looks up the device a sample belongs to, for its type tag.
type Resolver interface {
	Get(id string) (*device.Device, error)
}

// Recorder forwards bus events into time-series storage.
type Recorder struct {
	writer   Writer
	resolver Resolver
	subs     []bus.Subscription
	events   *bus.Bus
}

// NewRecorder creates a recorder; call Start to begin consuming events.
func NewRecorder(events *bus.Bus, writer Writer, resolver Resolver) *Recorder {
	return &Recorder{writer: writer, resolver: resolver, events: events}
}

// Start subscribes the recorder to property and connection events.
func (r *Recorder) Start() {
	r.subs = append(r.subs,
		r.events.Subscribe(device.EventPropertyChanged, r.onPropertyChanged),
		r.events.Subscribe(device.EventConnectionChanged, r.onConnectionChanged),
	)
}

// Stop unsubscribes the recorder. Safe to call more than once.
func (r *Recorder) Stop() {
	for _, sub := range r.subs {
		r.events.Unsubscribe(sub)
	}
	r.subs = nil
}

func (r *Recorder) onPropertyChanged(ev bus.Event) {
	pc, ok := ev.(device.PropertyChangedEvent)
	if !ok {
		return
	}
	value, ok := numeric(pc.Value)
	if !ok {
		return
	}

	deviceType := ""
	if dev, err := r.resolver.Get(pc.DeviceID); err == nil {
		deviceType = string(dev.Type)
	}
	r.writer.WritePropertySample(pc.DeviceID, deviceType, pc.Name, value)
}

func (r *Recorder) onConnectionChanged(ev bus.Event) {
	cc, ok := ev.(device.ConnectionChangedEvent)
	if !ok {
		return
	}
	r.writer.WriteConnectionTransition(cc.DeviceID, string(cc.State), cc.Error != "")
}

// numeric extracts a float64 from the value types property updates carry.
func numeric(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	default:
		return 0, false
	}
}
