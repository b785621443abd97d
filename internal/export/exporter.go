package export

import (
	"encoding/json"

	"github.com/astrohub/astrohub-core/internal/bus"
	"github.com/astrohub/astrohub-core/internal/device"
	"github.com/astrohub/astrohub-core/internal/infrastructure/mqtt"
)

// Publisher is the broker surface the exporter writes to.
// *mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger is the logging interface used by the exporter.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Exporter mirrors bus events onto MQTT topics.
type Exporter struct {
	publisher Publisher
	qos       byte
	logger    Logger
	events    *bus.Bus
	topics    mqtt.Topics
	subs      []bus.Subscription
}

// NewExporter creates an exporter publishing at the given QoS.
// Call Start to begin mirroring events.
func NewExporter(events *bus.Bus, publisher Publisher, qos byte) *Exporter {
	return &Exporter{
		publisher: publisher,
		qos:       qos,
		logger:    noopLogger{},
		events:    events,
	}
}

// SetLogger sets the logger used to report dropped publishes.
func (e *Exporter) SetLogger(logger Logger) {
	e.logger = logger
}

// Start subscribes to the bus. Events arriving before Start are not exported.
func (e *Exporter) Start() {
	e.subs = []bus.Subscription{
		e.events.Subscribe(device.EventConnectionChanged, e.onConnectionChanged),
		e.events.Subscribe(device.EventPropertyChanged, e.onPropertyChanged),
		e.events.Subscribe(device.EventAdded, e.onEvent),
		e.events.Subscribe(device.EventRemoved, e.onEvent),
		e.events.Subscribe(device.EventError, e.onEvent),
	}
}

// Stop unsubscribes from the bus. Safe to call more than once.
func (e *Exporter) Stop() {
	for _, sub := range e.subs {
		e.events.Unsubscribe(sub)
	}
	e.subs = nil
}

// onConnectionChanged publishes the new connection state retained, so a
// subscriber joining later still sees every device's current state.
func (e *Exporter) onConnectionChanged(ev bus.Event) {
	cc, ok := ev.(device.ConnectionChangedEvent)
	if !ok {
		return
	}
	e.publish(e.topics.DeviceState(cc.DeviceID), cc, true)
	e.publish(e.topics.Event(string(device.EventConnectionChanged)), cc, false)
}

func (e *Exporter) onPropertyChanged(ev bus.Event) {
	pc, ok := ev.(device.PropertyChangedEvent)
	if !ok {
		return
	}
	e.publish(e.topics.DeviceProperty(pc.DeviceID, pc.Name), pc, false)
}

// onEvent publishes any remaining event type on the generic event topic.
func (e *Exporter) onEvent(ev bus.Event) {
	e.publish(e.topics.Event(string(ev.EventType())), ev, false)
}

func (e *Exporter) publish(topic string, payload any, retained bool) {
	data, err := json.Marshal(payload)
	if err != nil {
		e.logger.Warn("export marshal failed", "topic", topic, "error", err)
		return
	}
	if err := e.publisher.Publish(topic, data, e.qos, retained); err != nil {
		e.logger.Warn("export publish dropped", "topic", topic, "error", err)
	}
}
