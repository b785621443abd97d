package history

import (
	"sync"
	"testing"

	"github.com/astrohub/astrohub-core/internal/bus"
	"github.com/astrohub/astrohub-core/internal/device"
)

type sample struct {
	deviceID   string
	deviceType string
	property   string
	value      float64
}

type transition struct {
	deviceID string
	state    string
	failed   bool
}

type fakeWriter struct {
	mu          sync.Mutex
	samples     []sample
	transitions []transition
}

func (f *fakeWriter) WritePropertySample(deviceID, deviceType, property string, value float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, sample{deviceID, deviceType, property, value})
}

func (f *fakeWriter) WriteConnectionTransition(deviceID, state string, failed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, transition{deviceID, state, failed})
}

func newRecorderFixture(t *testing.T) (*bus.Bus, *device.Registry, *fakeWriter, *Recorder) {
	t.Helper()
	events := bus.New()
	reg := device.NewRegistry(events)
	writer := &fakeWriter{}
	rec := NewRecorder(events, writer, reg)
	rec.Start()
	t.Cleanup(rec.Stop)
	return events, reg, writer, rec
}

func TestRecorderNumericProperties(t *testing.T) {
	_, reg, writer, _ := newRecorderFixture(t)

	dev := &device.Device{ID: "obs1:11111:focuser:0", Type: device.DeviceTypeFocuser, Endpoint: "http://obs1:11111"}
	if err := reg.Add(dev); err != nil {
		t.Fatalf("adding device: %v", err)
	}
	if err := reg.SetConnectionState(dev.ID, device.StateConnected, ""); err != nil {
		t.Fatalf("connecting device: %v", err)
	}

	if err := reg.UpdateProperties(dev.ID, device.Properties{
		"position":    float64(5000),
		"temperature": float64(-3.5),
		"description": "ZWO EAF", // not numeric: skipped
	}); err != nil {
		t.Fatalf("updating properties: %v", err)
	}

	writer.mu.Lock()
	defer writer.mu.Unlock()
	if len(writer.samples) != 2 {
		t.Fatalf("recorded %d samples, want 2: %+v", len(writer.samples), writer.samples)
	}
	for _, s := range writer.samples {
		if s.deviceType != "focuser" {
			t.Errorf("sample type = %q, want focuser", s.deviceType)
		}
	}
}

func TestRecorderConnectionTransitions(t *testing.T) {
	_, reg, writer, _ := newRecorderFixture(t)

	dev := &device.Device{ID: "obs1:11111:camera:0", Type: device.DeviceTypeCamera}
	if err := reg.Add(dev); err != nil {
		t.Fatalf("adding device: %v", err)
	}

	if err := reg.SetConnectionState(dev.ID, device.StateConnected, ""); err != nil {
		t.Fatalf("connecting: %v", err)
	}
	if err := reg.SetConnectionState(dev.ID, device.StateDisconnected, "connection reset"); err != nil {
		t.Fatalf("disconnecting: %v", err)
	}

	writer.mu.Lock()
	defer writer.mu.Unlock()
	if len(writer.transitions) != 2 {
		t.Fatalf("recorded %d transitions, want 2", len(writer.transitions))
	}
	if writer.transitions[0].state != "connected" || writer.transitions[0].failed {
		t.Errorf("first transition = %+v", writer.transitions[0])
	}
	if writer.transitions[1].state != "disconnected" || !writer.transitions[1].failed {
		t.Errorf("second transition = %+v", writer.transitions[1])
	}
}

func TestRecorderStop(t *testing.T) {
	_, reg, writer, rec := newRecorderFixture(t)

	dev := &device.Device{ID: "obs1:11111:focuser:0", Type: device.DeviceTypeFocuser}
	if err := reg.Add(dev); err != nil {
		t.Fatalf("adding device: %v", err)
	}

	rec.Stop()
	if err := reg.SetConnectionState(dev.ID, device.StateConnected, ""); err != nil {
		t.Fatalf("connecting: %v", err)
	}

	writer.mu.Lock()
	defer writer.mu.Unlock()
	if len(writer.transitions) != 0 {
		t.Errorf("recorded %d transitions after Stop, want 0", len(writer.transitions))
	}
}
