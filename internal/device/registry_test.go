package device

import (
	"errors"
	"sync"
	"testing"

	"github.com/astrohub/astrohub-core/internal/bus"
)

// newTestRegistry returns a registry wired to a fresh bus.
func newTestRegistry() (*Registry, *bus.Bus) {
	b := bus.New()
	return NewRegistry(b), b
}

// testTelescope builds a minimal device for tests.
func testTelescope(id string) *Device {
	return &Device{
		ID:            id,
		Name:          "Test Telescope",
		Type:          DeviceTypeTelescope,
		Number:        0,
		Endpoint:      "http://192.168.1.50:11111",
		ServerAddress: "192.168.1.50",
		ServerPort:    11111,
	}
}

func TestAddAndGet(t *testing.T) {
	r, _ := newTestRegistry()

	if err := r.Add(testTelescope("scope-1")); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	dev, err := r.Get("scope-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if dev.ConnectionState != StateDisconnected {
		t.Errorf("new device state = %q, want %q", dev.ConnectionState, StateDisconnected)
	}
	if dev.CreatedAt.IsZero() {
		t.Error("CreatedAt was not set")
	}
}

func TestAddDuplicateFails(t *testing.T) {
	r, _ := newTestRegistry()

	if err := r.Add(testTelescope("scope-1")); err != nil {
		t.Fatalf("first Add failed: %v", err)
	}
	err := r.Add(testTelescope("scope-1"))
	if !errors.Is(err, ErrDeviceExists) {
		t.Errorf("duplicate Add error = %v, want ErrDeviceExists", err)
	}
}

func TestAddEmitsDeviceAdded(t *testing.T) {
	r, b := newTestRegistry()

	var got []bus.Event
	b.Subscribe(EventAdded, func(ev bus.Event) { got = append(got, ev) })

	if err := r.Add(testTelescope("scope-1")); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("expected 1 DeviceAdded event, got %d", len(got))
	}
	added := got[0].(AddedEvent)
	if added.Device.ID != "scope-1" {
		t.Errorf("event device id = %q, want scope-1", added.Device.ID)
	}
}

func TestRemoveUnknownIsNoOp(t *testing.T) {
	r, b := newTestRegistry()

	events := 0
	b.Subscribe(EventRemoved, func(bus.Event) { events++ })

	r.Remove("ghost")

	if events != 0 {
		t.Errorf("Remove of unknown id emitted %d events, want 0", events)
	}
}

func TestGetReturnsDeepCopy(t *testing.T) {
	r, _ := newTestRegistry()

	dev := testTelescope("scope-1")
	dev.Properties = Properties{"gain": 100.0}
	if err := r.Add(dev); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	first, _ := r.Get("scope-1")
	first.Properties["gain"] = 999.0
	first.Name = "mutated"

	second, _ := r.Get("scope-1")
	if second.Properties["gain"] != 100.0 {
		t.Errorf("registry state mutated through copy: gain = %v", second.Properties["gain"])
	}
	if second.Name != "Test Telescope" {
		t.Errorf("registry state mutated through copy: name = %q", second.Name)
	}
}

func TestFindDeterministicOrder(t *testing.T) {
	r, _ := newTestRegistry()

	// Two cameras with the same number on different servers.
	camB := testTelescope("b-server:11111:camera:0")
	camB.Type = DeviceTypeCamera
	camA := testTelescope("a-server:11111:camera:0")
	camA.Type = DeviceTypeCamera

	// Insert in reverse of sorted order; Find must still pick the
	// lexically first id.
	if err := r.Add(camB); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(camA); err != nil {
		t.Fatal(err)
	}

	found, err := r.Find(DeviceTypeCamera, 0)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if found.ID != "a-server:11111:camera:0" {
		t.Errorf("Find returned %q, want the sorted-first id", found.ID)
	}
}

func TestListSnapshot(t *testing.T) {
	r, _ := newTestRegistry()

	if err := r.Add(testTelescope("scope-1")); err != nil {
		t.Fatal(err)
	}
	snapshot := r.List()

	// Mutation after List must not be visible in the snapshot.
	if err := r.Add(testTelescope("scope-2")); err != nil {
		t.Fatal(err)
	}

	if len(snapshot) != 1 {
		t.Errorf("snapshot length = %d, want 1", len(snapshot))
	}
	if r.Count() != 2 {
		t.Errorf("registry count = %d, want 2", r.Count())
	}
}

func TestUpdatePropertiesUnknownIDIsSilent(t *testing.T) {
	r, b := newTestRegistry()

	if err := r.Add(testTelescope("scope-1")); err != nil {
		t.Fatal(err)
	}
	events := 0
	b.Subscribe(EventPropertyChanged, func(bus.Event) { events++ })

	// Must not error and must not touch any existing device.
	if err := r.UpdateProperties("ghost", Properties{"gain": 1.0}); err != nil {
		t.Errorf("UpdateProperties on unknown id returned error: %v", err)
	}

	dev, _ := r.Get("scope-1")
	if len(dev.Properties) != 0 {
		t.Errorf("existing device mutated by stale-id update: %v", dev.Properties)
	}
	if events != 0 {
		t.Errorf("stale-id update emitted %d events", events)
	}
}

func TestUpdatePropertiesRejectedWhileDisconnected(t *testing.T) {
	r, _ := newTestRegistry()

	if err := r.Add(testTelescope("scope-1")); err != nil {
		t.Fatal(err)
	}

	err := r.UpdateProperties("scope-1", Properties{"gain": 1.0})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("write on disconnected device error = %v, want ErrNotConnected", err)
	}
}

func TestUpdatePropertiesEmitsPerChangedKey(t *testing.T) {
	r, b := newTestRegistry()

	dev := testTelescope("scope-1")
	if err := r.Add(dev); err != nil {
		t.Fatal(err)
	}
	if err := r.SetConnectionState("scope-1", StateConnected, ""); err != nil {
		t.Fatal(err)
	}

	var changed []PropertyChangedEvent
	b.Subscribe(EventPropertyChanged, func(ev bus.Event) {
		changed = append(changed, ev.(PropertyChangedEvent))
	})

	if err := r.UpdateProperties("scope-1", Properties{"gain": 100.0, "offset": 10.0}); err != nil {
		t.Fatalf("UpdateProperties failed: %v", err)
	}
	if len(changed) != 2 {
		t.Fatalf("expected 2 PropertyChanged events, got %d", len(changed))
	}

	// Re-writing the same value must not emit again.
	changed = nil
	if err := r.UpdateProperties("scope-1", Properties{"gain": 100.0}); err != nil {
		t.Fatal(err)
	}
	if len(changed) != 0 {
		t.Errorf("unchanged value emitted %d events", len(changed))
	}
}

func TestTransitionStateCAS(t *testing.T) {
	r, _ := newTestRegistry()

	if err := r.Add(testTelescope("scope-1")); err != nil {
		t.Fatal(err)
	}

	prev, ok, err := r.TransitionState("scope-1", []ConnectionState{StateDisconnected}, StateConnecting)
	if err != nil || !ok {
		t.Fatalf("transition failed: ok=%v err=%v", ok, err)
	}
	if prev != StateDisconnected {
		t.Errorf("previous state = %q, want disconnected", prev)
	}

	// Second attempt from disconnected must be refused: state is connecting.
	prev, ok, err = r.TransitionState("scope-1", []ConnectionState{StateDisconnected}, StateConnecting)
	if err != nil {
		t.Fatalf("transition errored: %v", err)
	}
	if ok {
		t.Error("transition applied twice; connecting state should act as a lock")
	}
	if prev != StateConnecting {
		t.Errorf("observed state = %q, want connecting", prev)
	}
}

func TestConcludeTransitionCAS(t *testing.T) {
	r, b := newTestRegistry()

	if err := r.Add(testTelescope("scope-1")); err != nil {
		t.Fatal(err)
	}

	if _, _, err := r.TransitionState("scope-1", []ConnectionState{StateDisconnected}, StateConnecting); err != nil {
		t.Fatal(err)
	}

	var events []ConnectionChangedEvent
	b.Subscribe(EventConnectionChanged, func(ev bus.Event) {
		events = append(events, ev.(ConnectionChangedEvent))
	})

	applied, err := r.ConcludeTransition("scope-1", StateConnecting, StateConnected, "")
	if err != nil || !applied {
		t.Fatalf("conclude failed: applied=%v err=%v", applied, err)
	}
	dev, _ := r.Get("scope-1")
	if dev.ConnectionState != StateConnected {
		t.Errorf("state = %q, want connected", dev.ConnectionState)
	}

	// The state moved on; a second conclusion from connecting loses the race.
	applied, err = r.ConcludeTransition("scope-1", StateConnecting, StateDisconnected, "too late")
	if err != nil {
		t.Fatal(err)
	}
	if applied {
		t.Error("conclusion applied after the state already moved")
	}
	dev, _ = r.Get("scope-1")
	if dev.ConnectionState != StateConnected {
		t.Errorf("state = %q after losing conclusion, want connected", dev.ConnectionState)
	}

	if len(events) != 1 {
		t.Errorf("expected 1 ConnectionChanged event, got %d", len(events))
	}
}

func TestDeleteProperty(t *testing.T) {
	r, b := newTestRegistry()

	if err := r.Add(testTelescope("scope-1")); err != nil {
		t.Fatal(err)
	}
	if err := r.SetConnectionState("scope-1", StateConnected, ""); err != nil {
		t.Fatal(err)
	}
	if err := r.UpdateProperties("scope-1", Properties{"tracking": true}); err != nil {
		t.Fatal(err)
	}

	var changed []PropertyChangedEvent
	b.Subscribe(EventPropertyChanged, func(ev bus.Event) {
		changed = append(changed, ev.(PropertyChangedEvent))
	})

	r.DeleteProperty("scope-1", "tracking")

	dev, _ := r.Get("scope-1")
	if _, exists := dev.Properties["tracking"]; exists {
		t.Error("property survived deletion")
	}
	if len(changed) != 1 || changed[0].Value != nil {
		t.Errorf("expected one nil-valued change event, got %+v", changed)
	}

	// Deleting an absent key is silent.
	changed = nil
	r.DeleteProperty("scope-1", "tracking")
	if len(changed) != 0 {
		t.Errorf("absent key deletion emitted %d events", len(changed))
	}
}

func TestSetConnectionStateRecordsAndClearsLastError(t *testing.T) {
	r, b := newTestRegistry()

	if err := r.Add(testTelescope("scope-1")); err != nil {
		t.Fatal(err)
	}

	var events []ConnectionChangedEvent
	b.Subscribe(EventConnectionChanged, func(ev bus.Event) {
		events = append(events, ev.(ConnectionChangedEvent))
	})

	if err := r.SetConnectionState("scope-1", StateDisconnected, "connection refused"); err != nil {
		t.Fatal(err)
	}
	dev, _ := r.Get("scope-1")
	if dev.LastError != "connection refused" {
		t.Errorf("lastError = %q, want recorded failure", dev.LastError)
	}

	if err := r.SetConnectionState("scope-1", StateConnected, ""); err != nil {
		t.Fatal(err)
	}
	dev, _ = r.Get("scope-1")
	if dev.LastError != "" {
		t.Errorf("lastError not cleared on success: %q", dev.LastError)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 ConnectionChanged events, got %d", len(events))
	}
	if events[0].Error != "connection refused" || events[1].Error != "" {
		t.Errorf("unexpected event error details: %+v", events)
	}
}

func TestStateAlwaysOneOfFour(t *testing.T) {
	r, _ := newTestRegistry()

	if err := r.Add(testTelescope("scope-1")); err != nil {
		t.Fatal(err)
	}

	valid := func(st ConnectionState) bool {
		for _, s := range AllConnectionStates() {
			if st == s {
				return true
			}
		}
		return false
	}

	for _, st := range AllConnectionStates() {
		if err := r.SetConnectionState("scope-1", st, ""); err != nil {
			t.Fatal(err)
		}
		dev, _ := r.Get("scope-1")
		if !valid(dev.ConnectionState) {
			t.Errorf("device in undefined state %q", dev.ConnectionState)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	r, _ := newTestRegistry()

	if err := r.Add(testTelescope("scope-1")); err != nil {
		t.Fatal(err)
	}
	if err := r.SetConnectionState("scope-1", StateConnected, ""); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = r.UpdateProperties("scope-1", Properties{"counter": float64(n*100 + j)})
				_, _ = r.Get("scope-1")
				_ = r.List()
			}
		}(i)
	}
	wg.Wait()
}
