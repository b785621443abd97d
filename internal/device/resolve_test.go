package device

import (
	"errors"
	"testing"
)

func TestResolveExactID(t *testing.T) {
	r, _ := newTestRegistry()
	if err := r.Add(testTelescope("192.168.1.50:11111:telescope:0")); err != nil {
		t.Fatal(err)
	}

	dev, err := Resolve(r, "192.168.1.50:11111:telescope:0", "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if dev.ID != "192.168.1.50:11111:telescope:0" {
		t.Errorf("resolved wrong device: %q", dev.ID)
	}
}

func TestResolveTypeNumberShorthand(t *testing.T) {
	r, _ := newTestRegistry()
	cam := testTelescope("192.168.1.50:11111:camera:2")
	cam.Type = DeviceTypeCamera
	cam.Number = 2
	if err := r.Add(cam); err != nil {
		t.Fatal(err)
	}

	dev, err := Resolve(r, "camera:2", "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if dev.Type != DeviceTypeCamera || dev.Number != 2 {
		t.Errorf("resolved %s:%d, want camera:2", dev.Type, dev.Number)
	}
}

func TestResolveBareNumberNeedsHint(t *testing.T) {
	r, _ := newTestRegistry()
	foc := testTelescope("192.168.1.50:11111:focuser:1")
	foc.Type = DeviceTypeFocuser
	foc.Number = 1
	if err := r.Add(foc); err != nil {
		t.Fatal(err)
	}

	// Without a type hint a bare number cannot be resolved.
	if _, err := Resolve(r, "1", ""); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("hintless bare number error = %v, want ErrDeviceNotFound", err)
	}

	dev, err := Resolve(r, "1", DeviceTypeFocuser)
	if err != nil {
		t.Fatalf("Resolve with hint failed: %v", err)
	}
	if dev.Number != 1 {
		t.Errorf("resolved number = %d, want 1", dev.Number)
	}
}

func TestResolveNoSilentFallback(t *testing.T) {
	r, _ := newTestRegistry()
	if err := r.Add(testTelescope("scope-1")); err != nil {
		t.Fatal(err)
	}

	// An unresolvable id must surface a failure, never guess a default.
	_, err := Resolve(r, "camera:99", "")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("error = %v, want ErrDeviceNotFound", err)
	}

	_, err = Resolve(r, "", "")
	if !errors.Is(err, ErrInvalidID) {
		t.Errorf("empty id error = %v, want ErrInvalidID", err)
	}
}

func TestMakeID(t *testing.T) {
	id := MakeID("192.168.1.50", 11111, DeviceTypeCamera, 0)
	if id != "192.168.1.50:11111:camera:0" {
		t.Errorf("MakeID = %q", id)
	}
}
