package dispatch

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/astrohub/astrohub-core/internal/alpaca"
)

// Simulator is an in-memory transport for development and testing. It is
// never selected implicitly: a deployment opts in through configuration,
// and devices backed by it carry ordinary registry entries.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Simulator struct {
	mu    sync.Mutex
	state map[string]map[string]any

	// ImageWidth and ImageHeight size the synthetic frames returned by
	// ImageArray. Zero values fall back to a small default frame.
	ImageWidth  int
	ImageHeight int
}

// NewSimulator creates an empty simulator transport.
func NewSimulator() *Simulator {
	return &Simulator{state: make(map[string]map[string]any)}
}

// simKey scopes stored state to one simulated device.
func simKey(ref alpaca.DeviceRef) string {
	return fmt.Sprintf("%s:%s:%d", ref.Endpoint, ref.Type, ref.Number)
}

// deviceState returns the mutable property map for ref, creating it on
// first use. Callers must hold s.mu.
func (s *Simulator) deviceState(ref alpaca.DeviceRef) map[string]any {
	key := simKey(ref)
	st, ok := s.state[key]
	if !ok {
		st = map[string]any{"connected": false}
		s.state[key] = st
	}
	return st
}

// Seed pre-populates a simulated device property, for tests and demo
// configurations.
func (s *Simulator) Seed(ref alpaca.DeviceRef, property string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceState(ref)[property] = value
}

// Get returns the stored value of a property, or null for a property never
// written.
func (s *Simulator) Get(_ context.Context, ref alpaca.DeviceRef, action string, _ url.Values) (json.RawMessage, error) {
	s.mu.Lock()
	value, ok := s.deviceState(ref)[strings.ToLower(action)]
	s.mu.Unlock()

	if !ok {
		return json.RawMessage("null"), nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, &alpaca.CallError{Kind: alpaca.KindProtocol, Action: action, Err: err}
	}
	return raw, nil
}

// Put stores every non-identity form parameter as device state under the
// action name, mimicking a device that accepts any write verbatim.
func (s *Simulator) Put(_ context.Context, ref alpaca.DeviceRef, action string, params url.Values) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.deviceState(ref)
	for key, vals := range params {
		if key == "ClientID" || key == "ClientTransactionID" || len(vals) == 0 {
			continue
		}
		st[strings.ToLower(action)] = coerce(vals[0])
	}
	if len(params) == 0 {
		// A bare command like "halt"; record that it ran.
		st[strings.ToLower(action)] = true
	}
	return json.RawMessage("null"), nil
}

// SetConnected flips the simulated device's connected flag.
func (s *Simulator) SetConnected(_ context.Context, ref alpaca.DeviceRef, connected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceState(ref)["connected"] = connected
	return nil
}

// Connected reports the simulated device's connected flag.
func (s *Simulator) Connected(_ context.Context, ref alpaca.DeviceRef) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, _ := s.deviceState(ref)["connected"].(bool)
	return v, nil
}

// ImageArray returns a synthetic 16-bit gradient frame.
func (s *Simulator) ImageArray(_ context.Context, _ alpaca.DeviceRef) (*alpaca.Image, error) {
	width, height := s.ImageWidth, s.ImageHeight
	if width <= 0 {
		width = 64
	}
	if height <= 0 {
		height = 48
	}

	data := make([]byte, width*height*2)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			binary.LittleEndian.PutUint16(data[(y*width+x)*2:], uint16((x+y)%65536))
		}
	}
	return &alpaca.Image{
		ElementType:      alpaca.ElementInt16,
		TransmissionType: alpaca.ElementInt16,
		Rank:             2,
		Dim1:             int32(width),
		Dim2:             int32(height),
		Data:             data,
	}, nil
}

// coerce interprets a form value the way a JSON decoder would, so Get
// round-trips what Put stored.
func coerce(raw string) any {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
