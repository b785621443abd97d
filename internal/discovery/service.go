package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/astrohub/astrohub-core/internal/alpaca"
	"github.com/astrohub/astrohub-core/internal/device"
	"github.com/astrohub/astrohub-core/internal/metrics"
)

// ManagementClient queries an Alpaca server's management endpoints.
type ManagementClient interface {
	Description(ctx context.Context, address string, port int) (alpaca.ServerDescription, error)
	ConfiguredDevices(ctx context.Context, address string, port int) ([]alpaca.ConfiguredDevice, error)
}

// Logger defines the logging interface used by the Service.
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

// Options configures a discovery service.
type Options struct {
	Registry *device.Registry
	Client   ManagementClient
	Scanner  Scanner

	// Rewriter, when set, routes device endpoints through the hub proxy.
	// Nil endpoints point straight at the device server.
	Rewriter *ProxyRewriter

	// Repository, when set, persists manual server entries. Nil keeps
	// manual entries in memory only.
	Repository *Repository

	Logger Logger
}

// Service unifies automatic scanning and manual entry into one merge path.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Only one automatic scan runs
//     at a time; a concurrent Discover call joins the in-flight scan and
//     returns its result.
type Service struct {
	registry *device.Registry
	client   ManagementClient
	scanner  Scanner
	rewriter *ProxyRewriter
	repo     *Repository
	logger   Logger

	mu          sync.Mutex
	descriptors map[string]Descriptor
	inflight    chan struct{}
	lastScan    []Descriptor
}

// NewService creates a discovery service from opts.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Service{
		registry:    opts.Registry,
		client:      opts.Client,
		scanner:     opts.Scanner,
		rewriter:    opts.Rewriter,
		repo:        opts.Repository,
		logger:      logger,
		descriptors: make(map[string]Descriptor),
	}
}

// Discover runs an automatic scan: probe the network, enumerate every
// responder, and merge its devices into the registry. No responders is an
// empty result, not an error. A call made while a scan is in flight waits
// for that scan and returns its result instead of starting another.
func (s *Service) Discover(ctx context.Context) ([]Descriptor, error) {
	s.mu.Lock()
	if s.inflight != nil {
		done := s.inflight
		s.mu.Unlock()
		<-done
		s.mu.Lock()
		result := append([]Descriptor(nil), s.lastScan...)
		s.mu.Unlock()
		return result, nil
	}
	done := make(chan struct{})
	s.inflight = done
	s.mu.Unlock()

	start := time.Now()
	result, err := s.scan(ctx)
	metrics.ObserveDiscoveryScan(time.Since(start), err)

	s.mu.Lock()
	s.lastScan = result
	s.inflight = nil
	close(done)
	s.mu.Unlock()
	return result, err
}

// scan performs one full discovery pass.
func (s *Service) scan(ctx context.Context) ([]Descriptor, error) {
	candidates, err := s.scanner.Scan(ctx)
	if err != nil {
		s.logger.Warn("network scan failed", "error", err)
		return nil, err
	}
	s.logger.Info("discovery scan complete", "responders", len(candidates))

	var found []Descriptor
	for _, c := range candidates {
		// A server that answered the probe but fails enumeration is
		// skipped; it must not abort the rest of the pass.
		desc, err := s.probe(ctx, c.Address, c.Port, false)
		if err != nil {
			s.logger.Warn("server enumeration failed", "address", c.Address, "port", c.Port, "error", err)
			continue
		}
		found = append(found, desc)
	}
	return found, nil
}

// AddManual registers a server by explicit address and port. The address is
// validated syntactically before any network traffic; a network failure
// carries the attempted endpoint. The resulting descriptor is tagged as a
// manual entry and persisted when a repository is configured.
func (s *Service) AddManual(ctx context.Context, address string, port int) (Descriptor, error) {
	if err := validateAddress(address, port); err != nil {
		return Descriptor{}, err
	}

	desc, err := s.probe(ctx, address, port, true)
	if err != nil {
		return Descriptor{}, err
	}

	if s.repo != nil {
		if err := s.repo.Save(ctx, desc); err != nil {
			s.logger.Error("persisting manual server failed", "address", address, "port", port, "error", err)
		}
	}
	return desc, nil
}

// RemoveManual forgets a manually added server. Devices already registered
// from it stay in the registry until the operator removes them.
func (s *Service) RemoveManual(ctx context.Context, address string, port int) error {
	key := fmt.Sprintf("%s:%d", address, port)
	s.mu.Lock()
	delete(s.descriptors, key)
	metrics.SetServersKnown(len(s.descriptors))
	s.mu.Unlock()

	if s.repo != nil {
		return s.repo.Delete(ctx, address, port)
	}
	return nil
}

// RestoreManual reloads persisted manual servers on startup. Each server is
// re-probed best-effort; one that is currently unreachable keeps its stored
// descriptor so the operator can see it and retry.
func (s *Service) RestoreManual(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	stored, err := s.repo.List(ctx)
	if err != nil {
		return err
	}

	for _, desc := range stored {
		if _, err := s.probe(ctx, desc.Address, desc.Port, true); err != nil {
			s.logger.Warn("stored server unreachable, keeping entry", "address", desc.Address, "port", desc.Port, "error", err)
			desc.IsManualEntry = true
			s.store(desc)
		}
	}
	s.logger.Info("manual servers restored", "count", len(stored))
	return nil
}

// Descriptors returns a snapshot of all known servers, ordered by key.
func (s *Service) Descriptors() []Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Descriptor, 0, len(s.descriptors))
	for _, d := range s.descriptors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// probe enumerates one server and merges its devices into the registry.
func (s *Service) probe(ctx context.Context, address string, port int, manual bool) (Descriptor, error) {
	endpoint := fmt.Sprintf("%s:%d", address, port)

	info, err := s.client.Description(ctx, address, port)
	if err != nil {
		return Descriptor{}, &Error{Endpoint: endpoint, Err: err}
	}
	configured, err := s.client.ConfiguredDevices(ctx, address, port)
	if err != nil {
		return Descriptor{}, &Error{Endpoint: endpoint, Err: err}
	}

	desc := Descriptor{
		Address:       address,
		Port:          port,
		ServerName:    info.ServerName,
		Manufacturer:  info.Manufacturer,
		DiscoveredAt:  time.Now().UTC(),
		IsManualEntry: manual,
	}
	desc = s.store(desc)
	s.merge(desc, configured)
	return desc, nil
}

// store installs a descriptor, replacing any previous one for the same key.
// The manual tag is sticky: an automatic pass never clears it.
func (s *Service) store(desc Descriptor) Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.descriptors[desc.Key()]; ok && prev.IsManualEntry {
		desc.IsManualEntry = true
	}
	s.descriptors[desc.Key()] = desc
	metrics.SetServersKnown(len(s.descriptors))
	return desc
}

// merge registers the server's devices. Devices already in the registry are
// left untouched so re-discovery never clobbers live state.
func (s *Service) merge(desc Descriptor, configured []alpaca.ConfiguredDevice) {
	for _, cd := range configured {
		t := device.DeviceType(strings.ToLower(cd.DeviceType))
		if !device.ValidType(t) {
			s.logger.Warn("skipping device of unknown type", "type", cd.DeviceType, "server", desc.Key())
			continue
		}

		dev := &device.Device{
			ID:            device.MakeID(desc.Address, desc.Port, t, cd.DeviceNumber),
			Name:          cd.DeviceName,
			Type:          t,
			Number:        cd.DeviceNumber,
			Endpoint:      s.endpoint(desc),
			ServerAddress: desc.Address,
			ServerPort:    desc.Port,
			IsManualEntry: desc.IsManualEntry,
			Properties:    device.Properties{"unique_id": cd.UniqueID},
		}

		err := s.registry.Add(dev)
		switch {
		case errors.Is(err, device.ErrDeviceExists):
			s.logger.Debug("device already registered", "id", dev.ID)
		case err != nil:
			s.logger.Error("registering discovered device failed", "id", dev.ID, "error", err)
		}
	}
}

// endpoint builds the base URL devices of this server are called on.
func (s *Service) endpoint(desc Descriptor) string {
	if s.rewriter != nil {
		return s.rewriter.Rewrite(desc.Address, desc.Port)
	}
	return fmt.Sprintf("http://%s:%d", desc.Address, desc.Port)
}

// validateAddress performs the syntactic checks for manual entry.
func validateAddress(address string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalidAddress, port)
	}
	trimmed := strings.TrimSpace(address)
	if trimmed == "" || trimmed != address {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	if strings.ContainsAny(address, "/\\ ") {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	// Either a literal IP or a plausible hostname.
	if net.ParseIP(address) != nil {
		return nil
	}
	for _, label := range strings.Split(strings.TrimSuffix(address, "."), ".") {
		if label == "" || len(label) > 63 {
			return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
		}
	}
	return nil
}
