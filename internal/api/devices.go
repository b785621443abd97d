package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/astrohub/astrohub-core/internal/alpaca"
	"github.com/astrohub/astrohub-core/internal/auth"
	"github.com/astrohub/astrohub-core/internal/device"
)

// setPropertyRequest is the body for PUT /devices/{id}/properties/{name}.
// Param is the Alpaca form field name; when empty it is derived from the
// property name (position -> Position).
type setPropertyRequest struct {
	Value any    `json:"value"`
	Param string `json:"param,omitempty"`
}

// commandRequest is the body for POST /devices/{id}/command/{action}.
// Optimistic carries property values written to the registry before the
// call resolves (startexposure with {"isexposing": true}); they are rolled
// back if the call fails.
type commandRequest struct {
	Params     map[string]string `json:"params,omitempty"`
	Optimistic map[string]any    `json:"optimistic,omitempty"`
}

// registerDeviceRequest is the body for POST /devices. ID is optional: a
// blank one is derived from the server address when given, or generated for
// a device with no server-derived identity.
type registerDeviceRequest struct {
	ID            string `json:"id,omitempty"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	Number        int    `json:"number"`
	Endpoint      string `json:"endpoint"`
	ServerAddress string `json:"server_address,omitempty"`
	ServerPort    int    `json:"server_port,omitempty"`
}

// handleListDevices returns all devices, with optional query filters.
//
// Query parameters:
//   - type: filter by device type (telescope, camera, focuser, ...)
//   - state: filter by connection state (connected, disconnected, ...)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.registry.List()

	if typeStr := r.URL.Query().Get("type"); typeStr != "" {
		devices = filterDevices(devices, func(d device.Device) bool {
			return d.Type == device.DeviceType(typeStr)
		})
	}

	if stateStr := r.URL.Query().Get("state"); stateStr != "" {
		devices = filterDevices(devices, func(d device.Device) bool {
			return d.ConnectionState == device.ConnectionState(stateStr)
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleDeviceStats returns device counts by type and connection state.
func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.registry.GetStats()

	byType := make(map[string]int, len(stats.ByType))
	for t, n := range stats.ByType {
		byType[string(t)] = n
	}
	byState := make(map[string]int, len(stats.ByState))
	for st, n := range stats.ByState {
		byState[string(st)] = n
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":    stats.TotalDevices,
		"by_type":  byType,
		"by_state": byState,
	})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.deviceOr404(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleRegisterDevice manually registers a device that discovery cannot
// reach (or that the operator wants pinned ahead of a scan).
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" || req.Type == "" || req.Endpoint == "" {
		writeBadRequest(w, "name, type and endpoint are required")
		return
	}
	t := device.DeviceType(strings.ToLower(req.Type))
	if !device.ValidType(t) {
		writeBadRequest(w, "unknown device type: "+req.Type)
		return
	}

	id := req.ID
	if id == "" {
		if req.ServerAddress != "" && req.ServerPort > 0 {
			id = device.MakeID(req.ServerAddress, req.ServerPort, t, req.Number)
		} else {
			id = device.GenerateID()
		}
	}

	dev := &device.Device{
		ID:            id,
		Name:          req.Name,
		Type:          t,
		Number:        req.Number,
		Endpoint:      req.Endpoint,
		ServerAddress: req.ServerAddress,
		ServerPort:    req.ServerPort,
		IsManualEntry: true,
	}
	if err := s.registry.Add(dev); err != nil {
		if errors.Is(err, device.ErrDeviceExists) {
			writeConflict(w, "device id already registered")
			return
		}
		writeInternalError(w, "failed to register device")
		return
	}

	claims := claimsFromContext(r.Context())
	s.auditLog("create", "device", dev.ID, subjectOf(claims), map[string]any{"type": string(t)})

	created, err := s.registry.Get(dev.ID)
	if err != nil {
		writeInternalError(w, "failed to load device after register")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleDeleteDevice removes a device from the registry. A connected device
// gets a best-effort disconnect first; a remote failure never blocks the
// removal.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.deviceOr404(w, r)
	if !ok {
		return
	}

	if dev.ConnectionState == device.StateConnected {
		if err := s.lifecycle.Disconnect(r.Context(), dev.ID); err != nil {
			s.logger.Warn("disconnect before removal failed", "device_id", dev.ID, "error", err)
		}
	}
	s.registry.Remove(dev.ID)

	claims := claimsFromContext(r.Context())
	s.auditLog("delete", "device", dev.ID, subjectOf(claims), nil)

	w.WriteHeader(http.StatusNoContent)
}

// handleConnectDevice transitions the device to the connected state.
func (s *Server) handleConnectDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.deviceOr404(w, r)
	if !ok {
		return
	}
	id := dev.ID

	if err := s.lifecycle.Connect(r.Context(), id); err != nil {
		s.writeDeviceError(w, id, "connect", err)
		return
	}

	claims := claimsFromContext(r.Context())
	s.auditLog("connect", "device", id, subjectOf(claims), nil)

	dev, err := s.registry.Get(id)
	if err != nil {
		writeInternalError(w, "failed to load device after connect")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleDisconnectDevice transitions the device to the disconnected state.
// Disconnect is best-effort: the device always ends disconnected locally
// even when the remote call fails, so a remote failure is reported with
// the final device state attached.
func (s *Server) handleDisconnectDevice(w http.ResponseWriter, r *http.Request) {
	resolved, ok := s.deviceOr404(w, r)
	if !ok {
		return
	}
	id := resolved.ID

	err := s.lifecycle.Disconnect(r.Context(), id)
	if err != nil && !isRemoteFailure(err) {
		s.writeDeviceError(w, id, "disconnect", err)
		return
	}

	claims := claimsFromContext(r.Context())
	s.auditLog("disconnect", "device", id, subjectOf(claims), nil)

	dev, getErr := s.registry.Get(id)
	if getErr != nil {
		writeInternalError(w, "failed to load device after disconnect")
		return
	}

	resp := map[string]any{"device": dev}
	if err != nil {
		resp["warning"] = "remote disconnect failed; device marked disconnected locally"
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetProperty reads a live property value from the device.
func (s *Server) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.deviceOr404(w, r)
	if !ok {
		return
	}
	id := dev.ID
	name := chi.URLParam(r, "name")

	value, err := s.dispatcher.GetProperty(r.Context(), id, name)
	if err != nil {
		s.writeDeviceError(w, id, "get property", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"property":  name,
		"value":     value,
	})
}

// handleSetProperty writes a property value to the device.
func (s *Server) handleSetProperty(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.deviceOr404(w, r)
	if !ok {
		return
	}
	id := dev.ID
	name := chi.URLParam(r, "name")

	var req setPropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Value == nil {
		writeBadRequest(w, "value is required")
		return
	}

	param := req.Param
	if param == "" {
		param = titleCase(name)
	}

	if err := s.dispatcher.SetProperty(r.Context(), id, name, param, req.Value); err != nil {
		s.writeDeviceError(w, id, "set property", err)
		return
	}

	claims := claimsFromContext(r.Context())
	s.auditLog("command", "device", id, subjectOf(claims), map[string]any{
		"property": name,
		"value":    req.Value,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"property":  name,
		"value":     req.Value,
	})
}

// handleDeviceCommand invokes a method on the device (no retry on failure).
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.deviceOr404(w, r)
	if !ok {
		return
	}
	id := dev.ID
	action := chi.URLParam(r, "action")

	var req commandRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}

	params := url.Values{}
	for k, v := range req.Params {
		params.Set(k, v)
	}

	result, err := s.dispatcher.CallMethod(r.Context(), id, action, params, device.Properties(req.Optimistic))
	if err != nil {
		s.writeDeviceError(w, id, "command "+action, err)
		return
	}

	claims := claimsFromContext(r.Context())
	s.auditLog("command", "device", id, subjectOf(claims), map[string]any{
		"action": action,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"action":    action,
		"value":     json.RawMessage(normaliseRaw(result)),
	})
}

// handleDeviceImage fetches the current image from a camera device.
// The pixel buffer is returned as raw bytes with geometry in headers,
// keeping large frames out of JSON.
func (s *Server) handleDeviceImage(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.deviceOr404(w, r)
	if !ok {
		return
	}
	id := dev.ID

	img, err := s.dispatcher.FetchImage(r.Context(), id)
	if err != nil {
		s.writeDeviceError(w, id, "image", err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Image-Element-Type", fmt.Sprintf("%d", img.ElementType))
	w.Header().Set("X-Image-Rank", fmt.Sprintf("%d", img.Rank))
	w.Header().Set("X-Image-Dim1", fmt.Sprintf("%d", img.Dim1))
	w.Header().Set("X-Image-Dim2", fmt.Sprintf("%d", img.Dim2))
	w.Header().Set("X-Image-Dim3", fmt.Sprintf("%d", img.Dim3))
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(img.Data)
}

// deviceOr404 resolves the {id} URL parameter, writing a 404 on failure.
// Resolution accepts an exact registry id or the "{type}:{number}"
// shorthand; every handler must use the returned device's canonical ID for
// onward calls.
func (s *Server) deviceOr404(w http.ResponseWriter, r *http.Request) (*device.Device, bool) {
	raw := chi.URLParam(r, "id")
	dev, err := device.Resolve(s.registry, raw, "")
	if err != nil {
		writeNotFound(w, "device not found")
		return nil, false
	}
	return dev, true
}

// writeDeviceError maps domain errors to HTTP status codes.
func (s *Server) writeDeviceError(w http.ResponseWriter, id, op string, err error) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, device.ErrNotConnected):
		writeConflict(w, "device is not connected")
	case errors.Is(err, device.ErrInvalidTransition):
		writeConflict(w, "a connection transition is already in progress")
	case isRemoteFailure(err):
		s.logger.Warn("device call failed", "device_id", id, "op", op, "error", err)
		writeBadGateway(w, "device call failed: "+err.Error())
	default:
		s.logger.Error("device operation failed", "device_id", id, "op", op, "error", err)
		writeInternalError(w, "device operation failed")
	}
}

// isRemoteFailure reports whether the error originated in an Alpaca call
// rather than local validation.
func isRemoteFailure(err error) bool {
	return errors.Is(err, alpaca.ErrTimeout) ||
		errors.Is(err, alpaca.ErrTransport) ||
		errors.Is(err, alpaca.ErrProtocol)
}

// subjectOf returns the claims subject, or empty for unauthenticated contexts.
func subjectOf(claims *auth.CustomClaims) string {
	if claims == nil {
		return ""
	}
	return claims.Subject
}

func filterDevices(devices []device.Device, keep func(device.Device) bool) []device.Device {
	out := devices[:0]
	for _, d := range devices {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

// titleCase upper-cases the first letter of an Alpaca action name.
func titleCase(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// normaliseRaw returns a valid JSON payload even when the device omitted
// the Value field entirely.
func normaliseRaw(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
