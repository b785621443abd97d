package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/astrohub/astrohub-core/internal/discovery"
)

// addServerRequest is the body for registering a manual Alpaca server.
type addServerRequest struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// handleDiscoveryScan runs a network discovery pass and returns the
// resulting server descriptors. Concurrent scans coalesce into one.
func (s *Server) handleDiscoveryScan(w http.ResponseWriter, r *http.Request) {
	if s.discovery == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "discovery not available")
		return
	}

	descriptors, err := s.discovery.Discover(r.Context())
	if err != nil {
		s.logger.Error("discovery scan failed", "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "discovery scan failed")
		return
	}

	s.auditLog("scan", "discovery", "", subjectOf(claimsFromContext(r.Context())), map[string]any{"servers_found": len(descriptors)})

	if descriptors == nil {
		descriptors = []discovery.Descriptor{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"servers": descriptors,
		"count":   len(descriptors),
	})
}

// handleListServers returns the currently known Alpaca servers without
// touching the network.
func (s *Server) handleListServers(w http.ResponseWriter, _ *http.Request) {
	if s.discovery == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "discovery not available")
		return
	}

	descriptors := s.discovery.Descriptors()
	if descriptors == nil {
		descriptors = []discovery.Descriptor{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"servers": descriptors,
		"count":   len(descriptors),
	})
}

// handleAddServer registers an Alpaca server by address, for servers that
// the UDP broadcast cannot reach (VPNs, routed subnets).
func (s *Server) handleAddServer(w http.ResponseWriter, r *http.Request) {
	if s.discovery == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "discovery not available")
		return
	}

	var req addServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "invalid JSON body")
		return
	}

	desc, err := s.discovery.AddManual(r.Context(), req.Address, req.Port)
	if err != nil {
		writeDiscoveryError(w, err)
		return
	}

	s.auditLog("create", "server", desc.Key(), subjectOf(claimsFromContext(r.Context())), map[string]any{"address": desc.Address, "port": desc.Port})
	writeJSON(w, http.StatusCreated, desc)
}

// handleRemoveServer forgets a manually registered server. Devices already
// in the registry are unaffected.
func (s *Server) handleRemoveServer(w http.ResponseWriter, r *http.Request) {
	if s.discovery == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "discovery not available")
		return
	}

	address := chi.URLParam(r, "address")
	port, err := strconv.Atoi(chi.URLParam(r, "port"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "port must be numeric")
		return
	}

	if err := s.discovery.RemoveManual(r.Context(), address, port); err != nil {
		writeDiscoveryError(w, err)
		return
	}

	s.auditLog("delete", "server", address+":"+strconv.Itoa(port), subjectOf(claimsFromContext(r.Context())), nil)
	w.WriteHeader(http.StatusNoContent)
}

// writeDiscoveryError maps discovery errors to HTTP responses.
func writeDiscoveryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, discovery.ErrInvalidAddress):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, discovery.ErrDiscovery):
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "discovery operation failed")
	}
}
