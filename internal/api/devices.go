package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/openlaundry/laundry-core/internal/device"
)

// handleListDevices returns all machines ordered by view position.
// Dashboards poll this on startup before switching to the observer socket.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.devices.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list devices", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns the full record of a single machine.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "device id must be an integer")
		return
	}

	d, err := s.devices.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("failed to get device", "id", id, "error", err)
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// handleConnectionStatus returns the currently connected controller boards.
func (s *Server) handleConnectionStatus(w http.ResponseWriter, _ *http.Request) {
	units := s.registry.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"units":     units,
		"count":     len(units),
		"observers": s.hubClientCount(),
	})
}

// hubClientCount reports connected observers, tolerating a not-yet-started hub.
func (s *Server) hubClientCount() int {
	if s.hub == nil {
		return 0
	}
	return s.hub.ClientCount()
}
