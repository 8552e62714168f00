package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/openlaundry/laundry-core/internal/oplog"
)

// Log listing defaults.
const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// handleListLogs returns completed operation logs, newest first.
// Supports ?limit= and ?offset= query parameters.
func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLogLimit)
	}

	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
		offset = n
	}

	entries, err := s.logs.List(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("failed to list operation logs", "error", err)
		writeInternalError(w, "failed to list logs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"logs":   entries,
		"count":  len(entries),
		"limit":  limit,
		"offset": offset,
	})
}

// handleGetLog returns a single operation log entry.
func (s *Server) handleGetLog(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "log id must be an integer")
		return
	}

	entry, err := s.logs.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, oplog.ErrEntryNotFound) {
			writeNotFound(w, "log entry not found")
			return
		}
		s.logger.Error("failed to get operation log", "id", id, "error", err)
		writeInternalError(w, "failed to get log")
		return
	}

	writeJSON(w, http.StatusOK, entry)
}
