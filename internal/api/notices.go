package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/openlaundry/laundry-core/internal/appversion"
	"github.com/openlaundry/laundry-core/internal/notice"
)

// noticeRequest is the request body for POST /notices.
type noticeRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// handleListNotices returns all announcements, newest first.
func (s *Server) handleListNotices(w http.ResponseWriter, r *http.Request) {
	notices, err := s.notices.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list notices", "error", err)
		writeInternalError(w, "failed to list notices")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"notices": notices,
		"count":   len(notices),
	})
}

// handleCreateNotice publishes a new announcement.
func (s *Server) handleCreateNotice(w http.ResponseWriter, r *http.Request) {
	var req noticeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	n := &notice.Notice{Title: req.Title, Body: req.Body}
	if err := s.notices.Create(r.Context(), n); err != nil {
		if errors.Is(err, notice.ErrInvalidNotice) {
			writeBadRequest(w, "title is required")
			return
		}
		s.logger.Error("failed to create notice", "error", err)
		writeInternalError(w, "failed to create notice")
		return
	}

	writeJSON(w, http.StatusCreated, n)
}

// handleDeleteNotice removes an announcement.
func (s *Server) handleDeleteNotice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "notice id must be an integer")
		return
	}

	if err := s.notices.Delete(r.Context(), id); err != nil {
		if errors.Is(err, notice.ErrNoticeNotFound) {
			writeNotFound(w, "notice not found")
			return
		}
		s.logger.Error("failed to delete notice", "id", id, "error", err)
		writeInternalError(w, "failed to delete notice")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// appVersionRequest is the request body for PUT /app-version/{platform}.
type appVersionRequest struct {
	Version  string `json:"version"`
	Required bool   `json:"required"`
}

// handleGetAppVersion returns the published app version for a platform.
// The mobile app calls this on launch to decide whether to prompt for an
// upgrade.
func (s *Server) handleGetAppVersion(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	if !appversion.ValidPlatform(platform) {
		writeBadRequest(w, "platform must be ios or android")
		return
	}

	v, err := s.versions.Get(r.Context(), platform)
	if err != nil {
		if errors.Is(err, appversion.ErrPlatformNotFound) {
			writeNotFound(w, "no version recorded for platform")
			return
		}
		s.logger.Error("failed to get app version", "platform", platform, "error", err)
		writeInternalError(w, "failed to get app version")
		return
	}

	writeJSON(w, http.StatusOK, v)
}

// handleSetAppVersion creates or replaces the version record for a platform.
func (s *Server) handleSetAppVersion(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	if !appversion.ValidPlatform(platform) {
		writeBadRequest(w, "platform must be ios or android")
		return
	}

	var req appVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Version == "" {
		writeBadRequest(w, "version is required")
		return
	}

	v := &appversion.Version{
		Platform: platform,
		Version:  req.Version,
		Required: req.Required,
	}
	if err := s.versions.Set(r.Context(), v); err != nil {
		s.logger.Error("failed to set app version", "platform", platform, "error", err)
		writeInternalError(w, "failed to set app version")
		return
	}

	writeJSON(w, http.StatusOK, v)
}
