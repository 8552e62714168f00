package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openlaundry/laundry-core/internal/device"
	"github.com/openlaundry/laundry-core/internal/push"
)

// pushSubscribeRequest is the request body for POST /push.
type pushSubscribeRequest struct {
	Token       string `json:"token"`
	DeviceID    int    `json:"device_id"`
	ExpectState int    `json:"expect_state"`
}

// pushUnsubscribeRequest is the request body for DELETE /push.
type pushUnsubscribeRequest struct {
	Token    string `json:"token"`
	DeviceID int    `json:"device_id"`
}

// handleCreatePushSubscription registers a one-shot notification for a
// device reaching the expected state.
func (s *Server) handleCreatePushSubscription(w http.ResponseWriter, r *http.Request) {
	var req pushSubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Token == "" {
		writeBadRequest(w, "token is required")
		return
	}
	state := device.State(req.ExpectState)
	if !state.Valid() {
		writeBadRequest(w, "expect_state is not a valid state code")
		return
	}

	// The subscription must point at a real machine.
	if _, err := s.devices.GetByID(r.Context(), req.DeviceID); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("failed to look up device for subscription", "id", req.DeviceID, "error", err)
		writeInternalError(w, "failed to create subscription")
		return
	}

	sub := &push.Subscription{
		Token:       req.Token,
		DeviceID:    req.DeviceID,
		ExpectState: state,
	}
	if err := s.push.Create(r.Context(), sub); err != nil {
		if errors.Is(err, push.ErrSubscriptionExists) {
			writeConflict(w, "subscription already exists")
			return
		}
		s.logger.Error("failed to create push subscription", "error", err)
		writeInternalError(w, "failed to create subscription")
		return
	}

	writeJSON(w, http.StatusCreated, sub)
}

// handleListPushSubscriptions returns all subscriptions held by a token.
func (s *Server) handleListPushSubscriptions(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	subs, err := s.push.ListByToken(r.Context(), token)
	if err != nil {
		s.logger.Error("failed to list push subscriptions", "error", err)
		writeInternalError(w, "failed to list subscriptions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"subscriptions": subs,
		"count":         len(subs),
	})
}

// handleDeletePushSubscription removes a token's subscription for one
// device and returns the token's remaining subscriptions.
func (s *Server) handleDeletePushSubscription(w http.ResponseWriter, r *http.Request) {
	var req pushUnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Token == "" {
		writeBadRequest(w, "token is required")
		return
	}

	if err := s.push.Delete(r.Context(), req.Token, req.DeviceID); err != nil {
		if errors.Is(err, push.ErrSubscriptionNotFound) {
			writeNotFound(w, "subscription not found")
			return
		}
		s.logger.Error("failed to delete push subscription", "error", err)
		writeInternalError(w, "failed to delete subscription")
		return
	}

	remaining, err := s.push.ListByToken(r.Context(), req.Token)
	if err != nil {
		s.logger.Error("failed to list remaining subscriptions", "error", err)
		writeInternalError(w, "failed to list subscriptions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"subscriptions": remaining,
		"count":         len(remaining),
	})
}
