package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-danfoss/internal/bridges/danfoss"
	"github.com/nerrad567/gray-logic-danfoss/internal/device"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
	maxCapabilityLen    = 64
)

// deviceResponse is the GET /device payload.
type deviceResponse struct {
	device.Snapshot
	Session *danfoss.Status `json:"session,omitempty"`
}

type capabilityRequest struct {
	Value json.RawMessage `json:"value"`
}

// handleGetDevice returns the capability snapshot plus session status.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	resp := deviceResponse{Snapshot: s.store.Snapshot()}

	st, err := s.controller.Status(r.Context())
	switch {
	case err == nil:
		resp.Session = &st
	case errors.Is(err, danfoss.ErrControllerStopped):
	default:
		s.logger.Warn("session status unavailable", "error", err, "request_id", requestID(r.Context()))
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleSetCapability writes a capability value to the unit.
func (s *Server) handleSetCapability(w http.ResponseWriter, r *http.Request) {
	capability := chi.URLParam(r, "capability")
	if capability == "" || len(capability) > maxCapabilityLen {
		writeBadRequest(w, "invalid capability")
		return
	}

	var req capabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Value) == 0 {
		writeBadRequest(w, "value is required")
		return
	}
	var value any
	if err := json.Unmarshal(req.Value, &value); err != nil || value == nil {
		writeBadRequest(w, "invalid value")
		return
	}

	if err := s.controller.SetCapability(r.Context(), capability, value); err != nil {
		s.writeCapabilityError(w, r, capability, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"capability": capability,
		"value":      value,
		"status":     string(danfoss.AckAccepted),
	})
}

func (s *Server) writeCapabilityError(w http.ResponseWriter, r *http.Request, capability string, err error) {
	switch danfoss.ErrorCode(err) {
	case danfoss.ErrCodeInvalidCapability:
		writeNotFound(w, fmt.Sprintf("unknown capability %q", capability))
	case danfoss.ErrCodeNotWritable:
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case danfoss.ErrCodeInvalidValue:
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
	case danfoss.ErrCodeDeviceRemoved:
		writeError(w, http.StatusGone, ErrCodeGone, "device has been removed")
	case danfoss.ErrCodeTimeout:
		writeError(w, http.StatusGatewayTimeout, ErrCodeServiceUnavailable, "command timed out")
	default:
		s.logger.Error("capability write failed",
			"capability", capability,
			"error", err,
			"request_id", requestID(r.Context()),
		)
		writeInternalError(w, "failed to set capability")
	}
}

// handleGetSettings returns the stored device settings.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.settings.Settings(r.Context())
	if err != nil {
		s.logger.Error("loading settings failed", "error", err, "request_id", requestID(r.Context()))
		writeInternalError(w, "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handlePatchSettings persists a partial settings update. A hostname change
// reinitialises the session.
func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var patch device.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if patch.Hostname == nil && patch.Name == nil {
		writeBadRequest(w, "no settings to update")
		return
	}

	settings, err := s.settings.UpdateSettings(r.Context(), patch)
	switch {
	case err == nil:
		s.logger.Info("device settings updated", "subject", subject(r.Context()), "request_id", requestID(r.Context()))
		writeJSON(w, http.StatusOK, settings)
	case errors.Is(err, device.ErrInvalidSettings):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
	case errors.Is(err, danfoss.ErrDeviceRemoved):
		writeError(w, http.StatusGone, ErrCodeGone, "device has been removed")
	default:
		s.logger.Error("updating settings failed", "error", err, "request_id", requestID(r.Context()))
		writeInternalError(w, "failed to update settings")
	}
}

// handleDeleteDevice removes the device and its settings.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.settings.DeleteDevice(r.Context()); err != nil {
		s.logger.Error("deleting device failed", "error", err, "request_id", requestID(r.Context()))
		writeInternalError(w, "failed to delete device")
		return
	}
	s.logger.Info("device deleted", "subject", subject(r.Context()), "request_id", requestID(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// handleGetHistory returns recorded capability snapshots, newest first.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "state history unavailable")
		return
	}

	deviceID := s.store.DeviceID()
	entries, err := s.history.GetHistory(r.Context(), deviceID, limit)
	if err != nil {
		s.logger.Error("loading history failed", "error", err, "request_id", requestID(r.Context()))
		writeInternalError(w, "failed to load device history")
		return
	}
	if entries == nil {
		entries = []device.StateHistoryEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": deviceID,
		"history":   entries,
		"count":     len(entries),
	})
}

// parseHistoryLimit parses the limit query parameter with bounds enforcement.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if limit > maxHistoryLimit {
		return 0, fmt.Errorf("limit exceeds maximum of %d", maxHistoryLimit)
	}
	return limit, nil
}
