package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/typeshield/typeshield"
)

type verifyPayload struct {
	CID    string `json:"cid"`
	TP     string `json:"tp"`
	TextID int64  `json:"textId"`
}

type resetPayload struct {
	CID   string `json:"cid"`
	Phone string `json:"phone"`
}

type resetNowPayload struct {
	CID         string `json:"cid"`
	PhoneNumber string `json:"phoneNumber"`
}

type disablePayload struct {
	Phone      string `json:"phone"`
	DisableTid string `json:"disableTid"`
}

// handleChallenge resolves a one-time link into the challenge page data.
func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.Challenge(r.Context(), r.PathValue("cid"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cid":    view.CID,
		"enroll": view.Enroll,
		"text":   view.Text,
		"textId": view.TextID,
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var payload verifyPayload
	if !s.decode(w, r, &payload) {
		return
	}
	if payload.CID == "" || payload.TP == "" {
		s.writeError(w, typeshield.NewMissingDataError())
		return
	}
	result, err := s.engine.Verify(r.Context(), typeshield.VerifyRequest{
		CID:     payload.CID,
		Pattern: payload.TP,
		TextID:  payload.TextID,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var payload resetPayload
	if !s.decode(w, r, &payload) {
		return
	}
	if payload.CID == "" || payload.Phone == "" {
		s.writeError(w, typeshield.NewMissingDataError())
		return
	}
	outcome, err := s.engine.ScheduleReset(r.Context(), payload.CID, payload.Phone)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleResetNow(w http.ResponseWriter, r *http.Request) {
	var payload resetNowPayload
	if !s.decode(w, r, &payload) {
		return
	}
	if payload.CID == "" || payload.PhoneNumber == "" {
		s.writeError(w, typeshield.NewMissingDataError())
		return
	}
	outcome, err := s.engine.ResetNow(r.Context(), payload.CID, payload.PhoneNumber)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	var payload disablePayload
	if !s.decode(w, r, &payload) {
		return
	}
	if payload.Phone == "" || payload.DisableTid == "" {
		s.writeError(w, typeshield.NewMissingDataError())
		return
	}
	outcome, err := s.engine.Disable(r.Context(), payload.DisableTid, payload.Phone)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, typeshield.NewMissingDataError())
		return false
	}
	return true
}

// writeError renders the JSON error envelope. Wire errors keep their
// stable code and message; lockouts use 403 so the page can distinguish
// "locked" from "wrong input" without parsing codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	if we, ok := typeshield.AsWireError(err); ok {
		status := http.StatusBadRequest
		if errors.Is(err, typeshield.ErrUserLocked) || errors.Is(err, typeshield.ErrChallengeLocked) {
			status = http.StatusForbidden
		}
		writeJSON(w, status, we)
		return
	}

	var pe *typeshield.ProviderError
	if errors.As(err, &pe) {
		writeJSON(w, http.StatusBadRequest, pe)
		return
	}

	switch {
	case errors.Is(err, typeshield.ErrProviderUnavailable), errors.Is(err, typeshield.ErrEngineNotReady):
		s.log.Error("dependency unavailable", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "Service temporarily unavailable"})
	default:
		s.log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
