package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"fuelwatch/internal/storage"
)

type sendCodeRequest struct {
	Email  string `json:"email"`
	Action string `json:"action"`
}

type subscribeRequest struct {
	Email  string              `json:"email"`
	Code   string              `json:"code"`
	Weekly bool                `json:"weekly"`
	Alerts []storage.AlertRule `json:"alerts"`
}

type unsubscribeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.DailyDocument()
	if err != nil {
		s.logger.Error().Err(err).Msg("render daily minima document")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeDocument(w, doc)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.HistoryDocument()
	if err != nil {
		s.logger.Error().Err(err).Msg("render history document")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeDocument(w, doc)
}

// handleSendCode issues a verification code and mails it out. The action
// field lets us reject hopeless flows before a code is burnt: no point
// verifying an unsubscribe for an address that was never subscribed.
func (s *Server) handleSendCode(w http.ResponseWriter, r *http.Request) {
	var req sendCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "email required")
		return
	}

	switch req.Action {
	case "unsubscribe":
		if !s.registry.IsSubscribed(req.Email) {
			writeError(w, http.StatusNotFound, "email not subscribed")
			return
		}
	case "subscribe":
		if s.registry.IsSubscribed(req.Email) {
			writeError(w, http.StatusBadRequest, "email already subscribed")
			return
		}
	}

	code, err := s.registry.IssueCode(req.Email)
	if err != nil {
		if errors.Is(err, storage.ErrRateLimited) {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		s.logger.Error().Err(err).Msg("issue verification code")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := s.notifier.SendVerification(r.Context(), req.Email, code); err != nil {
		// Delivery trouble is non-fatal; the subscriber retries.
		s.logger.Warn().Err(err).Str("email", req.Email).Msg("verification code not delivered")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "email required")
		return
	}
	if !s.registry.VerifyCode(req.Email, req.Code) {
		writeError(w, http.StatusBadRequest, storage.ErrInvalidCode.Error())
		return
	}
	if !req.Weekly && len(req.Alerts) == 0 {
		writeError(w, http.StatusBadRequest, "nothing to subscribe to")
		return
	}

	if err := s.registry.Subscribe(req.Email, req.Weekly, req.Alerts); err != nil {
		if errors.Is(err, storage.ErrAlreadySubscribed) || errors.Is(err, storage.ErrNoChannels) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error().Err(err).Str("email", req.Email).Msg("subscribe failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req unsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "email required")
		return
	}
	if !s.registry.VerifyCode(req.Email, req.Code) {
		writeError(w, http.StatusBadRequest, storage.ErrInvalidCode.Error())
		return
	}

	if err := s.registry.Unsubscribe(req.Email); err != nil {
		if errors.Is(err, storage.ErrNotSubscribed) {
			writeError(w, http.StatusNotFound, "email not subscribed")
			return
		}
		s.logger.Error().Err(err).Str("email", req.Email).Msg("unsubscribe failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
