// internal/api/handlers.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/roelvdh/marktwatch/internal/config"
	"github.com/roelvdh/marktwatch/internal/scrape"
	"github.com/roelvdh/marktwatch/pkg/models"
)

// handleItems returns every stored listing across all targets, newest first.
func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	listings, err := s.store.AllListings(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load listings")
		writeError(w, http.StatusInternalServerError, "failed to load listings")
		return
	}
	if listings == nil {
		listings = []models.Listing{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": listings})
}

// configResponse mirrors the settings sections the dashboard edits.
type configResponse struct {
	Website  config.Website  `json:"website"`
	Schedule string          `json:"schedule"`
	Email    config.Email    `json:"email"`
	Theme    json.RawMessage `json:"theme,omitempty"`
}

// handleGetConfig returns all settings sections.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var resp configResponse

	if _, err := s.store.GetSetting(ctx, config.KeyWebsite, &resp.Website); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	if _, err := s.store.GetSetting(ctx, config.KeySchedule, &resp.Schedule); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	if _, err := s.store.GetSetting(ctx, config.KeyEmail, &resp.Email); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	if _, err := s.store.GetSetting(ctx, config.KeyTheme, &resp.Theme); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// configUpdate carries any subset of the settings sections. Absent sections
// are left untouched.
type configUpdate struct {
	Website  *config.Website  `json:"website"`
	Schedule *string          `json:"schedule"`
	Email    *config.Email    `json:"email"`
	Theme    *json.RawMessage `json:"theme"`
}

// handlePostConfig persists each provided section. A schedule change
// additionally re-anchors the check deadline so countdowns update instantly.
func (s *Server) handlePostConfig(w http.ResponseWriter, r *http.Request) {
	var update configUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx := r.Context()
	if update.Website != nil {
		if err := s.store.SetSetting(ctx, config.KeyWebsite, update.Website); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to store website settings")
			return
		}
	}
	if update.Email != nil {
		if err := s.store.SetSetting(ctx, config.KeyEmail, update.Email); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to store email settings")
			return
		}
	}
	if update.Theme != nil {
		if err := s.store.SetSetting(ctx, config.KeyTheme, update.Theme); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to store theme")
			return
		}
	}
	if update.Schedule != nil {
		if err := s.store.SetSetting(ctx, config.KeySchedule, update.Schedule); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to store schedule")
			return
		}
		s.orchestrator.Reschedule(ctx)
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleCheck triggers a manual check cycle. A cycle already in flight gets
// a 429, not a queue slot.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	result, err := s.orchestrator.Trigger(r.Context())
	if errors.Is(err, scrape.ErrCheckRunning) {
		writeError(w, http.StatusTooManyRequests, "check already running, retry later")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Manual check failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  err.Error(),
			"code":   string(scrape.CodeOf(err)),
			"result": result,
		})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// emailRequest is the body for the raw send-email endpoint.
type emailRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// handleTestEmail sends a canned message through the configured transport.
func (s *Server) handleTestEmail(w http.ResponseWriter, r *http.Request) {
	email, ok := s.loadEmail(w, r)
	if !ok {
		return
	}
	if err := s.mailer.SendTest(email); err != nil {
		log.Error().Err(err).Msg("Test email failed")
		writeError(w, http.StatusBadGateway, "test email failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleSendEmail sends an arbitrary message through the configured transport.
func (s *Server) handleSendEmail(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Subject == "" || req.Body == "" {
		writeError(w, http.StatusBadRequest, "subject and body are required")
		return
	}

	email, ok := s.loadEmail(w, r)
	if !ok {
		return
	}
	if err := s.mailer.Send(email, req.Subject, req.Body); err != nil {
		log.Error().Err(err).Msg("Send email failed")
		writeError(w, http.StatusBadGateway, "send failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) loadEmail(w http.ResponseWriter, r *http.Request) (config.Email, bool) {
	var email config.Email
	found, err := s.store.GetSetting(r.Context(), config.KeyEmail, &email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load email settings")
		return email, false
	}
	if !found || email.Host == "" {
		writeError(w, http.StatusBadRequest, "email transport not configured")
		return email, false
	}
	return email, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
