package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BTreeMap/LeadPipe/internal/conversation"
	"github.com/BTreeMap/LeadPipe/internal/messaging"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/go-chi/chi/v5"
)

// Lead listing bounds.
const (
	DefaultLeadLimit = 50
	MaxLeadLimit     = 500
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, s.banner)
}

// verifyHandler answers the Cloud API subscription handshake.
func (s *Server) verifyHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode, token, challenge := q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge")
	if mode == "" || token == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if mode == "subscribe" && s.verifyToken != "" && token == s.verifyToken {
		slog.Info("Server.verifyHandler: webhook verified", "vertical", chi.URLParam(r, "vertical"))
		writeText(w, http.StatusOK, challenge)
		return
	}
	slog.Warn("Server.verifyHandler: verification rejected", "mode", mode)
	w.WriteHeader(http.StatusForbidden)
}

// webhookHandler accepts Cloud API notifications. Malformed or empty
// payloads are acknowledged with 200 so the platform does not retry them.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	vertical := chi.URLParam(r, "vertical")
	if vertical == "" {
		vertical = s.defaultVertical
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		slog.Warn("Server.webhookHandler: failed to read body", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}
	msgs, err := messaging.ParseCloudWebhook(body, vertical)
	if err != nil {
		slog.Warn("Server.webhookHandler: ignoring malformed payload", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}
	if len(msgs) == 0 {
		slog.Debug("Server.webhookHandler: notification without messages")
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, msg := range msgs {
		slog.Debug("Server.webhookHandler: message received", "vertical", msg.Vertical, "from", msg.Identity, "message_id", msg.MessageID)
		err := s.queue.Enqueue(r.Context(), msg)
		switch {
		case err == nil:
		case errors.Is(err, conversation.ErrUnknownVertical):
			slog.Warn("Server.webhookHandler: unknown vertical", "vertical", msg.Vertical)
			w.WriteHeader(http.StatusNotFound)
			return
		case errors.Is(err, conversation.ErrQueueFull), errors.Is(err, models.ErrEmptyIdentity):
			// Dropped and already logged.
		default:
			slog.Error("Server.webhookHandler: enqueue failed", "vertical", msg.Vertical, "from", msg.Identity, "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// leadsHandler lists stored leads, newest first.
func (s *Server) leadsHandler(w http.ResponseWriter, r *http.Request) {
	if s.leads == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("lead store not configured"))
		return
	}
	limit := DefaultLeadLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("limit must be a positive integer"))
			return
		}
		limit = min(n, MaxLeadLimit)
	}
	leads, err := s.leads.ListLeads(r.Context(), r.URL.Query().Get("vertical"), limit)
	if err != nil {
		slog.Error("Server.leadsHandler: list failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to list leads"))
		return
	}
	if leads == nil {
		leads = []models.EnrichedLead{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(leads))
}
