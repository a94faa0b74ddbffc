// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/wrapcommand/escalation-service/internal/eventlog"
	"github.com/wrapcommand/escalation-service/internal/middleware"
	"github.com/wrapcommand/escalation-service/internal/model"
	"github.com/wrapcommand/escalation-service/internal/service"
	"github.com/wrapcommand/escalation-service/pkg/logger"
)

// maxEventBodyBytes leaves room for the 64 KiB payload plus envelope.
const maxEventBodyBytes = 128 << 10

// EventHandler handles conversation event endpoints.
type EventHandler struct {
	service *service.EventService
	logger  *logger.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(svc *service.EventService, log *logger.Logger) *EventHandler {
	return &EventHandler{
		service: svc,
		logger:  log,
	}
}

// List handles GET /api/v1/conversations/{id}/events
// Supports ?after_sequence=N&limit=M for pagination
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	afterSequence, err := parseSequence(r.URL.Query().Get("after_sequence"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "after_sequence must be a non-negative integer")
		return
	}

	var limit int
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	resp, err := h.service.List(ctx, tenantID, conversationID, afterSequence, limit)
	if err != nil {
		h.logger.Error("failed to list events",
			zap.Error(err),
			zap.String("conversation_id", conversationID),
		)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Append handles POST /api/v1/conversations/{id}/events
func (h *EventHandler) Append(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.AppendEventRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBodyBytes)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	event, err := h.service.Append(ctx, tenantID, conversationID, &req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, event)
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, eventlog.ErrDuplicateEvent):
		writeError(w, http.StatusConflict, "event already recorded")
	default:
		h.logger.Error("failed to append event",
			zap.Error(err),
			zap.String("conversation_id", conversationID),
			zap.String("event_type", string(req.Type)),
		)
		writeError(w, http.StatusInternalServerError, "failed to append event")
	}
}
