package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/wrapcommand/escalation-service/internal/middleware"
	"github.com/wrapcommand/escalation-service/internal/service"
	"github.com/wrapcommand/escalation-service/pkg/logger"
)

// EscalationHandler handles escalation status endpoints.
type EscalationHandler struct {
	service *service.EscalationService
	logger  *logger.Logger
}

// NewEscalationHandler creates a new escalation handler.
func NewEscalationHandler(svc *service.EscalationService, log *logger.Logger) *EscalationHandler {
	return &EscalationHandler{
		service: svc,
		logger:  log,
	}
}

// Status handles GET /api/v1/conversations/{id}/escalation
func (h *EscalationHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.Status(ctx, tenantID, conversationID)
	if err != nil {
		h.logger.Error("failed to evaluate escalation status",
			zap.Error(err),
			zap.String("conversation_id", conversationID),
		)
		writeError(w, http.StatusInternalServerError, "failed to evaluate escalation status")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Batch handles GET /api/v1/escalations?conversation_id=a&conversation_id=b
// Comma separated ids are accepted as well.
func (h *EscalationHandler) Batch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)

	var ids []string
	for _, v := range r.URL.Query()["conversation_id"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}

	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "at least one conversation_id is required")
		return
	}
	if len(ids) > service.MaxBatchConversations {
		writeError(w, http.StatusBadRequest, "too many conversation_id values")
		return
	}
	for _, id := range ids {
		if err := middleware.ValidateConversationID(id); err != nil {
			writeError(w, http.StatusBadRequest, err.Error()+": "+id)
			return
		}
	}

	resp, err := h.service.Statuses(ctx, tenantID, ids)
	if err != nil {
		h.logger.Error("failed to evaluate escalation statuses",
			zap.Error(err),
			zap.Int("conversations", len(ids)),
		)
		writeError(w, http.StatusInternalServerError, "failed to evaluate escalation statuses")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
