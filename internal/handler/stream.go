package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/wrapcommand/escalation-service/internal/middleware"
	"github.com/wrapcommand/escalation-service/internal/model"
	"github.com/wrapcommand/escalation-service/internal/service"
	"github.com/wrapcommand/escalation-service/pkg/logger"
	"github.com/wrapcommand/escalation-service/pkg/metrics"
)

const defaultHeartbeatInterval = 30 * time.Second

// StreamHandler handles SSE streaming endpoints.
type StreamHandler struct {
	eventService      *service.EventService
	escalationService *service.EscalationService
	logger            *logger.Logger
	pollInterval      time.Duration
	heartbeatInterval time.Duration
}

// NewStreamHandler creates a new stream handler that polls the event log
// every pollInterval.
func NewStreamHandler(
	eventSvc *service.EventService,
	escalationSvc *service.EscalationService,
	pollInterval time.Duration,
	log *logger.Logger,
) *StreamHandler {
	return &StreamHandler{
		eventService:      eventSvc,
		escalationService: escalationSvc,
		logger:            log,
		pollInterval:      pollInterval,
		heartbeatInterval: defaultHeartbeatInterval,
	}
}

// Stream handles GET /api/v1/conversations/{id}/escalation/stream
// It replays the log as event frames, sends the current status, then
// pushes new events and the recomputed status as they arrive. Replay
// resumes after ?after_sequence=N or the Last-Event-ID header; the status
// is always computed from the full log.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cursor := r.URL.Query().Get("after_sequence")
	if cursor == "" {
		cursor = r.Header.Get("Last-Event-ID")
	}
	replayAfter, err := parseSequence(cursor)
	if err != nil {
		writeError(w, http.StatusBadRequest, "after_sequence must be a non-negative integer")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Load before committing to a 200 so store failures surface as 500.
	events, err := h.eventService.Since(ctx, tenantID, conversationID, 0)
	if err != nil {
		h.logger.Error("failed to load events for stream",
			zap.Error(err),
			zap.String("conversation_id", conversationID),
		)
		writeError(w, http.StatusInternalServerError, "failed to load events")
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	log := h.logger.WithConversation(tenantID, conversationID)

	sendSSEEvent(w, flusher, "connected", "", map[string]string{
		"conversation_id": conversationID,
	})

	replayed := 0
	for i := range events {
		if events[i].Sequence <= replayAfter {
			continue
		}
		sendEvent(w, flusher, &events[i])
		replayed++
	}

	status := h.escalationService.Snapshot(conversationID, events)
	sendSSEEvent(w, flusher, "status", "", status)
	lastSequence := status.LastSequence

	log.Info("escalation stream opened",
		zap.Int("events_replayed", replayed),
		zap.Uint64("last_sequence", lastSequence),
		zap.String("status", string(status.Result.Status)),
	)

	poll := time.NewTicker(h.pollInterval)
	defer poll.Stop()
	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("SSE client disconnected")
			return

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", "", &model.HeartbeatEvent{
				Timestamp: time.Now().UTC(),
			})

		case <-poll.C:
			fresh, err := h.eventService.Since(ctx, tenantID, conversationID, lastSequence)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn("failed to poll events", zap.Error(err))
				sendSSEEvent(w, flusher, "error", "", &model.StreamErrorEvent{
					Code:    "poll_error",
					Message: "Failed to load new events",
				})
				continue
			}
			if len(fresh) == 0 {
				continue
			}

			for i := range fresh {
				sendEvent(w, flusher, &fresh[i])
			}
			events = append(events, fresh...)
			lastSequence = fresh[len(fresh)-1].Sequence

			status = h.escalationService.Snapshot(conversationID, events)
			sendSSEEvent(w, flusher, "status", "", status)
		}
	}
}

func sendEvent(w http.ResponseWriter, flusher http.Flusher, event *model.ConversationEvent) error {
	return sendSSEEvent(w, flusher, "event", strconv.FormatUint(event.Sequence, 10), event)
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event, id string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if id != "" {
		fmt.Fprintf(w, "id: %s\n", id)
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}
