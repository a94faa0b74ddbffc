// Package service provides business logic for the escalation service.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wrapcommand/escalation-service/internal/eventlog"
	"github.com/wrapcommand/escalation-service/internal/model"
	"github.com/wrapcommand/escalation-service/pkg/logger"
	"github.com/wrapcommand/escalation-service/pkg/metrics"
	"github.com/wrapcommand/escalation-service/pkg/tracing"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// EventService records and lists conversation events.
type EventService struct {
	store  eventlog.Store
	logger *logger.Logger
	now    func() time.Time
}

// NewEventService creates a new event service.
func NewEventService(store eventlog.Store, log *logger.Logger) *EventService {
	return &EventService{
		store:  store,
		logger: log,
		now:    time.Now,
	}
}

// Append validates and records a new event for a conversation.
func (s *EventService) Append(ctx context.Context, tenantID, conversationID string, req *model.AppendEventRequest) (*model.ConversationEvent, error) {
	if err := ValidateAppendRequest(req); err != nil {
		metrics.EventAppendFailuresTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	ctx, span := tracing.Tracer().Start(ctx, "EventService.Append", trace.WithAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.String("event.type", string(req.Type)),
	))
	defer span.End()

	createdAt := s.now().UTC()
	if req.CreatedAt != nil {
		createdAt = req.CreatedAt.UTC()
	}

	event := &model.ConversationEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		TenantID:       tenantID,
		Type:           req.Type,
		Subtype:        req.Subtype,
		Actor:          req.Actor,
		Payload:        req.Payload,
		CreatedAt:      createdAt,
	}

	seq, err := s.store.Append(ctx, event)
	if err != nil {
		reason := "store_error"
		if errors.Is(err, eventlog.ErrDuplicateEvent) {
			reason = "duplicate"
		}
		metrics.EventAppendFailuresTotal.WithLabelValues(reason).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		return nil, fmt.Errorf("failed to append event: %w", err)
	}

	metrics.EventsAppendedTotal.WithLabelValues(string(event.Type)).Inc()

	s.logger.WithConversation(tenantID, conversationID).Info("event appended",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("subtype", event.Subtype),
		zap.String("actor", event.Actor),
		zap.Uint64("sequence", seq),
	)

	return event, nil
}

// List returns a page of events after a sequence.
func (s *EventService) List(ctx context.Context, tenantID, conversationID string, afterSequence uint64, limit int) (*model.ListEventsResponse, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	// Fetch one extra to learn whether another page exists.
	events, err := s.store.LoadSince(ctx, tenantID, conversationID, afterSequence, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	hasMore := len(events) > limit
	if hasMore {
		events = events[:limit]
	}

	lastSeq := afterSequence
	if len(events) > 0 {
		lastSeq = events[len(events)-1].Sequence
	}

	return &model.ListEventsResponse{
		Events:       events,
		HasMore:      hasMore,
		LastSequence: lastSeq,
	}, nil
}

// Since returns every event after a sequence, unpaginated.
func (s *EventService) Since(ctx context.Context, tenantID, conversationID string, afterSequence uint64) ([]model.ConversationEvent, error) {
	events, err := s.store.LoadSince(ctx, tenantID, conversationID, afterSequence, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	return events, nil
}
