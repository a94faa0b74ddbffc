package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wrapcommand/escalation-service/internal/escalation"
	"github.com/wrapcommand/escalation-service/internal/eventlog"
	"github.com/wrapcommand/escalation-service/internal/model"
	"github.com/wrapcommand/escalation-service/pkg/logger"
	"github.com/wrapcommand/escalation-service/pkg/metrics"
	"github.com/wrapcommand/escalation-service/pkg/tracing"
)

const (
	// MaxBatchConversations bounds a single batch status request.
	MaxBatchConversations = 100

	batchConcurrency = 8
)

// StatusCache stores evaluated statuses keyed by the last event sequence
// they were computed from.
type StatusCache interface {
	Get(ctx context.Context, tenantID, conversationID string, lastSequence uint64) (*model.EscalationStatusResult, bool, error)
	Set(ctx context.Context, tenantID, conversationID string, lastSequence uint64, result model.EscalationStatusResult) error
}

// EscalationService derives escalation statuses from the event log.
type EscalationService struct {
	store  eventlog.Store
	cache  StatusCache
	logger *logger.Logger
}

// NewEscalationService creates a new escalation service. cache may be nil.
func NewEscalationService(store eventlog.Store, cache StatusCache, log *logger.Logger) *EscalationService {
	return &EscalationService{
		store:  store,
		cache:  cache,
		logger: log,
	}
}

// Status evaluates the escalation status of one conversation.
func (s *EscalationService) Status(ctx context.Context, tenantID, conversationID string) (*model.EscalationStatusResponse, error) {
	ctx, span := tracing.Tracer().Start(ctx, "EscalationService.Status", trace.WithAttributes(
		attribute.String("conversation.id", conversationID),
	))
	defer span.End()

	log := s.logger.WithConversation(tenantID, conversationID)

	if s.cache != nil {
		lastSeq, err := s.store.LastSequence(ctx, tenantID, conversationID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "last sequence failed")
			return nil, fmt.Errorf("failed to get last sequence: %w", err)
		}

		cached, ok, err := s.cache.Get(ctx, tenantID, conversationID, lastSeq)
		switch {
		case err != nil:
			metrics.RecordCacheLookup("error")
			log.Warn("status cache lookup failed", zap.Error(err))
		case ok:
			metrics.RecordCacheLookup("hit")
			span.SetAttributes(attribute.Bool("cache.hit", true))
			resp := response(conversationID, lastSeq, *cached)
			return &resp, nil
		default:
			metrics.RecordCacheLookup("miss")
		}
	}

	events, err := s.store.Load(ctx, tenantID, conversationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	resp := s.Snapshot(conversationID, events)
	span.SetAttributes(
		attribute.String("escalation.status", string(resp.Result.Status)),
		attribute.Int("events.count", len(events)),
	)

	if s.cache != nil {
		if err := s.cache.Set(ctx, tenantID, conversationID, resp.LastSequence, resp.Result); err != nil {
			log.Warn("status cache store failed", zap.Error(err))
		}
	}

	return &resp, nil
}

// Snapshot evaluates an already loaded event list. The reported last
// sequence is that of the newest event in the list.
func (s *EscalationService) Snapshot(conversationID string, events []model.ConversationEvent) model.EscalationStatusResponse {
	result := escalation.Evaluate(events)
	metrics.RecordEvaluation(string(result.Status), len(events))

	var lastSeq uint64
	for i := range events {
		if events[i].Sequence > lastSeq {
			lastSeq = events[i].Sequence
		}
	}

	return response(conversationID, lastSeq, result)
}

// Statuses evaluates several conversations concurrently. Results keep the
// order of conversationIDs. Any store failure fails the whole batch.
func (s *EscalationService) Statuses(ctx context.Context, tenantID string, conversationIDs []string) (*model.ListEscalationStatusesResponse, error) {
	if len(conversationIDs) > MaxBatchConversations {
		return nil, fmt.Errorf("too many conversations: %d > %d", len(conversationIDs), MaxBatchConversations)
	}

	statuses := make([]model.EscalationStatusResponse, len(conversationIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)

	for i, id := range conversationIDs {
		i, id := i, id
		g.Go(func() error {
			resp, err := s.Status(gctx, tenantID, id)
			if err != nil {
				return fmt.Errorf("conversation %s: %w", id, err)
			}
			statuses[i] = *resp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &model.ListEscalationStatusesResponse{Statuses: statuses}, nil
}

func response(conversationID string, lastSeq uint64, result model.EscalationStatusResult) model.EscalationStatusResponse {
	return model.EscalationStatusResponse{
		ConversationID: conversationID,
		LastSequence:   lastSeq,
		Label:          escalation.Label(result.Status),
		Color:          escalation.ColorToken(result.Status),
		Result:         result,
	}
}
