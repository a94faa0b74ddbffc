// Package memory provides an in-memory implementation of eventlog.Store.
// This implementation is suitable for testing and development.
package memory

import (
	"context"
	"sync"

	"github.com/wrapcommand/escalation-service/internal/eventlog"
	"github.com/wrapcommand/escalation-service/internal/model"
)

// Store is a thread-safe in-memory implementation of eventlog.Store.
// The zero value is ready for use.
type Store struct {
	mu     sync.RWMutex
	events map[string][]model.ConversationEvent // tenant/conversation -> events (sorted by sequence)
	ids    map[string]struct{}                  // set of all event IDs for duplicate detection
}

// New creates a new in-memory event store.
func New() *Store {
	return &Store{
		events: make(map[string][]model.ConversationEvent),
		ids:    make(map[string]struct{}),
	}
}

func key(tenantID, conversationID string) string {
	return tenantID + "/" + conversationID
}

// Append records an event. Sequences are gapless and start at 1 per
// conversation.
func (s *Store) Append(ctx context.Context, e *model.ConversationEvent) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Initialize maps if nil (supports zero value)
	if s.events == nil {
		s.events = make(map[string][]model.ConversationEvent)
	}
	if s.ids == nil {
		s.ids = make(map[string]struct{})
	}

	if _, exists := s.ids[e.ID]; exists {
		return 0, eventlog.ErrDuplicateEvent
	}

	k := key(e.TenantID, e.ConversationID)
	seq := uint64(len(s.events[k])) + 1

	stored := *e
	stored.Sequence = seq
	stored.Payload = clonePayload(e.Payload)

	s.events[k] = append(s.events[k], stored)
	s.ids[e.ID] = struct{}{}

	e.Sequence = seq
	return seq, nil
}

// Load returns every event of a conversation ordered by sequence.
func (s *Store) Load(ctx context.Context, tenantID, conversationID string) ([]model.ConversationEvent, error) {
	return s.LoadSince(ctx, tenantID, conversationID, 0, 0)
}

// LoadSince returns events with sequence > afterSequence, ordered by sequence.
func (s *Store) LoadSince(ctx context.Context, tenantID, conversationID string, afterSequence uint64, limit int) ([]model.ConversationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	convEvents := s.events[key(tenantID, conversationID)]

	// Sequences are 1-indexed and gapless, so afterSequence is the start index.
	if afterSequence >= uint64(len(convEvents)) {
		return []model.ConversationEvent{}, nil
	}
	convEvents = convEvents[afterSequence:]
	if limit > 0 && len(convEvents) > limit {
		convEvents = convEvents[:limit]
	}

	// Return a copy to prevent external modification
	result := make([]model.ConversationEvent, len(convEvents))
	copy(result, convEvents)
	return result, nil
}

// LastSequence returns the highest sequence for a conversation.
func (s *Store) LastSequence(ctx context.Context, tenantID, conversationID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return uint64(len(s.events[key(tenantID, conversationID)])), nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func clonePayload(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

var _ eventlog.Store = (*Store)(nil)
