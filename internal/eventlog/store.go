// Package eventlog defines the append-only conversation event store.
package eventlog

import (
	"context"
	"errors"

	"github.com/wrapcommand/escalation-service/internal/model"
)

// ErrDuplicateEvent indicates an event with the same ID was already appended.
var ErrDuplicateEvent = errors.New("duplicate event ID")

// Store persists conversation events. Implementations must be safe for
// concurrent use and must append each event atomically.
type Store interface {
	// Append records an event and returns the sequence assigned to it.
	// Returns ErrDuplicateEvent if the event ID was already recorded.
	Append(ctx context.Context, event *model.ConversationEvent) (uint64, error)

	// Load returns every event of a conversation ordered by sequence.
	// Returns an empty slice for a conversation with no events.
	Load(ctx context.Context, tenantID, conversationID string) ([]model.ConversationEvent, error)

	// LoadSince returns up to limit events with sequence > afterSequence,
	// ordered by sequence. A limit <= 0 means no limit.
	LoadSince(ctx context.Context, tenantID, conversationID string, afterSequence uint64, limit int) ([]model.ConversationEvent, error)

	// LastSequence returns the highest sequence recorded for a
	// conversation, or 0 if it has none.
	LastSequence(ctx context.Context, tenantID, conversationID string) (uint64, error)

	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error
}
