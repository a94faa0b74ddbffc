// Package pgstore provides a PostgreSQL-based event store implementation.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wrapcommand/escalation-service/internal/eventlog"
	"github.com/wrapcommand/escalation-service/internal/model"
)

// uniqueViolation is the PostgreSQL error code for unique_violation.
const uniqueViolation = "23505"

// Store implements eventlog.Store with PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a new PostgreSQL event store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a connection pool and verifies it is reachable.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// Append records an event. The next sequence for the conversation is
// computed under a transaction-scoped advisory lock so concurrent appends to
// the same conversation serialize.
func (s *Store) Append(ctx context.Context, e *model.ConversationEvent) (uint64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, e.TenantID+"/"+e.ConversationID)
	if err != nil {
		return 0, fmt.Errorf("acquire advisory lock: %w", err)
	}

	var lastSeq int64
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(sequence), 0)
		FROM conversation_events
		WHERE tenant_id = $1 AND conversation_id = $2
	`, e.TenantID, e.ConversationID).Scan(&lastSeq)
	if err != nil {
		return 0, fmt.Errorf("get last sequence: %w", err)
	}

	seq := lastSeq + 1
	_, err = tx.Exec(ctx, `
		INSERT INTO conversation_events (id, tenant_id, conversation_id, sequence, event_type, subtype, actor, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.TenantID, e.ConversationID, seq, string(e.Type), e.Subtype, e.Actor, e.Payload, e.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return 0, eventlog.ErrDuplicateEvent
		}
		return 0, fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit event: %w", err)
	}

	e.Sequence = uint64(seq)
	return e.Sequence, nil
}

// Load returns every event of a conversation ordered by sequence.
func (s *Store) Load(ctx context.Context, tenantID, conversationID string) ([]model.ConversationEvent, error) {
	return s.LoadSince(ctx, tenantID, conversationID, 0, 0)
}

// LoadSince returns events with sequence > afterSequence, ordered by sequence.
func (s *Store) LoadSince(ctx context.Context, tenantID, conversationID string, afterSequence uint64, limit int) ([]model.ConversationEvent, error) {
	// LIMIT NULL is no limit.
	var lim any
	if limit > 0 {
		lim = limit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, conversation_id, sequence, event_type, subtype, actor, payload, created_at
		FROM conversation_events
		WHERE tenant_id = $1 AND conversation_id = $2 AND sequence > $3
		ORDER BY sequence ASC
		LIMIT $4
	`, tenantID, conversationID, int64(afterSequence), lim)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []model.ConversationEvent{}
	for rows.Next() {
		var e model.ConversationEvent
		var eventType string
		var seq int64
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ConversationID, &seq, &eventType, &e.Subtype, &e.Actor, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = model.EventType(eventType)
		e.Sequence = uint64(seq)
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

// LastSequence returns the highest sequence for a conversation.
func (s *Store) LastSequence(ctx context.Context, tenantID, conversationID string) (uint64, error) {
	var lastSeq int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(sequence), 0)
		FROM conversation_events
		WHERE tenant_id = $1 AND conversation_id = $2
	`, tenantID, conversationID).Scan(&lastSeq)
	if err != nil {
		return 0, fmt.Errorf("get last sequence: %w", err)
	}
	return uint64(lastSeq), nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// querier is satisfied by both pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ eventlog.Store = (*Store)(nil)
