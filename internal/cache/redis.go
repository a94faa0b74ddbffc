// Package cache provides a Redis-backed snapshot cache for evaluated
// escalation statuses.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wrapcommand/escalation-service/internal/model"
)

// Snapshot is a status evaluated at a given point of the event log.
type Snapshot struct {
	LastSequence uint64                       `json:"last_sequence"`
	Result       model.EscalationStatusResult `json:"result"`
	EvaluatedAt  time.Time                    `json:"evaluated_at"`
}

// StatusCache stores evaluated statuses in Redis.
type StatusCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewStatusCache connects to Redis and returns a cache whose entries expire
// after ttl.
func NewStatusCache(redisURL string, ttl time.Duration) (*StatusCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewStatusCacheWithClient(client, ttl), nil
}

// NewStatusCacheWithClient creates a cache from an existing Redis client.
func NewStatusCacheWithClient(client *redis.Client, ttl time.Duration) *StatusCache {
	return &StatusCache{
		client: client,
		prefix: "escalation:status:",
		ttl:    ttl,
	}
}

func (c *StatusCache) key(tenantID, conversationID string) string {
	return c.prefix + tenantID + ":" + conversationID
}

// Get returns the cached result for a conversation if it was evaluated at
// lastSequence. Any other cached sequence is a miss.
func (c *StatusCache) Get(ctx context.Context, tenantID, conversationID string, lastSequence uint64) (*model.EscalationStatusResult, bool, error) {
	raw, err := c.client.Get(ctx, c.key(tenantID, conversationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get status snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, false, fmt.Errorf("unmarshal status snapshot: %w", err)
	}

	if snap.LastSequence != lastSequence {
		return nil, false, nil
	}
	return &snap.Result, true, nil
}

// Set stores the result evaluated at lastSequence.
func (c *StatusCache) Set(ctx context.Context, tenantID, conversationID string, lastSequence uint64, result model.EscalationStatusResult) error {
	data, err := json.Marshal(Snapshot{
		LastSequence: lastSequence,
		Result:       result,
		EvaluatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal status snapshot: %w", err)
	}

	if err := c.client.Set(ctx, c.key(tenantID, conversationID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("save status snapshot: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (c *StatusCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *StatusCache) Close() error {
	return c.client.Close()
}
