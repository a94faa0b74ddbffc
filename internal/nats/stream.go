package nats

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/wrapcommand/escalation-service/internal/eventlog"
	"github.com/wrapcommand/escalation-service/internal/model"
)

const (
	// StreamName is the name of the conversation events stream.
	StreamName = "CONVERSATION_EVENTS"

	// SubjectPrefix is the prefix for all conversation subjects.
	SubjectPrefix = "conv"

	// DuplicateWindow is how long JetStream remembers message IDs for
	// duplicate detection.
	DuplicateWindow = 24 * time.Hour

	// DefaultMaxBytes caps the stream size unless overridden.
	DefaultMaxBytes int64 = 100 * 1024 * 1024 * 1024 // 100GB

	fetchBatchSize = 256
)

// StreamManager stores conversation events on a JetStream stream. It
// implements eventlog.Store.
type StreamManager struct {
	client   *Client
	maxBytes int64
}

// StreamOption configures a StreamManager.
type StreamOption func(*StreamManager)

// WithMaxBytes sets the stream size limit used when the stream is created.
func WithMaxBytes(n int64) StreamOption {
	return func(m *StreamManager) {
		if n > 0 {
			m.maxBytes = n
		}
	}
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client, opts ...StreamOption) *StreamManager {
	m := &StreamManager{client: client, maxBytes: DefaultMaxBytes}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnsureStream ensures the events stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	// Check if stream exists
	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxBytes:    m.maxBytes,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Duplicates:  DuplicateWindow,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "Append-only conversation event log",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

var plainToken = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// subjectToken maps an identifier to a single subject token, one to one.
// Identifiers made only of [A-Za-z0-9_-] pass through unchanged; anything
// else becomes "~" followed by its unpadded base64url form. "~" never
// appears in a plain token, so the two forms cannot collide.
func subjectToken(s string) string {
	if plainToken.MatchString(s) {
		return s
	}
	return "~" + base64.RawURLEncoding.EncodeToString([]byte(s))
}

// EventSubject returns the subject for an event.
func EventSubject(tenantID, conversationID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s.event.%s", SubjectPrefix, subjectToken(tenantID), subjectToken(conversationID), subjectToken(string(eventType)))
}

// ConversationFilter returns the filter subject for all events in a conversation.
func ConversationFilter(tenantID, conversationID string) string {
	return fmt.Sprintf("%s.%s.%s.event.>", SubjectPrefix, subjectToken(tenantID), subjectToken(conversationID))
}

// Append publishes an event. The event ID is used as the JetStream message
// ID, so a repeated append within DuplicateWindow is rejected.
func (m *StreamManager) Append(ctx context.Context, event *model.ConversationEvent) (uint64, error) {
	subject := EventSubject(event.TenantID, event.ConversationID, event.Type)

	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, subject, data, jetstream.WithMsgID(event.ID))
	if err != nil {
		return 0, fmt.Errorf("failed to publish event: %w", err)
	}
	if ack.Duplicate {
		return 0, eventlog.ErrDuplicateEvent
	}

	event.Sequence = ack.Sequence
	return ack.Sequence, nil
}

// Load returns every event of a conversation ordered by stream sequence.
func (m *StreamManager) Load(ctx context.Context, tenantID, conversationID string) ([]model.ConversationEvent, error) {
	return m.LoadSince(ctx, tenantID, conversationID, 0, 0)
}

// LoadSince reads events after a stream sequence through a short-lived
// filtered consumer.
func (m *StreamManager) LoadSince(ctx context.Context, tenantID, conversationID string, afterSequence uint64, limit int) ([]model.ConversationEvent, error) {
	js := m.client.JetStream()

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject:     ConversationFilter(tenantID, conversationID),
		AckPolicy:         jetstream.AckNonePolicy,
		DeliverPolicy:     jetstream.DeliverAllPolicy,
		InactiveThreshold: time.Minute,
	}

	if afterSequence > 0 {
		consumerConfig.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		consumerConfig.OptStartSeq = afterSequence + 1
	}

	consumer, err := js.CreateConsumer(ctx, StreamName, consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	info := consumer.CachedInfo()
	defer js.DeleteConsumer(context.WithoutCancel(ctx), StreamName, info.Name)

	pending := int(info.NumPending)
	if limit > 0 && pending > limit {
		pending = limit
	}

	events := make([]model.ConversationEvent, 0, pending)
	delivered := 0

	for delivered < pending {
		batch, err := consumer.Fetch(min(pending-delivered, fetchBatchSize), jetstream.FetchMaxWait(2*time.Second))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch events: %w", err)
		}

		received := 0
		for msg := range batch.Messages() {
			received++

			meta, err := msg.Metadata()
			if err != nil {
				return nil, fmt.Errorf("read message metadata: %w", err)
			}

			var event model.ConversationEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				m.client.logger.Error("undecodable event on stream",
					zap.Error(err),
					zap.String("subject", msg.Subject()),
					zap.Uint64("stream_sequence", meta.Sequence.Stream),
				)
				return nil, fmt.Errorf("decode event at stream sequence %d: %w", meta.Sequence.Stream, err)
			}
			event.Sequence = meta.Sequence.Stream

			events = append(events, event)
		}
		delivered += received

		if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("batch error: %w", err)
		}
		if received == 0 {
			break
		}
	}

	return events, nil
}

// LastSequence returns the stream sequence of the conversation's most recent event.
func (m *StreamManager) LastSequence(ctx context.Context, tenantID, conversationID string) (uint64, error) {
	stream, err := m.client.JetStream().Stream(ctx, StreamName)
	if err != nil {
		return 0, fmt.Errorf("failed to get stream: %w", err)
	}

	msg, err := stream.GetLastMsgForSubject(ctx, ConversationFilter(tenantID, conversationID))
	if errors.Is(err, jetstream.ErrMsgNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get last event: %w", err)
	}

	return msg.Sequence, nil
}

// Ping checks that the server and the events stream answer.
func (m *StreamManager) Ping(ctx context.Context) error {
	if err := m.client.Ping(ctx); err != nil {
		return err
	}
	if _, err := m.client.JetStream().Stream(ctx, StreamName); err != nil {
		return fmt.Errorf("events stream unavailable: %w", err)
	}
	return nil
}

var _ eventlog.Store = (*StreamManager)(nil)
