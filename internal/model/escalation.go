package model

import (
	"time"
)

// EscalationStatus is the derived completion state of a conversation's
// escalation.
type EscalationStatus string

const (
	EscalationStatusOpen     EscalationStatus = "open"
	EscalationStatusBlocked  EscalationStatus = "blocked"
	EscalationStatusComplete EscalationStatus = "complete"
)

// Requirements holds the raw result of the three completion gates.
type Requirements struct {
	EmailSent     bool `json:"email_sent" yaml:"email_sent"`
	QuoteHandled  bool `json:"quote_handled" yaml:"quote_handled"`
	FilesReviewed bool `json:"files_reviewed" yaml:"files_reviewed"`
}

// EscalationStatusResult is computed from a conversation's event log on
// demand. It is never persisted as a source of truth.
type EscalationStatusResult struct {
	Status        EscalationStatus `json:"status" yaml:"status"`
	Missing       []string         `json:"missing" yaml:"missing"`
	HasEscalation bool             `json:"has_escalation" yaml:"has_escalation"`
	Requirements  Requirements     `json:"requirements" yaml:"requirements"`
	Summary       string           `json:"summary" yaml:"summary"`
}

// EscalationStatusResponse is the API view of a conversation's status.
type EscalationStatusResponse struct {
	ConversationID string                 `json:"conversation_id"`
	LastSequence   uint64                 `json:"last_sequence"`
	Label          string                 `json:"label"`
	Color          string                 `json:"color"`
	Result         EscalationStatusResult `json:"result"`
}

// ListEscalationStatusesResponse is the response for batch status lookups.
type ListEscalationStatusesResponse struct {
	Statuses []EscalationStatusResponse `json:"statuses"`
}

// StreamErrorEvent is sent over SSE when the stream cannot continue.
type StreamErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatEvent keeps SSE connections alive.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
