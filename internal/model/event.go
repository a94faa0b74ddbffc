// Package model defines data structures for the escalation service.
package model

import (
	"time"
)

// EventType tags a conversation event. The set is open-ended: producers may
// introduce new types at any time and consumers must ignore the ones they
// do not recognise.
type EventType string

const (
	EventTypeEscalationSent        EventType = "escalation_sent"
	EventTypeEmailSent             EventType = "email_sent"
	EventTypeAIResponseSent        EventType = "ai_response_sent"
	EventTypeQuoteAttached         EventType = "quote_attached"
	EventTypeQuoteDrafted          EventType = "quote_drafted"
	EventTypeMarkedNoQuoteRequired EventType = "marked_no_quote_required"
	EventTypeAssetUploaded         EventType = "asset_uploaded"
	EventTypeAssetReviewRequired   EventType = "asset_review_required"
	EventTypeAssetReviewed         EventType = "asset_reviewed"
	EventTypeMarkedComplete        EventType = "marked_complete"
)

// SubtypeDesign qualifies an escalation routed to the design queue.
const SubtypeDesign = "design"

// Known actor kinds. Actor is free-form; these are the values the
// dashboard and automations emit today.
const (
	ActorAgent  = "agent"
	ActorAI     = "ai"
	ActorSystem = "system"
)

// ConversationEvent is an immutable fact recorded against a conversation.
// Events are appended once and never updated or deleted.
type ConversationEvent struct {
	ID             string         `json:"id" yaml:"id"`
	ConversationID string         `json:"conversation_id" yaml:"conversation_id"`
	TenantID       string         `json:"tenant_id" yaml:"tenant_id"`
	Type           EventType      `json:"event_type" yaml:"event_type"`
	Subtype        string         `json:"subtype,omitempty" yaml:"subtype,omitempty"`
	Actor          string         `json:"actor" yaml:"actor"`
	Payload        map[string]any `json:"payload,omitempty" yaml:"payload,omitempty"`
	CreatedAt      time.Time      `json:"created_at" yaml:"created_at"`

	// Sequence is assigned by the event store on append. It increases
	// strictly within a conversation but may have gaps.
	Sequence uint64 `json:"sequence,omitempty" yaml:"sequence,omitempty"`
}

// AppendEventRequest is the request to record a new event.
type AppendEventRequest struct {
	Type      EventType      `json:"event_type"`
	Subtype   string         `json:"subtype,omitempty"`
	Actor     string         `json:"actor"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt *time.Time     `json:"created_at,omitempty"`
}

// ListEventsResponse is the response for listing events.
type ListEventsResponse struct {
	Events       []ConversationEvent `json:"events"`
	HasMore      bool                `json:"has_more"`
	LastSequence uint64              `json:"last_sequence"`
}
