// Package escalation derives the completion status of a conversation's
// escalation from its event log.
//
// Status is never stored. It is recomputed from the full list of events on
// every call, so it reflects exactly which facts have been recorded and
// nothing else. Only the presence of event types (and the design subtype on
// escalations) matters; order, timestamps, actors and payloads do not.
package escalation

import (
	"strings"

	"github.com/wrapcommand/escalation-service/internal/model"
)

// Requirement gap descriptions, emitted in this order.
const (
	MissingEmail = "Email not sent"
	MissingQuote = "Quote not attached or dismissed"
	MissingFiles = "File not reviewed"
)

const (
	summaryNoEscalation  = "No escalation sent"
	summaryComplete      = "All requirements met - ready to close"
	summaryMarkedDone    = "Marked complete"
	summaryBlockedPrefix = "Blocked: "
)

var (
	emailEvents = []model.EventType{
		model.EventTypeEmailSent,
		model.EventTypeAIResponseSent,
	}
	quoteEvents = []model.EventType{
		model.EventTypeQuoteAttached,
		model.EventTypeQuoteDrafted,
		model.EventTypeMarkedNoQuoteRequired,
	}
	fileEvents = []model.EventType{
		model.EventTypeAssetUploaded,
		model.EventTypeAssetReviewRequired,
	}
)

// facts is the order-free projection of an event list that the gates read.
type facts struct {
	types            map[model.EventType]struct{}
	designEscalation bool
}

func project(events []model.ConversationEvent) facts {
	f := facts{types: make(map[model.EventType]struct{}, len(events))}
	for i := range events {
		e := &events[i]
		f.types[e.Type] = struct{}{}
		if e.Type == model.EventTypeEscalationSent && e.Subtype == model.SubtypeDesign {
			f.designEscalation = true
		}
	}
	return f
}

func (f facts) has(t model.EventType) bool {
	_, ok := f.types[t]
	return ok
}

func (f facts) hasAny(types []model.EventType) bool {
	for _, t := range types {
		if f.has(t) {
			return true
		}
	}
	return false
}

// Evaluate derives the escalation status for one conversation. events must
// be every event recorded for that conversation, in any order. A nil or
// empty list is valid and yields an open result. Unrecognised event types
// are ignored. The input is not modified.
//
// When a marked_complete event is present the status is complete, but
// Requirements still carries the raw gate results, so the two can disagree.
func Evaluate(events []model.ConversationEvent) model.EscalationStatusResult {
	f := project(events)

	if !f.has(model.EventTypeEscalationSent) {
		return model.EscalationStatusResult{
			Status:  model.EscalationStatusOpen,
			Missing: []string{},
			Summary: summaryNoEscalation,
		}
	}

	req := model.Requirements{
		EmailSent:     f.hasAny(emailEvents),
		QuoteHandled:  f.hasAny(quoteEvents),
		FilesReviewed: true,
	}
	// Routing to the design queue counts as file review intake.
	if f.hasAny(fileEvents) {
		req.FilesReviewed = f.has(model.EventTypeAssetReviewed) || f.designEscalation
	}

	result := model.EscalationStatusResult{
		HasEscalation: true,
		Requirements:  req,
		Missing:       []string{},
	}

	if f.has(model.EventTypeMarkedComplete) {
		result.Status = model.EscalationStatusComplete
		result.Summary = summaryMarkedDone
		return result
	}

	if !req.EmailSent {
		result.Missing = append(result.Missing, MissingEmail)
	}
	if !req.QuoteHandled {
		result.Missing = append(result.Missing, MissingQuote)
	}
	if !req.FilesReviewed {
		result.Missing = append(result.Missing, MissingFiles)
	}

	if len(result.Missing) == 0 {
		result.Status = model.EscalationStatusComplete
		result.Summary = summaryComplete
		return result
	}

	result.Status = model.EscalationStatusBlocked
	result.Summary = summaryBlockedPrefix + strings.Join(result.Missing, ", ")
	return result
}
