package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/wrapcommand/escalation-service/internal/model"
)

// ErrValidation marks a request rejected before reaching the store.
var ErrValidation = errors.New("validation failed")

const (
	maxEventTypeLen = 64
	maxActorLen     = 128
	maxPayloadBytes = 64 << 10
)

var tagPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ValidateAppendRequest checks an append request.
func ValidateAppendRequest(req *model.AppendEventRequest) error {
	if req == nil {
		return invalid("request body is required")
	}

	typ := string(req.Type)
	if typ == "" {
		return invalid("event_type is required")
	}
	if len(typ) > maxEventTypeLen || !tagPattern.MatchString(typ) {
		return invalid("event_type must be 1-%d characters of [a-z0-9_]", maxEventTypeLen)
	}

	if req.Subtype != "" && (len(req.Subtype) > maxEventTypeLen || !tagPattern.MatchString(req.Subtype)) {
		return invalid("subtype must be at most %d characters of [a-z0-9_]", maxEventTypeLen)
	}

	if req.Actor == "" {
		return invalid("actor is required")
	}
	if len(req.Actor) > maxActorLen {
		return invalid("actor exceeds %d characters", maxActorLen)
	}
	if !utf8.ValidString(req.Actor) {
		return invalid("actor must be valid UTF-8")
	}

	if req.Payload != nil {
		data, err := json.Marshal(req.Payload)
		if err != nil {
			return invalid("payload is not encodable: %v", err)
		}
		if len(data) > maxPayloadBytes {
			return invalid("payload exceeds %d bytes", maxPayloadBytes)
		}
	}

	return nil
}
