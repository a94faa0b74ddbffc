package escalation

import (
	"github.com/wrapcommand/escalation-service/internal/model"
)

// Color tokens understood by the dashboard's badge component.
const (
	ColorMuted   = "muted"
	ColorWarning = "warning"
	ColorSuccess = "success"
)

var labels = map[model.EscalationStatus]string{
	model.EscalationStatusOpen:     "Open",
	model.EscalationStatusBlocked:  "Blocked",
	model.EscalationStatusComplete: "Complete",
}

var colors = map[model.EscalationStatus]string{
	model.EscalationStatusOpen:     ColorMuted,
	model.EscalationStatusBlocked:  ColorWarning,
	model.EscalationStatusComplete: ColorSuccess,
}

// Label returns the display label for a status.
func Label(status model.EscalationStatus) string {
	if l, ok := labels[status]; ok {
		return l
	}
	return "Unknown"
}

// ColorToken returns the badge color token for a status.
func ColorToken(status model.EscalationStatus) string {
	if c, ok := colors[status]; ok {
		return c
	}
	return ColorMuted
}
