// Package cli implements the escalationctl commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/wrapcommand/escalation-service/internal/escalation"
	"github.com/wrapcommand/escalation-service/internal/model"
)

// Output formats.
const (
	OutputText = "text"
	OutputJSON = "json"
)

var tokenColors = map[string]*color.Color{
	"success": color.New(color.FgGreen, color.Bold),
	"warning": color.New(color.FgYellow, color.Bold),
	"muted":   color.New(color.FgHiBlack, color.Bold),
}

func statusBadge(status model.EscalationStatus) string {
	c, ok := tokenColors[escalation.ColorToken(status)]
	if !ok {
		c = tokenColors["muted"]
	}
	return c.Sprint(strings.ToUpper(escalation.Label(status)))
}

func gate(ok bool) string {
	if ok {
		return color.New(color.FgGreen).Sprint("yes")
	}
	return color.New(color.FgRed).Sprint("no")
}

// renderResult prints an evaluation in the requested format. conversationID
// may be empty for offline evaluations.
func renderResult(w io.Writer, output, conversationID string, result model.EscalationStatusResult) error {
	switch output {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case OutputText, "":
	default:
		return fmt.Errorf("unknown output format %q (want text or json)", output)
	}

	if conversationID != "" {
		fmt.Fprintf(w, "Conversation: %s\n", conversationID)
	}
	fmt.Fprintf(w, "Status: %s  %s\n", statusBadge(result.Status), result.Summary)

	if !result.HasEscalation {
		return nil
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  email sent      %s\n", gate(result.Requirements.EmailSent))
	fmt.Fprintf(w, "  quote handled   %s\n", gate(result.Requirements.QuoteHandled))
	fmt.Fprintf(w, "  files reviewed  %s\n", gate(result.Requirements.FilesReviewed))

	if len(result.Missing) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Missing:")
		for _, m := range result.Missing {
			fmt.Fprintf(w, "  - %s\n", m)
		}
	}
	return nil
}
