package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wrapcommand/escalation-service/internal/escalation"
	"github.com/wrapcommand/escalation-service/internal/model"
)

// Input formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// EvaluateCmd returns the evaluate command
func EvaluateCmd() *cobra.Command {
	var (
		file   string
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate an escalation from an event list",
		Long: `Read a conversation's events as a JSON or YAML array and print the
escalation status derived from them. Nothing is sent to a server.

Reads stdin when --file is omitted or "-".`,
		Example: `  escalationctl evaluate -f events.yaml
  cat events.json | escalationctl evaluate -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("failed to open events file: %w", err)
				}
				defer f.Close()
				in = f

				if format == "" {
					format = formatFromPath(file)
				}
			}

			events, err := decodeEvents(in, format)
			if err != nil {
				return err
			}

			return renderResult(cmd.OutOrStdout(), output, "", escalation.Evaluate(events))
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Events file (default stdin)")
	cmd.Flags().StringVar(&format, "format", "", "Input format: json or yaml (default from file extension, else json)")
	cmd.Flags().StringVarP(&output, "output", "o", OutputText, "Output format: text or json")

	return cmd
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

func decodeEvents(r io.Reader, format string) ([]model.ConversationEvent, error) {
	var events []model.ConversationEvent

	switch format {
	case FormatJSON, "":
		if err := json.NewDecoder(r).Decode(&events); err != nil {
			return nil, fmt.Errorf("failed to decode JSON events: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&events); err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to decode YAML events: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown input format %q (want json or yaml)", format)
	}

	return events, nil
}
