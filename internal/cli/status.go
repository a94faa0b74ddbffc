package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wrapcommand/escalation-service/internal/model"
)

// StatusCmd returns the status command
func StatusCmd() *cobra.Command {
	var (
		server  string
		token   string
		output  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status [conversation-id]",
		Short: "Fetch a conversation's escalation status from the API",
		Long: `Ask a running escalation service for a conversation's status.

--server and --token default to $ESCALATION_SERVER and $ESCALATION_TOKEN.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				return fmt.Errorf("a bearer token is required (--token or ESCALATION_TOKEN)")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			resp, err := fetchStatus(ctx, server, token, args[0])
			if err != nil {
				return err
			}

			if output == OutputJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			return renderResult(cmd.OutOrStdout(), output, resp.ConversationID, resp.Result)
		},
	}

	cmd.Flags().StringVar(&server, "server", envOr("ESCALATION_SERVER", "http://localhost:8080"), "API base URL")
	cmd.Flags().StringVar(&token, "token", os.Getenv("ESCALATION_TOKEN"), "Bearer token")
	cmd.Flags().StringVarP(&output, "output", "o", OutputText, "Output format: text or json")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	return cmd
}

func fetchStatus(ctx context.Context, server, token, conversationID string) (*model.EscalationStatusResponse, error) {
	endpoint := strings.TrimRight(server, "/") + "/api/v1/conversations/" + url.PathEscape(conversationID) + "/escalation"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var status model.EscalationStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &status, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
