package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wrapcommand/escalation-service/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "escalationctl",
		Short: "Inspect WrapCommand escalation statuses",
		Long: `escalationctl evaluates escalation completion status for a conversation,
either offline from an event list or by asking a running escalation service.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cli.EvaluateCmd())
	rootCmd.AddCommand(cli.StatusCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
