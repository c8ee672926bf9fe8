// Package cli implements the bifrost operator command line.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/bifrost/internal/logger"
)

// Execute runs the root command with os.Args.
func Execute() error {
	return newRootCmd().Execute()
}

// newRootCmd builds a fresh command tree so tests never share flag state.
func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:   "bifrost",
		Short: "Bifrost - experiment assignment and segmentation tooling",
		Long: `Bifrost assigns users to experiment variants with deterministic hashing.

This CLI works offline against feed files: it checks that feeds parse,
previews assignments and measures how a population spreads over a split.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(logger.NewCLI(logLevel))
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", getEnvOrDefault("BIFROST_APP_LOG_LEVEL", "warn"), "log level (debug, info, warn, error)")

	root.AddCommand(
		newDistributionCmd(),
		newAssignCmd(),
		newValidateCmd(),
	)
	return root
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
