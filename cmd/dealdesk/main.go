// Package main provides the CLI entry point for the dealdesk assistant
// service.
//
// Dealdesk embeds an LLM tool-calling assistant into a consulting workflow
// application: project estimates, work breakdown structures, quotes, and
// client agreements.
//
// # Basic Usage
//
// Start the server:
//
//	dealdesk serve --config dealdesk.yaml
//
// List the tool catalog:
//
//	dealdesk tools
//
// # Environment Variables
//
//   - DEALDESK_API_KEY (or OPENAI_API_KEY): provider API key
//   - DEALDESK_BASE_URL: provider base URL
//   - DEALDESK_MODEL: model name
//   - DEALDESK_ADDR: HTTP listen address
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dealdesk",
		Short: "Dealdesk - LLM assistant for consulting workflows",
		Long: `Dealdesk runs the tool-calling assistant behind a consulting workflow app.

Workflows: estimates (projects, WBS, quotes) and contracts (agreements).
The assistant calls domain tools under workflow, stage, and rate guardrails.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildToolsCmd(),
	)
	return rootCmd
}
