package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/dealdesk/internal/config"
	"github.com/haasonsaas/dealdesk/internal/domain"
	"github.com/haasonsaas/dealdesk/internal/tools"
)

// buildServeCmd creates the "serve" command that starts the HTTP server.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dealdesk assistant server",
		Long: `Start the HTTP server for the assistant.

Endpoints:
  POST /v1/assist   run one assistant request
  GET  /healthz     liveness check
  GET  /metrics     Prometheus metrics

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  # Start with environment configuration only
  dealdesk serve

  # Start with a config file
  dealdesk serve --config /etc/dealdesk/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if debug {
				cfg.Log.Level = "debug"
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

// buildToolsCmd creates the "tools" command that prints the catalog.
func buildToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the tool catalog with provider-safe names",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := tools.BuildCatalog(domain.NewMemoryService())
			if err != nil {
				return fmt.Errorf("build catalog: %w", err)
			}
			w := cmd.OutOrStdout()
			for _, name := range reg.Names() {
				def, _ := reg.Get(name)
				flags := ""
				if def.Mutating {
					flags += " [mutating]"
				}
				if def.MinStage != "" {
					flags += fmt.Sprintf(" [stage>=%s]", def.MinStage)
				}
				fmt.Fprintf(w, "%-38s %-40s%s\n", def.Name, def.SafeName, flags)
				fmt.Fprintf(w, "    %s\n", def.Description)
			}
			return nil
		},
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("DEALDESK_CONFIG"); env != "" {
			path = env
		}
	}
	if path == "" {
		return config.FromEnv(), nil
	}
	return config.Load(path)
}
