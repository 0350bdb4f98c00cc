package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/watchboard/config"
)

// validateCmd validates a config file without contacting the service.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a Watchboard configuration file without contacting the service.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  watchboard validate -c config.yaml
  watchboard validate --config /etc/watchboard/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	push := cfg.Push.Transport
	switch cfg.Push.Transport {
	case config.TransportWebSocket:
		push += " " + cfg.Push.URL
	case config.TransportNATS:
		push += fmt.Sprintf(" %s (subject %s)", cfg.Push.URL, cfg.Push.Subject)
	}

	mirror := "disabled"
	if cfg.Mirror.Enabled {
		mirror = fmt.Sprintf("port %d", cfg.Mirror.Port)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Service:         %s\n", cfg.ServiceURL)
	fmt.Fprintf(out, "  Request timeout: %s\n", cfg.RequestTimeout.Duration())
	fmt.Fprintf(out, "  Concurrency:     %d\n", cfg.MaxConcurrency)
	fmt.Fprintf(out, "  Push:            %s\n", push)
	fmt.Fprintf(out, "  Mirror:          %s\n", mirror)

	return nil
}
