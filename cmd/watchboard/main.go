// Package main is the entry point for the watchboard CLI.
//
// Watchboard can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	watchboard watch -c config.yaml    # Sync with the service and serve the mirror
//	watchboard validate -c config.yaml # Validate configuration
//	watchboard version                 # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "watchboard",
	Short: "A live mirror of a change-detection service",
	Long: `Watchboard keeps a local copy of a change-detection service's checks
and logs in sync, applying your actions and merging the service's push
notifications as they arrive.

Quick start:
  1. Create a config file (watchboard.yaml)
  2. Run: watchboard watch -c watchboard.yaml
  3. Open http://localhost:9090 in your browser

Example config:
  service_url: http://localhost:8080
  push:
    transport: websocket
    url: ws://localhost:8080/ws
  mirror:
    enabled: true
    port: 9090`,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this watchboard binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "watchboard %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}
