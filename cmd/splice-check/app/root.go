// Package app provides the entry point for the splice-check command-line
// application: loads a declarative target configuration, builds the three
// named OAuth test clients it describes, and runs the RFC 8693 attack test
// catalogue against the configured authorization server.
package app

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:               "splice-check",
	DisableAutoGenTag: true,
	Short:             "Scan an authorization server for RFC 8693 token-exchange conformance",
	Long: `splice-check drives a fixed catalogue of token-exchange attack tests against
a configured authorization server and reports which defenses hold.`,
}

// NewRootCmd creates a new root command for the splice-check CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "splice-check.toml", "path to the target configuration file")

	rootCmd.AddCommand(runCmd)

	return rootCmd
}
