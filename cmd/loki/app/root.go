// Package app provides the entry point for the loki command-line
// application: a thin operator surface over the fault-injection core
// (plugin registry, session model, mischief engine, ledger store). The
// embedded HTTP server and admin REST surface that would front this core
// in a full deployment are out of scope here; this binary only wires and
// exercises the pieces spec.md places in bounds.
package app

import (
	"github.com/spf13/cobra"
)

var dbPath string

var rootCmd = &cobra.Command{
	Use:               "loki",
	DisableAutoGenTag: true,
	Short:             "Operate a Loki fault-injection core against its ledger store",
	Long: `loki wires together the plugin registry, session model, mischief engine,
and ledger store that make up the fault-injecting OIDC identity provider's
core. It is an operator CLI for inspecting the mandatory fault catalogue,
managing sessions, and reading back a session's ledger document; it does
not itself serve OIDC/OAuth HTTP traffic.`,
}

// NewRootCmd creates a new root command for the loki CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "loki.db", "path to the ledger's sqlite database")

	rootCmd.AddCommand(pluginsCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(mischiefCmd)
	rootCmd.AddCommand(ledgerCmd)

	return rootCmd
}
