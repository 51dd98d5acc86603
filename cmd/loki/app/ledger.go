package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loki-oidc/loki-splice/pkg/ledger"
	"github.com/loki-oidc/loki-splice/pkg/ledger/sqlite"
)

// engineVersion stamps every Ledger Document this binary assembles.
const engineVersion = "loki-splice/0.1.0"

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Read back a session's ledger document",
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print the assembled Ledger Document for a session, as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  ledgerShowCmdFunc,
}

func init() {
	ledgerCmd.AddCommand(ledgerShowCmd)
}

func ledgerShowCmdFunc(cmd *cobra.Command, args []string) error {
	store, err := sqlite.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	id := args[0]
	rec, err := store.LoadSession(id)
	if err != nil {
		return fmt.Errorf("load session %s: %w", id, err)
	}
	entries, err := store.LoadEntries(id)
	if err != nil {
		return fmt.Errorf("load entries for %s: %w", id, err)
	}

	doc := ledger.BuildDocument(rec, entries, engineVersion)
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
