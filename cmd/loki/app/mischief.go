package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loki-oidc/loki-splice/pkg/ledger/sqlite"
	"github.com/loki-oidc/loki-splice/pkg/mischief"
	"github.com/loki-oidc/loki-splice/pkg/plugins/catalogue"
	"github.com/loki-oidc/loki-splice/pkg/pluginregistry"
	"github.com/loki-oidc/loki-splice/pkg/session"
)

var mischiefRequestID string

var mischiefCmd = &cobra.Command{
	Use:   "mischief",
	Short: "Run the mischief engine against a sample discovery document",
}

var mischiefDiscoveryCmd = &cobra.Command{
	Use:   "discovery <session-id>",
	Short: "Apply a session's discovery-phase plugins to a sample document and print the result",
	Args:  cobra.ExactArgs(1),
	RunE:  mischiefDiscoveryCmdFunc,
}

func init() {
	mischiefDiscoveryCmd.Flags().StringVar(&mischiefRequestID, "request-id", "demo", "request id to attach to any recorded ledger entries")
	mischiefCmd.AddCommand(mischiefDiscoveryCmd)
}

func mischiefDiscoveryCmdFunc(cmd *cobra.Command, args []string) error {
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

	// Shuffled-mode queue state isn't persisted, so a reconstructed shuffled
	// session draws a fresh permutation; explicit and random modes are
	// unaffected.
	sess, err := session.New(rec.Name, session.Mode(rec.Mode), rec.Mischief, rec.Probability, rec.MischiefConfig, nil)
	if err != nil {
		return fmt.Errorf("replay session: %w", err)
	}

	reg := pluginregistry.New(nil)
	for _, d := range catalogue.All() {
		if err := reg.Register(d); err != nil {
			return fmt.Errorf("register %s: %w", d.ID, err)
		}
	}

	engine := mischief.New(reg, store)
	doc := map[string]any{
		"issuer":                 "https://loki.example.com",
		"authorization_endpoint": "https://loki.example.com/authorize",
		"token_endpoint":         "https://loki.example.com/token",
		"jwks_uri":               "https://loki.example.com/jwks.json",
	}

	if err := engine.ApplyToDiscovery(cmd.Context(), sess, mischiefRequestID, doc); err != nil {
		return fmt.Errorf("apply discovery plugins: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
