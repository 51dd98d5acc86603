package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loki-oidc/loki-splice/pkg/ledger"
	"github.com/loki-oidc/loki-splice/pkg/ledger/sqlite"
	"github.com/loki-oidc/loki-splice/pkg/session"
)

var (
	sessionName         string
	sessionMode         string
	sessionMischief     string
	sessionProbability  float64
	sessionPluginConfig []string
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Create and inspect fault-injection sessions",
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a session and persist it to the ledger store",
	RunE:  sessionCreateCmdFunc,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every persisted session",
	RunE:  sessionListCmdFunc,
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session and cascade to its ledger entries",
	Args:  cobra.ExactArgs(1),
	RunE:  sessionDeleteCmdFunc,
}

func init() {
	sessionCreateCmd.Flags().StringVar(&sessionName, "name", "", "optional display name")
	sessionCreateCmd.Flags().StringVar(&sessionMode, "mode", string(session.ModeExplicit), "mischief-selection mode (explicit, random, shuffled)")
	sessionCreateCmd.Flags().StringVar(&sessionMischief, "mischief", "", "comma-separated plugin ids the session draws from")
	sessionCreateCmd.Flags().Float64Var(&sessionProbability, "probability", 1.0, "fire probability, consulted only in random mode")
	sessionCreateCmd.Flags().StringArrayVar(&sessionPluginConfig, "plugin-config", nil,
		"per-plugin config entry in pluginID:key=value form, repeatable")

	sessionCmd.AddCommand(sessionCreateCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)
}

func sessionCreateCmdFunc(cmd *cobra.Command, _ []string) error {
	store, err := sqlite.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	var mischief []string
	if sessionMischief != "" {
		mischief = strings.Split(sessionMischief, ",")
	}

	config, err := parsePluginConfig(sessionPluginConfig)
	if err != nil {
		return fmt.Errorf("parse plugin config: %w", err)
	}

	sess, err := session.New(sessionName, session.Mode(sessionMode), mischief, sessionProbability, config, nil)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	manager := session.NewManager(store)
	manager.Add(sess)

	if err := store.SaveSession(ledger.SessionRecord{
		ID:             sess.ID(),
		Name:           sess.Name(),
		Mode:           string(sess.Mode()),
		Mischief:       mischief,
		Probability:    sessionProbability,
		MischiefConfig: config,
		StartedAt:      sess.StartedAt(),
	}); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), sess.ID())
	return nil
}

func sessionListCmdFunc(cmd *cobra.Command, _ []string) error {
	store, err := sqlite.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	recs, err := store.LoadAllSessions()
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}

	for _, rec := range recs {
		status := "active"
		if rec.EndedAt != nil {
			status = "ended"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-40s %-10s %-10s %s\n", rec.ID, rec.Mode, status, rec.Name)
	}
	return nil
}

func sessionDeleteCmdFunc(cmd *cobra.Command, args []string) error {
	store, err := sqlite.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	if err := store.DeleteSession(args[0]); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
	return nil
}

// parsePluginConfig parses repeated "pluginID:key=value" entries into the
// per-plugin configuration map session.New expects.
func parsePluginConfig(entries []string) (map[string]map[string]any, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	out := make(map[string]map[string]any)
	for _, entry := range entries {
		id, kv, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("malformed --plugin-config entry %q, want pluginID:key=value", entry)
		}
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("malformed --plugin-config entry %q, want pluginID:key=value", entry)
		}
		if out[id] == nil {
			out[id] = map[string]any{}
		}
		out[id][key] = value
	}
	return out, nil
}
