package app

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/loki-oidc/loki-splice/pkg/plugins"
	"github.com/loki-oidc/loki-splice/pkg/plugins/catalogue"
	"github.com/loki-oidc/loki-splice/pkg/pluginregistry"
)

var (
	pluginsPhase    string
	pluginsSeverity string
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Inspect the mandatory fault catalogue",
}

var pluginsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every plugin in the registry, optionally filtered",
	RunE:  pluginsListCmdFunc,
}

func init() {
	pluginsListCmd.Flags().StringVar(&pluginsPhase, "phase", "", "filter by phase (token-signing, token-claims, response, discovery)")
	pluginsListCmd.Flags().StringVar(&pluginsSeverity, "severity", "", "filter by severity (critical, high, medium, low)")
	pluginsCmd.AddCommand(pluginsListCmd)
}

func pluginsListCmdFunc(cmd *cobra.Command, _ []string) error {
	reg := pluginregistry.New(nil)
	for _, d := range catalogue.All() {
		if err := reg.Register(d); err != nil {
			return fmt.Errorf("register %s: %w", d.ID, err)
		}
	}

	var descs []plugins.Descriptor
	switch {
	case pluginsPhase != "":
		descs = reg.ListByPhase(plugins.Phase(pluginsPhase))
	case pluginsSeverity != "":
		descs = reg.ListBySeverity(plugins.Severity(pluginsSeverity))
	default:
		descs = reg.ListAll()
	}

	sort.Slice(descs, func(i, j int) bool { return descs[i].ID < descs[j].ID })
	for _, d := range descs {
		fmt.Fprintf(cmd.OutOrStdout(), "%-28s %-14s %-8s %s\n", d.ID, d.Phase, d.Severity, d.Description)
	}
	return nil
}
