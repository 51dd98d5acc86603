package app

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loki-oidc/loki-splice/pkg/attacktest"
	"github.com/loki-oidc/loki-splice/pkg/attacktest/catalogue"
	"github.com/loki-oidc/loki-splice/pkg/oauthclient"
	"github.com/loki-oidc/loki-splice/pkg/runner"
	"github.com/loki-oidc/loki-splice/pkg/spliceconfig"
)

var (
	runTestFilter string
	runVerbose    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the attack test catalogue against the configured target",
	RunE:  runCmdFunc,
}

func init() {
	runCmd.Flags().StringVar(&runTestFilter, "only", "", "comma-separated test ids to run; empty runs the full catalogue")
	runCmd.Flags().BoolVar(&runVerbose, "verbose", false, "retain redacted per-test logs in the report")
}

func runCmdFunc(cmd *cobra.Command, _ []string) error {
	f, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("open config %s: %w", configPath, err)
	}
	defer f.Close()

	cfg, err := spliceconfig.Load(f)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	tcx := &attacktest.Context{
		Clients: attacktest.Clients{
			Alice:  buildClient(cfg, "alice"),
			AgentA: buildClient(cfg, "agent-a"),
			AgentN: buildClient(cfg, "agent-n"),
		},
	}

	opts := runner.Options{
		BailOnBaselineFailure: true,
		Verbose:               runVerbose || cfg.Output.Verbose,
		OnTestStart: func(id string) {
			fmt.Fprintf(cmd.ErrOrStderr(), "running %s...\n", id)
		},
	}
	if runTestFilter != "" {
		allowed := map[string]bool{}
		for _, id := range splitCSV(runTestFilter) {
			allowed[id] = true
		}
		opts.TestFilter = func(id string) bool { return allowed[id] }
	}

	summary := runner.Run(cmd.Context(), catalogue.All(), tcx, opts)

	if cfg.Output.Format == "json" {
		if err := printJSON(cmd, summary); err != nil {
			return err
		}
	} else {
		printText(cmd, summary)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("splice-check: %d test(s) failed", summary.Failed)
	}
	return nil
}

func buildClient(cfg *spliceconfig.Config, name string) *oauthclient.Client {
	c := cfg.Clients[name]
	return oauthclient.New(oauthclient.Config{
		TokenEndpoint:      cfg.Target.TokenEndpoint,
		RevokeEndpoint:     cfg.Target.RevokeEndpoint,
		IntrospectEndpoint: cfg.Target.IntrospectEndpoint,
		ClientID:           c.ID,
		ClientSecret:       c.Secret,
		AuthMethod:         oauthclient.AuthMethod(cfg.Target.AuthMethod),
		Timeout:            cfg.Target.Timeout,
	})
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func printText(cmd *cobra.Command, summary runner.Summary) {
	out := cmd.OutOrStdout()
	for _, r := range summary.Results {
		fmt.Fprintf(out, "[%-7s] %-36s %-8s %s\n", r.Verdict.Status, r.Test, r.Duration.Round(time.Millisecond), r.Verdict.Reason)
		for _, line := range r.Logs {
			fmt.Fprintf(out, "    %s\n", line)
		}
	}
	fmt.Fprintf(out, "\n%d passed, %d failed, %d skipped (%d total) in %s\n",
		summary.Passed, summary.Failed, summary.Skipped, summary.Total, summary.Duration.Round(time.Millisecond))
}

func printJSON(cmd *cobra.Command, summary runner.Summary) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
