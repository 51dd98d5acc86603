// Package runner implements the Test Runner: it drives the Attack Test
// Catalogue against a target, in order, honouring a baseline-failure bail
// option, per-test callbacks, and redacted verbose logging.
package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/loki-oidc/loki-splice/pkg/attacktest"
)

// Result is one test's recorded outcome.
type Result struct {
	Test     string
	Severity attacktest.Severity
	Verdict  attacktest.Verdict
	Duration time.Duration
	Logs     []string // retained only when Options.Verbose
}

// Summary aggregates a run's results.
type Summary struct {
	Passed   int
	Failed   int
	Skipped  int
	Total    int
	Duration time.Duration
	Results  []Result
}

// Options configures a single run.
type Options struct {
	// TestFilter, if set, is invoked per test; a false return excludes it.
	TestFilter func(id string) bool

	// Verbose retains per-test log lines (redacted) in the result.
	Verbose bool

	// BailOnBaselineFailure skips every subsequent test once the baseline
	// (the catalogue's first entry) fails.
	BailOnBaselineFailure bool

	OnTestStart    func(id string)
	OnTestComplete func(id string, result Result)
}

// knownTokenMinLength is the shortest token value the log redactor will
// replace; shorter strings are too likely to be ordinary words.
const knownTokenMinLength = 8

// Run executes tests in order against tcx, applying opts.
func Run(ctx context.Context, tests []attacktest.Test, tcx *attacktest.Context, opts Options) Summary {
	start := time.Now()
	summary := Summary{Results: make([]Result, 0, len(tests))}

	baselineFailed := false
	for i, test := range tests {
		if opts.TestFilter != nil && !opts.TestFilter(test.ID) {
			continue
		}

		if opts.OnTestStart != nil {
			opts.OnTestStart(test.ID)
		}

		var logs []string
		knownTokens := map[string]string{}
		scopedCtx := &attacktest.Context{
			Clients: tcx.Clients,
			Log: func(line string) {
				logs = append(logs, line)
			},
		}

		testStart := time.Now()
		var verdict attacktest.Verdict
		switch {
		case opts.BailOnBaselineFailure && baselineFailed:
			verdict = attacktest.Skipped("baseline failed")
		default:
			verdict = runOne(ctx, test, scopedCtx, knownTokens)
		}
		duration := time.Since(testStart)

		if i == 0 && verdict.Status == attacktest.StatusFailed {
			baselineFailed = true
		}

		result := Result{
			Test:     test.ID,
			Severity: test.Severity,
			Verdict:  verdict,
			Duration: duration,
		}
		if opts.Verbose {
			result.Logs = redactAll(logs, knownTokens)
		}

		summary.Results = append(summary.Results, result)
		tally(&summary, verdict.Status)

		if opts.OnTestComplete != nil {
			opts.OnTestComplete(test.ID, result)
		}
	}

	summary.Total = len(summary.Results)
	summary.Duration = time.Since(start)
	return summary
}

// runOne executes one test's setup/attack/verify sequence, turning returned
// errors into verdicts per spec.md §4.K's step 2/3 distinction: a setup
// error skips, an attack error fails. A panic inside a test is not recovered.
func runOne(ctx context.Context, test attacktest.Test, tcx *attacktest.Context, knownTokens map[string]string) attacktest.Verdict {
	setup, err := test.Setup(ctx, tcx)
	if err != nil {
		return attacktest.Skipped("Setup failed: " + err.Error())
	}
	collectTokens(setup, knownTokens)

	resp, err := test.Attack(ctx, tcx, setup)
	if err != nil {
		return attacktest.Failed("Unexpected error: " + err.Error())
	}
	if resp != nil && resp.Response != nil {
		if tok := resp.Field("access_token"); tok != "" {
			knownTokens["access_token"] = tok
		}
	}

	return test.Verify(tcx, setup, resp)
}

func collectTokens(setup *attacktest.SetupResult, known map[string]string) {
	if setup == nil {
		return
	}
	if tok, ok := setup.Opaque.(string); ok {
		known["subject_token"] = tok
	}
	if pair, ok := setup.Opaque.([2]string); ok {
		known["subject_token"] = pair[0]
		known["actor_token"] = pair[1]
	}
}

func tally(s *Summary, status attacktest.Status) {
	switch status {
	case attacktest.StatusPassed:
		s.Passed++
	case attacktest.StatusFailed:
		s.Failed++
	case attacktest.StatusSkipped:
		s.Skipped++
	}
}

// redactAll replaces every known token value of at least knownTokenMinLength
// characters with "[REDACTED:<name>]" in every log line.
func redactAll(lines []string, known map[string]string) []string {
	if len(lines) == 0 {
		return nil
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = redactLine(line, known)
	}
	return out
}

func redactLine(line string, known map[string]string) string {
	for name, value := range known {
		if len(value) < knownTokenMinLength {
			continue
		}
		line = strings.ReplaceAll(line, value, fmt.Sprintf("[REDACTED:%s]", name))
	}
	return line
}
