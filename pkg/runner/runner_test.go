package runner_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loki-oidc/loki-splice/pkg/attacktest"
	"github.com/loki-oidc/loki-splice/pkg/runner"
)

func passingTest(id string) attacktest.Test {
	return attacktest.Test{
		ID:       id,
		Severity: attacktest.SeverityMedium,
		Setup: func(context.Context, *attacktest.Context) (*attacktest.SetupResult, error) {
			return attacktest.NewSetupResult(nil), nil
		},
		Attack: func(context.Context, *attacktest.Context, *attacktest.SetupResult) (*attacktest.AttackResponse, error) {
			return nil, nil
		},
		Verify: func(*attacktest.Context, *attacktest.SetupResult, *attacktest.AttackResponse) attacktest.Verdict {
			return attacktest.Passed("ok")
		},
	}
}

func failingTest(id string) attacktest.Test {
	t := passingTest(id)
	t.Verify = func(*attacktest.Context, *attacktest.SetupResult, *attacktest.AttackResponse) attacktest.Verdict {
		return attacktest.Failed("nope")
	}
	return t
}

func setupErrorTest(id string) attacktest.Test {
	t := passingTest(id)
	t.Setup = func(context.Context, *attacktest.Context) (*attacktest.SetupResult, error) {
		return nil, errors.New("boom")
	}
	return t
}

func attackErrorTest(id string) attacktest.Test {
	t := passingTest(id)
	t.Attack = func(context.Context, *attacktest.Context, *attacktest.SetupResult) (*attacktest.AttackResponse, error) {
		return nil, errors.New("network exploded")
	}
	return t
}

func loggingTest(id, secretToken string) attacktest.Test {
	return attacktest.Test{
		ID:       id,
		Severity: attacktest.SeverityLow,
		Setup: func(_ context.Context, tc *attacktest.Context) (*attacktest.SetupResult, error) {
			tc.Logf("obtained token %s", secretToken)
			return attacktest.NewSetupResult(secretToken), nil
		},
		Attack: func(context.Context, *attacktest.Context, *attacktest.SetupResult) (*attacktest.AttackResponse, error) {
			return nil, nil
		},
		Verify: func(*attacktest.Context, *attacktest.SetupResult, *attacktest.AttackResponse) attacktest.Verdict {
			return attacktest.Passed("ok")
		},
	}
}

func TestRun_AggregatesSummary(t *testing.T) {
	t.Parallel()
	tests := []attacktest.Test{passingTest("a"), failingTest("b"), passingTest("c")}
	summary := runner.Run(context.Background(), tests, &attacktest.Context{}, runner.Options{})

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Passed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Skipped)
}

func TestRun_BailOnBaselineFailureSkipsRest(t *testing.T) {
	t.Parallel()
	tests := []attacktest.Test{failingTest("valid-delegation"), passingTest("x"), passingTest("y")}
	summary := runner.Run(context.Background(), tests, &attacktest.Context{}, runner.Options{BailOnBaselineFailure: true})

	require.Len(t, summary.Results, 3)
	assert.Equal(t, attacktest.StatusFailed, summary.Results[0].Verdict.Status)
	assert.Equal(t, attacktest.StatusSkipped, summary.Results[1].Verdict.Status)
	assert.Equal(t, "baseline failed", summary.Results[1].Verdict.Reason)
	assert.Equal(t, attacktest.StatusSkipped, summary.Results[2].Verdict.Status)
}

func TestRun_SetupErrorSkipsWithPrefixedReason(t *testing.T) {
	t.Parallel()
	summary := runner.Run(context.Background(), []attacktest.Test{setupErrorTest("x")}, &attacktest.Context{}, runner.Options{})
	require.Len(t, summary.Results, 1)
	assert.Equal(t, attacktest.StatusSkipped, summary.Results[0].Verdict.Status)
	assert.Equal(t, "Setup failed: boom", summary.Results[0].Verdict.Reason)
}

func TestRun_AttackErrorFailsWithPrefixedReason(t *testing.T) {
	t.Parallel()
	summary := runner.Run(context.Background(), []attacktest.Test{attackErrorTest("x")}, &attacktest.Context{}, runner.Options{})
	require.Len(t, summary.Results, 1)
	assert.Equal(t, attacktest.StatusFailed, summary.Results[0].Verdict.Status)
	assert.Equal(t, "Unexpected error: network exploded", summary.Results[0].Verdict.Reason)
}

func TestRun_TestFilterExcludesTests(t *testing.T) {
	t.Parallel()
	tests := []attacktest.Test{passingTest("a"), passingTest("b"), passingTest("c")}
	summary := runner.Run(context.Background(), tests, &attacktest.Context{}, runner.Options{
		TestFilter: func(id string) bool { return id != "b" },
	})
	require.Len(t, summary.Results, 2)
	assert.Equal(t, "a", summary.Results[0].Test)
	assert.Equal(t, "c", summary.Results[1].Test)
}

func TestRun_VerboseRetainsRedactedLogs(t *testing.T) {
	t.Parallel()
	secret := "sk-super-secret-token-value"
	summary := runner.Run(context.Background(), []attacktest.Test{loggingTest("x", secret)}, &attacktest.Context{}, runner.Options{Verbose: true})

	require.Len(t, summary.Results, 1)
	require.Len(t, summary.Results[0].Logs, 1)
	assert.Contains(t, summary.Results[0].Logs[0], "[REDACTED:subject_token]")
	assert.NotContains(t, summary.Results[0].Logs[0], secret)
}

func TestRun_NonVerboseDropsLogs(t *testing.T) {
	t.Parallel()
	summary := runner.Run(context.Background(), []attacktest.Test{loggingTest("x", "irrelevant-secret-value")}, &attacktest.Context{}, runner.Options{Verbose: false})
	require.Len(t, summary.Results, 1)
	assert.Empty(t, summary.Results[0].Logs)
}

func TestRun_CallbacksInvokedPerTest(t *testing.T) {
	t.Parallel()
	var started, completed []string
	tests := []attacktest.Test{passingTest("a"), passingTest("b")}
	runner.Run(context.Background(), tests, &attacktest.Context{}, runner.Options{
		OnTestStart:    func(id string) { started = append(started, id) },
		OnTestComplete: func(id string, _ runner.Result) { completed = append(completed, id) },
	})
	assert.Equal(t, []string{"a", "b"}, started)
	assert.Equal(t, []string{"a", "b"}, completed)
}
