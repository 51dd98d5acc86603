package catalogue

import (
	"context"
	"fmt"

	"github.com/loki-oidc/loki-splice/pkg/attacktest"
)

// delegationImpersonationConfusion presents agent-a's own token as both
// subject-token and actor-token: a client attempting to "delegate to
// itself" to see whether the target conflates impersonation and delegation.
var delegationImpersonationConfusion = attacktest.Test{
	ID:          "delegation-impersonation-confusion",
	Severity:    attacktest.SeverityHigh,
	Description: "a single client's token presented as both subject and actor",
	Spec:        "RFC 8693 §1.1: delegation and impersonation are distinct acts and must not be conflated when subject and actor coincide",
	Setup: func(ctx context.Context, tc *attacktest.Context) (*attacktest.SetupResult, error) {
		agentA, err := clientCredentialsToken(ctx, tc.Clients.AgentA)
		if err != nil {
			return nil, err
		}
		return attacktest.NewSetupResult(agentA), nil
	},
	Attack: func(ctx context.Context, tc *attacktest.Context, setup *attacktest.SetupResult) (*attacktest.AttackResponse, error) {
		token := setup.Opaque.(string)
		resp, err := exchange(ctx, tc.Clients.AgentA, token, token)
		if err != nil {
			return nil, err
		}
		return attacktest.NewAttackResponse(resp), nil
	},
	Verify: func(_ *attacktest.Context, _ *attacktest.SetupResult, resp *attacktest.AttackResponse) attacktest.Verdict {
		if resp.IsInconclusive() {
			return attacktest.Skipped(resp.Describe())
		}
		if resp.IsSecurityRejection() {
			return attacktest.Passed(resp.Describe())
		}
		if resp.IsSuccess() {
			claims, ok := decodeClaims(resp.Field("access_token"))
			if !ok {
				return attacktest.Skipped("result token is opaque")
			}
			act, hasAct := claims["act"].(map[string]any)
			if hasAct && stringClaim(act, "sub") == stringClaim(claims, "sub") {
				return attacktest.Failed("result token's act.sub equals its own sub: self-delegation went unchecked")
			}
			return attacktest.Passed("self-delegation did not conflate subject and actor identity")
		}
		return attacktest.Failed("unexpected outcome: " + resp.Describe())
	},
}

// circularDelegation attempts to close a delegation loop: alice's token is
// first delegated to agent-a, then agent-a re-presents that delegated token
// as subject with its own token as actor once more.
var circularDelegation = attacktest.Test{
	ID:          "circular-delegation",
	Severity:    attacktest.SeverityHigh,
	Description: "a delegation chain that attempts to loop back to its own origin",
	Spec:        "RFC 8693 §4.1: the act claim chain must not be permitted to loop back to its own origin",
	Setup: func(ctx context.Context, tc *attacktest.Context) (*attacktest.SetupResult, error) {
		alice, err := clientCredentialsToken(ctx, tc.Clients.Alice)
		if err != nil {
			return nil, err
		}
		agentA, err := clientCredentialsToken(ctx, tc.Clients.AgentA)
		if err != nil {
			return nil, err
		}
		firstHop, err := exchange(ctx, tc.Clients.AgentA, alice, agentA)
		if err != nil {
			return nil, err
		}
		delegated, err := accessToken(firstHop)
		if err != nil {
			result := attacktest.NewSetupResult(nil)
			result.Set("first_hop_failed", true)
			return result, nil
		}
		return attacktest.NewSetupResult([2]string{delegated, agentA}), nil
	},
	Attack: func(ctx context.Context, tc *attacktest.Context, setup *attacktest.SetupResult) (*attacktest.AttackResponse, error) {
		if setup.Bool("first_hop_failed") {
			return nil, nil
		}
		tokens := setup.Opaque.([2]string)
		// agent-a re-presents the chain's own delegated token as subject,
		// with itself as actor again: a loop back to the chain's origin.
		resp, err := exchange(ctx, tc.Clients.AgentA, tokens[0], tokens[1])
		if err != nil {
			return nil, err
		}
		return attacktest.NewAttackResponse(resp), nil
	},
	Verify: func(_ *attacktest.Context, setup *attacktest.SetupResult, resp *attacktest.AttackResponse) attacktest.Verdict {
		if setup.Bool("first_hop_failed") {
			return attacktest.Skipped("first-hop delegation failed, nothing to loop")
		}
		return attacktest.ExpectRejection(resp)
	},
}

// chainDepthExhaustion repeatedly re-delegates the same chain to see
// whether the target enforces a maximum delegation depth.
var chainDepthExhaustion = attacktest.Test{
	ID:          "chain-depth-exhaustion",
	Severity:    attacktest.SeverityMedium,
	Description: "repeated re-delegation probes for an unenforced maximum chain depth",
	Spec:        "RFC 8693 §4.1: an act claim delegation chain must be bounded to a finite, enforced depth",
	Setup: func(ctx context.Context, tc *attacktest.Context) (*attacktest.SetupResult, error) {
		alice, err := clientCredentialsToken(ctx, tc.Clients.Alice)
		if err != nil {
			return nil, err
		}
		agentA, err := clientCredentialsToken(ctx, tc.Clients.AgentA)
		if err != nil {
			return nil, err
		}
		return attacktest.NewSetupResult([2]string{alice, agentA}), nil
	},
	Attack: func(ctx context.Context, tc *attacktest.Context, setup *attacktest.SetupResult) (*attacktest.AttackResponse, error) {
		const maxHops = 10
		tokens := setup.Opaque.([2]string)
		subject, actor := tokens[0], tokens[1]

		var last *attacktest.AttackResponse
		for hop := 0; hop < maxHops; hop++ {
			resp, err := exchange(ctx, tc.Clients.AgentA, subject, actor)
			if err != nil {
				return nil, err
			}
			last = attacktest.NewAttackResponse(resp)
			if !last.IsSuccess() {
				tc.Logf("chain-depth-exhaustion: hop %d stopped with %s", hop, last.Describe())
				return last, nil
			}
			tok, err := accessToken(resp)
			if err != nil {
				return last, nil
			}
			subject = tok
		}
		tc.Logf("chain-depth-exhaustion: reached %d hops without rejection", maxHops)
		return last, nil
	},
	Verify: func(_ *attacktest.Context, _ *attacktest.SetupResult, resp *attacktest.AttackResponse) attacktest.Verdict {
		if resp.IsInconclusive() {
			return attacktest.Skipped(resp.Describe())
		}
		if resp.IsSecurityRejection() {
			return attacktest.Passed(fmt.Sprintf("chain depth enforced: %s", resp.Describe()))
		}
		return attacktest.Failed("no maximum delegation depth observed within the probed bound")
	},
}
