package catalogue

import (
	"context"

	"github.com/loki-oidc/loki-splice/pkg/attacktest"
	"github.com/loki-oidc/loki-splice/pkg/oauthclient"
)

// validDelegation is the catalogue's baseline: a legitimate token exchange
// with alice's subject-token and agent-a's actor-token, authenticated as
// agent-a. Every other test's bail-on-baseline-failure decision hinges on
// this one passing.
var validDelegation = attacktest.Test{
	ID:          "valid-delegation",
	Severity:    attacktest.SeverityCritical,
	Description: "a legitimate delegation succeeds",
	Spec:        "RFC 8693 §2: a well-formed token exchange request must succeed and return a valid access_token",
	Setup: func(ctx context.Context, tc *attacktest.Context) (*attacktest.SetupResult, error) {
		subject, err := clientCredentialsToken(ctx, tc.Clients.Alice)
		if err != nil {
			return nil, err
		}
		actor, err := clientCredentialsToken(ctx, tc.Clients.AgentA)
		if err != nil {
			return nil, err
		}
		return attacktest.NewSetupResult([2]string{subject, actor}), nil
	},
	Attack: func(ctx context.Context, tc *attacktest.Context, setup *attacktest.SetupResult) (*attacktest.AttackResponse, error) {
		tokens := setup.Opaque.([2]string)
		resp, err := exchange(ctx, tc.Clients.AgentA, tokens[0], tokens[1])
		if err != nil {
			return nil, err
		}
		return attacktest.NewAttackResponse(resp), nil
	},
	Verify: func(_ *attacktest.Context, _ *attacktest.SetupResult, resp *attacktest.AttackResponse) attacktest.Verdict {
		if resp.IsInconclusive() {
			return attacktest.Skipped(resp.Describe())
		}
		if resp.IsSuccess() && resp.Field("access_token") != "" {
			return attacktest.Passed(resp.Describe())
		}
		return attacktest.Failed("expected a successful delegation, got " + resp.Describe())
	},
}

// basicSplice obtains alice's and agent-n's tokens independently (two
// unrelated chains) and presents them together; agent-n was never
// authorized to act for alice and the exchange must be rejected.
var basicSplice = attacktest.Test{
	ID:          "basic-splice",
	Severity:    attacktest.SeverityCritical,
	Description: "subject-token and actor-token drawn from unrelated delegation chains",
	Spec:        "RFC 8693 §2.1: subject_token and actor_token must originate from the same delegation chain, not unrelated ones",
	Setup: func(ctx context.Context, tc *attacktest.Context) (*attacktest.SetupResult, error) {
		subject, err := clientCredentialsToken(ctx, tc.Clients.Alice)
		if err != nil {
			return nil, err
		}
		actor, err := clientCredentialsToken(ctx, tc.Clients.AgentN)
		if err != nil {
			return nil, err
		}
		return attacktest.NewSetupResult([2]string{subject, actor}), nil
	},
	Attack: func(ctx context.Context, tc *attacktest.Context, setup *attacktest.SetupResult) (*attacktest.AttackResponse, error) {
		tokens := setup.Opaque.([2]string)
		resp, err := exchange(ctx, tc.Clients.AgentN, tokens[0], tokens[1])
		if err != nil {
			return nil, err
		}
		return attacktest.NewAttackResponse(resp), nil
	},
	Verify: func(_ *attacktest.Context, _ *attacktest.SetupResult, resp *attacktest.AttackResponse) attacktest.Verdict {
		return attacktest.ExpectRejection(resp)
	},
}

// actorClientMismatch authenticates as agent-a but presents agent-n's token
// as the actor-token: the authenticated client and the claimed actor disagree.
var actorClientMismatch = attacktest.Test{
	ID:          "actor-client-mismatch",
	Severity:    attacktest.SeverityCritical,
	Description: "authenticated client and actor-token's owning client disagree",
	Spec:        "RFC 8693 §2.1: the authenticated client performing the exchange must match the actor-token's owning party",
	Setup: func(ctx context.Context, tc *attacktest.Context) (*attacktest.SetupResult, error) {
		subject, err := clientCredentialsToken(ctx, tc.Clients.Alice)
		if err != nil {
			return nil, err
		}
		actor, err := clientCredentialsToken(ctx, tc.Clients.AgentN)
		if err != nil {
			return nil, err
		}
		return attacktest.NewSetupResult([2]string{subject, actor}), nil
	},
	Attack: func(ctx context.Context, tc *attacktest.Context, setup *attacktest.SetupResult) (*attacktest.AttackResponse, error) {
		tokens := setup.Opaque.([2]string)
		// Authenticate as agent-a, the un-related actor-token belongs to agent-n.
		resp, err := exchange(ctx, tc.Clients.AgentA, tokens[0], tokens[1])
		if err != nil {
			return nil, err
		}
		return attacktest.NewAttackResponse(resp), nil
	},
	Verify: func(_ *attacktest.Context, _ *attacktest.SetupResult, resp *attacktest.AttackResponse) attacktest.Verdict {
		return attacktest.ExpectRejection(resp)
	},
}

// audSubBinding first legitimately obtains an audience-scoped subject-token,
// then re-presents it bound to a different actor than the one it was issued
// alongside.
var audSubBinding = attacktest.Test{
	ID:          "aud-sub-binding",
	Severity:    attacktest.SeverityCritical,
	Description: "an audience-scoped subject-token re-presented with a mismatched actor",
	Spec:        "RFC 8693 §2.1: an audience-scoped subject-token must not be re-exchangeable with a different actor than it was bound to",
	Setup: func(ctx context.Context, tc *attacktest.Context) (*attacktest.SetupResult, error) {
		alice, err := clientCredentialsToken(ctx, tc.Clients.Alice)
		if err != nil {
			return nil, err
		}
		agentA, err := clientCredentialsToken(ctx, tc.Clients.AgentA)
		if err != nil {
			return nil, err
		}
		exchResp, err := exchange(ctx, tc.Clients.AgentA, alice, agentA, func(r *oauthclient.TokenRequest) {
			r.Audience = oauthclient.One("downstream-service")
		})
		if err != nil {
			return nil, err
		}
		scoped, err := accessToken(exchResp)
		if err != nil {
			// The legitimate exchange itself was rejected (e.g. target doesn't
			// support audience scoping); nothing further to attack.
			result := attacktest.NewSetupResult(nil)
			result.Set("baseline_unavailable", true)
			return result, nil
		}
		mismatchedActor, err := clientCredentialsToken(ctx, tc.Clients.AgentN)
		if err != nil {
			return nil, err
		}
		return attacktest.NewSetupResult([2]string{scoped, mismatchedActor}), nil
	},
	Attack: func(ctx context.Context, tc *attacktest.Context, setup *attacktest.SetupResult) (*attacktest.AttackResponse, error) {
		if setup.Bool("baseline_unavailable") {
			return nil, nil
		}
		tokens := setup.Opaque.([2]string)
		resp, err := exchange(ctx, tc.Clients.AgentN, tokens[0], tokens[1])
		if err != nil {
			return nil, err
		}
		return attacktest.NewAttackResponse(resp), nil
	},
	Verify: func(_ *attacktest.Context, setup *attacktest.SetupResult, resp *attacktest.AttackResponse) attacktest.Verdict {
		if setup.Bool("baseline_unavailable") {
			return attacktest.Skipped("target did not issue an audience-scoped subject-token to re-present")
		}
		return attacktest.ExpectRejection(resp)
	},
}

// upstreamSplice performs a legitimate delegation and then attempts an
// unauthorised second-hop re-delegation of the resulting token.
var upstreamSplice = attacktest.Test{
	ID:          "upstream-splice",
	Severity:    attacktest.SeverityHigh,
	Description: "unauthorised re-delegation following a legitimate first hop",
	Spec:        "RFC 8693 §1.1: a delegated token must not be usable to mint a further, unauthorised re-delegation",
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
		agentN, err := clientCredentialsToken(ctx, tc.Clients.AgentN)
		if err != nil {
			return nil, err
		}
		return attacktest.NewSetupResult([2]string{delegated, agentN}), nil
	},
	Attack: func(ctx context.Context, tc *attacktest.Context, setup *attacktest.SetupResult) (*attacktest.AttackResponse, error) {
		if setup.Bool("first_hop_failed") {
			return nil, nil
		}
		tokens := setup.Opaque.([2]string)
		resp, err := exchange(ctx, tc.Clients.AgentN, tokens[0], tokens[1])
		if err != nil {
			return nil, err
		}
		return attacktest.NewAttackResponse(resp), nil
	},
	Verify: func(_ *attacktest.Context, setup *attacktest.SetupResult, resp *attacktest.AttackResponse) attacktest.Verdict {
		if setup.Bool("first_hop_failed") {
			return attacktest.Skipped("first-hop delegation failed, nothing to re-delegate")
		}
		return attacktest.ExpectRejection(resp)
	},
}

// subjectActorSwap swaps the subject-token and actor-token parameters.
var subjectActorSwap = attacktest.Test{
	ID:          "subject-actor-swap",
	Severity:    attacktest.SeverityHigh,
	Description: "subject-token and actor-token parameters swapped",
	Spec:        "RFC 8693 §2.1: subject_token and actor_token are distinct, non-interchangeable parameters",
	Setup: func(ctx context.Context, tc *attacktest.Context) (*attacktest.SetupResult, error) {
		subject, err := clientCredentialsToken(ctx, tc.Clients.Alice)
		if err != nil {
			return nil, err
		}
		actor, err := clientCredentialsToken(ctx, tc.Clients.AgentA)
		if err != nil {
			return nil, err
		}
		return attacktest.NewSetupResult([2]string{subject, actor}), nil
	},
	Attack: func(ctx context.Context, tc *attacktest.Context, setup *attacktest.SetupResult) (*attacktest.AttackResponse, error) {
		tokens := setup.Opaque.([2]string)
		// Subject and actor reversed relative to validDelegation.
		resp, err := exchange(ctx, tc.Clients.AgentA, tokens[1], tokens[0])
		if err != nil {
			return nil, err
		}
		return attacktest.NewAttackResponse(resp), nil
	},
	Verify: func(_ *attacktest.Context, _ *attacktest.SetupResult, resp *attacktest.AttackResponse) attacktest.Verdict {
		return attacktest.ExpectRejection(resp)
	},
}
