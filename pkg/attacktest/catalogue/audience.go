package catalogue

import (
	"context"

	"github.com/loki-oidc/loki-splice/pkg/attacktest"
	"github.com/loki-oidc/loki-splice/pkg/oauthclient"
)

const unauthorizedAudience = "payments-service.internal"

// audienceTargeting requests a token scoped to an audience the exchanging
// client has no business reaching.
var audienceTargeting = attacktest.Test{
	ID:          "audience-targeting",
	Severity:    attacktest.SeverityCritical,
	Description: "token exchange targets an audience the client is not authorized for",
	Spec:        "RFC 8693 §2.1: the audience parameter must be checked against the client's actual authorization",
	Setup:       simpleSubjectActorSetup,
	Attack: func(ctx context.Context, tc *attacktest.Context, setup *attacktest.SetupResult) (*attacktest.AttackResponse, error) {
		tokens := setup.Opaque.([2]string)
		resp, err := exchange(ctx, tc.Clients.AgentA, tokens[0], tokens[1], func(r *oauthclient.TokenRequest) {
			r.Audience = oauthclient.One(unauthorizedAudience)
		})
		if err != nil {
			return nil, err
		}
		return attacktest.NewAttackResponse(resp), nil
	},
	Verify: func(_ *attacktest.Context, _ *attacktest.SetupResult, resp *attacktest.AttackResponse) attacktest.Verdict {
		return attacktest.ExpectRejection(resp)
	},
}

// resourceAbuse is audience-targeting's RFC 8693 "resource" sibling.
var resourceAbuse = attacktest.Test{
	ID:          "resource-abuse",
	Severity:    attacktest.SeverityHigh,
	Description: "token exchange targets a resource URI the client is not authorized for",
	Spec:        "RFC 8693 §2.1: the resource parameter must be checked against the client's actual authorization",
	Setup:       simpleSubjectActorSetup,
	Attack: func(ctx context.Context, tc *attacktest.Context, setup *attacktest.SetupResult) (*attacktest.AttackResponse, error) {
		tokens := setup.Opaque.([2]string)
		resp, err := exchange(ctx, tc.Clients.AgentA, tokens[0], tokens[1], func(r *oauthclient.TokenRequest) {
			r.Resource = oauthclient.One("https://" + unauthorizedAudience + "/api")
		})
		if err != nil {
			return nil, err
		}
		return attacktest.NewAttackResponse(resp), nil
	},
	Verify: func(_ *attacktest.Context, _ *attacktest.SetupResult, resp *attacktest.AttackResponse) attacktest.Verdict {
		return attacktest.ExpectRejection(resp)
	},
}

// multiAudience requests several audiences at once, at least one of which
// is unauthorized; the whole exchange must be rejected, not silently
// narrowed.
var multiAudience = attacktest.Test{
	ID:          "multi-audience",
	Severity:    attacktest.SeverityHigh,
	Description: "multi-valued audience request mixing an authorized and an unauthorized target",
	Spec:        "RFC 8693 §2.1: every value of a multi-valued audience parameter must be authorized, not just one",
	Setup:       simpleSubjectActorSetup,
	Attack: func(ctx context.Context, tc *attacktest.Context, setup *attacktest.SetupResult) (*attacktest.AttackResponse, error) {
		tokens := setup.Opaque.([2]string)
		resp, err := exchange(ctx, tc.Clients.AgentA, tokens[0], tokens[1], func(r *oauthclient.TokenRequest) {
			r.Audience = oauthclient.Many("downstream-service", unauthorizedAudience)
		})
		if err != nil {
			return nil, err
		}
		return attacktest.NewAttackResponse(resp), nil
	},
	Verify: func(_ *attacktest.Context, _ *attacktest.SetupResult, resp *attacktest.AttackResponse) attacktest.Verdict {
		return attacktest.ExpectRejection(resp)
	},
}

// missingAud performs a legitimate exchange with no audience parameter at
// all, then inspects the issued token: an access-token with no aud claim
// should never have been minted for a delegation model that requires
// audience binding. Token opacity or unavailable claims yield skip.
var missingAud = attacktest.Test{
	ID:          "missing-aud",
	Severity:    attacktest.SeverityHigh,
	Description: "issued token inspected for an absent aud claim",
	Spec:        "RFC 8693 §4.1: a delegated token issued by an exchange must carry an aud claim binding it to its audience",
	Setup:       simpleSubjectActorSetup,
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
		if !resp.IsSuccess() {
			return attacktest.Skipped("no token issued to inspect: " + resp.Describe())
		}
		claims, ok := decodeClaims(resp.Field("access_token"))
		if !ok {
			return attacktest.Skipped("issued token is opaque")
		}
		if !hasClaim(claims, "aud") {
			return attacktest.Failed("issued token carries no aud claim")
		}
		return attacktest.Passed("issued token is audience-bound")
	},
}

// scopeEscalation requests a broader scope on exchange than the subject
// token was originally granted.
var scopeEscalation = attacktest.Test{
	ID:          "scope-escalation",
	Severity:    attacktest.SeverityHigh,
	Description: "exchange requests a scope broader than the subject-token's own grant",
	Spec:        "RFC 8693 §4.2: the scope claim of an exchanged token must not exceed the subject-token's own grant",
	Setup:       simpleSubjectActorSetup,
	Attack: func(ctx context.Context, tc *attacktest.Context, setup *attacktest.SetupResult) (*attacktest.AttackResponse, error) {
		tokens := setup.Opaque.([2]string)
		resp, err := exchange(ctx, tc.Clients.AgentA, tokens[0], tokens[1], func(r *oauthclient.TokenRequest) {
			r.Scope = "admin:write"
		})
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
				return attacktest.Skipped("issued token is opaque, cannot verify granted scope")
			}
			if stringClaim(claims, "scope") == "admin:write" {
				return attacktest.Failed("issued token carries the escalated scope verbatim")
			}
			return attacktest.Passed("issued token did not carry the escalated scope")
		}
		return attacktest.Failed("unexpected outcome: " + resp.Describe())
	},
}

// simpleSubjectActorSetup is shared by every test whose setup is "obtain
// alice's token as subject, agent-a's token as actor."
func simpleSubjectActorSetup(ctx context.Context, tc *attacktest.Context) (*attacktest.SetupResult, error) {
	subject, err := clientCredentialsToken(ctx, tc.Clients.Alice)
	if err != nil {
		return nil, err
	}
	actor, err := clientCredentialsToken(ctx, tc.Clients.AgentA)
	if err != nil {
		return nil, err
	}
	return attacktest.NewSetupResult([2]string{subject, actor}), nil
}
