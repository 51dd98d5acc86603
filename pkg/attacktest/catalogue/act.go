package catalogue

import (
	"context"

	"github.com/loki-oidc/loki-splice/pkg/attacktest"
)

// actClaimStripping performs a legitimate delegation, then re-exchanges the
// delegated token without presenting an actor-token. If the original token
// carried an act claim, the result must retain it.
var actClaimStripping = attacktest.Test{
	ID:          "act-claim-stripping",
	Severity:    attacktest.SeverityCritical,
	Description: "re-exchange without an actor-token must not drop an existing act claim",
	Spec:        "RFC 8693 §4.1: the act claim identifying prior delegation must be preserved across subsequent exchanges",
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
		claims, ok := decodeClaims(delegated)
		hadAct := ok && hasClaim(claims, "act")
		result := attacktest.NewSetupResult(delegated)
		result.Set("had_act", hadAct)
		result.Set("opaque_subject", !ok)
		return result, nil
	},
	Attack: func(ctx context.Context, tc *attacktest.Context, setup *attacktest.SetupResult) (*attacktest.AttackResponse, error) {
		if setup.Bool("first_hop_failed") {
			return nil, nil
		}
		delegated := setup.Opaque.(string)
		resp, err := exchange(ctx, tc.Clients.AgentA, delegated, "")
		if err != nil {
			return nil, err
		}
		return attacktest.NewAttackResponse(resp), nil
	},
	Verify: func(_ *attacktest.Context, setup *attacktest.SetupResult, resp *attacktest.AttackResponse) attacktest.Verdict {
		if setup.Bool("first_hop_failed") {
			return attacktest.Skipped("first-hop delegation failed, nothing to re-exchange")
		}
		if !setup.Bool("had_act") {
			return attacktest.Skipped("first-hop token carried no act claim to track")
		}
		if resp.IsInconclusive() {
			return attacktest.Skipped(resp.Describe())
		}
		if !resp.IsSuccess() {
			return attacktest.Skipped("re-exchange was rejected: " + resp.Describe())
		}
		claims, ok := decodeClaims(resp.Field("access_token"))
		if !ok {
			return attacktest.Skipped("result token is opaque")
		}
		if !hasClaim(claims, "act") {
			return attacktest.Failed("act claim was stripped on re-exchange")
		}
		return attacktest.Passed("act claim was retained")
	},
}

// mayActEnforcement checks that, when the subject-token declares a may_act
// constraint, an actor outside that constraint is rejected.
var mayActEnforcement = attacktest.Test{
	ID:          "may-act-enforcement",
	Severity:    attacktest.SeverityHigh,
	Description: "subject-token's may_act constraint must be enforced against the presented actor",
	Spec:        "RFC 8693 §4.4: a subject-token's may_act constraint must be enforced against the presented actor",
	Setup: func(ctx context.Context, tc *attacktest.Context) (*attacktest.SetupResult, error) {
		subject, err := clientCredentialsToken(ctx, tc.Clients.Alice)
		if err != nil {
			return nil, err
		}
		actor, err := clientCredentialsToken(ctx, tc.Clients.AgentN)
		if err != nil {
			return nil, err
		}
		claims, ok := decodeClaims(subject)
		result := attacktest.NewSetupResult([2]string{subject, actor})
		result.Set("has_may_act", ok && hasClaim(claims, "may_act"))
		return result, nil
	},
	Attack: func(ctx context.Context, tc *attacktest.Context, setup *attacktest.SetupResult) (*attacktest.AttackResponse, error) {
		tokens := setup.Opaque.([2]string)
		resp, err := exchange(ctx, tc.Clients.AgentN, tokens[0], tokens[1])
		if err != nil {
			return nil, err
		}
		return attacktest.NewAttackResponse(resp), nil
	},
	Verify: func(_ *attacktest.Context, setup *attacktest.SetupResult, resp *attacktest.AttackResponse) attacktest.Verdict {
		if !setup.Bool("has_may_act") {
			if resp.IsSecurityRejection() {
				return attacktest.Passed("no may_act constraint declared; rejection used as evidence")
			}
			return attacktest.Skipped("subject-token declares no may_act constraint")
		}
		return attacktest.ExpectRejection(resp)
	},
}

// actSubVerification inspects a successful exchange's result token: its
// act.sub must identify the actor that actually performed the exchange.
// When the actor token is opaque, only the presence of act.sub is checked.
var actSubVerification = attacktest.Test{
	ID:          "act-sub-verification",
	Severity:    attacktest.SeverityMedium,
	Description: "result token's act.sub must name the true acting party",
	Spec:        "RFC 8693 §4.1: the act claim's sub must identify the party that actually performed the exchange",
	Setup:       simpleSubjectActorSetup,
	Attack: func(ctx context.Context, tc *attacktest.Context, setup *attacktest.SetupResult) (*attacktest.AttackResponse, error) {
		tokens := setup.Opaque.([2]string)
		resp, err := exchange(ctx, tc.Clients.AgentA, tokens[0], tokens[1])
		if err != nil {
			return nil, err
		}
		return attacktest.NewAttackResponse(resp), nil
	},
	Verify: func(_ *attacktest.Context, setup *attacktest.SetupResult, resp *attacktest.AttackResponse) attacktest.Verdict {
		if resp.IsInconclusive() {
			return attacktest.Skipped(resp.Describe())
		}
		if !resp.IsSuccess() {
			return attacktest.Skipped("exchange was rejected: " + resp.Describe())
		}
		claims, ok := decodeClaims(resp.Field("access_token"))
		if !ok {
			return attacktest.Skipped("result token is opaque")
		}
		act, ok := claims["act"].(map[string]any)
		if !ok {
			return attacktest.Failed("result token missing required act claim")
		}
		actSub := stringClaim(act, "sub")
		if actSub == "" {
			return attacktest.Failed("act claim missing sub")
		}
		tokens, _ := setup.Opaque.([2]string)
		if actorClaims, ok := decodeClaims(tokens[1]); ok {
			if want := stringClaim(actorClaims, "sub"); want != "" && actSub != want {
				return attacktest.Failed("act.sub " + actSub + " does not name the acting party " + want)
			}
		}
		return attacktest.Passed("act.sub present on result token")
	},
}

// actNestingIntegrity verifies a re-delegated token's act claim nests the
// prior actor under act.act rather than overwriting it.
var actNestingIntegrity = attacktest.Test{
	ID:          "act-nesting-integrity",
	Severity:    attacktest.SeverityMedium,
	Description: "a second delegation hop must nest, not overwrite, the first hop's act claim",
	Spec:        "RFC 8693 §4.1: a second delegation hop's act claim must nest, not overwrite, the prior hop's actor",
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
		// This second hop is itself an unauthorised re-delegation (agent-n was
		// never the chain's actor), so a security rejection is the expected,
		// correct outcome and a pass for nesting integrity has nothing to check.
		if resp.IsInconclusive() {
			return attacktest.Skipped(resp.Describe())
		}
		if resp.IsSecurityRejection() {
			return attacktest.Passed("unauthorised second hop rejected before nesting could be tested")
		}
		claims, ok := decodeClaims(resp.Field("access_token"))
		if !ok {
			return attacktest.Skipped("result token is opaque")
		}
		act, ok := claims["act"].(map[string]any)
		if !ok {
			return attacktest.Failed("second-hop token missing act claim entirely")
		}
		if _, nested := act["act"]; !nested {
			return attacktest.Failed("second-hop act claim did not nest the first hop's actor")
		}
		return attacktest.Passed("second-hop act claim correctly nests the first hop")
	},
}
