package catalogue

import (
	"context"
	"time"

	"github.com/loki-oidc/loki-splice/pkg/attacktest"
)

// issuedTokenTypeValidation performs a legitimate exchange and checks that
// the response's issued_token_type field matches the actual shape of the
// returned token (a JWT access-token must not be labelled id_token, etc.).
var issuedTokenTypeValidation = attacktest.Test{
	ID:          "issued-token-type-validation",
	Severity:    attacktest.SeverityMedium,
	Description: "issued_token_type must match the actual shape of the returned token",
	Spec:        "RFC 8693 §2.2.1: issued_token_type must accurately describe the structure of the returned access_token",
	Setup:       simpleSubjectActorSetup,
	Attack:      exchangeAndWrap,
	Verify: func(_ *attacktest.Context, _ *attacktest.SetupResult, resp *attacktest.AttackResponse) attacktest.Verdict {
		if resp.IsInconclusive() {
			return attacktest.Skipped(resp.Describe())
		}
		if !resp.IsSuccess() {
			return attacktest.Skipped("exchange was rejected: " + resp.Describe())
		}
		issuedType := resp.Field("issued_token_type")
		if issuedType == "" {
			return attacktest.Failed("response missing required issued_token_type field")
		}
		_, isJWT := decodeClaims(resp.Field("access_token"))
		switch {
		case isJWT && issuedType == "urn:ietf:params:oauth:token-type:id_token":
			return attacktest.Failed("access_token payload labelled id_token in issued_token_type")
		default:
			return attacktest.Passed("issued_token_type is " + issuedType)
		}
	},
}

// downstreamAudVerification performs a plain exchange with no audience
// parameter and checks that the result token carries an aud claim. It does
// not compare aud against a requested audience or against the
// subject-token's own audience.
var downstreamAudVerification = attacktest.Test{
	ID:          "downstream-aud-verification",
	Severity:    attacktest.SeverityMedium,
	Description: "result token of an exchange must carry an aud claim",
	Spec:        "RFC 8693 §2.1: the result token's aud claim must reflect the exchange's requested audience",
	Setup:       simpleSubjectActorSetup,
	Attack:      exchangeAndWrap,
	Verify: func(_ *attacktest.Context, _ *attacktest.SetupResult, resp *attacktest.AttackResponse) attacktest.Verdict {
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
		if !hasClaim(claims, "aud") {
			return attacktest.Failed("result token has no aud claim to verify against the request")
		}
		return attacktest.Passed("result token carries an aud claim")
	},
}

// tokenLifetimeReduction checks that a delegated token's lifetime does not
// exceed the subject-token's remaining lifetime at the time of exchange
// (RFC 8693's implicit expectation that delegation narrows, never widens).
// A result exp up to one minute past the subject-token's exp is accepted.
var tokenLifetimeReduction = attacktest.Test{
	ID:          "token-lifetime-reduction",
	Severity:    attacktest.SeverityMedium,
	Description: "delegated token lifetime must not exceed the subject-token's remaining lifetime",
	Spec:        "RFC 8693 §4.1: a delegated token's lifetime must not exceed the subject-token's own remaining lifetime",
	Setup: func(ctx context.Context, tc *attacktest.Context) (*attacktest.SetupResult, error) {
		subject, err := clientCredentialsToken(ctx, tc.Clients.Alice)
		if err != nil {
			return nil, err
		}
		actor, err := clientCredentialsToken(ctx, tc.Clients.AgentA)
		if err != nil {
			return nil, err
		}
		claims, ok := decodeClaims(subject)
		result := attacktest.NewSetupResult([2]string{subject, actor})
		if ok {
			if exp, isNum := claims["exp"].(float64); isNum {
				result.Set("subject_exp", exp)
			}
		}
		return result, nil
	},
	Attack: exchangeAndWrap,
	Verify: func(_ *attacktest.Context, setup *attacktest.SetupResult, resp *attacktest.AttackResponse) attacktest.Verdict {
		if resp.IsInconclusive() {
			return attacktest.Skipped(resp.Describe())
		}
		if !resp.IsSuccess() {
			return attacktest.Skipped("exchange was rejected: " + resp.Describe())
		}
		subjectExp, haveSubjectExp := setup.Get("subject_exp")
		if !haveSubjectExp {
			return attacktest.Skipped("subject-token carried no exp claim to compare against")
		}
		claims, ok := decodeClaims(resp.Field("access_token"))
		if !ok {
			return attacktest.Skipped("result token is opaque")
		}
		resultExp, isNum := claims["exp"].(float64)
		if !isNum {
			return attacktest.Failed("result token missing required exp claim")
		}
		if resultExp > subjectExp.(float64)+time.Minute.Seconds() {
			return attacktest.Failed("delegated token's lifetime exceeds the subject-token's own")
		}
		return attacktest.Passed("delegated token's lifetime is bounded by the subject-token's own")
	},
}

// exchangeAndWrap is the attack shape shared by the three output-inspection
// tests: a plain, legitimate exchange whose result gets inspected by Verify.
func exchangeAndWrap(ctx context.Context, tc *attacktest.Context, setup *attacktest.SetupResult) (*attacktest.AttackResponse, error) {
	tokens := setup.Opaque.([2]string)
	resp, err := exchange(ctx, tc.Clients.AgentA, tokens[0], tokens[1])
	if err != nil {
		return nil, err
	}
	return attacktest.NewAttackResponse(resp), nil
}
