package catalogue

import (
	"context"

	"github.com/loki-oidc/loki-splice/pkg/attacktest"
	"github.com/loki-oidc/loki-splice/pkg/oauthclient"
)

// tokenTypeMismatch declares an access-token as an id_token in the exchange
// request; the target must detect the type/content disagreement.
var tokenTypeMismatch = attacktest.Test{
	ID:          "token-type-mismatch",
	Severity:    attacktest.SeverityCritical,
	Description: "access-token subject declared as id_token type",
	Spec:        "RFC 8693 §3: a token's declared type identifier must match its actual content",
	Setup: func(ctx context.Context, tc *attacktest.Context) (*attacktest.SetupResult, error) {
		subject, err := clientCredentialsToken(ctx, tc.Clients.Alice)
		if err != nil {
			return nil, err
		}
		return attacktest.NewSetupResult(subject), nil
	},
	Attack: func(ctx context.Context, tc *attacktest.Context, setup *attacktest.SetupResult) (*attacktest.AttackResponse, error) {
		subject := setup.Opaque.(string)
		resp, err := tc.Clients.AgentA.Token(ctx, oauthclient.TokenRequest{
			GrantType:          oauthclient.GrantTokenExchange,
			SubjectToken:       subject,
			SubjectTokenType:   oauthclient.TokenTypeIDToken,
			RequestedTokenType: oauthclient.TokenTypeAccessToken,
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

// unauthenticatedExchange omits client authentication entirely, per
// RFC 8693 §5: passes on 401, or on invalid_client regardless of status.
var unauthenticatedExchange = attacktest.Test{
	ID:          "unauthenticated-exchange",
	Severity:    attacktest.SeverityCritical,
	Description: "token exchange attempted with zero client authentication",
	Spec:        "RFC 8693 §5: token exchange requests must be authenticated; unauthenticated requests must be rejected",
	Setup: func(ctx context.Context, tc *attacktest.Context) (*attacktest.SetupResult, error) {
		subject, err := clientCredentialsToken(ctx, tc.Clients.Alice)
		if err != nil {
			return nil, err
		}
		return attacktest.NewSetupResult(subject), nil
	},
	Attack: func(ctx context.Context, tc *attacktest.Context, setup *attacktest.SetupResult) (*attacktest.AttackResponse, error) {
		subject := setup.Opaque.(string)
		resp, err := tc.Clients.AgentA.Token(ctx, oauthclient.TokenRequest{
			GrantType:          oauthclient.GrantTokenExchange,
			SubjectToken:       subject,
			SubjectTokenType:   oauthclient.TokenTypeAccessToken,
			RequestedTokenType: oauthclient.TokenTypeAccessToken,
			SkipClientAuth:     true,
		})
		if err != nil {
			return nil, err
		}
		return attacktest.NewAttackResponse(resp), nil
	},
	Verify: func(_ *attacktest.Context, _ *attacktest.SetupResult, resp *attacktest.AttackResponse) attacktest.Verdict {
		if resp.Response != nil && resp.Response.Status == 401 {
			return attacktest.Passed(resp.Describe())
		}
		if resp.ErrorCode() == "invalid_client" {
			return attacktest.Passed(resp.Describe())
		}
		if resp.IsInconclusive() {
			return attacktest.Skipped(resp.Describe())
		}
		return attacktest.Failed("expected 401 or invalid_client, got " + resp.Describe())
	},
}

// tokenTypeEscalation requests a refresh-token type from an access-token
// subject: passes on rejection, or if the server declines and issues only
// an access-token (never escalating the token type).
var tokenTypeEscalation = attacktest.Test{
	ID:          "token-type-escalation",
	Severity:    attacktest.SeverityCritical,
	Description: "requested_token_type escalated from access_token to refresh_token",
	Spec:        "RFC 8693 §3: requested_token_type must not be honored beyond what the subject-token's own type authorizes",
	Setup: func(ctx context.Context, tc *attacktest.Context) (*attacktest.SetupResult, error) {
		subject, err := clientCredentialsToken(ctx, tc.Clients.Alice)
		if err != nil {
			return nil, err
		}
		return attacktest.NewSetupResult(subject), nil
	},
	Attack: func(ctx context.Context, tc *attacktest.Context, setup *attacktest.SetupResult) (*attacktest.AttackResponse, error) {
		subject := setup.Opaque.(string)
		resp, err := tc.Clients.AgentA.Token(ctx, oauthclient.TokenRequest{
			GrantType:          oauthclient.GrantTokenExchange,
			SubjectToken:       subject,
			SubjectTokenType:   oauthclient.TokenTypeAccessToken,
			RequestedTokenType: oauthclient.TokenTypeRefreshToken,
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
			issuedType := resp.Field("issued_token_type")
			if issuedType == "" || issuedType == oauthclient.TokenTypeAccessToken {
				return attacktest.Passed("server declined to escalate, issued " + issuedType)
			}
			return attacktest.Failed("server issued a refresh_token for an access_token subject")
		}
		return attacktest.Failed("unexpected outcome: " + resp.Describe())
	},
}
