package catalogue

import (
	"context"

	"github.com/loki-oidc/loki-splice/pkg/attacktest"
	"github.com/loki-oidc/loki-splice/pkg/oauthclient"
)

// refreshBypass obtains a delegated refresh-token, revokes the upstream
// subject-token, and attempts to refresh anyway: revocation of the
// upstream subject must propagate to the downstream refresh-token.
var refreshBypass = attacktest.Test{
	ID:          "refresh-bypass",
	Severity:    attacktest.SeverityMedium,
	Description: "downstream refresh attempted after the upstream subject-token was revoked",
	Spec:        "RFC 7009: revocation of a token must propagate to any refresh_token minted downstream of it via exchange",
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
			r.RequestedTokenType = oauthclient.TokenTypeRefreshToken
		})
		if err != nil {
			return nil, err
		}
		body, ok := exchResp.Body.(map[string]any)
		refreshToken, _ := body["refresh_token"].(string)
		if !ok || refreshToken == "" {
			result := attacktest.NewSetupResult(nil)
			result.Set("no_refresh_issued", true)
			return result, nil
		}
		if tc.Clients.Alice == nil {
			result := attacktest.NewSetupResult(nil)
			result.Set("no_refresh_issued", true)
			return result, nil
		}
		result := attacktest.NewSetupResult(refreshToken)
		result.Set("subject_token", alice)
		return result, nil
	},
	Attack: func(ctx context.Context, tc *attacktest.Context, setup *attacktest.SetupResult) (*attacktest.AttackResponse, error) {
		if setup.Bool("no_refresh_issued") {
			return nil, nil
		}
		subject := setup.String("subject_token")
		if _, err := tc.Clients.Alice.Revoke(ctx, subject, "access_token"); err != nil {
			return nil, err
		}
		refreshToken := setup.Opaque.(string)
		resp, err := tc.Clients.AgentA.Token(ctx, oauthclient.TokenRequest{
			GrantType:    oauthclient.GrantRefreshToken,
			RefreshToken: refreshToken,
		})
		if err != nil {
			return nil, err
		}
		return attacktest.NewAttackResponse(resp), nil
	},
	Verify: func(_ *attacktest.Context, setup *attacktest.SetupResult, resp *attacktest.AttackResponse) attacktest.Verdict {
		if setup.Bool("no_refresh_issued") {
			return attacktest.Skipped("target did not issue a downstream refresh_token")
		}
		return attacktest.ExpectRejection(resp)
	},
}

// revocationPropagation revokes an upstream subject-token and then
// introspects the downstream delegated access-token: active=false passes;
// an unavailable introspection endpoint skips.
var revocationPropagation = attacktest.Test{
	ID:          "revocation-propagation",
	Severity:    attacktest.SeverityMedium,
	Description: "downstream token introspected for active=false after upstream revocation",
	Spec:        "RFC 7009 and RFC 7662: a revoked upstream token must render downstream delegated tokens inactive on introspection",
	Setup: func(ctx context.Context, tc *attacktest.Context) (*attacktest.SetupResult, error) {
		alice, err := clientCredentialsToken(ctx, tc.Clients.Alice)
		if err != nil {
			return nil, err
		}
		agentA, err := clientCredentialsToken(ctx, tc.Clients.AgentA)
		if err != nil {
			return nil, err
		}
		exchResp, err := exchange(ctx, tc.Clients.AgentA, alice, agentA)
		if err != nil {
			return nil, err
		}
		delegated, err := accessToken(exchResp)
		if err != nil {
			result := attacktest.NewSetupResult(nil)
			result.Set("delegation_failed", true)
			return result, nil
		}
		result := attacktest.NewSetupResult(delegated)
		result.Set("subject_token", alice)
		return result, nil
	},
	Attack: func(ctx context.Context, tc *attacktest.Context, setup *attacktest.SetupResult) (*attacktest.AttackResponse, error) {
		if setup.Bool("delegation_failed") {
			return nil, nil
		}
		subject := setup.String("subject_token")
		if _, err := tc.Clients.Alice.Revoke(ctx, subject, "access_token"); err != nil {
			return nil, err
		}
		delegated := setup.Opaque.(string)
		resp, err := tc.Clients.AgentA.Introspect(ctx, delegated, "access_token")
		if err != nil {
			return nil, err
		}
		return attacktest.NewAttackResponse(resp), nil
	},
	Verify: func(_ *attacktest.Context, setup *attacktest.SetupResult, resp *attacktest.AttackResponse) attacktest.Verdict {
		if setup.Bool("delegation_failed") {
			return attacktest.Skipped("initial delegation failed, nothing downstream to check")
		}
		if resp.IsInconclusive() {
			return attacktest.Skipped("introspection endpoint unavailable: " + resp.Describe())
		}
		active, ok := resp.Response.Body.(map[string]any)["active"].(bool)
		if !ok {
			return attacktest.Skipped("introspection response missing active field")
		}
		if active {
			return attacktest.Failed("downstream token still reports active after upstream revocation")
		}
		return attacktest.Passed("revocation propagated to the downstream token")
	},
}
