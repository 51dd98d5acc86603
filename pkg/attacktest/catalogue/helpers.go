// Package catalogue provides the fixed, ordered Attack Test Catalogue:
// the RFC 8693 token-exchange conformance probes splice-check runs against
// a target authorization server, per spec.md §4.I.
package catalogue

import (
	"context"
	"fmt"

	"github.com/loki-oidc/loki-splice/pkg/attacktest"
	"github.com/loki-oidc/loki-splice/pkg/jwtforge"
	"github.com/loki-oidc/loki-splice/pkg/oauthclient"
)

// clientCredentialsToken obtains an access token for c via client_credentials
// and returns it, or an error if the grant failed or the response was
// malformed.
func clientCredentialsToken(ctx context.Context, c *oauthclient.Client) (string, error) {
	resp, err := c.Token(ctx, oauthclient.TokenRequest{GrantType: oauthclient.GrantClientCredentials})
	if err != nil {
		return "", fmt.Errorf("client_credentials grant: %w", err)
	}
	tok, err := accessToken(resp)
	if err != nil {
		return "", fmt.Errorf("client_credentials grant: %w", err)
	}
	return tok, nil
}

func accessToken(resp *oauthclient.Response) (string, error) {
	body, ok := resp.Body.(map[string]any)
	if !ok {
		return "", fmt.Errorf("non-JSON response (status %d)", resp.Status)
	}
	tok, _ := body["access_token"].(string)
	if tok == "" {
		return "", fmt.Errorf("response missing access_token (status %d)", resp.Status)
	}
	return tok, nil
}

// decodeClaims extracts a JWT's claims without verifying its signature;
// opaque (non-JWT) tokens return ok=false, which callers must treat as
// "nothing to inspect," not an error.
func decodeClaims(token string) (map[string]any, bool) {
	t, err := jwtforge.Parse(token)
	if err != nil {
		return nil, false
	}
	return t.Claims, true
}

// stringClaim reads a string claim, defaulting to "".
func stringClaim(claims map[string]any, key string) string {
	if claims == nil {
		return ""
	}
	v, _ := claims[key].(string)
	return v
}

// hasClaim reports whether claims contains key at all.
func hasClaim(claims map[string]any, key string) bool {
	if claims == nil {
		return false
	}
	_, ok := claims[key]
	return ok
}

// exchange performs a token-exchange grant authenticated as actingAs, using
// subjectToken (and, if non-empty, actorToken) as the delegation chain.
func exchange(ctx context.Context, actingAs *oauthclient.Client, subjectToken, actorToken string, opts ...func(*oauthclient.TokenRequest)) (*oauthclient.Response, error) {
	req := oauthclient.TokenRequest{
		GrantType:          oauthclient.GrantTokenExchange,
		SubjectToken:       subjectToken,
		SubjectTokenType:   oauthclient.TokenTypeAccessToken,
		RequestedTokenType: oauthclient.TokenTypeAccessToken,
	}
	if actorToken != "" {
		req.ActorToken = actorToken
		req.ActorTokenType = oauthclient.TokenTypeAccessToken
	}
	for _, opt := range opts {
		opt(&req)
	}
	return actingAs.Token(ctx, req)
}
