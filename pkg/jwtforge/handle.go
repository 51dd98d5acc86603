package jwtforge

import (
	"context"
	"errors"
)

var errNoKeyCache = errors.New("jwtforge: handle has no key cache configured")

// KeyResolver fetches (and typically caches) an issuer's public signing
// key in PEM form, keyed by its JWKS URL. *KeyCache implements this.
type KeyResolver interface {
	PublicKeyPEM(ctx context.Context, jwksURL string) (string, error)
}

// Handle adapts a Token plus a key resolver into the plugins.TokenHandle
// interface, so plugins can mutate the token without importing this package
// directly.
type Handle struct {
	Token         *Token
	KeyCache      KeyResolver
	IssuerJWKSURL string
}

func (h *Handle) Header() map[string]any  { return h.Token.Header }
func (h *Handle) Claims() map[string]any  { return h.Token.Claims }
func (h *Handle) Signature() string       { return h.Token.Signature }
func (h *Handle) SetSignature(sig string) { h.Token.Signature = sig }
func (h *Handle) Sign(alg string, key any) error {
	return h.Token.Sign(alg, key)
}

// PublicKeyPEM fetches the issuer's public signing key through the shared
// KeyCache, keyed on IssuerJWKSURL.
func (h *Handle) PublicKeyPEM(ctx context.Context) (string, error) {
	if h.KeyCache == nil {
		return "", errNoKeyCache
	}
	return h.KeyCache.PublicKeyPEM(ctx, h.IssuerJWKSURL)
}
