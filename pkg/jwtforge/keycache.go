package jwtforge

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/loki-oidc/loki-splice/pkg/logger"
)

// httpClient is the minimal seam the key cache needs, so tests can stub
// JWKS responses without a real listener.
type httpClient interface {
	Get(url string) (*http.Response, error)
}

// KeyCache resolves an issuer's published JWKS into a PEM-encoded public
// key, once per issuer per process lifetime. It backs the key-confusion
// plugin's getPublicKey() handle.
type KeyCache struct {
	client httpClient

	mu    sync.Mutex
	cache map[string]string // jwksURL -> SubjectPublicKeyInfo PEM
}

// NewKeyCache builds a KeyCache using the given HTTP client, or the default
// client if nil.
func NewKeyCache(client httpClient) *KeyCache {
	if client == nil {
		client = http.DefaultClient
	}
	return &KeyCache{client: client, cache: make(map[string]string)}
}

// PublicKeyPEM returns the first signing key (use absent or "sig") from the
// JWKS document at jwksURL, serialised to SubjectPublicKeyInfo PEM (RFC
// 5280). Results are cached for the lifetime of the KeyCache.
func (c *KeyCache) PublicKeyPEM(ctx context.Context, jwksURL string) (string, error) {
	c.mu.Lock()
	if cached, ok := c.cache[jwksURL]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	logger.Debugw("jwtforge: fetching JWKS for key cache", "jwksURL", jwksURL)

	set, err := c.fetch(ctx, jwksURL)
	if err != nil {
		return "", fmt.Errorf("fetch JWKS: %w", err)
	}

	pemBytes, err := firstSigningKeyPEM(set)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.cache[jwksURL] = pemBytes
	c.mu.Unlock()

	return pemBytes, nil
}

func (c *KeyCache) fetch(_ context.Context, jwksURL string) (jwk.Set, error) {
	resp, err := c.client.Get(jwksURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return jwk.Parse(body)
}

func firstSigningKeyPEM(set jwk.Set) (string, error) {
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		use := key.KeyUsage()
		if use != "" && use != "sig" {
			continue
		}

		var raw any
		if err := key.Raw(&raw); err != nil {
			continue
		}

		// JWKS entries are public keys already (RSA/ECDSA public key
		// structs), so the raw value marshals straight to SubjectPublicKeyInfo.
		der, err := x509.MarshalPKIXPublicKey(raw)
		if err != nil {
			continue
		}

		block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
		return string(pem.EncodeToMemory(block)), nil
	}
	return "", fmt.Errorf("no usable signing key found in JWKS")
}

// DecodeDocument unmarshals a discovery or JWKS document body into a
// free-form map for mutation by discovery-phase plugins.
func DecodeDocument(body []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}
