// Package jwtforge implements the JWT Forge: parsing a compact JWS into a
// mutable header/claims/signature triple, rebuilding it, and re-signing it
// with a deliberately permissive set of algorithms (including "none").
//
// The forge exists to produce spec-violating tokens on demand; it is not a
// validator and must never be used to accept tokens as trustworthy.
package jwtforge

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/loki-oidc/loki-splice/pkg/logger"
)

// ErrMalformedToken is returned when a compact JWS cannot be parsed into a
// Forgeable Token.
var ErrMalformedToken = errors.New("malformed token")

// ErrCryptographicFailure is returned when signing or key import fails.
var ErrCryptographicFailure = errors.New("cryptographic failure")

// NoneAlgorithm is the literal algorithm name that produces an unsigned JWT.
const NoneAlgorithm = "none"

// Token is a Forgeable Token: a mutable header map, a mutable claims map,
// and an opaque signature segment. It is created by Parse or Create and is
// owned exclusively by its caller.
type Token struct {
	Header    map[string]any
	Claims    map[string]any
	Signature string // base64url, verbatim, opaque until re-signed
}

// Create builds a fresh Token from the given header and claims. The caller
// is responsible for ensuring header contains an "alg" entry before Emit.
func Create(header, claims map[string]any) *Token {
	h := make(map[string]any, len(header))
	for k, v := range header {
		h[k] = v
	}
	c := make(map[string]any, len(claims))
	for k, v := range claims {
		c[k] = v
	}
	return &Token{Header: h, Claims: c}
}

// Parse decodes a compact-serialised JWS of exactly three dot-separated
// segments into a Token. The signature segment is kept verbatim until the
// caller explicitly re-signs.
func Parse(compact string) (*Token, error) {
	segments := strings.Split(compact, ".")
	if len(segments) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedToken, len(segments))
	}

	header, err := decodeSegment(segments[0])
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedToken, err)
	}
	claims, err := decodeSegment(segments[1])
	if err != nil {
		return nil, fmt.Errorf("%w: claims: %v", ErrMalformedToken, err)
	}

	if _, ok := header["alg"].(string); !ok {
		return nil, fmt.Errorf("%w: header missing string alg", ErrMalformedToken)
	}

	return &Token{Header: header, Claims: claims, Signature: segments[2]}, nil
}

func decodeSegment(segment string) (map[string]any, error) {
	raw, err := Base64URLDecode(segment)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Alg returns the token's current header algorithm, or "" if absent/non-string.
func (t *Token) Alg() string {
	alg, _ := t.Header["alg"].(string)
	return alg
}

// Emit serialises the token back to compact form: three base64url segments
// joined by dots. When alg is "none" the third segment is empty (the
// trailing dot is retained).
func (t *Token) Emit() (string, error) {
	headerJSON, err := json.Marshal(t.Header)
	if err != nil {
		return "", fmt.Errorf("marshal header: %w", err)
	}
	claimsJSON, err := json.Marshal(t.Claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}

	headerSeg := Base64URLEncode(headerJSON)
	claimsSeg := Base64URLEncode(claimsJSON)

	sig := t.Signature
	if t.Alg() == NoneAlgorithm {
		sig = ""
	}

	return headerSeg + "." + claimsSeg + "." + sig, nil
}

// SigningInput returns the bytes that get signed: base64url(header) + "." +
// base64url(claims).
func (t *Token) SigningInput() ([]byte, error) {
	headerJSON, err := json.Marshal(t.Header)
	if err != nil {
		return nil, fmt.Errorf("marshal header: %w", err)
	}
	claimsJSON, err := json.Marshal(t.Claims)
	if err != nil {
		return nil, fmt.Errorf("marshal claims: %w", err)
	}
	input := Base64URLEncode(headerJSON) + "." + Base64URLEncode(claimsJSON)
	return []byte(input), nil
}

// Sign re-signs the token with the given algorithm and key material,
// overwriting the header's alg and the signature segment.
//
//   - HS256/HS384/HS512: key must be []byte, raw HMAC secret octets.
//   - RS*/PS*/ES*: key must be a crypto.Signer (typically *rsa.PrivateKey or
//     *ecdsa.PrivateKey) or a PEM-encoded private key as []byte/string.
//   - "none": key is ignored, signature is cleared.
func (t *Token) Sign(alg string, key any) error {
	t.Header["alg"] = alg

	if alg == NoneAlgorithm {
		t.Signature = ""
		return nil
	}

	method := jwt.GetSigningMethod(alg)
	if method == nil {
		return fmt.Errorf("%w: unsupported algorithm %q", ErrCryptographicFailure, alg)
	}

	signingInput, err := t.SigningInput()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCryptographicFailure, err)
	}

	signKey, err := resolveSigningKey(alg, key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCryptographicFailure, err)
	}

	sig, err := method.Sign(signingInput, signKey)
	if err != nil {
		return fmt.Errorf("%w: sign: %v", ErrCryptographicFailure, err)
	}

	t.Signature = Base64URLEncode(sig)
	return nil
}

// SignWithIssuerKeyConfusion implements the key-confusion mischief: signing
// with HS256 using the issuer's RSA/ECDSA public key (in PEM form) as the
// raw HMAC secret. This is only meaningful against verifiers that fail to
// pin the expected algorithm family for a given key.
func (t *Token) SignWithIssuerKeyConfusion(publicKeyPEM string) error {
	logger.Debugw("jwtforge: signing with key confusion", "alg", "HS256")
	return t.Sign("HS256", []byte(publicKeyPEM))
}

func resolveSigningKey(alg string, key any) (any, error) {
	switch {
	case strings.HasPrefix(alg, "HS"):
		switch k := key.(type) {
		case []byte:
			return k, nil
		case string:
			return []byte(k), nil
		default:
			return nil, fmt.Errorf("HMAC algorithms require raw key bytes, got %T", key)
		}
	case strings.HasPrefix(alg, "RS"), strings.HasPrefix(alg, "PS"):
		return resolvePrivateKey(key, func(k crypto.Signer) (*rsa.PrivateKey, bool) {
			rk, ok := k.(*rsa.PrivateKey)
			return rk, ok
		})
	case strings.HasPrefix(alg, "ES"):
		return resolvePrivateKey(key, func(k crypto.Signer) (*ecdsa.PrivateKey, bool) {
			ek, ok := k.(*ecdsa.PrivateKey)
			return ek, ok
		})
	default:
		return nil, fmt.Errorf("unsupported algorithm family: %s", alg)
	}
}

func resolvePrivateKey[T crypto.Signer](key any, assert func(crypto.Signer) (T, bool)) (T, error) {
	var zero T
	switch k := key.(type) {
	case T:
		return k, nil
	case crypto.Signer:
		typed, ok := assert(k)
		if !ok {
			return zero, fmt.Errorf("key is %T, not the expected type", k)
		}
		return typed, nil
	case []byte:
		signer, err := parsePEMPrivateKey(k)
		if err != nil {
			return zero, err
		}
		typed, ok := assert(signer)
		if !ok {
			return zero, fmt.Errorf("PEM key is %T, not the expected type", signer)
		}
		return typed, nil
	case string:
		return resolvePrivateKey([]byte(k), assert)
	default:
		return zero, fmt.Errorf("unsupported key material type %T", key)
	}
}

func parsePEMPrivateKey(data []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("PKCS8 key of type %T does not implement crypto.Signer", key)
		}
		return signer, nil
	}

	return nil, errors.New("unrecognised private key encoding")
}
