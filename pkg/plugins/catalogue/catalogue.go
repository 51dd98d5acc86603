package catalogue

import "github.com/loki-oidc/loki-splice/pkg/plugins"

// All returns the fixed, mandatory fault catalogue spec.md §4.B requires the
// Mischief Engine to ship, in phase order (token-signing, token-claims,
// response, discovery). Callers load this once into the Plugin Registry at
// startup; nothing here depends on runtime state.
func All() []plugins.Descriptor {
	out := make([]plugins.Descriptor, 0, len(TokenSigningPlugins)+len(TokenClaimsPlugins)+len(ResponsePlugins)+len(DiscoveryPlugins))
	out = append(out, TokenSigningPlugins...)
	out = append(out, TokenClaimsPlugins...)
	out = append(out, ResponsePlugins...)
	out = append(out, DiscoveryPlugins...)
	return out
}
