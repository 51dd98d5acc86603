// Package catalogue is the static set of named fault modules spec.md §4.B
// requires the engine to reproduce, grouped by phase.
package catalogue

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/loki-oidc/loki-splice/pkg/plugins"
)

// mode reads the "mode" string out of a plugin's per-invocation config,
// falling back to def when absent or of the wrong type.
func mode(cfg map[string]any, def string) string {
	if v, ok := cfg["mode"].(string); ok && v != "" {
		return v
	}
	return def
}

// configString reads an arbitrary string key from config, with a default.
func configString(cfg map[string]any, key, def string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return def
}

// configInt reads an arbitrary int-ish key from config, with a default.
func configInt(cfg map[string]any, key string, def int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// randomHex returns n random hex-encoded bytes, used where a plugin needs a
// fresh, unpredictable value (e.g. nonce-bypass's "mismatch" mode).
func randomHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func unixNow() int64 { return time.Now().Unix() }

// result is a small constructor to keep plugin bodies terse.
func result(applied bool, mutation string, evidence map[string]any) plugins.Result {
	if evidence == nil {
		evidence = map[string]any{}
	}
	evidence["mutation"] = mutation
	return plugins.Result{Applied: applied, Mutation: mutation, Evidence: evidence}
}

func notApplied() plugins.Result {
	return plugins.Result{Applied: false}
}
