package mischief_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loki-oidc/loki-splice/pkg/jwtforge"
	"github.com/loki-oidc/loki-splice/pkg/ledger"
	"github.com/loki-oidc/loki-splice/pkg/mischief"
	"github.com/loki-oidc/loki-splice/pkg/plugins"
	"github.com/loki-oidc/loki-splice/pkg/plugins/catalogue"
	"github.com/loki-oidc/loki-splice/pkg/pluginregistry"
)

type fakeSession struct {
	ids     []string
	summary plugins.Session
	configs map[string]map[string]any
}

func (f *fakeSession) NextMischief() []string   { return f.ids }
func (f *fakeSession) Summary() plugins.Session { return f.summary }
func (f *fakeSession) ConfigFor(id string) map[string]any {
	if cfg, ok := f.configs[id]; ok {
		return cfg
	}
	return map[string]any{}
}

type fakeSink struct {
	entries []ledger.Entry
}

func (f *fakeSink) SaveEntry(e ledger.Entry) error {
	f.entries = append(f.entries, e)
	return nil
}

func newRegistry(t *testing.T) *pluginregistry.Registry {
	t.Helper()
	reg := pluginregistry.New(nil)
	for _, d := range catalogue.All() {
		require.NoError(t, reg.Register(d))
	}
	return reg
}

func TestApplyToToken_RecordsLedgerEntryForAppliedPlugin(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t)
	sink := &fakeSink{}
	engine := mischief.New(reg, sink)

	tok := jwtforge.Create(map[string]any{"alg": "RS256", "typ": "JWT"}, map[string]any{"sub": "u1"})
	require.NoError(t, tok.Sign("HS256", []byte("secret")))
	handle := &jwtforge.Handle{Token: tok}

	sess := &fakeSession{ids: []string{"alg-none"}, summary: plugins.Session{ID: "sess_1", Mode: "explicit"}}

	require.NoError(t, engine.ApplyToToken(context.Background(), sess, "req_1", handle))

	assert.Equal(t, "none", tok.Header["alg"])
	require.Len(t, sink.entries, 1)
	assert.Equal(t, "alg-none", sink.entries[0].Plugin.ID)
	assert.Equal(t, "sess_1", sink.entries[0].SessionID)
	assert.Equal(t, "req_1", sink.entries[0].RequestID)
}

func TestApplyToToken_DropsUnknownIDs(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t)
	sink := &fakeSink{}
	engine := mischief.New(reg, sink)

	tok := jwtforge.Create(map[string]any{"alg": "RS256"}, map[string]any{})
	handle := &jwtforge.Handle{Token: tok}
	sess := &fakeSession{ids: []string{"does-not-exist"}, summary: plugins.Session{ID: "sess_2"}}

	require.NoError(t, engine.ApplyToToken(context.Background(), sess, "req_1", handle))
	assert.Empty(t, sink.entries)
}

func TestApplyToToken_SkipsWrongPhasePlugins(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t)
	sink := &fakeSink{}
	engine := mischief.New(reg, sink)

	tok := jwtforge.Create(map[string]any{"alg": "RS256"}, map[string]any{})
	handle := &jwtforge.Handle{Token: tok}
	sess := &fakeSession{ids: []string{"latency-injection"}, summary: plugins.Session{ID: "sess_3"}}

	require.NoError(t, engine.ApplyToToken(context.Background(), sess, "req_1", handle))
	assert.Empty(t, sink.entries)
}

func TestApplyToDiscovery_MutatesDocumentAndRecords(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t)
	sink := &fakeSink{}
	engine := mischief.New(reg, sink)

	doc := map[string]any{"token_endpoint": "https://good.example.com/token"}
	sess := &fakeSession{
		ids:     []string{"discovery-confusion"},
		summary: plugins.Session{ID: "sess_4"},
		configs: map[string]map[string]any{"discovery-confusion": {"mode": "malicious-token"}},
	}

	require.NoError(t, engine.ApplyToDiscovery(context.Background(), sess, "req_2", doc))

	assert.NotEqual(t, "https://good.example.com/token", doc["token_endpoint"])
	require.Len(t, sink.entries, 1)
}

func TestApplyToToken_ThreadsPerPluginConfig(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t)
	sink := &fakeSink{}
	engine := mischief.New(reg, sink)

	tok := jwtforge.Create(map[string]any{"alg": "RS256"}, map[string]any{})
	handle := &jwtforge.Handle{Token: tok}
	sess := &fakeSession{
		ids:     []string{"kid-manipulation"},
		summary: plugins.Session{ID: "sess_6"},
		configs: map[string]map[string]any{"kid-manipulation": {"mode": "sql"}},
	}

	require.NoError(t, engine.ApplyToToken(context.Background(), sess, "req_1", handle))

	assert.Equal(t, "' OR '1'='1", tok.Header["kid"])
	require.Len(t, sink.entries, 1)
	assert.Contains(t, sink.entries[0].Spec.Violation, "sql")
}

func TestApplyToToken_NilSinkStillMutates(t *testing.T) {
	t.Parallel()
	reg := newRegistry(t)
	engine := mischief.New(reg, nil)

	tok := jwtforge.Create(map[string]any{"alg": "RS256"}, map[string]any{})
	handle := &jwtforge.Handle{Token: tok}
	sess := &fakeSession{ids: []string{"alg-none"}, summary: plugins.Session{ID: "sess_5"}}

	require.NoError(t, engine.ApplyToToken(context.Background(), sess, "req_1", handle))
	assert.Equal(t, "none", tok.Header["alg"])
}
