package interceptor_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loki-oidc/loki-splice/pkg/interceptor"
	"github.com/loki-oidc/loki-splice/pkg/jwtforge"
	"github.com/loki-oidc/loki-splice/pkg/mischief"
	"github.com/loki-oidc/loki-splice/pkg/plugins"
)

type fakeSession struct{ id string }

func (f *fakeSession) NextMischief() []string  { return []string{"alg-none"} }
func (f *fakeSession) Summary() plugins.Session { return plugins.Session{ID: f.id, Mode: "explicit"} }

type fakeLookup struct {
	sessions map[string]mischief.SessionPolicy
}

func (f *fakeLookup) Lookup(id string) (mischief.SessionPolicy, bool) {
	s, ok := f.sessions[id]
	return s, ok
}

type fakeEngine struct {
	tokenCalls int
	discCalls  int
	respCalls  int
}

func (f *fakeEngine) ApplyToToken(_ context.Context, _ mischief.SessionPolicy, _ string, handle *jwtforge.Handle) error {
	f.tokenCalls++
	handle.Header()["alg"] = "none"
	handle.SetSignature("")
	return nil
}

func (f *fakeEngine) ApplyToResponse(_ context.Context, _ mischief.SessionPolicy, _ string, _ plugins.ResponseEnvelope) error {
	f.respCalls++
	return nil
}

func (f *fakeEngine) ApplyToDiscovery(_ context.Context, _ mischief.SessionPolicy, _ string, doc map[string]any) error {
	f.discCalls++
	doc["mutated"] = true
	return nil
}

func handlerReturningJSON(status int, body map[string]any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	})
}

func TestMiddleware_NoSessionHeaderPassesThrough(t *testing.T) {
	t.Parallel()
	engine := &fakeEngine{}
	ic := interceptor.New(&fakeLookup{sessions: map[string]mischief.SessionPolicy{}}, engine, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/token", nil)
	rec := httptest.NewRecorder()

	ic.Middleware(handlerReturningJSON(200, map[string]any{"access_token": "a.b.c"})).ServeHTTP(rec, req)

	assert.Equal(t, 0, engine.tokenCalls)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "a.b.c", body["access_token"])
}

func TestMiddleware_TokenPathRoutesAccessToken(t *testing.T) {
	t.Parallel()
	engine := &fakeEngine{}
	lookup := &fakeLookup{sessions: map[string]mischief.SessionPolicy{"sess_1": &fakeSession{id: "sess_1"}}}
	ic := interceptor.New(lookup, engine, nil, nil)

	header, _ := json.Marshal(map[string]any{"alg": "RS256"})
	claims, _ := json.Marshal(map[string]any{"sub": "u1"})
	compactToken := jwtforge.Base64URLEncode(header) + "." + jwtforge.Base64URLEncode(claims) + ".sig"

	req := httptest.NewRequest(http.MethodPost, "/token", nil)
	req.Header.Set(interceptor.SessionHeader, "sess_1")
	rec := httptest.NewRecorder()

	ic.Middleware(handlerReturningJSON(200, map[string]any{"access_token": compactToken})).ServeHTTP(rec, req)

	assert.Equal(t, 1, engine.tokenCalls)
	assert.Equal(t, 1, engine.respCalls)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	rebuilt, ok := body["access_token"].(string)
	require.True(t, ok)
	assert.NotEqual(t, compactToken, rebuilt)
	assert.Equal(t, strconv.Itoa(rec.Body.Len()), rec.Result().Header.Get("Content-Length"))
}

func TestMiddleware_DiscoveryPathMutatesDocument(t *testing.T) {
	t.Parallel()
	engine := &fakeEngine{}
	lookup := &fakeLookup{sessions: map[string]mischief.SessionPolicy{"sess_2": &fakeSession{id: "sess_2"}}}
	ic := interceptor.New(lookup, engine, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/openid-configuration", nil)
	req.Header.Set(interceptor.SessionHeader, "sess_2")
	rec := httptest.NewRecorder()

	ic.Middleware(handlerReturningJSON(200, map[string]any{"issuer": "https://loki.example.com"})).ServeHTTP(rec, req)

	assert.Equal(t, 1, engine.discCalls)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["mutated"])
}

func TestMiddleware_NonJSONBodyPassesThroughUnmodified(t *testing.T) {
	t.Parallel()
	engine := &fakeEngine{}
	lookup := &fakeLookup{sessions: map[string]mischief.SessionPolicy{"sess_3": &fakeSession{id: "sess_3"}}}
	ic := interceptor.New(lookup, engine, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/token", nil)
	req.Header.Set(interceptor.SessionHeader, "sess_3")
	rec := httptest.NewRecorder()

	plain := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write([]byte("not json"))
	})
	ic.Middleware(plain).ServeHTTP(rec, req)

	assert.Equal(t, "not json", rec.Body.String())
	assert.Equal(t, 0, engine.tokenCalls)
}

func TestClassifyPath(t *testing.T) {
	t.Parallel()
	cases := map[string]interceptor.PathClass{
		"/token":                                interceptor.PathToken,
		"/oauth/token":                          interceptor.PathToken,
		"/.well-known/openid-configuration":     interceptor.PathDiscovery,
		"/jwks.json":                            interceptor.PathJWKS,
		"/.well-known/jwks.json":                interceptor.PathJWKS,
		"/admin/sessions":                       interceptor.PathAdmin,
		"/userinfo":                             interceptor.PathOther,
	}
	for path, want := range cases {
		assert.Equal(t, want, interceptor.ClassifyPath(path), path)
	}
}
