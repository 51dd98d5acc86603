// Package interceptor implements the Response Interceptor: HTTP middleware
// that buffers the embedded OIDC provider's response, routes token and
// discovery/JWKS bodies through the Mischief Engine when a session header
// is present, and replays the (possibly mutated) response to the client.
package interceptor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loki-oidc/loki-splice/pkg/jwtforge"
	"github.com/loki-oidc/loki-splice/pkg/logger"
	"github.com/loki-oidc/loki-splice/pkg/mischief"
	"github.com/loki-oidc/loki-splice/pkg/plugins"
)

// SessionHeader is the well-known, case-insensitive header carrying the
// session identifier, per spec.md §4.F / §"Wire layer — Loki ingress".
const SessionHeader = "X-Loki-Session"

// PathClass is the interceptor's classification of a request path.
type PathClass string

// Recognised path classes.
const (
	PathToken     PathClass = "token"
	PathDiscovery PathClass = "discovery"
	PathJWKS      PathClass = "jwks"
	PathAdmin     PathClass = "admin"
	PathOther     PathClass = "other"
)

// ClassifyPath maps a request path to one of the five recognised classes.
// Matching is prefix/suffix based, tolerant of a trailing slash.
func ClassifyPath(path string) PathClass {
	path = strings.TrimSuffix(path, "/")
	switch {
	case path == "/token" || strings.HasSuffix(path, "/oauth/token") || strings.HasSuffix(path, "/token"):
		return PathToken
	case strings.HasSuffix(path, "/.well-known/openid-configuration"):
		return PathDiscovery
	case strings.HasSuffix(path, "/jwks") || strings.HasSuffix(path, "/jwks.json") || strings.HasSuffix(path, "/.well-known/jwks.json"):
		return PathJWKS
	case strings.HasPrefix(path, "/admin"):
		return PathAdmin
	default:
		return PathOther
	}
}

// SessionLookup resolves a session header value into the engine-facing
// session policy, or false if unknown. Kept as an interface so the
// interceptor doesn't import pkg/session directly.
type SessionLookup interface {
	Lookup(id string) (mischief.SessionPolicy, bool)
}

// Engine is the narrow slice of the Mischief Engine the interceptor drives.
type Engine interface {
	ApplyToToken(ctx context.Context, sess mischief.SessionPolicy, requestID string, handle *jwtforge.Handle) error
	ApplyToResponse(ctx context.Context, sess mischief.SessionPolicy, requestID string, env plugins.ResponseEnvelope) error
	ApplyToDiscovery(ctx context.Context, sess mischief.SessionPolicy, requestID string, doc map[string]any) error
}

// Interceptor is the Response Interceptor middleware.
type Interceptor struct {
	sessions  SessionLookup
	engine    Engine
	keyCache  jwtforge.KeyResolver
	jwksURLFn func(*http.Request) string
}

// New constructs an Interceptor. jwksURLFn derives the issuer's JWKS URL
// from the incoming request (used for key-confusion's getPublicKey()); a
// nil value disables key-confusion support.
func New(sessions SessionLookup, engine Engine, keyCache jwtforge.KeyResolver, jwksURLFn func(*http.Request) string) *Interceptor {
	if jwksURLFn == nil {
		jwksURLFn = func(*http.Request) string { return "" }
	}
	return &Interceptor{sessions: sessions, engine: engine, keyCache: keyCache, jwksURLFn: jwksURLFn}
}

// buffer captures writeHead/setHeader/write/end calls from the wrapped
// handler instead of streaming them to the real client.
type buffer struct {
	http.ResponseWriter
	status int
	wrote  bool
	header http.Header
	body   *bytes.Buffer
}

func (b *buffer) Header() http.Header { return b.header }

func (b *buffer) WriteHeader(status int) {
	if !b.wrote {
		b.status = status
		b.wrote = true
	}
}

func (b *buffer) Write(data []byte) (int, error) {
	if !b.wrote {
		b.WriteHeader(http.StatusOK)
	}
	return b.body.Write(data)
}

// Middleware wraps next, buffering its response and, when a known session
// is attached and the path isn't classified "other", routing the body
// through the Mischief Engine before replaying it to the client.
func (ic *Interceptor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		class := ClassifyPath(r.URL.Path)
		sessionID := r.Header.Get(SessionHeader)

		sess, ok := ic.sessionFor(sessionID)
		if !ok || class == PathOther {
			next.ServeHTTP(w, r)
			return
		}

		buf := &buffer{
			ResponseWriter: w,
			header:         make(http.Header),
			body:           &bytes.Buffer{},
		}
		next.ServeHTTP(buf, r)
		if !buf.wrote {
			buf.WriteHeader(http.StatusOK)
		}

		ic.finalize(r.Context(), w, r, buf, class, sess)
	})
}

func (ic *Interceptor) sessionFor(id string) (mischief.SessionPolicy, bool) {
	if id == "" || ic.sessions == nil {
		return nil, false
	}
	return ic.sessions.Lookup(id)
}

// finalize mutates the buffered response per its path class and replays
// it (mutated or, on any failure, verbatim) to w.
func (ic *Interceptor) finalize(ctx context.Context, w http.ResponseWriter, r *http.Request, buf *buffer, class PathClass, sess mischief.SessionPolicy) {
	requestID := "req_" + uuid.NewString()
	original := append([]byte(nil), buf.body.Bytes()...)

	finalBody, err := ic.mutate(ctx, r, buf, class, sess, requestID)
	if err != nil {
		logger.Errorw("interceptor: mutation failed, emitting original body", "error", err, "path", r.URL.Path)
		finalBody = original
	}

	for k, vs := range buf.header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(finalBody)))
	w.WriteHeader(buf.status)
	_, _ = w.Write(finalBody)
}

func (ic *Interceptor) mutate(ctx context.Context, r *http.Request, buf *buffer, class PathClass, sess mischief.SessionPolicy, requestID string) ([]byte, error) {
	var doc map[string]any
	if buf.body.Len() > 0 {
		if err := json.Unmarshal(buf.body.Bytes(), &doc); err != nil {
			// Non-JSON body: pass through unmodified, not an error.
			return buf.body.Bytes(), nil
		}
	} else {
		doc = map[string]any{}
	}

	switch class {
	case PathToken:
		if err := ic.mutateTokenFields(ctx, doc, sess, requestID, r); err != nil {
			return nil, err
		}
	case PathDiscovery, PathJWKS:
		if err := ic.engine.ApplyToDiscovery(ctx, sess, requestID, doc); err != nil {
			return nil, err
		}
	case PathAdmin:
		// Admin surface bodies are not mutated.
	}

	env := &responseEnvelope{status: buf.status, headers: map[string]string{}, body: doc}
	if err := ic.engine.ApplyToResponse(ctx, sess, requestID, env); err != nil {
		return nil, err
	}
	buf.status = env.status
	for k, v := range env.headers {
		buf.header.Set(k, v)
	}

	out, err := json.Marshal(env.body)
	if err != nil {
		return nil, fmt.Errorf("interceptor: marshal mutated body: %w", err)
	}
	return out, nil
}

func (ic *Interceptor) mutateTokenFields(ctx context.Context, doc map[string]any, sess mischief.SessionPolicy, requestID string, r *http.Request) error {
	for _, field := range []string{"access_token", "id_token"} {
		raw, ok := doc[field].(string)
		if !ok || !strings.Contains(raw, ".") {
			continue
		}
		tok, err := jwtforge.Parse(raw)
		if err != nil {
			continue
		}
		handle := &jwtforge.Handle{Token: tok, IssuerJWKSURL: ic.jwksURLFn(r), KeyCache: ic.keyCache}
		if err := ic.engine.ApplyToToken(ctx, sess, requestID, handle); err != nil {
			return err
		}
		rebuilt, err := tok.Emit()
		if err != nil {
			return err
		}
		doc[field] = rebuilt
	}
	return nil
}

// responseEnvelope adapts the interceptor's local mutable state to
// plugins.ResponseEnvelope.
type responseEnvelope struct {
	status  int
	headers map[string]string
	body    any
}

func (e *responseEnvelope) Status() int                { return e.status }
func (e *responseEnvelope) SetStatus(s int)             { e.status = s }
func (e *responseEnvelope) Headers() map[string]string  { return e.headers }
func (e *responseEnvelope) Body() any                  { return e.body }
func (e *responseEnvelope) SetBody(b any)              { e.body = b }

func (e *responseEnvelope) Delay(ctx context.Context, ms int) error {
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
