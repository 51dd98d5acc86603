// Package mischief implements the Mischief Engine: the four phase-targeted
// entry points that resolve a session's candidate plugin ids against the
// registry, build the phase-appropriate context, execute plugins
// sequentially, and record every applied result to the ledger.
package mischief

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/loki-oidc/loki-splice/pkg/jwtforge"
	"github.com/loki-oidc/loki-splice/pkg/ledger"
	"github.com/loki-oidc/loki-splice/pkg/logger"
	"github.com/loki-oidc/loki-splice/pkg/plugins"
)

// SessionPolicy is the narrow slice of the Session Model the engine needs:
// the candidate plugin ids for the next request, plus a summary for
// context construction.
type SessionPolicy interface {
	NextMischief() []string
	Summary() plugins.Session
	// ConfigFor returns the per-plugin configuration map for id, per
	// spec.md §4.B; always non-nil.
	ConfigFor(id string) map[string]any
}

// Resolver is the narrow slice of the Plugin Registry the engine needs.
type Resolver interface {
	Lookup(id string) (plugins.Descriptor, error)
}

// Sink receives one call per applied plugin result, per spec.md §4.E.
type Sink interface {
	SaveEntry(e ledger.Entry) error
}

// Engine is the Mischief Engine.
type Engine struct {
	registry Resolver
	sink     Sink
}

// New constructs an Engine backed by the given registry and ledger sink.
// sink may be nil, in which case applied results are computed but not
// persisted (used by callers that only need the mutated value, e.g. tests).
func New(registry Resolver, sink Sink) *Engine {
	return &Engine{registry: registry, sink: sink}
}

// resolve looks up a session's candidate ids in the registry, dropping
// unknown ids and any whose phase doesn't match wantPhase (token-signing
// and token-claims share the token invocation point).
func (e *Engine) resolve(sess SessionPolicy, wantPhases map[plugins.Phase]bool) []plugins.Descriptor {
	ids := sess.NextMischief()
	out := make([]plugins.Descriptor, 0, len(ids))
	for _, id := range ids {
		d, err := e.registry.Lookup(id)
		if err != nil {
			logger.Debugw("mischief: dropping unknown plugin id", "id", id)
			continue
		}
		if !wantPhases[d.Phase] {
			continue
		}
		out = append(out, d)
	}
	return out
}

// ApplyToToken runs every resolved token-signing/token-claims plugin
// against handle in session order, recording a ledger entry for each
// applied result. requestID correlates all entries produced by this call.
func (e *Engine) ApplyToToken(ctx context.Context, sess SessionPolicy, requestID string, handle *jwtforge.Handle) error {
	descs := e.resolve(sess, map[plugins.Phase]bool{
		plugins.PhaseTokenSigning: true,
		plugins.PhaseTokenClaims:  true,
	})
	return e.run(ctx, sess, requestID, descs, func(d plugins.Descriptor) plugins.Context {
		return plugins.TokenContext{
			PhaseValue:   d.Phase,
			SessionValue: sess.Summary(),
			ConfigValue:  sess.ConfigFor(d.ID),
			Token:        handle,
		}
	})
}

// ApplyToResponse runs every resolved response-phase plugin against env.
func (e *Engine) ApplyToResponse(ctx context.Context, sess SessionPolicy, requestID string, env plugins.ResponseEnvelope) error {
	descs := e.resolve(sess, map[plugins.Phase]bool{plugins.PhaseResponse: true})
	return e.run(ctx, sess, requestID, descs, func(d plugins.Descriptor) plugins.Context {
		return plugins.ResponseContext{
			SessionValue: sess.Summary(),
			ConfigValue:  sess.ConfigFor(d.ID),
			Response:     env,
			Ctx:          ctx,
		}
	})
}

// ApplyToDiscovery runs every resolved discovery-phase plugin against doc.
// Used for both the discovery document and the JWKS document, which share
// the discovery phase per spec.md §4.E.
func (e *Engine) ApplyToDiscovery(ctx context.Context, sess SessionPolicy, requestID string, doc map[string]any) error {
	descs := e.resolve(sess, map[plugins.Phase]bool{plugins.PhaseDiscovery: true})
	return e.run(ctx, sess, requestID, descs, func(d plugins.Descriptor) plugins.Context {
		return plugins.DiscoveryContext{
			SessionValue: sess.Summary(),
			ConfigValue:  sess.ConfigFor(d.ID),
			Document:     doc,
		}
	})
}

// ApplyToJWKS is an alias for ApplyToDiscovery: both share the discovery
// phase and context shape, per spec.md §4.E.
func (e *Engine) ApplyToJWKS(ctx context.Context, sess SessionPolicy, requestID string, doc map[string]any) error {
	return e.ApplyToDiscovery(ctx, sess, requestID, doc)
}

func (e *Engine) run(ctx context.Context, sess SessionPolicy, requestID string, descs []plugins.Descriptor, buildContext func(plugins.Descriptor) plugins.Context) error {
	summary := sess.Summary()
	for _, d := range descs {
		mc := buildContext(d)
		res := d.Apply(ctx, mc)
		if !res.Applied {
			continue
		}

		logger.Debugw("mischief: plugin applied", "id", d.ID, "session", summary.ID, "request", requestID)

		if e.sink == nil {
			continue
		}
		entry := ledger.Entry{
			ID:        "entry_" + uuid.NewString(),
			SessionID: summary.ID,
			RequestID: requestID,
			Timestamp: time.Now().UTC(),
			Plugin: ledger.PluginSnapshot{
				ID:       d.ID,
				Name:     d.Name,
				Severity: string(d.Severity),
			},
			Spec: ledger.SpecSnapshot{
				RFC:         d.Spec.RFC,
				OIDC:        d.Spec.OIDC,
				CWE:         d.Spec.CWE,
				Requirement: d.Description,
				Violation:   res.Mutation,
			},
			Evidence: res.Evidence,
		}
		if err := e.sink.SaveEntry(entry); err != nil {
			return err
		}
	}
	return nil
}
