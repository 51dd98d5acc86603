// Package plugins defines the Plugin Descriptor and the tagged Mischief
// Context variants that the mandatory fault catalogue (pkg/plugins/catalogue)
// and the Mischief Engine (pkg/mischief) share.
package plugins

import "context"

// Severity is the declared impact of a plugin's mischief.
type Severity string

// Recognised severities, in descending order of impact.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Phase is the point in the OIDC/OAuth exchange a plugin fires at.
type Phase string

// Recognised phases.
const (
	PhaseTokenSigning Phase = "token-signing"
	PhaseTokenClaims  Phase = "token-claims"
	PhaseResponse     Phase = "response"
	PhaseDiscovery    Phase = "discovery"
)

// SpecRef documents the specification this plugin violates.
type SpecRef struct {
	RFC         string // optional, e.g. "RFC 7519 §4.1.4"
	OIDC        string // optional, e.g. "OIDC Core 1.0 §2"
	CWE         string // optional, e.g. "CWE-347"
	Description string // required: human-readable requirement/violation summary
}

// Session is the minimal session summary a plugin's context carries: enough
// to label ledger entries without coupling plugins to the session package.
type Session struct {
	ID   string
	Name string // optional
	Mode string
}

// Result is what an apply function reports back to the engine.
type Result struct {
	Applied  bool
	Mutation string         // human-readable summary, goes into the ledger's violation field
	Evidence map[string]any // free-form; must include a mutation summary when Applied
}

// TokenHandle is the mutable view of a Forgeable Token a token-phase plugin
// receives. It deliberately does not expose the concrete jwtforge.Token type
// so plugins only depend on this package.
type TokenHandle interface {
	Header() map[string]any
	Claims() map[string]any
	Signature() string
	SetSignature(string)
	// Sign re-signs the token with alg/key, per jwtforge.Token.Sign semantics.
	Sign(alg string, key any) error
	// PublicKeyPEM fetches (and caches) the issuer's public key in PEM form,
	// for key-confusion attacks.
	PublicKeyPEM(ctx context.Context) (string, error)
}

// ResponseEnvelope is the mutable view of a buffered HTTP response a
// response-phase or discovery-phase plugin receives.
type ResponseEnvelope interface {
	Status() int
	SetStatus(int)
	Headers() map[string]string
	Body() any
	SetBody(any)
	// Delay suspends the current request handling goroutine for d
	// milliseconds, honouring ctx cancellation.
	Delay(ctx context.Context, ms int) error
}

// Context is implemented by TokenContext, ResponseContext, and
// DiscoveryContext. Plugins type-switch on it (or declare a Phase and
// receive only the matching variant from the engine).
type Context interface {
	Phase() Phase
	Session() Session
	Config() map[string]any
}

// TokenContext is handed to token-signing and token-claims phase plugins.
type TokenContext struct {
	PhaseValue   Phase
	SessionValue Session
	ConfigValue  map[string]any
	Token        TokenHandle
}

func (c TokenContext) Phase() Phase           { return c.PhaseValue }
func (c TokenContext) Session() Session       { return c.SessionValue }
func (c TokenContext) Config() map[string]any { return c.ConfigValue }

// ResponseContext is handed to response-phase plugins.
type ResponseContext struct {
	SessionValue Session
	ConfigValue  map[string]any
	Response     ResponseEnvelope
	Ctx          context.Context
}

func (c ResponseContext) Phase() Phase           { return PhaseResponse }
func (c ResponseContext) Session() Session       { return c.SessionValue }
func (c ResponseContext) Config() map[string]any { return c.ConfigValue }

// DiscoveryContext is handed to discovery-phase plugins (discovery and
// JWKS responses share this variant, per spec.md §4.E).
type DiscoveryContext struct {
	SessionValue Session
	ConfigValue  map[string]any
	Document     map[string]any
}

func (c DiscoveryContext) Phase() Phase           { return PhaseDiscovery }
func (c DiscoveryContext) Session() Session       { return c.SessionValue }
func (c DiscoveryContext) Config() map[string]any { return c.ConfigValue }

// ApplyFunc is a plugin's mutation function.
type ApplyFunc func(ctx context.Context, mischief Context) Result

// Descriptor is a plugin's immutable identity, metadata, and behavior.
type Descriptor struct {
	ID          string
	Name        string
	Description string
	Severity    Severity
	Phase       Phase
	Spec        SpecRef
	Apply       ApplyFunc
}
