// Package attacktest defines the Attack Test Catalogue's shared vocabulary:
// the three-phase setup/attack/verify procedure, the verdict it produces,
// and the small set of response predicates most verify functions share.
package attacktest

import (
	"context"
	"fmt"

	"github.com/loki-oidc/loki-splice/pkg/classifier"
	"github.com/loki-oidc/loki-splice/pkg/oauthclient"
)

// Severity is the declared impact of a failed test.
type Severity string

// Recognised severities.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Status is a test's final outcome.
type Status string

// Recognised statuses.
const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Verdict is what Verify produces and the runner records unchanged.
type Verdict struct {
	Status Status
	Reason string
}

// Passed builds a passing verdict.
func Passed(reason string) Verdict { return Verdict{Status: StatusPassed, Reason: reason} }

// Failed builds a failing verdict.
func Failed(reason string) Verdict { return Verdict{Status: StatusFailed, Reason: reason} }

// Skipped builds a skipped verdict.
func Skipped(reason string) Verdict { return Verdict{Status: StatusSkipped, Reason: reason} }

// Clients groups the three named OAuth test clients spec.md's configuration
// surface requires: alice, agent-a, agent-n.
type Clients struct {
	Alice  *oauthclient.Client
	AgentA *oauthclient.Client
	AgentN *oauthclient.Client
}

// Context is handed to every phase of a test.
type Context struct {
	Clients Clients
	Log     func(string)
}

func (c *Context) logf(format string, args ...any) {
	if c != nil && c.Log != nil {
		c.Log(fmt.Sprintf(format, args...))
	}
}

// Logf records a log line, retained by the runner only when verbose.
func (c *Context) Logf(format string, args ...any) { c.logf(format, args...) }

// SetupResult carries whatever a test's setup phase produced: free-form
// metadata extracted from JWTs or prior responses, plus an opaque value the
// attack phase can type-assert back to whatever setup built.
type SetupResult struct {
	Meta   map[string]any
	Opaque any
}

// NewSetupResult wraps opaque in a SetupResult with an empty metadata map.
func NewSetupResult(opaque any) *SetupResult {
	return &SetupResult{Meta: map[string]any{}, Opaque: opaque}
}

// Set records a metadata value under key.
func (s *SetupResult) Set(key string, v any) {
	if s.Meta == nil {
		s.Meta = map[string]any{}
	}
	s.Meta[key] = v
}

// Get retrieves a metadata value, reporting whether key was present.
func (s *SetupResult) Get(key string) (any, bool) {
	if s == nil || s.Meta == nil {
		return nil, false
	}
	v, ok := s.Meta[key]
	return v, ok
}

// Bool retrieves a boolean metadata value, defaulting to false if absent or
// of the wrong type.
func (s *SetupResult) Bool(key string) bool {
	v, ok := s.Get(key)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// String retrieves a string metadata value, defaulting to "" if absent.
func (s *SetupResult) String(key string) string {
	v, ok := s.Get(key)
	if !ok {
		return ""
	}
	str, _ := v.(string)
	return str
}

// AttackResponse wraps an oauthclient.Response with its computed classifier
// category, the piece every verify function decides against.
type AttackResponse struct {
	Response *oauthclient.Response
	Category classifier.Category
}

// NewAttackResponse classifies resp and wraps it.
func NewAttackResponse(resp *oauthclient.Response) *AttackResponse {
	return &AttackResponse{Response: resp, Category: classifier.Classify(resp.Status, bodyMap(resp))}
}

func bodyMap(resp *oauthclient.Response) map[string]any {
	if resp == nil {
		return nil
	}
	m, _ := resp.Body.(map[string]any)
	return m
}

// ErrorCode returns the OAuth "error" field of the response body, or "".
func (a *AttackResponse) ErrorCode() string {
	if a == nil {
		return ""
	}
	m := bodyMap(a.Response)
	if m == nil {
		return ""
	}
	code, _ := m["error"].(string)
	return code
}

// Field returns a string field from a JSON response body, or "".
func (a *AttackResponse) Field(name string) string {
	if a == nil {
		return ""
	}
	m := bodyMap(a.Response)
	if m == nil {
		return ""
	}
	v, _ := m[name].(string)
	return v
}

// IsSecurityRejection reports whether the response classifies as a security
// rejection (the expected outcome for most negative tests).
func (a *AttackResponse) IsSecurityRejection() bool {
	return a != nil && classifier.IsSecurityRejection(a.Category)
}

// IsInconclusive reports whether the response must be treated as skip:
// auth error, rate limit, server error, unsupported grant, or unknown status.
func (a *AttackResponse) IsInconclusive() bool {
	return a == nil || classifier.IsInconclusive(a.Category)
}

// IsSuccess reports whether the exchange succeeded (HTTP 2xx).
func (a *AttackResponse) IsSuccess() bool {
	return a != nil && a.Category == classifier.CategorySuccess
}

// Describe renders a short human-readable summary for verdict reasons.
func (a *AttackResponse) Describe() string {
	if a == nil || a.Response == nil {
		return "no response"
	}
	return classifier.DescribeResponse(a.Response.Status, bodyMap(a.Response), a.Category)
}

// ExpectRejection is the verify shape shared by nearly every negative test:
// an inconclusive response skips, a security rejection passes, and any
// other conclusive outcome (most commonly an unexpected 2xx) fails.
func ExpectRejection(resp *AttackResponse) Verdict {
	if resp.IsInconclusive() {
		return Skipped(resp.Describe())
	}
	if resp.IsSecurityRejection() {
		return Passed(resp.Describe())
	}
	return Failed("expected security rejection, got " + resp.Describe())
}

// SetupFunc prepares whatever state an attack needs (tokens obtained via
// legitimate prior exchanges, metadata extracted from their claims).
type SetupFunc func(ctx context.Context, tc *Context) (*SetupResult, error)

// AttackFunc performs the probe itself and returns the raw response.
type AttackFunc func(ctx context.Context, tc *Context, setup *SetupResult) (*AttackResponse, error)

// VerifyFunc decides pass/fail/skip from the attack's response and setup's
// metadata. It never returns an error: every decision is expressed as a verdict.
type VerifyFunc func(tc *Context, setup *SetupResult, resp *AttackResponse) Verdict

// Test is one entry of the Attack Test Catalogue.
type Test struct {
	ID          string
	Severity    Severity
	Description string
	// Spec names the RFC (and section, where relevant) the test's probe is
	// grounded on, e.g. "RFC 8693 §2.1: act claim identifies the acting party."
	Spec        string
	Setup       SetupFunc
	Attack      AttackFunc
	Verify      VerifyFunc
}
