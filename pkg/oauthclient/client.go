// Package oauthclient implements the OAuth Test Client: a strongly-typed
// surface over the token, revoke, and introspect endpoints, with
// configurable client authentication, used to probe a target authorization
// server's RFC 8693 token-exchange conformance.
package oauthclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/loki-oidc/loki-splice/pkg/logger"
)

// Grant type identifiers the client knows how to build requests for.
const (
	GrantClientCredentials = "client_credentials"
	GrantRefreshToken      = "refresh_token"
	//nolint:gosec // G101: RFC 8693 URN identifier, not a credential
	GrantTokenExchange = "urn:ietf:params:oauth:grant-type:token-exchange"
)

// RFC 8693 §3 token-type identifier URNs.
const (
	TokenTypeAccessToken  = "urn:ietf:params:oauth:token-type:access_token"
	TokenTypeRefreshToken = "urn:ietf:params:oauth:token-type:refresh_token"
	TokenTypeIDToken      = "urn:ietf:params:oauth:token-type:id_token"
	TokenTypeJWT          = "urn:ietf:params:oauth:token-type:jwt"
)

// AuthMethod is a client authentication method, RFC 6749 §2.3.1.
type AuthMethod string

// Recognised authentication methods.
const (
	AuthClientSecretBasic AuthMethod = "client_secret_basic"
	AuthClientSecretPost  AuthMethod = "client_secret_post"
)

// defaultTimeout is applied when Config.Timeout is zero.
const defaultTimeout = 30 * time.Second

const redactedPlaceholder = "[REDACTED]"

// ErrTimeout is returned when a request exceeds its configured timeout.
var ErrTimeout = errors.New("oauthclient: request timed out")

// Config describes a single OAuth target and the client credentials to
// authenticate against it.
type Config struct {
	TokenEndpoint      string
	RevokeEndpoint     string
	IntrospectEndpoint string
	ClientID           string
	ClientSecret       string
	AuthMethod         AuthMethod
	Timeout            time.Duration
	HTTPClient         *http.Client
}

func (c Config) String() string {
	secret := redactedPlaceholder
	if c.ClientSecret == "" {
		secret = "<empty>"
	}
	return fmt.Sprintf("oauthclient.Config{ClientID: %s, ClientSecret: %s, AuthMethod: %s}", c.ClientID, secret, c.AuthMethod)
}

// Response is what every endpoint call returns to test code: the raw
// status, the parsed body (map for JSON, string otherwise), a lower-cased
// header map, and the measured round-trip duration.
type Response struct {
	Status   int
	Body     any // map[string]any or string
	Headers  map[string][]string
	Duration time.Duration
}

// Client is the OAuth Test Client.
type Client struct {
	cfg    Config
	client *http.Client
}

// New constructs a Client. A zero Config.Timeout defaults to 30s.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{cfg: cfg, client: httpClient}
}

// multiValue is either a single value or a list; Token() emits one form
// field per element when a list is given, per spec.md §4.H's audience/
// resource plurality rule.
type multiValue struct {
	single string
	multi  []string
}

// One builds a multiValue carrying a single form value.
func One(v string) multiValue { return multiValue{single: v} }

// Many builds a multiValue that appears once per element in the request.
func Many(vs ...string) multiValue { return multiValue{multi: vs} }

func (v multiValue) empty() bool { return v.single == "" && len(v.multi) == 0 }

func (v multiValue) addTo(form url.Values, key string) {
	if len(v.multi) > 0 {
		for _, val := range v.multi {
			form.Add(key, val)
		}
		return
	}
	if v.single != "" {
		form.Set(key, v.single)
	}
}

// TokenRequest is the request surface for the token endpoint, covering
// client_credentials, refresh_token, and the RFC 8693 token-exchange grant.
type TokenRequest struct {
	GrantType    string
	RefreshToken string
	Scope        string

	// Token-exchange fields, RFC 8693.
	SubjectToken       string
	SubjectTokenType   string
	ActorToken         string
	ActorTokenType     string
	RequestedTokenType string
	Audience           multiValue
	Resource           multiValue

	// SkipClientAuth sends the request with zero client authentication,
	// used by the "raw" token-exchange probe.
	SkipClientAuth bool
}

// Token performs a POST to the configured token endpoint with req's form
// fields, authenticating per the client's configured AuthMethod unless
// req.SkipClientAuth is set.
func (c *Client) Token(ctx context.Context, req TokenRequest) (*Response, error) {
	form := url.Values{}
	form.Set("grant_type", req.GrantType)
	if req.RefreshToken != "" {
		form.Set("refresh_token", req.RefreshToken)
	}
	if req.Scope != "" {
		form.Set("scope", req.Scope)
	}
	if req.SubjectToken != "" {
		form.Set("subject_token", req.SubjectToken)
	}
	if req.SubjectTokenType != "" {
		form.Set("subject_token_type", req.SubjectTokenType)
	}
	if req.ActorToken != "" {
		form.Set("actor_token", req.ActorToken)
	}
	if req.ActorTokenType != "" {
		form.Set("actor_token_type", req.ActorTokenType)
	}
	if req.RequestedTokenType != "" {
		form.Set("requested_token_type", req.RequestedTokenType)
	}
	if !req.Audience.empty() {
		req.Audience.addTo(form, "audience")
	}
	if !req.Resource.empty() {
		req.Resource.addTo(form, "resource")
	}

	return c.do(ctx, c.cfg.TokenEndpoint, form, req.SkipClientAuth)
}

// Revoke performs a POST to the configured revocation endpoint.
func (c *Client) Revoke(ctx context.Context, token, tokenTypeHint string) (*Response, error) {
	form := url.Values{}
	form.Set("token", token)
	if tokenTypeHint != "" {
		form.Set("token_type_hint", tokenTypeHint)
	}
	return c.do(ctx, c.cfg.RevokeEndpoint, form, false)
}

// Introspect performs a POST to the configured introspection endpoint.
func (c *Client) Introspect(ctx context.Context, token, tokenTypeHint string) (*Response, error) {
	form := url.Values{}
	form.Set("token", token)
	if tokenTypeHint != "" {
		form.Set("token_type_hint", tokenTypeHint)
	}
	return c.do(ctx, c.cfg.IntrospectEndpoint, form, false)
}

func (c *Client) do(ctx context.Context, endpoint string, form url.Values, skipClientAuth bool) (*Response, error) {
	encoded := form.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("oauthclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Content-Length", strconv.Itoa(len(encoded)))

	if !skipClientAuth {
		c.authenticate(req, form)
	}

	logger.Debugw("oauthclient: sending request", "endpoint", endpoint, "skip_client_auth", skipClientAuth)

	start := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		var urlErr *url.Error
		if ctx.Err() != nil || (errors.As(err, &urlErr) && urlErr.Timeout()) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("oauthclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("oauthclient: read response body: %w", err)
	}

	return &Response{
		Status:   resp.StatusCode,
		Body:     parseBody(resp.Header.Get("Content-Type"), raw),
		Headers:  lowerCaseHeaders(resp.Header),
		Duration: duration,
	}, nil
}

// authenticate adds client credentials to req per the client's configured
// AuthMethod. client_secret_basic is the default when unset, matching
// RFC 6749 §2.3.1's implicit preference.
func (c *Client) authenticate(req *http.Request, form url.Values) {
	switch c.cfg.AuthMethod {
	case AuthClientSecretPost:
		form.Set("client_id", c.cfg.ClientID)
		form.Set("client_secret", c.cfg.ClientSecret)
		encoded := form.Encode()
		req.Body = io.NopCloser(strings.NewReader(encoded))
		req.ContentLength = int64(len(encoded))
		req.Header.Set("Content-Length", strconv.Itoa(len(encoded)))
	default: // AuthClientSecretBasic
		req.SetBasicAuth(url.QueryEscape(c.cfg.ClientID), url.QueryEscape(c.cfg.ClientSecret))
	}
}

func parseBody(contentType string, raw []byte) any {
	if strings.Contains(contentType, "json") {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err == nil {
			return m
		}
	}
	return string(raw)
}

func lowerCaseHeaders(h http.Header) map[string][]string {
	out := make(map[string][]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = v
	}
	return out
}
