// Package spliceconfig is splice-check's declarative configuration data
// model: a target authorization server, its three named OAuth clients, and
// output options, loaded from TOML with "${NAME}" environment-variable
// substitution. File and CLI-flag loading are left to callers; this
// package only turns an already-opened reader into a resolved Config.
package spliceconfig

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// RequiredClientNames are the three client identities every configuration
// document must declare, per spec.md §6 "splice-check configuration surface".
var RequiredClientNames = []string{"alice", "agent-a", "agent-n"}

// Target describes the authorization server under test.
type Target struct {
	TokenEndpoint      string        `toml:"token_endpoint"`
	JWKSEndpoint       string        `toml:"jwks_endpoint"`
	ExpectedIssuer     string        `toml:"expected_issuer"`
	AuthMethod         string        `toml:"auth_method"`
	RevokeEndpoint     string        `toml:"revoke_endpoint,omitempty"`
	IntrospectEndpoint string        `toml:"introspect_endpoint,omitempty"`
	Timeout            time.Duration `toml:"timeout,omitempty"`
}

// Client is one named OAuth client's credentials.
type Client struct {
	ID        string `toml:"id"`
	Secret    string `toml:"secret"`
	GrantType string `toml:"grant_type,omitempty"`
	Scope     string `toml:"scope,omitempty"`
}

// Output controls how a run's results are reported.
type Output struct {
	Verbose bool   `toml:"verbose,omitempty"`
	Format  string `toml:"format,omitempty"` // e.g. "text", "json"
	Path    string `toml:"path,omitempty"`   // "" means stdout
}

// Document is the raw shape of a configuration file, before validation.
type Document struct {
	Target  Target            `toml:"target"`
	Clients map[string]Client `toml:"clients"`
	Output  Output            `toml:"output"`
}

// Config is a Document that has passed validateRequiredClients.
type Config struct {
	Document
}

// envSubstitution matches "${NAME}" with NAME restricted to the shape of a
// POSIX environment variable name.
var envSubstitution = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ErrUnsetVariable is returned (wrapped) when a referenced variable is unset.
type ErrUnsetVariable struct {
	Name string
}

func (e *ErrUnsetVariable) Error() string {
	return fmt.Sprintf("spliceconfig: environment variable %q referenced in config is not set", e.Name)
}

// ErrMissingClient is returned (wrapped) when a required named client is absent.
type ErrMissingClient struct {
	Name string
}

func (e *ErrMissingClient) Error() string {
	return fmt.Sprintf("spliceconfig: configuration is missing required client %q", e.Name)
}

// Load reads a TOML document from r, resolves every "${NAME}" environment
// reference, unmarshals it, and validates that all required clients are
// present.
func Load(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("spliceconfig: read config: %w", err)
	}

	resolved, err := substituteEnv(raw, os.LookupEnv)
	if err != nil {
		return nil, err
	}

	var doc Document
	if err := toml.Unmarshal(resolved, &doc); err != nil {
		return nil, fmt.Errorf("spliceconfig: parse config: %w", err)
	}

	if err := validateRequiredClients(doc.Clients); err != nil {
		return nil, err
	}

	return &Config{Document: doc}, nil
}

// substituteEnv replaces every "${NAME}" occurrence in data using lookup,
// failing the whole load if any referenced variable is unset.
func substituteEnv(data []byte, lookup func(string) (string, bool)) ([]byte, error) {
	var outerErr error
	out := envSubstitution.ReplaceAllFunc(data, func(match []byte) []byte {
		if outerErr != nil {
			return match
		}
		name := string(envSubstitution.FindSubmatch(match)[1])
		value, ok := lookup(name)
		if !ok {
			outerErr = &ErrUnsetVariable{Name: name}
			return match
		}
		return []byte(value)
	})
	if outerErr != nil {
		return nil, outerErr
	}
	return out, nil
}

// validateRequiredClients ensures every entry of RequiredClientNames is present.
func validateRequiredClients(clients map[string]Client) error {
	for _, name := range RequiredClientNames {
		if _, ok := clients[name]; !ok {
			return &ErrMissingClient{Name: name}
		}
	}
	return nil
}

// String renders cfg with every client secret redacted, safe for logging.
func (c *Config) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "spliceconfig.Config{Target: %s, Clients: [", c.Target.TokenEndpoint)
	for i, name := range RequiredClientNames {
		if i > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "%s(id=%s, secret=[REDACTED])", name, c.Clients[name].ID)
	}
	buf.WriteString("]}")
	return buf.String()
}
