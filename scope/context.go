// Package scope builds the values handler code runs against: a fresh
// Context per invocation and one Globals per process.
package scope

import (
	"fmt"
	"maps"
	"net/url"
	"strings"
	"sync"
)

const (
	EnvDomainName = "DOMAIN_NAME"
	EnvPath       = "PATH"
	EnvAccountSID = "ACCOUNT_SID"
	EnvAuthToken  = "AUTH_TOKEN"

	DefaultAPIBaseURL = "https://api.twilio.com"

	getClientCallSite = "context.getClient()"
)

// Config is the resolved host configuration a handler sees. It crosses the
// process boundary in isolated mode, so it stays plain data.
type Config struct {
	BaseURL    string            `json:"baseUrl"`
	Env        map[string]string `json:"env"`
	APIBaseURL string            `json:"apiBaseUrl,omitempty"`
	Registry   Registry          `json:"registry"`
}

func (c Config) apiBaseURL() string {
	if c.APIBaseURL != "" {
		return strings.TrimRight(c.APIBaseURL, "/")
	}
	return DefaultAPIBaseURL
}

// Context is the per-invocation value passed to a handler. It must not be
// shared between invocations.
type Context struct {
	cfg  Config
	env  map[string]string
	path string

	clientOnce sync.Once
	client     *Client
	clientErr  error
}

// NewContext merges the configured environment with DOMAIN_NAME and PATH.
// Values already present in the environment win over computed ones.
func NewContext(cfg Config, requestPath string) *Context {
	env := make(map[string]string, len(cfg.Env)+2)
	if domain := domainName(cfg.BaseURL); domain != "" {
		env[EnvDomainName] = domain
	}
	env[EnvPath] = requestPath
	maps.Copy(env, cfg.Env)

	return &Context{cfg: cfg, env: env, path: requestPath}
}

func domainName(baseURL string) string {
	if baseURL == "" {
		return ""
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(baseURL, "https://"), "http://"), "/")
	}
	return u.Host
}

// Env returns a copy of the invocation environment.
func (c *Context) Env() map[string]string {
	return maps.Clone(c.env)
}

// Get returns one environment value.
func (c *Context) Get(key string) string {
	return c.env[key]
}

// Path is the request path that matched the function.
func (c *Context) Path() string {
	return c.path
}

// Client validates the account credentials on first use and returns an API
// client. Invalid credentials yield a *CredentialError.
func (c *Context) Client() (*Client, error) {
	c.clientOnce.Do(func() {
		if err := ValidateCredentials(c.env, getClientCallSite); err != nil {
			c.clientErr = err
			return
		}
		c.client = NewClient(c.env[EnvAccountSID], c.env[EnvAuthToken], c.cfg.apiBaseURL())
	})
	return c.client, c.clientErr
}

// CredentialError reports a missing or malformed account credential.
type CredentialError struct {
	CallSite string
	Reason   string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("%s was called but %s. Make sure ACCOUNT_SID and AUTH_TOKEN are set in your environment (.env file)", e.CallSite, e.Reason)
}

// ErrorName is the name the error carries when rendered for a client.
func (e *CredentialError) ErrorName() string {
	return "CredentialError"
}

// ValidateCredentials checks ACCOUNT_SID and AUTH_TOKEN in env.
func ValidateCredentials(env map[string]string, callSite string) error {
	sid := env[EnvAccountSID]
	switch {
	case sid == "":
		return &CredentialError{CallSite: callSite, Reason: "ACCOUNT_SID is missing"}
	case !strings.HasPrefix(sid, "AC"):
		return &CredentialError{CallSite: callSite, Reason: "ACCOUNT_SID does not start with AC"}
	case len(sid) != 34:
		return &CredentialError{CallSite: callSite, Reason: fmt.Sprintf("ACCOUNT_SID has %d characters instead of 34", len(sid))}
	case env[EnvAuthToken] == "":
		return &CredentialError{CallSite: callSite, Reason: "AUTH_TOKEN is missing"}
	}
	return nil
}
