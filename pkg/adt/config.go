// Package adt provides a Go client for SAP ABAP Development Tools (ADT) REST API.
package adt

import (
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// AuthType selects how requests authenticate against the SAP system.
type AuthType string

const (
	// AuthBasic sends username and password as HTTP basic auth.
	AuthBasic AuthType = "basic"
	// AuthJWT sends a bearer token.
	AuthJWT AuthType = "jwt"
)

// Default timeouts for ADT calls.
const (
	DefaultTimeout     = 45 * time.Second
	DefaultCSRFTimeout = 15 * time.Second
	LongTimeout        = 60 * time.Second
)

// Config holds the configuration for an ADT client connection.
// A Config is treated as immutable once a Transport has been built from it.
type Config struct {
	// BaseURL is the SAP system URL (e.g., "https://vhcalnplci.dummy.nodomain:44300")
	BaseURL string
	// Client is the SAP client number (e.g., "001")
	Client string
	// Language for SAP session (e.g., "EN")
	Language string
	// AuthType selects basic or JWT authentication
	AuthType AuthType
	// Username for basic authentication
	Username string
	// Password for basic authentication
	Password string
	// JWTToken for bearer authentication
	JWTToken string
	// InsecureSkipVerify disables TLS certificate verification
	InsecureSkipVerify bool
	// Timeout is the default per-request timeout
	Timeout time.Duration
	// Logger receives transport diagnostics
	Logger *log.Logger
}

// Option is a functional option for configuring the ADT client.
type Option func(*Config)

// WithClient sets the SAP client number.
func WithClient(client string) Option {
	return func(c *Config) {
		c.Client = client
	}
}

// WithLanguage sets the SAP session language.
func WithLanguage(lang string) Option {
	return func(c *Config) {
		c.Language = lang
	}
}

// WithBasicAuth selects basic authentication with the given credentials.
func WithBasicAuth(username, password string) Option {
	return func(c *Config) {
		c.AuthType = AuthBasic
		c.Username = username
		c.Password = password
	}
}

// WithJWT selects bearer authentication with the given token.
func WithJWT(token string) Option {
	return func(c *Config) {
		c.AuthType = AuthJWT
		c.JWTToken = token
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
func WithInsecureSkipVerify() Option {
	return func(c *Config) {
		c.InsecureSkipVerify = true
	}
}

// WithTimeout sets the default HTTP request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithLogger sets the logger used for transport diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// NewConfig creates a new Config with the given base URL and options.
func NewConfig(baseURL string, opts ...Option) *Config {
	cfg := &Config{
		BaseURL:  baseURL,
		Client:   "001",
		Language: "EN",
		AuthType: AuthBasic,
		Timeout:  DefaultTimeout,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}

	return cfg
}

// HasBasicAuth returns true if username and password are configured.
func (c *Config) HasBasicAuth() bool {
	return c.Username != "" && c.Password != ""
}

// ConfigError reports missing or invalid connection settings.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid SAP configuration: %s %s", e.Field, e.Reason)
}

// Validate checks the connection settings required to talk to ADT.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return &ConfigError{Field: "url", Reason: "is required"}
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ConfigError{Field: "url", Reason: fmt.Sprintf("%q is not an absolute URL", c.BaseURL)}
	}

	switch c.AuthType {
	case AuthBasic, "":
		if c.Username == "" {
			return &ConfigError{Field: "username", Reason: "is required for basic auth"}
		}
		if c.Password == "" {
			return &ConfigError{Field: "password", Reason: "is required for basic auth"}
		}
	case AuthJWT:
		if c.JWTToken == "" {
			return &ConfigError{Field: "jwt_token", Reason: "is required for jwt auth"}
		}
	default:
		return &ConfigError{Field: "auth_type", Reason: fmt.Sprintf("%q is not one of basic, jwt", c.AuthType)}
	}
	return nil
}

// ParseAuthType converts a user supplied auth type string.
func ParseAuthType(s string) (AuthType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "basic":
		return AuthBasic, nil
	case "jwt", "bearer":
		return AuthJWT, nil
	default:
		return "", &ConfigError{Field: "auth_type", Reason: fmt.Sprintf("%q is not one of basic, jwt", s)}
	}
}

// authHeaders returns the authentication headers for every request.
func (c *Config) authHeaders() http.Header {
	h := http.Header{}
	switch c.AuthType {
	case AuthJWT:
		h.Set("Authorization", "Bearer "+c.JWTToken)
	default:
		if c.HasBasicAuth() {
			req := &http.Request{Header: h}
			req.SetBasicAuth(c.Username, c.Password)
		}
	}
	return h
}

// NewHTTPClient creates an http.Client configured for the given Config.
// Cookies are carried by the Session, so the client has no jar of its own.
func (c *Config) NewHTTPClient() *http.Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: c.InsecureSkipVerify,
		},
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	return &http.Client{
		Transport: transport,
	}
}
