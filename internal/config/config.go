// Package config provides configuration management for the OAuth 2.1 MCP server.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the complete server configuration in a flat structure.
type Config struct {
	// Server settings
	// Addr is the address to bind the HTTP server (e.g., ":8080").
	Addr string

	// BaseURL is the canonical base URL for this server (e.g., "https://example.com/mcp").
	// This is used for OAuth audience validation and resource metadata.
	BaseURL string

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration

	// IdleTimeout is the maximum duration to wait for the next request when keep-alives are enabled.
	IdleTimeout time.Duration

	// OAuth settings
	// AuthorizationServers is a list of trusted authorization server URLs.
	// These servers are listed in the protected resource metadata.
	AuthorizationServers []string

	// Audience is the expected audience (aud) claim in access tokens.
	// This should match the server's canonical URI.
	Audience string

	// ScopesSupported is a list of OAuth scopes this server supports.
	ScopesSupported []string

	// JWKSCacheTTL is how long to cache JWKS keys from authorization servers.
	JWKSCacheTTL time.Duration

	// ClockSkew is the allowed clock skew for token expiration validation.
	ClockSkew time.Duration

	// MCP settings
	// SessionTTL is loaded from MCP_SESSION_TTL and must be positive; no
	// code in this module expires sessions on it.
	SessionTTL time.Duration

	// RequestTimeout bounds how long a session's outgoing request waits for
	// its response: on the server, reverse calls such as
	// sampling/createMessage and roots/list; in the stdio client, every
	// call it makes to the server.
	RequestTimeout time.Duration

	// InitializationTimeout bounds how long protocol.Client.Initialize
	// waits for the server's initialize response. The server side does not
	// read it.
	InitializationTimeout time.Duration

	// ProtocolVersions lists the protocol versions this server will
	// negotiate during initialize, most-preferred first.
	ProtocolVersions []string

	// ServerName and ServerVersion populate the serverInfo field returned
	// from initialize.
	ServerName    string
	ServerVersion string

	// WorkerPoolSize bounds the number of tool/resource/prompt handlers
	// that may run concurrently across all sessions.
	WorkerPoolSize int

	// SSEEndpoint is the path clients GET to open their event stream.
	SSEEndpoint string

	// MessageEndpoint is the path clients POST inbound envelopes to.
	MessageEndpoint string

	// EnableTools, EnableResources, EnablePrompts, EnableCompletions, and
	// EnableLogging toggle which capabilities this server advertises.
	EnableTools       bool
	EnableResources   bool
	EnablePrompts     bool
	EnableCompletions bool
	EnableLogging     bool

	// OAuthEnabled is true when at least one authorization server was
	// configured; the HTTP binding then wraps the SSE/message endpoints in
	// bearer-token validation. When false the server runs unauthenticated,
	// which is the expected mode for the stdio binding's HTTP-free cousin
	// or for local development.
	OAuthEnabled bool
}

// Load reads configuration from environment variables and returns a Config.
// It sets default values for optional fields and validates the configuration.
func Load() (*Config, error) {
	// Parse durations with error handling
	readTimeout, err := parseDurationWithDefault("SERVER_READ_TIMEOUT", "30s")
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := parseDurationWithDefault("SERVER_WRITE_TIMEOUT", "30s")
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := parseDurationWithDefault("SERVER_IDLE_TIMEOUT", "120s")
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_IDLE_TIMEOUT: %w", err)
	}

	jwksCacheTTL, err := parseDurationWithDefault("OAUTH_JWKS_CACHE_TTL", "1h")
	if err != nil {
		return nil, fmt.Errorf("invalid OAUTH_JWKS_CACHE_TTL: %w", err)
	}

	clockSkew, err := parseDurationWithDefault("OAUTH_CLOCK_SKEW", "1m")
	if err != nil {
		return nil, fmt.Errorf("invalid OAUTH_CLOCK_SKEW: %w", err)
	}

	sessionTTL, err := parseDurationWithDefault("MCP_SESSION_TTL", "1h")
	if err != nil {
		return nil, fmt.Errorf("invalid MCP_SESSION_TTL: %w", err)
	}

	requestTimeout, err := parseDurationWithDefault("MCP_REQUEST_TIMEOUT", "20s")
	if err != nil {
		return nil, fmt.Errorf("invalid MCP_REQUEST_TIMEOUT: %w", err)
	}

	initTimeout, err := parseDurationWithDefault("MCP_INITIALIZATION_TIMEOUT", "20s")
	if err != nil {
		return nil, fmt.Errorf("invalid MCP_INITIALIZATION_TIMEOUT: %w", err)
	}

	workerPoolSize, err := parseIntWithDefault("MCP_WORKER_POOL_SIZE", 16)
	if err != nil {
		return nil, fmt.Errorf("invalid MCP_WORKER_POOL_SIZE: %w", err)
	}

	authorizationServers := parseCommaSeparated("OAUTH_AUTHORIZATION_SERVERS")

	cfg := &Config{
		// Server settings
		Addr:         getEnvWithDefault("SERVER_ADDR", ":8080"),
		BaseURL:      os.Getenv("SERVER_BASE_URL"),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,

		// OAuth settings
		AuthorizationServers: authorizationServers,
		Audience:             os.Getenv("OAUTH_AUDIENCE"),
		ScopesSupported:      parseCommaSeparated("OAUTH_SCOPES_SUPPORTED"),
		JWKSCacheTTL:         jwksCacheTTL,
		ClockSkew:            clockSkew,
		OAuthEnabled:         len(authorizationServers) > 0,

		// MCP settings
		SessionTTL:            sessionTTL,
		RequestTimeout:        requestTimeout,
		InitializationTimeout: initTimeout,
		ProtocolVersions:      parseCommaSeparatedWithDefault("MCP_PROTOCOL_VERSIONS", "2025-03-26,2024-11-05"),
		ServerName:            getEnvWithDefault("MCP_SERVER_NAME", "mcp-runtime"),
		ServerVersion:         getEnvWithDefault("MCP_SERVER_VERSION", "0.1.0"),
		WorkerPoolSize:        workerPoolSize,
		SSEEndpoint:           getEnvWithDefault("MCP_SSE_ENDPOINT", "/sse"),
		MessageEndpoint:       getEnvWithDefault("MCP_MESSAGE_ENDPOINT", "/message"),
		EnableTools:           getBoolWithDefault("MCP_ENABLE_TOOLS", true),
		EnableResources:       getBoolWithDefault("MCP_ENABLE_RESOURCES", true),
		EnablePrompts:         getBoolWithDefault("MCP_ENABLE_PROMPTS", true),
		EnableCompletions:     getBoolWithDefault("MCP_ENABLE_COMPLETIONS", true),
		EnableLogging:         getBoolWithDefault("MCP_ENABLE_LOGGING", true),
	}

	// Validate configuration
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// getEnvWithDefault returns the environment variable value or the default if not set.
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseCommaSeparated parses a comma-separated environment variable into a string slice.
// Empty values are filtered out. Returns nil if the environment variable is not set.
func parseCommaSeparated(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

// parseCommaSeparatedWithDefault is parseCommaSeparated but falls back to
// defaultValue (itself comma-separated) when the variable is unset.
func parseCommaSeparatedWithDefault(key, defaultValue string) []string {
	if list := parseCommaSeparated(key); list != nil {
		return list
	}
	return parseCommaSeparatedValue(defaultValue)
}

// parseCommaSeparatedValue splits a literal comma-separated string,
// trimming whitespace and dropping empty entries.
func parseCommaSeparatedValue(value string) []string {
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseIntWithDefault parses an integer environment variable, falling back
// to defaultValue when unset.
func parseIntWithDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("cannot parse integer %q: %w", value, err)
	}
	return n, nil
}

// getBoolWithDefault parses a boolean environment variable, falling back to
// defaultValue when unset or unparseable.
func getBoolWithDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

// parseDurationWithDefault parses a duration from an environment variable.
// If the variable is not set, it uses the default value.
// Returns an error if the value is set but cannot be parsed.
func parseDurationWithDefault(key, defaultValue string) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		// Use default if not set
		duration, err := time.ParseDuration(defaultValue)
		if err != nil {
			return 0, fmt.Errorf("invalid default duration %q: %w", defaultValue, err)
		}
		return duration, nil
	}

	// Parse the provided value
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("cannot parse duration %q: %w", value, err)
	}

	return duration, nil
}

// String returns a string representation of the configuration (for debugging).
// Sensitive values are redacted.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Addr: %s, BaseURL: %s, ReadTimeout: %v, WriteTimeout: %v, IdleTimeout: %v, OAuthEnabled: %v, AuthorizationServers: %v, Audience: %s, ScopesSupported: %v, JWKSCacheTTL: %v, ClockSkew: %v, SessionTTL: %v, RequestTimeout: %v, InitializationTimeout: %v, ProtocolVersions: %v, ServerName: %s, ServerVersion: %s, WorkerPoolSize: %d, SSEEndpoint: %s, MessageEndpoint: %s}",
		c.Addr, c.BaseURL, c.ReadTimeout, c.WriteTimeout, c.IdleTimeout, c.OAuthEnabled,
		c.AuthorizationServers, c.Audience, c.ScopesSupported,
		c.JWKSCacheTTL, c.ClockSkew, c.SessionTTL, c.RequestTimeout, c.InitializationTimeout,
		c.ProtocolVersions, c.ServerName, c.ServerVersion, c.WorkerPoolSize,
		c.SSEEndpoint, c.MessageEndpoint)
}
