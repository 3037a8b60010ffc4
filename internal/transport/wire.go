package transport

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jamesprial/mcp-runtime/internal/config"
	"github.com/jamesprial/mcp-runtime/internal/oauth"
	"github.com/jamesprial/mcp-runtime/internal/provider"
	"github.com/jamesprial/mcp-runtime/internal/transport/internal/handlers"
	transporthttp "github.com/jamesprial/mcp-runtime/internal/transport/internal/http"
	"github.com/jamesprial/mcp-runtime/internal/transport/internal/middleware"
	pkgoauth "github.com/jamesprial/mcp-runtime/pkg/oauth"
)

// NewServer creates a configured HTTP server.
// The server is configured with timeouts from the config and uses the provided router.
func NewServer(cfg *config.Config, router Router) Server {
	return transporthttp.NewServer(cfg, router)
}

// NewRouter creates a new HTTP router backed by http.ServeMux.
func NewRouter() Router {
	return transporthttp.NewRouter()
}

// NewAuthMiddleware creates OAuth authentication middleware.
// It validates Bearer tokens and enforces scope requirements.
// The metadataURL is included in WWW-Authenticate headers for client discovery.
func NewAuthMiddleware(
	validator oauth.TokenValidator,
	responder ErrorResponder,
	metadataURL string,
) AuthMiddleware {
	// Use default scopes for authentication
	defaultScopes := []string{pkgoauth.ScopeRead}
	return middleware.NewAuthMiddleware(validator, responder, metadataURL, defaultScopes)
}

// NewErrorResponder creates an error responder with the given metadata URL.
// The responder formats HTTP error responses according to OAuth 2.1 and RFC 9728.
func NewErrorResponder(metadataURL string) ErrorResponder {
	return transporthttp.NewErrorResponder(metadataURL)
}

// NewMetadataHandler creates the OAuth protected resource metadata handler.
// It serves metadata at /.well-known/oauth-protected-resource per RFC 9728.
func NewMetadataHandler(service oauth.MetadataService, responder ErrorResponder) http.Handler {
	return handlers.NewMetadataHandler(service, responder)
}

// NewHealthHandler creates the health check handler.
// It provides a simple health status endpoint.
func NewHealthHandler(responder ErrorResponder) http.Handler {
	return handlers.NewHealthHandler(responder)
}

// NewLoggingMiddleware creates request logging middleware.
// It logs HTTP request details using structured logging.
// If logger is nil, it uses the default slog logger.
func NewLoggingMiddleware(logger *slog.Logger) Middleware {
	return middleware.NewLoggingMiddleware(logger)
}

// NewRecoveryMiddleware creates panic recovery middleware.
// It recovers from panics and returns a 500 error to the client.
// If logger is nil, it uses the default slog logger.
func NewRecoveryMiddleware(responder ErrorResponder, logger *slog.Logger) Middleware {
	return middleware.NewRecoveryMiddleware(responder, logger)
}

// Config holds the configuration needed for the transport layer.
type Config struct {
	// ServerConfig is the server configuration.
	ServerConfig *config.Config

	// Provider serves the SSE and message endpoints backing the MCP
	// session multiplexer. Required.
	Provider *provider.Provider

	// OAuthValidator validates access tokens. Leave nil to run the HTTP
	// binding unauthenticated (config.Config.OAuthEnabled == false).
	OAuthValidator oauth.TokenValidator

	// MetadataService provides protected resource metadata. Leave nil
	// alongside OAuthValidator to skip the metadata route entirely.
	MetadataService oauth.MetadataService
}

// NewTransportServices creates all transport layer services from the configuration.
// This is a convenience function for dependency injection that wires up the complete
// HTTP transport layer with routing, middleware, and handlers. It mounts the
// Provider's SSE and message endpoints, wrapping them in OAuth bearer-token
// validation only when an OAuthValidator is supplied.
func NewTransportServices(cfg *Config) (Server, Router, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.ServerConfig == nil {
		return nil, nil, fmt.Errorf("server config cannot be nil")
	}
	if cfg.Provider == nil {
		return nil, nil, fmt.Errorf("provider cannot be nil")
	}
	if cfg.ServerConfig.OAuthEnabled && (cfg.OAuthValidator == nil || cfg.MetadataService == nil) {
		return nil, nil, fmt.Errorf("oauth validator and metadata service are required when OAuth is enabled")
	}

	metadataURL := ""
	if cfg.MetadataService != nil {
		metadataURL = cfg.MetadataService.GetMetadataURL()
	}

	responder := NewErrorResponder(metadataURL)

	recoveryMiddleware := NewRecoveryMiddleware(responder, nil)
	loggingMiddleware := NewLoggingMiddleware(nil)

	healthHandler := NewHealthHandler(responder)

	router := NewRouter()
	router.Use(recoveryMiddleware, loggingMiddleware)

	router.Handle("GET /health", healthHandler)

	sseHandler := http.HandlerFunc(cfg.Provider.ServeSSE)
	messageHandler := http.HandlerFunc(cfg.Provider.ServeMessage)

	if cfg.ServerConfig.OAuthEnabled {
		metadataHandler := NewMetadataHandler(cfg.MetadataService, responder)
		router.Handle("GET /.well-known/oauth-protected-resource", metadataHandler)

		authMiddleware := NewAuthMiddleware(cfg.OAuthValidator, responder, metadataURL)
		router.Handle("GET "+cfg.ServerConfig.SSEEndpoint, authMiddleware.Authenticate()(sseHandler))
		router.Handle("POST "+cfg.ServerConfig.MessageEndpoint, authMiddleware.Authenticate()(messageHandler))
	} else {
		router.Handle("GET "+cfg.ServerConfig.SSEEndpoint, sseHandler)
		router.Handle("POST "+cfg.ServerConfig.MessageEndpoint, messageHandler)
	}

	server := NewServer(cfg.ServerConfig, router)

	return server, router, nil
}
