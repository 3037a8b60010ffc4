// Command mcp-http-server runs the HTTP+SSE binding of the MCP runtime,
// optionally gated by OAuth 2.1 bearer-token validation.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jamesprial/mcp-runtime/internal/config"
	"github.com/jamesprial/mcp-runtime/internal/oauth"
	"github.com/jamesprial/mcp-runtime/internal/provider"
	"github.com/jamesprial/mcp-runtime/internal/runtime"
	"github.com/jamesprial/mcp-runtime/internal/transport"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	slog.Info("server configuration loaded",
		"addr", cfg.Addr,
		"oauth_enabled", cfg.OAuthEnabled,
		"sse_endpoint", cfg.SSEEndpoint,
		"message_endpoint", cfg.MessageEndpoint,
	)

	mcpServer, err := runtime.NewServer(cfg)
	if err != nil {
		log.Fatalf("failed to build mcp server: %v", err)
	}

	prov := provider.New(mcpServer, cfg.MessageEndpoint, logger, nil)

	transportCfg := &transport.Config{
		ServerConfig: cfg,
		Provider:     prov,
	}

	if cfg.OAuthEnabled {
		oauthCfg := &oauth.Config{
			BaseURL:              cfg.BaseURL,
			AuthorizationServers: cfg.AuthorizationServers,
			Audience:             cfg.Audience,
			ScopesSupported:      cfg.ScopesSupported,
			JWKSCacheTTL:         cfg.JWKSCacheTTL,
			ClockSkew:            cfg.ClockSkew,
		}
		tokenValidator, metadataService, _, _ := oauth.NewOAuthServices(oauthCfg)
		transportCfg.OAuthValidator = tokenValidator
		transportCfg.MetadataService = metadataService

		slog.Info("oauth services initialized",
			"jwks_cache_ttl", cfg.JWKSCacheTTL,
			"clock_skew", cfg.ClockSkew,
		)
	}

	server, router, err := transport.NewTransportServices(transportCfg)
	if err != nil {
		log.Fatalf("failed to create transport services: %v", err)
	}
	_ = router

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErrCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.Addr)
		if err := server.Start(); err != nil {
			serverErrCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping server gracefully...")
	case err := <-serverErrCh:
		slog.Error("server error", "error", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	prov.CloseGracefully(shutdownCtx)

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped successfully")
}
