// Command mcp-stdio-server runs the MCP runtime bound to a single
// stdin/stdout session, the binding used when a client spawns this
// process as a subprocess rather than connecting over HTTP.
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
	"github.com/jamesprial/mcp-runtime/internal/mcptransport/stdio"
	"github.com/jamesprial/mcp-runtime/internal/runtime"
	"github.com/jamesprial/mcp-runtime/internal/session"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	mcpServer, err := runtime.NewServer(cfg)
	if err != nil {
		log.Fatalf("failed to build mcp server: %v", err)
	}

	tr := stdio.NewServerTransport(os.Stdin, os.Stdout, logger)
	sess := session.New("stdio", tr, logger)
	sess.SetRequestTimeout(cfg.RequestTimeout)

	mcpServer.Attach(sess)

	if err := sess.Start(); err != nil {
		log.Fatalf("failed to start session: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	slog.Info("shutdown signal received, closing session gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mcpServer.Detach(sess)
	if err := sess.CloseGracefully(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
