// Command mcp-stdio-client is a minimal demonstration client: it spawns a
// subprocess MCP server over stdio, performs the initialize handshake,
// lists the server's tools, and calls the first one it finds.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/jamesprial/mcp-runtime/internal/config"
	internalerrors "github.com/jamesprial/mcp-runtime/internal/errors"
	"github.com/jamesprial/mcp-runtime/internal/mcptransport/stdio"
	"github.com/jamesprial/mcp-runtime/internal/protocol"
	"github.com/jamesprial/mcp-runtime/internal/session"
)

func main() {
	command := flag.String("command", "./mcp-stdio-server", "server subprocess to launch")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tr, err := stdio.NewClientTransport(ctx, *command, nil, nil, func(line string) {
		slog.Warn("server stderr", "line", line)
	}, logger)
	if err != nil {
		log.Fatalf("failed to spawn server: %v", err)
	}

	sess := session.New("client", tr, logger)
	sess.SetRequestTimeout(cfg.RequestTimeout)
	sess.SetRequestHandler(func(ctx context.Context, method string, params json.RawMessage) (any, error) {
		return nil, fmt.Errorf("client does not implement %s", method)
	})
	sess.SetNotificationHandler(func(ctx context.Context, method string, params json.RawMessage) {})

	if err := sess.Start(); err != nil {
		log.Fatalf("failed to start session: %v", err)
	}
	defer sess.Close()

	client := protocol.NewClient(
		sess,
		protocol.ClientInfo{Name: "mcp-stdio-client", Version: "0.1.0"},
		protocol.ClientCapabilities{},
		cfg.ProtocolVersions,
		cfg.InitializationTimeout,
	)

	initResult, err := client.Initialize(ctx)
	if err != nil {
		if errors.Is(err, internalerrors.ErrUnsupportedProtocolVersion) {
			log.Fatalf("server negotiated a protocol version this client does not support: %v", err)
		}
		log.Fatalf("initialize failed: %v", err)
	}
	fmt.Printf("connected to %s %s (protocol %s)\n",
		initResult.ServerInfo.Name, initResult.ServerInfo.Version, initResult.ProtocolVersion)

	if initResult.Capabilities.Tools == nil {
		fmt.Println("server does not advertise tools capability")
		return
	}

	list, err := client.ListTools(ctx, "")
	if err != nil {
		log.Fatalf("tools/list failed: %v", err)
	}
	if len(list.Tools) == 0 {
		fmt.Println("server has no tools registered")
		return
	}

	first := list.Tools[0]
	fmt.Printf("calling tool %q\n", first.Name)

	result, err := client.CallTool(ctx, first.Name, nil)
	if err != nil {
		log.Fatalf("tools/call failed: %v", err)
	}
	for _, c := range result.Content {
		fmt.Println(c.Text)
	}
}
