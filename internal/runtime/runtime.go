// Package runtime wires a protocol.Server from a loaded config.Config,
// shared by every cmd binary so the capability set, worker pool size, and
// server identity stay consistent across the stdio and HTTP+SSE bindings.
package runtime

import (
	"github.com/jamesprial/mcp-runtime/internal/config"
	"github.com/jamesprial/mcp-runtime/internal/demo"
	"github.com/jamesprial/mcp-runtime/internal/protocol"
)

// NewServer builds a protocol.Server advertising the capabilities cfg
// enables, with the demo tools/resources/prompts registered so there is
// something to call immediately.
func NewServer(cfg *config.Config) (*protocol.Server, error) {
	caps := protocol.ServerCapabilities{}
	if cfg.EnableTools {
		caps.Tools = &protocol.ToolsCapability{ListChanged: true}
	}
	if cfg.EnableResources {
		caps.Resources = &protocol.ResourcesCapability{ListChanged: true}
	}
	if cfg.EnablePrompts {
		caps.Prompts = &protocol.PromptsCapability{ListChanged: true}
	}
	if cfg.EnableLogging {
		caps.Logging = &protocol.LoggingCapability{}
	}
	if cfg.EnableCompletions {
		caps.Completions = &protocol.CompletionsCapability{}
	}

	srv := protocol.NewServer(
		protocol.ServerInfo{Name: cfg.ServerName, Version: cfg.ServerVersion},
		caps,
		cfg.WorkerPoolSize,
	)
	srv.SetProtocolVersions(cfg.ProtocolVersions)

	if err := demo.Register(srv); err != nil {
		return nil, err
	}
	return srv, nil
}
