// Package demo registers a small set of example tools, resources, and
// prompts against a *protocol.Server so the stdio and HTTP+SSE binaries
// have something to exercise end to end without a real backend.
package demo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jamesprial/mcp-runtime/internal/protocol"
)

// Register adds the demo tools, resources, and prompts to srv. It is safe
// to call at most once per Server; a second call fails on the first
// duplicate registration.
func Register(srv *protocol.Server) error {
	if err := registerTools(srv); err != nil {
		return fmt.Errorf("registering demo tools: %w", err)
	}
	if err := registerResources(srv); err != nil {
		return fmt.Errorf("registering demo resources: %w", err)
	}
	if err := registerPrompts(srv); err != nil {
		return fmt.Errorf("registering demo prompts: %w", err)
	}
	srv.SetCompletionHandler(completeArgument)
	return nil
}

func registerTools(srv *protocol.Server) error {
	echoSchema := json.RawMessage(`{
		"type": "object",
		"properties": {"message": {"type": "string"}},
		"required": ["message"]
	}`)
	if err := srv.RegisterTool(protocol.ToolDefinition{
		Name:        "echo",
		Description: "Echoes the message argument back as text.",
		InputSchema: echoSchema,
	}, echoTool); err != nil {
		return err
	}

	clockSchema := json.RawMessage(`{"type": "object", "properties": {}}`)
	return srv.RegisterTool(protocol.ToolDefinition{
		Name:        "current_time",
		Description: "Returns the current UTC time in RFC 3339 form.",
		InputSchema: clockSchema,
	}, currentTimeTool)
}

func echoTool(ctx context.Context, args map[string]any) (*protocol.ToolsCallResult, error) {
	message, _ := args["message"].(string)
	if message == "" {
		return &protocol.ToolsCallResult{
			Content: []protocol.Content{{Type: "text", Text: "message argument is required"}},
			IsError: true,
		}, nil
	}
	return &protocol.ToolsCallResult{
		Content: []protocol.Content{{Type: "text", Text: message}},
	}, nil
}

func currentTimeTool(ctx context.Context, args map[string]any) (*protocol.ToolsCallResult, error) {
	return &protocol.ToolsCallResult{
		Content: []protocol.Content{{Type: "text", Text: time.Now().UTC().Format(time.RFC3339)}},
	}, nil
}

func registerResources(srv *protocol.Server) error {
	if err := srv.RegisterResource(protocol.ResourceDefinition{
		URI:         "memory://readme",
		Name:        "readme",
		Description: "A static in-memory readme resource.",
		MimeType:    "text/plain",
	}, readmeResource); err != nil {
		return err
	}

	return srv.RegisterResourceTemplate(protocol.ResourceTemplateDefinition{
		URITemplate: "memory://notes/{id}",
		Name:        "note",
		Description: "A notional per-id note; not backed by a reader.",
		MimeType:    "text/plain",
	})
}

func readmeResource(ctx context.Context, uri string) (*protocol.ResourcesReadResult, error) {
	return &protocol.ResourcesReadResult{
		Contents: []protocol.Content{{
			Type:     "text",
			URI:      uri,
			MimeType: "text/plain",
			Text:     "This server was generated to exercise the MCP runtime's tool, resource, and prompt registries.",
		}},
	}, nil
}

func registerPrompts(srv *protocol.Server) error {
	return srv.RegisterPrompt(protocol.PromptDefinition{
		Name:        "greeting",
		Description: "Produces a friendly greeting for the given name.",
		Arguments: []protocol.PromptArgument{
			{Name: "name", Description: "Who to greet", Required: true},
		},
	}, greetingPrompt)
}

func greetingPrompt(ctx context.Context, args map[string]string) (*protocol.PromptsGetResult, error) {
	name := args["name"]
	if name == "" {
		name = "there"
	}
	return &protocol.PromptsGetResult{
		Description: "A friendly greeting",
		Messages: []protocol.PromptMessage{
			{Role: "user", Content: protocol.Content{Type: "text", Text: fmt.Sprintf("Say hello to %s.", name)}},
		},
	}, nil
}

func completeArgument(ctx context.Context, ref protocol.CompleteRef, arg protocol.CompleteArgument) (*protocol.CompleteResult, error) {
	if ref.Type == "ref/prompt" && ref.Name == "greeting" && arg.Name == "name" {
		result := &protocol.CompleteResult{}
		result.Completion.Values = []string{"Ada", "Alan", "Grace"}
		return result, nil
	}
	return &protocol.CompleteResult{}, nil
}
