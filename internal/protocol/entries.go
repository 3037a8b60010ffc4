package protocol

import "context"

// ToolHandler executes a registered tool call.
type ToolHandler func(ctx context.Context, args map[string]any) (*ToolsCallResult, error)

type toolEntry struct {
	def     ToolDefinition
	handler ToolHandler
}

func (e toolEntry) RegistryKey() string { return e.def.Name }

// ResourceReader reads the current content of a registered resource.
type ResourceReader func(ctx context.Context, uri string) (*ResourcesReadResult, error)

type resourceEntry struct {
	def    ResourceDefinition
	reader ResourceReader
}

func (e resourceEntry) RegistryKey() string { return e.def.URI }

// resourceTemplateEntry is discovery-only: templates describe a family of
// URIs a client can construct, they are never read directly (spec.md
// supplemented feature C.3).
type resourceTemplateEntry struct {
	def ResourceTemplateDefinition
}

func (e resourceTemplateEntry) RegistryKey() string { return e.def.URITemplate }

// PromptHandler renders a registered prompt with the given arguments.
type PromptHandler func(ctx context.Context, args map[string]string) (*PromptsGetResult, error)

type promptEntry struct {
	def     PromptDefinition
	handler PromptHandler
}

func (e promptEntry) RegistryKey() string { return e.def.Name }

// CompletionHandler returns candidate completions for a ref/argument pair.
type CompletionHandler func(ctx context.Context, ref CompleteRef, arg CompleteArgument) (*CompleteResult, error)
