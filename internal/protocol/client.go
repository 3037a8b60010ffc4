package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	internalerrors "github.com/jamesprial/mcp-runtime/internal/errors"
)

// DefaultInitializationTimeout bounds how long Initialize waits for the
// server's reply before the handshake itself fails (spec.md §4.4.1, §6.4).
const DefaultInitializationTimeout = 20 * time.Second

// Client is the client-side MCP method surface (spec.md §4.4.1, §4.4.2): it
// drives the initialize handshake, enforces the single-slot readiness latch
// every other method gates on, and exposes typed wrappers for the methods a
// client calls on its server. It is the mirror of Server, generalized the
// same way Exchange generalizes the server's reverse calls into the client.
type Client struct {
	call caller

	info     ClientInfo
	caps     ClientCapabilities
	versions []string

	initTimeout time.Duration

	mu     sync.RWMutex
	ready  bool
	result *InitializeResult
}

// NewClient creates a Client that will call back through call (ordinarily a
// *session.Session). versions lists the protocol versions this client
// accepts, most-preferred first; a nil/empty list falls back to
// SupportedProtocolVersions. initTimeout bounds Initialize; zero or negative
// falls back to DefaultInitializationTimeout.
func NewClient(call caller, info ClientInfo, caps ClientCapabilities, versions []string, initTimeout time.Duration) *Client {
	if len(versions) == 0 {
		versions = SupportedProtocolVersions
	}
	if initTimeout <= 0 {
		initTimeout = DefaultInitializationTimeout
	}
	return &Client{
		call:        call,
		info:        info,
		caps:        caps,
		versions:    versions,
		initTimeout: initTimeout,
	}
}

// Initialize performs the handshake: it sends initialize bounded by the
// client's own initializationTimeout, validates the server's negotiated
// protocolVersion against this client's supported list — failing with
// ErrUnsupportedProtocolVersion and proceeding no further if it isn't one of
// them (spec.md §4.4.1 step 3) — then sends notifications/initialized and
// opens the readiness latch. Must be called exactly once, before any other
// method on Client.
func (c *Client) Initialize(ctx context.Context) (*InitializeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.initTimeout)
	defer cancel()

	raw, err := c.call.Call(ctx, "initialize", InitializeParams{
		ProtocolVersion: c.preferredVersion(),
		ClientInfo:      c.info,
		Capabilities:    c.caps,
	})
	if err != nil {
		return nil, err
	}

	var result InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, internalerrors.New("protocol", "initialize", internalerrors.ErrInternal, err)
	}

	if !c.versionSupported(result.ProtocolVersion) {
		return nil, internalerrors.New("protocol", "initialize", internalerrors.ErrUnsupportedProtocolVersion,
			fmt.Errorf("server negotiated protocol version %q, not in supported list %v", result.ProtocolVersion, c.versions)).
			WithContext("protocolVersion", result.ProtocolVersion)
	}

	if err := c.call.Notify(ctx, "notifications/initialized", nil); err != nil {
		return nil, internalerrors.New("protocol", "initialize", internalerrors.ErrTransportFailure, err)
	}

	c.mu.Lock()
	c.result = &result
	c.ready = true
	c.mu.Unlock()

	return &result, nil
}

func (c *Client) preferredVersion() string {
	if len(c.versions) > 0 {
		return c.versions[0]
	}
	return ProtocolVersion
}

func (c *Client) versionSupported(v string) bool {
	for _, s := range c.versions {
		if s == v {
			return true
		}
	}
	return false
}

// Ready reports whether Initialize has completed successfully.
func (c *Client) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// InitializeResult returns the result of a completed Initialize, or nil if
// the latch has not opened yet.
func (c *Client) InitializeResult() *InitializeResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.result
}

// requireReady enforces the readiness latch described in spec.md §4.4.1: any
// method below fails immediately, without attempting a wire call, if
// Initialize has not yet completed.
func (c *Client) requireReady(actionName string) error {
	if c.Ready() {
		return nil
	}
	return internalerrors.New("protocol", actionName, internalerrors.ErrNotInitialized,
		fmt.Errorf("client must be initialized before %s", actionName))
}

// Ping issues a zero-argument liveness request (spec.md §4.4.2, C.4).
func (c *Client) Ping(ctx context.Context) error {
	if err := c.requireReady("ping"); err != nil {
		return err
	}
	_, err := c.call.Call(ctx, "ping", nil)
	return err
}

// ListTools requests one page of the server's tool registry.
func (c *Client) ListTools(ctx context.Context, cursor Cursor) (*ToolsListResult, error) {
	if err := c.requireReady("tools/list"); err != nil {
		return nil, err
	}
	raw, err := c.call.Call(ctx, "tools/list", ToolsListParams{Cursor: cursor})
	if err != nil {
		return nil, err
	}
	var result ToolsListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, internalerrors.New("protocol", "tools/list", internalerrors.ErrInternal, err)
	}
	return &result, nil
}

// CallTool invokes a registered tool by name.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolsCallResult, error) {
	if err := c.requireReady("tools/call"); err != nil {
		return nil, err
	}
	raw, err := c.call.Call(ctx, "tools/call", ToolsCallParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, err
	}
	var result ToolsCallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, internalerrors.New("protocol", "tools/call", internalerrors.ErrInternal, err)
	}
	return &result, nil
}

// ListResources requests one page of the server's resource registry.
func (c *Client) ListResources(ctx context.Context, cursor Cursor) (*ResourcesListResult, error) {
	if err := c.requireReady("resources/list"); err != nil {
		return nil, err
	}
	raw, err := c.call.Call(ctx, "resources/list", ResourcesListParams{Cursor: cursor})
	if err != nil {
		return nil, err
	}
	var result ResourcesListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, internalerrors.New("protocol", "resources/list", internalerrors.ErrInternal, err)
	}
	return &result, nil
}

// ReadResource fetches the contents of a registered resource.
func (c *Client) ReadResource(ctx context.Context, uri string) (*ResourcesReadResult, error) {
	if err := c.requireReady("resources/read"); err != nil {
		return nil, err
	}
	raw, err := c.call.Call(ctx, "resources/read", ResourcesReadParams{URI: uri})
	if err != nil {
		return nil, err
	}
	var result ResourcesReadResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, internalerrors.New("protocol", "resources/read", internalerrors.ErrInternal, err)
	}
	return &result, nil
}

// ListPrompts requests one page of the server's prompt registry.
func (c *Client) ListPrompts(ctx context.Context, cursor Cursor) (*PromptsListResult, error) {
	if err := c.requireReady("prompts/list"); err != nil {
		return nil, err
	}
	raw, err := c.call.Call(ctx, "prompts/list", PromptsListParams{Cursor: cursor})
	if err != nil {
		return nil, err
	}
	var result PromptsListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, internalerrors.New("protocol", "prompts/list", internalerrors.ErrInternal, err)
	}
	return &result, nil
}

// GetPrompt renders a registered prompt with the given arguments.
func (c *Client) GetPrompt(ctx context.Context, name string, arguments map[string]string) (*PromptsGetResult, error) {
	if err := c.requireReady("prompts/get"); err != nil {
		return nil, err
	}
	raw, err := c.call.Call(ctx, "prompts/get", PromptsGetParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, err
	}
	var result PromptsGetResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, internalerrors.New("protocol", "prompts/get", internalerrors.ErrInternal, err)
	}
	return &result, nil
}

// Complete requests argument completion candidates for a prompt or resource
// reference.
func (c *Client) Complete(ctx context.Context, ref CompleteRef, argument CompleteArgument) (*CompleteResult, error) {
	if err := c.requireReady("completion/complete"); err != nil {
		return nil, err
	}
	raw, err := c.call.Call(ctx, "completion/complete", CompleteParams{Ref: ref, Argument: argument})
	if err != nil {
		return nil, err
	}
	var result CompleteResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, internalerrors.New("protocol", "completion/complete", internalerrors.ErrInternal, err)
	}
	return &result, nil
}

// SetLoggingLevel requests the server raise or lower the minimum severity
// delivered to this session via notifications/message.
func (c *Client) SetLoggingLevel(ctx context.Context, level LogLevel) error {
	if err := c.requireReady("logging/setLevel"); err != nil {
		return err
	}
	_, err := c.call.Call(ctx, "logging/setLevel", SetLoggingLevelParams{Level: level})
	return err
}
