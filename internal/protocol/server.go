package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	internalerrors "github.com/jamesprial/mcp-runtime/internal/errors"
	"github.com/jamesprial/mcp-runtime/internal/session"
)

const pageSize = 50

// Server holds the server-side MCP method surface: the tool/resource/
// resource-template/prompt registries (shared across every session bound to
// it) and the per-session Exchange bookkeeping needed to fan out
// list-changed notifications. One Server typically backs one process; each
// accepted connection gets its own *session.Session and Exchange.
type Server struct {
	info ServerInfo
	caps ServerCapabilities

	tools             *Registry[toolEntry]
	resources         *Registry[resourceEntry]
	resourceTemplates *Registry[resourceTemplateEntry]
	prompts           *Registry[promptEntry]

	completion       CompletionHandler
	workers          *workerPool
	protocolVersions []string

	mu        sync.RWMutex
	exchanges map[string]*Exchange
}

// NewServer creates a Server that will advertise caps during initialize.
// workerPoolSize bounds concurrent synchronous handler execution across all
// sessions (0 defaults to 1).
func NewServer(info ServerInfo, caps ServerCapabilities, workerPoolSize int) *Server {
	s := &Server{
		info:             info,
		caps:             caps,
		workers:          newWorkerPool(workerPoolSize),
		exchanges:        make(map[string]*Exchange),
		protocolVersions: SupportedProtocolVersions,
	}
	s.tools = NewRegistry[toolEntry](s.notifyToolsChanged)
	s.resources = NewRegistry[resourceEntry](s.notifyResourcesChanged)
	s.resourceTemplates = NewRegistry[resourceTemplateEntry](nil)
	s.prompts = NewRegistry[promptEntry](s.notifyPromptsChanged)
	return s
}

// RegisterTool adds a callable tool. Fails with ErrAlreadyExists if the
// name is taken.
func (s *Server) RegisterTool(def ToolDefinition, handler ToolHandler) error {
	return s.tools.Add(toolEntry{def: def, handler: handler})
}

// RemoveTool deregisters a tool by name.
func (s *Server) RemoveTool(name string) error {
	return s.tools.Remove(name)
}

// RegisterResource adds a readable resource.
func (s *Server) RegisterResource(def ResourceDefinition, reader ResourceReader) error {
	return s.resources.Add(resourceEntry{def: def, reader: reader})
}

// RemoveResource deregisters a resource by URI.
func (s *Server) RemoveResource(uri string) error {
	return s.resources.Remove(uri)
}

// RegisterResourceTemplate adds a discovery-only URI template.
func (s *Server) RegisterResourceTemplate(def ResourceTemplateDefinition) error {
	return s.resourceTemplates.Add(resourceTemplateEntry{def: def})
}

// RegisterPrompt adds a renderable prompt.
func (s *Server) RegisterPrompt(def PromptDefinition, handler PromptHandler) error {
	return s.prompts.Add(promptEntry{def: def, handler: handler})
}

// RemovePrompt deregisters a prompt by name.
func (s *Server) RemovePrompt(name string) error {
	return s.prompts.Remove(name)
}

// SetCompletionHandler installs the single completion/complete handler.
func (s *Server) SetCompletionHandler(h CompletionHandler) { s.completion = h }

// SetProtocolVersions overrides the versions considered during initialize
// negotiation, most-preferred first. A nil or empty list is ignored, leaving
// SupportedProtocolVersions in effect.
func (s *Server) SetProtocolVersions(versions []string) {
	if len(versions) == 0 {
		return
	}
	s.protocolVersions = versions
}

// Attach binds sess to this server: it installs the request/notification
// handler tables and returns the Exchange the handlers will receive.
// Call Detach when the session closes.
func (s *Server) Attach(sess *session.Session) *Exchange {
	exchange := NewExchange(sess, sess)

	sess.SetRequestHandler(func(ctx context.Context, method string, params json.RawMessage) (any, error) {
		return s.handleRequest(ctx, sess, exchange, method, params)
	})
	sess.SetNotificationHandler(func(ctx context.Context, method string, params json.RawMessage) {
		s.handleNotification(ctx, sess, exchange, method, params)
	})

	s.mu.Lock()
	s.exchanges[sess.ID()] = exchange
	s.mu.Unlock()

	return exchange
}

// Detach removes the session's Exchange from the broadcast set.
func (s *Server) Detach(sess *session.Session) {
	s.mu.Lock()
	delete(s.exchanges, sess.ID())
	s.mu.Unlock()
}

func (s *Server) handleRequest(ctx context.Context, sess *session.Session, ex *Exchange, method string, params json.RawMessage) (any, error) {
	if method == "ping" {
		return struct{}{}, nil
	}

	if method == "initialize" {
		return s.handleInitialize(sess, ex, params)
	}

	if sess.State() != session.StateInitialized {
		return nil, internalerrors.New("protocol", method, internalerrors.ErrNotInitialized, fmt.Errorf("session has not completed initialize"))
	}

	switch method {
	case "tools/list":
		return s.handleToolsList(params)
	case "tools/call":
		return s.handleToolsCall(ctx, params)
	case "resources/list":
		return s.handleResourcesList(params)
	case "resources/read":
		return s.handleResourcesRead(ctx, params)
	case "resources/templates/list":
		return s.handleResourceTemplatesList(params)
	case "resources/subscribe", "resources/unsubscribe":
		// Accepted but a no-op: subscription delivery is not wired past
		// capability advertisement in this implementation.
		return struct{}{}, nil
	case "prompts/list":
		return s.handlePromptsList(params)
	case "prompts/get":
		return s.handlePromptsGet(ctx, params)
	case "completion/complete":
		return s.handleComplete(ctx, params)
	case "logging/setLevel":
		return s.handleSetLoggingLevel(ex, params)
	default:
		return nil, internalerrors.New("protocol", method, internalerrors.ErrNotFound, fmt.Errorf("method not found: %s", method))
	}
}

func (s *Server) handleNotification(ctx context.Context, sess *session.Session, ex *Exchange, method string, params json.RawMessage) {
	switch method {
	case "notifications/initialized":
		sess.FinishInitialize()
	case "notifications/cancelled":
		// Best-effort: in-flight handlers are not interrupted, only the
		// waiter (if any) will already have timed out or been answered.
	default:
		// Unknown notifications are dropped per spec.md §7.
	}
}

func (s *Server) handleInitialize(sess *session.Session, ex *Exchange, raw json.RawMessage) (*InitializeResult, error) {
	if !sess.BeginInitialize() {
		return nil, internalerrors.New("protocol", "initialize", internalerrors.ErrBadRequest, fmt.Errorf("session has already begun or finished initializing"))
	}

	var params InitializeParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, internalerrors.New("protocol", "initialize", internalerrors.ErrBadRequest, err)
		}
	}

	ex.SetClientIdentity(params.ClientInfo, params.Capabilities)

	negotiated := ProtocolVersion
	if len(s.protocolVersions) > 0 {
		negotiated = s.protocolVersions[0]
	}
	for _, v := range s.protocolVersions {
		if v == params.ProtocolVersion {
			negotiated = v
			break
		}
	}

	return &InitializeResult{
		ProtocolVersion: negotiated,
		ServerInfo:      s.info,
		Capabilities:    s.caps,
	}, nil
}

func (s *Server) handleToolsList(raw json.RawMessage) (*ToolsListResult, error) {
	if err := requireServerCapability(s.caps, s.caps.Tools != nil, "tools/list"); err != nil {
		return nil, err
	}
	entries := s.tools.List()
	page, next := paginate(len(entries), cursorFrom(raw))
	defs := make([]ToolDefinition, 0, len(page))
	for _, i := range page {
		defs = append(defs, entries[i].def)
	}
	return &ToolsListResult{Tools: defs, NextCursor: next}, nil
}

func (s *Server) handleToolsCall(ctx context.Context, raw json.RawMessage) (*ToolsCallResult, error) {
	if err := requireServerCapability(s.caps, s.caps.Tools != nil, "tools/call"); err != nil {
		return nil, err
	}
	var params ToolsCallParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, internalerrors.New("protocol", "tools/call", internalerrors.ErrBadRequest, err)
	}
	entry, err := s.tools.Get(params.Name)
	if err != nil {
		return nil, err
	}

	var result *ToolsCallResult
	var handlerErr error
	s.workers.run(func() {
		result, handlerErr = entry.handler(ctx, params.Arguments)
	})
	if handlerErr != nil {
		return &ToolsCallResult{
			Content: []Content{{Type: "text", Text: handlerErr.Error()}},
			IsError: true,
		}, nil
	}
	return result, nil
}

func (s *Server) handleResourcesList(raw json.RawMessage) (*ResourcesListResult, error) {
	if err := requireServerCapability(s.caps, s.caps.Resources != nil, "resources/list"); err != nil {
		return nil, err
	}
	entries := s.resources.List()
	page, next := paginate(len(entries), cursorFrom(raw))
	defs := make([]ResourceDefinition, 0, len(page))
	for _, i := range page {
		defs = append(defs, entries[i].def)
	}
	return &ResourcesListResult{Resources: defs, NextCursor: next}, nil
}

func (s *Server) handleResourceTemplatesList(raw json.RawMessage) (*ResourceTemplatesListResult, error) {
	if err := requireServerCapability(s.caps, s.caps.Resources != nil, "resources/templates/list"); err != nil {
		return nil, err
	}
	entries := s.resourceTemplates.List()
	page, next := paginate(len(entries), cursorFrom(raw))
	defs := make([]ResourceTemplateDefinition, 0, len(page))
	for _, i := range page {
		defs = append(defs, entries[i].def)
	}
	return &ResourceTemplatesListResult{ResourceTemplates: defs, NextCursor: next}, nil
}

func (s *Server) handleResourcesRead(ctx context.Context, raw json.RawMessage) (*ResourcesReadResult, error) {
	if err := requireServerCapability(s.caps, s.caps.Resources != nil, "resources/read"); err != nil {
		return nil, err
	}
	var params ResourcesReadParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, internalerrors.New("protocol", "resources/read", internalerrors.ErrBadRequest, err)
	}
	entry, err := s.resources.Get(params.URI)
	if err != nil {
		return nil, err
	}

	var result *ResourcesReadResult
	var readErr error
	s.workers.run(func() {
		result, readErr = entry.reader(ctx, params.URI)
	})
	if readErr != nil {
		return nil, internalerrors.New("protocol", "resources/read", internalerrors.ErrInternal, readErr)
	}
	return result, nil
}

func (s *Server) handlePromptsList(raw json.RawMessage) (*PromptsListResult, error) {
	if err := requireServerCapability(s.caps, s.caps.Prompts != nil, "prompts/list"); err != nil {
		return nil, err
	}
	entries := s.prompts.List()
	page, next := paginate(len(entries), cursorFrom(raw))
	defs := make([]PromptDefinition, 0, len(page))
	for _, i := range page {
		defs = append(defs, entries[i].def)
	}
	return &PromptsListResult{Prompts: defs, NextCursor: next}, nil
}

func (s *Server) handlePromptsGet(ctx context.Context, raw json.RawMessage) (*PromptsGetResult, error) {
	if err := requireServerCapability(s.caps, s.caps.Prompts != nil, "prompts/get"); err != nil {
		return nil, err
	}
	var params PromptsGetParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, internalerrors.New("protocol", "prompts/get", internalerrors.ErrBadRequest, err)
	}
	entry, err := s.prompts.Get(params.Name)
	if err != nil {
		return nil, err
	}

	var result *PromptsGetResult
	var handlerErr error
	s.workers.run(func() {
		result, handlerErr = entry.handler(ctx, params.Arguments)
	})
	if handlerErr != nil {
		return nil, internalerrors.New("protocol", "prompts/get", internalerrors.ErrInternal, handlerErr)
	}
	return result, nil
}

func (s *Server) handleComplete(ctx context.Context, raw json.RawMessage) (*CompleteResult, error) {
	if err := requireServerCapability(s.caps, s.caps.Completions != nil, "completion/complete"); err != nil {
		return nil, err
	}
	var params CompleteParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, internalerrors.New("protocol", "completion/complete", internalerrors.ErrBadRequest, err)
	}
	if err := s.requireCompletionTarget(params.Ref); err != nil {
		return nil, err
	}
	if s.completion == nil {
		return &CompleteResult{}, nil
	}
	return s.completion(ctx, params.Ref, params.Argument)
}

// requireCompletionTarget rejects a completion/complete ref naming a prompt
// or resource that is not registered, before the single completion handler
// is ever consulted. The registry the ref is checked against is chosen by
// ref.Type ("ref/prompt" keys on name, "ref/resource" keys on uri); any other
// type is rejected outright.
func (s *Server) requireCompletionTarget(ref CompleteRef) error {
	switch ref.Type {
	case "ref/prompt":
		if _, err := s.prompts.Get(ref.Name); err != nil {
			return internalerrors.New("protocol", "completion/complete", internalerrors.ErrNotFound, fmt.Errorf("no prompt registered with name %q", ref.Name)).
				WithContext("ref", ref)
		}
	case "ref/resource":
		if _, err := s.resources.Get(ref.URI); err != nil {
			return internalerrors.New("protocol", "completion/complete", internalerrors.ErrNotFound, fmt.Errorf("no resource registered with uri %q", ref.URI)).
				WithContext("ref", ref)
		}
	default:
		return internalerrors.New("protocol", "completion/complete", internalerrors.ErrBadRequest, fmt.Errorf("unknown completion ref type %q", ref.Type)).
			WithContext("ref", ref)
	}
	return nil
}

func (s *Server) handleSetLoggingLevel(ex *Exchange, raw json.RawMessage) (any, error) {
	if err := requireServerCapability(s.caps, s.caps.Logging != nil, "logging/setLevel"); err != nil {
		return nil, err
	}
	var params SetLoggingLevelParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, internalerrors.New("protocol", "logging/setLevel", internalerrors.ErrBadRequest, err)
	}
	if err := ex.SetMinLogLevel(params.Level); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func (s *Server) notifyToolsChanged()     { s.broadcast("notifications/tools/list_changed") }
func (s *Server) notifyResourcesChanged() { s.broadcast("notifications/resources/list_changed") }
func (s *Server) notifyPromptsChanged()   { s.broadcast("notifications/prompts/list_changed") }

func (s *Server) broadcast(method string) {
	s.mu.RLock()
	exchanges := make([]*Exchange, 0, len(s.exchanges))
	for _, ex := range s.exchanges {
		exchanges = append(exchanges, ex)
	}
	s.mu.RUnlock()

	for _, ex := range exchanges {
		_ = ex.call.Notify(context.Background(), method, nil)
	}
}

// cursorFrom extracts the cursor from a *ListParams-shaped raw params blob
// without needing to know which concrete params type it is.
func cursorFrom(raw json.RawMessage) Cursor {
	if len(raw) == 0 {
		return ""
	}
	var probe struct {
		Cursor Cursor `json:"cursor"`
	}
	_ = json.Unmarshal(raw, &probe)
	return probe.Cursor
}

// paginate slices [0, total) into pages of pageSize starting at cursor,
// returning the indices for this page and the cursor for the next one (empty
// once exhausted).
func paginate(total int, cursor Cursor) ([]int, Cursor) {
	start := 0
	if cursor != "" {
		if n, err := strconv.Atoi(string(cursor)); err == nil && n > 0 && n < total {
			start = n
		}
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	indices := make([]int, 0, end-start)
	for i := start; i < end; i++ {
		indices = append(indices, i)
	}
	next := Cursor("")
	if end < total {
		next = Cursor(strconv.Itoa(end))
	}
	return indices, next
}
