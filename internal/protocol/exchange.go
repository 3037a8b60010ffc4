package protocol

import (
	"context"
	"encoding/json"
	"sync"

	internalerrors "github.com/jamesprial/mcp-runtime/internal/errors"
	"github.com/jamesprial/mcp-runtime/internal/session"
)

// caller is the subset of *session.Session the exchange needs; kept as an
// interface so tests can supply a stub without a real transport.
type caller interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	Notify(ctx context.Context, method string, params any) error
}

// Exchange is the per-session handle a server-side method handler receives:
// it carries the peer's declared identity/capabilities and lets the handler
// call back into the client (spec.md §4.4.8 — roots/list,
// sampling/createMessage, notifications/message). It is never shared across
// sessions.
type Exchange struct {
	sess *session.Session
	call caller

	mu           sync.RWMutex
	clientInfo   ClientInfo
	clientCaps   ClientCapabilities
	minLogLevel  LogLevel
	initialized  bool
}

// NewExchange wires an Exchange to the session that will carry its reverse
// calls. call is ordinarily the same *session.Session but is accepted as an
// interface for testability.
func NewExchange(sess *session.Session, call caller) *Exchange {
	return &Exchange{
		sess:        sess,
		call:        call,
		minLogLevel: LogLevelInfo,
	}
}

// SetClientIdentity records the identity/capabilities the client declared
// during initialize. Called once, from the initialize handler.
func (e *Exchange) SetClientIdentity(info ClientInfo, caps ClientCapabilities) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clientInfo = info
	e.clientCaps = caps
	e.initialized = true
}

func (e *Exchange) ClientInfo() ClientInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.clientInfo
}

func (e *Exchange) ClientCapabilities() ClientCapabilities {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.clientCaps
}

// SetMinLogLevel applies the level requested via logging/setLevel
// (spec.md supplemented feature C.2): it gates only this session's log
// delivery, never a process-wide broadcast.
func (e *Exchange) SetMinLogLevel(level LogLevel) error {
	if !level.Valid() {
		return internalerrors.New("protocol", "SetMinLogLevel", internalerrors.ErrBadRequest, nil).WithContext("level", level)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.minLogLevel = level
	return nil
}

func (e *Exchange) minLevel() LogLevel {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.minLogLevel
}

// Log delivers a notifications/message to the client if level meets this
// session's configured minimum; otherwise it is dropped silently.
func (e *Exchange) Log(ctx context.Context, level LogLevel, loggerName string, data any) error {
	if !level.meetsMinimum(e.minLevel()) {
		return nil
	}
	return e.call.Notify(ctx, "notifications/message", LoggingMessageParams{
		Level:  level,
		Logger: loggerName,
		Data:   data,
	})
}

// ListRoots performs the reverse roots/list call. Fails locally with
// ErrCapabilityMissing if the client never advertised roots support.
func (e *Exchange) ListRoots(ctx context.Context) (*RootsListResult, error) {
	caps := e.ClientCapabilities()
	if err := requireClientCapability(caps.Roots != nil, "roots/list"); err != nil {
		return nil, err
	}

	raw, err := e.call.Call(ctx, "roots/list", nil)
	if err != nil {
		return nil, err
	}
	var result RootsListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, internalerrors.New("protocol", "ListRoots", internalerrors.ErrInternal, err)
	}
	return &result, nil
}

// CreateMessage performs the reverse sampling/createMessage call. Fails
// locally with ErrCapabilityMissing if the client never advertised
// sampling support.
func (e *Exchange) CreateMessage(ctx context.Context, params CreateMessageParams) (*CreateMessageResult, error) {
	caps := e.ClientCapabilities()
	if err := requireClientCapability(caps.Sampling != nil, "sampling/createMessage"); err != nil {
		return nil, err
	}

	raw, err := e.call.Call(ctx, "sampling/createMessage", params)
	if err != nil {
		return nil, err
	}
	var result CreateMessageResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, internalerrors.New("protocol", "CreateMessage", internalerrors.ErrInternal, err)
	}
	return &result, nil
}
