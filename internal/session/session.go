// Package session implements the C3 session multiplexer: request-id
// generation, matching of inbound responses to pending outbound calls,
// dispatch of inbound requests/notifications to caller-supplied handlers,
// and the Uninitialized -> Initializing -> Initialized state machine a
// session moves through exactly once.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	internalerrors "github.com/jamesprial/mcp-runtime/internal/errors"
	"github.com/jamesprial/mcp-runtime/internal/jsonrpc"
	"github.com/jamesprial/mcp-runtime/internal/mcptransport"
)

// DefaultRequestTimeout bounds how long Call waits for a matching response
// before failing with internalerrors.ErrTimeout.
const DefaultRequestTimeout = 20 * time.Second

// State is the session's position in the Uninitialized -> Initializing ->
// Initialized lifecycle.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateInitialized
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateInitialized:
		return "initialized"
	default:
		return "unknown"
	}
}

// RequestHandler answers an inbound request. Returning an error maps to a
// JSON-RPC error response via internalerrors.JSONRPCCode.
type RequestHandler func(ctx context.Context, method string, params json.RawMessage) (result any, err error)

// NotificationHandler reacts to an inbound notification. There is no
// response to send; errors are logged and dropped.
type NotificationHandler func(ctx context.Context, method string, params json.RawMessage)

// Session multiplexes one Transport: it assigns ids to outbound requests,
// matches inbound responses back to their waiters, and routes inbound
// requests/notifications to handlers supplied by the protocol layer.
type Session struct {
	id        string
	transport mcptransport.Transport
	logger    *slog.Logger

	requestTimeout time.Duration

	counter uint64

	mu      sync.Mutex
	pending map[string]chan *jsonrpc.Response

	requestHandler      RequestHandler
	notificationHandler NotificationHandler

	state      atomic.Int32
	closed     chan struct{}
	closeOnce  sync.Once
	handlersWG sync.WaitGroup
}

// New creates a Session bound to transport. The session prefix is used to
// namespace request ids (spec.md: "<session-prefix>-<atomic-counter>").
func New(sessionPrefix string, transport mcptransport.Transport, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		id:             sessionPrefix,
		transport:      transport,
		logger:         logger,
		requestTimeout: DefaultRequestTimeout,
		pending:        make(map[string]chan *jsonrpc.Response),
		closed:         make(chan struct{}),
	}
}

// SetRequestHandler installs the inbound-request handler. Must be called
// before Start.
func (s *Session) SetRequestHandler(h RequestHandler) { s.requestHandler = h }

// SetNotificationHandler installs the inbound-notification handler. Must be
// called before Start.
func (s *Session) SetNotificationHandler(h NotificationHandler) { s.notificationHandler = h }

// SetRequestTimeout overrides DefaultRequestTimeout.
func (s *Session) SetRequestTimeout(d time.Duration) {
	if d > 0 {
		s.requestTimeout = d
	}
}

// ID returns the session's id prefix.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Start begins dispatching inbound traffic from the transport.
func (s *Session) Start() error {
	return s.transport.Connect(s.dispatch)
}

// BeginInitialize enforces at-most-one initialize attempt: it transitions
// Uninitialized -> Initializing and returns true, or returns false if the
// session has already begun or finished initializing. The protocol layer
// maps a false return to a rejected second `initialize` call.
func (s *Session) BeginInitialize() bool {
	return s.state.CompareAndSwap(int32(StateUninitialized), int32(StateInitializing))
}

// FinishInitialize transitions Initializing -> Initialized.
func (s *Session) FinishInitialize() {
	s.state.CompareAndSwap(int32(StateInitializing), int32(StateInitialized))
}

func (s *Session) nextID() string {
	n := atomic.AddUint64(&s.counter, 1)
	return fmt.Sprintf("%s-%d", s.id, n)
}

// Call sends a request and blocks until the matching response arrives, the
// per-call timeout expires, ctx is done, or the session closes.
func (s *Session) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := s.nextID()
	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		return nil, internalerrors.New("session", "Call", internalerrors.ErrBadRequest, err)
	}

	waiter := make(chan *jsonrpc.Response, 1)
	s.mu.Lock()
	s.pending[idKey(id)] = waiter
	s.mu.Unlock()

	cleanup := func() {
		s.mu.Lock()
		delete(s.pending, idKey(id))
		s.mu.Unlock()
	}

	if err := s.transport.Send(ctx, req); err != nil {
		cleanup()
		return nil, internalerrors.New("session", "Call", internalerrors.ErrTransportFailure, err)
	}

	timeout := s.requestTimeout
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-waiter:
		if resp.Error != nil {
			return nil, internalerrors.New("session", "Call", internalerrors.ErrBadRequest, resp.Error).
				WithContext("method", method)
		}
		return resp.Result, nil
	case <-timer.C:
		cleanup()
		return nil, internalerrors.New("session", "Call", internalerrors.ErrTimeout, fmt.Errorf("no response to %q within %s", method, timeout))
	case <-ctx.Done():
		cleanup()
		return nil, ctx.Err()
	case <-s.closed:
		cleanup()
		return nil, internalerrors.New("session", "Call", internalerrors.ErrCancelled, fmt.Errorf("session closed"))
	}
}

// Notify sends a one-way notification; there is no response to await.
func (s *Session) Notify(ctx context.Context, method string, params any) error {
	note, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return internalerrors.New("session", "Notify", internalerrors.ErrBadRequest, err)
	}
	if err := s.transport.Send(ctx, note); err != nil {
		return internalerrors.New("session", "Notify", internalerrors.ErrTransportFailure, err)
	}
	return nil
}

// dispatch is the transport's InboundHandler: it classifies the envelope
// and routes it without blocking the transport's own reader goroutine.
func (s *Session) dispatch(env *jsonrpc.Envelope) {
	switch env.Kind {
	case jsonrpc.KindResponse:
		s.deliverResponse(env.Response)
	case jsonrpc.KindRequest:
		s.handleRequestAsync(env.Request)
	case jsonrpc.KindNotification:
		s.handleNotificationAsync(env.Notification)
	default:
		s.logger.Warn("dropping envelope of unknown kind")
	}
}

func (s *Session) deliverResponse(resp *jsonrpc.Response) {
	key := idKey(resp.ID)
	s.mu.Lock()
	waiter, ok := s.pending[key]
	if ok {
		delete(s.pending, key)
	}
	s.mu.Unlock()

	if !ok {
		s.logger.Warn("dropping response for unknown or already-resolved request", "id", key)
		return
	}
	waiter <- resp
}

func (s *Session) handleRequestAsync(req *jsonrpc.Request) {
	if s.requestHandler == nil {
		s.sendErrorResponse(req.ID, internalerrors.CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
		return
	}

	s.handlersWG.Add(1)
	go func() {
		defer s.handlersWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
		defer cancel()

		result, err := s.requestHandler(ctx, req.Method, req.Params)
		if err != nil {
			code := internalerrors.JSONRPCCode(err)
			s.sendErrorResponse(req.ID, code, err.Error())
			return
		}

		resp, err := jsonrpc.NewResultResponse(req.ID, result)
		if err != nil {
			s.sendErrorResponse(req.ID, jsonrpc.CodeInternalError, err.Error())
			return
		}
		if sendErr := s.transport.Send(context.Background(), resp); sendErr != nil {
			s.logger.Warn("failed to send response", "method", req.Method, "error", sendErr)
		}
	}()
}

func (s *Session) handleNotificationAsync(note *jsonrpc.Notification) {
	if s.notificationHandler == nil {
		return
	}
	s.handlersWG.Add(1)
	go func() {
		defer s.handlersWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
		defer cancel()
		s.notificationHandler(ctx, note.Method, note.Params)
	}()
}

func (s *Session) sendErrorResponse(id any, code int, message string) {
	resp := jsonrpc.NewErrorResponse(id, code, message, nil)
	if err := s.transport.Send(context.Background(), resp); err != nil {
		s.logger.Warn("failed to send error response", "error", err)
	}
}

// Close tears down the session immediately: pending calls fail with
// ErrCancelled, the transport is closed without draining.
func (s *Session) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return s.transport.Close()
}

// CloseGracefully lets in-flight handler goroutines finish (bounded by ctx)
// before closing the transport.
func (s *Session) CloseGracefully(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.closed) })

	done := make(chan struct{})
	go func() {
		s.handlersWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
	return s.transport.CloseGracefully(ctx)
}

// idKey normalizes an id (string, float64, or nil from decoded JSON; string
// from ids we minted ourselves) into a map key.
func idKey(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
