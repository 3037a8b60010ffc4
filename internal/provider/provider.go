// Package provider implements the C5 server-side HTTP+SSE transport: a GET
// to the SSE endpoint mints a session and streams an `endpoint` event plus
// subsequent server-originated traffic; a POST to the message endpoint
// carries one inbound JSON-RPC envelope for an already-minted session
// (spec.md §4.5, §6.2).
package provider

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/jamesprial/mcp-runtime/internal/jsonrpc"
	"github.com/jamesprial/mcp-runtime/internal/protocol"
	"github.com/jamesprial/mcp-runtime/internal/session"
)

// writeQueueSize bounds the per-session SSE writer channel.
const writeQueueSize = 256

// SessionHook is invoked once a new session's Transport is connected and
// its Exchange attached, letting the caller (cmd wiring) do any
// per-session setup beyond what Provider itself owns.
type SessionHook func(sess *session.Session, exchange *protocol.Exchange)

// Provider fans a single MCP Server out across many concurrently connected
// HTTP+SSE clients. Each accepted GET mints one session; each POST to the
// message endpoint is routed to the session named by its sessionId query
// parameter.
type Provider struct {
	server          *protocol.Server
	messageEndpoint string
	logger          *slog.Logger
	onSession       SessionHook

	mu       sync.RWMutex
	sessions map[string]*sessionConn
	closing  bool
}

type sessionConn struct {
	sess      *session.Session
	exchange  *protocol.Exchange
	transport *serverSideTransport
}

// New creates a Provider backed by server. messageEndpoint is the path
// clients POST to, e.g. "/message"; the provider appends
// "?sessionId=<id>" when it announces it via the `endpoint` event.
func New(server *protocol.Server, messageEndpoint string, logger *slog.Logger, onSession SessionHook) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		server:          server,
		messageEndpoint: messageEndpoint,
		logger:          logger,
		onSession:       onSession,
		sessions:        make(map[string]*sessionConn),
	}
}

// ServeSSE handles the GET that establishes a client's event stream. It
// blocks until the client disconnects or the provider closes.
func (p *Provider) ServeSSE(w http.ResponseWriter, r *http.Request) {
	p.mu.RLock()
	closing := p.closing
	p.mu.RUnlock()
	if closing {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id, err := newSessionID()
	if err != nil {
		http.Error(w, "failed to mint session", http.StatusInternalServerError)
		return
	}

	transport := newServerSideTransport(id, p.logger)
	sess := session.New(id, transport, p.logger)
	exchange := p.server.Attach(sess)
	if err := sess.Start(); err != nil {
		http.Error(w, "failed to start session", http.StatusInternalServerError)
		return
	}

	conn := &sessionConn{
		sess:      sess,
		exchange:  exchange,
		transport: transport,
	}
	p.mu.Lock()
	p.sessions[id] = conn
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.sessions, id)
		p.mu.Unlock()
		p.server.Detach(sess)
		_ = sess.Close()
	}()

	if p.onSession != nil {
		p.onSession(sess, exchange)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	endpointURL := p.messageEndpoint + "?sessionId=" + url.QueryEscape(id)
	fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", endpointURL)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-transport.outbound:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", raw)
			flusher.Flush()
		}
	}
}

// ServeMessage handles the POST carrying one inbound envelope for the
// session named by the sessionId query parameter (spec.md §6.2).
func (p *Provider) ServeMessage(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("sessionId")
	if id == "" {
		writeJSONRPCError(w, http.StatusBadRequest, nil, jsonrpc.CodeInvalidRequest, "sessionId is required")
		return
	}

	p.mu.RLock()
	conn, ok := p.sessions[id]
	p.mu.RUnlock()
	if !ok {
		writeJSONRPCError(w, http.StatusNotFound, nil, jsonrpc.CodeInvalidRequest, "unknown session")
		return
	}

	defer r.Body.Close()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONRPCError(w, http.StatusBadRequest, nil, jsonrpc.CodeParseError, "failed to read body")
		return
	}

	env, err := jsonrpc.Decode(raw)
	if err != nil {
		writeJSONRPCError(w, http.StatusBadRequest, nil, jsonrpc.CodeParseError, err.Error())
		return
	}
	if env.Kind == jsonrpc.KindInvalid {
		writeJSONRPCError(w, http.StatusBadRequest, nil, jsonrpc.CodeInvalidRequest, "unclassifiable message")
		return
	}

	conn.transport.deliverEnvelope(env)

	w.WriteHeader(http.StatusAccepted)
}

// Broadcast sends method/params as a notification to every attached
// session, bypassing the registry-driven list-changed hooks in
// internal/protocol for ad hoc server-wide announcements.
func (p *Provider) Broadcast(ctx context.Context, method string, params any) {
	p.mu.RLock()
	conns := make([]*sessionConn, 0, len(p.sessions))
	for _, c := range p.sessions {
		conns = append(conns, c)
	}
	p.mu.RUnlock()

	for _, c := range conns {
		_ = c.sess.Notify(ctx, method, params)
	}
}

// CloseGracefully stops accepting new SSE connections and closes every
// active session, waiting up to ctx's deadline for in-flight handlers.
func (p *Provider) CloseGracefully(ctx context.Context) {
	p.mu.Lock()
	p.closing = true
	conns := make([]*sessionConn, 0, len(p.sessions))
	for _, c := range p.sessions {
		conns = append(conns, c)
	}
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *sessionConn) {
			defer wg.Done()
			_ = c.sess.CloseGracefully(ctx)
		}(c)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
	}

	p.mu.Lock()
	for _, c := range conns {
		delete(p.sessions, c.sess.ID())
	}
	p.mu.Unlock()
}

func newSessionID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func writeJSONRPCError(w http.ResponseWriter, status int, id any, code int, message string) {
	resp := jsonrpc.NewErrorResponse(id, code, message, nil)
	raw, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, message, status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}
