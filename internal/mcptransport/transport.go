// Package mcptransport defines the transport-agnostic contract the session
// layer (internal/session) drives: move opaque JSON-RPC messages
// bidirectionally, deliver inbound envelopes to a handler in arrival order,
// and support graceful or immediate shutdown (spec.md §4.2).
package mcptransport

import (
	"context"
	"encoding/json"

	"github.com/jamesprial/mcp-runtime/internal/jsonrpc"
)

// InboundHandler receives one decoded, classified envelope at a time, in
// the order bytes arrived on the wire. Implementations (the session layer)
// must not block in this callback — spec.md §5 requires long-running
// handlers to be dispatched onto their own task.
type InboundHandler func(env *jsonrpc.Envelope)

// Transport moves JSON-RPC messages between this process and its peer.
// A Transport is single-session: the stdio binding owns one child process
// or one pair of standard streams, the client-side SSE binding owns one
// SSE+POST pairing. The HTTP+SSE server's multi-session fan-in lives in
// internal/provider (spec.md §4.5), which mints one server-facing Transport
// per accepted connection.
type Transport interface {
	// Connect starts inbound delivery. It must be called at most once.
	Connect(handler InboundHandler) error

	// Send encodes and enqueues msg, one of *jsonrpc.Request,
	// *jsonrpc.Response, or *jsonrpc.Notification. It returns once the
	// message is buffered for write, not once it is on the wire. If the
	// outbound queue is full, Send returns ErrSendQueueFull (transient);
	// the caller may retry.
	Send(ctx context.Context, msg any) error

	// CloseGracefully stops accepting new sends, drains the outbound queue
	// best-effort, then releases underlying resources.
	CloseGracefully(ctx context.Context) error

	// Close releases underlying resources immediately.
	Close() error

	// Unmarshal decodes raw into v, tolerating unknown fields.
	Unmarshal(raw json.RawMessage, v any) error
}
