package mcptransport

import "errors"

// Sentinel errors for transport operations. Domain errors raised by callers
// (internal/session, internal/protocol) wrap these via internal/errors.
var (
	// ErrClosed indicates the transport has already been closed.
	ErrClosed = errors.New("transport closed")

	// ErrSendQueueFull is a transient back-pressure signal: the outbound
	// queue is full and the caller may retry (spec.md §4.2).
	ErrSendQueueFull = errors.New("outbound queue full")

	// ErrNotReady indicates the HTTP+SSE client transport's bounded wait
	// for the `endpoint` event expired before sendMessage could learn the
	// message-posting URL (spec.md §4.2).
	ErrNotReady = errors.New("transport not ready")

	// ErrNotConnected indicates Send/CloseGracefully was called before
	// Connect.
	ErrNotConnected = errors.New("transport not connected")
)
