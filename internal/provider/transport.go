package provider

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/jamesprial/mcp-runtime/internal/jsonrpc"
	"github.com/jamesprial/mcp-runtime/internal/mcptransport"
)

// serverSideTransport is the mcptransport.Transport a Provider mints for
// each accepted SSE connection: Send enqueues onto the channel ServeSSE
// drains into `event: message` frames; inbound POST bodies are fed in via
// deliverInbound rather than a reader goroutine, since there is no
// persistent inbound byte stream to scan (spec.md §4.5, §6.2).
type serverSideTransport struct {
	id      string
	logger  *slog.Logger
	handler mcptransport.InboundHandler

	outbound chan []byte

	// closeMu serializes Send against Close: a send holds the read lock for
	// its duration, so closing outbound under the write lock never races it.
	closeMu sync.RWMutex
	closed  chan struct{}
}

func newServerSideTransport(id string, logger *slog.Logger) *serverSideTransport {
	return &serverSideTransport{
		id:       id,
		logger:   logger,
		outbound: make(chan []byte, writeQueueSize),
		closed:   make(chan struct{}),
	}
}

func (t *serverSideTransport) Connect(handler mcptransport.InboundHandler) error {
	t.handler = handler
	return nil
}

func (t *serverSideTransport) Send(ctx context.Context, msg any) error {
	t.closeMu.RLock()
	defer t.closeMu.RUnlock()

	select {
	case <-t.closed:
		return mcptransport.ErrClosed
	default:
	}

	raw, err := jsonrpc.Encode(msg)
	if err != nil {
		return err
	}

	select {
	case t.outbound <- raw:
		return nil
	default:
		return mcptransport.ErrSendQueueFull
	}
}

// deliverEnvelope hands one already-decoded POSTed message to the
// session's dispatch handler. Decoding happens once, in Provider.ServeMessage,
// so a malformed POST can be reported in the POST response itself rather
// than silently dropped the way a byte-stream transport would.
func (t *serverSideTransport) deliverEnvelope(env *jsonrpc.Envelope) {
	if t.handler != nil {
		t.handler(env)
	}
}

func (t *serverSideTransport) Unmarshal(raw json.RawMessage, v any) error {
	return jsonrpc.Unmarshal(raw, v)
}

func (t *serverSideTransport) CloseGracefully(ctx context.Context) error {
	return t.Close()
}

func (t *serverSideTransport) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()

	select {
	case <-t.closed:
		return nil
	default:
	}
	close(t.closed)
	close(t.outbound)
	return nil
}
