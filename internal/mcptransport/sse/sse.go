// Package sse implements the client side of the HTTP+SSE transport binding
// of spec.md §4.2/§6.2: an SSE GET establishes the downstream channel and
// yields an `endpoint` event carrying the message-posting URL; outbound
// messages are then POSTed to that URL.
package sse

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jamesprial/mcp-runtime/internal/jsonrpc"
	"github.com/jamesprial/mcp-runtime/internal/mcptransport"
)

// DefaultEndpointWait is the bounded wait for the `endpoint` SSE event
// before Send fails with mcptransport.ErrNotReady (spec.md §4.2).
const DefaultEndpointWait = 10 * time.Second

// acceptedPostStatuses are the statuses spec.md §6.2 allows for the POST
// message endpoint.
var acceptedPostStatuses = map[int]bool{
	http.StatusOK:             true,
	http.StatusCreated:        true,
	http.StatusAccepted:       true,
	http.StatusPartialContent: true,
}

type transport struct {
	httpClient   *http.Client
	baseURL      string
	endpointWait time.Duration
	logger       *slog.Logger

	body io.ReadCloser

	getCtx    context.Context
	getCancel context.CancelFunc

	ready      chan struct{}
	readyOnce  sync.Once
	messageURL string

	closed  chan struct{}
	closeMu sync.Mutex
}

// NewClientTransport issues the SSE GET to baseURL+sseEndpoint and returns a
// Transport once the connection is established. A non-2xx status is fatal
// (spec.md §6.2): this returns an error immediately rather than starting
// background delivery.
func NewClientTransport(ctx context.Context, httpClient *http.Client, baseURL, sseEndpoint string, endpointWait time.Duration, logger *slog.Logger) (mcptransport.Transport, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if endpointWait <= 0 {
		endpointWait = DefaultEndpointWait
	}
	if logger == nil {
		logger = slog.Default()
	}

	getCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(getCtx, http.MethodGet, strings.TrimRight(baseURL, "/")+sseEndpoint, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("sse: build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("sse: connect: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("sse: connect: unexpected status %d", resp.StatusCode)
	}

	t := &transport{
		httpClient:   httpClient,
		baseURL:      strings.TrimRight(baseURL, "/"),
		endpointWait: endpointWait,
		logger:       logger,
		body:         resp.Body,
		getCtx:       getCtx,
		getCancel:    cancel,
		ready:        make(chan struct{}),
		closed:       make(chan struct{}),
	}
	return t, nil
}

func (t *transport) Connect(handler mcptransport.InboundHandler) error {
	go t.readLoop(handler)
	return nil
}

func (t *transport) readLoop(handler mcptransport.InboundHandler) {
	defer t.body.Close()

	scanner := bufio.NewScanner(t.body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var eventType string
	var dataLines []string

	flush := func() {
		if eventType == "" && len(dataLines) == 0 {
			return
		}
		data := strings.Join(dataLines, "\n")
		switch eventType {
		case "endpoint":
			t.setMessageURL(data)
		case "message", "":
			mcptransport.DispatchRaw(t.logger, []byte(data), handler)
		default:
			t.logger.Debug("ignoring unrecognized SSE event", "event", eventType)
		}
		eventType = ""
		dataLines = nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, "id:"):
			// event id is informational; no resumption support here.
		default:
			// ignore comments and unknown fields per SSE grammar.
		}
	}
	flush()
}

func (t *transport) setMessageURL(data string) {
	resolved := data
	if u, err := url.Parse(data); err == nil && !u.IsAbs() {
		resolved = t.baseURL + data
	}
	t.messageURL = resolved
	t.readyOnce.Do(func() { close(t.ready) })
}

func (t *transport) Send(ctx context.Context, msg any) error {
	select {
	case <-t.closed:
		return mcptransport.ErrClosed
	default:
	}

	select {
	case <-t.ready:
	case <-time.After(t.endpointWait):
		return mcptransport.ErrNotReady
	case <-ctx.Done():
		return ctx.Err()
	}

	raw, err := jsonrpc.Encode(msg)
	if err != nil {
		return fmt.Errorf("sse: encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.messageURL, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("sse: build post: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sse: post: %w", err)
	}
	defer resp.Body.Close()

	if !acceptedPostStatuses[resp.StatusCode] {
		return fmt.Errorf("sse: post: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (t *transport) Unmarshal(raw json.RawMessage, v any) error {
	return jsonrpc.Unmarshal(raw, v)
}

func (t *transport) CloseGracefully(ctx context.Context) error {
	return t.Close()
}

func (t *transport) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	select {
	case <-t.closed:
		return nil
	default:
	}
	close(t.closed)
	t.getCancel()
	return nil
}
