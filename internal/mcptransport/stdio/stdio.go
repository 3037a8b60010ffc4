// Package stdio implements the line-delimited JSON-over-stdio transport
// binding of spec.md §6.1: one JSON document per line, no embedded
// newlines, stderr carrying unstructured diagnostics.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/jamesprial/mcp-runtime/internal/jsonrpc"
	"github.com/jamesprial/mcp-runtime/internal/mcptransport"
)

// outboundQueueSize bounds the writer channel so Send can express
// back-pressure per spec.md §4.2.
const outboundQueueSize = 256

// drainDelay is how long CloseGracefully waits for the outbound queue to
// flush before signaling the child process to terminate.
const drainDelay = 200 * time.Millisecond

// transport implements mcptransport.Transport over a pair of byte streams,
// optionally owning a child process.
type transport struct {
	logger *slog.Logger

	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
	cmd    *exec.Cmd

	stderrSink func(line string)

	outbound chan []byte
	closed   chan struct{}

	// closeMu serializes Send against Close/CloseGracefully: a writer holds
	// the read lock for the duration of its send, so close(outbound) under
	// the write lock can never race a send on it.
	closeMu sync.RWMutex

	connectOnce sync.Once
	writerDone  chan struct{}
}

// NewClientTransport spawns a child process and returns a Transport backed
// by its stdin/stdout/stderr. stderrSink receives each stderr line (default:
// logged at Warn, never parsed as protocol per spec.md §6.1).
func NewClientTransport(ctx context.Context, command string, args, env []string, stderrSink func(line string), logger *slog.Logger) (mcptransport.Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.CommandContext(ctx, command, args...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdio: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdio: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stdio: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("stdio: start child process: %w", err)
	}

	return &transport{
		logger:     logger,
		stdin:      stdin,
		stdout:     stdout,
		stderr:     stderr,
		cmd:        cmd,
		stderrSink: stderrSink,
		outbound:   make(chan []byte, outboundQueueSize),
		closed:     make(chan struct{}),
		writerDone: make(chan struct{}),
	}, nil
}

// NewServerTransport wraps the given reader/writer (typically os.Stdin and
// os.Stdout) as a Transport for a process acting as the MCP server endpoint.
// It owns no child process.
func NewServerTransport(stdin io.Reader, stdout io.Writer, logger *slog.Logger) mcptransport.Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &transport{
		logger:     logger,
		stdin:      nopWriteCloser{stdout},
		stdout:     io.NopCloser(stdin),
		outbound:   make(chan []byte, outboundQueueSize),
		closed:     make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// Connect starts the inbound reader, outbound writer, and (if present)
// stderr worker tasks (spec.md §4.2).
func (t *transport) Connect(handler mcptransport.InboundHandler) error {
	var startErr error
	t.connectOnce.Do(func() {
		go t.readLoop(handler)
		go t.writeLoop()
		if t.stderr != nil {
			go t.stderrLoop()
		}
	})
	return startErr
}

func (t *transport) readLoop(handler mcptransport.InboundHandler) {
	scanner := bufio.NewScanner(t.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		raw := make([]byte, len(line))
		copy(raw, line)
		func(b []byte) {
			defer func() {
				if r := recover(); r != nil {
					t.logger.Error("panic in inbound handler", "panic", r)
				}
			}()
			mcptransport.DispatchRaw(t.logger, b, handler)
		}(raw)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		t.logger.Warn("stdio inbound reader stopped", "error", err)
	}
}

func (t *transport) stderrLoop() {
	scanner := bufio.NewScanner(t.stderr)
	for scanner.Scan() {
		line := scanner.Text()
		if t.stderrSink != nil {
			t.stderrSink(line)
		} else {
			t.logger.Warn("stdio child stderr", "line", line)
		}
	}
}

func (t *transport) writeLoop() {
	defer close(t.writerDone)
	for raw := range t.outbound {
		if _, err := t.stdin.Write(append(raw, '\n')); err != nil {
			t.logger.Warn("stdio outbound writer stopped", "error", err)
			return
		}
	}
}

// Send enqueues msg for the writer task. It never blocks: a full queue
// surfaces mcptransport.ErrSendQueueFull immediately.
func (t *transport) Send(ctx context.Context, msg any) error {
	t.closeMu.RLock()
	defer t.closeMu.RUnlock()

	select {
	case <-t.closed:
		return mcptransport.ErrClosed
	default:
	}

	raw, err := jsonrpc.Encode(msg)
	if err != nil {
		return fmt.Errorf("stdio: encode: %w", err)
	}

	select {
	case t.outbound <- raw:
		return nil
	default:
		return mcptransport.ErrSendQueueFull
	}
}

func (t *transport) Unmarshal(raw json.RawMessage, v any) error {
	return jsonrpc.Unmarshal(raw, v)
}

// CloseGracefully stops accepting sends, drains the outbound queue
// best-effort, signals the child process to terminate, and awaits its exit.
func (t *transport) CloseGracefully(ctx context.Context) error {
	if !t.beginClose() {
		return nil
	}

	select {
	case <-t.writerDone:
	case <-time.After(drainDelay):
	case <-ctx.Done():
	}

	return t.terminate()
}

// Close releases resources immediately, without draining.
func (t *transport) Close() error {
	if !t.beginClose() {
		return nil
	}
	return t.terminate()
}

// beginClose closes t.closed and t.outbound exactly once, under the same
// lock Send holds for the duration of its own enqueue — so a Send in flight
// always completes (or observes t.closed) before the channel it writes to is
// closed. Returns false if another call already closed the transport.
func (t *transport) beginClose() bool {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()

	select {
	case <-t.closed:
		return false
	default:
	}
	close(t.closed)
	close(t.outbound)
	return true
}

func (t *transport) terminate() error {
	_ = t.stdin.Close()
	_ = t.stdout.Close()
	if t.stderr != nil {
		_ = t.stderr.Close()
	}
	if t.cmd == nil || t.cmd.Process == nil {
		return nil
	}
	_ = t.cmd.Process.Kill()
	_ = t.cmd.Wait()
	return nil
}
