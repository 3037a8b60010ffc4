package mcptransport

import (
	"log/slog"

	"github.com/jamesprial/mcp-runtime/internal/jsonrpc"
)

// DispatchRaw decodes one line/frame of wire bytes and, if it classifies
// into one of the three JSON-RPC shapes, hands it to handler. A decode
// failure (ParseError) or an unclassifiable-but-well-formed value
// (InvalidRequest) is logged and dropped — malformed inbound traffic never
// kills the session (spec.md §7).
func DispatchRaw(logger *slog.Logger, raw []byte, handler InboundHandler) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(raw) == 0 {
		return
	}

	env, err := jsonrpc.Decode(raw)
	if err != nil {
		logger.Warn("dropping malformed inbound message", "error", err)
		return
	}
	if env.Kind == jsonrpc.KindInvalid {
		logger.Warn("dropping unclassifiable inbound message", "raw", string(raw))
		return
	}
	handler(env)
}
