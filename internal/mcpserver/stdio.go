package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kgraph/internal/middleware"
)

// initialScanBufferSize/maxScanBufferSize bound the line-delimited JSON-RPC
// scanner, matching the stdio MCP pattern in the example pack: line
// payloads are usually small, but an add_episode body can be large.
const (
	initialScanBufferSize = 1 << 20  // 1MB
	maxScanBufferSize     = 10 << 20 // 10MB
)

// ServeStdio runs srv's tool dispatcher over a line-delimited JSON-RPC
// protocol on r/w: each line is one request, each response is written back
// as one line. Returns when r is exhausted or ctx is cancelled.
func ServeStdio(ctx context.Context, srv *Server, r io.Reader, w io.Writer, logger *zap.Logger) error {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, initialScanBufferSize)
	scanner.Buffer(buf, maxScanBufferSize)

	enc := json.NewEncoder(w)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req jsonRPCRequest
		if err := json.Unmarshal(line, &req); err != nil {
			logger.Warn("discarding malformed stdio line", zap.Error(err))
			_ = enc.Encode(jsonRPCResponse{
				JSONRPC: "2.0",
				Error:   &rpcError{Code: -32700, Message: "parse error", Data: err.Error()},
			})
			continue
		}

		lineCtx := context.WithValue(ctx, middleware.CorrelationIDKey, uuid.NewString())
		resp := srv.Handle(lineCtx, req)
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}
