package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"
)

// Recovery builds a panic-recovery middleware that logs the panic with its
// stack trace through logger and, if nothing has been written to the
// response yet, replies with a JSON-RPC-shaped internal error envelope
// rather than letting the panic reach the standard library's own recovery
// (which would hang up the connection with no body at all).
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						zap.String("correlation_id", GetCorrelationID(r.Context())),
						zap.Any("panic", err),
						zap.ByteString("stack", debug.Stack()),
					)
					if w.Header().Get("Content-Type") == "" {
						w.Header().Set("Content-Type", "application/json")
						w.WriteHeader(http.StatusInternalServerError)
						_ = json.NewEncoder(w).Encode(map[string]any{
							"jsonrpc": "2.0",
							"error": map[string]any{
								"code":    -32603,
								"message": "internal error",
							},
						})
					}
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
