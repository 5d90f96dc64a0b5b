package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

// CorrelationIDKey is the context key the dispatcher reads to tag an
// ingestion task with the HTTP request that enqueued it, so a worker's log
// line and the request that triggered it share one identifier end to end.
const CorrelationIDKey contextKey = "correlationID"

// CorrelationIDHeader is the inbound/outbound header carrying the id, so a
// caller that already tracks its own correlation id (e.g. chaining calls
// across its own services) can supply one instead of getting a minted one.
const CorrelationIDHeader = "X-Correlation-Id"

// CorrelationID stamps every request with an id that flows through to
// internal/mcpserver's dispatcher: add_episode uses it as the ingestion
// task's correlation id (dispatcher.go) instead of minting a second, unrelated
// one, so a namespace's worker log and the SSE request that caused it
// reference the same string.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), CorrelationIDKey, id)
		w.Header().Set(CorrelationIDHeader, id)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetCorrelationID reads the id stamped on ctx under CorrelationIDKey (by
// the CorrelationID middleware, or per line by the stdio transport), or ""
// if none was set.
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}
