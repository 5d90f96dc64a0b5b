package mcpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	internalmw "kgraph/internal/middleware"
)

// session is one SSE client's outbound event channel: a JSON-RPC POST on
// /messages/ for this session ID is dispatched and the response delivered
// as an SSE "message" event on this channel rather than in the HTTP
// response to the POST itself, per the SSE transport's request/response
// decoupling.
type session struct {
	id     string
	events chan []byte
}

// SSERouter is the HTTP transport for C5: a long-lived GET /sse connection
// per client plus short-lived POST /messages/ calls correlated by
// session_id, grounded on the teacher's chi-based router construction.
type SSERouter struct {
	srv    *Server
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewSSERouter builds the chi mux serving srv's tool dispatcher over SSE.
func NewSSERouter(srv *Server, logger *zap.Logger) http.Handler {
	sr := &SSERouter{srv: srv, logger: logger, sessions: make(map[string]*session)}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(internalmw.CorrelationID)
	r.Use(internalmw.Recovery(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/sse", sr.handleSSE)
	r.Post("/messages/", sr.handleMessages)
	r.Get("/status", sr.handleStatus)

	return r
}

func (sr *SSERouter) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sess := &session{id: uuid.NewString(), events: make(chan []byte, 16)}
	sr.mu.Lock()
	sr.sessions[sess.id] = sess
	sr.mu.Unlock()
	defer func() {
		sr.mu.Lock()
		delete(sr.sessions, sess.id)
		sr.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: endpoint\ndata: /messages/?session_id=%s\n\n", sess.id)
	flusher.Flush()

	ctx := r.Context()
	ping := time.NewTicker(20 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case payload, ok := <-sess.events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func (sr *SSERouter) handleMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	sr.mu.Lock()
	sess, ok := sr.sessions[sessionID]
	sr.mu.Unlock()
	if !ok {
		http.Error(w, "unknown or expired session_id", http.StatusNotFound)
		return
	}

	var req jsonRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	resp := sr.srv.Handle(r.Context(), req)
	payload, err := json.Marshal(resp)
	if err != nil {
		sr.logger.Error("failed to marshal tool response", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	select {
	case sess.events <- payload:
		w.WriteHeader(http.StatusAccepted)
	default:
		sr.logger.Warn("session event channel full; dropping response", zap.String("session_id", sessionID))
		w.WriteHeader(http.StatusServiceUnavailable)
	}
}

func (sr *SSERouter) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := sr.srv.Status(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if st.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(st)
}
