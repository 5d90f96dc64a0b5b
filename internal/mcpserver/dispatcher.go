package mcpserver

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kgraph/internal/config"
	"kgraph/internal/domain"
	"kgraph/internal/errs"
	"kgraph/internal/graphstore"
	"kgraph/internal/guard"
	"kgraph/internal/ingestion"
	"kgraph/internal/middleware"
	"kgraph/internal/schema"
)

// Server holds every dependency the tool dispatcher routes into: C1-C4 plus
// the destructive-operation guard and the namespace defaults from config.
// A Server is shared across every session — it carries no per-session
// state beyond what a handler reads from the request itself.
type Server struct {
	Registry *schema.Registry
	Store    graphstore.Store
	Engine   *ingestion.Engine
	Guard    *guard.Token
	Config   *config.Config
	Logger   *zap.Logger
}

type toolHandler func(ctx context.Context, s *Server, input json.RawMessage) (any, *errs.Error)

var toolHandlers = map[string]toolHandler{
	"add_episode":        handleAddEpisode,
	"search_nodes":       handleSearchNodes,
	"search_facts":       handleSearchFacts,
	"get_entity_edge":    handleGetEntityEdge,
	"get_episodes":       handleGetEpisodes,
	"delete_entity_edge": handleDeleteEntityEdge,
	"delete_episode":     handleDeleteEpisode,
	"clear_graph":        handleClearGraph,
}

// Handle dispatches one JSON-RPC request and always returns a well-formed
// response — the dispatcher never lets an uncaught exception or bare error
// escape to the wire (spec.md §4.5/§7).
func (s *Server) Handle(ctx context.Context, req jsonRPCRequest) jsonRPCResponse {
	if req.Method != "tool" {
		return jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32601, Message: "method not found", Data: req.Method}}
	}

	var params toolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32602, Message: "invalid params", Data: err.Error()}}
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32601, Message: "unknown tool", Data: params.Name}}
	}

	result, toolErr := s.callSafely(ctx, handler, params.Input)
	if toolErr != nil {
		return jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Error: toRPCError(toolErr)}
	}
	return jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
}

// callSafely recovers a panicking handler into an Internal error so a bug
// in one tool can never take down the session's read loop.
func (s *Server) callSafely(ctx context.Context, handler toolHandler, input json.RawMessage) (result any, toolErr *errs.Error) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("tool handler panicked", zap.Any("panic", r))
			toolErr = errs.Newf(errs.Internal, "tool handler panicked: %v", r)
		}
	}()
	return handler(ctx, s, input)
}

func toRPCError(e *errs.Error) *rpcError {
	return &rpcError{Code: codeForKind(e.Kind), Message: e.Message, Data: e.Detail}
}

func codeForKind(k errs.Kind) int {
	switch k {
	case errs.InvalidArgument:
		return -32602
	case errs.NotFound:
		return -32001
	case errs.PermissionDenied:
		return -32002
	case errs.AuthRequired:
		return -32003
	case errs.AuthInvalid:
		return -32004
	case errs.ExtractionFailed:
		return -32005
	case errs.BackendUnavailable:
		return -32006
	case errs.NotInitialized:
		return -32007
	default:
		return -32603
	}
}

func (s *Server) defaultNamespace(requested string) string {
	if requested != "" {
		return requested
	}
	return s.Config.Namespaces.Default
}

func (s *Server) defaultNamespaces(requested []string) []string {
	if len(requested) > 0 {
		return requested
	}
	return []string{s.Config.Namespaces.Default}
}

func handleAddEpisode(ctx context.Context, s *Server, input json.RawMessage) (any, *errs.Error) {
	var args addEpisodeArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "malformed add_episode arguments", err)
	}
	if args.Name == "" || args.Body == "" {
		return nil, errs.New(errs.InvalidArgument, "add_episode requires name and body")
	}
	format := domain.Format(args.Format)
	switch format {
	case domain.FormatText, domain.FormatMessage, domain.FormatJSON:
	default:
		return nil, errs.Newf(errs.InvalidArgument, "unknown format %q", args.Format)
	}

	id := args.UUID
	if id == "" {
		id = uuid.NewString()
	}

	ep := domain.Episode{
		UUID:              id,
		Name:              args.Name,
		Body:              args.Body,
		Format:            format,
		Namespace:         s.defaultNamespace(args.Namespace),
		SourceDescription: args.SourceDescription,
		ReferenceTime:     time.Now().UTC(),
	}

	correlate := middleware.GetCorrelationID(ctx)
	if correlate == "" {
		correlate = uuid.NewString()
	}

	schemas := s.Registry.All()
	res := s.Engine.Enqueue(ep, schemas, correlate)
	return addEpisodeResult{Queued: res.Queued, Position: res.Position}, nil
}

func handleSearchNodes(ctx context.Context, s *Server, input json.RawMessage) (any, *errs.Error) {
	var args searchNodesArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "malformed search_nodes arguments", err)
	}
	limit := 10
	if args.Limit != nil {
		limit = *args.Limit
	}
	nodes, err := s.Store.SearchNodes(ctx, graphstore.SearchOptions{
		Query:       args.Query,
		Namespaces:  s.defaultNamespaces(args.Namespaces),
		Limit:       limit,
		CenterUUID:  args.CenterUUID,
		LabelFilter: args.LabelFilter,
	})
	if err != nil {
		return nil, errs.Classify(err)
	}
	return struct {
		Message string              `json:"message"`
		Nodes   []domain.EntityNode `json:"nodes"`
	}{Message: "ok", Nodes: nodes}, nil
}

func handleSearchFacts(ctx context.Context, s *Server, input json.RawMessage) (any, *errs.Error) {
	var args searchFactsArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "malformed search_facts arguments", err)
	}
	limit := 10
	if args.Limit != nil {
		limit = *args.Limit
	}
	facts, err := s.Store.SearchFacts(ctx, graphstore.SearchOptions{
		Query:      args.Query,
		Namespaces: s.defaultNamespaces(args.Namespaces),
		Limit:      limit,
		CenterUUID: args.CenterUUID,
	})
	if err != nil {
		return nil, errs.Classify(err)
	}
	return struct {
		Message string              `json:"message"`
		Facts   []domain.EntityEdge `json:"facts"`
	}{Message: "ok", Facts: facts}, nil
}

func handleGetEntityEdge(ctx context.Context, s *Server, input json.RawMessage) (any, *errs.Error) {
	var args uuidArgs
	if err := json.Unmarshal(input, &args); err != nil || args.UUID == "" {
		return nil, errs.New(errs.InvalidArgument, "get_entity_edge requires uuid")
	}
	edge, err := s.Store.GetEntityEdge(ctx, args.UUID)
	if err != nil {
		return nil, errs.Classify(err)
	}
	return edge, nil
}

func handleGetEpisodes(ctx context.Context, s *Server, input json.RawMessage) (any, *errs.Error) {
	var args getEpisodesArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "malformed get_episodes arguments", err)
	}
	lastN := 10
	if args.LastN != nil {
		lastN = *args.LastN
	}
	episodes, err := s.Store.GetEpisodes(ctx, s.defaultNamespace(args.Namespace), lastN, time.Time{})
	if err != nil {
		return nil, errs.Classify(err)
	}
	return episodes, nil
}

func handleDeleteEntityEdge(ctx context.Context, s *Server, input json.RawMessage) (any, *errs.Error) {
	var args uuidArgs
	if err := json.Unmarshal(input, &args); err != nil || args.UUID == "" {
		return nil, errs.New(errs.InvalidArgument, "delete_entity_edge requires uuid")
	}
	if err := s.Store.DeleteEntityEdge(ctx, args.UUID); err != nil {
		return nil, errs.Classify(err)
	}
	return messageResult{Message: "deleted"}, nil
}

func handleDeleteEpisode(ctx context.Context, s *Server, input json.RawMessage) (any, *errs.Error) {
	var args uuidArgs
	if err := json.Unmarshal(input, &args); err != nil || args.UUID == "" {
		return nil, errs.New(errs.InvalidArgument, "delete_episode requires uuid")
	}
	if err := s.Store.DeleteEpisode(ctx, args.UUID); err != nil {
		return nil, errs.Classify(err)
	}
	return messageResult{Message: "deleted"}, nil
}

// handleClearGraph implements the two-step destructive-operation guard
// (spec.md §4.5): restricted to the root namespace, a no-auth call shows
// the current code without consuming it, a mismatched auth rotates the
// code and fails, and a matching auth clears the namespace, rebuilds
// indices, and rotates the code again.
func handleClearGraph(ctx context.Context, s *Server, input json.RawMessage) (any, *errs.Error) {
	var args clearGraphArgs
	_ = json.Unmarshal(input, &args)

	if s.Config.Namespaces.Default != s.Config.Namespaces.Root {
		return nil, errs.New(errs.PermissionDenied, "clear_graph is restricted to the root namespace")
	}

	if args.Auth == "" {
		code := s.Guard.Current()
		return nil, errs.New(errs.AuthRequired, "re-call with auth = code + '_DELETE_THIS_GRAPH' after user confirmation").
			WithDetail(map[string]any{"code": code})
	}

	ok, newCode := s.Guard.Check(args.Auth)
	if !ok {
		return nil, errs.New(errs.AuthInvalid, "auth did not match; a new code has been issued").
			WithDetail(map[string]any{"code": newCode})
	}

	if err := s.Store.Clear(ctx, s.Config.Namespaces.Root); err != nil {
		return nil, errs.Classify(err)
	}
	if err := s.Store.BuildIndicesAndConstraints(ctx); err != nil {
		s.Logger.Warn("rebuilding indices after clear_graph failed", zap.Error(err))
	}
	return messageResult{Message: "graph cleared"}, nil
}

// Status implements the status resource (spec.md §4.5/§4.6): pings the
// graph adapter via VerifyConnectivity.
func (s *Server) Status(ctx context.Context) statusResult {
	if err := s.Store.VerifyConnectivity(ctx); err != nil {
		return statusResult{Status: "error", Message: err.Error()}
	}
	return statusResult{Status: "ok", Message: "connected"}
}
