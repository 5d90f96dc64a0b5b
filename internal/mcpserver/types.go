// Package mcpserver implements the Tool Dispatcher / Session Layer (C5):
// the JSON-RPC-over-SSE tool protocol, argument validation, routing to
// C1-C4, and the two transports (SSE and stdio) that carry it.
package mcpserver

import "encoding/json"

// jsonRPCRequest is a JSON-RPC 2.0 request envelope. Grounded on the
// minimal stdio MCP server pattern in the example pack, adapted to this
// spec's tool surface: method is always "tool", and params carries
// {name, input} rather than the full MCP tools/call shape.
type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// toolParams is the body of a "tool" method call: {name, input}.
type toolParams struct {
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// Typed tool argument records, one per entry in the spec.md §4.5 tool table.

type addEpisodeArgs struct {
	Name              string `json:"name"`
	Body              string `json:"body"`
	Format            string `json:"format"`
	Namespace         string `json:"namespace"`
	SourceDescription string `json:"source_description"`
	UUID              string `json:"uuid"`
}

type searchNodesArgs struct {
	Query       string   `json:"query"`
	Namespaces  []string `json:"namespaces"`
	Limit       *int     `json:"limit"`
	CenterUUID  string   `json:"center_uuid"`
	LabelFilter string   `json:"label_filter"`
}

type searchFactsArgs struct {
	Query      string   `json:"query"`
	Namespaces []string `json:"namespaces"`
	Limit      *int     `json:"limit"`
	CenterUUID string   `json:"center_uuid"`
}

type uuidArgs struct {
	UUID string `json:"uuid"`
}

type getEpisodesArgs struct {
	Namespace string `json:"namespace"`
	LastN     *int   `json:"last_n"`
}

type clearGraphArgs struct {
	Auth string `json:"auth"`
}

// Typed tool result records.

type addEpisodeResult struct {
	Queued   bool `json:"queued"`
	Position int  `json:"position"`
}

type messageResult struct {
	Message string `json:"message"`
}

type statusResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
