package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestServeStdio_ProcessesOneRequestPerLine(t *testing.T) {
	srv := newTestServer(newStubStore())
	defer srv.Engine.Shutdown()

	input := `{"jsonrpc":"2.0","id":1,"method":"tool","params":{"name":"add_episode","input":{"name":"notes","body":"hi","format":"text"}}}` + "\n"
	var out bytes.Buffer

	err := ServeStdio(context.Background(), srv, strings.NewReader(input), &out, zap.NewNop())

	require.NoError(t, err)
	var resp jsonRPCResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Nil(t, resp.Error)
}

func TestServeStdio_MalformedLineYieldsParseError(t *testing.T) {
	srv := newTestServer(newStubStore())
	defer srv.Engine.Shutdown()

	input := "not json\n"
	var out bytes.Buffer

	err := ServeStdio(context.Background(), srv, strings.NewReader(input), &out, zap.NewNop())

	require.NoError(t, err)
	var resp jsonRPCResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32700, resp.Error.Code)
}

func TestServeStdio_SkipsBlankLines(t *testing.T) {
	srv := newTestServer(newStubStore())
	defer srv.Engine.Shutdown()

	input := "\n\n" + `{"jsonrpc":"2.0","id":1,"method":"tool","params":{"name":"get_episodes","input":{}}}` + "\n"
	var out bytes.Buffer

	err := ServeStdio(context.Background(), srv, strings.NewReader(input), &out, zap.NewNop())

	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 1)
}
