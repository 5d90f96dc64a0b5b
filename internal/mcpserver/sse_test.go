package mcpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSSERouter_StatusEndpointReflectsBackendHealth(t *testing.T) {
	srv := newTestServer(newStubStore())
	defer srv.Engine.Shutdown()
	router := NewSSERouter(srv, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body statusResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
}

func TestSSERouter_MessagesRejectsUnknownSession(t *testing.T) {
	srv := newTestServer(newStubStore())
	defer srv.Engine.Shutdown()
	router := NewSSERouter(srv, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/messages/?session_id=does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
