package registry

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"mcp-mesh/src/core/logger"
	"mcp-mesh/src/core/registry/tracing"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db := newTestDB(t)
	log := logger.New(testLevelConfig{})
	server, err := NewServer(db, ServerConfig{
		AccessLog:   false,
		EnableProxy: true,
		Tracing:     tracing.Config{},
	}, log)
	require.NoError(t, err)
	return server
}

func TestHandlers_RegisterThenListThenStatus(t *testing.T) {
	server := newTestServer(t)

	reqBody, _ := json.Marshal(AgentRequest{
		AgentID:  "agent-1",
		Name:     "weather-agent",
		Endpoint: "http://localhost:9001",
		Tools:    []ToolRegistration{{FunctionName: "get_weather", Capability: "weather"}},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/agents/register", bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	server.Engine().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/agents", nil)
	server.Engine().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var listResp struct {
		Agents []AgentSummary `json:"agents"`
		Count  int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	require.Equal(t, 1, listResp.Count)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/agents/agent-1", nil)
	server.Engine().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandlers_HeadHeartbeat_UnknownAgentReturns410(t *testing.T) {
	server := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodHead, "/heartbeat/ghost", nil)
	server.Engine().ServeHTTP(w, req)
	require.Equal(t, http.StatusGone, w.Code)
}

func TestHandlers_HeadHeartbeat_AfterRegisterReturns200(t *testing.T) {
	server := newTestServer(t)

	reqBody, _ := json.Marshal(AgentRequest{AgentID: "agent-1", Name: "a"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/agents/register", bytes.NewReader(reqBody))
	server.Engine().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodHead, "/heartbeat/agent-1", nil)
	server.Engine().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, "a POST immediately followed by HEAD must not report a topology change")
}

func TestHandlers_SendHeartbeat_UnchangedFullRefreshDoesNotTriggerTopologyChange(t *testing.T) {
	server := newTestServer(t)

	reqBody, _ := json.Marshal(AgentRequest{
		AgentID: "agent-1", Name: "a",
		Tools: []ToolRegistration{{FunctionName: "f", Capability: "weather"}},
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/agents/register", bytes.NewReader(reqBody))
	server.Engine().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	// agent-1's next routine full refresh (POST /heartbeat) resends an
	// identical manifest: it must not cause agent-1's own subsequent HEAD
	// to report a topology change (spec §8 idempotence law — resending the
	// same AgentRequest must produce identical side effects).
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/heartbeat", bytes.NewReader(reqBody))
	server.Engine().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodHead, "/heartbeat/agent-1", nil)
	server.Engine().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, "an unchanged routine full refresh must not look like a topology change")
}

func TestHandlers_DeleteAgent_RemovesIt(t *testing.T) {
	server := newTestServer(t)

	reqBody, _ := json.Marshal(AgentRequest{AgentID: "agent-1", Name: "a"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/agents/register", bytes.NewReader(reqBody))
	server.Engine().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/agents/agent-1", nil)
	server.Engine().ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/agents/agent-1", nil)
	server.Engine().ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}
