package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryClient_RegisterSendsManifestAndParsesResolution(t *testing.T) {
	var gotReq agentRequestWire
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agents/register", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		resp := agentResponseWire{
			AgentID: gotReq.AgentID,
			Status:  "success",
			Dependencies: []resolvedDependencyWire{
				{FunctionName: "fetch_weather", DepIndex: 0, Status: "resolved", ProviderFunction: "get_temp", Endpoint: "http://host-a:9001"},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewRegistryClient(server.URL)
	cfg := &Config{AgentName: "weather-agent", Namespace: "default", Version: "1.0.0", Runtime: "go", HTTPHost: "10.0.0.5", HTTPPort: 8080}
	tools := []*ToolMeta{{FunctionName: "fetch_weather", Capability: "weather", Dependencies: []DependencySpec{{Capability: "temperature"}}}}

	resp, err := client.Register(context.Background(), "weather-agent-abc123", cfg, tools)
	require.NoError(t, err)
	require.Len(t, resp.Dependencies, 1)
	assert.Equal(t, "get_temp", resp.Dependencies[0].ProviderFunction)
	assert.Equal(t, "weather-agent", gotReq.Name)
	assert.Equal(t, "http://10.0.0.5:8080", gotReq.Endpoint)
}

func TestRegistryClient_PostManifestReturnsProtocolErrorOnNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad manifest"}`))
	}))
	defer server.Close()

	client := NewRegistryClient(server.URL)
	cfg := &Config{AgentName: "a", HTTPHost: "h", HTTPPort: 1}

	_, err := client.Register(context.Background(), "a-1", cfg, nil)
	require.Error(t, err)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, http.StatusBadRequest, protoErr.StatusCode)
}

func TestRegistryClient_HeadHeartbeatReportsTopologyChangeFromStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewRegistryClient(server.URL)
	status, changed, err := client.HeadHeartbeat(context.Background(), "a-1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, status)
	assert.True(t, changed)
}

func TestRegistryClient_HeadHeartbeatNoChangeReportsFalse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewRegistryClient(server.URL)
	status, changed, err := client.HeadHeartbeat(context.Background(), "a-1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.False(t, changed)
}

func TestRegistryClient_HeadHeartbeatUnknownAgentReturnsGone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	client := NewRegistryClient(server.URL)
	status, changed, err := client.HeadHeartbeat(context.Background(), "a-1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusGone, status)
	assert.False(t, changed)
}

func TestRegistryClient_Deregister(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/agents/a-1", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewRegistryClient(server.URL)
	require.NoError(t, client.Deregister(context.Background(), "a-1"))
	assert.True(t, called)
}
