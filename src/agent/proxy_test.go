package agent

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProxy(t *testing.T, server *httptest.Server, opts ProxyOptions) *Proxy {
	t.Helper()
	return &Proxy{
		endpoint: server.URL,
		toolName: "get_temp",
		opts:     opts,
		client:   server.Client(),
		sessions: newMemorySessionStore(),
	}
}

func TestProxy_InvokeReturnsResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mcp", r.URL.Path)
		var req mcpRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "tools/call", req.Method)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mcpResponse{JSONRPC: "2.0", ID: 1, Result: json.RawMessage(`{"temp":72}`)})
	}))
	defer server.Close()

	proxy := newTestProxy(t, server, ProxyOptions{Timeout: 2 * time.Second, MaxRetries: 0})
	result, err := proxy.Invoke("get_temp", map[string]interface{}{"unit": "F"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"temp":72}`, string(result))
}

func TestProxy_InvokeReturnsApplicationErrorOnRPCError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mcpResponse{JSONRPC: "2.0", ID: 1, Error: &mcpErrorBody{Code: -32000, Message: "boom"}})
	}))
	defer server.Close()

	proxy := newTestProxy(t, server, ProxyOptions{Timeout: 2 * time.Second, MaxRetries: 0})
	_, err := proxy.Invoke("get_temp", nil)
	require.Error(t, err)
	var appErr *ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, -32000, appErr.Code)
}

func TestProxy_InvokeDoesNotRetryProtocolErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	proxy := newTestProxy(t, server, ProxyOptions{Timeout: 2 * time.Second, MaxRetries: 3})
	_, err := proxy.Invoke("get_temp", nil)
	require.Error(t, err)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, 1, attempts, "protocol errors must not be retried")
}

func TestUnwrapSSE_ExtractsDataLine(t *testing.T) {
	body := []byte("event: message\ndata: {\"temp\":72}\n\n")
	result := unwrapSSE(body, "text/event-stream")
	assert.JSONEq(t, `{"temp":72}`, string(result))
}

func TestUnwrapSSE_PassesThroughPlainJSON(t *testing.T) {
	body := []byte(`{"temp":72}`)
	result := unwrapSSE(body, "application/json")
	assert.JSONEq(t, `{"temp":72}`, string(result))
}

func TestProxyFactory_BuildReusesCachedProxy(t *testing.T) {
	factory := NewProxyFactory(&Config{RedisURL: ""})
	p1 := factory.Build("http://host-a:9001", "get_temp", DefaultProxyOptions())
	p2 := factory.Build("http://host-a:9001", "get_temp", DefaultProxyOptions())
	assert.Same(t, p1, p2)

	factory.Drop("http://host-a:9001", "get_temp")
	p3 := factory.Build("http://host-a:9001", "get_temp", DefaultProxyOptions())
	assert.NotSame(t, p1, p3)
}
