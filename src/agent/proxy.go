package agent

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// mcpRequest and mcpResponse mirror the JSON-RPC 2.0 envelope the cli
// package's call.go builds for meshctl call; the Proxy Factory issues the
// identical wire shape for agent-to-agent calls (spec §6).
type mcpRequest struct {
	JSONRPC string                 `json:"jsonrpc"`
	ID      int                    `json:"id"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params"`
}

type mcpResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *mcpErrorBody   `json:"error,omitempty"`
}

type mcpErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ProxyOptions configures one proxy's call behavior (spec §4.6 "Proxy
// behavior"): timeout, retry count with exponential back-off, custom
// headers, streaming mode, and session affinity.
type ProxyOptions struct {
	Timeout       time.Duration
	MaxRetries    int
	Headers       map[string]string
	Streaming     bool
	SessionID     string
	TraceHeaderFn func() (traceID, spanID string)
}

// DefaultProxyOptions returns the mesh's standard per-proxy defaults,
// including trace-header injection so cross-agent calls propagate a
// correlation ID (spec §6 "Trace propagation").
func DefaultProxyOptions() ProxyOptions {
	return ProxyOptions{
		Timeout:       30 * time.Second,
		MaxRetries:    2,
		TraceHeaderFn: func() (string, string) { return newTraceID(), newSpanID() },
	}
}

// Proxy is a local callable that marshals an invocation as a JSON-RPC
// tools/call against a remote agent endpoint (spec §4.6). Proxies for the
// same (endpoint, name) pair are reused via the Factory's cache rather than
// constructed per call.
type Proxy struct {
	endpoint string
	toolName string
	opts     ProxyOptions
	client   *http.Client
	sessions sessionStore
}

// Invoke satisfies ToolCaller, issuing the call and returning the decoded
// result payload, or a typed TransportError/ProtocolError/ApplicationError
// (spec §7). The toolName argument is not used: the call always targets the
// provider function this proxy was built for.
func (p *Proxy) Invoke(toolName string, args map[string]interface{}) (json.RawMessage, error) {
	if p.opts.Streaming {
		return p.invokeStreaming(args)
	}
	return p.invokeWithRetry(args)
}

func (p *Proxy) invokeWithRetry(args map[string]interface{}) (json.RawMessage, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), p.opts.Timeout)
	defer cancel()

	return backoff.Retry(ctx, func() (json.RawMessage, error) {
		result, err := p.call(args)
		if err == nil {
			return result, nil
		}
		if _, ok := err.(*ProtocolError); ok {
			return nil, backoff.Permanent(err)
		}
		if _, ok := err.(*ApplicationError); ok {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(p.opts.MaxRetries)+1))
}

func (p *Proxy) call(args map[string]interface{}) (json.RawMessage, error) {
	reqBody, err := json.Marshal(mcpRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  map[string]interface{}{"name": p.toolName, "arguments": args},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal proxy request: %w", err)
	}

	mcpURL := strings.TrimSuffix(p.endpoint, "/") + "/mcp"
	req, err := http.NewRequest("POST", mcpURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build proxy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range p.opts.Headers {
		req.Header.Set(k, v)
	}
	if p.opts.TraceHeaderFn != nil {
		traceID, spanID := p.opts.TraceHeaderFn()
		req.Header.Set("X-Trace-ID", traceID)
		req.Header.Set("X-Parent-Span", spanID)
	}
	if p.opts.SessionID != "" {
		if endpoint, ok := p.sessions.Get(req.Context(), p.opts.SessionID); ok {
			req.Header.Set("X-Session-Affinity", endpoint)
		} else {
			p.sessions.Set(req.Context(), p.opts.SessionID, p.endpoint)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: mcpURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Endpoint: mcpURL, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProtocolError{Endpoint: mcpURL, StatusCode: resp.StatusCode, Message: string(body)}
	}

	jsonData := unwrapSSE(body, resp.Header.Get("Content-Type"))

	var mr mcpResponse
	if err := json.Unmarshal(jsonData, &mr); err != nil {
		return body, nil
	}
	if mr.Error != nil {
		return nil, &ApplicationError{Code: mr.Error.Code, Message: mr.Error.Message}
	}
	if mr.Result != nil {
		return mr.Result, nil
	}
	return body, nil
}

// invokeStreaming issues the same request as a non-streaming call (same
// Accept header, no retry) and returns the decoded result of the first SSE
// "data:" line; later chunks of an event stream are not returned.
func (p *Proxy) invokeStreaming(args map[string]interface{}) (json.RawMessage, error) {
	return p.call(args)
}

// unwrapSSE extracts the JSON payload from an SSE "data:" line when the
// response is event-stream framed (cli/call.go's SSE-unwrapping, shared
// here since both halves talk to the same MCP server).
func unwrapSSE(body []byte, contentType string) json.RawMessage {
	bodyStr := string(body)
	if !strings.HasPrefix(bodyStr, "event:") && !strings.Contains(contentType, "text/event-stream") {
		return body
	}
	for _, line := range strings.Split(bodyStr, "\n") {
		if strings.HasPrefix(line, "data:") {
			return json.RawMessage(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	return body
}

// ProxyFactory builds and reuses Proxy instances keyed by (endpoint, tool
// name), so repeated resolutions to the same provider share one callable
// (spec §4.5 step 3). The cache is a plain map: an entry stays until Drop
// removes it.
type ProxyFactory struct {
	mu       sync.Mutex
	client   *http.Client
	sessions sessionStore
	cache    map[string]*Proxy
}

// NewProxyFactory builds a factory sharing one pooled HTTP client and
// session-affinity store across every proxy it creates (spec §5: "HTTP
// client connection pools are process-wide").
func NewProxyFactory(cfg *Config) *ProxyFactory {
	return &ProxyFactory{
		client:   &http.Client{Timeout: 30 * time.Second},
		sessions: newSessionStore(cfg.RedisURL),
		cache:    make(map[string]*Proxy),
	}
}

// Build returns the cached proxy for (endpoint, toolName), constructing one
// on first use.
func (f *ProxyFactory) Build(endpoint, toolName string, opts ProxyOptions) *Proxy {
	key := endpoint + "|" + toolName
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.cache[key]; ok {
		return p
	}
	p := &Proxy{endpoint: endpoint, toolName: toolName, opts: opts, client: f.client, sessions: f.sessions}
	f.cache[key] = p
	return p
}

// Drop removes a proxy from the reuse cache, e.g. when its binding has
// been superseded and the old endpoint is no longer referenced.
func (f *ProxyFactory) Drop(endpoint, toolName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cache, endpoint+"|"+toolName)
}

func newTraceID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func newSpanID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
