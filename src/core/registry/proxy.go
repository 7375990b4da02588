package registry

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"mcp-mesh/src/core/logger"
)

// Proxy implements the registry's `/proxy/*target` passthrough (spec §5
// supplemented feature): a dumb reverse proxy so `meshctl call` can reach an
// agent without direct network access, without the registry interpreting or
// retrying the call. target is "<agent_id>/<rest of path>"; the registry
// looks up the agent's endpoint and forwards the request byte-for-byte.
type Proxy struct {
	store  *Store
	logger *logger.Logger
	client *http.Client
}

// NewProxy builds the passthrough proxy.
func NewProxy(store *Store, log *logger.Logger) *Proxy {
	return &Proxy{
		store:  store,
		logger: log,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Forward handles both POST and GET /proxy/*target.
func (p *Proxy) Forward(c *gin.Context, target string) {
	target = strings.TrimPrefix(target, "/")
	agentID, rest, ok := strings.Cut(target, "/")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_target", Message: "expected /proxy/<agent_id>/<path>"})
		return
	}

	agent, err := p.store.GetAgent(c.Request.Context(), agentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "lookup_failed", Message: err.Error()})
		return
	}
	if agent == nil || agent.Endpoint == "" {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "agent_not_found", Message: "no known endpoint for " + agentID})
		return
	}

	upstreamURL := fmt.Sprintf("%s/%s", strings.TrimSuffix(agent.Endpoint, "/"), rest)
	if c.Request.URL.RawQuery != "" {
		upstreamURL += "?" + c.Request.URL.RawQuery
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "read_body_failed", Message: err.Error()})
		return
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, upstreamURL, bytes.NewReader(body))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "build_request_failed", Message: err.Error()})
		return
	}
	req.Header = c.Request.Header.Clone()

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warning("proxy forward to %s failed: %v", agentID, err)
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "upstream_unreachable", Message: err.Error()})
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, v := range values {
			c.Writer.Header().Add(key, v)
		}
	}
	c.Status(resp.StatusCode)
	io.Copy(c.Writer, resp.Body)
}
