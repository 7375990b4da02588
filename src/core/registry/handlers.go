package registry

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mcp-mesh/src/core/logger"
)

// Handlers wires gin routes directly to the Service — there is no generated
// OpenAPI binding layer here (the teacher's `generated` package was produced
// by oapi-codegen from a contract this pack doesn't include; see DESIGN.md).
type Handlers struct {
	service *Service
	logger  *logger.Logger
}

// NewHandlers builds the HTTP handler layer.
func NewHandlers(service *Service, log *logger.Logger) *Handlers {
	return &Handlers{service: service, logger: log}
}

// GetRoot answers GET / with basic service info.
func (h *Handlers) GetRoot(c *gin.Context) {
	c.JSON(http.StatusOK, ServiceInfo{
		Service: "mcp-mesh-registry",
		Version: "1.0.0",
		Status:  "running",
	})
}

// GetHealth answers GET /health with aggregate registry statistics.
func (h *Handlers) GetHealth(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "stats_failed", Message: err.Error()})
		return
	}
	stats["status"] = "healthy"
	c.JSON(http.StatusOK, stats)
}

// RegisterAgent answers POST /agents/register: 201 on success (spec §4.2's
// table — first registration or full refresh via this path is a Created).
func (h *Handlers) RegisterAgent(c *gin.Context) {
	h.registerOrHeartbeat(c, http.StatusCreated)
}

// SendHeartbeat answers POST /heartbeat, the periodic full refresh that
// shares AgentRequest/AgentResponse's schema with registration (spec §4.2),
// but — unlike the register path — answers 200 on success.
func (h *Handlers) SendHeartbeat(c *gin.Context) {
	h.registerOrHeartbeat(c, http.StatusOK)
}

func (h *Handlers) registerOrHeartbeat(c *gin.Context, successStatus int) {
	var req AgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	resp, err := h.service.RegisterAgent(c.Request.Context(), req)
	if err != nil {
		h.logger.Error("registration failed for %s: %v", req.AgentID, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "registration_failed", Message: err.Error()})
		return
	}
	c.JSON(successStatus, resp)
}

// HeadHeartbeat answers HEAD /heartbeat/:agent_id, the lightweight liveness
// ping between full POSTs, with spec §4.2's literal status-code contract:
// 410 unknown agent, 503 registry error, 202 topology changed, 200
// otherwise (grounded on the teacher's ent_handlers.go FastHeartbeatCheck,
// which implements this exact four-way branch).
func (h *Handlers) HeadHeartbeat(c *gin.Context) {
	agentID := c.Param("agent_id")
	resp, err := h.service.Heartbeat(c.Request.Context(), agentID)
	if err == ErrAgentNotFound {
		c.Status(http.StatusGone)
		return
	}
	if err != nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	if resp.TopologyChanged {
		c.Status(http.StatusAccepted)
		return
	}
	c.Status(http.StatusOK)
}

// ListAgents answers GET /agents.
func (h *Handlers) ListAgents(c *gin.Context) {
	var params AgentQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_query", Message: err.Error()})
		return
	}

	agents, err := h.service.ListAgents(c.Request.Context(), params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "list_failed", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents, "count": len(agents)})
}

// GetAgentStatus answers GET /agents/:agent_id for `meshctl status`.
func (h *Handlers) GetAgentStatus(c *gin.Context) {
	agentID := c.Param("agent_id")
	agent, deps, err := h.service.GetAgent(c.Request.Context(), agentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "lookup_failed", Message: err.Error()})
		return
	}
	if agent == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "agent not registered"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent": agent, "dependencies": deps})
}

// UnregisterAgent answers DELETE /agents/:agent_id, the agent runtime's
// graceful-shutdown notification (spec §4.4).
func (h *Handlers) UnregisterAgent(c *gin.Context) {
	agentID := c.Param("agent_id")
	if err := h.service.Unregister(c.Request.Context(), agentID); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "unregister_failed", Message: err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
