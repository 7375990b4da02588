package registry

import (
	"encoding/json"
	"time"
)

// DependencySpec describes one dependency slot a tool function declares, as
// carried in its registration payload. Tags may use the +/-/OR-alternative
// syntax the Matcher understands.
type DependencySpec struct {
	Capability      string     `json:"capability"`
	Tags            []string   `json:"tags,omitempty"`
	TagAlternatives [][]string `json:"tag_alternatives,omitempty"`
	Version         string     `json:"version,omitempty"`
	Namespace       string     `json:"namespace,omitempty"`
}

// parseDependencySpec normalizes a raw dependency entry from a tool's
// registration payload (some agents send a bare capability string, others
// the full object) into a DependencySpec.
func parseDependencySpec(raw interface{}) DependencySpec {
	switch v := raw.(type) {
	case string:
		return DependencySpec{Capability: v}
	case map[string]interface{}:
		spec := DependencySpec{}
		if cap, ok := v["capability"].(string); ok {
			spec.Capability = cap
		}
		if tags, ok := v["tags"].([]interface{}); ok {
			for _, t := range tags {
				if s, ok := t.(string); ok {
					spec.Tags = append(spec.Tags, s)
				}
			}
		}
		if alts, ok := v["tag_alternatives"].([]interface{}); ok {
			for _, group := range alts {
				if garr, ok := group.([]interface{}); ok {
					var gs []string
					for _, t := range garr {
						if s, ok := t.(string); ok {
							gs = append(gs, s)
						}
					}
					spec.TagAlternatives = append(spec.TagAlternatives, gs)
				}
			}
		}
		if ver, ok := v["version"].(string); ok {
			spec.Version = ver
		}
		if ns, ok := v["namespace"].(string); ok {
			spec.Namespace = ns
		}
		return spec
	default:
		return DependencySpec{}
	}
}

// ToolRegistration is one entry of a tool's capability advertisement within
// an agent registration or heartbeat payload (spec §3 Tool).
type ToolRegistration struct {
	FunctionName string           `json:"function_name"`
	Capability   string           `json:"capability"`
	Tags         []string         `json:"tags,omitempty"`
	Version      string           `json:"version,omitempty"`
	Description  string           `json:"description,omitempty"`
	InputSchema  json.RawMessage  `json:"input_schema,omitempty"`
	Dependencies []DependencySpec `json:"dependencies,omitempty"`
}

// AgentRequest is the unified envelope both POST /agents/register and the
// periodic full POST /heartbeat send (spec §4.2: "registration and the full
// heartbeat share one schema").
type AgentRequest struct {
	AgentID   string             `json:"agent_id" binding:"required"`
	Name      string             `json:"name"`
	Namespace string             `json:"namespace"`
	Version   string             `json:"version"`
	Endpoint  string             `json:"endpoint"`
	Runtime   string             `json:"runtime"`
	Tools     []ToolRegistration `json:"tools"`
}

// ResolvedDependency is one resolved slot returned to the agent, index-stable
// against the consumer's declared []DependencySpec so the agent runtime can
// graft it straight onto its injection slots (spec §4.6/§9).
type ResolvedDependency struct {
	FunctionName string `json:"function_name"`
	DepIndex     int    `json:"dep_index"`
	Capability   string `json:"capability"`
	Status       string `json:"status"` // "resolved" | "unresolved"
	ProviderAgentID string `json:"provider_agent_id,omitempty"`
	ProviderFunction string `json:"provider_function,omitempty"`
	Endpoint     string `json:"endpoint,omitempty"`
}

// AgentResponse answers both the register and full-heartbeat calls with the
// current resolution snapshot for every dependency the agent declared.
type AgentResponse struct {
	AgentID      string                `json:"agent_id"`
	Status       string                `json:"status"`
	Dependencies []ResolvedDependency  `json:"dependencies"`
	Timestamp    time.Time             `json:"timestamp"`
}

// HeartbeatHeadResponse is what Service.Heartbeat returns for the lightweight
// HEAD /heartbeat/:id liveness ping. The handler turns it into a status code
// (202 when TopologyChanged, else 200) and sends no body.
type HeartbeatHeadResponse struct {
	AgentID          string `json:"agent_id"`
	Status           string `json:"status"`
	TopologyChanged  bool   `json:"topology_changed"`
}

// AgentSummary is the shape returned by GET /agents and used by `meshctl list`.
type AgentSummary struct {
	AgentID   string    `json:"agent_id"`
	Name      string    `json:"name"`
	Namespace string    `json:"namespace"`
	Version   string    `json:"version"`
	Endpoint  string    `json:"endpoint"`
	Runtime   string    `json:"runtime"`
	Status    string    `json:"status"`
	Tools     []string  `json:"tools"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AgentQueryParams binds GET /agents query string filters.
type AgentQueryParams struct {
	Namespace  string `form:"namespace"`
	Capability string `form:"capability"`
	Status     string `form:"status"`
}

// ErrorResponse is the uniform JSON error body for all registry endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ServiceInfo is returned from GET / for operator sanity checks.
type ServiceInfo struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Status  string `json:"status"`
}
