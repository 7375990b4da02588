package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// The wire types below mirror registry.AgentRequest/AgentResponse/
// ToolRegistration/ResolvedDependency (src/core/registry/types.go) field
// for field. They are redeclared here rather than imported so the agent
// runtime — embeddable in any Go binary that calls agent.StartAgent — never
// pulls in the registry's gin/sql dependency graph (spec §6: registry and
// agent are external collaborators to each other, connected only by the
// JSON wire format).

type toolRegistrationWire struct {
	FunctionName string               `json:"function_name"`
	Capability   string               `json:"capability"`
	Tags         []string             `json:"tags,omitempty"`
	Version      string               `json:"version,omitempty"`
	Description  string               `json:"description,omitempty"`
	Dependencies []dependencySpecWire `json:"dependencies,omitempty"`
}

type dependencySpecWire struct {
	Capability string   `json:"capability"`
	Tags       []string `json:"tags,omitempty"`
	Version    string   `json:"version,omitempty"`
	Namespace  string   `json:"namespace,omitempty"`
}

type agentRequestWire struct {
	AgentID   string                 `json:"agent_id"`
	Name      string                 `json:"name"`
	Namespace string                 `json:"namespace"`
	Version   string                 `json:"version"`
	Endpoint  string                 `json:"endpoint"`
	Runtime   string                 `json:"runtime"`
	Tools     []toolRegistrationWire `json:"tools"`
}

type resolvedDependencyWire struct {
	FunctionName     string `json:"function_name"`
	DepIndex         int    `json:"dep_index"`
	Capability       string `json:"capability"`
	Status           string `json:"status"`
	ProviderAgentID  string `json:"provider_agent_id,omitempty"`
	ProviderFunction string `json:"provider_function,omitempty"`
	Endpoint         string `json:"endpoint,omitempty"`
}

type agentResponseWire struct {
	AgentID      string                   `json:"agent_id"`
	Status       string                   `json:"status"`
	Dependencies []resolvedDependencyWire `json:"dependencies"`
	Timestamp    time.Time                `json:"timestamp"`
}

type heartbeatHeadWire struct {
	AgentID         string `json:"agent_id"`
	Status          string `json:"status"`
	TopologyChanged bool   `json:"topology_changed"`
}

// RegistryClient issues register/heartbeat/deregister calls against the
// registry's HTTP API (spec §4.2), sharing one pooled client per process
// (spec §5).
type RegistryClient struct {
	baseURL string
	client  *http.Client
}

// NewRegistryClient builds a client bound to the given registry URL.
func NewRegistryClient(baseURL string) *RegistryClient {
	return &RegistryClient{baseURL: baseURL, client: &http.Client{}}
}

func buildAgentRequest(agentID string, cfg *Config, tools []*ToolMeta) agentRequestWire {
	wireTools := make([]toolRegistrationWire, 0, len(tools))
	for _, t := range tools {
		deps := make([]dependencySpecWire, 0, len(t.Dependencies))
		for _, d := range t.Dependencies {
			deps = append(deps, dependencySpecWire{
				Capability: d.Capability,
				Tags:       d.Tags,
				Version:    d.Version,
				Namespace:  d.Namespace,
			})
		}
		wireTools = append(wireTools, toolRegistrationWire{
			FunctionName: t.FunctionName,
			Capability:   t.Capability,
			Tags:         t.Tags,
			Version:      t.Version,
			Description:  t.Description,
			Dependencies: deps,
		})
	}
	return agentRequestWire{
		AgentID:   agentID,
		Name:      cfg.AgentName,
		Namespace: cfg.Namespace,
		Version:   cfg.Version,
		Endpoint:  cfg.Endpoint(),
		Runtime:   cfg.Runtime,
		Tools:     wireTools,
	}
}

// Register sends the initial POST /agents/register with the agent's full
// manifest, returning the dependency resolution snapshot. The registry
// answers 201 on this path (spec §4.2's table: "First registration or full
// refresh").
func (c *RegistryClient) Register(ctx context.Context, agentID string, cfg *Config, tools []*ToolMeta) (*agentResponseWire, error) {
	return c.postManifest(ctx, "/agents/register", agentID, cfg, tools, http.StatusCreated)
}

// FullHeartbeat sends POST /heartbeat with the full manifest (spec §4.4:
// "full POST every N HEAD ticks"). The registry answers 200 on this path,
// distinct from the 201 Register gets for the same underlying operation.
func (c *RegistryClient) FullHeartbeat(ctx context.Context, agentID string, cfg *Config, tools []*ToolMeta) (*agentResponseWire, error) {
	return c.postManifest(ctx, "/heartbeat", agentID, cfg, tools, http.StatusOK)
}

func (c *RegistryClient) postManifest(ctx context.Context, path, agentID string, cfg *Config, tools []*ToolMeta, expectStatus int) (*agentResponseWire, error) {
	payload, err := json.Marshal(buildAgentRequest(agentID, cfg, tools))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal agent manifest: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: c.baseURL + path, Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != expectStatus {
		return nil, &ProtocolError{Endpoint: c.baseURL + path, StatusCode: resp.StatusCode, Message: string(body)}
	}

	var out agentResponseWire
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse registry response: %w", err)
	}
	return &out, nil
}

// HeadHeartbeat sends the lightweight HEAD /heartbeat/{id} liveness ping
// (spec §4.4). The registry signals outcome entirely through the status
// code (spec §4.2): 200 nothing changed, 202 topology changed, 410 unknown
// agent, 503 registry error. changed reports the 202 case directly so
// callers don't need to know the status-code contract themselves.
func (c *RegistryClient) HeadHeartbeat(ctx context.Context, agentID string) (status int, changed bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/heartbeat/"+agentID, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, false, &TransportError{Endpoint: c.baseURL, Err: err}
	}
	defer resp.Body.Close()
	return resp.StatusCode, resp.StatusCode == http.StatusAccepted, nil
}

// Deregister sends the shutdown DELETE /agents/{id} (spec §4.4 "suspension
// points"), bounded by a short timeout regardless of outcome.
func (c *RegistryClient) Deregister(ctx context.Context, agentID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/agents/"+agentID, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return &TransportError{Endpoint: c.baseURL, Err: err}
	}
	defer resp.Body.Close()
	return nil
}
