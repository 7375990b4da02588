package registry

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"mcp-mesh/src/core/database"
	"mcp-mesh/src/core/logger"
)

// RegistryConfig carries the service layer's tuning knobs, separate from
// the HTTP-layer config.Config so the service can be exercised in tests
// without standing up gin.
type RegistryConfig struct {
	UnhealthyTimeout time.Duration
}

// Service implements the registration/heartbeat/query operations spec §4.2
// names, wired to a Store and Resolver instead of the teacher's ent client.
type Service struct {
	store    *Store
	resolver *Resolver
	logger   *logger.Logger
	cfg      RegistryConfig
}

// NewService builds the registry's business logic layer.
func NewService(db *database.Database, log *logger.Logger, cfg RegistryConfig) *Service {
	store := NewStore(db)
	return &Service{
		store:    store,
		resolver: NewResolver(store, log),
		logger:   log,
		cfg:      cfg,
	}
}

// RegisterAgent handles POST /agents/register and POST /heartbeat: upsert
// the agent and its tools, resolve every declared dependency, and return
// the snapshot. Both share this exact schema and path per spec §4.2; only
// the HTTP status code returned to the caller differs (handlers.go).
//
// The event recorded for this full POST follows spec §4.2 step 2 exactly:
// "register" for a brand-new agent, "update" only if the tool set or
// metadata actually changed, and "heartbeat" otherwise — a routine
// full-refresh heartbeat that changed nothing must never look like a
// topology change to HeadHeartbeat's other consumers (spec §8).
func (s *Service) RegisterAgent(ctx context.Context, req AgentRequest) (*AgentResponse, error) {
	if req.AgentID == "" {
		return nil, fmt.Errorf("agent_id is required")
	}

	existing, err := s.store.GetAgent(ctx, req.AgentID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up agent: %w", err)
	}

	eventType := "register"
	if existing != nil {
		existingTools, err := s.store.ToolsByAgent(ctx, req.AgentID)
		if err != nil {
			return nil, fmt.Errorf("failed to load existing tools: %w", err)
		}
		eventType = "heartbeat"
		if metadataChanged(existing, req) || toolsChanged(existingTools, req.Tools) {
			eventType = "update"
		}
	}

	if err := s.store.RegisterFull(ctx, req, eventType); err != nil {
		return nil, fmt.Errorf("failed to persist registration: %w", err)
	}

	deps, err := s.resolver.ResolveAgent(ctx, req.AgentID, req.Tools)
	if err != nil {
		return nil, fmt.Errorf("resolution failed: %w", err)
	}

	capabilities := capabilitiesOf(req.Tools)
	if err := s.resolver.ReresolveConsumersOf(ctx, capabilities); err != nil {
		s.logger.Warning("failed to re-resolve dependent consumers of %s: %v", req.AgentID, err)
	}

	s.logger.Info("Agent %s (%s) recorded %s event with %d tools", req.AgentID, req.Name, eventType, len(req.Tools))

	return &AgentResponse{
		AgentID:      req.AgentID,
		Status:       "healthy",
		Dependencies: deps,
		Timestamp:    time.Now().UTC(),
	}, nil
}

// metadataChanged reports whether the agent-level fields of req differ from
// what's already on record (spec §4.2 step 2's "or metadata changed").
func metadataChanged(existing *AgentRow, req AgentRequest) bool {
	namespace := req.Namespace
	if namespace == "" {
		namespace = "default"
	}
	return existing.Name != req.Name ||
		existing.Namespace != namespace ||
		existing.Version != req.Version ||
		existing.Endpoint != req.Endpoint ||
		existing.Runtime != req.Runtime
}

// toolsChanged reports whether the incoming tool set differs from what's
// stored — by membership, capability, tags, version, description, or
// declared dependencies (spec §4.2 step 2's "or the tool set ... changed").
func toolsChanged(existing []ToolRow, incoming []ToolRegistration) bool {
	if len(existing) != len(incoming) {
		return true
	}
	byName := make(map[string]ToolRow, len(existing))
	for _, t := range existing {
		byName[t.FunctionName] = t
	}
	for _, t := range incoming {
		prev, ok := byName[t.FunctionName]
		if !ok {
			return true
		}
		version := t.Version
		if version == "" {
			version = "1.0.0"
		}
		if prev.Capability != t.Capability || prev.Version != version || prev.Description != t.Description {
			return true
		}
		if !reflect.DeepEqual(prev.Tags, t.Tags) || !reflect.DeepEqual(prev.Dependencies, t.Dependencies) {
			return true
		}
	}
	return false
}

func capabilitiesOf(tools []ToolRegistration) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range tools {
		if t.Capability == "" || seen[t.Capability] {
			continue
		}
		seen[t.Capability] = true
		out = append(out, t.Capability)
	}
	return out
}

// Heartbeat handles HEAD /heartbeat/:agent_id: a lightweight liveness ping
// that advances updated_at without touching tools/resolutions, and reports
// whether anything topology-relevant has happened since the agent's last
// full refresh so it can decide whether to push a full POST early (spec
// §4.2 HEAD step 2's stated simpler-permissible contract: report true on
// any register/unregister/unhealthy/update event newer than
// last_full_refresh, since distinguishing "relevant" precisely would need
// per-capability subscriptions this mesh doesn't have). Routine heartbeat
// events are deliberately excluded (spec §8) so an agent's own unchanged
// full refresh never forces every other consumer into a needless POST.
func (s *Service) Heartbeat(ctx context.Context, agentID string) (*HeartbeatHeadResponse, error) {
	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, ErrAgentNotFound
	}

	ok, err := s.store.TouchHeartbeat(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAgentNotFound
	}

	changedCount, err := s.store.TopologyEventsSince(ctx, agent.LastFullRefresh)
	if err != nil {
		return nil, err
	}

	return &HeartbeatHeadResponse{
		AgentID:         agentID,
		Status:          "healthy",
		TopologyChanged: changedCount > 0,
	}, nil
}

// ListAgents handles GET /agents.
func (s *Service) ListAgents(ctx context.Context, params AgentQueryParams) ([]AgentSummary, error) {
	return s.store.ListAgents(ctx, params)
}

// GetAgent handles GET /agents/:agent_id for `meshctl status`.
func (s *Service) GetAgent(ctx context.Context, agentID string) (*AgentRow, []ResolvedDependency, error) {
	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil || agent == nil {
		return agent, nil, err
	}
	deps, err := s.store.ResolutionsForAgent(ctx, agentID)
	return agent, deps, err
}

// Unregister handles DELETE /agents/:agent_id: the agent runtime's
// shutdown DELETE (spec §4.4).
func (s *Service) Unregister(ctx context.Context, agentID string) error {
	if err := s.store.InsertEvent(ctx, s.store.db, agentID, "unregister", map[string]interface{}{
		"reason": "graceful_shutdown",
	}); err != nil {
		s.logger.Warning("failed to record unregister event for %s: %v", agentID, err)
	}
	return s.store.DeleteAgent(ctx, agentID)
}

// Stats handles GET /health and operator stats endpoints.
func (s *Service) Stats(ctx context.Context) (map[string]interface{}, error) {
	return s.store.db.GetStats()
}
