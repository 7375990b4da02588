package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mcp-mesh/src/core/database"
	"mcp-mesh/src/core/logger"
)

type testLevelConfig struct{}

func (testLevelConfig) ShouldLogAtLevel(level string) bool { return true }
func (testLevelConfig) IsDebugMode() bool                  { return true }

func newTestDB(t *testing.T) *database.Database {
	t.Helper()
	cfg := database.DefaultConfig()
	cfg.DatabaseURL = ":memory:"
	db, err := database.Initialize(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := newTestDB(t)
	log := logger.New(testLevelConfig{})
	return NewService(db, log, RegistryConfig{UnhealthyTimeout: 90 * time.Second})
}

func TestRegisterAgent_NewAgent_ReturnsHealthyWithNoDependencies(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	resp, err := svc.RegisterAgent(ctx, AgentRequest{
		AgentID:  "agent-1",
		Name:     "weather-agent",
		Endpoint: "http://localhost:9001",
		Tools: []ToolRegistration{
			{FunctionName: "get_weather", Capability: "weather"},
		},
	})

	require.NoError(t, err)
	require.Equal(t, "agent-1", resp.AgentID)
	require.Equal(t, "healthy", resp.Status)
	require.Empty(t, resp.Dependencies)
}

func TestRegisterAgent_ResolvesDependencyAgainstExistingProvider(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.RegisterAgent(ctx, AgentRequest{
		AgentID:  "provider-1",
		Name:     "weather-provider",
		Endpoint: "http://localhost:9001",
		Tools: []ToolRegistration{
			{FunctionName: "get_weather", Capability: "weather", Version: "1.2.0", Tags: []string{"metric"}},
		},
	})
	require.NoError(t, err)

	resp, err := svc.RegisterAgent(ctx, AgentRequest{
		AgentID:  "consumer-1",
		Name:     "trip-planner",
		Endpoint: "http://localhost:9002",
		Tools: []ToolRegistration{
			{
				FunctionName: "plan_trip",
				Capability:   "trip-planning",
				Dependencies: []DependencySpec{
					{Capability: "weather", Tags: []string{"metric"}, Version: ">=1.0.0"},
				},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Dependencies, 1)
	require.Equal(t, "resolved", resp.Dependencies[0].Status)
	require.Equal(t, "provider-1", resp.Dependencies[0].ProviderAgentID)
}

func TestRegisterAgent_UnresolvableDependency_ReportsUnresolvedNotError(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	resp, err := svc.RegisterAgent(ctx, AgentRequest{
		AgentID:  "consumer-1",
		Name:     "trip-planner",
		Endpoint: "http://localhost:9002",
		Tools: []ToolRegistration{
			{
				FunctionName: "plan_trip",
				Capability:   "trip-planning",
				Dependencies: []DependencySpec{
					{Capability: "weather"},
				},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Dependencies, 1)
	require.Equal(t, "unresolved", resp.Dependencies[0].Status)
}

func TestRegisterAgent_LaterProviderSatisfiesEarlierConsumer(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.RegisterAgent(ctx, AgentRequest{
		AgentID: "consumer-1",
		Name:    "trip-planner",
		Tools: []ToolRegistration{
			{FunctionName: "plan_trip", Capability: "trip-planning", Dependencies: []DependencySpec{{Capability: "weather"}}},
		},
	})
	require.NoError(t, err)

	_, err = svc.RegisterAgent(ctx, AgentRequest{
		AgentID:  "provider-1",
		Name:     "weather-provider",
		Endpoint: "http://localhost:9001",
		Tools:    []ToolRegistration{{FunctionName: "get_weather", Capability: "weather"}},
	})
	require.NoError(t, err)

	_, deps, err := svc.GetAgent(ctx, "consumer-1")
	require.NoError(t, err)
	require.Len(t, deps, 1)
	require.Equal(t, "resolved", deps[0].Status)
}

func TestHeartbeat_UnknownAgent_ReturnsNotFound(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Heartbeat(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrAgentNotFound)
}

func TestHeartbeat_KnownAgent_ReportsNoTopologyChangeWhenNothingHappened(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.RegisterAgent(ctx, AgentRequest{AgentID: "agent-1", Name: "a"})
	require.NoError(t, err)

	resp, err := svc.Heartbeat(ctx, "agent-1")
	require.NoError(t, err)
	require.Equal(t, "healthy", resp.Status)
	require.False(t, resp.TopologyChanged)
}

func TestHeartbeat_ReportsTopologyChangeOnlyWhenSomethingActuallyChanged(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	req := AgentRequest{
		AgentID:  "agent-1",
		Name:     "weather-agent",
		Endpoint: "http://localhost:9001",
		Tools:    []ToolRegistration{{FunctionName: "get_weather", Capability: "weather"}},
	}
	_, err := svc.RegisterAgent(ctx, req)
	require.NoError(t, err)

	// a second, unrelated agent observes no topology change yet.
	_, err = svc.RegisterAgent(ctx, AgentRequest{AgentID: "agent-2", Name: "consumer"})
	require.NoError(t, err)
	resp, err := svc.Heartbeat(ctx, "agent-2")
	require.NoError(t, err)
	require.False(t, resp.TopologyChanged)

	// agent-1 resends the identical manifest via the routine full-refresh
	// path: nothing changed, so agent-2's heartbeat must still report no
	// topology change (spec §8 idempotence law).
	_, err = svc.RegisterAgent(ctx, req)
	require.NoError(t, err)
	resp, err = svc.Heartbeat(ctx, "agent-2")
	require.NoError(t, err)
	require.False(t, resp.TopologyChanged, "an identical resend must not look like a topology change")

	// agent-1 now actually changes its tool set: this must surface.
	req.Tools = append(req.Tools, ToolRegistration{FunctionName: "get_forecast", Capability: "forecast"})
	_, err = svc.RegisterAgent(ctx, req)
	require.NoError(t, err)
	resp, err = svc.Heartbeat(ctx, "agent-2")
	require.NoError(t, err)
	require.True(t, resp.TopologyChanged, "an actual tool-set change must surface as a topology change")
}

func TestUnregister_RemovesAgentAndItsTools(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.RegisterAgent(ctx, AgentRequest{
		AgentID: "agent-1",
		Name:    "a",
		Tools:   []ToolRegistration{{FunctionName: "f", Capability: "c"}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Unregister(ctx, "agent-1"))

	agent, _, err := svc.GetAgent(ctx, "agent-1")
	require.NoError(t, err)
	require.Nil(t, agent)
}

func TestListAgents_FiltersByNamespaceAndCapability(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.RegisterAgent(ctx, AgentRequest{
		AgentID:   "agent-1",
		Name:      "a",
		Namespace: "prod",
		Tools:     []ToolRegistration{{FunctionName: "f", Capability: "weather"}},
	})
	require.NoError(t, err)
	_, err = svc.RegisterAgent(ctx, AgentRequest{
		AgentID:   "agent-2",
		Name:      "b",
		Namespace: "staging",
		Tools:     []ToolRegistration{{FunctionName: "g", Capability: "billing"}},
	})
	require.NoError(t, err)

	prodAgents, err := svc.ListAgents(ctx, AgentQueryParams{Namespace: "prod"})
	require.NoError(t, err)
	require.Len(t, prodAgents, 1)
	require.Equal(t, "agent-1", prodAgents[0].AgentID)

	weatherAgents, err := svc.ListAgents(ctx, AgentQueryParams{Capability: "weather"})
	require.NoError(t, err)
	require.Len(t, weatherAgents, 1)
}
