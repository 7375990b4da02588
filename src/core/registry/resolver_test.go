package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"mcp-mesh/src/core/logger"
)

func TestResolver_PicksHighestScoringCandidateDeterministically(t *testing.T) {
	db := newTestDB(t)
	log := logger.New(testLevelConfig{})
	store := NewStore(db)
	resolver := NewResolver(store, log)
	ctx := context.Background()

	require.NoError(t, store.RegisterFull(ctx, AgentRequest{
		AgentID:  "provider-a",
		Name:     "a",
		Endpoint: "http://host-a:9001",
		Tools:    []ToolRegistration{{FunctionName: "f", Capability: "weather", Tags: []string{"metric"}}},
	}, "register"))

	require.NoError(t, store.RegisterFull(ctx, AgentRequest{
		AgentID:  "provider-b",
		Name:     "b",
		Endpoint: "http://host-b:9001",
		Tools:    []ToolRegistration{{FunctionName: "f", Capability: "weather", Tags: []string{"metric", "opus"}}},
	}, "register"))

	best, err := resolver.ResolveOne(ctx, DependencySpec{Capability: "weather", Tags: []string{"metric", "+opus"}}, "consumer-1")
	require.NoError(t, err)
	require.NotNil(t, best)
	require.Equal(t, "provider-b", best.AgentID, "the candidate with the preferred tag should win on score")
}

func TestResolver_TieBreaksByAgentID(t *testing.T) {
	db := newTestDB(t)
	log := logger.New(testLevelConfig{})
	store := NewStore(db)
	resolver := NewResolver(store, log)
	ctx := context.Background()

	require.NoError(t, store.RegisterFull(ctx, AgentRequest{
		AgentID: "z-agent", Name: "z", Endpoint: "http://z:9001",
		Tools: []ToolRegistration{{FunctionName: "f", Capability: "weather"}},
	}, "register"))
	require.NoError(t, store.RegisterFull(ctx, AgentRequest{
		AgentID: "a-agent", Name: "a", Endpoint: "http://a:9001",
		Tools: []ToolRegistration{{FunctionName: "f", Capability: "weather"}},
	}, "register"))

	best, err := resolver.ResolveOne(ctx, DependencySpec{Capability: "weather"}, "consumer-1")
	require.NoError(t, err)
	require.Equal(t, "a-agent", best.AgentID, "equal-score candidates tie-break on agent_id")
}

func TestResolver_TieBreaksByVersionBeforeAgentID(t *testing.T) {
	db := newTestDB(t)
	log := logger.New(testLevelConfig{})
	store := NewStore(db)
	resolver := NewResolver(store, log)
	ctx := context.Background()

	require.NoError(t, store.RegisterFull(ctx, AgentRequest{
		AgentID: "z-agent", Name: "z", Endpoint: "http://z:9001",
		Tools: []ToolRegistration{{FunctionName: "f", Capability: "weather", Version: "2.0.0"}},
	}, "register"))
	require.NoError(t, store.RegisterFull(ctx, AgentRequest{
		AgentID: "a-agent", Name: "a", Endpoint: "http://a:9001",
		Tools: []ToolRegistration{{FunctionName: "f", Capability: "weather", Version: "1.0.0"}},
	}, "register"))

	best, err := resolver.ResolveOne(ctx, DependencySpec{Capability: "weather"}, "consumer-1")
	require.NoError(t, err)
	require.Equal(t, "z-agent", best.AgentID, "equal-score candidates tie-break on greater version before agent_id")
}

func TestResolver_ExcludesOwnAgentFromItsOwnResolution(t *testing.T) {
	db := newTestDB(t)
	log := logger.New(testLevelConfig{})
	store := NewStore(db)
	resolver := NewResolver(store, log)
	ctx := context.Background()

	require.NoError(t, store.RegisterFull(ctx, AgentRequest{
		AgentID: "self-agent", Name: "s", Endpoint: "http://s:9001",
		Tools: []ToolRegistration{{FunctionName: "f", Capability: "weather"}},
	}, "register"))

	best, err := resolver.ResolveOne(ctx, DependencySpec{Capability: "weather"}, "self-agent")
	require.NoError(t, err)
	require.Nil(t, best)
}

func TestMatcher_MatchVersion_TableDriven(t *testing.T) {
	m := NewMatcher(nil)

	cases := []struct {
		name       string
		version    string
		constraint string
		want       bool
	}{
		{"empty constraint matches any", "1.2.3", "", true},
		{"empty version cannot satisfy constraint", "", ">=1.0.0", false},
		{"range satisfied", "1.2.3", ">=1.0.0", true},
		{"range not satisfied", "2.0.0", "^1.0.0", false},
		{"invalid semver falls back to string equality (match)", "not-semver", "not-semver", true},
		{"invalid semver falls back to string equality (mismatch)", "not-semver", "other", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, m.MatchVersion(tc.version, tc.constraint))
		})
	}
}
