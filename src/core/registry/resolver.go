package registry

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"

	"mcp-mesh/src/core/logger"
)

// Resolver implements spec §4.1: for every declared dependency slot, find
// the healthy candidate(s) advertising the required capability, filter by
// version constraint and tag algebra, then pick the best-scoring one. Ties
// are broken deterministically by (greater version, agent_id, function_name)
// so repeated runs over an unchanged topology converge to the same answer.
type Resolver struct {
	store   *Store
	matcher *Matcher
	logger  *logger.Logger
}

// NewResolver builds a Resolver over a Store.
func NewResolver(store *Store, log *logger.Logger) *Resolver {
	return &Resolver{store: store, matcher: NewMatcher(log), logger: log}
}

// ResolveOne finds the best candidate for a single dependency spec, or nil
// if none match.
func (r *Resolver) ResolveOne(ctx context.Context, spec DependencySpec, excludeAgentID string) (*Candidate, error) {
	candidates, err := r.store.CandidatesForCapability(ctx, spec.Capability, spec.Namespace)
	if err != nil {
		return nil, err
	}

	var scored []ScoredCandidate
	for _, c := range candidates {
		if c.AgentID == excludeAgentID {
			continue // a tool never depends on its own agent's instance
		}
		matches, score := r.matcher.MatchCandidate(c, spec)
		if matches {
			scored = append(scored, ScoredCandidate{Candidate: c, Score: score})
		}
	}

	if len(scored) == 0 {
		return nil, nil
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if cmp := compareVersions(scored[i].Version, scored[j].Version); cmp != 0 {
			return cmp > 0
		}
		if scored[i].AgentID != scored[j].AgentID {
			return scored[i].AgentID < scored[j].AgentID
		}
		return scored[i].FunctionName < scored[j].FunctionName
	})

	best := scored[0].Candidate
	return &best, nil
}

// compareVersions orders two candidate versions for tie-breaking (spec
// §4.1 step 5(a): "greater version under semver ordering"). Unparseable
// versions fall back to string comparison, matching Matcher.MatchVersion's
// fallback for non-semver version strings.
func compareVersions(a, b string) int {
	if a == b {
		return 0
	}
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	}
	return va.Compare(vb)
}

// ResolveAgent re-runs resolution for every dependency slot declared by
// every tool of the given agent, persisting the result and returning the
// snapshot the AgentResponse carries back.
func (r *Resolver) ResolveAgent(ctx context.Context, agentID string, tools []ToolRegistration) ([]ResolvedDependency, error) {
	var out []ResolvedDependency

	for _, tool := range tools {
		for idx, dep := range tool.Dependencies {
			result, err := r.ResolveOne(ctx, dep, agentID)
			if err != nil {
				return nil, err
			}

			txErr := r.store.WithTx(ctx, func(tx *sql.Tx) error {
				return r.store.UpsertResolution(ctx, tx, agentID, dep, tool.FunctionName, idx, result)
			})
			if txErr != nil {
				return nil, txErr
			}

			resolved := ResolvedDependency{
				FunctionName: tool.FunctionName,
				DepIndex:     idx,
				Capability:   dep.Capability,
				Status:       "unresolved",
			}
			if result != nil {
				resolved.Status = "resolved"
				resolved.ProviderAgentID = result.AgentID
				resolved.ProviderFunction = result.FunctionName
				resolved.Endpoint = fmt.Sprintf("%s:%d", result.HttpHost, result.HttpPort)
			}
			out = append(out, resolved)
		}
	}

	return out, nil
}

// ReresolveConsumersOf is called after an agent's tools change: every
// consumer that declared a dependency on one of the changed capabilities
// gets its resolution slots re-evaluated, since a better (or newly healthy)
// provider may now exist.
func (r *Resolver) ReresolveConsumersOf(ctx context.Context, capabilities []string) error {
	seen := map[string]bool{}
	for _, cap := range capabilities {
		consumers, err := r.store.ResolutionsDependingOnCapability(ctx, cap)
		if err != nil {
			return err
		}
		for _, consumerID := range consumers {
			if seen[consumerID] {
				continue
			}
			seen[consumerID] = true

			tools, err := r.store.ToolsByAgent(ctx, consumerID)
			if err != nil {
				return err
			}
			regs := make([]ToolRegistration, len(tools))
			for i, t := range tools {
				regs[i] = ToolRegistration{FunctionName: t.FunctionName, Dependencies: t.Dependencies}
			}
			if _, err := r.ResolveAgent(ctx, consumerID, regs); err != nil {
				r.logger.Warning("re-resolution failed for consumer %s: %v", consumerID, err)
			}
		}
	}
	return nil
}
