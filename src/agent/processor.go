package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Processor is the Agent Runtime Processor itself: the glue that runs the
// Decorator/Metadata Collector (C9) once at startup, then hands off to the
// Heartbeat Orchestrator (C7) for the lifetime of the process (spec §2
// dataflow: "C9 → C7 → ... → C8 (patch)").
type Processor struct {
	AgentID      string
	Config       *Config
	Orchestrator *Orchestrator
	Wrappers     map[string]*Wrapper
}

// StartAgent resolves configuration, assigns this process a globally
// unique agent ID, builds injection wrappers for every tool registered via
// Register, and starts the heartbeat loop. The returned Processor's
// Wrappers map is what the embedding process's local MCP server should
// dispatch tool calls through — never the bare registered function (spec
// §4.6 step 3).
func StartAgent(ctx context.Context) (*Processor, error) {
	cfg := LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent configuration: %w", err)
	}
	SetLogger(cfg)

	agentID := fmt.Sprintf("%s-%s", cfg.AgentName, uuid.New().String()[:8])

	wrappers := BuildWrappers()

	orch := NewOrchestrator(agentID, cfg)
	if err := orch.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start heartbeat orchestrator: %w", err)
	}

	Log.Info("agent %s started (namespace=%s, endpoint=%s, tools=%d)", agentID, cfg.Namespace, cfg.Endpoint(), len(wrappers))

	return &Processor{AgentID: agentID, Config: cfg, Orchestrator: orch, Wrappers: wrappers}, nil
}

// Shutdown stops the heartbeat loop and deregisters from the registry.
func (p *Processor) Shutdown() {
	p.Orchestrator.Stop()
}
