package registry

import (
	"context"
	"sync"
	"time"

	"mcp-mesh/src/core/logger"
)

// AgentHealthMonitor is the liveness monitor from spec §4.3. It scans for
// agents whose updated_at has fallen behind the unhealthy timeout, appends
// an unhealthy event, and then evicts the agent row (cascading to its tools
// and dependency resolutions) — the teacher's equivalent only flipped a
// status column and left the row in place; spec requires eviction.
type AgentHealthMonitor struct {
	store            *Store
	logger           *logger.Logger
	unhealthyTimeout time.Duration
	checkInterval    time.Duration
	stopChan         chan struct{}
	wg               sync.WaitGroup
	mu               sync.RWMutex
	running          bool
}

// NewAgentHealthMonitor creates a new health monitor instance.
func NewAgentHealthMonitor(store *Store, log *logger.Logger, unhealthyTimeout, checkInterval time.Duration) *AgentHealthMonitor {
	return &AgentHealthMonitor{
		store:            store,
		logger:           log,
		unhealthyTimeout: unhealthyTimeout,
		checkInterval:    checkInterval,
		stopChan:         make(chan struct{}),
	}
}

// Start begins the background health monitoring loop.
func (h *AgentHealthMonitor) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		h.logger.Warning("health monitor is already running")
		return
	}

	h.running = true
	h.wg.Add(1)

	go func() {
		defer h.wg.Done()
		h.logger.Info("starting agent health monitor (timeout: %v, interval: %v)", h.unhealthyTimeout, h.checkInterval)

		ticker := time.NewTicker(h.checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				h.sweep()
			case <-h.stopChan:
				h.logger.Info("agent health monitor stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the health monitor.
func (h *AgentHealthMonitor) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return
	}

	h.running = false
	close(h.stopChan)
	h.wg.Wait()
}

// sweep scans all agents and evicts the ones past the unhealthy timeout.
func (h *AgentHealthMonitor) sweep() {
	ctx := context.Background()
	threshold := time.Now().Add(-h.unhealthyTimeout)

	stale, err := h.store.StaleAgents(ctx, threshold)
	if err != nil {
		h.logger.Error("failed to query stale agents: %v", err)
		return
	}

	if len(stale) == 0 {
		h.logger.Debug("health monitor: all agents healthy")
		return
	}

	h.logger.Info("health monitor: found %d stale agents", len(stale))

	for _, agent := range stale {
		h.logger.Warning("agent %s unhealthy (last seen %v ago), evicting", agent.AgentID, time.Since(agent.UpdatedAt))
		if err := h.evict(ctx, agent.AgentID); err != nil {
			h.logger.Error("failed to evict agent %s: %v", agent.AgentID, err)
		}
	}
}

func (h *AgentHealthMonitor) evict(ctx context.Context, agentID string) error {
	if err := h.store.InsertEvent(ctx, h.store.db, agentID, "unhealthy", map[string]interface{}{
		"reason":            "heartbeat_timeout",
		"detected_at":       time.Now().UTC().Format(time.RFC3339),
		"unhealthy_timeout": h.unhealthyTimeout.String(),
	}); err != nil {
		return err
	}
	return h.store.DeleteAgent(ctx, agentID)
}

// IsRunning reports whether the health monitor is currently running.
func (h *AgentHealthMonitor) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}
