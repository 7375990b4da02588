package agent

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Orchestrator drives the dual-frequency heartbeat loop against the
// registry (spec §4.4): a cheap HEAD liveness ping most ticks, a full POST
// manifest refresh every FullEvery ticks or immediately when a HEAD
// response signals a topology change. It owns the DependencyCache and
// ProxyFactory pair that together implement the hot-swap (C6, C8).
type Orchestrator struct {
	agentID string
	cfg     *Config
	client  *RegistryClient
	cache   *DependencyCache
	proxies *ProxyFactory

	mu       sync.Mutex
	tick     int
	shutdown chan struct{}
	done     chan struct{}
	once     sync.Once
}

// NewOrchestrator builds an Orchestrator for the given agent identity.
func NewOrchestrator(agentID string, cfg *Config) *Orchestrator {
	return &Orchestrator{
		agentID:  agentID,
		cfg:      cfg,
		client:   NewRegistryClient(cfg.RegistryURL),
		cache:    NewDependencyCache(),
		proxies:  NewProxyFactory(cfg),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Cache exposes the dependency cache, e.g. so an injection wrapper's slot
// lookups can read it directly.
func (o *Orchestrator) Cache() *DependencyCache { return o.cache }

// Start registers the agent, then runs the heartbeat loop until Stop is
// called or the process receives SIGINT/SIGTERM/SIGHUP. It installs its
// own signal handling (spec §4.4 "suspension points") rather than sharing
// meshctl's cli.SignalHandler, since the agent runtime must not depend on
// the operator CLI package.
func (o *Orchestrator) Start(ctx context.Context) error {
	tools := RegisteredTools()

	resp, err := o.client.Register(ctx, o.agentID, o.cfg, tools)
	if err != nil {
		Log.Warning("initial registration failed, will retry on next heartbeat tick: %v", err)
	} else {
		o.applyResolution(resp)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		select {
		case sig := <-sigChan:
			Log.Info("received signal %v, deregistering from mesh", sig)
			o.once.Do(func() { close(o.shutdown) })
		case <-o.shutdown:
		}
		o.deregister()
		close(o.done)
	}()

	go o.loop(tools)
	return nil
}

// Stop requests a clean shutdown and blocks until the deregister DELETE
// has been attempted (spec §4.4: "synchronously issues DELETE ... then
// exits").
func (o *Orchestrator) Stop() {
	o.once.Do(func() { close(o.shutdown) })
	<-o.done
}

func (o *Orchestrator) deregister() {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.ShutdownTimeout)
	defer cancel()
	if err := o.client.Deregister(ctx, o.agentID); err != nil {
		Log.Warning("best-effort deregister failed (exiting anyway): %v", err)
	}
}

func (o *Orchestrator) loop(tools []*ToolMeta) {
	ticker := time.NewTicker(o.cfg.HeadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.shutdown:
			return
		case <-ticker.C:
			o.tickOnce(tools)
		}
	}
}

// tickOnce runs one iteration of the heartbeat state machine described in
// spec §4.4. Heartbeat failures are logged and never terminate the process
// or invalidate the cache (spec §7 propagation policy).
func (o *Orchestrator) tickOnce(tools []*ToolMeta) {
	o.mu.Lock()
	tick := o.tick
	o.mu.Unlock()

	if tick >= o.cfg.FullEvery {
		o.fullRefresh(tools)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.HeadTimeout)
	status, changed, err := o.client.HeadHeartbeat(ctx, o.agentID)
	cancel()

	switch {
	case err != nil:
		Log.Warning("HEAD heartbeat failed, backing off: %v", err)
	case status == 410:
		Log.Warning("registry no longer knows this agent, re-registering")
		o.fullRefresh(tools)
	case changed:
		o.fullRefresh(tools)
	case status >= 500:
		Log.Warning("registry returned %d on HEAD heartbeat, backing off", status)
	default:
		o.mu.Lock()
		o.tick++
		o.mu.Unlock()
	}
}

func (o *Orchestrator) fullRefresh(tools []*ToolMeta) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.FullTimeout)
	defer cancel()

	resp, err := o.client.FullHeartbeat(ctx, o.agentID, o.cfg, tools)
	if err != nil {
		Log.Warning("full heartbeat failed, keeping previous resolution: %v", err)
		return
	}
	o.mu.Lock()
	o.tick = 0
	o.mu.Unlock()
	o.applyResolution(resp)
}

// applyResolution implements the dependency cache diff/hot-swap (spec
// §4.5): build the new binding table, diff against the cache, install
// fresh proxies for every changed slot, then atomically swap the table.
func (o *Orchestrator) applyResolution(resp *agentResponseWire) {
	next := make(map[DepKey]ToolInfo, len(resp.Dependencies))
	for _, dep := range resp.Dependencies {
		if dep.Status != "resolved" {
			continue
		}
		next[DepKey{FunctionName: dep.FunctionName, DepIndex: dep.DepIndex}] = ToolInfo{
			Name:     dep.ProviderFunction,
			Endpoint: dep.Endpoint,
		}
	}

	changed := o.cache.Diff(next)
	for _, key := range changed {
		wrapper, ok := WrapperFor(key.FunctionName)
		if !ok {
			continue
		}
		info, resolved := next[key]
		if !resolved {
			wrapper.SetSlot(key.DepIndex, nil)
			continue
		}
		proxy := o.proxies.Build(info.Endpoint, info.Name, DefaultProxyOptions())
		wrapper.SetSlot(key.DepIndex, proxy)
	}

	o.cache.Apply(next)
}
