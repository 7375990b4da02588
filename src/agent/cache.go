package agent

import "sync"

// DepKey identifies one injection slot: the declaring function plus its
// 0-based dependency ordinal (spec §3 Dependency: "dep_index, stable").
type DepKey struct {
	FunctionName string
	DepIndex     int
}

// ToolInfo is the resolved binding for one dependency slot (spec §4.5).
type ToolInfo struct {
	Name     string // provider function name
	Endpoint string
}

// DependencyCache maps (function_name, dep_index) to its current resolved
// binding. It is written by the heartbeat orchestrator through Apply and
// consulted by its Diff; injection wrappers do not read it on invocation,
// they read their own slots (see Wrapper.Invoke).
type DependencyCache struct {
	mu    sync.RWMutex
	table map[DepKey]ToolInfo
	epoch uint64
}

// NewDependencyCache returns an empty cache.
func NewDependencyCache() *DependencyCache {
	return &DependencyCache{table: make(map[DepKey]ToolInfo)}
}

// Get returns the current binding for a slot, if resolved.
func (c *DependencyCache) Get(key DepKey) (ToolInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.table[key]
	return info, ok
}

// Epoch returns the cache's current generation counter, bumped on every
// successful Apply.
func (c *DependencyCache) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// Diff computes which slots changed between the cache's current table and
// a freshly resolved one. A slot counts as changed if it is new, removed
// (transitioned to unresolved), or bound to a different (name, endpoint)
// pair — timestamps and other metadata are deliberately excluded from the
// comparison (spec §4.5 step 2).
func (c *DependencyCache) Diff(next map[DepKey]ToolInfo) []DepKey {
	c.mu.RLock()
	defer c.mu.RUnlock()

	changed := make([]DepKey, 0)
	seen := make(map[DepKey]bool, len(next))
	for key, newInfo := range next {
		seen[key] = true
		if oldInfo, ok := c.table[key]; !ok || oldInfo != newInfo {
			changed = append(changed, key)
		}
	}
	for key := range c.table {
		if !seen[key] {
			changed = append(changed, key)
		}
	}
	return changed
}

// Apply atomically replaces the cached table with next and bumps the
// epoch. Callers must have already installed proxies for every changed key
// (spec §4.5 step 4) before calling Apply — Apply itself only swaps the
// lookup table that Get reads from.
func (c *DependencyCache) Apply(next map[DepKey]ToolInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table = next
	c.epoch++
}

// Clear empties the cache. Only legitimate callers are a resolved-to-
// unresolved transition already folded into Apply, or explicit application
// shutdown (spec §4.5 resilience invariant).
func (c *DependencyCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table = make(map[DepKey]ToolInfo)
	c.epoch++
}
