package agent

import (
	"encoding/json"
	"sync"
)

// DependencySpec is a consumer-declared requirement on another tool,
// mirroring registry.DependencySpec on the wire (spec §3 Dependency).
type DependencySpec struct {
	Capability string
	Tags       []string
	Version    string
	Namespace  string
}

// Injected marks a function parameter as a mesh-injection slot: a stand-in
// for the "run-time type sentinel" the source language uses to flag
// dependency-injected parameters (spec §9 Design Notes). It is never part
// of a tool's external JSON schema and is filled from the dependency cache
// at call time, not by the caller.
type Injected struct {
	// Call is the live proxy for this slot, or nil if unresolved. Handlers
	// are expected to check for nil and degrade gracefully.
	Call ToolCaller
}

// ToolCaller is what an injection slot resolves to: something that can
// invoke a remote tool by name with keyword-style arguments.
type ToolCaller interface {
	Invoke(toolName string, args map[string]interface{}) (json.RawMessage, error)
}

// ToolFunc is the signature every registered tool function must satisfy.
// Dependency slots are values of type *Injected, substituted by the
// injection wrapper (§4.6) before the call reaches the user's code; the
// remaining arguments are the caller-supplied JSON-RPC parameters.
type ToolFunc func(args map[string]interface{}, deps []*Injected) (interface{}, error)

// ToolMeta is everything the Decorator/Metadata Collector (C9) extracts
// from a registered tool (spec §4.7).
type ToolMeta struct {
	FunctionName string
	Capability   string
	Tags         []string
	Version      string
	Description  string
	Dependencies []DependencySpec
	Fn           ToolFunc
}

// toolRegistry is the process-wide table of registered tools, built at startup
// by Register calls that stand in for the source's implicit "@mesh.tool
// import side effect" (spec §9: "explicit register() call invoked by an
// at-startup scan").
type toolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*ToolMeta
}

var globalRegistry = &toolRegistry{tools: make(map[string]*ToolMeta)}

// Register adds a tool to the process-wide registry. It is the explicit
// analog of the source's decorator-driven registration.
func Register(meta ToolMeta) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.tools[meta.FunctionName] = &meta
}

// RegisteredTools returns a snapshot of every tool registered so far, in no
// particular order.
func RegisteredTools() []*ToolMeta {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	out := make([]*ToolMeta, 0, len(globalRegistry.tools))
	for _, m := range globalRegistry.tools {
		out = append(out, m)
	}
	return out
}

// lookupTool finds a registered tool by function name.
func lookupTool(name string) (*ToolMeta, bool) {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	m, ok := globalRegistry.tools[name]
	return m, ok
}
