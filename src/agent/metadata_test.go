package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetGlobalRegistry() {
	globalRegistry.mu.Lock()
	globalRegistry.tools = make(map[string]*ToolMeta)
	globalRegistry.mu.Unlock()
}

func TestRegister_AddsAndOverwritesByFunctionName(t *testing.T) {
	resetGlobalRegistry()
	defer resetGlobalRegistry()

	Register(ToolMeta{FunctionName: "greet", Capability: "greeting", Version: "1.0.0"})
	Register(ToolMeta{FunctionName: "greet", Capability: "greeting", Version: "2.0.0"})

	tools := RegisteredTools()
	require.Len(t, tools, 1)
	assert.Equal(t, "2.0.0", tools[0].Version, "re-registering the same function name replaces the prior entry")
}

func TestLookupTool_FindsByName(t *testing.T) {
	resetGlobalRegistry()
	defer resetGlobalRegistry()

	Register(ToolMeta{FunctionName: "add_numbers", Capability: "arithmetic"})

	meta, ok := lookupTool("add_numbers")
	require.True(t, ok)
	assert.Equal(t, "arithmetic", meta.Capability)

	_, ok = lookupTool("does_not_exist")
	assert.False(t, ok)
}
