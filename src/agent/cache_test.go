package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDependencyCache_DiffDetectsNewChangedAndRemoved(t *testing.T) {
	cache := NewDependencyCache()

	key1 := DepKey{FunctionName: "fetch_weather", DepIndex: 0}
	key2 := DepKey{FunctionName: "fetch_weather", DepIndex: 1}

	first := map[DepKey]ToolInfo{
		key1: {Name: "get_temp", Endpoint: "http://host-a:9001"},
	}
	changed := cache.Diff(first)
	assert.ElementsMatch(t, []DepKey{key1}, changed)
	cache.Apply(first)

	info, ok := cache.Get(key1)
	require.True(t, ok)
	assert.Equal(t, "http://host-a:9001", info.Endpoint)

	second := map[DepKey]ToolInfo{
		key1: {Name: "get_temp", Endpoint: "http://host-b:9001"}, // endpoint moved
		key2: {Name: "get_humidity", Endpoint: "http://host-a:9001"},
	}
	changed = cache.Diff(second)
	assert.ElementsMatch(t, []DepKey{key1, key2}, changed)
	cache.Apply(second)

	third := map[DepKey]ToolInfo{
		key2: {Name: "get_humidity", Endpoint: "http://host-a:9001"},
	}
	changed = cache.Diff(third)
	assert.ElementsMatch(t, []DepKey{key1}, changed, "removed slots must be reported as changed")
}

func TestDependencyCache_DiffIgnoresUnchangedBindings(t *testing.T) {
	cache := NewDependencyCache()
	key := DepKey{FunctionName: "fetch_weather", DepIndex: 0}
	table := map[DepKey]ToolInfo{key: {Name: "get_temp", Endpoint: "http://host-a:9001"}}

	cache.Apply(table)
	changed := cache.Diff(table)
	assert.Empty(t, changed, "re-resolving to the same (name, endpoint) pair is not a change")
}

func TestDependencyCache_ApplyBumpsEpoch(t *testing.T) {
	cache := NewDependencyCache()
	assert.Equal(t, uint64(0), cache.Epoch())

	cache.Apply(map[DepKey]ToolInfo{})
	assert.Equal(t, uint64(1), cache.Epoch())

	cache.Clear()
	assert.Equal(t, uint64(2), cache.Epoch())
}
