package agent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCaller struct {
	response json.RawMessage
	err      error
}

func (s *stubCaller) Invoke(toolName string, args map[string]interface{}) (json.RawMessage, error) {
	return s.response, s.err
}

func TestWrapper_InvokeSubstitutesSlots(t *testing.T) {
	meta := &ToolMeta{
		FunctionName: "fetch_weather",
		Dependencies: []DependencySpec{{Capability: "temperature"}},
		Fn: func(args map[string]interface{}, deps []*Injected) (interface{}, error) {
			require.Len(t, deps, 1)
			if deps[0] == nil || deps[0].Call == nil {
				return nil, nil
			}
			raw, err := deps[0].Call.Invoke("get_temp", nil)
			return string(raw), err
		},
	}
	w := NewWrapper(meta)

	result, err := w.Invoke(nil)
	require.NoError(t, err)
	assert.Nil(t, result)

	w.SetSlot(0, &stubCaller{response: json.RawMessage(`"72F"`)})
	result, err = w.Invoke(nil)
	require.NoError(t, err)
	assert.Equal(t, `"72F"`, result)
}

func TestWrapper_InvokeSurfacesUserErrors(t *testing.T) {
	meta := &ToolMeta{
		FunctionName: "broken_tool",
		Fn: func(args map[string]interface{}, deps []*Injected) (interface{}, error) {
			return nil, assert.AnError
		},
	}
	w := NewWrapper(meta)

	_, err := w.Invoke(nil)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestBuildWrappers_PublishesEveryRegisteredTool(t *testing.T) {
	globalRegistry.mu.Lock()
	globalRegistry.tools = make(map[string]*ToolMeta)
	globalRegistry.mu.Unlock()
	registeredWrappers = make(map[string]*Wrapper)

	Register(ToolMeta{FunctionName: "greet", Fn: func(args map[string]interface{}, deps []*Injected) (interface{}, error) {
		return "hi", nil
	}})

	wrappers := BuildWrappers()
	w, ok := WrapperFor("greet")
	require.True(t, ok)
	assert.Same(t, wrappers["greet"], w)

	result, err := w.Invoke(nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", result)
}
