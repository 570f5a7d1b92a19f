package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowllm-go/flowllm/pkg/config"
	"github.com/flowllm-go/flowllm/pkg/svcctx"
)

func freshServiceContext(t *testing.T) *svcctx.ServiceContext {
	t.Helper()
	return svcctx.Get(svcctx.Options{AppID: t.Name()})
}

func TestRunRegistersOpsAndFlows(t *testing.T) {
	sc := freshServiceContext(t)
	raiseFalse := false
	cfg := &config.Config{
		Ops: map[string]config.OpConfig{
			"greeter": {Backend: "mock", MaxRetries: 2, RaiseException: &raiseFalse},
		},
		Flows: map[string]config.FlowConfig{
			"greet": {Content: "greeter", Description: "says hello"},
		},
	}

	require.NoError(t, Run(sc, cfg, nil))
	assert.True(t, sc.Ops.Has("greeter"))
	assert.True(t, sc.Flows.Has("greet"))

	f, err := sc.Flows.Build("greet", nil)
	require.NoError(t, err)
	resp, err := f.Call(nil)
	require.NoError(t, err)
	assert.Equal(t, "greeter", resp.Answer)
	assert.Equal(t, "says hello", f.ToolCall().Description)
}

func TestRunSkipsUnknownBackendButContinues(t *testing.T) {
	sc := freshServiceContext(t)
	cfg := &config.Config{
		Ops: map[string]config.OpConfig{
			"bad":  {Backend: "not-a-real-backend"},
			"good": {Backend: "mock"},
		},
	}

	require.NoError(t, Run(sc, cfg, nil))
	assert.False(t, sc.Ops.Has("bad"))
	assert.True(t, sc.Ops.Has("good"))
}

func TestRunWiresLLMOpToRegisteredProvider(t *testing.T) {
	sc := freshServiceContext(t)
	cfg := &config.Config{
		LLMs: map[string]config.ProviderConfig{
			"default": {Backend: "openai", Params: map[string]any{"api_key": "test"}},
		},
		Ops: map[string]config.OpConfig{
			"answer": {Backend: "llm"},
		},
	}

	require.NoError(t, Run(sc, cfg, nil))
	assert.True(t, sc.LLMs.Has("default"))
	assert.True(t, sc.Ops.Has("answer"))
}
