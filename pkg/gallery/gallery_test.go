package gallery

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowllm-go/flowllm/pkg/flowctx"
	"github.com/flowllm-go/flowllm/pkg/llms"
	"github.com/flowllm-go/flowllm/pkg/op"
	"github.com/flowllm-go/flowllm/pkg/svcctx"
)

// TestMockOpSequentialPipeline proves a sequential pipeline of mock ops:
// each op writes its own name, and the last op's output wins.
func TestMockOpSequentialPipeline(t *testing.T) {
	op1, op2, op3 := NewMockOp("op1"), NewMockOp("op2"), NewMockOp("op3")

	seq1, err := op.Then(op1, op2)
	require.NoError(t, err)
	full, err := op.Then(seq1, op3)
	require.NoError(t, err)

	fctx := flowctx.New()
	_, err = full.Call(fctx, nil)
	require.NoError(t, err)

	assert.Equal(t, "op3", fctx.Response().Answer)
	v1, _ := fctx.Get("op1_result")
	v2, _ := fctx.Get("op2_result")
	v3, _ := fctx.Get("op3_result")
	assert.Equal(t, "op1", v1)
	assert.Equal(t, "op2", v2)
	assert.Equal(t, "op3", v3)
}

func TestEchoOpRoundTrips(t *testing.T) {
	echo := NewEchoOp(0)

	fctx := flowctx.New()
	fctx.Set("message", "hi there")
	_, err := echo.Call(fctx, nil)
	require.NoError(t, err)

	v, ok := fctx.Get("echo_result")
	require.True(t, ok)
	assert.Equal(t, "hi there", v)
	assert.Equal(t, "hi there", fctx.Response().Answer)
}

func TestEchoOpMissingInputFails(t *testing.T) {
	echo := NewEchoOp(0, op.WithRaiseException(false), op.WithMaxRetries(1))

	fctx := flowctx.New()
	_, err := echo.Call(fctx, nil)
	require.NoError(t, err)
	assert.False(t, fctx.Response().Success)
}

func TestEchoOpToolIndexIsolation(t *testing.T) {
	first := NewEchoOp(0)
	second := NewEchoOp(1)

	par, err := op.NewParallel(first, second)
	require.NoError(t, err)

	fctx := flowctx.New()
	fctx.Set(op.PoolContextKey, op.NewPool(2))
	fctx.Set("message", "a")
	fctx.Set("message.1", "b")

	_, err = par.Call(fctx, nil)
	require.NoError(t, err)

	v0, _ := fctx.Get("echo_result")
	v1, _ := fctx.Get("echo_result.1")
	assert.Equal(t, "a", v0)
	assert.Equal(t, "b", v1)
}

func TestLLMOpCallsRegisteredProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": "hi back"}}},
		})
	}))
	defer srv.Close()

	sc := svcctx.Get(svcctx.Options{})
	require.NoError(t, sc.LLMs.Register("default", "", func(params map[string]any) (llms.Provider, error) {
		return llms.NewOpenAIProvider("default", srv.URL, "test-key", "gpt-test"), nil
	}))

	llmOp := NewLLMOp("answer_op")
	fctx := flowctx.New()
	fctx.Set("prompt", "hello")

	_, err := llmOp.Call(fctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi back", fctx.Response().Answer)
}
