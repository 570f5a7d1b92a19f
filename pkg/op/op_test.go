package op

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowllm-go/flowllm/pkg/flowctx"
)

// writerOp overwrites response.Answer with its own name: op1, op2, op3...
// each write {self.name} to context.response.answer, so the last op's
// output wins.
func writerOp(name string) *BaseOp {
	return New(name, Hooks{
		Execute: func(o *BaseOp) error {
			o.Context().Response().Answer = o.Name()
			return nil
		},
	})
}

func TestSequentialPipelineLastWriteWins(t *testing.T) {
	op1, op2, op3 := writerOp("op1"), writerOp("op2"), writerOp("op3")

	seq, err := NewSequential(op1, op2, op3)
	require.NoError(t, err)

	fctx := flowctx.New()
	resp, err := seq.Call(fctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "op3", resp.Answer)
}

func TestThenFlattensExistingSequential(t *testing.T) {
	op1, op2, op3 := writerOp("op1"), writerOp("op2"), writerOp("op3")

	seq12, err := Then(op1, op2)
	require.NoError(t, err)
	seq123, err := Then(seq12, op3)
	require.NoError(t, err)

	assert.Equal(t, KindSequential, seq123.Kind())
	assert.Len(t, seq123.Children(), 3)
}

func TestParMergesExistingParallelInPlace(t *testing.T) {
	op1, op2, op3 := writerOp("op1"), writerOp("op2"), writerOp("op3")

	par12, err := Par(op1, op2)
	require.NoError(t, err)
	par123, err := Par(par12, op3)
	require.NoError(t, err)

	assert.Equal(t, KindParallel, par123.Kind())
	assert.Len(t, par123.Children(), 3)
}

func TestAsyncModeMismatchRaisesAtCompositionTime(t *testing.T) {
	sync := writerOp("sync_op")
	asyncOp := NewAsync("async_op", AsyncHooks{})

	_, err := Then(sync, asyncOp)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAsyncModeMismatch))
}

func TestRetryThenFallback(t *testing.T) {
	calls := 0
	o := New("flaky_op", Hooks{
		Execute: func(o *BaseOp) error {
			calls++
			return errors.New("boom")
		},
		Default: func(o *BaseOp) error {
			o.Context().Response().Fail(errors.New("flaky_op execution failed!"))
			return nil
		},
	}, WithMaxRetries(3), WithRaiseException(false))

	fctx := flowctx.New()
	resp, err := o.Call(fctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Metadata["error"])
}

func TestCallFastPathSkipsRetryLoop(t *testing.T) {
	calls := 0
	o := New("once_op", Hooks{
		Execute: func(o *BaseOp) error { calls++; return nil },
	}, WithMaxRetries(1), WithRaiseException(true))

	_, err := o.Call(flowctx.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestShortNameStripsOpSuffix(t *testing.T) {
	o := New("search_op", Hooks{})
	assert.Equal(t, "search", o.ShortName())
}

func TestCopyMergesCtorArgsAndClonesChildren(t *testing.T) {
	child := writerOp("child")
	parent := New("parent", Hooks{}, WithParams(map[string]any{"a": 1}))
	parent.AppendChild(child)

	clone := parent.Copy(map[string]any{"b": 2}).(*BaseOp)
	assert.Equal(t, 1, clone.Params()["a"])
	assert.Equal(t, 2, clone.Params()["b"])
	require.Len(t, clone.Children(), 1)
	assert.NotSame(t, child, clone.Children()[0])
}
