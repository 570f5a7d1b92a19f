// Package flow implements the flow runtime: the component that owns a root
// operation and drives it through a sync or cooperative entry point, bridging
// between the two execution modes when a flow's mode disagrees with its root
// op's mode.
package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/flowllm-go/flowllm/pkg/flowctx"
	"github.com/flowllm-go/flowllm/pkg/op"
	"github.com/flowllm-go/flowllm/pkg/toolcall"
)

// Builder constructs a fresh root op tree for one invocation.
type Builder func() (op.Op, error)

// Flow owns a Builder and offers both a sync and an async entry point,
// regardless of the mode the built root op happens to run in.
type Flow struct {
	name        string
	description string
	build       Builder
	pool        *op.Pool
	tool        *toolcall.ToolCall
	logger      *slog.Logger

	cachedRoot op.Op // printing/introspection only; never executed directly
}

// Option configures a Flow at construction.
type Option func(*Flow)

func WithDescription(d string) Option   { return func(f *Flow) { f.description = d } }
func WithPool(p *op.Pool) Option        { return func(f *Flow) { f.pool = p } }
func WithLogger(l *slog.Logger) Option  { return func(f *Flow) { f.logger = l } }
func WithToolCall(tc *toolcall.ToolCall) Option {
	return func(f *Flow) { f.tool = tc }
}

// New constructs a Flow from its name and Builder.
func New(name string, build Builder, opts ...Option) *Flow {
	f := &Flow{name: name, build: build, logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	if root, err := build(); err == nil {
		f.cachedRoot = root
	}
	return f
}

func (f *Flow) Name() string { return f.name }

// ToolCall returns this flow's tool descriptor: either the root op's own
// (when it is tool-capable) or the one explicitly attached via
// WithToolCall.
func (f *Flow) ToolCall() *toolcall.ToolCall {
	if f.tool != nil {
		return f.tool
	}
	if f.cachedRoot == nil {
		return nil
	}
	if tc, ok := f.cachedRoot.(op.ToolCapable); ok {
		return tc.ToolCall()
	}
	return nil
}

// Call runs the flow synchronously.
func (f *Flow) Call(kwargs map[string]any) (*flowctx.FlowResponse, error) {
	fctx, root, err := f.prepare(kwargs, false)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("flow call", "flow", f.name, "flow_id", fctx.FlowID, "kwargs", kwargs)

	var execErr error
	if ac, ok := root.(op.AsyncCapable); ok {
		// Sync flow, async root: spin up a short-lived context to drive it.
		_, execErr = ac.AsyncCall(context.Background(), fctx, nil)
	} else {
		_, execErr = root.Call(fctx, nil)
	}
	return finish(fctx, execErr), nil
}

// AsyncCall runs the flow cooperatively.
func (f *Flow) AsyncCall(ctx context.Context, kwargs map[string]any) (*flowctx.FlowResponse, error) {
	fctx, root, err := f.prepare(kwargs, false)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("flow async_call", "flow", f.name, "flow_id", fctx.FlowID, "kwargs", kwargs)

	var execErr error
	if ac, ok := root.(op.AsyncCapable); ok {
		_, execErr = ac.AsyncCall(ctx, fctx, nil)
	} else if f.pool != nil {
		// Async flow, sync root: offload to the worker pool and await it.
		task := f.pool.Submit(func() (any, error) {
			return root.Call(fctx, nil)
		})
		done := make(chan struct{})
		var result any
		go func() { result, execErr = task.Result(); close(done) }()
		select {
		case <-ctx.Done():
			execErr = ctx.Err()
		case <-done:
			_ = result
		}
	} else {
		_, execErr = root.Call(fctx, nil)
	}
	return finish(fctx, execErr), nil
}

// CallStream runs the flow synchronously in streaming mode, returning the
// queue immediately; the caller drains it concurrently while the flow executes
// in the background.
func (f *Flow) CallStream(kwargs map[string]any, capacity int) (*flowctx.StreamQueue, error) {
	fctx, root, err := f.prepare(kwargs, true)
	if err != nil {
		return nil, err
	}
	q := flowctx.NewStreamQueue(capacity)
	fctx.Set(flowctx.KeyStreamQueue, q)

	go func() {
		var execErr error
		if ac, ok := root.(op.AsyncCapable); ok {
			_, execErr = ac.AsyncCall(context.Background(), fctx, nil)
		} else {
			_, execErr = root.Call(fctx, nil)
		}
		f.emitTerminal(fctx, q, execErr)
	}()
	return q, nil
}

// AsyncCallStream is CallStream's cooperative twin.
func (f *Flow) AsyncCallStream(ctx context.Context, kwargs map[string]any, capacity int) (*flowctx.StreamQueue, error) {
	fctx, root, err := f.prepare(kwargs, true)
	if err != nil {
		return nil, err
	}
	q := flowctx.NewStreamQueue(capacity)
	fctx.Set(flowctx.KeyStreamQueue, q)

	go func() {
		var execErr error
		if ac, ok := root.(op.AsyncCapable); ok {
			_, execErr = ac.AsyncCall(ctx, fctx, nil)
		} else if f.pool != nil {
			task := f.pool.Submit(func() (any, error) {
				return root.Call(fctx, nil)
			})
			_, execErr = task.Result()
		} else {
			_, execErr = root.Call(fctx, nil)
		}
		f.emitTerminal(fctx, q, execErr)
	}()
	return q, nil
}

// prepare builds a fresh FlowContext and root op tree for one call.
func (f *Flow) prepare(kwargs map[string]any, stream bool) (*flowctx.FlowContext, op.Op, error) {
	root, err := f.build()
	if err != nil {
		return nil, nil, fmt.Errorf("flow=%s: rebuild root: %w", f.name, err)
	}
	fctx := flowctx.New()
	if kwargs != nil {
		fctx.Merge(kwargs)
	}
	fctx.Set(flowctx.KeyStream, stream)
	if f.pool != nil {
		fctx.Set(op.PoolContextKey, f.pool)
	}
	return fctx, root, nil
}

// finish applies step 6's error-recording rule for the non-streaming path:
// a non-raising escaped error is folded into response.metadata.error /
// success=false rather than returned.
func finish(fctx *flowctx.FlowContext, execErr error) *flowctx.FlowResponse {
	resp := fctx.Response()
	if execErr != nil {
		resp.Fail(execErr)
	}
	return resp
}

// emitTerminal pushes the terminal chunk for the streaming path: an ERROR
// chunk before DONE when the call failed (execErr escaped the root op, or a
// raise_exception=false op marked the response failed), else just DONE.
func (f *Flow) emitTerminal(fctx *flowctx.FlowContext, q *flowctx.StreamQueue, execErr error) {
	resp := fctx.Response()
	if execErr != nil {
		resp.Fail(execErr)
	}
	if !resp.Success {
		q.Push(flowctx.StreamChunk{FlowID: fctx.FlowID, ChunkType: flowctx.ChunkError, Chunk: fmt.Sprint(resp.Metadata["error"])})
	}
	q.Push(flowctx.StreamChunk{FlowID: fctx.FlowID, Done: true})
	q.Close()
}

// EncodeChunk renders one stream chunk as an SSE `data:` payload.
func EncodeChunk(c flowctx.StreamChunk) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return "data:" + string(b) + "\n\n", nil
}

// DoneSentinel is the SSE terminator the HTTP adapter writes after the last
// real chunk.
const DoneSentinel = "data:[DONE]\n\n"
