package op

import (
	"context"
	"fmt"
	"time"

	"github.com/flowllm-go/flowllm/pkg/flowctx"
)

// AsyncContext is the cancellation signal async operations observe.
type AsyncContext = context.Context

// AsyncHooks are the asynchronous lifecycle methods.
type AsyncHooks struct {
	Before  func(ctx AsyncContext, o *BaseOp) error
	Execute func(ctx AsyncContext, o *BaseOp) error
	After   func(ctx AsyncContext, o *BaseOp) error
	Default func(ctx AsyncContext, o *BaseOp) error
}

// AsyncOp wraps a BaseOp with an AsyncCall entry point, giving it the
// AsyncCapable trait. Only ops built via NewAsync/newComposite
// with async=true carry this wrapper; plain BaseOp leaves stay sync-only.
type AsyncOp struct {
	*BaseOp
	hooks AsyncHooks
}

// NewAsync constructs an async leaf operation.
func NewAsync(name string, hooks AsyncHooks, opts ...Option) *AsyncOp {
	opts = append(opts, WithAsync(true))
	base := New(name, Hooks{}, opts...)
	return &AsyncOp{BaseOp: base, hooks: hooks}
}

// Copy overrides BaseOp.Copy so AsyncOp clones keep their async hooks and
// AsyncCapable-ness.
func (a *AsyncOp) Copy(overrides map[string]any) Op {
	cloneBase := a.BaseOp.Copy(overrides).(*BaseOp)
	return &AsyncOp{BaseOp: cloneBase, hooks: a.hooks}
}

// AsyncCall runs the asynchronous lifecycle.
func (a *AsyncOp) AsyncCall(ctx AsyncContext, fctx *flowctx.FlowContext, kwargs map[string]any) (*flowctx.FlowResponse, error) {
	if fctx == nil {
		fctx = flowctx.New()
	}
	if kwargs != nil {
		fctx.Merge(kwargs)
	}
	a.ctx = fctx

	var execErr error
	if a.maxRetries == 1 && a.raiseException {
		execErr = runAsyncHook(ctx, a.hooks.Before, a.BaseOp)
		if execErr == nil {
			execErr = runAsyncHook(ctx, a.hooks.Execute, a.BaseOp)
		}
		if execErr == nil {
			execErr = runAsyncHook(ctx, a.hooks.After, a.BaseOp)
		}
	} else {
		for i := 0; i < a.maxRetries; i++ {
			if ctx.Err() != nil {
				execErr = ctx.Err()
				break
			}
			execErr = runAsyncHook(ctx, a.hooks.Before, a.BaseOp)
			if execErr == nil {
				execErr = runAsyncHook(ctx, a.hooks.Execute, a.BaseOp)
			}
			if execErr == nil {
				execErr = runAsyncHook(ctx, a.hooks.After, a.BaseOp)
			}
			if execErr == nil {
				break
			}
			if i == a.maxRetries-1 {
				if a.raiseException {
					break
				}
				if dErr := runAsyncHook(ctx, a.hooks.Default, a.BaseOp); dErr != nil {
					execErr = dErr
				}
			} else {
				if RetryObserver != nil {
					RetryObserver(a.name)
				}
				select {
				case <-time.After(backOff(i)):
				case <-ctx.Done():
					execErr = ctx.Err()
				}
			}
		}
	}

	if execErr != nil && a.raiseException {
		return nil, fmt.Errorf("op=%s: %w", a.name, execErr)
	}
	if resp := fctx.Response(); resp != nil {
		if execErr != nil {
			resp.Fail(execErr)
		}
		return resp, nil
	}
	return nil, nil
}

func runAsyncHook(ctx AsyncContext, h func(ctx AsyncContext, o *BaseOp) error, o *BaseOp) error {
	if h == nil {
		return nil
	}
	return h(ctx, o)
}
