package op

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/flowllm-go/flowllm/pkg/flowctx"
	"github.com/flowllm-go/flowllm/pkg/toolcall"
)

// PoolContextKey is the reserved FlowContext slot a ServiceContext seeds with
// the shared worker pool.
const PoolContextKey = "__pool"

// PoolFromContext resolves the shared pool from a FlowContext, or nil if
// none was seeded (e.g. in unit tests that construct ops directly).
func PoolFromContext(fctx *flowctx.FlowContext) *Pool {
	if fctx == nil {
		return nil
	}
	v, ok := fctx.Get(PoolContextKey)
	if !ok {
		return nil
	}
	p, _ := v.(*Pool)
	return p
}

// newComposite builds the sync or async composite for kind out of children,
// wiring its Execute hook to the appropriate fan-in/fan-out logic. Composites
// re-export the first child's tool schema when that child is tool-capable.
func newComposite(kind Kind, children []Op, async bool) (Op, error) {
	name := CanonicalName(kind, children)
	tool := toolCallOf(firstToolCapable(children))

	if !async {
		base := New(name, Hooks{
			Execute: func(o *BaseOp) error { return executeSyncComposite(kind, o, children) },
		}, WithToolCall(tool))
		base.kind = kind
		base.children = children
		return base, nil
	}

	a := NewAsync(name, AsyncHooks{
		Execute: func(ctx AsyncContext, o *BaseOp) error { return executeAsyncComposite(ctx, kind, o, children) },
	}, WithToolCall(tool))
	a.kind = kind
	a.children = children
	return a, nil
}

func firstToolCapable(children []Op) Op {
	if len(children) == 0 {
		return nil
	}
	if _, ok := children[0].(ToolCapable); ok {
		return children[0]
	}
	return nil
}

func toolCallOf(o Op) *toolcall.ToolCall {
	if o == nil {
		return nil
	}
	tc, ok := o.(ToolCapable)
	if !ok {
		return nil
	}
	return tc.ToolCall()
}

// executeSyncComposite implements SequentialOp/ParallelOp in sync mode
//. Sequential passes the same context through children in
// declared order; parallel fans each child out to the shared pool and
// joins in FIFO order.
func executeSyncComposite(kind Kind, o *BaseOp, children []Op) error {
	switch kind {
	case KindSequential:
		for _, child := range children {
			if _, err := child.Call(o.Context(), nil); err != nil {
				return fmt.Errorf("sequential child %s: %w", child.Name(), err)
			}
		}
		return nil
	case KindParallel:
		pool := PoolFromContext(o.Context())
		fctx := o.Context()
		for _, child := range children {
			child := child
			o.SubmitTask(pool, func() (any, error) {
				return child.Call(fctx, nil)
			})
		}
		_, err := o.JoinTasks()
		return err
	default:
		return fmt.Errorf("unknown composite kind %d", kind)
	}
}

// executeAsyncComposite is executeSyncComposite's cooperative-mode twin.
// Async ParallelOp fan-out uses errgroup.WithContext so the first child
// error cancels its siblings.
func executeAsyncComposite(ctx AsyncContext, kind Kind, o *BaseOp, children []Op) error {
	switch kind {
	case KindSequential:
		for _, child := range children {
			ac, ok := child.(AsyncCapable)
			if !ok {
				return fmt.Errorf("sequential(async) child %s is not async-capable: %w", child.Name(), ErrAsyncModeMismatch)
			}
			if _, err := ac.AsyncCall(ctx, o.Context(), nil); err != nil {
				return fmt.Errorf("sequential child %s: %w", child.Name(), err)
			}
		}
		return nil
	case KindParallel:
		return runParallelAsync(ctx, o, children)
	default:
		return fmt.Errorf("unknown composite kind %d", kind)
	}
}

// runParallelAsync fans children out under errgroup.WithContext: the group's
// derived context is cancelled the moment any child returns an error, and
// Wait blocks until every goroutine it spawned has actually returned, so no
// child can still be sending after this function returns.
func runParallelAsync(ctx AsyncContext, o *BaseOp, children []Op) error {
	fctx := o.Context()
	g, gctx := errgroup.WithContext(ctx)

	for _, child := range children {
		child := child
		g.Go(func() error {
			ac, ok := child.(AsyncCapable)
			if !ok {
				return fmt.Errorf("parallel(async) child %s is not async-capable: %w", child.Name(), ErrAsyncModeMismatch)
			}
			_, err := ac.AsyncCall(gctx, fctx, nil)
			return err
		})
	}

	return g.Wait()
}

// NewSequential builds a SequentialOp from two or more ops, enforcing
// async-mode equality across all of them.
func NewSequential(ops ...Op) (Op, error) {
	return buildComposite(KindSequential, ops)
}

// NewParallel builds a ParallelOp from two or more ops, enforcing
// async-mode equality across all of them.
func NewParallel(ops ...Op) (Op, error) {
	return buildComposite(KindParallel, ops)
}

func buildComposite(kind Kind, ops []Op) (Op, error) {
	if len(ops) == 0 {
		return nil, fmt.Errorf("composite requires at least one operation")
	}
	async := ops[0].IsAsync()
	for _, o := range ops[1:] {
		if o.IsAsync() != async {
			return nil, fmt.Errorf("op=%s: %w", o.Name(), ErrAsyncModeMismatch)
		}
	}

	var children []Op
	for _, o := range ops {
		if o.Kind() == kind {
			children = append(children, o.Children()...)
		} else {
			children = append(children, o)
		}
	}
	return newComposite(kind, children, async)
}
