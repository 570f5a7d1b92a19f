// Package op implements the operation contract and its composite operators. An
// Op is the unit the rest of the engine composes: the expression parser
// (pkg/exprparser) builds Op trees, and a Flow (pkg/flow) drives a root Op's
// lifecycle per invocation.
package op

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flowllm-go/flowllm/pkg/flowctx"
	"github.com/flowllm-go/flowllm/pkg/toolcall"
)

// ErrMissingInput is wrapped when a required tool input is absent from the
// context.
var ErrMissingInput = errors.New("missing required input")

// ErrAsyncModeMismatch is wrapped when composite children disagree on their
// async flag.
var ErrAsyncModeMismatch = errors.New("async mode mismatch")

// RetryObserver, when set, is invoked with the op name before each retry
// back-off sleep (both sync Call and AsyncCall). svcctx wires this to its
// retry counter at process start-up; nil by default so the op package has
// no dependency on svcctx.
var RetryObserver func(opName string)

// Kind distinguishes leaf operations from the two composite shapes, so the
// `>>`/`|`/`<<` operators (Then/Par/Attach) can flatten/reject appropriately
// without reflection.
type Kind int

const (
	KindLeaf Kind = iota
	KindSequential
	KindParallel
)

// Op is the contract every unit of work satisfies.
type Op interface {
	// Name is the snake-cased identifier (class name by default).
	Name() string
	// ShortName is Name with a trailing "_op" stripped.
	ShortName() string
	// Kind reports whether this Op is a leaf, a SequentialOp, or a ParallelOp.
	Kind() Kind
	// IsAsync reports this Op's async/sync mode.
	IsAsync() bool
	// Children returns the ordered list of child operations.
	Children() []Op
	// Call runs the synchronous lifecycle.
	Call(fctx *flowctx.FlowContext, kwargs map[string]any) (*flowctx.FlowResponse, error)
	// Copy returns a new Op with its params merged with overrides and
	// children recursively copied.
	Copy(overrides map[string]any) Op
}

// AsyncCapable is the optional trait exposing an async entry point. Only ops
// constructed via NewAsync, or newComposite with async=true, implement it; plain BaseOp leaves
// do not, giving genuine structural (not just flagged) optionality.
type AsyncCapable interface {
	Op
	AsyncCall(ctx AsyncContext, fctx *flowctx.FlowContext, kwargs map[string]any) (*flowctx.FlowResponse, error)
}

// ToolCapable is the optional trait exposing a ToolCall descriptor.
type ToolCapable interface {
	Op
	ToolCall() *toolcall.ToolCall
}

// Hooks are the synchronous lifecycle methods of a leaf operation:
// before_execute/execute/after_execute/default_execute. A nil hook is
// treated as a no-op.
type Hooks struct {
	Before  func(o *BaseOp) error
	Execute func(o *BaseOp) error
	After   func(o *BaseOp) error
	Default func(o *BaseOp) error
}

// BaseOp is the leaf operation implementation: the contract's fields plus
// the retry-loop lifecycle.
type BaseOp struct {
	name              string
	async             bool
	maxRetries        int
	raiseException    bool
	enableMultithread bool
	languageCode      string
	promptFile        string
	llmKey            string
	embeddingModelKey string
	vectorStoreKey    string

	kind     Kind
	children []Op
	params   map[string]any
	cache    any
	tool     *toolcall.ToolCall

	ctorArgs map[string]any

	hooks Hooks

	ctx   *flowctx.FlowContext
	tasks []*Task

	inputs  map[string]string
	outputs map[string]any
}

// Option configures a BaseOp at construction.
type Option func(*BaseOp)

func WithMaxRetries(n int) Option      { return func(o *BaseOp) { o.maxRetries = n } }
func WithRaiseException(b bool) Option { return func(o *BaseOp) { o.raiseException = b } }
func WithMultithread(b bool) Option    { return func(o *BaseOp) { o.enableMultithread = b } }
func WithAsync(b bool) Option          { return func(o *BaseOp) { o.async = b } }
func WithLanguage(lang string) Option  { return func(o *BaseOp) { o.languageCode = lang } }
func WithPromptFile(path string) Option {
	return func(o *BaseOp) { o.promptFile = path }
}
func WithLLMKey(key string) Option            { return func(o *BaseOp) { o.llmKey = key } }
func WithEmbeddingModelKey(key string) Option { return func(o *BaseOp) { o.embeddingModelKey = key } }
func WithVectorStoreKey(key string) Option    { return func(o *BaseOp) { o.vectorStoreKey = key } }
func WithParams(p map[string]any) Option      { return func(o *BaseOp) { o.params = p } }
func WithToolCall(tc *toolcall.ToolCall) Option {
	return func(o *BaseOp) { o.tool = tc }
}

// New constructs a leaf BaseOp with the given name and lifecycle hooks.
// Defaults: max_retries=1, raise_exception=true, enable_multithread=true.
func New(name string, hooks Hooks, opts ...Option) *BaseOp {
	o := &BaseOp{
		name:              name,
		maxRetries:        1,
		raiseException:    true,
		enableMultithread: true,
		kind:              KindLeaf,
		params:            make(map[string]any),
		hooks:             hooks,
		ctorArgs:          map[string]any{"name": name},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *BaseOp) Name() string { return o.name }

func (o *BaseOp) ShortName() string {
	return strings.TrimSuffix(o.name, "_op")
}

func (o *BaseOp) Kind() Kind        { return o.kind }
func (o *BaseOp) IsAsync() bool     { return o.async }
func (o *BaseOp) Children() []Op    { return o.children }
func (o *BaseOp) Params() map[string]any { return o.params }
func (o *BaseOp) MaxRetries() int   { return o.maxRetries }
func (o *BaseOp) RaiseException() bool { return o.raiseException }
func (o *BaseOp) LLMKey() string    { return o.llmKey }
func (o *BaseOp) EmbeddingModelKey() string { return o.embeddingModelKey }
func (o *BaseOp) VectorStoreKey() string    { return o.vectorStoreKey }
func (o *BaseOp) LanguageCode() string      { return o.languageCode }
func (o *BaseOp) PromptFile() string        { return o.promptFile }
func (o *BaseOp) Cache() any                { return o.cache }
func (o *BaseOp) SetCache(v any)            { o.cache = v }

// Context returns the FlowContext active for the in-flight call.
func (o *BaseOp) Context() *flowctx.FlowContext { return o.ctx }

// ToolCall returns the attached tool schema, or nil.
func (o *BaseOp) ToolCall() *toolcall.ToolCall { return o.tool }

// Input returns the bound value of a tool input parameter, populated by
// BindToolInputs before Execute runs. Empty if unbound.
func (o *BaseOp) Input(name string) string { return o.inputs[name] }

// SetOutput records one tool output value under name, for BindToolOutputs to
// write into the context after Execute returns. Mirrors the Python
// async-tool op's set_result(value, key).
func (o *BaseOp) SetOutput(name string, value any) {
	if o.outputs == nil {
		o.outputs = make(map[string]any)
	}
	o.outputs[name] = value
}

// SetOutputs records several tool output values at once, mirroring
// set_results(**kv).
func (o *BaseOp) SetOutputs(kv map[string]any) {
	for k, v := range kv {
		o.SetOutput(k, v)
	}
}

// AppendChild attaches a child without sequencing it (used by `a << b` to
// attach b as a child slot of a).
func (o *BaseOp) AppendChild(child Op) {
	o.children = append(o.children, child)
}

// Call runs the synchronous lifecycle.
func (o *BaseOp) Call(fctx *flowctx.FlowContext, kwargs map[string]any) (*flowctx.FlowResponse, error) {
	if fctx == nil {
		fctx = flowctx.New()
	}
	if kwargs != nil {
		fctx.Merge(kwargs)
	}
	o.ctx = fctx

	start := time.Now()
	var execErr error

	if o.maxRetries == 1 && o.raiseException {
		execErr = runHook(o.hooks.Before, o)
		if execErr == nil {
			execErr = runHook(o.hooks.Execute, o)
		}
		if execErr == nil {
			execErr = runHook(o.hooks.After, o)
		}
	} else {
		for i := 0; i < o.maxRetries; i++ {
			execErr = runHook(o.hooks.Before, o)
			if execErr == nil {
				execErr = runHook(o.hooks.Execute, o)
			}
			if execErr == nil {
				execErr = runHook(o.hooks.After, o)
			}
			if execErr == nil {
				break
			}
			if i == o.maxRetries-1 {
				if o.raiseException {
					break
				}
				if dErr := runHook(o.hooks.Default, o); dErr != nil {
					execErr = dErr
				}
			} else {
				if RetryObserver != nil {
					RetryObserver(o.name)
				}
				time.Sleep(backOff(i))
			}
		}
	}
	_ = start // reserved for future call-duration metrics

	if execErr != nil && o.raiseException {
		return nil, fmt.Errorf("op=%s: %w", o.name, execErr)
	}
	if fctx.Response() != nil {
		resp := fctx.Response()
		if execErr != nil {
			resp.Fail(execErr)
		}
		return resp, nil
	}
	return nil, nil
}

// backOff is the default linear back-off: 1+attempt seconds.
func backOff(attempt int) time.Duration {
	return time.Duration(1+attempt) * time.Second
}

func runHook(h func(o *BaseOp) error, o *BaseOp) error {
	if h == nil {
		return nil
	}
	return h(o)
}

// Copy returns a new BaseOp with params merged with overrides and children
// recursively copied. Caches are shared, not cloned.
func (o *BaseOp) Copy(overrides map[string]any) Op {
	clone := *o
	clone.params = mergeParams(o.params, overrides)
	clone.children = make([]Op, len(o.children))
	for i, c := range o.children {
		clone.children[i] = c.Copy(nil)
	}
	clone.tasks = nil
	clone.ctx = nil
	clone.inputs = nil
	clone.outputs = nil
	return &clone
}

func mergeParams(base, overrides map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// SubmitTask submits fn to pool and records the task for a later JoinTasks
// call. If enableMultithread is false, fn runs inline instead.
func (o *BaseOp) SubmitTask(pool *Pool, fn func() (any, error)) {
	if !o.enableMultithread || pool == nil {
		v, err := fn()
		t := &Task{done: make(chan struct{}), result: &flowResult{value: v, err: err}}
		close(t.done)
		o.tasks = append(o.tasks, t)
		return
	}
	o.tasks = append(o.tasks, pool.Submit(fn))
}

// JoinTasks collects results from every submitted task in FIFO submission
// order, then clears the task list.
func (o *BaseOp) JoinTasks() ([]any, error) {
	results := make([]any, 0, len(o.tasks))
	var firstErr error
	for _, t := range o.tasks {
		v, err := t.Result()
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if v != nil {
			results = append(results, v)
		}
	}
	o.tasks = nil
	return results, firstErr
}

// ---- Composition operators ----

// Then implements `a >> b`: if a is already sequential, append b; else wrap
// both into a new SequentialOp. Enforces async-mode equality at composition
// time.
func Then(a, b Op) (Op, error) {
	if a.IsAsync() != b.IsAsync() {
		return nil, fmt.Errorf("op=%s >> op=%s: %w", a.Name(), b.Name(), ErrAsyncModeMismatch)
	}
	children := flattenFor(KindSequential, a, b)
	return newComposite(KindSequential, children, a.IsAsync())
}

// Par implements `a | b`: if a is already parallel, merge in place so `a | b |
// c` is a single three-child node, not nested.
func Par(a, b Op) (Op, error) {
	if a.IsAsync() != b.IsAsync() {
		return nil, fmt.Errorf("op=%s | op=%s: %w", a.Name(), b.Name(), ErrAsyncModeMismatch)
	}
	children := flattenFor(KindParallel, a, b)
	return newComposite(KindParallel, children, a.IsAsync())
}

// Attach implements `a << b`: attach b as a child slot of a. SequentialOp and
// ParallelOp reject it.
func Attach(a, b Op) (Op, error) {
	if a.Kind() == KindSequential || a.Kind() == KindParallel {
		return nil, fmt.Errorf("op=%s: composite rejects << attach", a.Name())
	}
	base, ok := a.(*BaseOp)
	if !ok {
		return nil, fmt.Errorf("op=%s: does not support << attach", a.Name())
	}
	base.AppendChild(b)
	return base, nil
}

// flattenFor merges a/b's children into one list when either side is
// already of the target kind, else returns [a, b].
func flattenFor(kind Kind, a, b Op) []Op {
	var children []Op
	if a.Kind() == kind {
		children = append(children, a.Children()...)
	} else {
		children = append(children, a)
	}
	if b.Kind() == kind {
		children = append(children, b.Children()...)
	} else {
		children = append(children, b)
	}
	return children
}

// CanonicalName builds a deterministic composite name from its children's
// short names, used for round-trip serialisation.
func CanonicalName(kind Kind, children []Op) string {
	sep := " >> "
	if kind == KindParallel {
		sep = " | "
	}
	names := make([]string, len(children))
	for i, c := range children {
		names[i] = c.ShortName()
	}
	return "(" + strings.Join(names, sep) + ")"
}
