// Package svcctx implements the ServiceContext singleton: the
// process-wide object holding every registry, the shared worker pool, and
// the long-lived instantiated resources (vector stores, flows, MCP tool
// catalogs) flows and ops reach into by key.
package svcctx

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowllm-go/flowllm/pkg/embedders"
	"github.com/flowllm-go/flowllm/pkg/flow"
	"github.com/flowllm-go/flowllm/pkg/flowctx"
	"github.com/flowllm-go/flowllm/pkg/llms"
	"github.com/flowllm-go/flowllm/pkg/op"
	"github.com/flowllm-go/flowllm/pkg/registry"
	"github.com/flowllm-go/flowllm/pkg/toolcall"
	"github.com/flowllm-go/flowllm/pkg/tokencounter"
	"github.com/flowllm-go/flowllm/pkg/vectorstore"
)

// ServiceContext is the process-wide singleton.
type ServiceContext struct {
	ID       string
	AppID    string
	language string

	LLMs          *registry.Registry[llms.Provider]
	Embedders     *registry.Registry[embedders.Provider]
	VectorStores  *registry.Registry[vectorstore.Provider]
	Ops           *registry.Registry[op.Op]
	Flows         *registry.Registry[*flow.Flow]
	Services      *registry.Registry[any]
	TokenCounters *registry.Registry[tokencounter.Provider]

	pool *op.Pool

	mu                   sync.RWMutex
	vectorStoreInstances map[string]vectorstore.Provider
	flowInstances        map[string]*flow.Flow
	mcpToolCatalogs      map[string][]*toolcall.ToolCall

	metrics *serviceMetrics
}

type serviceMetrics struct {
	poolTasksSubmitted prometheus.Counter
	opRetries          *prometheus.CounterVec
}

func newServiceMetrics(reg prometheus.Registerer) *serviceMetrics {
	m := &serviceMetrics{
		poolTasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowllm_pool_tasks_submitted_total",
			Help: "Total sub-tasks submitted to the shared worker pool.",
		}),
		opRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowllm_op_retries_total",
			Help: "Total retry attempts across operation calls, by op name.",
		}, []string{"op"}),
	}
	if reg != nil {
		reg.MustRegister(m.poolTasksSubmitted, m.opRetries)
	}
	return m
}

var (
	instance *ServiceContext
	once     sync.Once
)

// Options configure the first Get call; ignored on subsequent calls since the
// singleton is already built.
type Options struct {
	AppID        string
	Language     string
	PoolSize     int
	MetricsRegistry prometheus.Registerer
}

// Get returns the process-wide ServiceContext, constructing it on first
// call with opts and ignoring opts on every subsequent call.
func Get(opts Options) *ServiceContext {
	once.Do(func() {
		instance = newServiceContext(opts)
	})
	return instance
}

func newServiceContext(opts Options) *ServiceContext {
	lang := opts.Language
	if lang == "" {
		lang = "en"
	}
	sc := &ServiceContext{
		ID:                   uuid.NewString(),
		AppID:                opts.AppID,
		language:             lang,
		pool:                 op.NewPool(opts.PoolSize),
		vectorStoreInstances: make(map[string]vectorstore.Provider),
		flowInstances:        make(map[string]*flow.Flow),
		mcpToolCatalogs:      make(map[string][]*toolcall.ToolCall),
		metrics:              newServiceMetrics(opts.MetricsRegistry),
	}
	sc.LLMs = registry.New[llms.Provider](registry.KindLLM, opts.AppID)
	sc.Embedders = registry.New[embedders.Provider](registry.KindEmbeddingModel, opts.AppID)
	sc.VectorStores = registry.New[vectorstore.Provider](registry.KindVectorStore, opts.AppID)
	sc.Ops = registry.New[op.Op](registry.KindOp, opts.AppID)
	sc.Flows = registry.New[*flow.Flow](registry.KindFlow, opts.AppID)
	sc.Services = registry.New[any](registry.KindService, opts.AppID)
	sc.TokenCounters = registry.New[tokencounter.Provider](registry.KindTokenCounter, opts.AppID)
	warn := func(msg string) { slog.Warn(msg) }
	sc.LLMs.OnWarn(warn)
	sc.Embedders.OnWarn(warn)
	sc.VectorStores.OnWarn(warn)
	sc.Ops.OnWarn(warn)
	sc.Flows.OnWarn(warn)
	sc.Services.OnWarn(warn)
	sc.TokenCounters.OnWarn(warn)
	op.RetryObserver = sc.RecordOpRetry
	return sc
}

// resetForTest tears the singleton down so tests can construct an isolated
// instance. Only used from this package's own tests.
func resetForTest() {
	instance = nil
	once = sync.Once{}
	op.RetryObserver = nil
}

// Pool returns the shared worker pool.
func (sc *ServiceContext) Pool() *op.Pool { return sc.pool }

// Language returns the service-wide default language.
func (sc *ServiceContext) Language() string { return sc.language }

// SeedPool stamps the shared pool onto a FlowContext under the reserved key
// ops consult via op.PoolFromContext.
func (sc *ServiceContext) SeedPool(fctx *flowctx.FlowContext) {
	fctx.Set(op.PoolContextKey, sc.pool)
}

// VectorStore returns (instantiating and caching on first use) the vector
// store registered under name.
func (sc *ServiceContext) VectorStore(name string, params map[string]any) (vectorstore.Provider, error) {
	sc.mu.RLock()
	if v, ok := sc.vectorStoreInstances[name]; ok {
		sc.mu.RUnlock()
		return v, nil
	}
	sc.mu.RUnlock()

	v, err := sc.VectorStores.Build(name, params)
	if err != nil {
		return nil, fmt.Errorf("service=%s: vector store %q: %w", sc.ID, name, err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if existing, ok := sc.vectorStoreInstances[name]; ok {
		return existing, nil
	}
	sc.vectorStoreInstances[name] = v
	return v, nil
}

// Flow returns (instantiating and caching on first use) the flow registered
// under name.
func (sc *ServiceContext) Flow(name string, params map[string]any) (*flow.Flow, error) {
	sc.mu.RLock()
	if f, ok := sc.flowInstances[name]; ok {
		sc.mu.RUnlock()
		return f, nil
	}
	sc.mu.RUnlock()

	f, err := sc.Flows.Build(name, params)
	if err != nil {
		return nil, fmt.Errorf("service=%s: flow %q: %w", sc.ID, name, err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if existing, ok := sc.flowInstances[name]; ok {
		return existing, nil
	}
	sc.flowInstances[name] = f
	return f, nil
}

// RegisterMCPTools records the tool-call catalog an MCP server advertised,
// keyed by that server's name.
func (sc *ServiceContext) RegisterMCPTools(serverName string, tools []*toolcall.ToolCall) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.mcpToolCatalogs[serverName] = tools
}

// MCPTools returns the tool-call catalog previously recorded for serverName.
func (sc *ServiceContext) MCPTools(serverName string) []*toolcall.ToolCall {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.mcpToolCatalogs[serverName]
}

// RecordOpRetry increments the per-op retry counter.
func (sc *ServiceContext) RecordOpRetry(opName string) {
	if sc.metrics == nil {
		return
	}
	sc.metrics.opRetries.WithLabelValues(opName).Inc()
}

// RecordPoolSubmission increments the pool-submission counter.
func (sc *ServiceContext) RecordPoolSubmission() {
	if sc.metrics == nil {
		return
	}
	sc.metrics.poolTasksSubmitted.Inc()
}
