// Package bootstrap turns a loaded config.Config into a populated
// ServiceContext: every llms/embedders/vector_stores entry becomes a
// registered provider constructor, every ops entry a registered op
// constructor, and every flows entry a registered flow compiled from its DSL
// content through pkg/exprparser. Each registration loop below logs one line
// per success or failure and continues past a single bad entry rather than
// aborting the whole process.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/flowllm-go/flowllm/pkg/config"
	"github.com/flowllm-go/flowllm/pkg/embedders"
	"github.com/flowllm-go/flowllm/pkg/exprparser"
	"github.com/flowllm-go/flowllm/pkg/flow"
	"github.com/flowllm-go/flowllm/pkg/gallery"
	"github.com/flowllm-go/flowllm/pkg/llms"
	"github.com/flowllm-go/flowllm/pkg/op"
	"github.com/flowllm-go/flowllm/pkg/svcctx"
	"github.com/flowllm-go/flowllm/pkg/toolcall"
	"github.com/flowllm-go/flowllm/pkg/vectorstore"
)

// Run populates sc's registries from cfg. Entries a caller registered before
// Run under a name that cfg also defines are replaced (registry.Register
// overwrites by name, so callers wanting a built-in overridden should
// register after Run instead).
func Run(sc *svcctx.ServiceContext, cfg *config.Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	for name, pc := range cfg.LLMs {
		if err := registerLLM(sc, name, pc); err != nil {
			logger.Warn("skipping llm", "name", name, "error", err)
			continue
		}
		logger.Info("registered llm", "name", name, "backend", pc.Backend)
	}

	for name, pc := range cfg.Embedders {
		if err := registerEmbedder(sc, name, pc); err != nil {
			logger.Warn("skipping embedder", "name", name, "error", err)
			continue
		}
		logger.Info("registered embedder", "name", name, "backend", pc.Backend)
	}

	for name, pc := range cfg.VectorStores {
		if err := registerVectorStore(sc, name, pc); err != nil {
			logger.Warn("skipping vector store", "name", name, "error", err)
			continue
		}
		logger.Info("registered vector store", "name", name, "backend", pc.Backend)
	}

	for name, oc := range cfg.Ops {
		if err := registerOp(sc, name, oc); err != nil {
			logger.Warn("skipping op", "name", name, "error", err)
			continue
		}
		logger.Info("registered op", "name", name, "backend", oc.Backend)
	}

	for name, fc := range cfg.Flows {
		if err := registerFlow(sc, cfg, name, fc); err != nil {
			logger.Warn("skipping flow", "name", name, "error", err)
			continue
		}
		logger.Info("registered flow", "name", name)
	}

	return nil
}

// registerLLM wires the one built-in backend this module ships
// (OpenAI-compatible) keyed by the config's `backend` field; any other
// backend name is a configuration error rather than a silent no-op.
func registerLLM(sc *svcctx.ServiceContext, name string, pc config.ProviderConfig) error {
	switch pc.Backend {
	case "", "openai":
		return sc.LLMs.Register(name, "", func(params map[string]any) (llms.Provider, error) {
			merged := mergeParams(pc.Params, params)
			return llms.NewOpenAIProvider(
				name,
				stringParam(merged, "base_url", "https://api.openai.com/v1"),
				stringParam(merged, "api_key", ""),
				stringParam(merged, "model", "gpt-4o-mini"),
			), nil
		})
	default:
		return fmt.Errorf("unknown llm backend %q", pc.Backend)
	}
}

func registerEmbedder(sc *svcctx.ServiceContext, name string, pc config.ProviderConfig) error {
	switch pc.Backend {
	case "", "openai":
		return sc.Embedders.Register(name, "", func(params map[string]any) (embedders.Provider, error) {
			merged := mergeParams(pc.Params, params)
			return embedders.NewOpenAIProvider(
				name,
				stringParam(merged, "base_url", ""),
				stringParam(merged, "api_key", ""),
				stringParam(merged, "model", "text-embedding-3-small"),
				intParam(merged, "dimension", 1536),
			), nil
		})
	case "ollama":
		return sc.Embedders.Register(name, "", func(params map[string]any) (embedders.Provider, error) {
			merged := mergeParams(pc.Params, params)
			return embedders.NewOllamaProvider(
				name,
				stringParam(merged, "base_url", ""),
				stringParam(merged, "model", "nomic-embed-text"),
				intParam(merged, "dimension", 768),
			), nil
		})
	default:
		return fmt.Errorf("unknown embedder backend %q", pc.Backend)
	}
}

func registerVectorStore(sc *svcctx.ServiceContext, name string, pc config.ProviderConfig) error {
	switch pc.Backend {
	case "qdrant":
		return sc.VectorStores.Register(name, "", func(params map[string]any) (vectorstore.Provider, error) {
			merged := mergeParams(pc.Params, params)
			return vectorstore.NewQdrantProvider(
				name,
				stringParam(merged, "host", "localhost"),
				intParam(merged, "port", 6334),
				boolParam(merged, "use_tls", false),
				stringParam(merged, "api_key", ""),
			)
		})
	case "pinecone":
		return fmt.Errorf("pinecone vector store requires a context.Context at construction and cannot be built from a zero-arg registry constructor; register it directly via sc.VectorStores before calling bootstrap.Run")
	default:
		return fmt.Errorf("unknown vector store backend %q", pc.Backend)
	}
}

// registerOp wires the built-in op backends this module ships : "mock" for
// testable fixtures, "llm" for an LLM-calling leaf, "echo" for a tool-capable
// echo leaf. Any OpConfig knob that maps to an op.Option is applied uniformly
// regardless of backend.
func registerOp(sc *svcctx.ServiceContext, name string, oc config.OpConfig) error {
	opts := optionsFor(oc)
	switch oc.Backend {
	case "", "mock":
		return sc.Ops.Register(name, "", func(params map[string]any) (op.Op, error) {
			return gallery.NewMockOp(name, opts...), nil
		})
	case "llm":
		return sc.Ops.Register(name, "", func(params map[string]any) (op.Op, error) {
			return gallery.NewLLMOp(name, opts...), nil
		})
	case "echo":
		return sc.Ops.Register(name, "", func(params map[string]any) (op.Op, error) {
			return gallery.NewEchoOp(0, opts...), nil
		})
	default:
		return fmt.Errorf("unknown op backend %q", oc.Backend)
	}
}

// optionsFor translates an OpConfig's declarative knobs into op.Options.
func optionsFor(oc config.OpConfig) []op.Option {
	var opts []op.Option
	if oc.MaxRetries > 0 {
		opts = append(opts, op.WithMaxRetries(oc.MaxRetries))
	}
	if oc.RaiseException != nil {
		opts = append(opts, op.WithRaiseException(*oc.RaiseException))
	}
	if oc.Language != "" {
		opts = append(opts, op.WithLanguage(oc.Language))
	}
	if oc.PromptFile != "" {
		opts = append(opts, op.WithPromptFile(oc.PromptFile))
	}
	if oc.LLM != "" {
		opts = append(opts, op.WithLLMKey(oc.LLM))
	}
	if oc.EmbeddingModel != "" {
		opts = append(opts, op.WithEmbeddingModelKey(oc.EmbeddingModel))
	}
	if oc.VectorStore != "" {
		opts = append(opts, op.WithVectorStoreKey(oc.VectorStore))
	}
	if len(oc.Params) > 0 {
		opts = append(opts, op.WithParams(oc.Params))
	}
	return opts
}

// registerFlow compiles fc's DSL content into a root op tree via
// exprparser.Parse, resolving bare identifiers against cfg.Ops first and
// falling back to sc.Ops for ops registered outside the static config
// (e.g. by a caller embedding this module as a library).
func registerFlow(sc *svcctx.ServiceContext, cfg *config.Config, name string, fc config.FlowConfig) error {
	resolve := func(ident string) (op.Op, bool, error) {
		if _, ok := cfg.Ops[ident]; ok {
			o, err := sc.Ops.Build(ident, nil)
			if err != nil {
				return nil, false, err
			}
			return o, true, nil
		}
		if o, err := sc.Ops.Build(ident, nil); err == nil {
			return o, true, nil
		}
		return nil, false, nil
	}

	var tc *toolcall.ToolCall
	if fc.Description != "" {
		tc = toolcall.NewToolCall(name, name, fc.Description)
	}

	return sc.Flows.Register(name, "", func(params map[string]any) (*flow.Flow, error) {
		opts := []flow.Option{flow.WithPool(sc.Pool())}
		if fc.Description != "" {
			opts = append(opts, flow.WithDescription(fc.Description))
		}
		if tc != nil {
			opts = append(opts, flow.WithToolCall(tc))
		}
		return flow.New(name, func() (op.Op, error) {
			return exprparser.Parse(fc.Content, resolve)
		}, opts...), nil
	})
}

func mergeParams(configParams, callParams map[string]any) map[string]any {
	merged := make(map[string]any, len(configParams)+len(callParams))
	for k, v := range configParams {
		merged[k] = v
	}
	for k, v := range callParams {
		merged[k] = v
	}
	return merged
}

func stringParam(params map[string]any, key, def string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return def
}

func intParam(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

func boolParam(params map[string]any, key string, def bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return def
}
