// Package gallery holds a small set of ready-to-register concrete ops: a
// mock op for exercising sequential/parallel/mixed composition in tests,
// an LLM-calling op, and a tool-capable echo op for exercising the
// tool-call binding protocol end to end.
package gallery

import (
	"context"
	"fmt"

	"github.com/flowllm-go/flowllm/pkg/flowctx"
	"github.com/flowllm-go/flowllm/pkg/llms"
	"github.com/flowllm-go/flowllm/pkg/op"
	"github.com/flowllm-go/flowllm/pkg/svcctx"
	"github.com/flowllm-go/flowllm/pkg/toolcall"
)

// NewMockOp returns a leaf op that writes its own name to
// context.response.answer and to a per-op result slot, for composing
// sequential/parallel/mixed test fixtures.
func NewMockOp(name string, opts ...op.Option) *op.BaseOp {
	return op.New(name, op.Hooks{
		Execute: func(o *op.BaseOp) error {
			fctx := o.Context()
			fctx.Response().Answer = o.Name()
			fctx.Set(o.Name()+"_result", o.Name())
			return nil
		},
	}, opts...)
}

// NewLLMOp returns a leaf op that resolves the late-bound `llm` resource
// (o.LLMKey(), defaulting to "default") from the process ServiceContext,
// sends the context's accumulated messages plus a `prompt` input, and
// writes the answer back to context.response.answer.
func NewLLMOp(name string, opts ...op.Option) *op.BaseOp {
	return op.New(name, op.Hooks{
		Execute: func(o *op.BaseOp) error {
			fctx := o.Context()
			key := o.LLMKey()
			if key == "" {
				key = "default"
			}

			sc := svcctx.Get(svcctx.Options{})
			provider, err := sc.LLMs.Build(key, o.Params())
			if err != nil {
				return fmt.Errorf("llm_op=%s: resolve llm %q: %w", o.Name(), key, err)
			}

			messages, _ := fctx.Get(flowctx.KeyMessages)
			msgs, _ := messages.([]flowctx.Message)
			if prompt := fctx.GetString("prompt"); prompt != "" {
				msgs = append(msgs, flowctx.Message{Role: "user", Content: prompt})
			}
			if len(msgs) == 0 {
				return op.ErrMissingInput
			}

			resp, err := provider.Chat(context.Background(), llms.ChatRequest{Messages: msgs})
			if err != nil {
				return fmt.Errorf("llm_op=%s: %w", o.Name(), err)
			}

			fctx.Response().Answer = resp.Content
			fctx.Response().Messages = append(fctx.Response().Messages, flowctx.Message{Role: "assistant", Content: resp.Content})
			fctx.Set(o.Name()+"_result", resp.Content)
			return nil
		},
		Default: func(o *op.BaseOp) error {
			o.Context().Response().Fail(op.ErrMissingInput)
			return nil
		},
	}, opts...)
}

// EchoTool returns a ToolCall descriptor declaring a single required
// "message" input and the default string output slot, for exercising the
// tool-call binding protocol end to end.
func EchoTool(index int) *toolcall.ToolCall {
	tc := toolcall.NewToolCall("echo_op", "echo", "echoes its message input back")
	tc.InputSchema.Add("message", toolcall.ParamAttrs{Type: "string", Description: "text to echo", Required: true})
	tc.Index = index
	return tc.WithSaveAnswer()
}

// NewEchoOp returns a ToolCapable leaf op built on the shared binding
// helper: op.NewTool resolves the "message" input (and its `.{index}`
// suffix) before Execute runs and writes the result back through
// "echo_result" after, with no hand-rolled key suffixing here.
func NewEchoOp(index int, opts ...op.Option) *op.BaseOp {
	tc := EchoTool(index)
	outputName := tc.OutputSchema.Names()[0]

	return op.NewTool("echo_op", tc, func(o *op.BaseOp) error {
		msg := o.Input("message")
		if msg == "" {
			return op.ErrMissingInput
		}
		o.SetOutput(outputName, msg)
		return nil
	}, opts...)
}
