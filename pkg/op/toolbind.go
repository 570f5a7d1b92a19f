package op

import (
	"encoding/json"
	"fmt"

	"github.com/flowllm-go/flowllm/pkg/toolcall"
)

// BindToolInputs is the before_execute hook of the tool-call binding
// protocol: for each entry in the attached ToolCall's input schema, resolve
// the context key (rename + tool-index suffix), read the value, and fail
// when a required input is absent. Populates o.Input(name) for Execute. A
// no-op when the op has no attached ToolCall.
func BindToolInputs(o *BaseOp) error {
	tc := o.ToolCall()
	if tc == nil {
		return nil
	}
	fctx := o.Context()
	o.inputs = make(map[string]string, tc.InputSchema.Len())
	for _, name := range tc.InputSchema.Names() {
		attrs, _ := tc.InputSchema.Get(name)
		val := fctx.GetString(tc.ContextKey(name))
		if val == "" && attrs.Required {
			return fmt.Errorf("op=%s: %w: %s", o.Name(), ErrMissingInput, name)
		}
		o.inputs[name] = val
	}
	return nil
}

// BindToolOutputs is the after_execute hook, mirroring BindToolInputs: for
// each entry in the output schema that Execute populated via SetOutput/
// SetOutputs, resolve the context key and write it back. When SaveAnswer is
// set, mirrors the result(s) into context.response.answer: the single value
// directly if the schema declares one output, a JSON object keyed by output
// name otherwise.
func BindToolOutputs(o *BaseOp) error {
	tc := o.ToolCall()
	if tc == nil {
		return nil
	}
	fctx := o.Context()
	names := tc.OutputSchema.Names()
	for _, name := range names {
		v, ok := o.outputs[name]
		if !ok {
			continue
		}
		fctx.Set(tc.OutputContextKey(name), v)
	}
	if tc.SaveAnswer {
		fctx.Response().Answer = answerString(o.outputs, names)
	}
	return nil
}

// DefaultToolExecute is the default_execute fallback: once retries are
// exhausted, writes "{op.name} execution failed!" into every declared
// output slot so callers reading those slots don't see stale or zero
// values, and fails the response so callers checking response.success see
// the operation did not complete.
func DefaultToolExecute(o *BaseOp) error {
	tc := o.ToolCall()
	if tc == nil {
		return nil
	}
	fctx := o.Context()
	msg := fmt.Sprintf("%s execution failed!", o.Name())
	for _, name := range tc.OutputSchema.Names() {
		fctx.Set(tc.OutputContextKey(name), msg)
	}
	fctx.Response().Fail(fmt.Errorf("%s", msg))
	return nil
}

func answerString(outputs map[string]any, names []string) string {
	if len(names) == 1 {
		if v, ok := outputs[names[0]]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			return fmt.Sprint(v)
		}
		return ""
	}
	encoded, err := json.Marshal(outputs)
	if err != nil {
		return fmt.Sprint(outputs)
	}
	return string(encoded)
}

// NewTool builds a ToolCapable leaf op wired for the uniform tool-call
// binding protocol: BindToolInputs runs before body, BindToolOutputs after,
// and DefaultToolExecute on retry exhaustion. body reads bound inputs via
// o.Input(name) and records results via o.SetOutput/o.SetOutputs.
func NewTool(name string, tc *toolcall.ToolCall, body func(o *BaseOp) error, opts ...Option) *BaseOp {
	opts = append(opts, WithToolCall(tc))
	return New(name, Hooks{
		Before:  BindToolInputs,
		Execute: body,
		After:   BindToolOutputs,
		Default: DefaultToolExecute,
	}, opts...)
}
