// Package toolcall implements the declarative input/output typing attached to
// tool-capable operations and flows, and its serialisation to a
// provider-neutral function descriptor.
package toolcall

import (
	"sort"
	"strconv"
)

// ParamAttrs describes one parameter of a tool's input or output schema.
type ParamAttrs struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// ParamMap is an ordered mapping of parameter name -> ParamAttrs. Go maps
// have no order, so Names carries the declaration order explicitly; this
// keeps the textual form of a ToolCall reproducible.
type ParamMap struct {
	names map[string]struct{}
	order []string
	attrs map[string]ParamAttrs
}

// NewParamMap creates an empty ordered parameter map.
func NewParamMap() *ParamMap {
	return &ParamMap{
		names: make(map[string]struct{}),
		attrs: make(map[string]ParamAttrs),
	}
}

// Add appends a parameter, preserving insertion order. Re-adding an existing
// name overwrites its attrs in place without reordering.
func (m *ParamMap) Add(name string, attrs ParamAttrs) *ParamMap {
	if _, exists := m.names[name]; !exists {
		m.names[name] = struct{}{}
		m.order = append(m.order, name)
	}
	m.attrs[name] = attrs
	return m
}

// Get returns the attrs for name.
func (m *ParamMap) Get(name string) (ParamAttrs, bool) {
	a, ok := m.attrs[name]
	return a, ok
}

// Names returns parameter names in declaration order.
func (m *ParamMap) Names() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Len reports the number of parameters.
func (m *ParamMap) Len() int {
	return len(m.order)
}

// ToolCall is attached to tool-capable operations and flows.
type ToolCall struct {
	Name                string
	Index               int // >0 distinguishes multiple instances of the same tool
	Description         string
	InputSchema         *ParamMap
	OutputSchema        *ParamMap
	InputSchemaMapping  map[string]string // optional rename: param name -> context key
	OutputSchemaMapping map[string]string // optional rename: output name -> context key
	SaveAnswer          bool              // mirror the op's output(s) into response.answer
}

// NewToolCall builds a ToolCall with a default single-string output slot
// named "{shortName}_result".
func NewToolCall(name, shortName, description string) *ToolCall {
	out := NewParamMap()
	out.Add(shortName+"_result", ParamAttrs{Type: "string", Description: "result", Required: true})
	return &ToolCall{
		Name:         name,
		Description:  description,
		InputSchema:  NewParamMap(),
		OutputSchema: out,
	}
}

// WithSaveAnswer marks the ToolCall so its output binding mirrors the op's
// result(s) into context.response.answer after execution.
func (t *ToolCall) WithSaveAnswer() *ToolCall {
	t.SaveAnswer = true
	return t
}

// FunctionDescriptor is the provider-neutral `{type:"function",...}` dump
// used to expose a tool-capable op or flow to an LLM's function-calling API.
type FunctionDescriptor struct {
	Type     string           `json:"type"`
	Function FunctionSchemaV1 `json:"function"`
}

// FunctionSchemaV1 is the `function` object inside a FunctionDescriptor.
type FunctionSchemaV1 struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  ParametersJSON `json:"parameters"`
}

// ParametersJSON is the JSON-Schema-shaped `parameters` object.
type ParametersJSON struct {
	Type       string                    `json:"type"`
	Properties map[string]PropertyJSON   `json:"properties"`
	Required   []string                  `json:"required"`
}

// PropertyJSON is one entry of Properties.
type PropertyJSON struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// SimpleInputDump serialises the ToolCall's input schema to the
// provider-neutral function descriptor.
func (t *ToolCall) SimpleInputDump() FunctionDescriptor {
	props := make(map[string]PropertyJSON, t.InputSchema.Len())
	var required []string
	for _, name := range t.InputSchema.Names() {
		attrs, _ := t.InputSchema.Get(name)
		props[name] = PropertyJSON{Type: attrs.Type, Description: attrs.Description}
		if attrs.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)

	return FunctionDescriptor{
		Type: "function",
		Function: FunctionSchemaV1{
			Name:        t.Name,
			Description: t.Description,
			Parameters: ParametersJSON{
				Type:       "object",
				Properties: props,
				Required:   required,
			},
		},
	}
}

// ContextKey computes the context slot an input parameter binds to: apply
// the optional input rename, then suffix `.{index}` when Index>0.
func (t *ToolCall) ContextKey(paramName string) string {
	return t.suffixed(t.rename(t.InputSchemaMapping, paramName))
}

// OutputContextKey computes the context slot an output parameter binds to:
// apply the optional output rename, then suffix `.{index}` when Index>0.
func (t *ToolCall) OutputContextKey(outputName string) string {
	return t.suffixed(t.rename(t.OutputSchemaMapping, outputName))
}

func (t *ToolCall) rename(mapping map[string]string, name string) string {
	if mapping != nil {
		if renamed, ok := mapping[name]; ok {
			return renamed
		}
	}
	return name
}

func (t *ToolCall) suffixed(key string) string {
	if t.Index > 0 {
		return key + "." + strconv.Itoa(t.Index)
	}
	return key
}
