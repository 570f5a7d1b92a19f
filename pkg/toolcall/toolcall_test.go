package toolcall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewToolCallDefaultOutputSlot(t *testing.T) {
	tc := NewToolCall("search", "search", "search the web")
	require.Equal(t, 1, tc.OutputSchema.Len())
	assert.Equal(t, []string{"search_result"}, tc.OutputSchema.Names())
}

func TestSimpleInputDumpShape(t *testing.T) {
	tc := NewToolCall("search", "search", "search the web")
	tc.InputSchema.Add("query", ParamAttrs{Type: "string", Description: "query text", Required: true})
	tc.InputSchema.Add("limit", ParamAttrs{Type: "integer", Description: "max results", Required: false})

	dump := tc.SimpleInputDump()
	assert.Equal(t, "function", dump.Type)
	assert.Equal(t, "search", dump.Function.Name)
	assert.Equal(t, "object", dump.Function.Parameters.Type)
	assert.Equal(t, []string{"query"}, dump.Function.Parameters.Required)
	assert.Contains(t, dump.Function.Parameters.Properties, "query")
	assert.Contains(t, dump.Function.Parameters.Properties, "limit")
}

func TestContextKeyAppliesRenameAndToolIndexSuffix(t *testing.T) {
	tc := NewToolCall("search", "search", "")
	tc.InputSchemaMapping = map[string]string{"query": "search_query"}

	assert.Equal(t, "search_query", tc.ContextKey("query"))

	tc.Index = 2
	assert.Equal(t, "search_query.2", tc.ContextKey("query"))
}

func TestContextKeyIndexZeroHasNoSuffix(t *testing.T) {
	tc := NewToolCall("search", "search", "")
	tc.Index = 0
	assert.Equal(t, "query", tc.ContextKey("query"))
}
