package svcctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowllm-go/flowllm/pkg/toolcall"
	"github.com/flowllm-go/flowllm/pkg/vectorstore"
)

func TestGetReturnsSameInstanceOnSecondCall(t *testing.T) {
	resetForTest()
	defer resetForTest()

	first := Get(Options{AppID: "test-app"})
	second := Get(Options{AppID: "different-app"})
	assert.Same(t, first, second)
	assert.Equal(t, "test-app", second.AppID)
}

func TestLanguageDefaultsToEnglish(t *testing.T) {
	resetForTest()
	defer resetForTest()

	sc := Get(Options{})
	assert.Equal(t, "en", sc.Language())
}

type storeStub struct{ name string }

func (s *storeStub) Name() string { return s.name }
func (s *storeStub) Upsert(ctx context.Context, collection string, docs []vectorstore.Document) error {
	return nil
}
func (s *storeStub) Search(ctx context.Context, collection string, vector []float32, topK int) ([]vectorstore.Match, error) {
	return nil, nil
}
func (s *storeStub) Delete(ctx context.Context, collection string, ids []string) error { return nil }

func TestVectorStoreInstantiatesOnceAndCaches(t *testing.T) {
	resetForTest()
	defer resetForTest()

	sc := Get(Options{})
	builds := 0
	require.NoError(t, sc.VectorStores.Register("memdb", "", func(params map[string]any) (vectorstore.Provider, error) {
		builds++
		return &storeStub{name: "memdb"}, nil
	}))

	v1, err := sc.VectorStore("memdb", nil)
	require.NoError(t, err)
	v2, err := sc.VectorStore("memdb", nil)
	require.NoError(t, err)

	assert.Same(t, v1, v2)
	assert.Equal(t, 1, builds)
}

func TestMCPToolsRoundTrip(t *testing.T) {
	resetForTest()
	defer resetForTest()

	sc := Get(Options{})
	tools := []*toolcall.ToolCall{toolcall.NewToolCall("search_op", "search", "search the web")}
	sc.RegisterMCPTools("filesystem", tools)

	got := sc.MCPTools("filesystem")
	require.Len(t, got, 1)
	assert.Equal(t, "search_op", got[0].Name)

	assert.Empty(t, sc.MCPTools("unknown"))
}
