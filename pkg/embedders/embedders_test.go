package embedders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIProviderEmbedPreservesOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := openAIEmbedResponse{}
		for i := range req.Input {
			resp.Data = append(resp.Data, openAIEmbedding{Embedding: []float32{float32(i)}, Index: len(req.Input) - 1 - i})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai-embed", srv.URL, "key", "text-embedding-3-small", 1)
	vecs, err := p.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{2}, vecs[0])
	assert.Equal(t, []float32{0}, vecs[2])
}

func TestOllamaProviderEmbedsEachTextSeparately(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{1, 2, 3}})
	}))
	defer srv.Close()

	p := NewOllamaProvider("ollama-embed", srv.URL, "nomic-embed-text", 3)
	vecs, err := p.Embed(context.Background(), []string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, vecs, 2)
	assert.Equal(t, 3, p.Dimension())
}
