package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is an in-memory Provider used to exercise the contract
// without a live Qdrant/Pinecone instance (those SDKs talk gRPC/HTTPS to an
// external service and are exercised via the concrete providers instead).
type fakeProvider struct {
	name string
	docs map[string]Document
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{name: name, docs: make(map[string]Document)}
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Upsert(ctx context.Context, collection string, docs []Document) error {
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return nil
}

func (f *fakeProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Match, error) {
	var out []Match
	for _, d := range f.docs {
		out = append(out, Match{Document: d, Score: 1})
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

func (f *fakeProvider) Delete(ctx context.Context, collection string, ids []string) error {
	for _, id := range ids {
		delete(f.docs, id)
	}
	return nil
}

func TestFakeProviderSatisfiesProvider(t *testing.T) {
	var _ Provider = newFakeProvider("fake")
}

func TestUpsertSearchDeleteRoundTrip(t *testing.T) {
	p := newFakeProvider("fake")
	ctx := context.Background()

	require.NoError(t, p.Upsert(ctx, "docs", []Document{
		{ID: "a", Vector: []float32{1, 0}, Metadata: map[string]any{"k": "v"}},
	}))

	results, err := p.Search(ctx, "docs", []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "v", results[0].Metadata["k"])

	require.NoError(t, p.Delete(ctx, "docs", []string{"a"}))
	results, err = p.Search(ctx, "docs", []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
