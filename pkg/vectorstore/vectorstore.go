// Package vectorstore implements the VECTOR_STORE registry kind: providers
// backing similarity search for retrieval ops. Concrete backends wrap real
// vector-database SDKs (qdrant/go-client, pinecone-io/go-pinecone) rather
// than reimplementing ANN search — the core engine never knows their
// internals.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pinecone-io/go-pinecone/pinecone"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/protobuf/types/known/structpb"
)

// Document is one unit stored/retrieved from a vector store.
type Document struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
	Text     string
}

// Match is a Document scored against a query vector.
type Match struct {
	Document
	Score float32
}

// Provider is the VECTOR_STORE registry kind's contract.
type Provider interface {
	Name() string
	Upsert(ctx context.Context, collection string, docs []Document) error
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Match, error)
	Delete(ctx context.Context, collection string, ids []string) error
}

// QdrantProvider wraps a qdrant/go-client gRPC connection.
type QdrantProvider struct {
	name   string
	client *qdrant.Client
}

// NewQdrantProvider dials a Qdrant instance at host:port.
func NewQdrantProvider(name, host string, port int, useTLS bool, apiKey string) (*QdrantProvider, error) {
	cfg := &qdrant.Config{Host: host, Port: port, UseTLS: useTLS}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vectorstore=%s: dial qdrant: %w", name, err)
	}
	return &QdrantProvider{name: name, client: client}, nil
}

func (p *QdrantProvider) Name() string { return p.name }

func (p *QdrantProvider) Upsert(ctx context.Context, collection string, docs []Document) error {
	points := make([]*qdrant.PointStruct, len(docs))
	for i, d := range docs {
		payload := make(map[string]any, len(d.Metadata)+1)
		for k, v := range d.Metadata {
			payload[k] = v
		}
		if d.Text != "" {
			payload["text"] = d.Text
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(d.ID),
			Vectors: qdrant.NewVectors(d.Vector...),
			Payload: qdrant.NewValueMap(payload),
		}
	}
	_, err := p.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("vectorstore=%s: upsert: %w", p.name, err)
	}
	return nil
}

func (p *QdrantProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Match, error) {
	limit := uint64(topK)
	withPayload := true
	results, err := p.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: withPayload}},
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore=%s: search: %w", p.name, err)
	}
	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{
			Document: Document{ID: pointIDString(r.Id), Metadata: payloadToMap(r.Payload)},
			Score:    r.Score,
		}
	}
	return matches, nil
}

func (p *QdrantProvider) Delete(ctx context.Context, collection string, ids []string) error {
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(id)
	}
	_, err := p.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("vectorstore=%s: delete: %w", p.name, err)
	}
	return nil
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuidStr := id.GetUuid(); uuidStr != "" {
		return uuidStr
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func payloadToMap(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v.AsInterface()
	}
	return out
}

// PineconeProvider wraps a pinecone-io/go-pinecone index connection.
type PineconeProvider struct {
	name string
	conn *pinecone.IndexConnection
}

// NewPineconeProvider connects to a Pinecone index by host.
func NewPineconeProvider(ctx context.Context, name, apiKey, indexHost string) (*PineconeProvider, error) {
	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("vectorstore=%s: new pinecone client: %w", name, err)
	}
	conn, err := client.Index(pinecone.NewIndexConnParams{Host: indexHost})
	if err != nil {
		return nil, fmt.Errorf("vectorstore=%s: connect index: %w", name, err)
	}
	return &PineconeProvider{name: name, conn: conn}, nil
}

func (p *PineconeProvider) Name() string { return p.name }

func structFromMap(m map[string]any) (*structpb.Struct, error) {
	return structpb.NewStruct(m)
}

func (p *PineconeProvider) Upsert(ctx context.Context, collection string, docs []Document) error {
	vectors := make([]*pinecone.Vector, len(docs))
	for i, d := range docs {
		id := d.ID
		if id == "" {
			id = uuid.NewString()
		}
		metadata := make(map[string]any, len(d.Metadata)+1)
		for k, v := range d.Metadata {
			metadata[k] = v
		}
		if d.Text != "" {
			metadata["text"] = d.Text
		}
		meta, err := structFromMap(metadata)
		if err != nil {
			return fmt.Errorf("vectorstore=%s: encode metadata: %w", p.name, err)
		}
		vectors[i] = &pinecone.Vector{Id: id, Values: &d.Vector, Metadata: meta}
	}
	_, err := p.conn.UpsertVectors(ctx, vectors)
	if err != nil {
		return fmt.Errorf("vectorstore=%s: upsert: %w", p.name, err)
	}
	return nil
}

func (p *PineconeProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Match, error) {
	resp, err := p.conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeValues:   false,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore=%s: search: %w", p.name, err)
	}
	matches := make([]Match, len(resp.Matches))
	for i, m := range resp.Matches {
		var metadata map[string]any
		if m.Vector != nil && m.Vector.Metadata != nil {
			metadata = m.Vector.Metadata.AsMap()
		}
		matches[i] = Match{
			Document: Document{ID: m.Vector.Id, Metadata: metadata},
			Score:    m.Score,
		}
	}
	return matches, nil
}

func (p *PineconeProvider) Delete(ctx context.Context, collection string, ids []string) error {
	if err := p.conn.DeleteVectorsById(ctx, ids); err != nil {
		return fmt.Errorf("vectorstore=%s: delete: %w", p.name, err)
	}
	return nil
}
