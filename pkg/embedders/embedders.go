// Package embedders implements the EMBEDDING_MODEL registry kind: providers
// that turn text into vectors for pkg/vectorstore-backed ops. Grounded on
// the same httpclient retry/backoff machinery pkg/llms uses.
package embedders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/flowllm-go/flowllm/pkg/httpclient"
)

// Provider is the EMBEDDING_MODEL registry kind's contract.
type Provider interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// OpenAIProvider talks to any OpenAI-embeddings-compatible endpoint.
type OpenAIProvider struct {
	name       string
	baseURL    string
	apiKey     string
	model      string
	dimension  int
	httpClient *httpclient.Client
}

// NewOpenAIProvider constructs an OpenAI-compatible embedding provider.
// dimension is the declared output size (1536 for text-embedding-3-small,
// etc.) since the wire response does not self-describe it.
func NewOpenAIProvider(name, baseURL, apiKey, model string, dimension int) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		name:      name,
		baseURL:   baseURL,
		apiKey:    apiKey,
		model:     model,
		dimension: dimension,
		httpClient: httpclient.New(
			httpclient.WithRetryStrategy(httpclient.DefaultStrategy),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
		),
	}
}

func (p *OpenAIProvider) Name() string   { return p.name }
func (p *OpenAIProvider) Dimension() int { return p.dimension }

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedding struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type openAIEmbedResponse struct {
	Data []openAIEmbedding `json:"data"`
}

func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(openAIEmbedRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("embedder=%s: encode request: %w", p.name, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embedder=%s: embed: %w", p.name, err)
	}
	defer resp.Body.Close()

	var out openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("embedder=%s: decode response: %w", p.name, err)
	}
	vectors := make([][]float32, len(out.Data))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			continue
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// OllamaProvider talks to a local Ollama embeddings endpoint, one text at a
// time (Ollama's /api/embeddings does not batch).
type OllamaProvider struct {
	name       string
	baseURL    string
	model      string
	dimension  int
	httpClient *httpclient.Client
}

func NewOllamaProvider(name, baseURL, model string, dimension int) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		name:       name,
		baseURL:    baseURL,
		model:      model,
		dimension:  dimension,
		httpClient: httpclient.New(httpclient.WithRetryStrategy(httpclient.DefaultStrategy)),
	}
}

func (p *OllamaProvider) Name() string   { return p.name }
func (p *OllamaProvider) Dimension() int { return p.dimension }

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (p *OllamaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		body, err := json.Marshal(ollamaEmbedRequest{Model: p.model, Prompt: text})
		if err != nil {
			return nil, fmt.Errorf("embedder=%s: encode request: %w", p.name, err)
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embeddings", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := p.httpClient.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("embedder=%s: embed[%d]: %w", p.name, i, err)
		}
		var out ollamaEmbedResponse
		err = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("embedder=%s: decode response[%d]: %w", p.name, i, err)
		}
		vectors[i] = out.Embedding
	}
	return vectors, nil
}
