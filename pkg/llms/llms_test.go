package llms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowllm-go/flowllm/pkg/flowctx"
)

func TestOpenAIProviderChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		json.NewEncoder(w).Encode(openAIChatResponse{
			Choices: []openAIChoice{{Message: openAIChatMessage{Role: "assistant", Content: "hello"}}},
			Usage:   Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", srv.URL, "test-key", "gpt-test")
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []flowctx.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, 5, resp.Usage.TotalTokens)
}

func TestOpenAIProviderChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunk1, _ := json.Marshal(openAIChatResponse{Choices: []openAIChoice{{Delta: openAIChatMessage{Content: "He"}}}})
		chunk2, _ := json.Marshal(openAIChatResponse{Choices: []openAIChoice{{Delta: openAIChatMessage{Content: "llo"}}}})
		w.Write([]byte("data: " + string(chunk1) + "\n\n"))
		w.Write([]byte("data: " + string(chunk2) + "\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", srv.URL, "test-key", "gpt-test")
	var deltas []string
	resp, err := p.ChatStream(context.Background(), ChatRequest{
		Messages: []flowctx.Message{{Role: "user", Content: "hi"}},
	}, func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"He", "llo"}, deltas)
	assert.Equal(t, "Hello", resp.Content)
}

func TestAnthropicProviderChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		json.NewEncoder(w).Encode(anthropicResponse{
			Content: []anthropicContentBlock{{Type: "text", Text: "hi there"}},
			Usage:   anthropicUsage{InputTokens: 4, OutputTokens: 6},
		})
	}))
	defer srv.Close()

	p := NewAnthropicProvider("anthropic", srv.URL, "test-key", "claude-test")
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []flowctx.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Content)
	assert.Equal(t, 10, resp.Usage.TotalTokens)
}
