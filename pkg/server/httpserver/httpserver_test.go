package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowllm-go/flowllm/pkg/flow"
	"github.com/flowllm-go/flowllm/pkg/flowctx"
	"github.com/flowllm-go/flowllm/pkg/gallery"
	"github.com/flowllm-go/flowllm/pkg/op"
	"github.com/flowllm-go/flowllm/pkg/svcctx"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	sc := svcctx.Get(svcctx.Options{})

	require.NoError(t, sc.Flows.Register("echo", "", func(params map[string]any) (*flow.Flow, error) {
		return flow.New("echo", func() (op.Op, error) {
			return gallery.NewEchoOp(0), nil
		}, flow.WithPool(sc.Pool())), nil
	}))

	require.NoError(t, sc.Flows.Register("streamer", "", func(params map[string]any) (*flow.Flow, error) {
		return flow.New("streamer", func() (op.Op, error) {
			return op.NewAsync("streamer", op.AsyncHooks{
				Execute: func(ctx op.AsyncContext, o *op.BaseOp) error {
					q := o.Context().StreamQueue()
					q.Push(flowctx.StreamChunk{ChunkType: flowctx.ChunkAnswer, Chunk: "hi"})
					return nil
				},
			}), nil
		}, flow.WithPool(sc.Pool())), nil
	}))

	return New(sc)
}

func TestHandleHealth(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestHandleFlowNonStreaming(t *testing.T) {
	s := testServer(t)
	body, _ := json.Marshal(map[string]any{"message": "hello"})
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp flowctx.FlowResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "hello", resp.Answer)
}

func TestHandleFlowUnknownReturns404(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/does-not-exist", bytes.NewReader(nil))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleFlowStreamingEndsWithDoneSentinel(t *testing.T) {
	s := testServer(t)
	body, _ := json.Marshal(map[string]any{"stream": true})
	req := httptest.NewRequest(http.MethodPost, "/streamer", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"chunk":"hi"`)
	assert.Contains(t, w.Body.String(), "data:[DONE]\n\n")
}
