package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVector 根据文本生成确定性的向量
func fakeVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vec := make([]float32, dim)
	for i := range vec {
		seed = seed*1664525 + 1013904223
		vec[i] = float32(seed%1000) / 1000
	}
	return vec
}

// newOllamaServer 模拟Ollama /api/embed 接口
func newOllamaServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func embedHandler(dim int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}

		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		resp := ollamaEmbedResponse{Model: req.Model}
		for _, text := range req.Input {
			resp.Embeddings = append(resp.Embeddings, fakeVector(text, dim))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func newTestOllamaClient(t *testing.T, baseURL string, opts ...Option) *OllamaClient {
	opts = append([]Option{WithBaseURL(baseURL)}, opts...)
	client, err := NewOllamaClient(opts...)
	require.NoError(t, err)

	c := client.(*OllamaClient)
	c.caller.backoff = time.Millisecond
	return c
}

func TestOllamaClientDefaults(t *testing.T) {
	client, err := NewOllamaClient()
	require.NoError(t, err)

	c := client.(*OllamaClient)
	assert.Equal(t, "all-minilm:l6-v2", c.Name())
	assert.Equal(t, "http://localhost:11434/api/embed", c.endpoint)
	assert.Equal(t, 1, c.caller.maxRetries)
}

func TestOllamaEmbedBatch(t *testing.T) {
	server, calls := newOllamaServer(t, embedHandler(8))
	client := newTestOllamaClient(t, server.URL+"/", WithModel("nomic-embed-text"))

	texts := []string{"first", "second", "third"}
	vectors, err := client.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i, text := range texts {
		assert.Equal(t, fakeVector(text, 8), vectors[i])
	}
	assert.Equal(t, int32(1), calls.Load())

	empty, err := client.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOllamaEmbedDeterministic(t *testing.T) {
	server, _ := newOllamaServer(t, embedHandler(16))
	client := newTestOllamaClient(t, server.URL)

	first, err := client.Embed(context.Background(), "same text")
	require.NoError(t, err)
	second, err := client.Embed(context.Background(), "same text")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestOllamaEmbedEmptyInput(t *testing.T) {
	server, calls := newOllamaServer(t, embedHandler(4))
	client := newTestOllamaClient(t, server.URL)

	_, err := client.EmbedBatch(context.Background(), []string{"ok", "  "})

	var embErr *EmbeddingError
	require.True(t, errors.As(err, &embErr))
	assert.Equal(t, ErrCodeEmptyInput, embErr.Code)
	assert.Equal(t, int32(0), calls.Load())
}

func TestOllamaEmbedTimeoutRetriesOnce(t *testing.T) {
	server, calls := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	client := newTestOllamaClient(t, server.URL, WithTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := client.Embed(context.Background(), "slow")
	require.Error(t, err)

	assert.True(t, IsTimeout(err))
	assert.True(t, IsUnavailable(err))
	assert.Equal(t, int32(2), calls.Load())
	assert.Less(t, time.Since(start), time.Second)
}

func TestOllamaEmbedServerErrorRetriesOnce(t *testing.T) {
	server, calls := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"llama runner process has terminated"}`))
	})
	client := newTestOllamaClient(t, server.URL, WithMaxRetries(5))

	_, err := client.Embed(context.Background(), "text")

	var embErr *EmbeddingError
	require.True(t, errors.As(err, &embErr))
	assert.Equal(t, ErrCodeServerError, embErr.Code)
	assert.Contains(t, embErr.Message, "llama runner process has terminated")
	// 重试次数被限制为1
	assert.Equal(t, int32(2), calls.Load())
}

func TestOllamaEmbedRecoversAfterRetry(t *testing.T) {
	ok := embedHandler(4)
	var failed atomic.Bool
	server, calls := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		if failed.CompareAndSwap(false, true) {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		ok(w, r)
	})
	client := newTestOllamaClient(t, server.URL)

	vec, err := client.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, fakeVector("text", 4), vec)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOllamaEmbedModelNotFound(t *testing.T) {
	server, calls := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model \"missing\" not found, try pulling it first"}`))
	})
	client := newTestOllamaClient(t, server.URL, WithModel("missing"))

	_, err := client.Embed(context.Background(), "text")

	var embErr *EmbeddingError
	require.True(t, errors.As(err, &embErr))
	assert.Equal(t, ErrCodeModelNotFound, embErr.Code)
	assert.True(t, IsUnavailable(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestOllamaEmbedUnreachable(t *testing.T) {
	server, _ := newOllamaServer(t, embedHandler(4))
	client := newTestOllamaClient(t, server.URL)
	server.Close()

	_, err := client.Embed(context.Background(), "text")

	var embErr *EmbeddingError
	require.True(t, errors.As(err, &embErr))
	assert.Equal(t, ErrCodeNetworkError, embErr.Code)
}

func TestOllamaEmbedDimensionMismatch(t *testing.T) {
	server, _ := newOllamaServer(t, embedHandler(4))
	client := newTestOllamaClient(t, server.URL, WithDimensions(384))

	_, err := client.Embed(context.Background(), "text")

	var embErr *EmbeddingError
	require.True(t, errors.As(err, &embErr))
	assert.Equal(t, ErrCodeBadResponse, embErr.Code)
}

func TestOllamaEmbedCanceled(t *testing.T) {
	server, calls := newOllamaServer(t, embedHandler(4))
	client := newTestOllamaClient(t, server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Embed(ctx, "text")

	var embErr *EmbeddingError
	require.True(t, errors.As(err, &embErr))
	assert.Equal(t, ErrCodeCanceled, embErr.Code)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), calls.Load())
}

func TestOllamaEmbedRateLimit(t *testing.T) {
	server, calls := newOllamaServer(t, embedHandler(4))
	client := newTestOllamaClient(t, server.URL, WithRateLimit(20))

	start := time.Now()
	for i := 0; i < 25; i++ {
		_, err := client.Embed(context.Background(), "text")
		require.NoError(t, err)
	}

	// 前20次使用突发额度，之后每50ms一次
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	assert.Equal(t, int32(25), calls.Load())
}
