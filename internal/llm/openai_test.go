package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeSSE 以OpenAI流式格式写入增量
func writeSSE(w http.ResponseWriter, deltas ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)
	for i, delta := range deltas {
		chunk := map[string]interface{}{
			"id":      "chatcmpl-1",
			"object":  "chat.completion.chunk",
			"created": 1700000000 + i,
			"model":   "gpt-4o-mini",
			"choices": []map[string]interface{}{
				{"index": 0, "delta": map[string]string{"content": delta}},
			},
		}
		data, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", data)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func newOpenAIChatServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestOpenAIClient(t *testing.T, baseURL string, opts ...Option) Client {
	opts = append([]Option{WithAPIKey("test-key"), WithBaseURL(baseURL + "/v1")}, opts...)
	client, err := NewOpenAIClient(opts...)
	require.NoError(t, err)
	return client
}

func TestOpenAIClientRequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIClient()
	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, ErrCodeInvalidAPIKey, genErr.Code)

	client, err := NewClient("openai", WithAPIKey("k"))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", client.Name())
}

func TestOpenAIChatStream(t *testing.T) {
	server := newOpenAIChatServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string    `json:"model"`
			Stream   bool      `json:"stream"`
			Messages []Message `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		assert.Len(t, req.Messages, 2)

		writeSSE(w, "Paris ", "", "is the capital.")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	client := newTestOpenAIClient(t, server.URL)
	stream, err := client.ChatStream(context.Background(), []Message{
		{Role: RoleSystem, Content: "sources"},
		{Role: RoleUser, Content: "capital of France?"},
	})
	require.NoError(t, err)
	defer stream.Close()

	var fragments []string
	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		fragments = append(fragments, fragment)
	}
	assert.Equal(t, []string{"Paris ", "is the capital."}, fragments)
}

func TestOpenAIChat(t *testing.T) {
	server := newOpenAIChatServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, "4")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	client := newTestOpenAIClient(t, server.URL)
	resp, err := client.Generate(context.Background(), "2+2?")
	require.NoError(t, err)
	assert.Equal(t, "4", resp.Text)
}

func TestOpenAIErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantCode int
	}{
		{"unauthorized", http.StatusUnauthorized, ErrCodeInvalidAPIKey},
		{"rate limited", http.StatusTooManyRequests, ErrCodeRateLimited},
		{"server error", http.StatusInternalServerError, ErrCodeServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := newOpenAIChatServer(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":{"message":"upstream failure","type":"api_error"}}`))
			})

			client := newTestOpenAIClient(t, server.URL)
			_, err := client.ChatStream(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})

			var genErr *GenerationError
			require.True(t, errors.As(err, &genErr), "unexpected error: %v", err)
			assert.Equal(t, tt.wantCode, genErr.Code)
			assert.EqualValues(t, 1, calls.Load())
		})
	}
}

func TestOpenAICloseReleasesConnection(t *testing.T) {
	disconnected := make(chan struct{})
	server := newOpenAIChatServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, "first")
		<-r.Context().Done()
		close(disconnected)
	})

	client := newTestOpenAIClient(t, server.URL)
	stream, err := client.ChatStream(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)

	fragment, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "first", fragment)
	stream.Close()

	select {
	case <-disconnected:
	case <-time.After(3 * time.Second):
		t.Fatal("server did not observe the client disconnect")
	}
}
