package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/transcript-qa/config"
	"github.com/fyerfyer/transcript-qa/internal/document"
	"github.com/fyerfyer/transcript-qa/internal/services"
)

// fakeOllama 同时提供 /api/embed 和 /api/chat 的测试服务
type fakeOllama struct {
	*httptest.Server
	embedCalls atomic.Int32
	chatCalls  atomic.Int32
	lastPrompt atomic.Value
}

func newFakeOllama(t *testing.T, answer ...string) *fakeOllama {
	t.Helper()
	f := &fakeOllama{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		f.embedCalls.Add(1)
		var req struct {
			Input []string `json:"input"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		vectors := make([][]float32, len(req.Input))
		for i, text := range req.Input {
			vectors[i] = wordVector(text)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"model": "fake", "embeddings": vectors})
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		f.chatCalls.Add(1)
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if len(req.Messages) > 0 {
			f.lastPrompt.Store(req.Messages[0].Content)
		}
		enc := json.NewEncoder(w)
		for _, part := range answer {
			_ = enc.Encode(map[string]any{"model": "fake", "message": map[string]string{"role": "assistant", "content": part}})
		}
		_ = enc.Encode(map[string]any{"model": "fake", "message": map[string]string{"role": "assistant"}, "done": true})
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeOllama) systemPrompt() string {
	v, _ := f.lastPrompt.Load().(string)
	return v
}

// wordVector 按单词首字母统计的确定性向量
func wordVector(text string) []float32 {
	vec := make([]float32, 27)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		c := word[0]
		if c >= 'a' && c <= 'z' {
			vec[c-'a']++
		}
	}
	vec[26] = 0.01
	return vec
}

func testConfig(t *testing.T, endpoint string) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Embed.Endpoint = endpoint
	cfg.LLM.Endpoint = endpoint
	cfg.Document.ChunkSize = 40
	cfg.Document.ChunkOverlap = 0
	return cfg
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(bytes.NewBuffer(nil))
	return logger
}

func TestBuilder_RunsPipelineEndToEnd(t *testing.T) {
	server := newFakeOllama(t, "Paris", ".")
	cfg := testConfig(t, server.URL)

	var stages []services.Stage
	hook := services.HookFunc(func(e services.Event) {
		stages = append(stages, e.Stage)
	})

	builder := NewBuilder(cfg, quietLogger(), hook)
	defer builder.Close()

	pipeline, err := builder.Build(Overrides{})
	require.NoError(t, err)
	defer pipeline.Close()

	source := writeFile(t, "notes.txt", "Paris is the capital of France.\n\nBerlin is the capital of Germany.")

	var out bytes.Buffer
	answer, err := pipeline.Run(context.Background(), source, "What is the capital of France?", &out)
	require.NoError(t, err)
	assert.Equal(t, "Paris.\n", out.String())
	assert.Equal(t, "Paris.", answer.Text())
	assert.Contains(t, server.systemPrompt(), "Paris is the capital of France.")

	assert.Equal(t, int32(1), server.chatCalls.Load())
	// 文档一次批量嵌入，问题一次嵌入
	assert.Equal(t, int32(2), server.embedCalls.Load())
	assert.Contains(t, stages, services.StageIndexDone)
	assert.Equal(t, services.StageStreamDone, stages[len(stages)-1])
}

func TestBuilder_Overrides(t *testing.T) {
	server := newFakeOllama(t, "ok")
	cfg := testConfig(t, server.URL)

	builder := NewBuilder(cfg, quietLogger())
	defer builder.Close()

	pipeline, err := builder.Build(Overrides{ChunkSize: 1000, TopK: 1})
	require.NoError(t, err)

	source := writeFile(t, "notes.txt", "alpha beta.\n\ngamma delta.")
	report, err := pipeline.Index(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Segments)

	answer, err := pipeline.Query(context.Background(), "alpha?")
	require.NoError(t, err)
	assert.Equal(t, 1, answer.Result.Len())
	require.NoError(t, answer.Close())
}

func TestBuilder_InvalidChunking(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	builder := NewBuilder(cfg, quietLogger())

	overlap := 50
	_, err := builder.Build(Overrides{ChunkSize: 10, ChunkOverlap: &overlap})
	require.Error(t, err)

	var cfgErr *document.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestBuilder_UnknownProvider(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Embed.Provider = "nonexistent"
	builder := NewBuilder(cfg, quietLogger())

	_, err := builder.Build(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create embedding client")
}

func TestBuilder_CachedLoaderSharedAcrossBuilds(t *testing.T) {
	server := newFakeOllama(t, "ok")
	cfg := testConfig(t, server.URL)
	cfg.Cache.Enable = true
	cfg.Cache.Type = "memory"

	builder := NewBuilder(cfg, quietLogger())
	defer builder.Close()
	require.NotNil(t, builder.cache)

	source := writeFile(t, "notes.txt", "cached content lives here.")

	first, err := builder.Build(Overrides{})
	require.NoError(t, err)
	_, err = first.Index(context.Background(), source)
	require.NoError(t, err)

	// 删除文件后第二条流水线仍能从缓存读到内容
	require.NoError(t, os.Remove(source))

	second, err := builder.Build(Overrides{})
	require.NoError(t, err)
	report, err := second.Index(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Segments)
}
