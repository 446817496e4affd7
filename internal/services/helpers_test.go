package services

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/transcript-qa/internal/document"
	"github.com/fyerfyer/transcript-qa/internal/vectordb"
)

const keywordDim = 64

// keywordEmbedder 基于词袋的确定性向量
type keywordEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (e *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return keywordVector(text), nil
}

func (e *keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = keywordVector(text)
	}
	return vectors, nil
}

func (e *keywordEmbedder) Name() string {
	return "keyword"
}

func (e *keywordEmbedder) embedCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func keywordVector(text string) []float32 {
	vec := make([]float32, keywordDim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, word := range words {
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[h.Sum32()%keywordDim]++
	}
	// 保证向量非零
	vec[keywordDim-1] += 0.01
	return vec
}

// staticLoader 返回固定文档的加载器
type staticLoader struct {
	docs []document.Document
	err  error
}

func (l *staticLoader) Load(ctx context.Context, source string, opts document.LoadOptions) ([]document.Document, error) {
	if l.err != nil {
		return nil, &document.LoadError{Source: source, Err: l.err}
	}
	return l.docs, nil
}

func (l *staticLoader) Supports(source string) bool {
	return true
}

func (l *staticLoader) Name() string {
	return "static"
}

func textLoader(texts ...string) *staticLoader {
	docs := make([]document.Document, len(texts))
	for i, text := range texts {
		docs[i] = document.Document{
			ID:       "doc",
			Content:  text,
			Metadata: map[string]string{document.MetaSource: "test"},
		}
	}
	return &staticLoader{docs: docs}
}

func newTestSplitter(t *testing.T, size, overlap int) document.Splitter {
	splitter, err := document.NewRecursiveSplitter(document.SplitterConfig{ChunkSize: size, ChunkOverlap: overlap})
	require.NoError(t, err)
	return splitter
}

func newTestIndex(t *testing.T) vectordb.Repository {
	index, err := vectordb.NewMemoryRepository(vectordb.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })
	return index
}

// recorder 记录收到的事件
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Observe(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) stages() []Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	stages := make([]Stage, len(r.events))
	for i, e := range r.events {
		stages[i] = e.Stage
	}
	return stages
}

func (r *recorder) find(stage Stage) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Stage == stage {
			return e, true
		}
	}
	return Event{}, false
}
