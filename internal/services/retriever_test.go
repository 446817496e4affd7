package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/transcript-qa/internal/document"
	"github.com/fyerfyer/transcript-qa/internal/embedding"
	"github.com/fyerfyer/transcript-qa/internal/vectordb"
)

func addTexts(t *testing.T, index vectordb.Repository, texts ...string) {
	entries := make([]vectordb.Entry, len(texts))
	for i, text := range texts {
		entries[i] = vectordb.Entry{
			Vector:  keywordVector(text),
			Segment: document.Segment{ID: text, Index: i, Text: text},
		}
	}
	_, err := index.Add(entries)
	require.NoError(t, err)
}

func TestRetrieverSingleSegment(t *testing.T) {
	index := newTestIndex(t)
	addTexts(t, index, "Paris is the capital of France.")

	retriever := NewRetriever(&keywordEmbedder{}, index)
	result, err := retriever.Retrieve(context.Background(), "What is the capital of France?", 1)
	require.NoError(t, err)

	require.Equal(t, 1, result.Len())
	assert.Equal(t, "Paris is the capital of France.", result.Items[0].Segment.Text)
	assert.Equal(t, []string{"Paris is the capital of France."}, result.Texts())
	assert.Equal(t, "What is the capital of France?", result.Query)
}

func TestRetrieverRanking(t *testing.T) {
	index := newTestIndex(t)
	addTexts(t, index,
		"Bananas are yellow fruit.",
		"The rocket launched into orbit around the earth.",
		"Rockets need fuel to reach orbit.",
		"Cats sleep most of the day.",
		"Rain falls from clouds.",
		"Orbit mechanics describe how rockets move.",
	)

	retriever := NewRetriever(&keywordEmbedder{}, index)

	// k<=0 使用默认值
	result, err := retriever.Retrieve(context.Background(), "rocket orbit", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, result.Len())
	assert.Equal(t, "The rocket launched into orbit around the earth.", result.Items[0].Segment.Text)

	for i := 1; i < result.Len(); i++ {
		assert.GreaterOrEqual(t, result.Items[i-1].Score, result.Items[i].Score)
	}

	// k大于条目数时返回全部
	result, err = retriever.Retrieve(context.Background(), "rocket orbit", 100)
	require.NoError(t, err)
	assert.Equal(t, 6, result.Len())
}

func TestRetrieverEmptyIndex(t *testing.T) {
	retriever := NewRetriever(&keywordEmbedder{}, newTestIndex(t))

	result, err := retriever.Retrieve(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Len())
	assert.Empty(t, result.Texts())
}

func TestRetrieverReembedsEveryCall(t *testing.T) {
	index := newTestIndex(t)
	addTexts(t, index, "one segment")

	embedder := &keywordEmbedder{}
	retriever := NewRetriever(embedder, index)
	for i := 0; i < 3; i++ {
		_, err := retriever.Retrieve(context.Background(), "same question", 1)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, embedder.embedCalls())
}

func TestRetrieverEmbeddingFailure(t *testing.T) {
	embedder := embedding.NewMockClient(t)
	embedder.EXPECT().
		Embed(mock.Anything, "question").
		Return(nil, embedding.NewEmbeddingError(embedding.ErrCodeTimeout, embedding.ErrMsgTimeout)).
		Once()

	retriever := NewRetriever(embedder, newTestIndex(t))
	result, err := retriever.Retrieve(context.Background(), "question", 1)
	assert.Nil(t, result)
	assert.True(t, embedding.IsTimeout(err))
}

func TestRetrieverDimensionMismatch(t *testing.T) {
	index := newTestIndex(t)
	addTexts(t, index, "stored")

	embedder := embedding.NewMockClient(t)
	embedder.EXPECT().Embed(mock.Anything, mock.Anything).Return([]float32{1, 2, 3}, nil).Once()

	_, err := NewRetriever(embedder, index).Retrieve(context.Background(), "q", 1)
	assert.True(t, errors.Is(err, vectordb.ErrInvalidDimension))
}
