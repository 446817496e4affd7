package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyerfyer/transcript-qa/internal/document"
	"github.com/fyerfyer/transcript-qa/internal/embedding"
	"github.com/fyerfyer/transcript-qa/internal/vectordb"
)

// DefaultTopK 默认检索结果数量
const DefaultTopK = 4

// RetrievedSegment 检索到的段落及其得分
type RetrievedSegment struct {
	ID      int64            // 索引中的条目ID
	Segment document.Segment // 段落
	Score   float32          // 相似度得分
}

// RetrievalResult 按相似度降序排列的检索结果
type RetrievalResult struct {
	Query string
	Items []RetrievedSegment
}

// Len 返回结果数量
func (r *RetrievalResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Items)
}

// Texts 返回结果段落的文本，顺序与结果一致
func (r *RetrievalResult) Texts() []string {
	if r == nil {
		return nil
	}
	texts := make([]string, len(r.Items))
	for i, item := range r.Items {
		texts[i] = item.Segment.Text
	}
	return texts
}

// Retriever 检索器
// 每次调用都会重新生成问题向量，不做缓存
type Retriever struct {
	embedder embedding.Client
	index    vectordb.Repository
}

// NewRetriever 创建检索器
func NewRetriever(embedder embedding.Client, index vectordb.Repository) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    index,
	}
}

// Retrieve 检索与query最相似的k个段落，k<=0时使用DefaultTopK
// 索引为空时返回空结果而不是错误
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (*RetrievalResult, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	result := &RetrievalResult{Query: query}
	hits, err := r.index.Search(vector, k)
	if err != nil {
		var emptyErr *vectordb.EmptyIndexError
		if errors.As(err, &emptyErr) {
			return result, nil
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}

	result.Items = make([]RetrievedSegment, len(hits))
	for i, hit := range hits {
		result.Items[i] = RetrievedSegment{
			ID:      hit.ID,
			Segment: hit.Segment,
			Score:   hit.Score,
		}
	}
	return result, nil
}
