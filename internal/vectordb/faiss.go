//go:build faiss

package vectordb

import (
	"fmt"
	"sync"

	"github.com/DataIntelligenceCrew/go-faiss"

	"github.com/fyerfyer/transcript-qa/internal/document"
)

// FaissRepository 基于Faiss的近似向量索引
// 与内存索引的接口约定相同，但不保证结果精确
type FaissRepository struct {
	mu          sync.RWMutex
	index       faiss.Index        // 第一次写入时创建
	segments    []document.Segment // 下标即Faiss中的顺序ID
	dimension   int
	distType    DistanceType
	description string
	closed      bool
}

// NewFaissRepository 创建新的Faiss向量索引
func NewFaissRepository(config Config) (Repository, error) {
	distType, err := validateDistanceType(config.DistanceType)
	if err != nil {
		return nil, err
	}

	description := config.IndexFactory
	if description == "" {
		description = "HNSW32"
	}

	repo := &FaissRepository{
		dimension:   config.Dimension,
		distType:    distType,
		description: description,
	}
	if config.Dimension > 0 {
		if err := repo.createIndex(config.Dimension); err != nil {
			return nil, err
		}
	}
	return repo, nil
}

// createIndex 创建Faiss索引
// 余弦相似度使用归一化向量上的内积
func (r *FaissRepository) createIndex(dimension int) error {
	index, err := faiss.IndexFactory(dimension, r.description, faiss.MetricInnerProduct)
	if err != nil {
		return fmt.Errorf("failed to create Faiss index %q: %w", r.description, err)
	}
	r.index = index
	r.dimension = dimension
	return nil
}

// Add 追加条目
func (r *FaissRepository) Add(entries []Entry) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if len(entries) == 0 {
		return []int64{}, nil
	}

	dimension, err := validateEntries(entries, r.dimension)
	if err != nil {
		return nil, err
	}
	if r.index == nil {
		if err := r.createIndex(dimension); err != nil {
			return nil, err
		}
	}

	// 一次性写入所有向量
	flat := make([]float32, 0, len(entries)*dimension)
	for _, entry := range entries {
		flat = append(flat, prepareVector(entry.Vector, r.distType)...)
	}
	if err := r.index.Add(flat); err != nil {
		return nil, fmt.Errorf("failed to add vectors to index: %w", err)
	}

	ids := make([]int64, len(entries))
	for i, entry := range entries {
		ids[i] = int64(len(r.segments))
		r.segments = append(r.segments, entry.Segment)
	}
	return ids, nil
}

// Search 近似搜索最相似的k个条目
func (r *FaissRepository) Search(vector []float32, k int) ([]SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrClosed
	}
	if r.index == nil || r.index.Ntotal() == 0 {
		return nil, ErrEmptyIndex
	}
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}

	total := int(r.index.Ntotal())
	if k > total {
		k = total
	}

	scores, labels, err := r.index.Search(prepareVector(vector, r.distType), int64(k))
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	results := make([]SearchResult, 0, len(labels))
	for i, label := range labels {
		// -1 表示近似索引没有找到足够的邻居
		if label < 0 || int(label) >= len(r.segments) {
			continue
		}
		results = append(results, SearchResult{
			ID:      label,
			Segment: r.segments[label],
			Score:   scores[i],
		})
	}

	SortSearchResults(results)
	return results, nil
}

// Count 获取条目总数
func (r *FaissRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.segments)
}

// Dimension 返回向量维数
func (r *FaissRepository) Dimension() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dimension
}

// Close 释放Faiss索引
func (r *FaissRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if r.index != nil {
		r.index.Delete()
		r.index = nil
	}
	r.segments = nil
	return nil
}

func init() {
	RegisterRepository("faiss", NewFaissRepository)
}
