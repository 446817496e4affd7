package vectordb

import (
	"sync"

	"github.com/fyerfyer/transcript-qa/internal/document"
)

// MemoryRepository 内存向量索引
// 精确的暴力搜索，复杂度O(n·d)，作为正确性基准
type MemoryRepository struct {
	mu        sync.RWMutex       // 读写锁：并发搜索，写入独占
	dimension int                // 向量维度
	distType  DistanceType       // 相似度计算类型
	vectors   [][]float32        // 预处理后的向量，下标即ID
	segments  []document.Segment // 与向量一一对应的段落
	closed    bool
}

// NewMemoryRepository 创建内存向量索引
func NewMemoryRepository(config Config) (Repository, error) {
	distType, err := validateDistanceType(config.DistanceType)
	if err != nil {
		return nil, err
	}

	return &MemoryRepository{
		dimension: config.Dimension,
		distType:  distType,
	}, nil
}

// Add 追加条目
func (r *MemoryRepository) Add(entries []Entry) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if len(entries) == 0 {
		return []int64{}, nil
	}

	// 先整体校验，保证不会写入部分条目
	dimension, err := validateEntries(entries, r.dimension)
	if err != nil {
		return nil, err
	}
	r.dimension = dimension

	ids := make([]int64, len(entries))
	for i, entry := range entries {
		ids[i] = int64(len(r.vectors))
		r.vectors = append(r.vectors, prepareVector(entry.Vector, r.distType))
		r.segments = append(r.segments, entry.Segment)
	}
	return ids, nil
}

// Search 暴力搜索最相似的k个条目
func (r *MemoryRepository) Search(vector []float32, k int) ([]SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrClosed
	}
	if len(r.vectors) == 0 {
		return nil, ErrEmptyIndex
	}
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}

	query := prepareVector(vector, r.distType)
	results := make([]SearchResult, len(r.vectors))
	for i, vec := range r.vectors {
		results[i] = SearchResult{
			ID:      int64(i),
			Segment: r.segments[i],
			Score:   dotProduct(query, vec),
		}
	}

	SortSearchResults(results)
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Count 获取条目总数
func (r *MemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.vectors)
}

// Dimension 返回向量维数
func (r *MemoryRepository) Dimension() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dimension
}

// Close 释放内存
func (r *MemoryRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.vectors = nil
	r.segments = nil
	return nil
}

func init() {
	RegisterRepository("memory", NewMemoryRepository)
}
