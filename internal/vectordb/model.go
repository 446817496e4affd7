package vectordb

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/transcript-qa/internal/document"
)

// 常用错误定义
var (
	ErrEmptyVector      = errors.New("empty vector")
	ErrInvalidDimension = errors.New("vector dimension mismatch")
	ErrInvalidK         = errors.New("k must be positive")
	ErrClosed           = errors.New("repository is closed")
)

// EmptyIndexError 索引中没有任何条目
// 调用方应将其视为"没有结果"而不是失败
type EmptyIndexError struct{}

// Error 实现error接口
func (e *EmptyIndexError) Error() string {
	return "vector index is empty"
}

// ErrEmptyIndex 空索引错误，可用errors.Is判断
var ErrEmptyIndex error = &EmptyIndexError{}

// Entry 待写入索引的条目：向量及其对应的段落
type Entry struct {
	Vector  []float32        // 向量表示
	Segment document.Segment // 原始段落
}

// DistanceType 向量相似度计算方法
type DistanceType string

const (
	// Cosine 余弦相似度，写入和查询时都会归一化向量
	Cosine DistanceType = "cosine"
	// DotProduct 点积，直接使用原始向量
	DotProduct DistanceType = "dot"
)

// SearchResult 搜索结果
type SearchResult struct {
	ID      int64            // 条目在索引中的稳定标识（按写入顺序递增）
	Segment document.Segment // 段落
	Score   float32          // 相似度得分，越大越相似
}

// Repository 向量索引接口
// Search可以并发执行，Add与Search互斥
type Repository interface {
	// Add 追加条目，返回分配的ID；任一条目非法时不写入任何条目
	Add(entries []Entry) ([]int64, error)

	// Search 返回最多k个最相似的条目，按得分降序，得分相同时先写入的在前
	// 索引为空时返回ErrEmptyIndex
	Search(vector []float32, k int) ([]SearchResult, error)

	// Count 获取条目总数
	Count() int

	// Dimension 返回向量维数，尚未确定时为0
	Dimension() int

	// Close 释放资源
	Close() error
}

// Config 向量索引配置
type Config struct {
	Type         string       // 索引类型："memory"（精确）或 "faiss"（近似）
	Dimension    int          // 向量维度，0表示由第一次写入决定
	DistanceType DistanceType // 相似度计算类型
	IndexFactory string       // faiss索引描述，例如 "HNSW32"、"Flat"
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Type:         "memory",
		DistanceType: Cosine,
		IndexFactory: "HNSW32",
	}
}

// Factory 向量索引工厂函数类型
type Factory func(config Config) (Repository, error)

// RepositoryRegistry 注册可用的向量索引实现
var RepositoryRegistry = map[string]Factory{}

// RegisterRepository 注册向量索引工厂函数
func RegisterRepository(name string, factory Factory) {
	RepositoryRegistry[name] = factory
}

// NewRepository 根据配置创建向量索引实例
// 未注册的类型（例如未使用faiss构建标签编译时的"faiss"）回退为内存实现
func NewRepository(config Config) (Repository, error) {
	factory, ok := RepositoryRegistry[config.Type]
	if !ok {
		if config.Type != "" {
			logrus.WithField("type", config.Type).Warn("Vector index type not available, falling back to memory index")
		}
		factory = NewMemoryRepository
	}
	return factory(config)
}
