package vectordb

import (
	"fmt"
	"math"
	"sort"
)

// validateDistanceType 校验相似度类型，空值使用余弦
func validateDistanceType(distType DistanceType) (DistanceType, error) {
	switch distType {
	case "":
		return Cosine, nil
	case Cosine, DotProduct:
		return distType, nil
	default:
		return "", fmt.Errorf("unsupported distance type: %s", distType)
	}
}

// dotProduct 计算两个向量的点积
func dotProduct(v1, v2 []float32) float32 {
	var dot float32
	for i := 0; i < len(v1); i++ {
		dot += v1[i] * v2[i]
	}
	return dot
}

// vectorNorm 计算向量的L2范数
func vectorNorm(v []float32) float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return float32(math.Sqrt(sum))
}

// normalizeVector 归一化向量（使其长度为1），返回新切片
func normalizeVector(v []float32) []float32 {
	result := make([]float32, len(v))
	norm := vectorNorm(v)
	if norm == 0 {
		copy(result, v) // 零向量无法归一化
		return result
	}
	for i, val := range v {
		result[i] = val / norm
	}
	return result
}

// prepareVector 按相似度类型预处理向量，总是返回副本
func prepareVector(v []float32, distType DistanceType) []float32 {
	if distType == Cosine {
		return normalizeVector(v)
	}
	result := make([]float32, len(v))
	copy(result, v)
	return result
}

// ValidateVector 验证向量维度和有效性
func ValidateVector(vector []float32, expectedDim int) error {
	if len(vector) == 0 {
		return ErrEmptyVector
	}
	if expectedDim > 0 && len(vector) != expectedDim {
		return fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, expectedDim, len(vector))
	}
	for _, val := range vector {
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return fmt.Errorf("vector contains non-finite value")
		}
	}
	return nil
}

// validateEntries 校验一批条目的维度，返回确定的维度
func validateEntries(entries []Entry, dimension int) (int, error) {
	for i, entry := range entries {
		if dimension == 0 {
			dimension = len(entry.Vector)
		}
		if err := ValidateVector(entry.Vector, dimension); err != nil {
			return 0, fmt.Errorf("invalid vector for entry %d: %w", i, err)
		}
	}
	return dimension, nil
}

// SortSearchResults 按得分降序排序，得分相同时按ID升序（写入顺序）
func SortSearchResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
}
