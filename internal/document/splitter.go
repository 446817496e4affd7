package document

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// DefaultSeparators 默认分隔符列表，从粗到细：段落、行、句子、单词、单个字符
var DefaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", " ", ""}

// SplitterConfig 分段器配置
type SplitterConfig struct {
	ChunkSize    int      // 分块大小（按字符数）
	ChunkOverlap int      // 相邻分块重叠大小（字符数）
	Separators   []string // 分隔符列表，为空时使用DefaultSeparators
}

// DefaultSplitterConfig 返回默认分段器配置
func DefaultSplitterConfig() SplitterConfig {
	return SplitterConfig{
		ChunkSize:    2000,
		ChunkOverlap: 400,
		Separators:   DefaultSeparators,
	}
}

// Validate 校验分段参数
func (c SplitterConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return &ConfigError{Field: "chunk_size", Message: fmt.Sprintf("must be positive, got %d", c.ChunkSize)}
	}
	if c.ChunkOverlap < 0 {
		return &ConfigError{Field: "chunk_overlap", Message: fmt.Sprintf("must not be negative, got %d", c.ChunkOverlap)}
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return &ConfigError{
			Field:   "chunk_overlap",
			Message: fmt.Sprintf("overlap %d must be smaller than chunk size %d", c.ChunkOverlap, c.ChunkSize),
		}
	}
	return nil
}

// Splitter 文本分段器接口
// 负责将长文本分割成适合向量化的小段
type Splitter interface {
	// Split 将文档分割成有序的段落
	Split(doc Document) ([]Segment, error)
}

// RecursiveSplitter 递归字符分段器
// 依次尝试从粗到细的分隔符，直到每段长度满足要求
type RecursiveSplitter struct {
	config     SplitterConfig
	separators [][]rune
}

// NewRecursiveSplitter 创建递归分段器，参数非法时返回ConfigError
func NewRecursiveSplitter(config SplitterConfig) (*RecursiveSplitter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	seps := config.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	// 最后一级必须是按字符硬切
	if seps[len(seps)-1] != "" {
		seps = append(append([]string{}, seps...), "")
	}

	runeSeps := make([][]rune, len(seps))
	for i, sep := range seps {
		runeSeps[i] = []rune(sep)
	}
	config.Separators = seps

	return &RecursiveSplitter{
		config:     config,
		separators: runeSeps,
	}, nil
}

// Config 返回分段器配置
func (s *RecursiveSplitter) Config() SplitterConfig {
	return s.config
}

// span 文本中的一段区间 [start, end)
type span struct {
	start int
	end   int
}

func (p span) size() int {
	return p.end - p.start
}

// Split 将文档分割成段落
// 每段长度不超过ChunkSize，第i段以前一段末尾的ChunkOverlap个字符开头
func (s *RecursiveSplitter) Split(doc Document) ([]Segment, error) {
	if doc.Content == "" {
		return []Segment{}, nil
	}

	text := []rune(doc.Content)
	limit := s.config.ChunkSize - s.config.ChunkOverlap
	pieces := s.splitRecursive(text, span{0, len(text)}, 0, limit)

	segments := make([]Segment, 0, len(pieces))
	for i, piece := range pieces {
		start := piece.start
		if i > 0 {
			start -= s.config.ChunkOverlap
			if start < 0 {
				start = 0
			}
		}

		meta := copyMetadata(doc.Metadata)
		meta[MetaSegmentIndex] = strconv.Itoa(i)

		segments = append(segments, Segment{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			Index:      i,
			Text:       string(text[start:piece.end]),
			Start:      start,
			End:        piece.end,
			Overlap:    piece.start - start,
			Metadata:   meta,
		})
	}

	return segments, nil
}

// splitRecursive 把区间切成不超过limit的连续片段
func (s *RecursiveSplitter) splitRecursive(text []rune, rng span, level, limit int) []span {
	if rng.size() <= limit {
		return []span{rng}
	}

	// 找到第一个在当前区间出现的分隔符
	for level < len(s.separators)-1 && indexRunes(text, rng, s.separators[level]) < 0 {
		level++
	}
	sep := s.separators[level]
	if len(sep) == 0 {
		return hardSplit(rng, limit)
	}

	var result []span
	cur := span{rng.start, rng.start}
	for _, part := range splitKeepSeparator(text, rng, sep) {
		if part.size() > limit {
			if cur.size() > 0 {
				result = append(result, cur)
			}
			// 最后一块继续参与合并，避免留下零碎的短段
			sub := s.splitRecursive(text, part, level+1, limit)
			result = append(result, sub[:len(sub)-1]...)
			cur = sub[len(sub)-1]
			continue
		}

		// 合并相邻的小片段
		if cur.size()+part.size() > limit {
			result = append(result, cur)
			cur = part
			continue
		}
		cur.end = part.end
	}
	if cur.size() > 0 {
		result = append(result, cur)
	}

	return result
}

// splitKeepSeparator 按分隔符切分，分隔符保留在前一片段末尾
func splitKeepSeparator(text []rune, rng span, sep []rune) []span {
	var parts []span
	partStart := rng.start
	for i := rng.start; i+len(sep) <= rng.end; {
		if hasRunesAt(text, i, sep) {
			i += len(sep)
			parts = append(parts, span{partStart, i})
			partStart = i
			continue
		}
		i++
	}
	if partStart < rng.end {
		parts = append(parts, span{partStart, rng.end})
	}
	return parts
}

// hardSplit 按固定长度切分
func hardSplit(rng span, limit int) []span {
	parts := make([]span, 0, rng.size()/limit+1)
	for i := rng.start; i < rng.end; i += limit {
		end := i + limit
		if end > rng.end {
			end = rng.end
		}
		parts = append(parts, span{i, end})
	}
	return parts
}

// indexRunes 返回sep在区间内第一次出现的位置，不存在返回-1
func indexRunes(text []rune, rng span, sep []rune) int {
	for i := rng.start; i+len(sep) <= rng.end; i++ {
		if hasRunesAt(text, i, sep) {
			return i
		}
	}
	return -1
}

func hasRunesAt(text []rune, pos int, sep []rune) bool {
	for j, r := range sep {
		if text[pos+j] != r {
			return false
		}
	}
	return true
}

// Reassemble 去掉每段的重叠前缀后拼接，得到原始文本
func Reassemble(segments []Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		b.WriteString(string([]rune(seg.Text)[seg.Overlap:]))
	}
	return b.String()
}
