package document

// 常用元数据键
const (
	MetaSource       = "source"        // 来源标识（视频ID或文件路径）
	MetaTitle        = "title"         // 标题
	MetaAuthor       = "author"        // 作者/频道
	MetaLanguage     = "language"      // 字幕语言
	MetaSegmentIndex = "segment_index" // 段落序号
)

// Document 加载后的原始文档
// 创建后不再修改
type Document struct {
	ID       string            `json:"id"`       // 文档唯一标识
	Content  string            `json:"content"`  // 文档文本内容
	Metadata map[string]string `json:"metadata"` // 元数据（来源、标题、发布时间等）
}

// Source 返回文档来源标识
func (d Document) Source() string {
	return d.Metadata[MetaSource]
}

// Segment 文档分段
// Start/End为在原文中的字符（rune）偏移，Overlap为与前一段重叠的字符数
type Segment struct {
	ID         string            `json:"id"`          // 段落唯一标识
	DocumentID string            `json:"document_id"` // 所属文档ID
	Index      int               `json:"index"`       // 段落序号
	Text       string            `json:"text"`        // 段落文本
	Start      int               `json:"start"`       // 起始偏移（包含）
	End        int               `json:"end"`         // 结束偏移（不包含）
	Overlap    int               `json:"overlap"`     // 与前一段重叠的字符数
	Metadata   map[string]string `json:"metadata"`    // 继承自文档的元数据
}

// Len 返回段落的字符数
func (s Segment) Len() int {
	return s.End - s.Start
}

// LoadOptions 文档加载选项
type LoadOptions struct {
	Language        string // 字幕语言，例如 "en"
	IncludeMetadata bool   // 是否附带视频/文件信息
}

// DefaultLoadOptions 返回默认加载选项
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		Language:        "en",
		IncludeMetadata: true,
	}
}

// copyMetadata 复制元数据映射
func copyMetadata(meta map[string]string) map[string]string {
	result := make(map[string]string, len(meta)+1)
	for k, v := range meta {
		result[k] = v
	}
	return result
}
