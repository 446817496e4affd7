package model

// AskRequest 问答请求
// 每个请求独立建立索引，请求之间不共享向量
type AskRequest struct {
	Source          string `json:"source" binding:"required"`               // 视频URL、视频ID或本地文件路径
	Question        string `json:"question" binding:"required"`             // 用户问题
	K               int    `json:"k" binding:"omitempty,min=1,max=50"`      // 检索的段落数量
	Language        string `json:"language"`                                // 字幕语言
	IncludeMetadata *bool  `json:"include_metadata"`                        // 是否附带视频信息
	ChunkSize       int    `json:"chunk_size" binding:"omitempty,min=1"`    // 分块大小
	ChunkOverlap    *int   `json:"chunk_overlap" binding:"omitempty,min=0"` // 分块重叠大小
	Stream          bool   `json:"stream"`                                  // 是否以SSE流式返回
}
