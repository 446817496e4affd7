package model

import (
	"github.com/fyerfyer/transcript-qa/internal/document"
	"github.com/fyerfyer/transcript-qa/internal/services"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// SourceInfo 回答引用的来源段落
type SourceInfo struct {
	ID       int64   `json:"id"`       // 索引中的条目ID
	Text     string  `json:"text"`     // 段落文本
	Source   string  `json:"source"`   // 来源标识
	Position int     `json:"position"` // 段落在文档中的序号
	Score    float32 `json:"score"`    // 相似度得分
}

// AskResponse 问答响应
type AskResponse struct {
	RunID    string       `json:"run_id"`   // 本次运行ID
	Question string       `json:"question"` // 用户问题
	Answer   string       `json:"answer"`   // 生成的回答
	Sources  []SourceInfo `json:"sources"`  // 来源信息
}

// ConvertToSourceInfo 将检索结果转换为来源信息
func ConvertToSourceInfo(result *services.RetrievalResult) []SourceInfo {
	if result.Len() == 0 {
		return []SourceInfo{}
	}

	sources := make([]SourceInfo, len(result.Items))
	for i, item := range result.Items {
		sources[i] = SourceInfo{
			ID:       item.ID,
			Text:     item.Segment.Text,
			Source:   item.Segment.Metadata[document.MetaSource],
			Position: item.Segment.Index,
			Score:    item.Score,
		}
	}
	return sources
}
