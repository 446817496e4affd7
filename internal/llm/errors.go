package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrStreamClosed 流已被调用方关闭
var ErrStreamClosed = errors.New("answer stream closed")

// GenerationError 大模型调用错误
// 生成失败对当前请求是致命的，不会重试
type GenerationError struct {
	Code    int    // 错误码
	Message string // 错误消息
	Err     error  // 底层错误（可选）
}

// Error 实现error接口
func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm error (code=%d): %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("llm error (code=%d): %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *GenerationError) Unwrap() error {
	return e.Err
}

// 错误码常量
const (
	ErrCodeInvalidAPIKey  = 1001 // 无效的API密钥
	ErrCodeInvalidRequest = 1002 // 无效的请求
	ErrCodeNetworkError   = 1003 // 网络连接错误
	ErrCodeRateLimited    = 1004 // 请求频率超限
	ErrCodeServerError    = 1005 // 服务器错误
	ErrCodeTimeout        = 1006 // 请求超时
	ErrCodeEmptyPrompt    = 1007 // 提示词为空
	ErrCodeModelNotFound  = 1008 // 模型不存在或未下载
	ErrCodeBadResponse    = 1009 // 响应格式错误
	ErrCodeCanceled       = 1010 // 调用方取消
)

// 错误消息常量
const (
	ErrMsgInvalidAPIKey  = "invalid API key"
	ErrMsgInvalidRequest = "invalid request parameters"
	ErrMsgRateLimited    = "too many requests, rate limit exceeded"
	ErrMsgServerError    = "server error occurred"
	ErrMsgTimeout        = "request timed out"
	ErrMsgEmptyPrompt    = "prompt cannot be empty"
	ErrMsgNetworkError   = "network connection error"
	ErrMsgCanceled       = "request canceled"
)

// NewGenerationError 创建新的大模型错误
func NewGenerationError(code int, message string) *GenerationError {
	return &GenerationError{
		Code:    code,
		Message: message,
	}
}

// WrapError 包装普通错误为大模型错误，已经是GenerationError的直接返回
func WrapError(err error, code int, message string) *GenerationError {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr
	}
	return &GenerationError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsTimeout 判断是否为超时错误
func IsTimeout(err error) bool {
	var genErr *GenerationError
	return errors.As(err, &genErr) && genErr.Code == ErrCodeTimeout
}

// statusError 根据HTTP状态码生成大模型错误
func statusError(status int, message string) *GenerationError {
	msg := fmt.Sprintf("API error (status %d): %s", status, message)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewGenerationError(ErrCodeInvalidAPIKey, msg)
	case status == http.StatusNotFound:
		return NewGenerationError(ErrCodeModelNotFound, msg)
	case status == http.StatusTooManyRequests:
		return NewGenerationError(ErrCodeRateLimited, msg)
	case status >= 500:
		return NewGenerationError(ErrCodeServerError, msg)
	default:
		return NewGenerationError(ErrCodeInvalidRequest, msg)
	}
}

// classifyError 归类后端调用错误
// 看门狗触发视为超时，调用方上下文结束视为取消或超时
func classifyError(parent context.Context, dog *watchdog, err error) error {
	if dog != nil && dog.expired() {
		return &GenerationError{Code: ErrCodeTimeout, Message: ErrMsgTimeout, Err: err}
	}
	if ctxErr := parent.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return &GenerationError{Code: ErrCodeTimeout, Message: ErrMsgTimeout, Err: ctxErr}
		}
		return &GenerationError{Code: ErrCodeCanceled, Message: ErrMsgCanceled, Err: ctxErr}
	}
	return WrapError(err, ErrCodeNetworkError, ErrMsgNetworkError)
}
