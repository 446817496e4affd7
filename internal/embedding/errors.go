package embedding

import (
	"errors"
	"fmt"
)

// EmbeddingError 嵌入服务错误
// 所有后端调用失败（网络、超时、模型未加载）都以该类型返回
type EmbeddingError struct {
	Code    int    // 错误码
	Message string // 错误消息
	Err     error  // 底层错误（可选）
}

// Error 实现error接口
func (e *EmbeddingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("embedding error (code=%d): %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("embedding error (code=%d): %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *EmbeddingError) Unwrap() error {
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
	ErrCodeEmptyInput     = 1007 // 输入为空
	ErrCodeModelNotFound  = 1008 // 模型不存在或未加载
	ErrCodeBadResponse    = 1009 // 响应格式或维度不符
	ErrCodeCanceled       = 1010 // 调用方取消
)

// 错误消息常量
const (
	ErrMsgInvalidAPIKey  = "invalid API key"
	ErrMsgInvalidRequest = "invalid request parameters"
	ErrMsgRateLimited    = "too many requests, rate limit exceeded"
	ErrMsgServerError    = "server error occurred"
	ErrMsgTimeout        = "request timed out"
	ErrMsgEmptyInput     = "input text cannot be empty"
	ErrMsgNetworkError   = "network connection error"
	ErrMsgModelNotFound  = "embedding model not found"
	ErrMsgCanceled       = "request canceled"
)

// NewEmbeddingError 创建新的嵌入错误
func NewEmbeddingError(code int, message string) *EmbeddingError {
	return &EmbeddingError{
		Code:    code,
		Message: message,
	}
}

// wrapError 创建包含底层错误的嵌入错误
func wrapError(code int, message string, err error) *EmbeddingError {
	return &EmbeddingError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// errorCode 返回错误码，非EmbeddingError返回0
func errorCode(err error) int {
	var embErr *EmbeddingError
	if errors.As(err, &embErr) {
		return embErr.Code
	}
	return 0
}

// IsTimeout 判断是否为超时错误
func IsTimeout(err error) bool {
	return errorCode(err) == ErrCodeTimeout
}

// IsUnavailable 判断是否为后端不可用（网络错误、超时、服务端错误）
func IsUnavailable(err error) bool {
	switch errorCode(err) {
	case ErrCodeNetworkError, ErrCodeTimeout, ErrCodeServerError, ErrCodeModelNotFound:
		return true
	default:
		return false
	}
}

// isRetryable 只有暂时性错误才重试
func isRetryable(err error) bool {
	switch errorCode(err) {
	case ErrCodeNetworkError, ErrCodeTimeout, ErrCodeServerError, ErrCodeRateLimited:
		return true
	default:
		return false
	}
}
