package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/transcript-qa/api/model"
	"github.com/fyerfyer/transcript-qa/internal/document"
	"github.com/fyerfyer/transcript-qa/internal/embedding"
	"github.com/fyerfyer/transcript-qa/internal/llm"
	"github.com/fyerfyer/transcript-qa/internal/services"
)

// 定义应用中的错误类型常量
const (
	ErrorTypeValidation  = "VALIDATION_ERROR"  // 输入验证错误
	ErrorTypeSource      = "SOURCE_ERROR"      // 来源无法加载
	ErrorTypeNotFound    = "NOT_FOUND_ERROR"   // 资源不存在错误
	ErrorTypeUpstream    = "UPSTREAM_ERROR"    // 模型服务调用失败
	ErrorTypeTimeout     = "TIMEOUT_ERROR"     // 调用超时
	ErrorTypeInternal    = "INTERNAL_ERROR"    // 内部服务器错误
	ErrorTypeUnavailable = "UNAVAILABLE_ERROR" // 服务暂不可用
)

// AppError 应用错误结构体
type AppError struct {
	Type    string // 错误类型
	Message string // 错误消息
	Details string // 详细错误信息
	Code    int    // HTTP状态码
}

// Error 实现error接口的方法
func (e AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewValidationError 创建输入验证错误
func NewValidationError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeValidation,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadRequest,
	}
}

// NewNotFoundError 创建资源不存在错误
func NewNotFoundError(message string) AppError {
	return AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

// NewInternalError 创建内部服务器错误
func NewInternalError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusInternalServerError,
	}
}

// ClassifyError 把流水线返回的错误转换为应用错误
func ClassifyError(err error) AppError {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var cfgErr *document.ConfigError
	var loadErr *document.LoadError
	var genErr *llm.GenerationError
	var embErr *embedding.EmbeddingError

	switch {
	case errors.As(err, &cfgErr):
		return NewValidationError("invalid chunking parameters", cfgErr.Error())
	case errors.Is(err, document.ErrUnsupportedSource):
		return AppError{Type: ErrorTypeValidation, Message: "unsupported source", Details: err.Error(), Code: http.StatusBadRequest}
	case errors.Is(err, document.ErrNoTranscript):
		return AppError{Type: ErrorTypeSource, Message: "no transcript available", Details: err.Error(), Code: http.StatusNotFound}
	case errors.Is(err, document.ErrEmptyContent):
		return AppError{Type: ErrorTypeSource, Message: "source has no text content", Details: err.Error(), Code: http.StatusUnprocessableEntity}
	case errors.As(err, &loadErr):
		return AppError{Type: ErrorTypeSource, Message: "failed to load source", Details: err.Error(), Code: http.StatusBadGateway}
	case errors.Is(err, services.ErrNotIndexed):
		return AppError{Type: ErrorTypeUnavailable, Message: "no documents indexed", Code: http.StatusConflict}
	case llm.IsTimeout(err), embedding.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return AppError{Type: ErrorTypeTimeout, Message: "upstream model timed out", Details: err.Error(), Code: http.StatusGatewayTimeout}
	case errors.As(err, &genErr):
		return AppError{Type: ErrorTypeUpstream, Message: "answer generation failed", Details: err.Error(), Code: http.StatusBadGateway}
	case errors.As(err, &embErr):
		return AppError{Type: ErrorTypeUpstream, Message: "embedding failed", Details: err.Error(), Code: http.StatusBadGateway}
	default:
		return NewInternalError("internal server error", err.Error())
	}
}

// ErrorHandler 统一错误处理中间件
// 处理器通过HandleError登记错误，此处统一转换为JSON响应
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.WithFields(logrus.Fields{
					FieldError: err,
					"stack":    string(debug.Stack()),
					FieldPath:  c.Request.URL.Path,
				}).Error("Panic recovered in API request")

				errorResponse := model.NewErrorResponse(
					http.StatusInternalServerError,
					"An unexpected error occurred",
				)
				if gin.Mode() == gin.DebugMode {
					errorResponse.Message = fmt.Sprintf("Panic: %v", err)
				}
				errorResponse.TraceID = c.GetString(TraceIDKey)

				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse)
			}
		}()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		appErr := ClassifyError(c.Errors.Last().Err)
		traceID := c.GetString(TraceIDKey)

		log.WithFields(logrus.Fields{
			"error_type":  appErr.Type,
			FieldTraceID: traceID,
			FieldPath:    c.Request.URL.Path,
			FieldError:   appErr.Details,
		}).Error(appErr.Message)

		// 流式响应已经写出响应头，只能由处理器通过事件报告错误
		if c.Writer.Written() {
			c.Abort()
			return
		}

		errResp := model.NewErrorResponse(appErr.Code, appErr.Message)
		if gin.Mode() == gin.DebugMode && appErr.Details != "" {
			errResp.Message = appErr.Message + ": " + appErr.Details
		}
		errResp.TraceID = traceID

		c.AbortWithStatusJSON(appErr.Code, errResp)
	}
}

// HandleError 在处理器中使用的错误处理辅助函数
func HandleError(c *gin.Context, err error) {
	_ = c.Error(err)
}
