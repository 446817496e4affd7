package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/transcript-qa/api/middleware"
	"github.com/fyerfyer/transcript-qa/api/model"
	"github.com/fyerfyer/transcript-qa/internal/app"
	"github.com/fyerfyer/transcript-qa/internal/services"
)

// SSE事件名称
const (
	EventSource = "source" // 检索到的来源段落
	EventChunk  = "chunk"  // 一段回答
	EventDone   = "done"   // 回答结束
	EventError  = "error"  // 生成中途失败
)

// PipelineBuilder 为每个请求创建新的流水线
type PipelineBuilder interface {
	Build(o app.Overrides) (*services.Pipeline, error)
}

// QAHandler 处理问答相关的API请求
type QAHandler struct {
	builder PipelineBuilder // 流水线构建器
	timeout time.Duration   // 单个请求的超时时间，0表示不限制
	logger  *logrus.Logger  // 日志记录器
}

// NewQAHandler 创建新的问答处理器
func NewQAHandler(builder PipelineBuilder, timeout time.Duration) *QAHandler {
	return &QAHandler{
		builder: builder,
		timeout: timeout,
		logger:  middleware.GetLogger(),
	}
}

// Ask 加载来源、建立索引并回答问题
// POST /api/ask
func (h *QAHandler) Ask(c *gin.Context) {
	var req model.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid ask request")
		middleware.HandleError(c, middleware.NewValidationError("invalid request parameters", err.Error()))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		middleware.HandleError(c, middleware.NewValidationError("question cannot be empty"))
		return
	}

	pipeline, err := h.builder.Build(app.Overrides{
		Language:        req.Language,
		IncludeMetadata: req.IncludeMetadata,
		TopK:            req.K,
		ChunkSize:       req.ChunkSize,
		ChunkOverlap:    req.ChunkOverlap,
	})
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	defer pipeline.Close()

	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	log := h.logger.WithFields(logrus.Fields{
		"source":                req.Source,
		middleware.FieldTraceID: c.GetString(middleware.TraceIDKey),
	})

	report, err := pipeline.Index(ctx, req.Source)
	if err != nil {
		log.WithError(err).Warn("Failed to index source")
		middleware.HandleError(c, err)
		return
	}
	log.WithField("segments", report.Segments).Debug("Source indexed")

	answer, err := pipeline.Query(ctx, req.Question)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	defer answer.Close()

	if req.Stream {
		h.stream(c, answer)
		return
	}

	var text strings.Builder
	if _, err := answer.WriteTo(&text); err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(h.response(answer, text.String())))
}

// stream 以SSE事件推送回答
// 客户端断开后c.Stream停止迭代，延迟的answer.Close释放模型连接
func (h *QAHandler) stream(c *gin.Context, answer *services.Answer) {
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.SSEvent(EventSource, model.ConvertToSourceInfo(answer.Result))

	clientGone := c.Stream(func(w io.Writer) bool {
		fragment, err := answer.Recv()
		switch {
		case errors.Is(err, io.EOF):
			c.SSEvent(EventDone, h.response(answer, answer.Text()))
			return false
		case err != nil:
			appErr := middleware.ClassifyError(err)
			h.logger.WithError(err).Warn("Answer stream failed")
			resp := model.NewErrorResponse(appErr.Code, appErr.Message)
			resp.TraceID = c.GetString(middleware.TraceIDKey)
			c.SSEvent(EventError, resp)
			return false
		default:
			c.SSEvent(EventChunk, fragment)
			return true
		}
	})

	if clientGone {
		h.logger.WithField("run_id", answer.RunID).Info("Client disconnected, abandoning answer")
	}
}

func (h *QAHandler) response(answer *services.Answer, text string) *model.AskResponse {
	return &model.AskResponse{
		RunID:    answer.RunID,
		Question: answer.Question,
		Answer:   text,
		Sources:  model.ConvertToSourceInfo(answer.Result),
	}
}
