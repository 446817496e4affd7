package services

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Stage 流水线生命周期阶段
type Stage string

const (
	StageLoadStart    Stage = "load_start"
	StageLoadDone     Stage = "load_done"
	StageSplitDone    Stage = "split_done"
	StageEmbedStart   Stage = "embed_start"
	StageEmbedDone    Stage = "embed_done"
	StageIndexDone    Stage = "index_done"
	StageQueryStart   Stage = "query_start"
	StageRetrieveDone Stage = "retrieve_done"
	StageStreamChunk  Stage = "stream_chunk"
	StageStreamDone   Stage = "stream_done"
)

// Event 生命周期事件
// *_done事件携带本阶段耗时；失败时Err非空
type Event struct {
	Stage    Stage         // 阶段
	RunID    string        // 一次索引或查询的唯一标识
	Source   string        // 来源标识（索引阶段）
	Question string        // 问题（查询阶段）
	Count    int           // 文档数、段落数、向量数或结果数，取决于阶段
	Fragment string        // 回答片段（仅stream_chunk）
	Duration time.Duration // 阶段耗时
	Err      error         // 阶段错误
	Time     time.Time     // 事件时间
}

// Hook 观察流水线事件
// Observe在流水线的调用协程中同步执行，不应阻塞
type Hook interface {
	Observe(event Event)
}

// HookFunc 函数适配器
type HookFunc func(event Event)

// Observe 实现Hook接口
func (f HookFunc) Observe(event Event) {
	f(event)
}

// Hooks 将事件依次分发给多个Hook
type Hooks []Hook

// Observe 实现Hook接口
func (h Hooks) Observe(event Event) {
	for _, hook := range h {
		if hook != nil {
			hook.Observe(event)
		}
	}
}

// LogHook 将事件写入logrus日志
type LogHook struct {
	logger *logrus.Logger
}

// NewLogHook 创建日志Hook
func NewLogHook(logger *logrus.Logger) *LogHook {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogHook{logger: logger}
}

// Observe 实现Hook接口
func (h *LogHook) Observe(event Event) {
	entry := h.logger.WithFields(logrus.Fields{
		"stage":  string(event.Stage),
		"run_id": event.RunID,
	})
	if event.Duration > 0 {
		entry = entry.WithField("duration_ms", event.Duration.Milliseconds())
	}
	if event.Err != nil {
		entry.WithError(event.Err).Error("Pipeline stage failed")
		return
	}

	switch event.Stage {
	case StageLoadStart:
		entry.WithField("source", event.Source).Info("Loading documents...")
	case StageLoadDone:
		entry.WithField("documents", event.Count).Info("Documents loaded")
	case StageSplitDone:
		entry.WithField("segments", event.Count).Info("Documents split into segments")
	case StageEmbedStart:
		entry.WithField("segments", event.Count).Info("Embedding documents...")
	case StageEmbedDone:
		entry.WithField("vectors", event.Count).Info("Embeddings generated")
	case StageIndexDone:
		entry.WithField("entries", event.Count).Info("Index ready")
	case StageQueryStart:
		entry.WithField("question", event.Question).Info("Running the chain...")
	case StageRetrieveDone:
		entry.WithField("results", event.Count).Debug("Retrieved context segments")
	case StageStreamChunk:
		entry.WithField("length", len(event.Fragment)).Trace("Answer fragment")
	case StageStreamDone:
		entry.WithField("fragments", event.Count).Debug("Answer stream finished")
	}
}
