// Package app 根据配置组装问答流水线
package app

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/transcript-qa/config"
	"github.com/fyerfyer/transcript-qa/internal/cache"
	"github.com/fyerfyer/transcript-qa/internal/document"
	"github.com/fyerfyer/transcript-qa/internal/embedding"
	"github.com/fyerfyer/transcript-qa/internal/llm"
	"github.com/fyerfyer/transcript-qa/internal/services"
	"github.com/fyerfyer/transcript-qa/internal/vectordb"
)

// Overrides 单次运行对配置的覆盖，零值表示沿用配置
type Overrides struct {
	Language        string
	IncludeMetadata *bool
	TopK            int
	ChunkSize       int
	ChunkOverlap    *int
}

// Builder 流水线构建器
// 字幕缓存在多次构建之间共享，向量索引和模型客户端每次重新创建
type Builder struct {
	cfg    *config.Config
	logger *logrus.Logger
	hooks  []services.Hook
	cache  cache.Cache
}

// NewBuilder 创建流水线构建器
func NewBuilder(cfg *config.Config, logger *logrus.Logger, hooks ...services.Hook) *Builder {
	if logger == nil {
		logger = logrus.New()
	}
	b := &Builder{
		cfg:    cfg,
		logger: logger,
		hooks:  hooks,
	}

	if cfg.Cache.Enable {
		c, err := cache.NewCache(cache.Config{
			Type:            cfg.Cache.Type,
			RedisAddr:       cfg.Cache.Address,
			RedisPassword:   cfg.Cache.Password,
			RedisDB:         cfg.Cache.DB,
			KeyPrefix:       cfg.Cache.KeyPrefix,
			DefaultTTL:      cfg.Cache.TTL,
			CleanupInterval: cache.DefaultConfig().CleanupInterval,
		})
		if err != nil {
			// 缓存只是加速，不可用时直接加载
			logger.WithError(err).Warn("Transcript cache unavailable, continuing without cache")
		} else {
			b.cache = c
		}
	}

	return b
}

// Build 创建一条新的流水线
func (b *Builder) Build(o Overrides) (*services.Pipeline, error) {
	splitter, err := b.newSplitter(o)
	if err != nil {
		return nil, err
	}

	embedder, err := b.newEmbedder()
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	llmClient, err := b.newLLM()
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}

	index, err := vectordb.NewRepository(vectordb.Config{
		Type:         b.cfg.VectorDB.Type,
		Dimension:    b.cfg.VectorDB.Dim,
		DistanceType: vectordb.DistanceType(b.cfg.VectorDB.Distance),
		IndexFactory: b.cfg.VectorDB.IndexFactory,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vector index: %w", err)
	}

	ragOptions := []llm.RAGOption{llm.WithMaxContextChars(b.cfg.LLM.MaxContextChars)}
	if b.cfg.LLM.Template != "" {
		ragOptions = append(ragOptions, llm.WithTemplate(b.cfg.LLM.Template))
	}

	loadOptions := document.LoadOptions{
		Language:        b.cfg.Loader.Language,
		IncludeMetadata: b.cfg.Loader.IncludeMetadata,
	}
	if o.Language != "" {
		loadOptions.Language = o.Language
	}
	if o.IncludeMetadata != nil {
		loadOptions.IncludeMetadata = *o.IncludeMetadata
	}

	topK := b.cfg.Search.Limit
	if o.TopK > 0 {
		topK = o.TopK
	}

	opts := []services.PipelineOption{
		services.WithLoadOptions(loadOptions),
		services.WithTopK(topK),
		services.WithBatchSize(b.cfg.Embed.BatchSize),
		services.WithMaxWorkers(b.cfg.Embed.MaxWorkers),
		services.WithLogger(b.logger),
		services.WithHooks(services.NewLogHook(b.logger)),
	}
	if len(b.hooks) > 0 {
		opts = append(opts, services.WithHooks(b.hooks...))
	}

	return services.NewPipeline(
		b.newLoader(),
		splitter,
		embedder,
		index,
		llm.NewRAG(llmClient, ragOptions...),
		opts...,
	), nil
}

// Close 释放共享资源
func (b *Builder) Close() error {
	if b.cache != nil {
		return b.cache.Close()
	}
	return nil
}

func (b *Builder) newLoader() document.Loader {
	// 本地文件优先于视频ID
	var loader document.Loader = document.NewMultiLoader(
		document.NewFileLoader(),
		document.NewYouTubeLoader(document.YouTubeConfig{
			BaseURL:   b.cfg.Loader.YouTubeBaseURL,
			Timeout:   b.cfg.Loader.Timeout,
			UserAgent: b.cfg.Loader.UserAgent,
		}),
	)
	if b.cache != nil {
		loader = document.NewCachingLoader(loader, b.cache, b.cfg.Cache.TTL, b.logger)
	}
	return loader
}

func (b *Builder) newSplitter(o Overrides) (document.Splitter, error) {
	splitCfg := document.DefaultSplitterConfig()
	splitCfg.ChunkSize = b.cfg.Document.ChunkSize
	splitCfg.ChunkOverlap = b.cfg.Document.ChunkOverlap
	if o.ChunkSize > 0 {
		splitCfg.ChunkSize = o.ChunkSize
	}
	if o.ChunkOverlap != nil {
		splitCfg.ChunkOverlap = *o.ChunkOverlap
	}
	splitter, err := document.NewRecursiveSplitter(splitCfg)
	if err != nil {
		return nil, err
	}
	return splitter, nil
}

func (b *Builder) newEmbedder() (embedding.Client, error) {
	ec := b.cfg.Embed
	return embedding.NewClient(ec.Provider,
		embedding.WithAPIKey(ec.APIKey),
		embedding.WithBaseURL(ec.Endpoint),
		embedding.WithModel(ec.Model),
		embedding.WithDimensions(ec.Dimensions),
		embedding.WithTimeout(ec.Timeout),
		embedding.WithMaxRetries(ec.MaxRetries),
		embedding.WithBatchSize(ec.BatchSize),
		embedding.WithMaxWorkers(ec.MaxWorkers),
		embedding.WithRateLimit(ec.RateLimit),
	)
}

func (b *Builder) newLLM() (llm.Client, error) {
	lc := b.cfg.LLM
	return llm.NewClient(lc.Provider,
		llm.WithAPIKey(lc.APIKey),
		llm.WithBaseURL(lc.Endpoint),
		llm.WithModel(lc.Model),
		llm.WithTimeout(lc.Timeout),
		llm.WithMaxTokens(lc.MaxTokens),
		llm.WithTemperature(lc.Temperature),
		llm.WithTopP(lc.TopP),
	)
}
