package document

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/transcript-qa/internal/cache"
)

// CachingLoader 带缓存的加载器
// 缓存读写失败只记录警告，不影响加载结果
type CachingLoader struct {
	next   Loader
	cache  cache.Cache
	ttl    time.Duration
	logger *logrus.Logger
}

// NewCachingLoader 创建带缓存的加载器
func NewCachingLoader(next Loader, c cache.Cache, ttl time.Duration, logger *logrus.Logger) *CachingLoader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CachingLoader{
		next:   next,
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
}

// Name 返回被包装加载器的名称
func (c *CachingLoader) Name() string {
	return c.next.Name()
}

// Supports 判断是否能处理该来源
func (c *CachingLoader) Supports(source string) bool {
	return c.next.Supports(source)
}

// Load 先查缓存，未命中时调用被包装的加载器并写入缓存
func (c *CachingLoader) Load(ctx context.Context, source string, opts LoadOptions) ([]Document, error) {
	key := cache.GenerateCacheKey("transcript", opts.Language, strconv.FormatBool(opts.IncludeMetadata), source)
	log := c.logger.WithFields(logrus.Fields{
		"source": source,
		"loader": c.next.Name(),
	})

	if raw, found, err := c.cache.Get(ctx, key); err != nil {
		log.WithError(err).Warn("Failed to read transcript cache")
	} else if found {
		var docs []Document
		if err := json.Unmarshal([]byte(raw), &docs); err == nil {
			log.Debug("Transcript cache hit")
			return docs, nil
		}
		log.Warn("Discarding malformed transcript cache entry")
	}

	docs, err := c.next.Load(ctx, source, opts)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(docs)
	if err != nil {
		log.WithError(err).Warn("Failed to encode documents for cache")
		return docs, nil
	}
	if err := c.cache.Set(ctx, key, string(data), c.ttl); err != nil {
		log.WithError(err).Warn("Failed to write transcript cache")
	}
	return docs, nil
}
