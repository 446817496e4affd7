package embedding

import (
	"context"
	"errors"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// defaultRetryBackoff 重试前的等待时间
const defaultRetryBackoff = 200 * time.Millisecond

// caller 封装单次后端调用的超时、限流和重试
type caller struct {
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	limiter    *rate.Limiter
}

// newCaller 根据配置创建调用器
func newCaller(cfg *Config) *caller {
	c := &caller{
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		backoff:    defaultRetryBackoff,
	}
	if cfg.RateLimit > 0 {
		burst := int(math.Ceil(cfg.RateLimit))
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c
}

// do 执行调用，暂时性错误最多重试maxRetries次
func (c *caller) do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return contextError(ctx.Err())
			case <-time.After(c.backoff):
			}
		}

		if c.limiter != nil {
			if werr := c.limiter.Wait(ctx); werr != nil {
				return wrapError(ErrCodeCanceled, ErrMsgCanceled, werr)
			}
		}

		err = c.attempt(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
	}
	return err
}

// attempt 在独立的超时上下文中执行一次调用并归类错误，timeout为0时不限制
func (c *caller) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	attemptCtx, cancel := ctx, context.CancelFunc(func() {})
	if c.timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
	}
	defer cancel()

	err := fn(attemptCtx)
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		return contextError(ctx.Err())
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return wrapError(ErrCodeTimeout, ErrMsgTimeout, err)
	}

	var embErr *EmbeddingError
	if errors.As(err, &embErr) {
		return err
	}
	return wrapError(ErrCodeNetworkError, ErrMsgNetworkError, err)
}

// contextError 将上下文错误转换为嵌入错误
func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return wrapError(ErrCodeTimeout, ErrMsgTimeout, err)
	}
	return wrapError(ErrCodeCanceled, ErrMsgCanceled, err)
}
