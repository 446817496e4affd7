package document

import (
	"context"
	"errors"
)

var (
	// ErrUnsupportedSource 没有加载器能处理该来源
	ErrUnsupportedSource = errors.New("unsupported source")
	// ErrNoTranscript 视频没有可用的字幕
	ErrNoTranscript = errors.New("no transcript available")
	// ErrEmptyContent 加载到的文本为空
	ErrEmptyContent = errors.New("document has no text content")
)

// Loader 文档加载器接口
// 根据来源标识（视频URL、文件路径）获取原始文本及元数据
type Loader interface {
	// Load 加载来源对应的文档，失败时返回LoadError
	Load(ctx context.Context, source string, opts LoadOptions) ([]Document, error)

	// Supports 判断是否能处理该来源
	Supports(source string) bool

	// Name 返回加载器名称
	Name() string
}

// MultiLoader 按顺序把来源分派给第一个支持它的加载器
type MultiLoader struct {
	loaders []Loader
}

// NewMultiLoader 创建组合加载器
func NewMultiLoader(loaders ...Loader) *MultiLoader {
	return &MultiLoader{loaders: loaders}
}

// Name 返回加载器名称
func (m *MultiLoader) Name() string {
	return "multi"
}

// Supports 任一子加载器支持即可
func (m *MultiLoader) Supports(source string) bool {
	return m.resolve(source) != nil
}

// Load 加载文档
func (m *MultiLoader) Load(ctx context.Context, source string, opts LoadOptions) ([]Document, error) {
	loader := m.resolve(source)
	if loader == nil {
		return nil, &LoadError{Source: source, Err: ErrUnsupportedSource}
	}
	return loader.Load(ctx, source, opts)
}

func (m *MultiLoader) resolve(source string) Loader {
	for _, l := range m.loaders {
		if l.Supports(source) {
			return l
		}
	}
	return nil
}
