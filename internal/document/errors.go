package document

import "fmt"

// ConfigError 分段参数错误
// 在处理任何文本之前返回
type ConfigError struct {
	Field   string // 出错的配置项
	Message string // 错误描述
}

// Error 实现error接口
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid splitter config (%s): %s", e.Field, e.Message)
}

// LoadError 文档加载错误
// 来源不存在、网络错误、不支持的来源类型都会包装为该错误
type LoadError struct {
	Source string // 来源标识
	Err    error  // 原始错误
}

// Error 实现error接口
func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %q: %v", e.Source, e.Err)
}

// Unwrap 返回原始错误
func (e *LoadError) Unwrap() error {
	return e.Err
}

// newLoadError 创建加载错误，已经是LoadError的直接返回
func newLoadError(source string, err error) error {
	if le, ok := err.(*LoadError); ok {
		return le
	}
	return &LoadError{Source: source, Err: err}
}
