package llm

import (
	"context"
	"net/http"
	"time"
)

// Client 大模型客户端接口
// 负责处理与大语言模型的交互，任何调用都不会自动重试
type Client interface {
	// Generate 根据提示词生成回答
	Generate(ctx context.Context, prompt string, options ...ChatOption) (*Response, error)

	// Chat 进行多轮对话，等待完整回答
	Chat(ctx context.Context, messages []Message, options ...ChatOption) (*Response, error)

	// ChatStream 进行多轮对话，以流的形式逐段返回回答
	// 调用方必须读到io.EOF或调用Close释放连接
	ChatStream(ctx context.Context, messages []Message, options ...ChatOption) (*Stream, error)

	// Name 返回模型名称
	Name() string
}

// Config 大模型客户端配置
type Config struct {
	APIKey      string        // API密钥
	BaseURL     string        // API基础URL
	Model       string        // 模型名称
	Timeout     time.Duration // 等待响应或两段输出之间的最长时间
	MaxTokens   int           // 最大生成Token数，0表示使用模型默认值
	Temperature float32       // 采样温度(0.0-2.0)
	TopP        float32       // 核采样概率阈值(0.0-1.0)
	HTTPClient  *http.Client  // 自定义HTTP客户端（可选）
}

// DefaultConfig 返回默认配置
// BaseURL和Model为空时由各后端使用自己的默认值
func DefaultConfig() *Config {
	return &Config{
		Timeout:     60 * time.Second,
		Temperature: 0.7,
		TopP:        0.9,
	}
}

// Option 客户端配置选项函数类型
type Option func(*Config)

// WithAPIKey 设置API密钥
func WithAPIKey(apiKey string) Option {
	return func(c *Config) {
		c.APIKey = apiKey
	}
}

// WithBaseURL 设置API基础URL
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithModel 设置模型名称
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithTimeout 设置请求超时时间
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithMaxTokens 设置最大生成Token数
func WithMaxTokens(tokens int) Option {
	return func(c *Config) {
		c.MaxTokens = tokens
	}
}

// WithTemperature 设置采样温度
func WithTemperature(temp float32) Option {
	return func(c *Config) {
		c.Temperature = temp
	}
}

// WithTopP 设置核采样概率阈值
func WithTopP(topP float32) Option {
	return func(c *Config) {
		c.TopP = topP
	}
}

// WithHTTPClient 设置自定义HTTP客户端
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// NewConfig 创建一个新的配置并应用选项
func NewConfig(opts ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// ChatOption 单次请求的选项
type ChatOption func(*ChatOptions)

// ChatOptions 单次请求的选项集合，未设置的字段使用客户端配置
type ChatOptions struct {
	MaxTokens   *int     // 最大生成Token数
	Temperature *float32 // 采样温度
	TopP        *float32 // 核采样概率阈值
	TopK        *int     // 生成候选集大小（仅Ollama）
}

// WithChatMaxTokens 设置请求的最大Token数
func WithChatMaxTokens(tokens int) ChatOption {
	return func(o *ChatOptions) {
		o.MaxTokens = &tokens
	}
}

// WithChatTemperature 设置请求的采样温度
func WithChatTemperature(temp float32) ChatOption {
	return func(o *ChatOptions) {
		o.Temperature = &temp
	}
}

// WithChatTopP 设置请求的核采样概率阈值
func WithChatTopP(topP float32) ChatOption {
	return func(o *ChatOptions) {
		o.TopP = &topP
	}
}

// WithChatTopK 设置请求的候选集大小
func WithChatTopK(topK int) ChatOption {
	return func(o *ChatOptions) {
		o.TopK = &topK
	}
}

// resolveOptions 合并客户端配置与请求选项
func resolveOptions(cfg *Config, options []ChatOption) ChatOptions {
	opts := ChatOptions{
		Temperature: &cfg.Temperature,
		TopP:        &cfg.TopP,
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		opts.MaxTokens = &maxTokens
	}
	for _, opt := range options {
		opt(&opts)
	}
	return opts
}

// collect 读完整个流，组装为完整回答
func collect(stream *Stream, model string) (*Response, error) {
	defer stream.Close()

	text, err := stream.Drain(nil)
	if err != nil {
		return nil, err
	}
	return &Response{
		Text:       text,
		ModelName:  model,
		FinishTime: time.Now(),
	}, nil
}

// Factory 大模型客户端工厂函数类型
type Factory func(opts ...Option) (Client, error)

// 全局注册的大模型客户端工厂函数
var clientFactories = make(map[string]Factory)

// RegisterClient 注册大模型客户端工厂函数
func RegisterClient(name string, factory Factory) {
	clientFactories[name] = factory
}

// NewClient 根据名称创建大模型客户端
func NewClient(name string, opts ...Option) (Client, error) {
	factory, exists := clientFactories[name]
	if !exists {
		return nil, NewGenerationError(
			ErrCodeInvalidRequest,
			"llm client type not registered: "+name)
	}
	return factory(opts...)
}
