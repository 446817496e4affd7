package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// DefaultSystemTemplate 默认系统提示词模板
// 包含变量：
// {{.Context}} - 检索的上下文
const DefaultSystemTemplate = "Answer the user's question based on the sources below:\n\n{{.Context}}"

// StrictSystemTemplate 要求严格基于来源回答的模板
const StrictSystemTemplate = `You are a question answering assistant. Answer the user's question using only the numbered sources below.
If the sources do not contain enough information, say so instead of guessing. Cite sources as [n].

Sources:
{{.Context}}`

// NoContextAnswer 没有检索到任何上下文时的固定回答
const NoContextAnswer = "I could not find any relevant information in the indexed source to answer this question."

// DefaultMaxContextChars 上下文最大字符数
const DefaultMaxContextChars = 12000

// RAGConfig 检索增强生成配置
type RAGConfig struct {
	// 系统提示词模板
	Template string
	// 上下文最大字符数，按编号块从尾部截断
	MaxContextChars int
	// 最大Token数，0表示使用模型默认值
	MaxTokens int
	// 温度参数，nil表示使用客户端配置
	Temperature *float32
	// 是否带上引用来源
	IncludeSources bool
}

// DefaultRAGConfig 默认RAG配置
func DefaultRAGConfig() *RAGConfig {
	return &RAGConfig{
		Template:        DefaultSystemTemplate,
		MaxContextChars: DefaultMaxContextChars,
		IncludeSources:  true,
	}
}

// RAGOption RAG配置选项函数类型
type RAGOption func(*RAGConfig)

// WithTemplate 设置系统提示词模板
func WithTemplate(template string) RAGOption {
	return func(c *RAGConfig) {
		c.Template = template
	}
}

// WithStrictAnswers 使用严格模板
func WithStrictAnswers() RAGOption {
	return func(c *RAGConfig) {
		c.Template = StrictSystemTemplate
	}
}

// WithMaxContextChars 设置上下文最大字符数
func WithMaxContextChars(n int) RAGOption {
	return func(c *RAGConfig) {
		c.MaxContextChars = n
	}
}

// WithRAGMaxTokens 设置最大Token数
func WithRAGMaxTokens(tokens int) RAGOption {
	return func(c *RAGConfig) {
		c.MaxTokens = tokens
	}
}

// WithRAGTemperature 设置温度参数
func WithRAGTemperature(temp float32) RAGOption {
	return func(c *RAGConfig) {
		c.Temperature = &temp
	}
}

// WithSources 设置是否包含引用来源
func WithSources(include bool) RAGOption {
	return func(c *RAGConfig) {
		c.IncludeSources = include
	}
}

// RAGService 实现检索增强生成服务
type RAGService struct {
	Client Client       // 大模型客户端
	config *RAGConfig   // 配置
	mu     sync.RWMutex // 配置互斥锁
}

// NewRAG 创建新的检索增强生成服务
func NewRAG(client Client, opts ...RAGOption) *RAGService {
	cfg := DefaultRAGConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return &RAGService{
		Client: client,
		config: cfg,
	}
}

// AnswerStream 根据上下文和问题生成流式回答
// contexts为空时返回固定回答，不调用大模型
func (r *RAGService) AnswerStream(ctx context.Context, question string, contexts []string) (*Stream, error) {
	if strings.TrimSpace(question) == "" {
		return nil, NewGenerationError(ErrCodeEmptyPrompt, "question cannot be empty")
	}

	cfg := r.snapshot()
	blocks := boundContext(contexts, cfg.MaxContextChars)
	if len(blocks) == 0 {
		return NewStaticStream(NoContextAnswer), nil
	}

	messages := BuildMessages(cfg.Template, question, blocks)

	var options []ChatOption
	if cfg.MaxTokens > 0 {
		options = append(options, WithChatMaxTokens(cfg.MaxTokens))
	}
	if cfg.Temperature != nil {
		options = append(options, WithChatTemperature(*cfg.Temperature))
	}

	return r.Client.ChatStream(ctx, messages, options...)
}

// Answer 根据上下文和问题生成完整回答
func (r *RAGService) Answer(ctx context.Context, question string, contexts []string) (*RAGResponse, error) {
	stream, err := r.AnswerStream(ctx, question, contexts)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	text, err := stream.Drain(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate response: %w", err)
	}

	ragResponse := &RAGResponse{
		Answer: text,
	}

	cfg := r.snapshot()
	if cfg.IncludeSources {
		blocks := boundContext(contexts, cfg.MaxContextChars)
		sources := make([]SourceReference, len(blocks))
		for i, block := range blocks {
			sources[i] = SourceReference{
				ID:      fmt.Sprintf("%d", i+1),
				Content: block,
			}
		}
		ragResponse.Sources = sources
	}

	return ragResponse, nil
}

// SetTemplate 设置自定义提示词模板
func (r *RAGService) SetTemplate(template string) *RAGService {
	r.mu.Lock()
	r.config.Template = template
	r.mu.Unlock()
	return r
}

func (r *RAGService) snapshot() RAGConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *r.config
}

// BuildMessages 构建系统消息和用户消息
func BuildMessages(template, question string, contexts []string) []Message {
	system := strings.ReplaceAll(template, "{{.Context}}", formatContext(contexts))
	system = strings.ReplaceAll(system, "{{.Question}}", question)

	return []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: question},
	}
}

// formatContext 格式化上下文内容
func formatContext(contexts []string) string {
	var formattedContext strings.Builder
	for i, ctx := range contexts {
		if i > 0 {
			formattedContext.WriteString("\n\n")
		}
		formattedContext.WriteString(fmt.Sprintf("[%d] %s", i+1, ctx))
	}
	return formattedContext.String()
}

// boundContext 跳过空白块，并将总字符数限制在maxChars以内
// 超出部分从尾部丢弃，最后一个放得下的块按字符截断
func boundContext(contexts []string, maxChars int) []string {
	blocks := make([]string, 0, len(contexts))
	used := 0
	for _, ctx := range contexts {
		if strings.TrimSpace(ctx) == "" {
			continue
		}
		if maxChars <= 0 {
			blocks = append(blocks, ctx)
			continue
		}

		remaining := maxChars - used
		if remaining <= 0 {
			break
		}
		runes := []rune(ctx)
		if len(runes) > remaining {
			blocks = append(blocks, string(runes[:remaining]))
			break
		}
		blocks = append(blocks, ctx)
		used += len(runes)
	}
	return blocks
}
