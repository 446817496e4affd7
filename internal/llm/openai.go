package llm

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = openai.GPT4oMini

// OpenAIClient OpenAI兼容接口的对话客户端
type OpenAIClient struct {
	client *openai.Client
	model  string
	config *Config
}

// NewOpenAIClient 创建OpenAI对话客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewGenerationError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		config: cfg,
	}, nil
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.model
}

// Generate 根据提示词生成回答
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, options ...ChatOption) (*Response, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, NewGenerationError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}
	return c.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}}, options...)
}

// Chat 进行多轮对话，等待完整回答
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, options ...ChatOption) (*Response, error) {
	stream, err := c.ChatStream(ctx, messages, options...)
	if err != nil {
		return nil, err
	}
	return collect(stream, c.model)
}

// ChatStream 发起流式对话
func (c *OpenAIClient) ChatStream(ctx context.Context, messages []Message, options ...ChatOption) (*Stream, error) {
	if len(messages) == 0 {
		return nil, NewGenerationError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}

	opts := resolveOptions(c.config, options)
	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: make([]openai.ChatCompletionMessage, len(messages)),
		Stream:   true,
	}
	for i, msg := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: string(msg.Role), Content: msg.Content}
	}
	if opts.MaxTokens != nil {
		req.MaxTokens = *opts.MaxTokens
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.TopP != nil {
		req.TopP = *opts.TopP
	}

	streamCtx, cancel := context.WithCancel(ctx)
	dog := startWatchdog(c.config.Timeout, cancel)

	stream, err := c.client.CreateChatCompletionStream(streamCtx, req)
	if err != nil {
		dog.stop()
		cancel()
		return nil, classifyError(ctx, dog, classifyOpenAIError(err))
	}

	dog.reset()
	return newStream(ctx, &openaiSource{stream: stream}, dog, cancel), nil
}

// openaiSource 读取SSE增量
type openaiSource struct {
	stream *openai.ChatCompletionStream
}

func (s *openaiSource) next() (string, error) {
	resp, err := s.stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Delta.Content, nil
}

func (s *openaiSource) close() error {
	return s.stream.Close()
}

// classifyOpenAIError 将go-openai的错误转换为大模型错误
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return statusError(apiErr.HTTPStatusCode, apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return statusError(reqErr.HTTPStatusCode, reqErr.Error())
	}
	return err
}

func init() {
	RegisterClient("openai", NewOpenAIClient)
}
