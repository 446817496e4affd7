package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434"
	defaultOllamaModel   = "llama2"
)

// ollamaChatRequest /api/chat 请求结构
type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

// ollamaChatChunk 流式响应中的一行
type ollamaChatChunk struct {
	Model   string  `json:"model"`
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

// OllamaClient 本地Ollama服务的对话客户端
type OllamaClient struct {
	endpoint   string
	model      string
	config     *Config
	httpClient *http.Client
}

// NewOllamaClient 创建Ollama对话客户端
func NewOllamaClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}

	// 超时由看门狗控制，流式响应不能设置整体超时
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &OllamaClient{
		endpoint:   baseURL + "/api/chat",
		model:      model,
		config:     cfg,
		httpClient: httpClient,
	}, nil
}

// Name 返回模型名称
func (c *OllamaClient) Name() string {
	return c.model
}

// Generate 根据提示词生成回答
func (c *OllamaClient) Generate(ctx context.Context, prompt string, options ...ChatOption) (*Response, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, NewGenerationError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}
	return c.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}}, options...)
}

// Chat 进行多轮对话，等待完整回答
func (c *OllamaClient) Chat(ctx context.Context, messages []Message, options ...ChatOption) (*Response, error) {
	stream, err := c.ChatStream(ctx, messages, options...)
	if err != nil {
		return nil, err
	}
	return collect(stream, c.model)
}

// ChatStream 发起流式对话
func (c *OllamaClient) ChatStream(ctx context.Context, messages []Message, options ...ChatOption) (*Stream, error) {
	if len(messages) == 0 {
		return nil, NewGenerationError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}

	jsonData, err := json.Marshal(ollamaChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
		Options:  ollamaOptions(resolveOptions(c.config, options)),
	})
	if err != nil {
		return nil, WrapError(err, ErrCodeInvalidRequest, "failed to marshal request")
	}

	streamCtx, cancel := context.WithCancel(ctx)
	dog := startWatchdog(c.config.Timeout, cancel)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodPost, c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		dog.stop()
		cancel()
		return nil, WrapError(err, ErrCodeInvalidRequest, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		dog.stop()
		cancel()
		return nil, classifyError(ctx, dog, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		dog.stop()
		defer cancel()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		message := strings.TrimSpace(string(body))
		var chunk ollamaChatChunk
		if jsonErr := json.Unmarshal(body, &chunk); jsonErr == nil && chunk.Error != "" {
			message = chunk.Error
		}
		return nil, statusError(resp.StatusCode, message)
	}

	dog.reset()
	src := &ollamaSource{
		body: resp.Body,
		dec:  json.NewDecoder(resp.Body),
	}
	return newStream(ctx, src, dog, cancel), nil
}

// ollamaOptions 转换为Ollama的options字段
func ollamaOptions(opts ChatOptions) map[string]any {
	result := make(map[string]any)
	if opts.Temperature != nil {
		result["temperature"] = *opts.Temperature
	}
	if opts.TopP != nil {
		result["top_p"] = *opts.TopP
	}
	if opts.TopK != nil {
		result["top_k"] = *opts.TopK
	}
	if opts.MaxTokens != nil {
		result["num_predict"] = *opts.MaxTokens
	}
	return result
}

// ollamaSource 逐行解析NDJSON响应
type ollamaSource struct {
	body io.ReadCloser
	dec  *json.Decoder
	done bool
}

func (s *ollamaSource) next() (string, error) {
	if s.done {
		return "", io.EOF
	}

	var chunk ollamaChatChunk
	if err := s.dec.Decode(&chunk); err != nil {
		if err == io.EOF {
			// 没有收到done标记就结束，回答不完整
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	if chunk.Error != "" {
		return "", NewGenerationError(ErrCodeServerError, fmt.Sprintf("stream error: %s", chunk.Error))
	}
	if chunk.Done {
		s.done = true
	}
	return chunk.Message.Content, nil
}

func (s *ollamaSource) close() error {
	return s.body.Close()
}

func init() {
	RegisterClient("ollama", NewOllamaClient)
}
