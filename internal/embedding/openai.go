package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "text-embedding-3-small"

// OpenAIClient OpenAI兼容接口的嵌入客户端
type OpenAIClient struct {
	client     *openai.Client // OpenAI API客户端
	model      string         // 使用的嵌入模型
	dimensions int            // 向量维度
	caller     *caller        // 超时、限流与重试
}

// NewOpenAIClient 创建一个新的OpenAI嵌入客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
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
		client:     openai.NewClientWithConfig(clientConfig),
		model:      model,
		dimensions: cfg.Dimensions,
		caller:     newCaller(cfg),
	}, nil
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.model
}

// Embed 对单个文本生成嵌入向量
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 对多个文本生成嵌入向量
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := checkInputs(texts); err != nil {
		return nil, err
	}

	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(c.model),
		Dimensions: c.dimensions,
	}

	var resp openai.EmbeddingResponse
	err := c.caller.do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = c.client.CreateEmbeddings(ctx, req)
		return classifyOpenAIError(err)
	})
	if err != nil {
		return nil, err
	}

	// 按返回的index还原输入顺序
	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, NewEmbeddingError(ErrCodeBadResponse, fmt.Sprintf("embedding index %d out of range", data.Index))
		}
		vectors[data.Index] = data.Embedding
	}
	if len(resp.Data) != len(texts) {
		return nil, NewEmbeddingError(ErrCodeBadResponse,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
	}

	if err := checkVectors(vectors, len(texts), c.dimensions); err != nil {
		return nil, err
	}
	return vectors, nil
}

// classifyOpenAIError 将go-openai的错误转换为嵌入错误
// 无状态码的错误原样返回，由调用器归类为网络错误或超时
func classifyOpenAIError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError(apiErr.HTTPStatusCode, apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		if reqErr.HTTPStatusCode == http.StatusOK {
			return wrapError(ErrCodeBadResponse, "failed to parse response", reqErr.Err)
		}
		return statusError(reqErr.HTTPStatusCode, reqErr.Error())
	}
	return err
}

func init() {
	RegisterClient("openai", NewOpenAIClient)
}
