package embedding

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
	defaultOllamaModel   = "all-minilm:l6-v2"
)

// ollamaEmbedRequest /api/embed 请求结构
type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// ollamaEmbedResponse /api/embed 响应结构
type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// OllamaClient 本地Ollama服务的嵌入客户端
type OllamaClient struct {
	endpoint   string       // 完整的 /api/embed 地址
	model      string       // 模型名称
	dimensions int          // 期望的向量维度
	httpClient *http.Client // HTTP客户端
	caller     *caller      // 超时、限流与重试
}

// NewOllamaClient 创建Ollama嵌入客户端
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

	// 超时由每次调用的上下文控制
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &OllamaClient{
		endpoint:   baseURL + "/api/embed",
		model:      model,
		dimensions: cfg.Dimensions,
		httpClient: httpClient,
		caller:     newCaller(cfg),
	}, nil
}

// Name 返回模型名称
func (c *OllamaClient) Name() string {
	return c.model
}

// Embed 生成单条文本的向量表示
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 批量生成文本的向量表示
func (c *OllamaClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := checkInputs(texts); err != nil {
		return nil, err
	}

	var resp ollamaEmbedResponse
	err := c.caller.do(ctx, func(ctx context.Context) error {
		resp = ollamaEmbedResponse{}
		return c.post(ctx, ollamaEmbedRequest{Model: c.model, Input: texts}, &resp)
	})
	if err != nil {
		return nil, err
	}

	if err := checkVectors(resp.Embeddings, len(texts), c.dimensions); err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}

// post 发送请求并解析响应
func (c *OllamaClient) post(ctx context.Context, reqData ollamaEmbedRequest, respObj *ollamaEmbedResponse) error {
	jsonData, err := json.Marshal(reqData)
	if err != nil {
		return wrapError(ErrCodeInvalidRequest, "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return wrapError(ErrCodeInvalidRequest, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		message := strings.TrimSpace(string(body))
		var errResp ollamaEmbedResponse
		if jsonErr := json.Unmarshal(body, &errResp); jsonErr == nil && errResp.Error != "" {
			message = errResp.Error
		}
		return statusError(resp.StatusCode, message)
	}

	if err := json.Unmarshal(body, respObj); err != nil {
		return wrapError(ErrCodeBadResponse, "failed to parse response", err)
	}
	if respObj.Error != "" {
		return NewEmbeddingError(ErrCodeServerError, respObj.Error)
	}
	return nil
}

// statusError 根据HTTP状态码生成嵌入错误
func statusError(status int, message string) *EmbeddingError {
	msg := fmt.Sprintf("API error (status %d): %s", status, message)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewEmbeddingError(ErrCodeInvalidAPIKey, msg)
	case status == http.StatusNotFound:
		return NewEmbeddingError(ErrCodeModelNotFound, msg)
	case status == http.StatusTooManyRequests:
		return NewEmbeddingError(ErrCodeRateLimited, msg)
	case status >= 500:
		return NewEmbeddingError(ErrCodeServerError, msg)
	default:
		return NewEmbeddingError(ErrCodeInvalidRequest, msg)
	}
}

// checkInputs 拒绝空文本
func checkInputs(texts []string) error {
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return NewEmbeddingError(ErrCodeEmptyInput, fmt.Sprintf("%s (index %d)", ErrMsgEmptyInput, i))
		}
	}
	return nil
}

// checkVectors 校验向量数量与维度
func checkVectors(vectors [][]float32, want, dimensions int) error {
	if len(vectors) != want {
		return NewEmbeddingError(ErrCodeBadResponse,
			fmt.Sprintf("expected %d embeddings, got %d", want, len(vectors)))
	}
	for i, vec := range vectors {
		if len(vec) == 0 {
			return NewEmbeddingError(ErrCodeBadResponse, fmt.Sprintf("empty embedding at index %d", i))
		}
		if dimensions > 0 && len(vec) != dimensions {
			return NewEmbeddingError(ErrCodeBadResponse,
				fmt.Sprintf("embedding dimension mismatch at index %d: expected %d, got %d", i, dimensions, len(vec)))
		}
		if len(vec) != len(vectors[0]) {
			return NewEmbeddingError(ErrCodeBadResponse,
				fmt.Sprintf("inconsistent embedding dimensions: %d and %d", len(vectors[0]), len(vec)))
		}
	}
	return nil
}

func init() {
	RegisterClient("ollama", NewOllamaClient)
}
