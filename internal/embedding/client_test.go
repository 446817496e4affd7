package embedding

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.Equal(t, 16, cfg.BatchSize)

	cfg = NewConfig(
		WithModel("m"),
		WithBaseURL("http://example"),
		WithMaxRetries(3),
		WithBatchSize(-1),
		WithTimeout(0),
		WithDimensions(384),
		WithMaxWorkers(2),
	)
	assert.Equal(t, "m", cfg.Model)
	assert.Equal(t, "http://example", cfg.BaseURL)
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.Equal(t, 16, cfg.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 384, cfg.Dimensions)
	assert.Equal(t, 2, cfg.MaxWorkers)

	assert.Equal(t, 0, NewConfig(WithMaxRetries(-2)).MaxRetries)
}

func TestNewClientRegistry(t *testing.T) {
	client, err := NewClient("ollama", WithModel("nomic-embed-text"))
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", client.Name())

	client, err = NewClient("openai", WithAPIKey("key"))
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, client)

	_, err = NewClient("unknown")
	var embErr *EmbeddingError
	require.True(t, errors.As(err, &embErr))
	assert.Equal(t, ErrCodeInvalidRequest, embErr.Code)
}

func TestErrorHelpers(t *testing.T) {
	timeout := wrapError(ErrCodeTimeout, ErrMsgTimeout, errors.New("deadline"))
	assert.True(t, IsTimeout(timeout))
	assert.True(t, IsUnavailable(timeout))
	assert.True(t, isRetryable(timeout))
	assert.Contains(t, timeout.Error(), "deadline")

	invalid := NewEmbeddingError(ErrCodeInvalidRequest, ErrMsgInvalidRequest)
	assert.False(t, IsTimeout(invalid))
	assert.False(t, IsUnavailable(invalid))
	assert.False(t, isRetryable(invalid))

	assert.False(t, IsTimeout(errors.New("plain")))
}
