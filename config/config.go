package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 TQA_LLM_MODEL 覆盖 llm.model
const EnvPrefix = "TQA"

// Config 应用程序配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Loader   LoaderConfig   `mapstructure:"loader"`
	Document DocumentConfig `mapstructure:"document"`
	Embed    EmbedConfig    `mapstructure:"embed"`
	LLM      LLMConfig      `mapstructure:"llm"`
	VectorDB VectorDBConfig `mapstructure:"vectordb"`
	Search   SearchConfig   `mapstructure:"search"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host           string        `mapstructure:"host"`                                     // 服务器主机
	Port           int           `mapstructure:"port" validate:"gte=1,lte=65535"`          // 服务器端口
	Mode           string        `mapstructure:"mode" validate:"oneof=debug release test"` // gin运行模式
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gte=0"`         // 单个问答请求的超时时间
	ReadTimeout    time.Duration `mapstructure:"read_timeout" validate:"gte=0"`            // 读取超时
}

// LoaderConfig 文档加载配置
type LoaderConfig struct {
	Language        string        `mapstructure:"language" validate:"required"`              // 字幕语言
	IncludeMetadata bool          `mapstructure:"include_metadata"`                          // 是否附带视频信息
	Timeout         time.Duration `mapstructure:"timeout" validate:"gte=0"`                  // 请求超时时间
	UserAgent       string        `mapstructure:"user_agent"`                                // 请求使用的User-Agent
	YouTubeBaseURL  string        `mapstructure:"youtube_base_url" validate:"omitempty,url"` // 视频站点地址，测试时可替换
}

// DocumentConfig 文档分段配置
type DocumentConfig struct {
	ChunkSize    int `mapstructure:"chunk_size" validate:"gt=0"`                       // 分块大小
	ChunkOverlap int `mapstructure:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"` // 分块重叠大小
}

// EmbedConfig 向量嵌入模型配置
type EmbedConfig struct {
	Provider   string        `mapstructure:"provider" validate:"oneof=ollama openai"` // 提供商
	Model      string        `mapstructure:"model"`                                   // 模型名称
	APIKey     string        `mapstructure:"api_key"`                                 // API密钥（如果需要）
	Endpoint   string        `mapstructure:"endpoint" validate:"omitempty,url"`       // API端点
	BatchSize  int           `mapstructure:"batch_size" validate:"gt=0"`              // 批处理大小
	MaxWorkers int           `mapstructure:"max_workers" validate:"gt=0"`             // 并行批次数
	Dimensions int           `mapstructure:"dimensions" validate:"gte=0"`             // 向量维度，0表示模型默认
	Timeout    time.Duration `mapstructure:"timeout" validate:"gte=0"`                // 单次调用超时
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0,lte=1"`      // 重试次数，最多一次
	RateLimit  float64       `mapstructure:"rate_limit" validate:"gte=0"`             // 每秒请求数，0表示不限制
}

// LLMConfig 大语言模型配置
type LLMConfig struct {
	Provider        string        `mapstructure:"provider" validate:"oneof=ollama openai"` // 提供商
	Model           string        `mapstructure:"model"`                                   // 模型名称
	APIKey          string        `mapstructure:"api_key"`                                 // API密钥
	Endpoint        string        `mapstructure:"endpoint" validate:"omitempty,url"`       // API端点
	MaxTokens       int           `mapstructure:"max_tokens" validate:"gte=0"`             // 最大生成token数量
	Temperature     float32       `mapstructure:"temperature" validate:"gte=0,lte=2"`      // 采样温度
	TopP            float32       `mapstructure:"top_p" validate:"gte=0,lte=1"`            // 核采样阈值
	Timeout         time.Duration `mapstructure:"timeout" validate:"gte=0"`                // 等待输出的最长空闲时间
	MaxContextChars int           `mapstructure:"max_context_chars" validate:"gte=0"`      // 提示词中上下文的最大字符数
	Template        string        `mapstructure:"template"`                                // 自定义系统提示词模板
}

// VectorDBConfig 向量索引配置
type VectorDBConfig struct {
	Type         string `mapstructure:"type" validate:"oneof=memory faiss"`   // 索引类型
	Dim          int    `mapstructure:"dim" validate:"gte=0"`                 // 向量维度，0表示由第一次写入决定
	Distance     string `mapstructure:"distance" validate:"oneof=cosine dot"` // 相似度度量方式
	IndexFactory string `mapstructure:"index_factory"`                        // faiss索引描述
}

// SearchConfig 检索配置
type SearchConfig struct {
	Limit int `mapstructure:"limit" validate:"gt=0"` // 检索结果数量
}

// CacheConfig 字幕缓存配置
type CacheConfig struct {
	Enable    bool          `mapstructure:"enable"`                             // 是否启用缓存
	Type      string        `mapstructure:"type" validate:"oneof=memory redis"` // 缓存类型
	Address   string        `mapstructure:"address"`                            // Redis地址
	Password  string        `mapstructure:"password"`                           // Redis密码
	DB        int           `mapstructure:"db" validate:"gte=0"`                // Redis数据库
	TTL       time.Duration `mapstructure:"ttl" validate:"gte=0"`               // 缓存有效期
	KeyPrefix string        `mapstructure:"key_prefix"`                         // Redis键前缀
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=trace debug info warn error"` // 日志级别
	Format     string `mapstructure:"format" validate:"oneof=json text"`                  // 日志格式
	File       string `mapstructure:"file"`                                               // 日志文件，为空时输出到标准错误
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`                       // 单个日志文件大小
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`                       // 保留的旧文件数
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`                      // 旧文件保留天数
	Compress   bool   `mapstructure:"compress"`                                           // 是否压缩旧文件
}

// Load 从文件和环境变量加载配置
// configPath为空或文件不存在时只使用默认值和环境变量
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// 支持环境变量覆盖
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			logrus.WithField("path", configPath).Warn("Config file not found, using defaults")
		} else {
			logrus.WithField("path", v.ConfigFileUsed()).Debug("Using config file")
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	processEnvironmentVariables(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// processEnvironmentVariables 展开形如 ${VAR} 的配置值
func processEnvironmentVariables(cfg *Config) {
	for _, field := range []*string{
		&cfg.Embed.APIKey,
		&cfg.Embed.Endpoint,
		&cfg.LLM.APIKey,
		&cfg.LLM.Endpoint,
		&cfg.Cache.Address,
		&cfg.Cache.Password,
	} {
		*field = expandEnv(*field)
	}
}

// expandEnv 整个值为 ${VAR} 时替换为环境变量，变量未设置时保持原值
func expandEnv(value string) string {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return value
	}
	if envVal := os.Getenv(value[2 : len(value)-1]); envVal != "" {
		return envVal
	}
	return value
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.request_timeout", "5m")
	v.SetDefault("server.read_timeout", "30s")

	// 文档加载默认配置
	v.SetDefault("loader.language", "en")
	v.SetDefault("loader.include_metadata", true)
	v.SetDefault("loader.timeout", "30s")
	v.SetDefault("loader.user_agent", "")
	v.SetDefault("loader.youtube_base_url", "")

	// 文档分段默认配置
	v.SetDefault("document.chunk_size", 2000)
	v.SetDefault("document.chunk_overlap", 400)

	// Embedding默认配置
	v.SetDefault("embed.provider", "ollama")
	v.SetDefault("embed.model", "all-minilm:l6-v2")
	v.SetDefault("embed.api_key", "")
	v.SetDefault("embed.endpoint", "")
	v.SetDefault("embed.batch_size", 16)
	v.SetDefault("embed.max_workers", 4)
	v.SetDefault("embed.dimensions", 0)
	v.SetDefault("embed.timeout", "30s")
	v.SetDefault("embed.max_retries", 1)
	v.SetDefault("embed.rate_limit", 0)

	// LLM默认配置
	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.model", "llama2")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.endpoint", "")
	v.SetDefault("llm.max_tokens", 0)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.top_p", 0.9)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_context_chars", 12000)
	v.SetDefault("llm.template", "")

	// 向量索引默认配置
	v.SetDefault("vectordb.type", "memory")
	v.SetDefault("vectordb.dim", 0)
	v.SetDefault("vectordb.distance", "cosine")
	v.SetDefault("vectordb.index_factory", "HNSW32")

	// 检索默认配置
	v.SetDefault("search.limit", 4)

	// 缓存默认配置
	v.SetDefault("cache.enable", false)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.key_prefix", "tqa:")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", false)
}
