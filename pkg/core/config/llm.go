package config

import (
	"time"

	"github.com/easyops/storyctx/pkg/core/llm"
)

// LLMConfig 摘要器使用的 LLM 配置
type LLMConfig struct {
	// Provider 提供商（openai, deepseek, qwen, ollama, vllm），为空表示不启用摘要
	Provider llm.ProviderType `koanf:"provider" yaml:"provider,omitempty"`
	// Model 模型名称，为空时使用提供商默认模型
	Model string `koanf:"model" yaml:"model,omitempty"`
	// APIKey API 密钥
	APIKey string `koanf:"api_key" yaml:"api_key,omitempty"`
	// BaseURL 自定义 API 端点
	BaseURL string `koanf:"base_url" yaml:"base_url,omitempty"`
	// Timeout 请求超时时间
	// 默认: 30s, 最大: 5m
	Timeout time.Duration `koanf:"timeout" yaml:"timeout,omitempty"`
	// MaxRetries 最大重试次数
	// 默认: 2, 最大: 10
	MaxRetries int `koanf:"max_retries" yaml:"max_retries,omitempty"`
	// RetryDelay 重试间隔基数
	// 默认: 500ms
	RetryDelay time.Duration `koanf:"retry_delay" yaml:"retry_delay,omitempty"`
	// Temperature 温度参数
	// 默认: 0.3, 范围: [0, 2]
	Temperature float64 `koanf:"temperature" yaml:"temperature,omitempty"`
	// MaxTokens 摘要最大输出 token 数
	// 默认: 512
	MaxTokens int `koanf:"max_tokens" yaml:"max_tokens,omitempty"`
}

// Enabled 是否配置了提供商
func (c *LLMConfig) Enabled() bool {
	return c.Provider != ""
}

// Validate 验证 LLM 配置
func (c *LLMConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	switch c.Provider {
	case llm.ProviderOpenAI, llm.ProviderDeepSeek, llm.ProviderQwen, llm.ProviderOllama, llm.ProviderVLLM:
	default:
		return ErrInvalidProvider
	}
	if c.Timeout < 0 {
		return ErrInvalidTimeout
	}
	if c.Timeout > 5*time.Minute {
		c.Timeout = 5 * time.Minute
	}
	if c.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}
	if c.MaxRetries > 10 {
		c.MaxRetries = 10
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return ErrInvalidTemperature
	}
	if c.MaxTokens < 0 {
		return ErrInvalidMaxTokens
	}
	return nil
}

// WithDefaults 返回带默认值的配置
func (c LLMConfig) WithDefaults() LLMConfig {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.Temperature == 0 {
		c.Temperature = 0.3
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 512
	}
	return c
}

// ProviderConfig 转换为 llm.ProviderConfig
func (c LLMConfig) ProviderConfig() llm.ProviderConfig {
	return llm.ProviderConfig{
		Type:    c.Provider,
		APIKey:  c.APIKey,
		BaseURL: c.BaseURL,
		Model:   c.Model,
	}
}

// Options 返回客户端选项
func (c LLMConfig) Options() []llm.Option {
	return []llm.Option{
		llm.WithTimeout(c.Timeout),
		llm.WithMaxRetries(c.MaxRetries),
		llm.WithRetryDelay(c.RetryDelay),
		llm.WithTemperature(c.Temperature),
		llm.WithMaxTokens(c.MaxTokens),
	}
}

// NewProvider 按配置创建 LLM 提供商
func (c LLMConfig) NewProvider() (llm.Provider, error) {
	if !c.Enabled() {
		return nil, ErrLLMDisabled
	}
	cfg := c.WithDefaults()
	return llm.New(cfg.ProviderConfig(), cfg.Options()...)
}
