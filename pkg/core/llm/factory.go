package llm

import (
	"fmt"
	"os"
	"strings"
)

// ProviderType 提供商类型
type ProviderType string

const (
	ProviderOpenAI   ProviderType = "openai"
	ProviderDeepSeek ProviderType = "deepseek"
	ProviderQwen     ProviderType = "qwen"
	ProviderOllama   ProviderType = "ollama"
	ProviderVLLM     ProviderType = "vllm"
)

// endpoint 兼容端点的默认值
type endpoint struct {
	baseURL    string
	model      string
	requireKey bool
}

var endpoints = map[ProviderType]endpoint{
	ProviderOpenAI:   {"", "gpt-4o-mini", true},
	ProviderDeepSeek: {"https://api.deepseek.com/v1", "deepseek-chat", true},
	ProviderQwen:     {"https://dashscope.aliyuncs.com/compatible-mode/v1", "qwen-turbo", true},
	ProviderOllama:   {"http://localhost:11434/v1", "llama3.2", false},
	ProviderVLLM:     {"http://localhost:8000/v1", "default", false},
}

// ProviderConfig 提供商配置
type ProviderConfig struct {
	// Type 提供商类型
	Type ProviderType `koanf:"type" json:"type" yaml:"type"`
	// APIKey API 密钥
	APIKey string `koanf:"api_key" json:"api_key" yaml:"api_key"`
	// BaseURL 基础 URL（可选）
	BaseURL string `koanf:"base_url" json:"base_url" yaml:"base_url"`
	// Model 模型名称
	Model string `koanf:"model" json:"model" yaml:"model"`
}

// New 按配置创建提供商
func New(cfg ProviderConfig, extra ...Option) (Provider, error) {
	ep, ok := endpoints[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}

	opts := []Option{WithModel(ep.model), WithBaseURL(ep.baseURL)}
	if cfg.APIKey != "" {
		opts = append(opts, WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model != "" {
		opts = append(opts, WithModel(cfg.Model))
	}
	opts = append(opts, extra...)

	return newCompatible(string(cfg.Type), ep.requireKey, opts...)
}

// FromEnv 从环境变量读取指定提供商的配置
//
// 读取 <TYPE>_API_KEY、<TYPE>_BASE_URL、<TYPE>_MODEL。
func FromEnv(providerType ProviderType) ProviderConfig {
	prefix := strings.ToUpper(string(providerType))
	return ProviderConfig{
		Type:    providerType,
		APIKey:  os.Getenv(prefix + "_API_KEY"),
		BaseURL: os.Getenv(prefix + "_BASE_URL"),
		Model:   os.Getenv(prefix + "_MODEL"),
	}
}

// AutoDetect 按 OpenAI -> DeepSeek -> Qwen -> Ollama -> vLLM 顺序检测环境变量
func AutoDetect() (Provider, error) {
	for _, t := range []ProviderType{ProviderOpenAI, ProviderDeepSeek, ProviderQwen} {
		if cfg := FromEnv(t); cfg.APIKey != "" {
			return New(cfg)
		}
	}
	for _, t := range []ProviderType{ProviderOllama, ProviderVLLM} {
		if cfg := FromEnv(t); cfg.BaseURL != "" {
			return New(cfg)
		}
	}
	return nil, fmt.Errorf("no LLM provider configured, set OPENAI_API_KEY, DEEPSEEK_API_KEY, QWEN_API_KEY, OLLAMA_BASE_URL, or VLLM_BASE_URL")
}
