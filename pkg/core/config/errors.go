package config

import "errors"

// 配置验证相关错误
var (
	// ErrInvalidProvider LLM 提供商无效
	ErrInvalidProvider = errors.New("invalid LLM provider")
	// ErrLLMDisabled 未配置 LLM 提供商
	ErrLLMDisabled = errors.New("LLM provider not configured")
	// ErrInvalidTimeout 超时时间无效
	ErrInvalidTimeout = errors.New("invalid timeout value")
	// ErrInvalidMaxRetries 重试次数无效
	ErrInvalidMaxRetries = errors.New("invalid max retries value")
	// ErrInvalidTemperature 温度值无效
	ErrInvalidTemperature = errors.New("temperature must be between 0 and 2")
	// ErrInvalidMaxTokens Token 数无效
	ErrInvalidMaxTokens = errors.New("max tokens must not be negative")
	// ErrInvalidCadence 摘要节奏无效
	ErrInvalidCadence = errors.New("summary cadence must not be negative")
	// ErrInvalidTTL 缓存有效期无效
	ErrInvalidTTL = errors.New("invalid cache ttl")
	// ErrInvalidTopK 检索数量无效
	ErrInvalidTopK = errors.New("top_k must not be negative")
	// ErrInvalidNPC NPC 配置无效
	ErrInvalidNPC = errors.New("npc settings must not be negative")
	// ErrInvalidStore 存储类型无效
	ErrInvalidStore = errors.New("invalid store type")
	// ErrUnknownKey 未知配置项
	ErrUnknownKey = errors.New("unknown config key")
)
