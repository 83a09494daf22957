package config

import "time"

// SummaryConfig 滚动摘要配置
type SummaryConfig struct {
	// Every 每隔多少个用户回合生成一次摘要
	// 默认: 6
	Every int `koanf:"every" yaml:"every,omitempty"`
	// Window 送入模型的最近消息条数
	// 默认: 20
	Window int `koanf:"window" yaml:"window,omitempty"`
	// Collection 摘要保存的文档集合
	Collection string `koanf:"collection" yaml:"collection,omitempty"`
}

// Validate 验证摘要配置
func (c *SummaryConfig) Validate() error {
	if c.Every < 0 || c.Window < 0 {
		return ErrInvalidCadence
	}
	return nil
}

// WithDefaults 返回带默认值的配置
func (c SummaryConfig) WithDefaults() SummaryConfig {
	if c.Every == 0 {
		c.Every = 6
	}
	if c.Window == 0 {
		c.Window = 20
	}
	if c.Collection == "" {
		c.Collection = "summaries"
	}
	return c
}

// ManifestConfig 世界清单配置
type ManifestConfig struct {
	// Source 清单地址，http(s) URL 或本地文件路径，为空表示不加载
	Source string `koanf:"source" yaml:"source,omitempty"`
	// TTL 缓存有效期
	// 默认: 60s
	TTL time.Duration `koanf:"ttl" yaml:"ttl,omitempty"`
	// Timeout 拉取超时
	// 默认: 10s
	Timeout time.Duration `koanf:"timeout" yaml:"timeout,omitempty"`
}

// Validate 验证清单配置
func (c *ManifestConfig) Validate() error {
	if c.TTL < 0 {
		return ErrInvalidTTL
	}
	if c.Timeout < 0 {
		return ErrInvalidTimeout
	}
	return nil
}

// WithDefaults 返回带默认值的配置
func (c ManifestConfig) WithDefaults() ManifestConfig {
	if c.TTL == 0 {
		c.TTL = 60 * time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}

// RetrievalConfig 检索配置
type RetrievalConfig struct {
	// TopK 保留的片段数
	// 默认: 2
	TopK int `koanf:"top_k" yaml:"top_k,omitempty"`
	// Sources 知识库文件或目录（.md, .txt, .yaml）
	Sources []string `koanf:"sources" yaml:"sources,omitempty"`
}

// Validate 验证检索配置
func (c *RetrievalConfig) Validate() error {
	if c.TopK < 0 {
		return ErrInvalidTopK
	}
	return nil
}

// WithDefaults 返回带默认值的配置
func (c RetrievalConfig) WithDefaults() RetrievalConfig {
	if c.TopK == 0 {
		c.TopK = 2
	}
	return c
}

// NPCConfig NPC 记忆配置
type NPCConfig struct {
	// Window 提及后视为在场的时长
	// 默认: 10m
	Window time.Duration `koanf:"window" yaml:"window,omitempty"`
	// MaxPresent 同时在场的 NPC 上限
	// 默认: 3
	MaxPresent int `koanf:"max_present" yaml:"max_present,omitempty"`
	// MaxFacts 每个 NPC 渲染的最近事实条数
	// 默认: 3
	MaxFacts int `koanf:"max_facts" yaml:"max_facts,omitempty"`
	// ScanMessages 扫描提及时回看的消息条数
	// 默认: 6
	ScanMessages int `koanf:"scan_messages" yaml:"scan_messages,omitempty"`
}

// Validate 验证 NPC 配置
func (c *NPCConfig) Validate() error {
	if c.Window < 0 || c.MaxPresent < 0 || c.MaxFacts < 0 || c.ScanMessages < 0 {
		return ErrInvalidNPC
	}
	return nil
}

// WithDefaults 返回带默认值的配置
func (c NPCConfig) WithDefaults() NPCConfig {
	if c.Window == 0 {
		c.Window = 10 * time.Minute
	}
	if c.MaxPresent == 0 {
		c.MaxPresent = 3
	}
	if c.MaxFacts == 0 {
		c.MaxFacts = 3
	}
	if c.ScanMessages == 0 {
		c.ScanMessages = 6
	}
	return c
}
