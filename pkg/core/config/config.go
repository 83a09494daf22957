// Package config 提供配置加载和管理功能
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	agentctx "github.com/easyops/storyctx/pkg/context"
	"github.com/easyops/storyctx/pkg/memory/store"
	"github.com/easyops/storyctx/pkg/otel"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "STORYCTX_"

// DefaultPath 默认配置文件路径
const DefaultPath = "storyctx.yaml"

// Config 全局配置结构
type Config struct {
	// Budget 上下文预算（部分配置，合并到默认值上）
	Budget agentctx.PartialBudgetConfig `koanf:"budget" yaml:"budget,omitempty"`
	// LLM 摘要器使用的 LLM 配置
	LLM LLMConfig `koanf:"llm" yaml:"llm,omitempty"`
	// Summary 滚动摘要配置
	Summary SummaryConfig `koanf:"summary" yaml:"summary,omitempty"`
	// Manifest 世界清单配置
	Manifest ManifestConfig `koanf:"manifest" yaml:"manifest,omitempty"`
	// Retrieval 检索配置
	Retrieval RetrievalConfig `koanf:"retrieval" yaml:"retrieval,omitempty"`
	// NPC NPC 记忆配置
	NPC NPCConfig `koanf:"npc" yaml:"npc,omitempty"`
	// Store 存储配置
	Store store.Config `koanf:"store" yaml:"store,omitempty"`
	// Observability 可观测性配置
	Observability otel.Config `koanf:"observability" yaml:"observability,omitempty"`
}

// sections 顶层配置节，用于校验 config set 的键
var sections = map[string]bool{
	"budget":        true,
	"llm":           true,
	"summary":       true,
	"manifest":      true,
	"retrieval":     true,
	"npc":           true,
	"store":         true,
	"observability": true,
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Store:         store.DefaultConfig(),
		Observability: otel.DefaultConfig(),
	}
}

// BudgetConfig 返回合并默认值后的预算配置
func (c *Config) BudgetConfig() agentctx.BudgetConfig {
	return agentctx.MergeDefaults(c.Budget)
}

// Validate 验证配置
func (c *Config) Validate() error {
	if err := c.BudgetConfig().Validate(); err != nil {
		return err
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.Summary.Validate(); err != nil {
		return fmt.Errorf("summary: %w", err)
	}
	if err := c.Manifest.Validate(); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	if err := c.Retrieval.Validate(); err != nil {
		return fmt.Errorf("retrieval: %w", err)
	}
	if err := c.NPC.Validate(); err != nil {
		return fmt.Errorf("npc: %w", err)
	}
	if err := validateStore(c.Store); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	return nil
}

func validateStore(cfg store.Config) error {
	switch cfg.Documents {
	case "", store.StoreTypeMemory, store.StoreTypeSQLite:
	default:
		return fmt.Errorf("%w: documents=%s", ErrInvalidStore, cfg.Documents)
	}
	switch cfg.Graph {
	case "", store.StoreTypeMemory, store.StoreTypeNeo4j:
	default:
		return fmt.Errorf("%w: graph=%s", ErrInvalidStore, cfg.Graph)
	}
	return nil
}

// Loader 配置加载器
type Loader struct {
	k *koanf.Koanf
}

// NewLoader 创建配置加载器
func NewLoader() *Loader {
	return &Loader{
		k: koanf.New("."),
	}
}

// LoadFile 从 YAML 文件加载配置，文件不存在时不报错
func (l *Loader) LoadFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := l.k.Load(File(path), YAML()); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// LoadEnv 从环境变量加载配置
//
// 双下划线分隔层级：STORYCTX_BUDGET__CONTEXT_TARGET -> budget.context_target。
// 列表类型的值用逗号分隔。
func (l *Loader) LoadEnv(prefix string) error {
	return l.k.Load(env.ProviderWithValue(prefix, ".", func(key, value string) (string, interface{}) {
		key = strings.ToLower(strings.TrimPrefix(key, prefix))
		key = strings.ReplaceAll(key, "__", ".")
		if strings.Contains(value, ",") {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			return key, parts
		}
		return key, value
	}), nil)
}

// Unmarshal 解析配置到结构体，未设置的字段保留原值
func (l *Loader) Unmarshal(cfg *Config) error {
	return l.k.Unmarshal("", cfg)
}

// Get 获取配置值
func (l *Loader) Get(key string) interface{} {
	return l.k.Get(key)
}

// GetString 获取字符串配置值
func (l *Loader) GetString(key string) string {
	return l.k.String(key)
}

// GetInt 获取整数配置值
func (l *Loader) GetInt(key string) int {
	return l.k.Int(key)
}

// GetBool 获取布尔配置值
func (l *Loader) GetBool(key string) bool {
	return l.k.Bool(key)
}

// GetDuration 获取时间间隔配置值
func (l *Loader) GetDuration(key string) time.Duration {
	return l.k.Duration(key)
}

// Keys 返回所有已设置的键（已排序）
func (l *Loader) Keys() []string {
	return l.k.Keys()
}

// Load 加载完整配置（默认值 -> 文件 -> 环境变量）
func Load(configPath string) (*Config, error) {
	loader := NewLoader()

	if configPath != "" {
		if err := loader.LoadFile(configPath); err != nil {
			return nil, err
		}
	}

	// 环境变量优先级更高
	if err := loader.LoadEnv(EnvPrefix); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := loader.Unmarshal(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults 应用默认配置值
func applyDefaults(cfg *Config) {
	cfg.Summary = cfg.Summary.WithDefaults()
	cfg.Manifest = cfg.Manifest.WithDefaults()
	cfg.Retrieval = cfg.Retrieval.WithDefaults()
	cfg.NPC = cfg.NPC.WithDefaults()
	cfg.Observability = cfg.Observability.WithDefaults()
	if cfg.Store.Documents == "" {
		cfg.Store.Documents = store.StoreTypeMemory
	}
}

// Set 修改配置文件中的单个键并写回
//
// 值按 YAML 解析（"3000" 为整数，"[a, b]" 为列表）。写入前会校验整份配置，
// 校验失败时文件保持不变。
func Set(path, key, raw string) error {
	section, _, _ := strings.Cut(key, ".")
	if !sections[section] {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	loader := NewLoader()
	if err := loader.LoadFile(path); err != nil {
		return err
	}
	if err := loader.k.Set(key, parseValue(raw)); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}

	cfg := Default()
	if err := loader.Unmarshal(cfg); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := loader.k.Marshal(YAML())
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// SaveBudget 把预算配置整体写入配置文件的 budget 节
func SaveBudget(path string, cfg agentctx.BudgetConfig) error {
	loader := NewLoader()
	if err := loader.LoadFile(path); err != nil {
		return err
	}

	components := make(map[string]interface{}, len(cfg.Components))
	for name, cc := range cfg.Components {
		components[string(name)] = map[string]interface{}{
			"enabled":    cc.Enabled,
			"max_tokens": cc.MaxTokens,
			"sticky":     cc.Sticky,
		}
	}
	order := make([]interface{}, 0, len(cfg.DegradeOrder))
	for _, name := range cfg.DegradeOrder {
		order = append(order, string(name))
	}

	loader.k.Delete("budget")
	budget := map[string]interface{}{
		"context_target": cfg.ContextTarget,
		"cushion":        cfg.Cushion,
		"reserve":        cfg.Reserve,
		"components":     components,
		"degrade_order":  order,
	}
	if err := loader.k.Set("budget", budget); err != nil {
		return err
	}

	data, err := loader.k.Marshal(YAML())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
