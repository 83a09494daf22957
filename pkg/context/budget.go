package context

import (
	"fmt"
	"slices"
)

// ComponentName 标识一个上下文组件。
type ComponentName string

// 内置组件名称
const (
	ComponentGuard        ComponentName = "guard"
	ComponentHeader       ComponentName = "header"
	ComponentCombatHeader ComponentName = "combat_header"
	ComponentPrimer       ComponentName = "primer"
	ComponentSummary      ComponentName = "summary"
	ComponentRetrieval    ComponentName = "retrieval"
	ComponentNPC          ComponentName = "npc"
)

// KnownComponents 返回所有内置组件名称。
func KnownComponents() []ComponentName {
	return []ComponentName{
		ComponentGuard,
		ComponentHeader,
		ComponentCombatHeader,
		ComponentPrimer,
		ComponentSummary,
		ComponentRetrieval,
		ComponentNPC,
	}
}

// ComponentConfig 单个组件的预算配置。
type ComponentConfig struct {
	// Enabled 是否启用
	Enabled bool `koanf:"enabled" yaml:"enabled" json:"enabled"`
	// MaxTokens 组件最多可申请的 Token 数
	MaxTokens int `koanf:"max_tokens" yaml:"max_tokens" json:"maxTokens"`
	// Sticky 为 true 时在任何降级组件之前全额扣除，只能被禁用而不会被挤掉
	Sticky bool `koanf:"sticky" yaml:"sticky" json:"sticky"`
}

// BudgetConfig 上下文窗口的预算配置。
type BudgetConfig struct {
	// ContextTarget 总体软上限
	ContextTarget int `koanf:"context_target" yaml:"context_target" json:"contextTarget"`
	// Cushion 吸收估算误差的安全余量
	Cushion int `koanf:"cushion" yaml:"cushion" json:"cushion"`
	// Reserve 为模型回复保留的余量
	Reserve int `koanf:"reserve" yaml:"reserve" json:"reserve"`
	// Components 各组件配置
	Components map[ComponentName]ComponentConfig `koanf:"components" yaml:"components" json:"components"`
	// DegradeOrder 预算紧张时的降级顺序
	DegradeOrder []ComponentName `koanf:"degrade_order" yaml:"degrade_order" json:"degradeOrder"`
}

// Limit 返回 max(0, ContextTarget - Cushion - Reserve)。
func (c BudgetConfig) Limit() int {
	n := c.Normalize()
	return max(0, n.ContextTarget-n.Cushion-n.Reserve)
}

// Component 返回组件配置；未配置的组件视为禁用。
func (c BudgetConfig) Component(name ComponentName) ComponentConfig {
	return c.Components[name]
}

// Clone 返回深拷贝。
func (c BudgetConfig) Clone() BudgetConfig {
	out := c
	out.Components = make(map[ComponentName]ComponentConfig, len(c.Components))
	for k, v := range c.Components {
		out.Components[k] = v
	}
	out.DegradeOrder = slices.Clone(c.DegradeOrder)
	return out
}

// Normalize 将负数字段钳制为 0，并去掉降级顺序中的重复项。
func (c BudgetConfig) Normalize() BudgetConfig {
	out := c.Clone()
	out.ContextTarget = max(0, out.ContextTarget)
	out.Cushion = max(0, out.Cushion)
	out.Reserve = max(0, out.Reserve)
	for k, v := range out.Components {
		v.MaxTokens = max(0, v.MaxTokens)
		out.Components[k] = v
	}

	seen := make(map[ComponentName]bool, len(out.DegradeOrder))
	order := out.DegradeOrder[:0]
	for _, name := range out.DegradeOrder {
		if seen[name] {
			continue
		}
		seen[name] = true
		order = append(order, name)
	}
	out.DegradeOrder = order
	return out
}

// Validate 校验配置。Allocator 本身对非法输入是容错的，
// 这里用于在配置命令处尽早给出提示。
func (c BudgetConfig) Validate() error {
	if c.ContextTarget < 0 || c.Cushion < 0 || c.Reserve < 0 {
		return fmt.Errorf("%w: budget numbers must be non-negative", ErrInvalidBudget)
	}
	for name, cc := range c.Components {
		if cc.MaxTokens < 0 {
			return fmt.Errorf("%w: %s max_tokens must be non-negative", ErrInvalidBudget, name)
		}
	}
	seen := make(map[ComponentName]bool, len(c.DegradeOrder))
	for _, name := range c.DegradeOrder {
		if _, ok := c.Components[name]; !ok {
			return fmt.Errorf("%w: %q in degrade order", ErrUnknownComponent, name)
		}
		if seen[name] {
			return fmt.Errorf("%w: %q listed twice in degrade order", ErrInvalidBudget, name)
		}
		seen[name] = true
	}
	return nil
}

// DefaultBudgetConfig 返回 balanced 档位的默认配置。
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		ContextTarget: 2000,
		Cushion:       200,
		Reserve:       200,
		Components: map[ComponentName]ComponentConfig{
			ComponentGuard:        {Enabled: true, MaxTokens: 60, Sticky: true},
			ComponentHeader:       {Enabled: true, MaxTokens: 120, Sticky: true},
			ComponentCombatHeader: {Enabled: true, MaxTokens: 120, Sticky: true},
			ComponentPrimer:       {Enabled: true, MaxTokens: 600},
			ComponentSummary:      {Enabled: true, MaxTokens: 300},
			ComponentRetrieval:    {Enabled: true, MaxTokens: 300},
			ComponentNPC:          {Enabled: true, MaxTokens: 400},
		},
		DegradeOrder: []ComponentName{
			ComponentRetrieval,
			ComponentNPC,
			ComponentSummary,
			ComponentPrimer,
		},
	}
}

// PartialComponentConfig 是组件配置的可选覆盖。
type PartialComponentConfig struct {
	Enabled   *bool `koanf:"enabled" yaml:"enabled,omitempty"`
	MaxTokens *int  `koanf:"max_tokens" yaml:"max_tokens,omitempty"`
	Sticky    *bool `koanf:"sticky" yaml:"sticky,omitempty"`
}

// PartialBudgetConfig 是来自文件或环境变量的部分配置，nil 表示未设置。
type PartialBudgetConfig struct {
	ContextTarget *int                                     `koanf:"context_target" yaml:"context_target,omitempty"`
	Cushion       *int                                     `koanf:"cushion" yaml:"cushion,omitempty"`
	Reserve       *int                                     `koanf:"reserve" yaml:"reserve,omitempty"`
	Profile       string                                   `koanf:"profile" yaml:"profile,omitempty"`
	Components    map[ComponentName]PartialComponentConfig `koanf:"components" yaml:"components,omitempty"`
	DegradeOrder  []ComponentName                          `koanf:"degrade_order" yaml:"degrade_order,omitempty"`
}

// MergeDefaults 将部分配置合并到默认值上并归一化。
//
// 合并顺序：默认值 -> Profile 档位 -> 显式字段。未知 Profile 被忽略。
// 该函数是纯函数，不读取任何全局状态。
func MergeDefaults(partial PartialBudgetConfig) BudgetConfig {
	cfg := DefaultBudgetConfig()

	if partial.Profile != "" {
		if applied, err := ApplyProfile(cfg, partial.Profile); err == nil {
			cfg = applied
		}
	}

	if partial.ContextTarget != nil {
		cfg.ContextTarget = *partial.ContextTarget
	}
	if partial.Cushion != nil {
		cfg.Cushion = *partial.Cushion
	}
	if partial.Reserve != nil {
		cfg.Reserve = *partial.Reserve
	}

	for name, pc := range partial.Components {
		cc := cfg.Components[name]
		if pc.Enabled != nil {
			cc.Enabled = *pc.Enabled
		}
		if pc.MaxTokens != nil {
			cc.MaxTokens = *pc.MaxTokens
		}
		if pc.Sticky != nil {
			cc.Sticky = *pc.Sticky
		}
		cfg.Components[name] = cc
	}

	if partial.DegradeOrder != nil {
		cfg.DegradeOrder = slices.Clone(partial.DegradeOrder)
	}

	return cfg.Normalize()
}
