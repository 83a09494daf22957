package context

import (
	"context"
)

// Candidate 是生产者在一次运行中给出的候选片段。
type Candidate struct {
	// Text 候选文本，空串表示本轮没有内容
	Text string
	// Meta 观测用的附加数据
	Meta map[string]any
}

// Producer 是一类上下文片段的来源。
//
// Predict 在每次运行中被调用一次，耗时的 I/O（拉取清单、检索、查询存储）都在这里完成。
// 同一次运行中多个生产者可能被并发调用，实现需自行保证内部缓存的并发安全。
type Producer interface {
	// Name 返回组件名称，对应 BudgetConfig.Components 的键
	Name() ComponentName
	// Predict 生成候选片段
	Predict(ctx context.Context) (Candidate, error)
}

// ProducerFunc 适配普通函数为 Producer。
type ProducerFunc struct {
	name ComponentName
	fn   func(ctx context.Context) (Candidate, error)
}

// NewProducerFunc 创建 ProducerFunc。
func NewProducerFunc(name ComponentName, fn func(ctx context.Context) (Candidate, error)) *ProducerFunc {
	return &ProducerFunc{name: name, fn: fn}
}

// Name 实现 Producer。
func (p *ProducerFunc) Name() ComponentName { return p.name }

// Predict 实现 Producer。
func (p *ProducerFunc) Predict(ctx context.Context) (Candidate, error) { return p.fn(ctx) }

// StaticText 返回固定文本的生产者，多用于测试和预览。
func StaticText(name ComponentName, text string) Producer {
	return NewProducerFunc(name, func(context.Context) (Candidate, error) {
		return Candidate{Text: text}, nil
	})
}

// Component 是组件在某一配置快照下的视图。
type Component struct {
	name ComponentName
	cfg  ComponentConfig
}

// ComponentOf 返回 name 在 cfg 下的组件视图。
func ComponentOf(cfg BudgetConfig, name ComponentName) Component {
	return Component{name: name, cfg: cfg.Component(name)}
}

// Name 返回组件名称。
func (c Component) Name() ComponentName { return c.name }

// IsEnabled 组件是否启用。
func (c Component) IsEnabled() bool { return c.cfg.Enabled }

// IsSticky 组件是否常驻。
func (c Component) IsSticky() bool { return c.cfg.Sticky }

// MaxTokens 组件可申请的最大额度。
func (c Component) MaxTokens() int { return c.cfg.MaxTokens }

// 编译时接口检查
var _ Producer = (*ProducerFunc)(nil)
