package context

// Prediction 是组件在一次运行中的预测结果。
type Prediction struct {
	// Name 组件名称
	Name ComponentName
	// Tokens 预测成本（已按 MaxTokens 截顶，禁用组件为 0）
	Tokens int
	// Text 候选文本
	Text string
	// Meta 观测用的附加数据（检索命中、在场 NPC 等）
	Meta map[string]any
	// Err 预测失败的原因；失败的预测视为 0 成本、空文本
	Err error
}

// Allocation 是一次分配的结果。
type Allocation struct {
	// Limit 可用预算
	Limit int `json:"limit"`
	// TotalAllocated 所有已授予额度之和
	TotalAllocated int `json:"totalAllocated"`
	// Remaining 分配结束后剩余的预算
	Remaining int `json:"remaining"`
	// Allowance 各组件获得的额度
	Allowance map[ComponentName]int `json:"allowance"`
	// Partial 获得部分额度的组件，没有则为空
	Partial ComponentName `json:"partial,omitempty"`
}

// Allocator 将预测转换为各组件的额度。
type Allocator interface {
	Allocate(cfg BudgetConfig, predictions []Prediction) Allocation
}

// AllocatorFunc 适配普通函数为 Allocator。
type AllocatorFunc func(cfg BudgetConfig, predictions []Prediction) Allocation

// Allocate 实现 Allocator。
func (f AllocatorFunc) Allocate(cfg BudgetConfig, predictions []Prediction) Allocation {
	return f(cfg, predictions)
}

// DegradeAllocator 是默认的分配器：常驻组件优先全额，其余按降级顺序贪心分配。
type DegradeAllocator struct{}

// NewDegradeAllocator 创建 DegradeAllocator。
func NewDegradeAllocator() *DegradeAllocator {
	return &DegradeAllocator{}
}

// Allocate 实现 Allocator。
func (a *DegradeAllocator) Allocate(cfg BudgetConfig, predictions []Prediction) Allocation {
	return Allocate(cfg, predictions)
}

// Allocate 计算每个组件的 Token 额度。
//
//  1. limit = max(0, ContextTarget - Cushion - Reserve)
//  2. 每个预测钳制为 min(预测, MaxTokens)，禁用组件为 0
//  3. 启用的常驻组件无条件全额授予
//  4. remaining = max(0, limit - 常驻合计)
//  5. 按 DegradeOrder 依次处理启用的非常驻组件：放得下则全额，
//     放不下且 remaining > 0 则授予 remaining（部分额度）并将 remaining 置 0，否则为 0
//  6. 不在 DegradeOrder 中的非常驻组件为 0
//
// 部分额度只给第一个放不下的组件，不做背包式的最优装箱。
func Allocate(cfg BudgetConfig, predictions []Prediction) Allocation {
	cfg = cfg.Normalize()
	limit := max(0, cfg.ContextTarget-cfg.Cushion-cfg.Reserve)

	cost := make(map[ComponentName]int, len(predictions))
	order := make([]ComponentName, 0, len(predictions))
	for _, p := range predictions {
		if _, dup := cost[p.Name]; dup {
			continue
		}
		order = append(order, p.Name)
		cost[p.Name] = clampedCost(cfg.Component(p.Name), p.Tokens)
	}

	alloc := Allocation{
		Limit:     limit,
		Allowance: make(map[ComponentName]int, len(order)),
	}
	for _, name := range order {
		alloc.Allowance[name] = 0
	}

	total := 0
	for _, name := range order {
		cc := cfg.Component(name)
		if !cc.Enabled || !cc.Sticky {
			continue
		}
		alloc.Allowance[name] = cost[name]
		total += cost[name]
	}

	remaining := max(0, limit-total)
	for _, name := range cfg.DegradeOrder {
		c, ok := cost[name]
		if !ok {
			continue
		}
		cc := cfg.Component(name)
		if !cc.Enabled || cc.Sticky {
			continue
		}

		switch {
		case c <= remaining:
			alloc.Allowance[name] = c
			remaining -= c
		case c > 0 && remaining > 0:
			alloc.Allowance[name] = remaining
			alloc.Partial = name
			remaining = 0
		default:
			alloc.Allowance[name] = 0
		}
	}

	for _, v := range alloc.Allowance {
		alloc.TotalAllocated += v
	}
	alloc.Remaining = remaining
	return alloc
}

// clampedCost 返回 min(预测, MaxTokens)，禁用组件为 0。
func clampedCost(cc ComponentConfig, predicted int) int {
	if !cc.Enabled {
		return 0
	}
	return min(max(0, predicted), cc.MaxTokens)
}

// 编译时接口检查
var _ Allocator = (*DegradeAllocator)(nil)
var _ Allocator = AllocatorFunc(nil)
