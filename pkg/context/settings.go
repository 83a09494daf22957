package context

import (
	"fmt"
	"slices"
	"sync"
)

// ChangeFunc 在配置变更后被调用，参数为新配置的快照。
type ChangeFunc func(cfg BudgetConfig)

// Settings 持有会话内的 BudgetConfig。
//
// 单写多读：变更只通过显式的修改方法进行，读者通过 Snapshot 获取副本。
type Settings struct {
	cfg       BudgetConfig
	listeners []ChangeFunc
	mu        sync.RWMutex
}

// NewSettings 使用给定配置创建 Settings。
func NewSettings(cfg BudgetConfig) *Settings {
	if cfg.Components == nil {
		cfg.Components = make(map[ComponentName]ComponentConfig)
	}
	return &Settings{cfg: cfg.Normalize()}
}

// Snapshot 返回当前配置的深拷贝。
func (s *Settings) Snapshot() BudgetConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// OnChange 注册变更监听器。
func (s *Settings) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// update 在写锁内修改配置，释放锁后通知监听器。
func (s *Settings) update(fn func(cfg *BudgetConfig) error) error {
	s.mu.Lock()
	next := s.cfg.Clone()
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.cfg = next.Normalize()
	snapshot := s.cfg.Clone()
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
	return nil
}

// Replace 整体替换配置。
func (s *Settings) Replace(cfg BudgetConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return s.update(func(c *BudgetConfig) error {
		*c = cfg.Clone()
		return nil
	})
}

// SetContextTarget 设置总体软上限。
func (s *Settings) SetContextTarget(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: context target %d", ErrInvalidBudget, n)
	}
	return s.update(func(c *BudgetConfig) error {
		c.ContextTarget = n
		return nil
	})
}

// SetCushion 设置安全余量。
func (s *Settings) SetCushion(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: cushion %d", ErrInvalidBudget, n)
	}
	return s.update(func(c *BudgetConfig) error {
		c.Cushion = n
		return nil
	})
}

// SetReserve 设置回复预留。
func (s *Settings) SetReserve(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: reserve %d", ErrInvalidBudget, n)
	}
	return s.update(func(c *BudgetConfig) error {
		c.Reserve = n
		return nil
	})
}

// SetEnabled 启用或禁用组件。
func (s *Settings) SetEnabled(name ComponentName, enabled bool) error {
	return s.updateComponent(name, func(cc *ComponentConfig) {
		cc.Enabled = enabled
	})
}

// SetMaxTokens 设置组件上限。
func (s *Settings) SetMaxTokens(name ComponentName, n int) error {
	if n < 0 {
		return fmt.Errorf("%w: %s max tokens %d", ErrInvalidBudget, name, n)
	}
	return s.updateComponent(name, func(cc *ComponentConfig) {
		cc.MaxTokens = n
	})
}

// SetSticky 设置组件是否常驻。
func (s *Settings) SetSticky(name ComponentName, sticky bool) error {
	return s.updateComponent(name, func(cc *ComponentConfig) {
		cc.Sticky = sticky
	})
}

func (s *Settings) updateComponent(name ComponentName, fn func(cc *ComponentConfig)) error {
	return s.update(func(c *BudgetConfig) error {
		cc, ok := c.Components[name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownComponent, name)
		}
		fn(&cc)
		c.Components[name] = cc
		return nil
	})
}

// SetDegradeOrder 设置降级顺序，名称必须是已配置的组件且不可重复。
func (s *Settings) SetDegradeOrder(order []ComponentName) error {
	return s.update(func(c *BudgetConfig) error {
		c.DegradeOrder = slices.Clone(order)
		return c.Validate()
	})
}

// ApplyProfile 应用命名档位。
func (s *Settings) ApplyProfile(name string) error {
	return s.update(func(c *BudgetConfig) error {
		applied, err := ApplyProfile(*c, name)
		if err != nil {
			return err
		}
		*c = applied
		return nil
	})
}
