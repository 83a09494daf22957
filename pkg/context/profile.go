package context

import (
	"fmt"
	"sort"
	"strings"
)

// Profile 是一组预设的预算数值。
type Profile struct {
	Name          string
	ContextTarget int
	Cushion       int
	Reserve       int
	MaxTokens     map[ComponentName]int
}

var profiles = map[string]Profile{
	"lean": {
		Name:          "lean",
		ContextTarget: 1000,
		Cushion:       100,
		Reserve:       150,
		MaxTokens: map[ComponentName]int{
			ComponentGuard:        40,
			ComponentHeader:       80,
			ComponentCombatHeader: 80,
			ComponentPrimer:       250,
			ComponentSummary:      150,
			ComponentRetrieval:    120,
			ComponentNPC:          150,
		},
	},
	"balanced": {
		Name:          "balanced",
		ContextTarget: 2000,
		Cushion:       200,
		Reserve:       200,
		MaxTokens: map[ComponentName]int{
			ComponentGuard:        60,
			ComponentHeader:       120,
			ComponentCombatHeader: 120,
			ComponentPrimer:       600,
			ComponentSummary:      300,
			ComponentRetrieval:    300,
			ComponentNPC:          400,
		},
	},
	"rich": {
		Name:          "rich",
		ContextTarget: 4000,
		Cushion:       300,
		Reserve:       400,
		MaxTokens: map[ComponentName]int{
			ComponentGuard:        80,
			ComponentHeader:       160,
			ComponentCombatHeader: 160,
			ComponentPrimer:       1200,
			ComponentSummary:      600,
			ComponentRetrieval:    600,
			ComponentNPC:          800,
		},
	},
}

// LookupProfile 按名称（大小写不敏感）查找档位。
func LookupProfile(name string) (Profile, bool) {
	p, ok := profiles[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// ProfileNames 返回所有档位名称（已排序）。
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyProfile 返回应用档位后的新配置；Enabled/Sticky 与降级顺序保持不变。
func ApplyProfile(cfg BudgetConfig, name string) (BudgetConfig, error) {
	p, ok := LookupProfile(name)
	if !ok {
		return cfg, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}

	out := cfg.Clone()
	out.ContextTarget = p.ContextTarget
	out.Cushion = p.Cushion
	out.Reserve = p.Reserve
	for comp, maxTokens := range p.MaxTokens {
		cc, ok := out.Components[comp]
		if !ok {
			continue
		}
		cc.MaxTokens = maxTokens
		out.Components[comp] = cc
	}
	return out, nil
}
