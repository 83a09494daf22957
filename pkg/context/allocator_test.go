package context_test

import (
	"math/rand"
	"testing"

	agentctx "github.com/easyops/storyctx/pkg/context"
)

func budget(target, cushion, reserve int, comps map[agentctx.ComponentName]agentctx.ComponentConfig, order ...agentctx.ComponentName) agentctx.BudgetConfig {
	return agentctx.BudgetConfig{
		ContextTarget: target,
		Cushion:       cushion,
		Reserve:       reserve,
		Components:    comps,
		DegradeOrder:  order,
	}
}

func predict(pairs ...any) []agentctx.Prediction {
	out := make([]agentctx.Prediction, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, agentctx.Prediction{
			Name:   pairs[i].(agentctx.ComponentName),
			Tokens: pairs[i+1].(int),
		})
	}
	return out
}

var defaultOrder = []agentctx.ComponentName{
	agentctx.ComponentRetrieval,
	agentctx.ComponentNPC,
	agentctx.ComponentSummary,
	agentctx.ComponentPrimer,
}

func TestAllocate_StickyThenPrimer(t *testing.T) {
	cfg := budget(2000, 200, 200, map[agentctx.ComponentName]agentctx.ComponentConfig{
		agentctx.ComponentGuard:     {Enabled: true, MaxTokens: 60, Sticky: true},
		agentctx.ComponentHeader:    {Enabled: true, MaxTokens: 120, Sticky: true},
		agentctx.ComponentPrimer:    {Enabled: true, MaxTokens: 600},
		agentctx.ComponentRetrieval: {Enabled: false, MaxTokens: 300},
		agentctx.ComponentNPC:       {Enabled: false, MaxTokens: 400},
		agentctx.ComponentSummary:   {Enabled: false, MaxTokens: 300},
	}, defaultOrder...)

	alloc := agentctx.Allocate(cfg, predict(
		agentctx.ComponentGuard, 40,
		agentctx.ComponentHeader, 100,
		agentctx.ComponentPrimer, 600,
		agentctx.ComponentRetrieval, 250,
		agentctx.ComponentNPC, 90,
		agentctx.ComponentSummary, 80,
	))

	if alloc.Limit != 1600 {
		t.Errorf("Limit = %d, want 1600", alloc.Limit)
	}

	want := map[agentctx.ComponentName]int{
		agentctx.ComponentGuard:     40,
		agentctx.ComponentHeader:    100,
		agentctx.ComponentPrimer:    600,
		agentctx.ComponentRetrieval: 0,
		agentctx.ComponentNPC:       0,
		agentctx.ComponentSummary:   0,
	}
	for name, n := range want {
		if got := alloc.Allowance[name]; got != n {
			t.Errorf("Allowance[%s] = %d, want %d", name, got, n)
		}
	}
	if alloc.Remaining != 860 {
		t.Errorf("Remaining = %d, want 860", alloc.Remaining)
	}
	if alloc.Partial != "" {
		t.Errorf("Partial = %q, want none", alloc.Partial)
	}
	if alloc.TotalAllocated != 740 {
		t.Errorf("TotalAllocated = %d, want 740", alloc.TotalAllocated)
	}
}

func TestAllocate_TightBudgetSinglePartial(t *testing.T) {
	cfg := budget(300, 0, 0, map[agentctx.ComponentName]agentctx.ComponentConfig{
		agentctx.ComponentGuard:     {Enabled: true, MaxTokens: 60, Sticky: true},
		agentctx.ComponentHeader:    {Enabled: true, MaxTokens: 120, Sticky: true},
		agentctx.ComponentRetrieval: {Enabled: true, MaxTokens: 300},
		agentctx.ComponentNPC:       {Enabled: true, MaxTokens: 400},
		agentctx.ComponentSummary:   {Enabled: true, MaxTokens: 300},
		agentctx.ComponentPrimer:    {Enabled: true, MaxTokens: 600},
	}, defaultOrder...)

	alloc := agentctx.Allocate(cfg, predict(
		agentctx.ComponentGuard, 40,
		agentctx.ComponentHeader, 100,
		agentctx.ComponentRetrieval, 300,
		agentctx.ComponentNPC, 10,
		agentctx.ComponentSummary, 5,
		agentctx.ComponentPrimer, 20,
	))

	if got := alloc.Allowance[agentctx.ComponentRetrieval]; got != 160 {
		t.Errorf("retrieval allowance = %d, want 160", got)
	}
	if alloc.Partial != agentctx.ComponentRetrieval {
		t.Errorf("Partial = %q, want retrieval", alloc.Partial)
	}
	for _, name := range []agentctx.ComponentName{agentctx.ComponentNPC, agentctx.ComponentSummary, agentctx.ComponentPrimer} {
		if got := alloc.Allowance[name]; got != 0 {
			t.Errorf("Allowance[%s] = %d, want 0 after budget exhausted", name, got)
		}
	}
	if alloc.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", alloc.Remaining)
	}
}

func TestAllocate_DisabledStickyFreesBudget(t *testing.T) {
	comps := map[agentctx.ComponentName]agentctx.ComponentConfig{
		agentctx.ComponentGuard:     {Enabled: false, MaxTokens: 60, Sticky: true},
		agentctx.ComponentHeader:    {Enabled: true, MaxTokens: 120, Sticky: true},
		agentctx.ComponentRetrieval: {Enabled: true, MaxTokens: 300},
	}
	cfg := budget(200, 0, 0, comps, agentctx.ComponentRetrieval)

	alloc := agentctx.Allocate(cfg, predict(
		agentctx.ComponentGuard, 50,
		agentctx.ComponentHeader, 100,
		agentctx.ComponentRetrieval, 100,
	))

	if got := alloc.Allowance[agentctx.ComponentGuard]; got != 0 {
		t.Errorf("guard allowance = %d, want 0", got)
	}
	if got := alloc.Allowance[agentctx.ComponentRetrieval]; got != 100 {
		t.Errorf("retrieval allowance = %d, want 100", got)
	}
	if alloc.Partial != "" {
		t.Errorf("Partial = %q, want none", alloc.Partial)
	}
}

func TestAllocate_EdgeCases(t *testing.T) {
	comps := func() map[agentctx.ComponentName]agentctx.ComponentConfig {
		return map[agentctx.ComponentName]agentctx.ComponentConfig{
			agentctx.ComponentGuard:   {Enabled: true, MaxTokens: 60, Sticky: true},
			agentctx.ComponentPrimer:  {Enabled: true, MaxTokens: 100},
			agentctx.ComponentSummary: {Enabled: true, MaxTokens: 100},
		}
	}

	tests := []struct {
		name  string
		cfg   agentctx.BudgetConfig
		preds []agentctx.Prediction
		want  map[agentctx.ComponentName]int
		limit int
	}{
		{
			name: "margins exceed target",
			cfg:  budget(100, 80, 80, comps(), agentctx.ComponentPrimer),
			preds: predict(
				agentctx.ComponentGuard, 30,
				agentctx.ComponentPrimer, 50,
			),
			want:  map[agentctx.ComponentName]int{agentctx.ComponentGuard: 30, agentctx.ComponentPrimer: 0},
			limit: 0,
		},
		{
			name: "prediction clamped to max tokens",
			cfg:  budget(1000, 0, 0, comps(), agentctx.ComponentPrimer),
			preds: predict(
				agentctx.ComponentGuard, 500,
				agentctx.ComponentPrimer, 900,
			),
			want:  map[agentctx.ComponentName]int{agentctx.ComponentGuard: 60, agentctx.ComponentPrimer: 100},
			limit: 1000,
		},
		{
			name: "not in degrade order gets zero",
			cfg:  budget(1000, 0, 0, comps(), agentctx.ComponentPrimer),
			preds: predict(
				agentctx.ComponentPrimer, 10,
				agentctx.ComponentSummary, 10,
			),
			want:  map[agentctx.ComponentName]int{agentctx.ComponentPrimer: 10, agentctx.ComponentSummary: 0},
			limit: 1000,
		},
		{
			name: "negative numbers clamp to zero",
			cfg:  budget(-5, -1, -1, comps(), agentctx.ComponentPrimer),
			preds: predict(
				agentctx.ComponentPrimer, -20,
			),
			want:  map[agentctx.ComponentName]int{agentctx.ComponentPrimer: 0},
			limit: 0,
		},
		{
			name: "duplicate prediction keeps first",
			cfg:  budget(1000, 0, 0, comps(), agentctx.ComponentPrimer),
			preds: predict(
				agentctx.ComponentPrimer, 30,
				agentctx.ComponentPrimer, 90,
			),
			want:  map[agentctx.ComponentName]int{agentctx.ComponentPrimer: 30},
			limit: 1000,
		},
		{
			name: "unknown component treated as disabled",
			cfg:  budget(1000, 0, 0, comps(), "weather", agentctx.ComponentPrimer),
			preds: predict(
				agentctx.ComponentName("weather"), 30,
				agentctx.ComponentPrimer, 30,
			),
			want:  map[agentctx.ComponentName]int{"weather": 0, agentctx.ComponentPrimer: 30},
			limit: 1000,
		},
		{
			name: "zero cost component does not take partial",
			cfg:  budget(50, 0, 0, comps(), agentctx.ComponentSummary, agentctx.ComponentPrimer),
			preds: predict(
				agentctx.ComponentGuard, 50,
				agentctx.ComponentSummary, 0,
				agentctx.ComponentPrimer, 40,
			),
			want:  map[agentctx.ComponentName]int{agentctx.ComponentGuard: 50, agentctx.ComponentSummary: 0, agentctx.ComponentPrimer: 0},
			limit: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alloc := agentctx.Allocate(tt.cfg, tt.preds)
			if alloc.Limit != tt.limit {
				t.Errorf("Limit = %d, want %d", alloc.Limit, tt.limit)
			}
			for name, n := range tt.want {
				if got := alloc.Allowance[name]; got != n {
					t.Errorf("Allowance[%s] = %d, want %d", name, got, n)
				}
			}
		})
	}
}

// 随机配置下检查分配结果的不变量。
func TestAllocate_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	names := agentctx.KnownComponents()

	for i := 0; i < 500; i++ {
		comps := make(map[agentctx.ComponentName]agentctx.ComponentConfig, len(names))
		var preds []agentctx.Prediction
		stickyCost := 0
		for _, name := range names {
			cc := agentctx.ComponentConfig{
				Enabled:   rng.Intn(4) != 0,
				MaxTokens: rng.Intn(400),
				Sticky:    rng.Intn(3) == 0,
			}
			comps[name] = cc
			p := rng.Intn(600)
			preds = append(preds, agentctx.Prediction{Name: name, Tokens: p})
			if cc.Enabled && cc.Sticky {
				stickyCost += min(p, cc.MaxTokens)
			}
		}

		order := make([]agentctx.ComponentName, len(names))
		copy(order, names)
		rng.Shuffle(len(order), func(a, b int) { order[a], order[b] = order[b], order[a] })

		cfg := budget(rng.Intn(3000), rng.Intn(300), rng.Intn(300), comps, order...)
		alloc := agentctx.Allocate(cfg, preds)

		nonSticky := 0
		partials := 0
		for _, p := range preds {
			cc := comps[p.Name]
			got := alloc.Allowance[p.Name]
			capped := min(p.Tokens, cc.MaxTokens)

			if !cc.Enabled && got != 0 {
				t.Fatalf("case %d: disabled %s got %d", i, p.Name, got)
			}
			if got < 0 || got > capped {
				t.Fatalf("case %d: %s got %d, cap %d", i, p.Name, got, capped)
			}
			if cc.Enabled && cc.Sticky && got != capped {
				t.Fatalf("case %d: sticky %s got %d, want %d", i, p.Name, got, capped)
			}
			if cc.Enabled && !cc.Sticky {
				nonSticky += got
				if got > 0 && got < capped {
					partials++
				}
			}
		}

		if partials > 1 {
			t.Fatalf("case %d: %d partial allocations", i, partials)
		}
		if alloc.Remaining < 0 {
			t.Fatalf("case %d: remaining %d", i, alloc.Remaining)
		}
		if nonSticky > max(0, alloc.Limit-stickyCost) {
			t.Fatalf("case %d: non-sticky total %d exceeds %d", i, nonSticky, alloc.Limit-stickyCost)
		}
		if stickyCost <= alloc.Limit && alloc.TotalAllocated > alloc.Limit {
			t.Fatalf("case %d: total %d exceeds limit %d", i, alloc.TotalAllocated, alloc.Limit)
		}
	}
}

func TestDegradeAllocator(t *testing.T) {
	var a agentctx.Allocator = agentctx.NewDegradeAllocator()
	cfg := agentctx.DefaultBudgetConfig()
	preds := predict(agentctx.ComponentGuard, 10, agentctx.ComponentPrimer, 20)

	got := a.Allocate(cfg, preds)
	want := agentctx.Allocate(cfg, preds)
	if got.TotalAllocated != want.TotalAllocated || got.Remaining != want.Remaining {
		t.Errorf("DegradeAllocator = %+v, want %+v", got, want)
	}
}
