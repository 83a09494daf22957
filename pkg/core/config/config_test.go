package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	agentctx "github.com/easyops/storyctx/pkg/context"
	"github.com/easyops/storyctx/pkg/core/config"
	"github.com/easyops/storyctx/pkg/memory/store"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storyctx.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := cfg.BudgetConfig().Limit(); got != 1600 {
		t.Errorf("Limit() = %d, want 1600", got)
	}
	if cfg.Summary.Every != 6 || cfg.Summary.Window != 20 {
		t.Errorf("Summary = %+v, want every 6 window 20", cfg.Summary)
	}
	if cfg.Manifest.TTL != time.Minute {
		t.Errorf("Manifest.TTL = %v, want 1m", cfg.Manifest.TTL)
	}
	if cfg.Retrieval.TopK != 2 {
		t.Errorf("Retrieval.TopK = %d, want 2", cfg.Retrieval.TopK)
	}
	if cfg.NPC.Window != 10*time.Minute || cfg.NPC.MaxPresent != 3 {
		t.Errorf("NPC = %+v", cfg.NPC)
	}
	if cfg.Store.Documents != store.StoreTypeMemory {
		t.Errorf("Store.Documents = %s, want memory", cfg.Store.Documents)
	}
	if cfg.LLM.Enabled() {
		t.Error("LLM should be disabled by default")
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeFile(t, `
budget:
  profile: lean
  reserve: 50
  components:
    npc:
      enabled: false
  degrade_order: [npc, retrieval, summary, primer]
manifest:
  source: https://example.com/world.yaml
  ttl: 30s
npc:
  max_present: 5
store:
  documents: sqlite
  sqlite_path: /tmp/story.db
`)
	t.Setenv("STORYCTX_BUDGET__CONTEXT_TARGET", "1200")
	t.Setenv("STORYCTX_RETRIEVAL__TOP_K", "4")
	t.Setenv("STORYCTX_RETRIEVAL__SOURCES", "lore/a.md,lore/b.md")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	budget := cfg.BudgetConfig()
	if budget.ContextTarget != 1200 {
		t.Errorf("ContextTarget = %d, want 1200 from env", budget.ContextTarget)
	}
	if budget.Reserve != 50 {
		t.Errorf("Reserve = %d, want 50", budget.Reserve)
	}
	if budget.Cushion != 100 {
		t.Errorf("Cushion = %d, want 100 from lean profile", budget.Cushion)
	}
	if budget.Components[agentctx.ComponentNPC].Enabled {
		t.Error("npc should be disabled")
	}
	if budget.DegradeOrder[0] != agentctx.ComponentNPC {
		t.Errorf("DegradeOrder = %v", budget.DegradeOrder)
	}
	if cfg.Manifest.TTL != 30*time.Second {
		t.Errorf("Manifest.TTL = %v, want 30s", cfg.Manifest.TTL)
	}
	if cfg.NPC.MaxPresent != 5 || cfg.NPC.MaxFacts != 3 {
		t.Errorf("NPC = %+v", cfg.NPC)
	}
	if cfg.Retrieval.TopK != 4 || len(cfg.Retrieval.Sources) != 2 {
		t.Errorf("Retrieval = %+v", cfg.Retrieval)
	}
	if cfg.Store.Documents != store.StoreTypeSQLite || cfg.Store.SQLitePath != "/tmp/story.db" {
		t.Errorf("Store = %+v", cfg.Store)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"unknown degrade component", "budget:\n  degrade_order: [weather]\n", agentctx.ErrUnknownComponent},
		{"bad provider", "llm:\n  provider: parrot\n", config.ErrInvalidProvider},
		{"bad store", "store:\n  documents: redis\n", config.ErrInvalidStore},
		{"negative top k", "retrieval:\n  top_k: -1\n", config.ErrInvalidTopK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeFile(t, tt.content))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Load() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "storyctx.yaml")

	if err := config.Set(path, "budget.context_target", "3000"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := config.Set(path, "budget.components.primer.sticky", "true"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := config.Set(path, "budget.degrade_order", "[summary, primer]"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	budget := cfg.BudgetConfig()
	if budget.ContextTarget != 3000 {
		t.Errorf("ContextTarget = %d, want 3000", budget.ContextTarget)
	}
	if !budget.Components[agentctx.ComponentPrimer].Sticky {
		t.Error("primer should be sticky")
	}
	if len(budget.DegradeOrder) != 2 || budget.DegradeOrder[0] != agentctx.ComponentSummary {
		t.Errorf("DegradeOrder = %v", budget.DegradeOrder)
	}

	before, _ := os.ReadFile(path)
	if err := config.Set(path, "budget.degrade_order", "[nope]"); !errors.Is(err, agentctx.ErrUnknownComponent) {
		t.Errorf("Set(invalid) error = %v, want ErrUnknownComponent", err)
	}
	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("invalid Set should leave the file unchanged")
	}

	if err := config.Set(path, "weather.rain", "1"); !errors.Is(err, config.ErrUnknownKey) {
		t.Errorf("Set(weather.rain) error = %v, want ErrUnknownKey", err)
	}
}

func TestSaveBudget(t *testing.T) {
	path := writeFile(t, "manifest:\n  source: world.yaml\n")

	budget, err := agentctx.ApplyProfile(agentctx.DefaultBudgetConfig(), "rich")
	if err != nil {
		t.Fatalf("ApplyProfile() error = %v", err)
	}
	if err := config.SaveBudget(path, budget); err != nil {
		t.Fatalf("SaveBudget() error = %v", err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "source: world.yaml") {
		t.Errorf("SaveBudget dropped other sections:\n%s", data)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.BudgetConfig().ContextTarget; got != 4000 {
		t.Errorf("ContextTarget = %d, want 4000", got)
	}
}

func TestLoader_Get(t *testing.T) {
	l := config.NewLoader()
	if err := l.LoadFile(writeFile(t, "budget:\n  cushion: 150\nmanifest:\n  ttl: 2m\n")); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if got := l.GetInt("budget.cushion"); got != 150 {
		t.Errorf("GetInt() = %d, want 150", got)
	}
	if got := l.GetDuration("manifest.ttl"); got != 2*time.Minute {
		t.Errorf("GetDuration() = %v, want 2m", got)
	}
	if len(l.Keys()) != 2 {
		t.Errorf("Keys() = %v", l.Keys())
	}
}

func TestLLMConfig(t *testing.T) {
	cfg := config.LLMConfig{}
	if _, err := cfg.NewProvider(); !errors.Is(err, config.ErrLLMDisabled) {
		t.Errorf("NewProvider() error = %v, want ErrLLMDisabled", err)
	}

	cfg = config.LLMConfig{Provider: "ollama"}.WithDefaults()
	if cfg.Timeout != 30*time.Second || cfg.MaxTokens != 512 {
		t.Errorf("WithDefaults() = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	p, err := cfg.NewProvider()
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	if p.Name() != "ollama" {
		t.Errorf("Name() = %s, want ollama", p.Name())
	}

	bad := config.LLMConfig{Provider: "openai", Temperature: 3}
	if err := bad.Validate(); !errors.Is(err, config.ErrInvalidTemperature) {
		t.Errorf("Validate() error = %v, want ErrInvalidTemperature", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, ".env")
	local := filepath.Join(dir, ".env.local")
	if err := os.WriteFile(base, []byte("STORYCTX_NPC__MAX_PRESENT=4\nSTORYCTX_SUMMARY__EVERY=3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(local, []byte("STORYCTX_SUMMARY__EVERY=9\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// 注册还原，Overload 写入的值在测试结束后清理
	t.Setenv("STORYCTX_NPC__MAX_PRESENT", "1")
	t.Setenv("STORYCTX_SUMMARY__EVERY", "1")

	loaded, err := config.LoadDotEnv(base, filepath.Join(dir, "missing.env"), local)
	if err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded = %v, want 2 files", loaded)
	}

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.NPC.MaxPresent != 4 {
		t.Errorf("NPC.MaxPresent = %d, want 4", cfg.NPC.MaxPresent)
	}
	if cfg.Summary.Every != 9 {
		t.Errorf("Summary.Every = %d, want 9", cfg.Summary.Every)
	}
}
