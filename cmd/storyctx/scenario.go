package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	agentctx "github.com/easyops/storyctx/pkg/context"
	"github.com/easyops/storyctx/pkg/core/message"
	"github.com/easyops/storyctx/pkg/manifest"
	"github.com/easyops/storyctx/pkg/memory"
	"github.com/easyops/storyctx/pkg/producer"
	"github.com/easyops/storyctx/pkg/rag"
	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"
)

// ErrNoScenario 既没有 --scenario 也没有管道输入
var ErrNoScenario = errors.New("no scenario: pass --scenario <file> or pipe YAML on stdin")

// Scenario 预览用的一次会话快照
type Scenario struct {
	// Scene 当前场景
	Scene producer.Scene `yaml:"scene"`
	// Messages 最近的聊天记录，按时间顺序
	Messages []message.Message `yaml:"messages"`
	// NPCs 已知的 NPC
	NPCs []memory.NPC `yaml:"npcs"`
	// Facts 每个 NPC 的事实，键为 NPC ID
	Facts map[string][]string `yaml:"facts"`
	// Present 显式标记为在场的 NPC ID
	Present []string `yaml:"present"`
	// Lore 额外的设定片段
	Lore []rag.Document `yaml:"lore"`
	// Manifest 内联的世界清单，为空时使用 manifest.source
	Manifest *manifest.Manifest `yaml:"manifest"`
	// Summary 固定的滚动摘要，为空时按 LLM 配置生成
	Summary string `yaml:"summary"`
	// Budget 叠加在配置文件之上的预算覆盖
	Budget agentctx.PartialBudgetConfig `yaml:"budget"`
}

// LoadScenario 解析 YAML 格式的场景
func LoadScenario(r io.Reader) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty input", ErrNoScenario)
		}
		return nil, fmt.Errorf("parse scenario: %w", err)
	}

	for i := range sc.Messages {
		if sc.Messages[i].Role == "" {
			sc.Messages[i].Role = message.RoleUser
		}
	}
	for i := range sc.Lore {
		if sc.Lore[i].ID == "" {
			sc.Lore[i].ID = fmt.Sprintf("scenario-%d", i+1)
		}
		if sc.Lore[i].Source == "" {
			sc.Lore[i].Source = "scenario"
		}
	}
	return &sc, nil
}

// openScenario 打开 path 指向的场景；path 为空且标准输入不是终端时读取标准输入
func openScenario(path string, stdin io.Reader) (*Scenario, error) {
	switch {
	case path == "-":
		return LoadScenario(bufio.NewReader(stdin))
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return LoadScenario(f)
	case hasPipedInput(stdin):
		return LoadScenario(bufio.NewReader(stdin))
	default:
		return nil, ErrNoScenario
	}
}

// hasPipedInput 标准输入是否来自管道或重定向
func hasPipedInput(stdin io.Reader) bool {
	f, ok := stdin.(*os.File)
	if !ok {
		return stdin != nil
	}
	fd := f.Fd()
	return !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
}

// overlayBudget 把场景中设置的字段叠加到配置文件的预算上
func overlayBudget(base, over agentctx.PartialBudgetConfig) agentctx.PartialBudgetConfig {
	out := base
	if over.Profile != "" {
		out.Profile = over.Profile
	}
	if over.ContextTarget != nil {
		out.ContextTarget = over.ContextTarget
	}
	if over.Cushion != nil {
		out.Cushion = over.Cushion
	}
	if over.Reserve != nil {
		out.Reserve = over.Reserve
	}
	if len(over.DegradeOrder) > 0 {
		out.DegradeOrder = over.DegradeOrder
	}
	if len(over.Components) > 0 {
		merged := make(map[agentctx.ComponentName]agentctx.PartialComponentConfig, len(base.Components)+len(over.Components))
		for name, pc := range base.Components {
			merged[name] = pc
		}
		for name, pc := range over.Components {
			cur := merged[name]
			if pc.Enabled != nil {
				cur.Enabled = pc.Enabled
			}
			if pc.MaxTokens != nil {
				cur.MaxTokens = pc.MaxTokens
			}
			if pc.Sticky != nil {
				cur.Sticky = pc.Sticky
			}
			merged[name] = cur
		}
		out.Components = merged
	}
	return out
}
