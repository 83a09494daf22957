package producer

import (
	"context"
	"errors"
	"strings"

	agentctx "github.com/easyops/storyctx/pkg/context"
	"github.com/easyops/storyctx/pkg/memory"
	"github.com/easyops/storyctx/pkg/otel"
)

// NPC 生产者默认值
const (
	DefaultScanMessages = 6
	DefaultMaxFacts     = 3
)

// NPCMemory 渲染在场 NPC 的设定、记忆摘要和最近的事实
//
// 每次预测先扫描最近的消息更新在场状态，再按在场顺序逐个渲染档案。
type NPCMemory struct {
	book     memory.FactBook
	tracker  *memory.PresenceTracker
	memory   memory.ConversationMemory
	scan     int
	maxFacts int
	logger   otel.Logger
}

// NPCOption 配置 NPCMemory
type NPCOption func(*NPCMemory)

// WithScanMessages 设置每次扫描的最近消息条数
func WithScanMessages(n int) NPCOption {
	return func(p *NPCMemory) {
		p.scan = n
	}
}

// WithMaxFacts 设置每个 NPC 渲染的事实条数
func WithMaxFacts(n int) NPCOption {
	return func(p *NPCMemory) {
		p.maxFacts = n
	}
}

// WithNPCLogger 设置日志器
func WithNPCLogger(l otel.Logger) NPCOption {
	return func(p *NPCMemory) {
		p.logger = l
	}
}

// NewNPCMemory 创建 NPC 记忆生产者，mem 为空时只使用显式标记
func NewNPCMemory(book memory.FactBook, tracker *memory.PresenceTracker, mem memory.ConversationMemory, opts ...NPCOption) *NPCMemory {
	p := &NPCMemory{
		book:     book,
		tracker:  tracker,
		memory:   mem,
		scan:     DefaultScanMessages,
		maxFacts: DefaultMaxFacts,
		logger:   otel.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name 实现 Producer
func (p *NPCMemory) Name() agentctx.ComponentName { return agentctx.ComponentNPC }

// Predict 实现 Producer
func (p *NPCMemory) Predict(ctx context.Context) (agentctx.Candidate, error) {
	npcs, err := p.book.NPCs(ctx)
	if err != nil {
		return agentctx.Candidate{}, err
	}

	var matched []string
	if p.memory != nil && p.scan > 0 {
		msgs, err := p.memory.GetHistory(ctx, p.scan)
		if err != nil {
			return agentctx.Candidate{}, err
		}
		matched = p.tracker.ObserveMessages(msgs, npcs)
	}

	present := p.tracker.Present()
	blocks := make([]string, 0, len(present))
	rendered := make([]string, 0, len(present))
	for _, id := range present {
		profile, err := p.book.Profile(ctx, id, p.maxFacts)
		if errors.Is(err, memory.ErrNotFound) {
			p.logger.WithContext(ctx).Debug("present npc not in fact book", "npc", id)
			continue
		}
		if err != nil {
			return agentctx.Candidate{}, err
		}
		blocks = append(blocks, profile.Render())
		rendered = append(rendered, id)
	}

	return agentctx.Candidate{
		Text: strings.Join(blocks, "\n"),
		Meta: map[string]any{"matched": matched, "present": rendered},
	}, nil
}

// 编译时接口检查
var _ agentctx.Producer = (*NPCMemory)(nil)
