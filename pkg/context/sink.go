package context

import (
	"context"
	"fmt"
	"io"
	"maps"
	"sync"

	"github.com/easyops/storyctx/pkg/core/message"
)

// Position 注入位置。
type Position string

const (
	// PositionBeforePrompt 注入在提示词之前
	PositionBeforePrompt Position = "before_prompt"
	// PositionInChat 注入在聊天记录中，距末尾 Depth 条消息
	PositionInChat Position = "in_chat"
)

// SlotKeyPrefix 默认注入槽键前缀。
const SlotKeyPrefix = "storyctx_"

// DefaultInChatDepth 聊天内注入的默认深度。
const DefaultInChatDepth = 4

// Slot 描述一个注入槽。
type Slot struct {
	Key      string       `json:"key" yaml:"key"`
	Position Position     `json:"position" yaml:"position"`
	Depth    int          `json:"depth" yaml:"depth"`
	Role     message.Role `json:"role" yaml:"role"`
}

// DefaultSlot 返回组件的默认注入槽。
//
// 守卫、场景头和战斗头放在提示词之前，其余放在聊天记录中。
func DefaultSlot(name ComponentName) Slot {
	slot := Slot{
		Key:      SlotKeyPrefix + string(name),
		Position: PositionInChat,
		Depth:    DefaultInChatDepth,
		Role:     message.RoleSystem,
	}
	switch name {
	case ComponentGuard, ComponentHeader, ComponentCombatHeader:
		slot.Position = PositionBeforePrompt
		slot.Depth = 0
	}
	return slot
}

// Sink 是宿主提供的注入边界。
//
// text 为空时必须清除该槽（或什么都不做）。
type Sink interface {
	Publish(ctx context.Context, slot Slot, text string) error
}

// SinkFunc 适配普通函数为 Sink。
type SinkFunc func(ctx context.Context, slot Slot, text string) error

// Publish 实现 Sink。
func (f SinkFunc) Publish(ctx context.Context, slot Slot, text string) error {
	return f(ctx, slot, text)
}

// Injection 是 MemorySink 中保存的槽内容。
type Injection struct {
	Slot Slot
	Text string
}

// MemorySink 把注入内容保存在内存中。
type MemorySink struct {
	slots map[string]Injection
	calls int
	mu    sync.RWMutex
}

// NewMemorySink 创建 MemorySink。
func NewMemorySink() *MemorySink {
	return &MemorySink{slots: make(map[string]Injection)}
}

// Publish 实现 Sink，空文本删除该槽。
func (s *MemorySink) Publish(_ context.Context, slot Slot, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if text == "" {
		delete(s.slots, slot.Key)
		return nil
	}
	s.slots[slot.Key] = Injection{Slot: slot, Text: text}
	return nil
}

// Get 返回槽内容。
func (s *MemorySink) Get(key string) (Injection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inj, ok := s.slots[key]
	return inj, ok
}

// Slots 返回所有非空槽的副本。
func (s *MemorySink) Slots() map[string]Injection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.slots)
}

// Calls 返回 Publish 被调用的次数。
func (s *MemorySink) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

// WriterSink 把注入内容以文本形式写到 io.Writer，空文本写一行清除记录。
type WriterSink struct {
	w  io.Writer
	mu sync.Mutex
}

// NewWriterSink 创建 WriterSink。
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Publish 实现 Sink。
func (s *WriterSink) Publish(_ context.Context, slot Slot, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if text == "" {
		_, err := fmt.Fprintf(s.w, "[%s] cleared\n", slot.Key)
		return err
	}
	_, err := fmt.Fprintf(s.w, "[%s %s depth=%d role=%s]\n%s\n\n", slot.Key, slot.Position, slot.Depth, slot.Role, text)
	return err
}

// 编译时接口检查
var (
	_ Sink = SinkFunc(nil)
	_ Sink = (*MemorySink)(nil)
	_ Sink = (*WriterSink)(nil)
)
