package memory

import (
	"context"
	"sync"
	"time"

	"github.com/easyops/storyctx/pkg/core/message"
)

// DefaultMaxSize 默认最多保留的消息条数
const DefaultMaxSize = 100

// WorkingMemory 工作记忆实现
//
// 基于内存的最近消息窗口，支持容量限制和 TTL。
// 用户发言计数单独累计，窗口截断不会让计数回退。
type WorkingMemory struct {
	messages  []message.Message
	maxSize   int
	ttl       time.Duration
	userTurns int
	now       func() time.Time
	mu        sync.RWMutex
}

// WorkingMemoryOption 配置选项
type WorkingMemoryOption func(*WorkingMemory)

// NewWorkingMemory 创建工作记忆
func NewWorkingMemory(opts ...WorkingMemoryOption) *WorkingMemory {
	m := &WorkingMemory{
		messages: make([]message.Message, 0),
		maxSize:  DefaultMaxSize,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// WithMaxSize 设置最大消息数量
func WithMaxSize(size int) WorkingMemoryOption {
	return func(m *WorkingMemory) {
		m.maxSize = size
	}
}

// WithTTL 设置消息过期时间
func WithTTL(ttl time.Duration) WorkingMemoryOption {
	return func(m *WorkingMemory) {
		m.ttl = ttl
	}
}

// WithClock 设置时钟，测试用
func WithClock(now func() time.Time) WorkingMemoryOption {
	return func(m *WorkingMemory) {
		m.now = now
	}
}

// AddMessage 添加消息到记忆
func (m *WorkingMemory) AddMessage(ctx context.Context, msg message.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.Timestamp.IsZero() {
		msg.Timestamp = m.now()
	}
	if msg.IsUser() {
		m.userTurns++
	}

	m.messages = append(m.messages, msg)
	if m.maxSize > 0 && len(m.messages) > m.maxSize {
		m.messages = m.messages[len(m.messages)-m.maxSize:]
	}

	return nil
}

// GetHistory 获取对话历史
func (m *WorkingMemory) GetHistory(ctx context.Context, limit int) ([]message.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	messages := m.filterExpired()

	if limit <= 0 || limit >= len(messages) {
		result := make([]message.Message, len(messages))
		copy(result, messages)
		return result, nil
	}

	// 返回最近的 limit 条
	start := len(messages) - limit
	result := make([]message.Message, limit)
	copy(result, messages[start:])
	return result, nil
}

// LastUserMessage 返回最近一条未过期的用户消息
func (m *WorkingMemory) LastUserMessage(ctx context.Context) (message.Message, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	messages := m.filterExpired()
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].IsUser() {
			return messages[i], true
		}
	}
	return message.Message{}, false
}

// UserTurns 返回累计的用户发言次数
func (m *WorkingMemory) UserTurns() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userTurns
}

// Clear 清空记忆，同时重置用户发言计数
func (m *WorkingMemory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = make([]message.Message, 0)
	m.userTurns = 0
	return nil
}

// Size 返回当前消息数量
func (m *WorkingMemory) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}

// filterExpired 过滤过期消息（内部使用，需要持有锁）
func (m *WorkingMemory) filterExpired() []message.Message {
	if m.ttl == 0 {
		return m.messages
	}

	cutoff := m.now().Add(-m.ttl)
	result := make([]message.Message, 0, len(m.messages))

	for _, msg := range m.messages {
		if msg.Timestamp.After(cutoff) {
			result = append(result, msg)
		}
	}

	return result
}

// compile-time interface check
var _ ConversationMemory = (*WorkingMemory)(nil)
