package memory

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/easyops/storyctx/pkg/core/message"
)

// 在场追踪默认值
const (
	DefaultPresenceWindow = 10 * time.Minute
	DefaultMaxPresent     = 3
)

// PresenceTracker 追踪当前场景中在场的 NPC
//
// NPC 被显式标记，或在窗口期内被提及，即视为在场。
// 显式标记的 NPC 排在前面（按标记顺序），其余按最近提及时间倒序，
// 总数不超过 maxPresent。
type PresenceTracker struct {
	window     time.Duration
	maxPresent int
	matcher    NameMatcher
	now        func() time.Time

	mentioned map[string]time.Time
	marked    []string
	mu        sync.Mutex
}

// PresenceOption 配置选项
type PresenceOption func(*PresenceTracker)

// WithPresenceWindow 设置提及的有效窗口
func WithPresenceWindow(d time.Duration) PresenceOption {
	return func(t *PresenceTracker) {
		t.window = d
	}
}

// WithMaxPresent 设置在场人数上限，<= 0 表示不限制
func WithMaxPresent(n int) PresenceOption {
	return func(t *PresenceTracker) {
		t.maxPresent = n
	}
}

// WithMatcher 设置名称匹配器
func WithMatcher(m NameMatcher) PresenceOption {
	return func(t *PresenceTracker) {
		t.matcher = m
	}
}

// WithPresenceClock 设置时钟，测试用
func WithPresenceClock(now func() time.Time) PresenceOption {
	return func(t *PresenceTracker) {
		t.now = now
	}
}

// NewPresenceTracker 创建在场追踪器
func NewPresenceTracker(opts ...PresenceOption) *PresenceTracker {
	t := &PresenceTracker{
		window:     DefaultPresenceWindow,
		maxPresent: DefaultMaxPresent,
		matcher:    NewWordMatcher(),
		now:        time.Now,
		mentioned:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Observe 扫描一段文本，记录在 at 时刻被提及的 NPC，返回匹配到的 ID
func (t *PresenceTracker) Observe(text string, at time.Time, npcs []NPC) []string {
	ids := t.matcher.Matches(text, npcs)
	if len(ids) == 0 {
		return nil
	}
	if at.IsZero() {
		at = t.now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		if at.After(t.mentioned[id]) {
			t.mentioned[id] = at
		}
	}
	return ids
}

// ObserveMessages 依次扫描消息，提及时间取消息时间戳
func (t *PresenceTracker) ObserveMessages(msgs []message.Message, npcs []NPC) []string {
	var ids []string
	for _, msg := range msgs {
		for _, id := range t.Observe(msg.Content, msg.Timestamp, npcs) {
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// Mark 显式标记 NPC 在场
func (t *PresenceTracker) Mark(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !slices.Contains(t.marked, id) {
		t.marked = append(t.marked, id)
	}
}

// Unmark 取消显式标记，同时清除提及记录
func (t *PresenceTracker) Unmark(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.marked = slices.DeleteFunc(t.marked, func(s string) bool { return s == id })
	delete(t.mentioned, id)
}

// Present 返回当前在场的 NPC ID，并清理已过期的提及记录
func (t *PresenceTracker) Present() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.window)
	for id, at := range t.mentioned {
		if !at.After(cutoff) {
			delete(t.mentioned, id)
		}
	}

	ids := slices.Clone(t.marked)
	recent := make([]string, 0, len(t.mentioned))
	for id := range t.mentioned {
		if !slices.Contains(ids, id) {
			recent = append(recent, id)
		}
	}
	slices.SortFunc(recent, func(a, b string) int {
		if c := t.mentioned[b].Compare(t.mentioned[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	ids = append(ids, recent...)

	if t.maxPresent > 0 && len(ids) > t.maxPresent {
		ids = ids[:t.maxPresent]
	}
	return ids
}

// Reset 清空所有在场信息
func (t *PresenceTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mentioned = make(map[string]time.Time)
	t.marked = nil
}
