// Package memory 提供剧情上下文所需的记忆组件
//
// 包括最近消息窗口、NPC 名称匹配、在场追踪和 NPC 事实簿。
package memory

import (
	"context"

	"github.com/easyops/storyctx/pkg/core/message"
)

// ConversationMemory 对话记忆接口
//
// 保存最近的对话消息，供摘要、检索和 NPC 在场扫描使用。
type ConversationMemory interface {
	// AddMessage 添加消息到记忆
	AddMessage(ctx context.Context, msg message.Message) error

	// GetHistory 获取对话历史
	// limit: 返回的最大消息数，0 表示返回所有
	GetHistory(ctx context.Context, limit int) ([]message.Message, error)

	// LastUserMessage 返回最近一条用户消息
	LastUserMessage(ctx context.Context) (message.Message, bool)

	// UserTurns 返回累计的用户发言次数（不受窗口截断影响）
	UserTurns() int

	// Clear 清空记忆
	Clear(ctx context.Context) error

	// Size 返回当前消息数量
	Size() int
}

// NameMatcher 在文本中查找被提及的 NPC
type NameMatcher interface {
	// Matches 返回 text 中提及的 NPC ID，按 candidates 的顺序且不重复
	Matches(text string, candidates []NPC) []string
}

// FactBook NPC 事实簿接口
//
// 保存 NPC 设定、最新的记忆摘要和按时间捕获的事实。
type FactBook interface {
	// Register 添加或更新 NPC 设定，已有的摘要保持不变
	Register(ctx context.Context, npc NPC) error

	// NPCs 按注册顺序返回所有 NPC
	NPCs(ctx context.Context) ([]NPC, error)

	// Remember 为 NPC 记录一条事实
	Remember(ctx context.Context, npcID string, text string) (Fact, error)

	// SetSummary 更新 NPC 的最新记忆摘要
	SetSummary(ctx context.Context, npcID string, summary string) error

	// Profile 返回 NPC 的设定、摘要和最近 maxFacts 条事实（按时间正序）
	Profile(ctx context.Context, npcID string, maxFacts int) (*Profile, error)
}
