// Package producer 提供各类上下文片段的生产者
//
// 守卫、场景头、战斗头、世界设定、滚动摘要、设定检索和 NPC 记忆各自独立，
// 都实现 context.Producer，由 Orchestrator 统一调度。
package producer

import "errors"

// 生产者相关错误
var (
	// ErrInvalidTemplate 模板无法解析
	ErrInvalidTemplate = errors.New("invalid template")
)
