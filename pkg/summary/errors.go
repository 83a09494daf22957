package summary

import "errors"

// 摘要相关错误
var (
	// ErrNoSummary 尚未生成摘要
	ErrNoSummary = errors.New("no summary yet")
	// ErrNoMessages 没有可摘要的消息
	ErrNoMessages = errors.New("no messages to summarize")
	// ErrEmptySummary LLM 返回了空摘要
	ErrEmptySummary = errors.New("empty summary")
	// ErrNoFactBook 未配置 NPC 事实簿
	ErrNoFactBook = errors.New("no fact book configured")
)
