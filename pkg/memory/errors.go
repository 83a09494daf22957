package memory

import "errors"

// NPC 记忆相关错误
var (
	// ErrNotFound NPC 未登记
	ErrNotFound = errors.New("npc not found")
	// ErrInvalidInput NPC 缺少 ID 或名字，或事实为空
	ErrInvalidInput = errors.New("invalid npc record")
)
