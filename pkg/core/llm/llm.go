// Package llm 提供摘要生成所需的 LLM 接口
package llm

import (
	"context"

	"github.com/easyops/storyctx/pkg/core/message"
)

// Provider 定义 LLM 提供商接口
//
// 所有提供商均通过 OpenAI 兼容协议访问（OpenAI、DeepSeek、通义千问、Ollama、vLLM）。
type Provider interface {
	// Generate 生成响应（非流式）
	Generate(ctx context.Context, req Request) (Response, error)

	// Name 返回提供商名称
	Name() string

	// Model 返回当前模型名称
	Model() string

	// Close 关闭客户端连接
	Close() error
}

// Request LLM 请求
type Request struct {
	// Messages 消息历史
	Messages []message.Message
	// Temperature 温度参数（可选）
	Temperature *float64
	// MaxTokens 最大输出 token（可选）
	MaxTokens *int
	// Stop 停止序列（可选）
	Stop []string
}

// NewRequest 创建请求
func NewRequest(msgs []message.Message, opts ...RequestOption) Request {
	req := Request{Messages: msgs}
	for _, opt := range opts {
		opt(&req)
	}
	return req
}

// Response LLM 响应
type Response struct {
	// ID 响应标识
	ID string `json:"id"`
	// Content 响应文本内容
	Content string `json:"content"`
	// TokenUsage Token 使用统计
	TokenUsage message.TokenUsage `json:"token_usage"`
	// FinishReason 结束原因
	// 值: "stop", "length", "content_filter"
	FinishReason string `json:"finish_reason"`
}
