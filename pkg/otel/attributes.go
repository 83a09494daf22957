package otel

import "go.opentelemetry.io/otel/attribute"

// 预定义的语义属性键
const (
	// 运行相关属性
	AttrRunID      = "context.run.id"
	AttrTrigger    = "context.run.trigger"
	AttrPhase      = "context.run.phase"
	AttrSuperseded = "context.run.superseded"

	// 预算相关属性
	AttrBudgetLimit     = "context.budget.limit"
	AttrBudgetAllocated = "context.budget.allocated"
	AttrBudgetRemaining = "context.budget.remaining"
	AttrBudgetPartial   = "context.budget.partial"

	// 组件相关属性
	AttrComponent          = "context.component"
	AttrComponentPredicted = "context.component.predicted"
	AttrComponentAllowance = "context.component.allowance"
	AttrSlotKey            = "context.slot.key"

	// LLM 相关属性
	AttrLLMProvider         = "llm.provider"
	AttrLLMModel            = "llm.model"
	AttrLLMPromptTokens     = "llm.prompt_tokens"
	AttrLLMCompletionTokens = "llm.completion_tokens"
	AttrLLMTotalTokens      = "llm.total_tokens"

	// 检索与清单
	AttrRAGTopK         = "rag.top_k"
	AttrRAGHits         = "rag.hits"
	AttrManifestSource  = "manifest.source"
	AttrManifestVersion = "manifest.version"

	// Error 相关属性
	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// RunID 创建运行 ID 属性
func RunID(id string) attribute.KeyValue {
	return attribute.String(AttrRunID, id)
}

// Trigger 创建触发事件属性
func Trigger(kind string) attribute.KeyValue {
	return attribute.String(AttrTrigger, kind)
}

// Component 创建组件名称属性
func Component(name string) attribute.KeyValue {
	return attribute.String(AttrComponent, name)
}

// SlotKey 创建注入槽属性
func SlotKey(key string) attribute.KeyValue {
	return attribute.String(AttrSlotKey, key)
}

// BudgetAttrs 创建预算分配属性
func BudgetAttrs(limit, allocated, remaining int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrBudgetLimit, limit),
		attribute.Int(AttrBudgetAllocated, allocated),
		attribute.Int(AttrBudgetRemaining, remaining),
	}
}

// LLMProvider 创建 LLM 提供商属性
func LLMProvider(provider string) attribute.KeyValue {
	return attribute.String(AttrLLMProvider, provider)
}

// LLMModel 创建 LLM 模型属性
func LLMModel(model string) attribute.KeyValue {
	return attribute.String(AttrLLMModel, model)
}

// LLMTokens 创建 LLM Token 使用属性
func LLMTokens(prompt, completion, total int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrLLMPromptTokens, prompt),
		attribute.Int(AttrLLMCompletionTokens, completion),
		attribute.Int(AttrLLMTotalTokens, total),
	}
}

// ErrorAttrs 创建错误属性
func ErrorAttrs(errType, message string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, errType),
		attribute.String(AttrErrorMessage, message),
	}
}
