package otel

import (
	"context"
	"time"

	"github.com/easyops/storyctx/pkg/core/llm"
	"go.opentelemetry.io/otel/attribute"
)

// TracedProvider 为 LLM 提供商增加追踪与指标
type TracedProvider struct {
	provider llm.Provider
	tracer   Tracer
	metrics  Metrics
}

// TracedProviderOption 配置 TracedProvider
type TracedProviderOption func(*TracedProvider)

// WithTracedProviderTracer 设置追踪器
func WithTracedProviderTracer(tracer Tracer) TracedProviderOption {
	return func(p *TracedProvider) {
		p.tracer = tracer
	}
}

// WithTracedProviderMetrics 设置指标收集器
func WithTracedProviderMetrics(metrics Metrics) TracedProviderOption {
	return func(p *TracedProvider) {
		p.metrics = metrics
	}
}

// NewTracedProvider 包装 LLM 提供商
func NewTracedProvider(provider llm.Provider, opts ...TracedProviderOption) *TracedProvider {
	tp := &TracedProvider{
		provider: provider,
		tracer:   NewNoopTracer(),
		metrics:  NewNoopMetrics(),
	}
	for _, opt := range opts {
		opt(tp)
	}
	return tp
}

// Generate 生成响应并记录 span 与指标
func (p *TracedProvider) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	ctx, span := p.tracer.Start(ctx, "llm.generate",
		WithSpanKind(SpanKindClient),
		WithAttributes(
			LLMProvider(p.provider.Name()),
			LLMModel(p.provider.Model()),
			attribute.Int("llm.messages", len(req.Messages)),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := p.provider.Generate(ctx, req)
	p.record(ctx, resp, err, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(StatusError, err.Error())
		return resp, err
	}

	u := resp.TokenUsage
	span.SetAttributes(LLMTokens(u.PromptTokens, u.CompletionTokens, u.Total())...)
	span.AddEvent("llm.response", attribute.String("finish_reason", resp.FinishReason))
	span.SetStatus(StatusOK, "")
	return resp, nil
}

// Name 返回提供商名称
func (p *TracedProvider) Name() string {
	return p.provider.Name()
}

// Model 返回模型名称
func (p *TracedProvider) Model() string {
	return p.provider.Model()
}

// Close 关闭底层提供商
func (p *TracedProvider) Close() error {
	return p.provider.Close()
}

// record 记录一次调用的指标
func (p *TracedProvider) record(ctx context.Context, resp llm.Response, err error, d time.Duration) {
	provider := NewAttr("provider", p.provider.Name())
	model := NewAttr("model", p.provider.Model())

	status := "success"
	if err != nil {
		status = "error"
		p.metrics.Counter(MetricLLMErrors).Add(ctx, 1, provider, model)
	} else {
		p.metrics.Counter(MetricLLMTokensTotal).Add(ctx, int64(resp.TokenUsage.Total()), provider, model)
	}
	p.metrics.Counter(MetricLLMRequests).Add(ctx, 1, provider, model, NewAttr("status", status))
	p.metrics.Histogram(MetricLLMDuration).Record(ctx, float64(d.Milliseconds()), provider, model)
}

// 编译时接口检查
var _ llm.Provider = (*TracedProvider)(nil)
