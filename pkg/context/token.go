package context

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/easyops/storyctx/pkg/core/errors"
	"github.com/pkoukk/tiktoken-go"
)

// CharsPerToken 是启发式估算与裁剪共用的字符/Token 比例。
const CharsPerToken = 4

// TokenCounter 定义 Token 计数接口。
type TokenCounter interface {
	// Count 返回给定文本的 Token 数量。
	Count(text string) int
}

// ExactCounter 定义可能失败的精确计数器（例如远端或异步分词器）。
type ExactCounter interface {
	// CountExact 返回精确的 Token 数量。
	CountExact(ctx context.Context, text string) (int, error)
}

// TiktokenCounter 使用 tiktoken 实现精确的 Token 计数。
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

// TiktokenOption 配置 TiktokenCounter。
type TiktokenOption func(*TiktokenCounter)

// WithModel 设置 Token 编码使用的模型。
func WithModel(model string) TiktokenOption {
	return func(c *TiktokenCounter) {
		c.model = model
	}
}

// NewTiktokenCounter 创建新的 TiktokenCounter。
// 模型未知时降级到 cl100k_base 编码。
func NewTiktokenCounter(opts ...TiktokenOption) (*TiktokenCounter, error) {
	c := &TiktokenCounter{
		model: "gpt-4o",
	}

	for _, opt := range opts {
		opt(c)
	}

	encoding, err := tiktoken.EncodingForModel(c.model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrTokenizerUnavailable, err)
		}
	}

	c.encoding = encoding
	return c, nil
}

// CountExact 返回给定文本的精确 Token 数量。
func (c *TiktokenCounter) CountExact(_ context.Context, text string) (int, error) {
	if c == nil || c.encoding == nil {
		return 0, errors.ErrTokenizerUnavailable
	}
	return len(c.encoding.Encode(text, nil, nil)), nil
}

// Count 返回 Token 数量，分词器不可用时使用启发式估算。
func (c *TiktokenCounter) Count(text string) int {
	n, err := c.CountExact(context.Background(), text)
	if err != nil {
		return estimateTokens(text)
	}
	return n
}

// EstimatedCounter 使用字符估算实现 Token 计数：ceil(字符数 / CharsPerToken)。
type EstimatedCounter struct {
	// CharsPerToken 是每个 Token 的平均字符数，默认 4。
	CharsPerToken int
}

// NewEstimatedCounter 创建新的 EstimatedCounter。
func NewEstimatedCounter() *EstimatedCounter {
	return &EstimatedCounter{CharsPerToken: CharsPerToken}
}

// Count 返回估算的 Token 数量。
func (c *EstimatedCounter) Count(text string) int {
	per := c.CharsPerToken
	if per <= 0 {
		per = CharsPerToken
	}
	n := utf8.RuneCountInString(text)
	return (n + per - 1) / per
}

// estimateTokens 是包级的启发式降级方案。
func estimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + CharsPerToken - 1) / CharsPerToken
}

// Estimator 组合精确计数器与启发式降级，永不失败。
type Estimator struct {
	exact    ExactCounter
	fallback TokenCounter
}

// NewEstimator 创建 Estimator。exact 可以为 nil，此时只使用启发式估算。
func NewEstimator(exact ExactCounter) *Estimator {
	return &Estimator{
		exact:    exact,
		fallback: NewEstimatedCounter(),
	}
}

// DefaultEstimator 优先使用 tiktoken，不可用时只使用启发式估算。
func DefaultEstimator() *Estimator {
	counter, err := NewTiktokenCounter()
	if err != nil {
		return NewEstimator(nil)
	}
	return NewEstimator(counter)
}

// Estimate 返回文本的 Token 估算值，结果总是非负。
func (e *Estimator) Estimate(ctx context.Context, text string) (n int) {
	if text == "" {
		return 0
	}
	if e == nil {
		return estimateTokens(text)
	}
	fallback := e.fallback
	if fallback == nil {
		fallback = NewEstimatedCounter()
	}
	if e.exact == nil {
		return fallback.Count(text)
	}

	defer func() {
		if r := recover(); r != nil {
			n = fallback.Count(text)
		}
	}()

	exact, err := e.exact.CountExact(ctx, text)
	if err != nil || exact < 0 {
		return fallback.Count(text)
	}
	return exact
}

// Count 实现 TokenCounter。
func (e *Estimator) Count(text string) int {
	return e.Estimate(context.Background(), text)
}

// 编译时接口检查
var _ TokenCounter = (*TiktokenCounter)(nil)
var _ TokenCounter = (*EstimatedCounter)(nil)
var _ TokenCounter = (*Estimator)(nil)
var _ ExactCounter = (*TiktokenCounter)(nil)
