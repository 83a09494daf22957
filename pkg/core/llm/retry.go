package llm

import (
	"context"
	"time"

	"github.com/easyops/storyctx/pkg/core/errors"
)

// maxBackoff 单次退避上限
const maxBackoff = 10 * time.Second

// Retrier 指数退避重试器
type Retrier struct {
	MaxRetries int
	BaseDelay  time.Duration
	// OnRetry 每次重试前回调（可选）
	OnRetry func(attempt int, err error)
}

// Do 执行 fn，遇到可重试错误时退避重试
func (r Retrier) Do(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return errors.ErrContextCanceled
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !errors.IsRetryable(lastErr) || attempt == r.MaxRetries {
			return lastErr
		}

		if r.OnRetry != nil {
			r.OnRetry(attempt, lastErr)
		}

		timer := time.NewTimer(backoff(attempt, r.BaseDelay))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.ErrContextCanceled
		case <-timer.C:
		}
	}
	return lastErr
}

// backoff 计算第 attempt 次的退避时间：base * 2^attempt，外加 10% 抖动
func backoff(attempt int, base time.Duration) time.Duration {
	d := base << attempt
	d += d / 10
	if d <= 0 || d > maxBackoff {
		return maxBackoff
	}
	return d
}
