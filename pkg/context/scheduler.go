package context

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/easyops/storyctx/pkg/otel"
)

// Runner 执行一次流水线，*Orchestrator 实现了该接口。
type Runner interface {
	Run(ctx context.Context, trigger Trigger) (*RunReport, error)
}

// Scheduler 把宿主事件串行化为流水线运行。
//
// 同一时刻最多一个运行；新事件到达时取消进行中的运行并只保留最新的事件，
// 被取消的运行若已进入发布阶段则会完整发布。
type Scheduler struct {
	runner   Runner
	interval time.Duration
	onReport func(*RunReport)
	logger   otel.Logger

	mu       sync.Mutex
	pending  *Trigger
	cancel   context.CancelFunc
	stop     context.CancelFunc
	done     chan struct{}
	wake     chan struct{}
	inFlight bool
}

// SchedulerOption 配置 Scheduler。
type SchedulerOption func(*Scheduler)

// WithInterval 设置定时兜底的间隔，0 表示不启用。
func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.interval = d
	}
}

// WithReportHandler 设置每次运行完成后的回调。
func WithReportHandler(fn func(*RunReport)) SchedulerOption {
	return func(s *Scheduler) {
		s.onReport = fn
	}
}

// WithSchedulerLogger 设置日志器。
func WithSchedulerLogger(l otel.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// NewScheduler 创建调度器。
func NewScheduler(runner Runner, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		runner: runner,
		logger: otel.NewNoopLogger(),
		wake:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start 启动调度循环，直到 ctx 结束或调用 Stop。
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return ErrSchedulerRunning
	}

	ctx, stop := context.WithCancel(ctx)
	s.stop = stop
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	return nil
}

// Stop 停止调度循环并等待进行中的运行结束。
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.mu.Unlock()
	if stop == nil {
		return
	}

	stop()
	<-done

	s.mu.Lock()
	s.stop, s.done = nil, nil
	s.mu.Unlock()
}

// Notify 提交一个触发事件。
//
// 不阻塞；若已有运行在进行则将其取消，未处理的旧事件被新事件覆盖。
func (s *Scheduler) Notify(trigger Trigger) {
	s.mu.Lock()
	s.pending = &trigger
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Busy 是否有运行正在进行。
func (s *Scheduler) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-tick:
			s.mu.Lock()
			if s.pending == nil {
				t := TriggerTimer
				s.pending = &t
			}
			s.mu.Unlock()
		}

		for s.runPending(ctx) {
		}
	}
}

// runPending 执行待处理的事件，没有事件或调度器已停止时返回 false。
func (s *Scheduler) runPending(ctx context.Context) bool {
	s.mu.Lock()
	if s.pending == nil || ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	trigger := *s.pending
	s.pending = nil
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.inFlight = true
	s.mu.Unlock()

	report, err := s.runner.Run(runCtx, trigger)
	cancel()

	s.mu.Lock()
	s.cancel = nil
	s.inFlight = false
	s.mu.Unlock()

	switch {
	case err == nil:
		if s.onReport != nil && report != nil {
			s.onReport(report)
		}
	case errors.Is(err, context.Canceled):
		s.logger.Debug("run superseded", "trigger", string(trigger))
	default:
		s.logger.Warn("run failed", "trigger", string(trigger), "error", err)
	}
	return true
}
