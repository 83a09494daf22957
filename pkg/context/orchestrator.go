package context

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/easyops/storyctx/pkg/otel"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Trigger 是触发一次运行的宿主事件。
type Trigger string

const (
	TriggerMessageSent     Trigger = "message_sent"
	TriggerMessageReceived Trigger = "message_received"
	TriggerGenerationEnded Trigger = "generation_ended"
	TriggerChatChanged     Trigger = "chat_changed"
	// TriggerTimer 宿主没有事件时的定时兜底
	TriggerTimer Trigger = "timer"
	// TriggerManual 命令行预览等手动触发
	TriggerManual Trigger = "manual"
)

// Phase 是编排器所处的阶段。
type Phase int32

const (
	PhaseIdle Phase = iota
	PhasePredicting
	PhaseAllocating
	PhaseTrimming
	PhasePublishing
)

// String 返回阶段名称。
func (p Phase) String() string {
	switch p {
	case PhasePredicting:
		return "predicting"
	case PhaseAllocating:
		return "allocating"
	case PhaseTrimming:
		return "trimming"
	case PhasePublishing:
		return "publishing"
	default:
		return "idle"
	}
}

// Output 是一个组件在一次运行中的最终结果。
type Output struct {
	Name ComponentName `json:"name"`
	Slot Slot          `json:"slot"`
	// Text 按额度裁剪后的最终文本
	Text string `json:"text"`
	// Predicted 钳制后的预测成本
	Predicted int `json:"predicted"`
	// Allowance 分配到的额度
	Allowance int `json:"allowance"`
	// Partial 是否只获得了部分额度
	Partial bool           `json:"partial,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
	// PredictErr 预测失败原因，失败时按 0 成本、空文本处理
	PredictErr error `json:"-"`
	// PublishErr 发布失败原因
	PublishErr error `json:"-"`
}

// MarshalJSON 把错误字段序列化为字符串。
func (o Output) MarshalJSON() ([]byte, error) {
	type alias Output
	out := struct {
		alias
		PredictError string `json:"predictError,omitempty"`
		PublishError string `json:"publishError,omitempty"`
	}{alias: alias(o)}
	if o.PredictErr != nil {
		out.PredictError = o.PredictErr.Error()
	}
	if o.PublishErr != nil {
		out.PublishError = o.PublishErr.Error()
	}
	return json.Marshal(out)
}

// RunReport 是一次运行的完整记录。
type RunReport struct {
	ID         string        `json:"id"`
	Trigger    Trigger       `json:"trigger"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
	Allocation Allocation    `json:"allocation"`
	Outputs    []Output      `json:"outputs"`
}

// Output 按名称查找组件输出。
func (r *RunReport) Output(name ComponentName) (Output, bool) {
	for _, o := range r.Outputs {
		if o.Name == name {
			return o, true
		}
	}
	return Output{}, false
}

// Orchestrator 驱动 预测 -> 分配 -> 裁剪 -> 发布 的流水线。
type Orchestrator struct {
	settings  *Settings
	sink      Sink
	producers []Producer
	slots     map[ComponentName]Slot
	estimator *Estimator
	allocator Allocator
	recorder  Recorder
	parallel  bool

	tracer  otel.Tracer
	metrics otel.Metrics
	logger  otel.Logger

	phase atomic.Int32
}

// Option 配置 Orchestrator。
type Option func(*Orchestrator)

// WithProducers 注册生产者，同名生产者只保留第一个。
func WithProducers(producers ...Producer) Option {
	return func(o *Orchestrator) {
		o.producers = append(o.producers, producers...)
	}
}

// WithSlot 覆盖组件的注入槽。
func WithSlot(name ComponentName, slot Slot) Option {
	return func(o *Orchestrator) {
		o.slots[name] = slot
	}
}

// WithEstimator 设置 Token 估算器。
func WithEstimator(e *Estimator) Option {
	return func(o *Orchestrator) {
		o.estimator = e
	}
}

// WithAllocator 设置分配器。
func WithAllocator(a Allocator) Option {
	return func(o *Orchestrator) {
		o.allocator = a
	}
}

// WithRecorder 设置运行日志记录器。
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithParallel 设置是否并发调用生产者。
func WithParallel(parallel bool) Option {
	return func(o *Orchestrator) {
		o.parallel = parallel
	}
}

// WithTracer 设置追踪器。
func WithTracer(t otel.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}

// WithMetrics 设置指标收集器。
func WithMetrics(m otel.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithLogger 设置日志器。
func WithLogger(l otel.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// NewOrchestrator 创建编排器。
//
// settings 在每次运行开始时取一次快照，运行期间的配置变更只影响下一次运行。
func NewOrchestrator(settings *Settings, sink Sink, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		settings:  settings,
		sink:      sink,
		slots:     make(map[ComponentName]Slot),
		estimator: DefaultEstimator(),
		allocator: NewDegradeAllocator(),
		parallel:  true,
		tracer:    otel.NewNoopTracer(),
		metrics:   otel.NewNoopMetrics(),
		logger:    otel.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}

	seen := make(map[ComponentName]bool, len(o.producers))
	unique := o.producers[:0]
	for _, p := range o.producers {
		if seen[p.Name()] {
			o.logger.Warn("duplicate producer ignored", "component", p.Name())
			continue
		}
		seen[p.Name()] = true
		unique = append(unique, p)
	}
	o.producers = unique
	return o
}

// Phase 返回当前阶段。
func (o *Orchestrator) Phase() Phase {
	return Phase(o.phase.Load())
}

// Components 返回已注册组件在当前配置下的视图。
func (o *Orchestrator) Components() []Component {
	cfg := o.settings.Snapshot()
	out := make([]Component, 0, len(o.producers))
	for _, p := range o.producers {
		out = append(out, ComponentOf(cfg, p.Name()))
	}
	return out
}

// Slot 返回组件的注入槽。
func (o *Orchestrator) Slot(name ComponentName) Slot {
	if s, ok := o.slots[name]; ok {
		return s
	}
	return DefaultSlot(name)
}

// Run 执行一次完整的流水线。
//
// 生产者和注入槽的失败记录在 RunReport 中，不作为错误返回；
// 只有 ctx 在进入发布阶段前被取消时才返回 ctx.Err()。
func (o *Orchestrator) Run(ctx context.Context, trigger Trigger) (*RunReport, error) {
	defer o.phase.Store(int32(PhaseIdle))

	cfg := o.settings.Snapshot()
	report := &RunReport{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: time.Now(),
	}
	logger := o.logger.WithContext(ctx).With("run_id", report.ID, "trigger", string(trigger))

	ctx, span := o.tracer.Start(ctx, "context.run",
		otel.WithAttributes(otel.RunID(report.ID), otel.Trigger(string(trigger))),
	)
	defer span.End()

	o.phase.Store(int32(PhasePredicting))
	predictions := o.predict(ctx, cfg, logger)
	if err := ctx.Err(); err != nil {
		return nil, o.superseded(ctx, span, logger, err)
	}

	o.phase.Store(int32(PhaseAllocating))
	_, allocSpan := o.tracer.Start(ctx, "context.allocate")
	alloc := o.allocator.Allocate(cfg, predictions)
	allocSpan.SetAttributes(otel.BudgetAttrs(alloc.Limit, alloc.TotalAllocated, alloc.Remaining)...)
	if alloc.Partial != "" {
		allocSpan.SetAttributes(attribute.String(otel.AttrBudgetPartial, string(alloc.Partial)))
	}
	allocSpan.End()
	report.Allocation = alloc

	o.phase.Store(int32(PhaseTrimming))
	report.Outputs = o.trim(predictions, alloc)
	if err := ctx.Err(); err != nil {
		return nil, o.superseded(ctx, span, logger, err)
	}

	// 发布阶段一旦开始就完整执行，避免多个运行交错写入
	o.phase.Store(int32(PhasePublishing))
	o.publish(context.WithoutCancel(ctx), report.Outputs, logger)

	report.Duration = time.Since(report.StartedAt)
	o.finish(ctx, report, logger)
	span.SetAttributes(otel.BudgetAttrs(alloc.Limit, alloc.TotalAllocated, alloc.Remaining)...)
	span.SetStatus(otel.StatusOK, "")
	return report, nil
}

// predict 调用所有生产者，结果顺序与注册顺序一致。
func (o *Orchestrator) predict(ctx context.Context, cfg BudgetConfig, logger otel.Logger) []Prediction {
	ctx, span := o.tracer.Start(ctx, "context.predict")
	defer span.End()

	predictions := make([]Prediction, len(o.producers))
	run := func(i int) {
		p := o.producers[i]
		predictions[i] = o.predictOne(ctx, cfg.Component(p.Name()), p)
		if err := predictions[i].Err; err != nil {
			logger.Warn("producer failed", "component", p.Name(), "error", err)
			o.metrics.Counter(otel.MetricProducerErrors).Add(ctx, 1, otel.NewAttr("component", string(p.Name())))
		}
	}

	if !o.parallel {
		for i := range o.producers {
			run(i)
		}
		return predictions
	}

	var g errgroup.Group
	for i := range o.producers {
		g.Go(func() error {
			run(i)
			return nil
		})
	}
	_ = g.Wait()
	return predictions
}

// predictOne 调用单个生产者；禁用的组件不调用，失败与 panic 都转为 0 成本的预测。
func (o *Orchestrator) predictOne(ctx context.Context, cc ComponentConfig, p Producer) (pred Prediction) {
	pred.Name = p.Name()
	if !cc.Enabled {
		return pred
	}

	defer func() {
		if r := recover(); r != nil {
			pred = Prediction{Name: p.Name(), Err: fmt.Errorf("%w: %v", ErrProducerPanic, r)}
		}
	}()

	cand, err := p.Predict(ctx)
	if err != nil {
		return Prediction{Name: p.Name(), Err: err}
	}

	pred.Text = cand.Text
	pred.Meta = cand.Meta
	pred.Tokens = clampedCost(cc, o.estimator.Estimate(ctx, cand.Text))
	return pred
}

// trim 按额度裁剪每个组件的候选文本。
func (o *Orchestrator) trim(predictions []Prediction, alloc Allocation) []Output {
	outputs := make([]Output, 0, len(predictions))
	for _, pred := range predictions {
		allowance := alloc.Allowance[pred.Name]
		out := Output{
			Name:       pred.Name,
			Slot:       o.Slot(pred.Name),
			Predicted:  pred.Tokens,
			Allowance:  allowance,
			Partial:    alloc.Partial == pred.Name,
			Meta:       pred.Meta,
			PredictErr: pred.Err,
		}
		if allowance > 0 {
			out.Text = Trim(pred.Text, allowance)
		}
		outputs = append(outputs, out)
	}
	return outputs
}

// publish 把每个组件的最终文本发布到注入槽，空文本同样发布以清除旧内容。
func (o *Orchestrator) publish(ctx context.Context, outputs []Output, logger otel.Logger) {
	ctx, span := o.tracer.Start(ctx, "context.publish")
	defer span.End()

	for i := range outputs {
		out := &outputs[i]
		if err := o.publishOne(ctx, out.Slot, out.Text); err != nil {
			out.PublishErr = err
			span.RecordError(err)
			logger.Warn("sink publish failed", "component", out.Name, "slot", out.Slot.Key, "error", err)
			o.metrics.Counter(otel.MetricSinkErrors).Add(ctx, 1, otel.NewAttr("component", string(out.Name)))
		}
	}
}

func (o *Orchestrator) publishOne(ctx context.Context, slot Slot, text string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSinkPanic, r)
		}
	}()
	return o.sink.Publish(ctx, slot, text)
}

// finish 记录运行日志与指标。
func (o *Orchestrator) finish(ctx context.Context, report *RunReport, logger otel.Logger) {
	alloc := report.Allocation
	trigger := otel.NewAttr("trigger", string(report.Trigger))

	o.metrics.Counter(otel.MetricRuns).Add(ctx, 1, trigger)
	o.metrics.Histogram(otel.MetricRunDuration).Record(ctx, float64(report.Duration.Milliseconds()), trigger)
	o.metrics.Gauge(otel.MetricTokensLimit).Set(ctx, float64(alloc.Limit))
	o.metrics.Gauge(otel.MetricTokensAllocated).Set(ctx, float64(alloc.TotalAllocated))
	if alloc.Partial != "" {
		o.metrics.Counter(otel.MetricPartial).Add(ctx, 1, otel.NewAttr("component", string(alloc.Partial)))
	}

	if o.recorder != nil {
		if err := o.recorder.Record(context.WithoutCancel(ctx), report); err != nil {
			logger.Warn("record run failed", "error", err)
		}
	}

	logger.Debug("context run finished",
		"limit", alloc.Limit,
		"total_allocated", alloc.TotalAllocated,
		"remaining", alloc.Remaining,
		"partial", string(alloc.Partial),
		"duration_ms", report.Duration.Milliseconds(),
	)
}

// superseded 处理被取消的运行。
func (o *Orchestrator) superseded(ctx context.Context, span otel.Span, logger otel.Logger, err error) error {
	span.SetAttributes(attribute.Bool(otel.AttrSuperseded, true))
	span.SetStatus(otel.StatusError, err.Error())
	o.metrics.Counter(otel.MetricRunsSuperseded).Add(context.WithoutCancel(ctx), 1)
	logger.Warn("context run cancelled", "phase", o.Phase().String(), "error", err)
	return err
}
