package context

import "errors"

// 上下文预算相关错误
var (
	// ErrInvalidBudget 预算配置无效
	ErrInvalidBudget = errors.New("invalid budget config")
	// ErrUnknownComponent 未知组件
	ErrUnknownComponent = errors.New("unknown component")
	// ErrUnknownProfile 未知档位
	ErrUnknownProfile = errors.New("unknown profile")
	// ErrProducerPanic 组件预测时发生 panic
	ErrProducerPanic = errors.New("producer panicked")
	// ErrSinkPanic 注入槽发布时发生 panic
	ErrSinkPanic = errors.New("sink panicked")
	// ErrSchedulerRunning 调度器已在运行
	ErrSchedulerRunning = errors.New("scheduler already running")
)
