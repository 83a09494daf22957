// Package context 实现叙事上下文的 Token 预算分配流水线。
//
// 每个宿主事件触发一次运行：
//
//	预测 -> 分配 -> 裁剪 -> 发布
//
// 各 Producer 给出候选片段，Estimator 估算其 Token 成本；
// Allocator 先为常驻组件全额拨付，再按降级顺序贪心分配剩余预算，
// 最多一个组件获得部分额度；Trim 按额度以整行为单位裁剪文本；
// 最终文本连同注入槽信息交给宿主的 Sink，空文本用于清除槽。
//
// # 基本用法
//
//	settings := agentctx.NewSettings(agentctx.DefaultBudgetConfig())
//	orch := agentctx.NewOrchestrator(settings, sink,
//	    agentctx.WithProducers(guard, header, primer),
//	)
//	report, err := orch.Run(ctx, agentctx.TriggerMessageSent)
//
// 宿主事件密集时用 Scheduler 串行化运行：新事件会取消进行中的运行，
// 只保留最新的事件。
package context
