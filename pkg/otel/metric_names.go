package otel

// 预定义的指标名称
const (
	// 流水线指标
	MetricRuns            = "context.runs"             // 计数器: 完成的运行次数
	MetricRunsSuperseded  = "context.runs.superseded"  // 计数器: 被新触发取代的运行
	MetricRunDuration     = "context.run.duration"     // 直方图: 运行耗时(ms)
	MetricTokensLimit     = "context.tokens.limit"     // 仪表: 最近一次运行的可用预算
	MetricTokensAllocated = "context.tokens.allocated" // 仪表: 最近一次运行的已分配额度
	MetricPartial         = "context.component.partial"
	MetricProducerErrors  = "context.producer.errors" // 计数器: 组件预测失败
	MetricSinkErrors      = "context.sink.errors"     // 计数器: 注入槽发布失败

	// 数据源指标
	MetricManifestHits    = "manifest.cache.hits"
	MetricManifestMisses  = "manifest.cache.misses"
	MetricManifestErrors  = "manifest.fetch.errors"
	MetricRAGQueries      = "rag.queries"
	MetricSummaryRuns     = "summary.generations"
	MetricSummaryErrors   = "summary.errors"
	MetricLLMRequests     = "llm.requests"
	MetricLLMDuration     = "llm.request.duration"
	MetricLLMTokensTotal  = "llm.tokens.total"
	MetricLLMErrors       = "llm.errors"
)

// MetricUnit 指标单位
type MetricUnit string

const (
	UnitNone         MetricUnit = ""
	UnitMilliseconds MetricUnit = "ms"
	UnitCount        MetricUnit = "1"
	UnitTokens       MetricUnit = "{token}"
)

// MetricDescription 指标描述
type MetricDescription struct {
	Name        string
	Description string
	Unit        MetricUnit
	Type        string // counter, histogram, gauge
}

// PredefinedMetrics 预定义指标列表
var PredefinedMetrics = []MetricDescription{
	{MetricRuns, "Number of completed context runs", UnitCount, "counter"},
	{MetricRunsSuperseded, "Number of runs cancelled by a newer trigger", UnitCount, "counter"},
	{MetricRunDuration, "Duration of context runs", UnitMilliseconds, "histogram"},
	{MetricTokensLimit, "Token limit of the latest run", UnitTokens, "gauge"},
	{MetricTokensAllocated, "Tokens allocated in the latest run", UnitTokens, "gauge"},
	{MetricPartial, "Number of partial allocations", UnitCount, "counter"},
	{MetricProducerErrors, "Number of producer failures", UnitCount, "counter"},
	{MetricSinkErrors, "Number of sink publish failures", UnitCount, "counter"},

	{MetricManifestHits, "Manifest cache hits", UnitCount, "counter"},
	{MetricManifestMisses, "Manifest cache misses", UnitCount, "counter"},
	{MetricManifestErrors, "Manifest fetch failures", UnitCount, "counter"},
	{MetricRAGQueries, "Number of retrieval queries", UnitCount, "counter"},
	{MetricSummaryRuns, "Number of rolling summaries generated", UnitCount, "counter"},
	{MetricSummaryErrors, "Number of failed summary generations", UnitCount, "counter"},
	{MetricLLMRequests, "Number of LLM requests", UnitCount, "counter"},
	{MetricLLMDuration, "Duration of LLM requests", UnitMilliseconds, "histogram"},
	{MetricLLMTokensTotal, "Total number of LLM tokens", UnitTokens, "counter"},
	{MetricLLMErrors, "Number of LLM errors", UnitCount, "counter"},
}

// describe 查找预定义指标描述
func describe(name string) (MetricDescription, bool) {
	for _, d := range PredefinedMetrics {
		if d.Name == name {
			return d, true
		}
	}
	return MetricDescription{}, false
}
