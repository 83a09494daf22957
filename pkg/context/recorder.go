package context

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/easyops/storyctx/pkg/memory/store"
)

// Recorder 保存运行记录，供观测和调试使用。
type Recorder interface {
	Record(ctx context.Context, report *RunReport) error
}

// DefaultRecorderSize MemoryRecorder 默认保留的记录数。
const DefaultRecorderSize = 32

// MemoryRecorder 在内存中保留最近的若干次运行。
type MemoryRecorder struct {
	reports []*RunReport
	size    int
	mu      sync.RWMutex
}

// NewMemoryRecorder 创建 MemoryRecorder，size <= 0 时使用默认值。
func NewMemoryRecorder(size int) *MemoryRecorder {
	if size <= 0 {
		size = DefaultRecorderSize
	}
	return &MemoryRecorder{size: size}
}

// Record 实现 Recorder。
func (r *MemoryRecorder) Record(_ context.Context, report *RunReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	if over := len(r.reports) - r.size; over > 0 {
		r.reports = append(r.reports[:0], r.reports[over:]...)
	}
	return nil
}

// Last 返回最近一次运行。
func (r *MemoryRecorder) Last() (*RunReport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.reports) == 0 {
		return nil, false
	}
	return r.reports[len(r.reports)-1], true
}

// Reports 返回按时间正序排列的记录副本。
func (r *MemoryRecorder) Reports() []*RunReport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*RunReport, len(r.reports))
	copy(out, r.reports)
	return out
}

// RunCollection StoreRecorder 默认使用的集合名。
const RunCollection = "context_runs"

// StoreRecorder 把运行记录以 JSON 写入文档存储。
type StoreRecorder struct {
	store      store.DocumentStore
	collection string
}

// NewStoreRecorder 创建 StoreRecorder，collection 为空时使用 RunCollection。
func NewStoreRecorder(s store.DocumentStore, collection string) *StoreRecorder {
	if collection == "" {
		collection = RunCollection
	}
	return &StoreRecorder{store: s, collection: collection}
}

// Record 实现 Recorder。
func (r *StoreRecorder) Record(ctx context.Context, report *RunReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}
	return r.store.Put(ctx, r.collection, store.Document{
		ID:      report.ID,
		Content: string(data),
		Metadata: map[string]any{
			"trigger":         string(report.Trigger),
			"limit":           report.Allocation.Limit,
			"total_allocated": report.Allocation.TotalAllocated,
			"partial":         string(report.Allocation.Partial),
		},
		CreatedAt: report.StartedAt,
	})
}

// Recent 读取最近 n 条运行记录，按时间倒序。
func (r *StoreRecorder) Recent(ctx context.Context, n int) ([]*RunReport, error) {
	docs, err := r.store.Query(ctx, r.collection, store.Filter{}, store.WithNewestFirst(), store.WithQueryLimit(n))
	if err != nil {
		return nil, err
	}
	reports := make([]*RunReport, 0, len(docs))
	for _, d := range docs {
		var rep RunReport
		if err := json.Unmarshal([]byte(d.Content), &rep); err != nil {
			return nil, fmt.Errorf("decode run %s: %w", d.ID, err)
		}
		reports = append(reports, &rep)
	}
	return reports, nil
}

// MultiRecorder 依次写入多个 Recorder，返回第一个错误。
type MultiRecorder []Recorder

// Record 实现 Recorder。
func (m MultiRecorder) Record(ctx context.Context, report *RunReport) error {
	var first error
	for _, r := range m {
		if err := r.Record(ctx, report); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// 编译时接口检查
var (
	_ Recorder = (*MemoryRecorder)(nil)
	_ Recorder = (*StoreRecorder)(nil)
	_ Recorder = MultiRecorder(nil)
)
