package producer

import (
	"context"
	"errors"

	agentctx "github.com/easyops/storyctx/pkg/context"
	"github.com/easyops/storyctx/pkg/manifest"
	"github.com/easyops/storyctx/pkg/summary"
)

// ManifestSource 提供最新的清单快照，manifest.Cache 实现了该接口
type ManifestSource interface {
	Get(ctx context.Context) (*manifest.Snapshot, error)
}

// Primer 渲染世界清单的多行摘要
//
// 摘要在每次拉取时渲染一次并随快照缓存，这里只读取快照。
type Primer struct {
	source ManifestSource
}

// NewPrimer 创建世界设定生产者
func NewPrimer(source ManifestSource) *Primer {
	return &Primer{source: source}
}

// Name 实现 Producer
func (p *Primer) Name() agentctx.ComponentName { return agentctx.ComponentPrimer }

// Predict 实现 Producer，未配置清单来源时返回空文本
func (p *Primer) Predict(ctx context.Context) (agentctx.Candidate, error) {
	snap, err := p.source.Get(ctx)
	if errors.Is(err, manifest.ErrNoSource) {
		return agentctx.Candidate{}, nil
	}
	if err != nil {
		return agentctx.Candidate{}, err
	}

	meta := map[string]any{"fetched_at": snap.FetchedAt}
	if snap.Manifest != nil {
		meta["manifest"] = snap.Manifest.Name
		meta["version"] = snap.Manifest.Version
	}
	return agentctx.Candidate{Text: snap.Digest, Meta: meta}, nil
}

// SummarySource 提供最新的滚动摘要，summary.Summarizer 实现了该接口
type SummarySource interface {
	Latest(ctx context.Context) (string, error)
}

// SummaryPrefix 摘要文本前缀
const SummaryPrefix = "Story so far: "

// Summary 返回最近一份滚动摘要
type Summary struct {
	source SummarySource
}

// NewSummary 创建摘要生产者
func NewSummary(source SummarySource) *Summary {
	return &Summary{source: source}
}

// Name 实现 Producer
func (s *Summary) Name() agentctx.ComponentName { return agentctx.ComponentSummary }

// Predict 实现 Producer，尚无摘要时返回空文本
func (s *Summary) Predict(ctx context.Context) (agentctx.Candidate, error) {
	text, err := s.source.Latest(ctx)
	if errors.Is(err, summary.ErrNoSummary) {
		return agentctx.Candidate{}, nil
	}
	if err != nil {
		return agentctx.Candidate{}, err
	}
	if text == "" {
		return agentctx.Candidate{}, nil
	}
	return agentctx.Candidate{Text: SummaryPrefix + text}, nil
}

// 编译时接口检查
var (
	_ agentctx.Producer = (*Primer)(nil)
	_ agentctx.Producer = (*Summary)(nil)
	_ ManifestSource    = (*manifest.Cache)(nil)
	_ SummarySource     = (*summary.Summarizer)(nil)
)
