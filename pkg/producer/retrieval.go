package producer

import (
	"context"
	"strings"

	agentctx "github.com/easyops/storyctx/pkg/context"
	"github.com/easyops/storyctx/pkg/memory"
	"github.com/easyops/storyctx/pkg/rag"
)

// Retrieval 按最近一条用户消息检索设定片段，没有用户消息时用当前地点作为查询
type Retrieval struct {
	retriever rag.Retriever
	memory    memory.ConversationMemory
	scene     SceneSource
	topK      int
}

// RetrievalOption 配置 Retrieval
type RetrievalOption func(*Retrieval)

// WithTopK 设置保留的命中数
func WithTopK(k int) RetrievalOption {
	return func(r *Retrieval) {
		r.topK = k
	}
}

// WithScene 设置地点查询的来源
func WithScene(scene SceneSource) RetrievalOption {
	return func(r *Retrieval) {
		r.scene = scene
	}
}

// NewRetrieval 创建检索生产者
func NewRetrieval(retriever rag.Retriever, mem memory.ConversationMemory, opts ...RetrievalOption) *Retrieval {
	r := &Retrieval{retriever: retriever, memory: mem, topK: rag.DefaultTopK}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name 实现 Producer
func (r *Retrieval) Name() agentctx.ComponentName { return agentctx.ComponentRetrieval }

// Predict 实现 Producer
func (r *Retrieval) Predict(ctx context.Context) (agentctx.Candidate, error) {
	query, err := r.query(ctx)
	if err != nil || query == "" {
		return agentctx.Candidate{}, err
	}

	hits, err := r.retriever.Retrieve(ctx, query, r.topK)
	if err != nil {
		return agentctx.Candidate{}, err
	}

	refs := make([]map[string]any, 0, len(hits))
	for _, h := range hits {
		refs = append(refs, map[string]any{"id": h.Document.ID, "score": h.Score})
	}
	return agentctx.Candidate{
		Text: rag.FormatHits(hits),
		Meta: map[string]any{"query": query, "hits": refs},
	}, nil
}

func (r *Retrieval) query(ctx context.Context) (string, error) {
	if r.memory != nil {
		if msg, ok := r.memory.LastUserMessage(ctx); ok && strings.TrimSpace(msg.Content) != "" {
			return msg.Content, nil
		}
	}
	if r.scene == nil {
		return "", nil
	}
	scene, err := r.scene.Scene(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(scene.Location), nil
}

// 编译时接口检查
var _ agentctx.Producer = (*Retrieval)(nil)
