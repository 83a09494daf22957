package rag

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/easyops/storyctx/pkg/otel"
)

// DefaultTopK 默认保留的命中数
const DefaultTopK = 2

// Retriever 检索器接口
type Retriever interface {
	// Retrieve 检索与查询相关的文档
	Retrieve(ctx context.Context, query string, topK int) ([]Hit, error)
}

// Tokenize 把文本切分为小写词（字母和数字的连续序列）
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// TokenSet 返回文本的去重词集合
func TokenSet(text string) map[string]struct{} {
	tokens := Tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// KeywordRetriever 关键词重叠检索器
//
// 分数为查询与文档共有的不同词数；只保留分数大于 0 的文档，
// 按分数降序排列，分数相同时保持索引中的顺序。
type KeywordRetriever struct {
	index   *Index
	metrics otel.Metrics
}

// KeywordRetrieverOption 关键词检索器选项
type KeywordRetrieverOption func(*KeywordRetriever)

// WithMetrics 设置指标收集器
func WithMetrics(m otel.Metrics) KeywordRetrieverOption {
	return func(r *KeywordRetriever) {
		r.metrics = m
	}
}

// NewKeywordRetriever 创建关键词检索器
func NewKeywordRetriever(index *Index, opts ...KeywordRetrieverOption) *KeywordRetriever {
	r := &KeywordRetriever{
		index:   index,
		metrics: otel.NewNoopMetrics(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve 检索与查询相关的文档，topK <= 0 时使用 DefaultTopK
func (r *KeywordRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	r.metrics.Counter(otel.MetricRAGQueries).Add(ctx, 1)

	q := TokenSet(query)
	if len(q) == 0 || r.index == nil {
		return nil, nil
	}

	var hits []Hit
	r.index.each(func(_ int, d *indexedDoc) {
		score := 0
		for t := range q {
			if _, ok := d.tokens[t]; ok {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, Hit{Document: d.doc, Score: score})
		}
	})

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// MultiRetriever 多检索器（支持多个检索源）
type MultiRetriever struct {
	retrievers []Retriever
}

// NewMultiRetriever 创建多检索器
func NewMultiRetriever(retrievers ...Retriever) *MultiRetriever {
	return &MultiRetriever{retrievers: retrievers}
}

// Retrieve 从多个源检索并按分数合并，同 ID 的文档只保留最高分
func (r *MultiRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	var all []Hit
	seen := make(map[string]int)
	for _, retriever := range r.retrievers {
		res, err := retriever.Retrieve(ctx, query, topK)
		if err != nil {
			return nil, err
		}
		for _, h := range res {
			if i, ok := seen[h.Document.ID]; ok {
				if h.Score > all[i].Score {
					all[i] = h
				}
				continue
			}
			seen[h.Document.ID] = len(all)
			all = append(all, h)
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Score > all[j].Score
	})
	if len(all) > topK {
		all = all[:topK]
	}
	return all, nil
}

// compile-time interface check
var _ Retriever = (*KeywordRetriever)(nil)
var _ Retriever = (*MultiRetriever)(nil)
