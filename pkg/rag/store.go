package rag

import (
	"context"
	"sync"
)

// Index 预先分词的文档集合，可并发读取
type Index struct {
	docs []indexedDoc
	byID map[string]int
	mu   sync.RWMutex
}

type indexedDoc struct {
	doc    Document
	tokens map[string]struct{}
}

// NewIndex 创建索引
func NewIndex(docs ...Document) *Index {
	idx := &Index{byID: make(map[string]int)}
	idx.Add(docs...)
	return idx
}

// BuildIndex 从加载器构建索引
func BuildIndex(ctx context.Context, loader DocumentLoader) (*Index, error) {
	docs, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	return NewIndex(docs...), nil
}

// Add 添加或替换文档，同 ID 的文档保留原来的位置
func (idx *Index) Add(docs ...Document) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, d := range docs {
		entry := indexedDoc{doc: d, tokens: TokenSet(d.Text())}
		if i, ok := idx.byID[d.ID]; ok && d.ID != "" {
			idx.docs[i] = entry
			continue
		}
		idx.byID[d.ID] = len(idx.docs)
		idx.docs = append(idx.docs, entry)
	}
}

// Len 返回文档数量
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

// Documents 返回所有文档（按添加顺序）
func (idx *Index) Documents() []Document {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]Document, len(idx.docs))
	for i, d := range idx.docs {
		out[i] = d.doc
	}
	return out
}

// each 在读锁内遍历文档
func (idx *Index) each(fn func(i int, d *indexedDoc)) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for i := range idx.docs {
		fn(i, &idx.docs[i])
	}
}
