package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryDocumentStore 内存文档存储
//
// 基于 map 的实现，适用于测试和单会话场景。
type MemoryDocumentStore struct {
	collections map[string]map[string]*memDoc
	seq         int64
	mu          sync.RWMutex
}

// memDoc 带插入序号的文档，序号用于创建时间相同时的稳定排序
type memDoc struct {
	doc Document
	seq int64
}

// NewMemoryDocumentStore 创建内存文档存储
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{
		collections: make(map[string]map[string]*memDoc),
	}
}

// Put 存储文档
func (s *MemoryDocumentStore) Put(_ context.Context, collection string, doc Document) error {
	if doc.ID == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collections[collection]
	if docs == nil {
		docs = make(map[string]*memDoc)
		s.collections[collection] = docs
	}

	now := time.Now()
	doc.Metadata = cloneMap(doc.Metadata)
	doc.UpdatedAt = now
	if existing, ok := docs[doc.ID]; ok {
		doc.CreatedAt = existing.doc.CreatedAt
		existing.doc = doc
		return nil
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	s.seq++
	docs[doc.ID] = &memDoc{doc: doc, seq: s.seq}
	return nil
}

// Get 获取文档
func (s *MemoryDocumentStore) Get(_ context.Context, collection string, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	doc := d.doc
	doc.Metadata = cloneMap(doc.Metadata)
	return &doc, nil
}

// Delete 删除文档
func (s *MemoryDocumentStore) Delete(_ context.Context, collection string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return ErrNotFound
	}
	delete(s.collections[collection], id)
	return nil
}

// Query 条件查询
func (s *MemoryDocumentStore) Query(_ context.Context, collection string, filter Filter, opts ...QueryOption) ([]Document, error) {
	options := defaultQueryOptions(opts)

	s.mu.RLock()
	matched := make([]*memDoc, 0)
	for _, d := range s.collections[collection] {
		if matchFilter(&d.doc, filter) {
			matched = append(matched, d)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.doc.CreatedAt.Equal(b.doc.CreatedAt) {
			if options.newestFirst {
				return a.doc.CreatedAt.After(b.doc.CreatedAt)
			}
			return a.doc.CreatedAt.Before(b.doc.CreatedAt)
		}
		if options.newestFirst {
			return a.seq > b.seq
		}
		return a.seq < b.seq
	})

	if options.limit > 0 && options.limit < len(matched) {
		matched = matched[:options.limit]
	}

	results := make([]Document, len(matched))
	for i, d := range matched {
		results[i] = d.doc
		results[i].Metadata = cloneMap(d.doc.Metadata)
	}
	return results, nil
}

// Count 统计数量
func (s *MemoryDocumentStore) Count(_ context.Context, collection string, filter Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, d := range s.collections[collection] {
		if matchFilter(&d.doc, filter) {
			count++
		}
	}
	return count, nil
}

// Clear 清空集合
func (s *MemoryDocumentStore) Clear(_ context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, collection)
	return nil
}

// Close 关闭连接
func (s *MemoryDocumentStore) Close() error {
	return nil
}

// matchFilter 检查文档是否匹配过滤条件
func matchFilter(doc *Document, filter Filter) bool {
	if filter.isEmpty() {
		return true
	}
	if len(filter.And) > 0 {
		for _, f := range filter.And {
			if !matchFilter(doc, f) {
				return false
			}
		}
		return true
	}

	value, ok := fieldValue(doc, filter.Field)
	switch filter.Op {
	case "eq", "":
		return ok && equalValues(value, filter.Value)
	case "ne":
		return !ok || !equalValues(value, filter.Value)
	case "contains":
		str, isStr := value.(string)
		tgt, tgtStr := filter.Value.(string)
		return isStr && tgtStr && strings.Contains(strings.ToLower(str), strings.ToLower(tgt))
	default:
		return false
	}
}

// fieldValue 读取文档字段值
func fieldValue(doc *Document, field string) (any, bool) {
	switch field {
	case "id":
		return doc.ID, true
	case "content":
		return doc.Content, true
	default:
		v, ok := doc.Metadata[field]
		return v, ok
	}
}

// equalValues 比较两个值
//
// 经 JSON 往返后数字会变成 float64，因此统一按字符串形式比较。
func equalValues(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MemoryGraphStore 内存图存储
type MemoryGraphStore struct {
	nodes map[string]Node
	// edges 以起点 ID 索引的出边，按追加顺序保存
	edges map[string][]Edge
	mu    sync.RWMutex
}

// NewMemoryGraphStore 创建内存图存储
func NewMemoryGraphStore() *MemoryGraphStore {
	return &MemoryGraphStore{
		nodes: make(map[string]Node),
		edges: make(map[string][]Edge),
	}
}

// UpsertNode 添加或更新节点
func (s *MemoryGraphStore) UpsertNode(_ context.Context, node Node) error {
	if node.ID == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.nodes[node.ID]; ok {
		node.CreatedAt = existing.CreatedAt
	} else if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now()
	}
	node.Properties = cloneMap(node.Properties)
	s.nodes[node.ID] = node
	return nil
}

// GetNode 获取节点
func (s *MemoryGraphStore) GetNode(_ context.Context, id string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	node.Properties = cloneMap(node.Properties)
	return &node, nil
}

// AddEdge 添加有向边
func (s *MemoryGraphStore) AddEdge(_ context.Context, edge Edge) error {
	if edge.From == "" || edge.To == "" || edge.Type == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[edge.From]; !ok {
		return ErrNotFound
	}
	if _, ok := s.nodes[edge.To]; !ok {
		return ErrNotFound
	}
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now()
	}
	s.edges[edge.From] = append(s.edges[edge.From], edge)
	return nil
}

// Neighbors 返回出边指向的节点，按边的创建时间倒序
func (s *MemoryGraphStore) Neighbors(_ context.Context, id string, edgeType string, limit int) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.edges[id]
	result := make([]Node, 0, len(out))
	// 倒序遍历使同一时间戳的后加边排在前面
	idx := make([]int, 0, len(out))
	for i := len(out) - 1; i >= 0; i-- {
		if edgeType == "" || out[i].Type == edgeType {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return out[idx[a]].CreatedAt.After(out[idx[b]].CreatedAt)
	})

	for _, i := range idx {
		if limit > 0 && len(result) >= limit {
			break
		}
		if node, ok := s.nodes[out[i].To]; ok {
			node.Properties = cloneMap(node.Properties)
			result = append(result, node)
		}
	}
	return result, nil
}

// DeleteNode 删除节点及其所有边
func (s *MemoryGraphStore) DeleteNode(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[id]; !ok {
		return ErrNotFound
	}
	delete(s.nodes, id)
	delete(s.edges, id)
	for from, edges := range s.edges {
		kept := edges[:0]
		for _, e := range edges {
			if e.To != id {
				kept = append(kept, e)
			}
		}
		s.edges[from] = kept
	}
	return nil
}

// Clear 清空所有数据
func (s *MemoryGraphStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[string]Node)
	s.edges = make(map[string][]Edge)
	return nil
}

// Close 关闭连接
func (s *MemoryGraphStore) Close() error {
	return nil
}

// 编译时接口检查
var (
	_ DocumentStore = (*MemoryDocumentStore)(nil)
	_ GraphStore    = (*MemoryGraphStore)(nil)
)
