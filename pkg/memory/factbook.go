package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/easyops/storyctx/pkg/memory/store"
	"github.com/google/uuid"
)

// MemoryFactBook 内存事实簿
type MemoryFactBook struct {
	order     []string
	npcs      map[string]NPC
	summaries map[string]string
	facts     map[string][]Fact
	now       func() time.Time
	mu        sync.RWMutex
}

// NewMemoryFactBook 创建内存事实簿
func NewMemoryFactBook() *MemoryFactBook {
	return &MemoryFactBook{
		npcs:      make(map[string]NPC),
		summaries: make(map[string]string),
		facts:     make(map[string][]Fact),
		now:       time.Now,
	}
}

// Register 添加或更新 NPC
func (b *MemoryFactBook) Register(_ context.Context, npc NPC) error {
	if err := npc.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.npcs[npc.ID]; !ok {
		b.order = append(b.order, npc.ID)
	}
	npc.Aliases = slices.Clone(npc.Aliases)
	b.npcs[npc.ID] = npc
	return nil
}

// NPCs 按注册顺序返回所有 NPC
func (b *MemoryFactBook) NPCs(_ context.Context) ([]NPC, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]NPC, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.npcs[id])
	}
	return out, nil
}

// Remember 记录事实
func (b *MemoryFactBook) Remember(_ context.Context, npcID string, text string) (Fact, error) {
	if strings.TrimSpace(text) == "" {
		return Fact{}, ErrInvalidInput
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.npcs[npcID]; !ok {
		return Fact{}, fmt.Errorf("%w: npc %s", ErrNotFound, npcID)
	}
	f := Fact{ID: uuid.NewString(), NPCID: npcID, Text: text, CreatedAt: b.now()}
	b.facts[npcID] = append(b.facts[npcID], f)
	return f, nil
}

// SetSummary 更新记忆摘要
func (b *MemoryFactBook) SetSummary(_ context.Context, npcID string, summary string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.npcs[npcID]; !ok {
		return fmt.Errorf("%w: npc %s", ErrNotFound, npcID)
	}
	b.summaries[npcID] = summary
	return nil
}

// Profile 返回 NPC 档案
func (b *MemoryFactBook) Profile(_ context.Context, npcID string, maxFacts int) (*Profile, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	npc, ok := b.npcs[npcID]
	if !ok {
		return nil, fmt.Errorf("%w: npc %s", ErrNotFound, npcID)
	}
	facts := b.facts[npcID]
	if maxFacts >= 0 && len(facts) > maxFacts {
		facts = facts[len(facts)-maxFacts:]
	}
	return &Profile{NPC: npc, Summary: b.summaries[npcID], Facts: slices.Clone(facts)}, nil
}

// 事实簿在文档存储中使用的集合
const (
	CollectionNPCs  = "npcs"
	CollectionFacts = "npc_facts"
)

// DocumentFactBook 基于 DocumentStore 的事实簿
//
// NPC 以设定为内容存入 npcs 集合，事实存入 npc_facts 集合并以 npc_id 关联。
type DocumentFactBook struct {
	store store.DocumentStore
}

// NewDocumentFactBook 创建基于文档存储的事实簿
func NewDocumentFactBook(s store.DocumentStore) *DocumentFactBook {
	return &DocumentFactBook{store: s}
}

// Register 添加或更新 NPC
func (b *DocumentFactBook) Register(ctx context.Context, npc NPC) error {
	if err := npc.Validate(); err != nil {
		return err
	}
	meta := map[string]any{
		"name":    npc.Name,
		"aliases": joinAliases(npc.Aliases),
	}
	existing, err := b.store.Get(ctx, CollectionNPCs, npc.ID)
	switch {
	case err == nil:
		if s, ok := existing.Metadata["summary"].(string); ok {
			meta["summary"] = s
		}
	case !errors.Is(err, store.ErrNotFound):
		return err
	}
	return b.store.Put(ctx, CollectionNPCs, store.Document{ID: npc.ID, Content: npc.Persona, Metadata: meta})
}

// NPCs 按注册顺序返回所有 NPC
func (b *DocumentFactBook) NPCs(ctx context.Context) ([]NPC, error) {
	docs, err := b.store.Query(ctx, CollectionNPCs, store.Filter{}, store.WithQueryLimit(0))
	if err != nil {
		return nil, err
	}
	out := make([]NPC, 0, len(docs))
	for i := range docs {
		out = append(out, npcFromDocument(&docs[i]))
	}
	return out, nil
}

// Remember 记录事实
func (b *DocumentFactBook) Remember(ctx context.Context, npcID string, text string) (Fact, error) {
	if strings.TrimSpace(text) == "" {
		return Fact{}, ErrInvalidInput
	}
	if _, err := b.npc(ctx, npcID); err != nil {
		return Fact{}, err
	}
	f := Fact{ID: uuid.NewString(), NPCID: npcID, Text: text, CreatedAt: time.Now()}
	doc := store.Document{
		ID:        f.ID,
		Content:   text,
		Metadata:  map[string]any{"npc_id": npcID},
		CreatedAt: f.CreatedAt,
	}
	if err := b.store.Put(ctx, CollectionFacts, doc); err != nil {
		return Fact{}, err
	}
	return f, nil
}

// SetSummary 更新记忆摘要
func (b *DocumentFactBook) SetSummary(ctx context.Context, npcID string, summary string) error {
	doc, err := b.npc(ctx, npcID)
	if err != nil {
		return err
	}
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]any)
	}
	doc.Metadata["summary"] = summary
	return b.store.Put(ctx, CollectionNPCs, *doc)
}

// Profile 返回 NPC 档案
func (b *DocumentFactBook) Profile(ctx context.Context, npcID string, maxFacts int) (*Profile, error) {
	doc, err := b.npc(ctx, npcID)
	if err != nil {
		return nil, err
	}
	p := &Profile{NPC: npcFromDocument(doc)}
	p.Summary, _ = doc.Metadata["summary"].(string)
	if maxFacts == 0 {
		return p, nil
	}

	docs, err := b.store.Query(ctx, CollectionFacts, store.Eq("npc_id", npcID),
		store.WithNewestFirst(), store.WithQueryLimit(maxFacts))
	if err != nil {
		return nil, err
	}
	for i := len(docs) - 1; i >= 0; i-- {
		p.Facts = append(p.Facts, Fact{ID: docs[i].ID, NPCID: npcID, Text: docs[i].Content, CreatedAt: docs[i].CreatedAt})
	}
	return p, nil
}

func (b *DocumentFactBook) npc(ctx context.Context, id string) (*store.Document, error) {
	doc, err := b.store.Get(ctx, CollectionNPCs, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: npc %s", ErrNotFound, id)
	}
	return doc, err
}

func npcFromDocument(doc *store.Document) NPC {
	npc := NPC{ID: doc.ID, Persona: doc.Content}
	npc.Name, _ = doc.Metadata["name"].(string)
	aliases, _ := doc.Metadata["aliases"].(string)
	npc.Aliases = splitAliases(aliases)
	return npc
}

// 图存储中的标签与边类型
const (
	LabelNPC       = "npc"
	LabelFact      = "fact"
	LabelRoster    = "roster"
	EdgeRemembers  = "REMEMBERS"
	EdgeHasNPC     = "HAS_NPC"
	rosterNodeID   = "storyctx:roster"
	factNodePrefix = "fact:"
)

// GraphFactBook 基于 GraphStore 的事实簿
//
// NPC 与事实都是节点，NPC -REMEMBERS-> 事实；
// 一个名册节点以 HAS_NPC 边指向全部 NPC，用于列举。
type GraphFactBook struct {
	graph  store.GraphStore
	mu     sync.Mutex
	rooted bool
}

// NewGraphFactBook 创建基于图存储的事实簿
func NewGraphFactBook(g store.GraphStore) *GraphFactBook {
	return &GraphFactBook{graph: g}
}

func (b *GraphFactBook) ensureRoster(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rooted {
		return nil
	}
	if _, err := b.graph.GetNode(ctx, rosterNodeID); err == nil {
		b.rooted = true
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err := b.graph.UpsertNode(ctx, store.Node{ID: rosterNodeID, Label: LabelRoster}); err != nil {
		return err
	}
	b.rooted = true
	return nil
}

// Register 添加或更新 NPC
func (b *GraphFactBook) Register(ctx context.Context, npc NPC) error {
	if err := npc.Validate(); err != nil {
		return err
	}
	if err := b.ensureRoster(ctx); err != nil {
		return err
	}

	props := map[string]any{
		"name":    npc.Name,
		"aliases": joinAliases(npc.Aliases),
		"persona": npc.Persona,
	}
	existing, err := b.graph.GetNode(ctx, npc.ID)
	switch {
	case err == nil:
		if s, ok := existing.Properties["summary"].(string); ok {
			props["summary"] = s
		}
		return b.graph.UpsertNode(ctx, store.Node{ID: npc.ID, Label: LabelNPC, Properties: props})
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	if err := b.graph.UpsertNode(ctx, store.Node{ID: npc.ID, Label: LabelNPC, Properties: props}); err != nil {
		return err
	}
	return b.graph.AddEdge(ctx, store.Edge{From: rosterNodeID, To: npc.ID, Type: EdgeHasNPC})
}

// NPCs 按注册顺序返回所有 NPC
func (b *GraphFactBook) NPCs(ctx context.Context) ([]NPC, error) {
	if err := b.ensureRoster(ctx); err != nil {
		return nil, err
	}
	nodes, err := b.graph.Neighbors(ctx, rosterNodeID, EdgeHasNPC, 0)
	if err != nil {
		return nil, err
	}
	out := make([]NPC, 0, len(nodes))
	for i := len(nodes) - 1; i >= 0; i-- {
		out = append(out, npcFromNode(&nodes[i]))
	}
	return out, nil
}

// Remember 记录事实
func (b *GraphFactBook) Remember(ctx context.Context, npcID string, text string) (Fact, error) {
	if strings.TrimSpace(text) == "" {
		return Fact{}, ErrInvalidInput
	}
	if _, err := b.node(ctx, npcID); err != nil {
		return Fact{}, err
	}

	f := Fact{ID: uuid.NewString(), NPCID: npcID, Text: text, CreatedAt: time.Now()}
	node := store.Node{
		ID:         factNodePrefix + f.ID,
		Label:      LabelFact,
		Properties: map[string]any{"text": text, "npc_id": npcID},
		CreatedAt:  f.CreatedAt,
	}
	if err := b.graph.UpsertNode(ctx, node); err != nil {
		return Fact{}, err
	}
	if err := b.graph.AddEdge(ctx, store.Edge{From: npcID, To: node.ID, Type: EdgeRemembers, CreatedAt: f.CreatedAt}); err != nil {
		return Fact{}, err
	}
	return f, nil
}

// SetSummary 更新记忆摘要
func (b *GraphFactBook) SetSummary(ctx context.Context, npcID string, summary string) error {
	node, err := b.node(ctx, npcID)
	if err != nil {
		return err
	}
	if node.Properties == nil {
		node.Properties = make(map[string]any)
	}
	node.Properties["summary"] = summary
	return b.graph.UpsertNode(ctx, *node)
}

// Profile 返回 NPC 档案
func (b *GraphFactBook) Profile(ctx context.Context, npcID string, maxFacts int) (*Profile, error) {
	node, err := b.node(ctx, npcID)
	if err != nil {
		return nil, err
	}
	p := &Profile{NPC: npcFromNode(node)}
	p.Summary, _ = node.Properties["summary"].(string)
	if maxFacts == 0 {
		return p, nil
	}

	facts, err := b.graph.Neighbors(ctx, npcID, EdgeRemembers, max(maxFacts, 0))
	if err != nil {
		return nil, err
	}
	for i := len(facts) - 1; i >= 0; i-- {
		text, _ := facts[i].Properties["text"].(string)
		p.Facts = append(p.Facts, Fact{
			ID:        strings.TrimPrefix(facts[i].ID, factNodePrefix),
			NPCID:     npcID,
			Text:      text,
			CreatedAt: facts[i].CreatedAt,
		})
	}
	return p, nil
}

func (b *GraphFactBook) node(ctx context.Context, id string) (*store.Node, error) {
	node, err := b.graph.GetNode(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && node.Label != LabelNPC) {
		return nil, fmt.Errorf("%w: npc %s", ErrNotFound, id)
	}
	return node, err
}

func npcFromNode(n *store.Node) NPC {
	npc := NPC{ID: n.ID}
	npc.Name, _ = n.Properties["name"].(string)
	npc.Persona, _ = n.Properties["persona"].(string)
	aliases, _ := n.Properties["aliases"].(string)
	npc.Aliases = splitAliases(aliases)
	return npc
}

// 编译时接口检查
var (
	_ FactBook = (*MemoryFactBook)(nil)
	_ FactBook = (*DocumentFactBook)(nil)
	_ FactBook = (*GraphFactBook)(nil)
)
