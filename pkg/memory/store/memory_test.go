package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

// documentStores 返回所有可在测试中直接创建的 DocumentStore 实现
func documentStores(t *testing.T) map[string]DocumentStore {
	t.Helper()

	sqlite, err := NewSQLiteDocumentStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteDocumentStore() error = %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]DocumentStore{
		"memory": NewMemoryDocumentStore(),
		"sqlite": sqlite,
	}
}

func TestDocumentStore_PutGet(t *testing.T) {
	ctx := context.Background()
	for name, s := range documentStores(t) {
		t.Run(name, func(t *testing.T) {
			doc := Document{
				ID:       "fact-1",
				Content:  "Mira owes the smith ten silver",
				Metadata: map[string]any{"npc": "mira"},
			}
			if err := s.Put(ctx, "facts", doc); err != nil {
				t.Fatalf("Put() error = %v", err)
			}

			got, err := s.Get(ctx, "facts", "fact-1")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.Content != doc.Content {
				t.Errorf("Content = %q, want %q", got.Content, doc.Content)
			}
			if got.Metadata["npc"] != "mira" {
				t.Errorf("Metadata[npc] = %v, want mira", got.Metadata["npc"])
			}
			if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
				t.Error("timestamps should be set")
			}
		})
	}
}

func TestDocumentStore_PutKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	for name, s := range documentStores(t) {
		t.Run(name, func(t *testing.T) {
			created := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
			_ = s.Put(ctx, "summaries", Document{ID: "latest", Content: "v1", CreatedAt: created})
			_ = s.Put(ctx, "summaries", Document{ID: "latest", Content: "v2"})

			got, err := s.Get(ctx, "summaries", "latest")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.Content != "v2" {
				t.Errorf("Content = %q, want v2", got.Content)
			}
			if !got.CreatedAt.Equal(created) {
				t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
			}
		})
	}
}

func TestDocumentStore_Errors(t *testing.T) {
	ctx := context.Background()
	for name, s := range documentStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Get(ctx, "facts", "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get() error = %v, want ErrNotFound", err)
			}
			if err := s.Delete(ctx, "facts", "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Delete() error = %v, want ErrNotFound", err)
			}
			if err := s.Put(ctx, "facts", Document{Content: "no id"}); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Put() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestDocumentStore_QueryNewestFirst(t *testing.T) {
	ctx := context.Background()
	base := time.Now().Add(-time.Minute).Truncate(time.Millisecond)

	for name, s := range documentStores(t) {
		t.Run(name, func(t *testing.T) {
			for i, id := range []string{"a", "b", "c", "d"} {
				npc := "mira"
				if id == "c" {
					npc = "tomas"
				}
				err := s.Put(ctx, "facts", Document{
					ID:        id,
					Content:   "fact " + id,
					Metadata:  map[string]any{"npc": npc},
					CreatedAt: base.Add(time.Duration(i) * time.Second),
				})
				if err != nil {
					t.Fatalf("Put(%s) error = %v", id, err)
				}
			}

			docs, err := s.Query(ctx, "facts", Eq("npc", "mira"), WithNewestFirst(), WithQueryLimit(2))
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(docs) != 2 {
				t.Fatalf("len(docs) = %d, want 2", len(docs))
			}
			if docs[0].ID != "d" || docs[1].ID != "b" {
				t.Errorf("order = [%s %s], want [d b]", docs[0].ID, docs[1].ID)
			}

			all, _ := s.Query(ctx, "facts", Filter{})
			if len(all) != 4 || all[0].ID != "a" {
				t.Errorf("Query(all) = %d docs starting at %v, want 4 starting at a", len(all), all)
			}
		})
	}
}

func TestDocumentStore_ContainsAndCount(t *testing.T) {
	ctx := context.Background()
	for name, s := range documentStores(t) {
		t.Run(name, func(t *testing.T) {
			_ = s.Put(ctx, "lore", Document{ID: "1", Content: "The Ashen Guild trades in salt"})
			_ = s.Put(ctx, "lore", Document{ID: "2", Content: "Rivermouth is a fishing town"})

			docs, err := s.Query(ctx, "lore", Filter{Field: "content", Op: "contains", Value: "GUILD"})
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(docs) != 1 || docs[0].ID != "1" {
				t.Errorf("contains query = %v, want doc 1", docs)
			}

			n, err := s.Count(ctx, "lore", Filter{})
			if err != nil || n != 2 {
				t.Errorf("Count() = %d, %v, want 2", n, err)
			}

			if err := s.Clear(ctx, "lore"); err != nil {
				t.Fatalf("Clear() error = %v", err)
			}
			if n, _ := s.Count(ctx, "lore", Filter{}); n != 0 {
				t.Errorf("Count() after Clear = %d, want 0", n)
			}
		})
	}
}

func TestMemoryGraphStore_Neighbors(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGraphStore()
	base := time.Now()

	_ = g.UpsertNode(ctx, Node{ID: "npc:mira", Label: "npc"})
	for i, id := range []string{"f1", "f2", "f3"} {
		if err := g.UpsertNode(ctx, Node{ID: id, Label: "fact", Properties: map[string]any{"text": id}}); err != nil {
			t.Fatalf("UpsertNode() error = %v", err)
		}
		err := g.AddEdge(ctx, Edge{From: "npc:mira", To: id, Type: "KNOWS", CreatedAt: base.Add(time.Duration(i) * time.Second)})
		if err != nil {
			t.Fatalf("AddEdge() error = %v", err)
		}
	}

	nodes, err := g.Neighbors(ctx, "npc:mira", "KNOWS", 2)
	if err != nil {
		t.Fatalf("Neighbors() error = %v", err)
	}
	if len(nodes) != 2 || nodes[0].ID != "f3" || nodes[1].ID != "f2" {
		t.Errorf("Neighbors() = %v, want [f3 f2]", nodes)
	}

	if err := g.AddEdge(ctx, Edge{From: "npc:mira", To: "missing", Type: "KNOWS"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("AddEdge(missing) error = %v, want ErrNotFound", err)
	}

	if err := g.DeleteNode(ctx, "f3"); err != nil {
		t.Fatalf("DeleteNode() error = %v", err)
	}
	nodes, _ = g.Neighbors(ctx, "npc:mira", "KNOWS", 0)
	if len(nodes) != 2 || nodes[0].ID != "f2" {
		t.Errorf("Neighbors() after delete = %v, want [f2 f1]", nodes)
	}
}

func TestMemoryGraphStore_UpsertKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGraphStore()
	created := time.Now().Add(-time.Hour)

	_ = g.UpsertNode(ctx, Node{ID: "n", Label: "npc", CreatedAt: created})
	_ = g.UpsertNode(ctx, Node{ID: "n", Label: "npc", Properties: map[string]any{"persona": "gruff"}})

	got, err := g.GetNode(ctx, "n")
	if err != nil {
		t.Fatalf("GetNode() error = %v", err)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}
	if got.Properties["persona"] != "gruff" {
		t.Errorf("Properties = %v", got.Properties)
	}

	if err := g.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, err := g.GetNode(ctx, "n"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetNode() after Clear error = %v, want ErrNotFound", err)
	}
}

func TestFactory(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default memory", DefaultConfig(), false},
		{"sqlite memory db", Config{Documents: StoreTypeSQLite, SQLitePath: ":memory:"}, false},
		{"unsupported", Config{Documents: "qdrant"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewDocumentStore(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewDocumentStore() error = %v, wantErr %v", err, tt.wantErr)
			}
			if s != nil {
				_ = s.Close()
			}
		})
	}

	g, err := NewGraphStore(Config{})
	if err != nil || g != nil {
		t.Errorf("NewGraphStore(empty) = %v, %v, want nil, nil", g, err)
	}
	g, err = NewGraphStore(Config{Graph: StoreTypeMemory})
	if err != nil || g == nil {
		t.Errorf("NewGraphStore(memory) = %v, %v", g, err)
	}
}
