package rag_test

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/easyops/storyctx/pkg/memory/store"
	"github.com/easyops/storyctx/pkg/otel"
	"github.com/easyops/storyctx/pkg/rag"
)

func lore() []rag.Document {
	return []rag.Document{
		{ID: "docks", Title: "Docks", Content: "The docks smell of tar and salt. Smugglers meet at night."},
		{ID: "guild", Title: "Ashen Guild", Content: "The Ashen Guild runs the smugglers of the salt docks."},
		{ID: "temple", Title: "Temple", Content: "A quiet temple on the hill."},
		{ID: "market", Content: "Salt is sold in the market."},
	}
}

func TestTokenize(t *testing.T) {
	got := rag.Tokenize("Where's the ASHEN guild? Pier-9, now!")
	want := []string{"where", "s", "the", "ashen", "guild", "pier", "9", "now"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize() = %v, want %v", got, want)
	}
}

func TestKeywordRetriever(t *testing.T) {
	metrics := otel.NewInMemoryMetrics()
	r := rag.NewKeywordRetriever(rag.NewIndex(lore()...), rag.WithMetrics(metrics))
	ctx := context.Background()

	tests := []struct {
		name  string
		query string
		topK  int
		want  []string
	}{
		{"ranked by overlap", "smugglers at the salt docks", 3, []string{"docks", "guild", "market"}},
		{"default top k", "smugglers at the salt docks", 0, []string{"docks", "guild"}},
		{"case insensitive", "TEMPLE HILL", 2, []string{"temple"}},
		{"no overlap", "dragons", 2, nil},
		{"empty query", "  ", 2, nil},
		{"ties keep index order", "salt", 5, []string{"docks", "guild", "market"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := r.Retrieve(ctx, tt.query, tt.topK)
			if err != nil {
				t.Fatalf("Retrieve() error = %v", err)
			}
			var ids []string
			for _, h := range hits {
				ids = append(ids, h.Document.ID)
				if h.Score <= 0 {
					t.Errorf("hit %s has score %d", h.Document.ID, h.Score)
				}
			}
			if !reflect.DeepEqual(ids, tt.want) {
				t.Errorf("Retrieve(%q) = %v, want %v", tt.query, ids, tt.want)
			}
		})
	}

	if got := metrics.GetCounterValue(otel.MetricRAGQueries); got != int64(len(tests)) {
		t.Errorf("queries = %d, want %d", got, len(tests))
	}
}

func TestKeywordRetriever_Scores(t *testing.T) {
	r := rag.NewKeywordRetriever(rag.NewIndex(lore()...))
	hits, err := r.Retrieve(context.Background(), "smugglers salt docks docks", 1)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(hits) != 1 || hits[0].Score != 3 {
		t.Errorf("hits = %+v, want docks with score 3", hits)
	}
}

func TestFormatHits(t *testing.T) {
	hits := []rag.Hit{
		{Document: rag.Document{Title: "Docks", Content: "Tar and\n  salt."}, Score: 2},
		{Document: rag.Document{Content: "Salt is sold."}, Score: 1},
	}
	want := "- Docks: Tar and salt.\n- Salt is sold."
	if got := rag.FormatHits(hits); got != want {
		t.Errorf("FormatHits() = %q, want %q", got, want)
	}
	if got := rag.FormatHits(nil); got != "" {
		t.Errorf("FormatHits(nil) = %q", got)
	}
}

func TestIndex_Replace(t *testing.T) {
	idx := rag.NewIndex(lore()...)
	idx.Add(rag.Document{ID: "docks", Content: "Rebuilt after the fire."})

	if idx.Len() != 4 {
		t.Errorf("Len() = %d, want 4", idx.Len())
	}
	if got := idx.Documents()[0].Content; got != "Rebuilt after the fire." {
		t.Errorf("first document = %q", got)
	}
}

func TestParagraphChunker(t *testing.T) {
	doc := rag.Document{
		ID:     "city",
		Source: "city.md",
		Content: "# Docks\nTar and salt.\nSmugglers.\n\n## Temple\nQuiet hill.\n\n\nBells at dusk.",
	}

	chunks := rag.NewParagraphChunker(0).Chunk(doc)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if chunks[0].Title != "Docks" || chunks[0].Content != "Tar and salt.\nSmugglers." {
		t.Errorf("chunk 0 = %+v", chunks[0])
	}
	if chunks[2].Title != "Temple" || chunks[2].ID != "city#2" {
		t.Errorf("chunk 2 = %+v", chunks[2])
	}

	small := rag.NewParagraphChunker(14).Chunk(rag.Document{ID: "x", Content: "Tar and salt.\nSmugglers."})
	if len(small) != 2 {
		t.Errorf("MaxChars split = %d chunks, want 2", len(small))
	}
}

func TestPathLoader(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"city.md":       "# Docks\nTar and salt.\n\n# Temple\nQuiet hill.",
		"npcs.yaml":     "- id: mira\n  title: Mira\n  content: Harbor master.\n  tags: [docks]\n- content: Nameless beggar.\n",
		"notes.bin":     "ignored",
		"sub/rumor.txt": "The guild is hiring.",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	docs, err := rag.NewPathLoader(dir).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	ids := make(map[string]rag.Document)
	for _, d := range docs {
		ids[d.ID] = d
	}
	for _, id := range []string{"city#0", "city#1", "mira", "npcs.yaml:1", "rumor#0"} {
		if _, ok := ids[id]; !ok {
			t.Errorf("missing document %s in %v", id, keys(ids))
		}
	}
	if len(docs) != 5 {
		t.Errorf("got %d documents, want 5", len(docs))
	}
	if got := ids["mira"].Tags; len(got) != 1 || got[0] != "docks" {
		t.Errorf("mira tags = %v", got)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	ds := store.NewMemoryDocumentStore()

	if err := rag.SaveDocuments(ctx, ds, "lore", lore()); err != nil {
		t.Fatalf("SaveDocuments() error = %v", err)
	}
	idx, err := rag.BuildIndex(ctx, rag.NewMultiLoader(
		rag.NewStoreLoader(ds, "lore"),
		rag.NewStringLoader("Rumor", "A ghost haunts the temple."),
	))
	if err != nil {
		t.Fatalf("BuildIndex() error = %v", err)
	}
	if idx.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", idx.Len())
	}

	hits, err := rag.NewKeywordRetriever(idx).Retrieve(ctx, "ashen guild", 2)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(hits) == 0 || hits[0].Document.ID != "guild" || hits[0].Document.Title != "Ashen Guild" {
		t.Errorf("hits = %+v", hits)
	}
}

func TestMultiRetriever(t *testing.T) {
	a := rag.NewKeywordRetriever(rag.NewIndex(lore()[:2]...))
	b := rag.NewKeywordRetriever(rag.NewIndex(lore()[1:]...))
	m := rag.NewMultiRetriever(a, b)

	hits, err := m.Retrieve(context.Background(), "salt smugglers", 5)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	var ids []string
	for _, h := range hits {
		ids = append(ids, h.Document.ID)
	}
	if strings.Join(ids, ",") != "docks,guild,market" {
		t.Errorf("ids = %v, want docks,guild,market", ids)
	}
}

func keys(m map[string]rag.Document) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
