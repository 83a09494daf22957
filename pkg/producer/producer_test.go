package producer_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	agentctx "github.com/easyops/storyctx/pkg/context"
	"github.com/easyops/storyctx/pkg/core/message"
	"github.com/easyops/storyctx/pkg/manifest"
	"github.com/easyops/storyctx/pkg/memory"
	"github.com/easyops/storyctx/pkg/producer"
	"github.com/easyops/storyctx/pkg/rag"
	"github.com/easyops/storyctx/pkg/summary"
)

func predict(t *testing.T, p agentctx.Producer) agentctx.Candidate {
	t.Helper()
	c, err := p.Predict(context.Background())
	if err != nil {
		t.Fatalf("%s Predict() error = %v", p.Name(), err)
	}
	return c
}

func TestGuard(t *testing.T) {
	tests := []struct {
		name     string
		persona  string
		template string
		want     string
	}{
		{"default template", "Rook", "", "You are writing as Rook. Stay in character."},
		{"no persona", "", "", "You are writing as the narrator."},
		{"custom template", "Rook", "Speak only as {{.Persona}}.", "Speak only as Rook."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := producer.NewGuard(producer.NewSceneState(producer.Scene{Persona: tt.persona}), tt.template)
			if err != nil {
				t.Fatalf("NewGuard() error = %v", err)
			}
			if got := predict(t, g).Text; !strings.HasPrefix(got, tt.want) {
				t.Errorf("Text = %q, want prefix %q", got, tt.want)
			}
		})
	}

	if _, err := producer.NewGuard(producer.NewSceneState(producer.Scene{}), "{{.Persona"); !errors.Is(err, producer.ErrInvalidTemplate) {
		t.Errorf("NewGuard(bad template) error = %v", err)
	}
}

func TestHeader(t *testing.T) {
	tests := []struct {
		name  string
		scene producer.Scene
		want  string
	}{
		{
			name:  "full scene",
			scene: producer.Scene{Location: "Dunmere docks", Date: "3rd of Frost", TimeOfDay: "dusk", Weather: "fog"},
			want:  "Location: Dunmere docks | Date: 3rd of Frost | Time: dusk | Weather: fog",
		},
		{
			name:  "badges and balance",
			scene: producer.Scene{Location: "Market", Badges: []string{"Heist", "Act II"}, Balance: "12 silver"},
			want:  "[Heist] [Act II] Balance: 12 silver\nLocation: Market",
		},
		{
			name:  "badges only",
			scene: producer.Scene{Weather: "rain", Badges: []string{"Night"}},
			want:  "[Night]\nWeather: rain",
		},
		{
			name:  "empty scene",
			scene: producer.Scene{},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := producer.NewHeader(producer.NewSceneState(tt.scene), "")
			if err != nil {
				t.Fatalf("NewHeader() error = %v", err)
			}
			if got := predict(t, h).Text; got != tt.want {
				t.Errorf("Text = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCombatHeader(t *testing.T) {
	state := producer.NewSceneState(producer.Scene{Location: "Old bridge"})
	c, err := producer.NewCombatHeader(state, "")
	if err != nil {
		t.Fatalf("NewCombatHeader() error = %v", err)
	}

	if got := predict(t, c).Text; got != "" {
		t.Errorf("Text outside combat = %q, want empty", got)
	}

	state.Update(func(s *producer.Scene) {
		s.Mode = producer.ModeCombat
		s.Combat = producer.Combat{Round: 2, Enemies: []string{"troll", "goblin"}, Objective: "hold the bridge"}
	})
	want := "COMBAT round 2 at Old bridge\nEnemies: troll, goblin\nObjective: hold the bridge"
	if got := predict(t, c).Text; got != want {
		t.Errorf("Text = %q, want %q", got, want)
	}

	state.Update(func(s *producer.Scene) { s.Mode = "explore" })
	if got := predict(t, c).Text; got != "" {
		t.Errorf("Text after combat = %q, want empty", got)
	}
}

func TestSceneState_Isolation(t *testing.T) {
	badges := []string{"A"}
	state := producer.NewSceneState(producer.Scene{Badges: badges})
	badges[0] = "mutated"

	scene, _ := state.Scene(context.Background())
	if scene.Badges[0] != "A" {
		t.Errorf("Badges = %v, state should own its copy", scene.Badges)
	}
	scene.Badges[0] = "changed"
	again, _ := state.Scene(context.Background())
	if again.Badges[0] != "A" {
		t.Errorf("Badges = %v, readers should get copies", again.Badges)
	}
}

func TestPrimer(t *testing.T) {
	data := []byte("name: Dunmere\nversion: \"2\"\nraces:\n  - name: Tidefolk\n")
	cache := manifest.NewCache(manifest.FetcherFunc(func(context.Context) ([]byte, error) {
		return data, nil
	}))

	c := predict(t, producer.NewPrimer(cache))
	if c.Text != "World: Dunmere\nRaces: Tidefolk" {
		t.Errorf("Text = %q", c.Text)
	}
	if c.Meta["manifest"] != "Dunmere" || c.Meta["version"] != "2" {
		t.Errorf("Meta = %v", c.Meta)
	}

	t.Run("no source", func(t *testing.T) {
		none := manifest.NewCache(manifest.FetcherFunc(func(context.Context) ([]byte, error) {
			return nil, manifest.ErrNoSource
		}))
		if got := predict(t, producer.NewPrimer(none)).Text; got != "" {
			t.Errorf("Text = %q, want empty", got)
		}
	})

	t.Run("fetch failure", func(t *testing.T) {
		broken := manifest.NewCache(manifest.FetcherFunc(func(context.Context) ([]byte, error) {
			return nil, manifest.ErrFetchFailed
		}))
		if _, err := producer.NewPrimer(broken).Predict(context.Background()); err == nil {
			t.Error("Predict() error = nil, want fetch failure")
		}
	})
}

type latestFunc func(ctx context.Context) (string, error)

func (f latestFunc) Latest(ctx context.Context) (string, error) { return f(ctx) }

func TestSummary(t *testing.T) {
	tests := []struct {
		name    string
		latest  latestFunc
		want    string
		wantErr bool
	}{
		{"latest summary", func(context.Context) (string, error) { return "The caravan left.", nil }, "Story so far: The caravan left.", false},
		{"no summary yet", func(context.Context) (string, error) { return "", summary.ErrNoSummary }, "", false},
		{"store failure", func(context.Context) (string, error) { return "", errors.New("disk") }, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := producer.NewSummary(tt.latest).Predict(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Predict() error = %v, wantErr %v", err, tt.wantErr)
			}
			if c.Text != tt.want {
				t.Errorf("Text = %q, want %q", c.Text, tt.want)
			}
		})
	}
}

func loreIndex() *rag.Index {
	return rag.NewIndex(
		rag.Document{ID: "docks", Title: "Dunmere docks", Content: "Fishing boats and smugglers share the docks."},
		rag.Document{ID: "bell", Title: "Tidecall", Content: "The evening bell rings when the tide turns."},
		rag.Document{ID: "guild", Title: "Smugglers guild", Content: "The guild meets below the docks at the bell."},
	)
}

func TestRetrieval(t *testing.T) {
	ctx := context.Background()

	t.Run("query from latest user message", func(t *testing.T) {
		mem := memory.NewWorkingMemory()
		_ = mem.AddMessage(ctx, message.NewUserMessage("who rings the bell"))
		_ = mem.AddMessage(ctx, message.NewAssistantMessage("docks docks docks"))

		p := producer.NewRetrieval(rag.NewKeywordRetriever(loreIndex()), mem, producer.WithTopK(1))
		c := predict(t, p)
		if c.Text != "- Tidecall: The evening bell rings when the tide turns." {
			t.Errorf("Text = %q", c.Text)
		}
		if c.Meta["query"] != "who rings the bell" {
			t.Errorf("query = %v", c.Meta["query"])
		}
	})

	t.Run("falls back to location", func(t *testing.T) {
		scene := producer.NewSceneState(producer.Scene{Location: "Dunmere docks"})
		p := producer.NewRetrieval(rag.NewKeywordRetriever(loreIndex()), memory.NewWorkingMemory(), producer.WithScene(scene))
		c := predict(t, p)
		lines := strings.Split(c.Text, "\n")
		if len(lines) != 2 || !strings.HasPrefix(lines[0], "- Dunmere docks:") {
			t.Errorf("Text = %q, want the docks entry first of two", c.Text)
		}
		hits, _ := c.Meta["hits"].([]map[string]any)
		if len(hits) != 2 || hits[0]["id"] != "docks" || hits[0]["score"] != 2 {
			t.Errorf("hits = %v", hits)
		}
	})

	t.Run("no query", func(t *testing.T) {
		p := producer.NewRetrieval(rag.NewKeywordRetriever(loreIndex()), memory.NewWorkingMemory())
		if c := predict(t, p); c.Text != "" {
			t.Errorf("Text = %q, want empty", c.Text)
		}
	})

	t.Run("no overlap", func(t *testing.T) {
		mem := memory.NewWorkingMemory()
		_ = mem.AddMessage(ctx, message.NewUserMessage("xyzzy"))
		p := producer.NewRetrieval(rag.NewKeywordRetriever(loreIndex()), mem)
		if c := predict(t, p); c.Text != "" {
			t.Errorf("Text = %q, want empty", c.Text)
		}
	})
}

func TestNPCMemory(t *testing.T) {
	ctx := context.Background()
	book := memory.NewMemoryFactBook()
	_ = book.Register(ctx, memory.NPC{ID: "mira", Name: "Mira", Persona: "gruff blacksmith"})
	_ = book.Register(ctx, memory.NPC{ID: "oskar", Name: "Oskar", Persona: "nervous ferryman"})
	_ = book.Register(ctx, memory.NPC{ID: "ana", Name: "Ana", Persona: "street urchin"})
	_, _ = book.Remember(ctx, "mira", "owes the player a sword")
	_, _ = book.Remember(ctx, "mira", "dislikes the harbour master")
	_ = book.SetSummary(ctx, "mira", "Mira agreed to mend the blade.")

	mem := memory.NewWorkingMemory()
	_ = mem.AddMessage(ctx, message.NewUserMessage("I visit Mira at the forge"))

	tracker := memory.NewPresenceTracker(memory.WithMaxPresent(2))
	tracker.Mark("oskar")
	tracker.Mark("ghost")

	p := producer.NewNPCMemory(book, tracker, mem, producer.WithMaxFacts(1))
	c := predict(t, p)

	want := "Oskar: nervous ferryman\n" +
		"Mira: gruff blacksmith\n  Memory: Mira agreed to mend the blade.\n  - dislikes the harbour master"
	// ghost 占了一个在场名额但不在事实簿中，只渲染 oskar
	if c.Text != "Oskar: nervous ferryman" {
		t.Errorf("Text = %q", c.Text)
	}
	if matched, _ := c.Meta["matched"].([]string); !slices.Equal(matched, []string{"mira"}) {
		t.Errorf("matched = %v", c.Meta["matched"])
	}

	tracker.Unmark("ghost")
	c = predict(t, p)
	if c.Text != want {
		t.Errorf("Text =\n%s\nwant\n%s", c.Text, want)
	}
	if present, _ := c.Meta["present"].([]string); !slices.Equal(present, []string{"oskar", "mira"}) {
		t.Errorf("present = %v", c.Meta["present"])
	}
}

func TestProducerNames(t *testing.T) {
	scene := producer.NewSceneState(producer.Scene{})
	guard, _ := producer.NewGuard(scene, "")
	header, _ := producer.NewHeader(scene, "")
	combat, _ := producer.NewCombatHeader(scene, "")
	producers := []agentctx.Producer{
		guard,
		header,
		combat,
		producer.NewPrimer(nil),
		producer.NewSummary(nil),
		producer.NewRetrieval(nil, nil),
		producer.NewNPCMemory(nil, nil, nil),
	}

	var names []agentctx.ComponentName
	for _, p := range producers {
		names = append(names, p.Name())
	}
	if !slices.Equal(names, agentctx.KnownComponents()) {
		t.Errorf("names = %v, want %v", names, agentctx.KnownComponents())
	}
}
