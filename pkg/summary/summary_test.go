package summary_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/easyops/storyctx/pkg/core/llm"
	"github.com/easyops/storyctx/pkg/core/message"
	"github.com/easyops/storyctx/pkg/memory"
	"github.com/easyops/storyctx/pkg/memory/store"
	"github.com/easyops/storyctx/pkg/otel"
	"github.com/easyops/storyctx/pkg/summary"
)

// fakeProvider 记录请求并按顺序返回预设回复
type fakeProvider struct {
	mu       sync.Mutex
	requests []llm.Request
	replies  []string
	err      error
}

func (p *fakeProvider) Generate(_ context.Context, req llm.Request) (llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return llm.Response{}, p.err
	}
	n := len(p.requests)
	if n <= len(p.replies) {
		return llm.Response{Content: p.replies[n-1]}, nil
	}
	return llm.Response{Content: fmt.Sprintf("summary %d", n)}, nil
}

func (p *fakeProvider) Name() string  { return "fake" }
func (p *fakeProvider) Model() string { return "fake-1" }
func (p *fakeProvider) Close() error  { return nil }

func (p *fakeProvider) userInput(i int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[i].Messages[1].Content
}

func addTurns(t *testing.T, mem memory.ConversationMemory, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_ = mem.AddMessage(context.Background(), message.NewUserMessage(fmt.Sprintf("user %d", mem.UserTurns()+1)))
		_ = mem.AddMessage(context.Background(), message.NewAssistantMessage("reply"))
	}
}

func TestSummarizer_Cadence(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewWorkingMemory()
	provider := &fakeProvider{}
	metrics := otel.NewInMemoryMetrics()
	s := summary.New(provider, mem, summary.WithEvery(3), summary.WithWindow(4), summary.WithMetrics(metrics))

	if _, err := s.Latest(ctx); !errors.Is(err, summary.ErrNoSummary) {
		t.Fatalf("Latest() error = %v, want ErrNoSummary", err)
	}

	addTurns(t, mem, 2)
	if done, err := s.MaybeSummarize(ctx); done || err != nil {
		t.Fatalf("MaybeSummarize() at 2 turns = %v, %v", done, err)
	}

	addTurns(t, mem, 1)
	if done, err := s.MaybeSummarize(ctx); !done || err != nil {
		t.Fatalf("MaybeSummarize() at 3 turns = %v, %v", done, err)
	}
	if got, _ := s.Latest(ctx); got != "summary 1" {
		t.Errorf("Latest() = %q", got)
	}
	if in := provider.userInput(0); !strings.HasPrefix(in, "Transcript:\nuser: user 2\nassistant: reply\nuser: user 3") {
		t.Errorf("first input = %q, want the last 4 messages", in)
	}

	// 计数从上次生成处重新累计
	addTurns(t, mem, 2)
	if s.Due() {
		t.Error("Due() = true after 2 more turns")
	}
	addTurns(t, mem, 1)
	if done, _ := s.MaybeSummarize(ctx); !done {
		t.Fatal("MaybeSummarize() at 6 turns = false")
	}
	if in := provider.userInput(1); !strings.HasPrefix(in, "Previous summary:\nsummary 1\n\nTranscript:") {
		t.Errorf("second input = %q, want the previous summary first", in)
	}
	if got := metrics.GetCounterValue(otel.MetricSummaryRuns); got != 2 {
		t.Errorf("summary runs = %d, want 2", got)
	}
}

func TestSummarizer_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("provider error keeps the turn due", func(t *testing.T) {
		mem := memory.NewWorkingMemory()
		provider := &fakeProvider{err: errors.New("rate limited")}
		metrics := otel.NewInMemoryMetrics()
		s := summary.New(provider, mem, summary.WithEvery(1), summary.WithMetrics(metrics))
		addTurns(t, mem, 1)

		if done, err := s.MaybeSummarize(ctx); done || err == nil {
			t.Fatalf("MaybeSummarize() = %v, %v, want error", done, err)
		}
		if !s.Due() {
			t.Error("Due() = false after a failed run")
		}
		if got := metrics.GetCounterValue(otel.MetricSummaryErrors); got != 1 {
			t.Errorf("summary errors = %d, want 1", got)
		}
	})

	t.Run("empty reply", func(t *testing.T) {
		mem := memory.NewWorkingMemory()
		s := summary.New(&fakeProvider{replies: []string{"  "}}, mem)
		addTurns(t, mem, 1)
		if _, err := s.Summarize(ctx); !errors.Is(err, summary.ErrEmptySummary) {
			t.Errorf("Summarize() error = %v, want ErrEmptySummary", err)
		}
	})

	t.Run("no messages", func(t *testing.T) {
		s := summary.New(&fakeProvider{}, memory.NewWorkingMemory())
		if _, err := s.Summarize(ctx); !errors.Is(err, summary.ErrNoMessages) {
			t.Errorf("Summarize() error = %v, want ErrNoMessages", err)
		}
	})
}

func TestSummarizer_PersistsToStore(t *testing.T) {
	ctx := context.Background()
	ds, err := store.NewSQLiteDocumentStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteDocumentStore() error = %v", err)
	}
	defer ds.Close()

	mem := memory.NewWorkingMemory()
	addTurns(t, mem, 2)
	first := summary.New(&fakeProvider{replies: []string{"the caravan left"}}, mem, summary.WithStore(ds, "story"))
	if _, err := first.Summarize(ctx); err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}

	// 新实例从存储中读取最新摘要
	second := summary.New(&fakeProvider{}, mem, summary.WithStore(ds, "story"))
	if got, err := second.Latest(ctx); err != nil || got != "the caravan left" {
		t.Errorf("Latest() = %q, %v", got, err)
	}
	if n, _ := ds.Count(ctx, "story", store.Eq("turn", 2)); n != 1 {
		t.Errorf("Count(turn=2) = %d, want 1", n)
	}
}

func TestSummarizer_NPCMemory(t *testing.T) {
	ctx := context.Background()
	book := memory.NewMemoryFactBook()
	_ = book.Register(ctx, memory.NPC{ID: "mira", Name: "Mira"})
	_ = book.Register(ctx, memory.NPC{ID: "oskar", Name: "Oskar"})

	mem := memory.NewWorkingMemory()
	_ = mem.AddMessage(ctx, message.NewUserMessage("I hand Mira the broken sword"))
	provider := &fakeProvider{replies: []string{"rolling", "Mira promised to mend the sword"}}
	s := summary.New(provider, mem, summary.WithEvery(1), summary.WithFactBook(book, nil))

	if done, err := s.MaybeSummarize(ctx); !done || err != nil {
		t.Fatalf("MaybeSummarize() = %v, %v", done, err)
	}

	p, _ := book.Profile(ctx, "mira", 0)
	if p.Summary != "Mira promised to mend the sword" {
		t.Errorf("mira summary = %q", p.Summary)
	}
	q, _ := book.Profile(ctx, "oskar", 0)
	if q.Summary != "" {
		t.Errorf("oskar summary = %q, want untouched", q.Summary)
	}
	if len(provider.requests) != 2 {
		t.Errorf("requests = %d, want rolling + one npc", len(provider.requests))
	}
}

func TestTranscript(t *testing.T) {
	msgs := []message.Message{
		{Role: message.RoleUser, Speaker: "Rook", Content: "We ride at dawn."},
		{Role: message.RoleAssistant, Content: "The gate creaks."},
	}
	want := "Rook: We ride at dawn.\nassistant: The gate creaks."
	if got := summary.Transcript(msgs); got != want {
		t.Errorf("Transcript() = %q, want %q", got, want)
	}
}
