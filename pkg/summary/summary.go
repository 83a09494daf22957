// Package summary 按固定的用户发言间隔生成滚动剧情摘要
package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/easyops/storyctx/pkg/core/llm"
	"github.com/easyops/storyctx/pkg/core/message"
	"github.com/easyops/storyctx/pkg/memory"
	"github.com/easyops/storyctx/pkg/memory/store"
	"github.com/easyops/storyctx/pkg/otel"
	"github.com/google/uuid"
)

// 默认值
const (
	DefaultEvery      = 6
	DefaultWindow     = 20
	DefaultCollection = "summaries"
)

const defaultPrompt = `You maintain a rolling summary of an interactive story.
Rewrite the summary so it covers the previous summary and the new transcript.
Keep names, places, open threads and promises. Write at most five sentences in past tense.
Reply with the summary only.`

const defaultNPCPrompt = `You keep the memory of one character in an interactive story.
Summarize in at most two sentences what %s remembers about recent events and how they feel about them.
Reply with the summary only.`

// Summary 一次生成的滚动摘要
type Summary struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Turn      int       `json:"turn"`
	CreatedAt time.Time `json:"created_at"`
}

// Summarizer 滚动摘要生成器
//
// 每累计 every 次用户发言，取最近 window 条消息连同上一份摘要交给 LLM 重写。
// 生成结果写入文档存储，Latest 读取最新一份。
type Summarizer struct {
	provider   llm.Provider
	memory     memory.ConversationMemory
	store      store.DocumentStore
	collection string
	every      int
	window     int
	prompt     string
	reqOpts    []llm.RequestOption

	book    memory.FactBook
	matcher memory.NameMatcher

	metrics otel.Metrics
	logger  otel.Logger
	tracer  otel.Tracer

	mu       sync.Mutex
	lastTurn int
	latest   *Summary
	running  sync.Mutex
}

// Option 配置 Summarizer
type Option func(*Summarizer)

// WithEvery 设置生成间隔（用户发言次数）
func WithEvery(n int) Option {
	return func(s *Summarizer) {
		s.every = n
	}
}

// WithWindow 设置每次送入 LLM 的消息条数
func WithWindow(n int) Option {
	return func(s *Summarizer) {
		s.window = n
	}
}

// WithStore 设置持久化存储与集合
func WithStore(ds store.DocumentStore, collection string) Option {
	return func(s *Summarizer) {
		s.store = ds
		if collection != "" {
			s.collection = collection
		}
	}
}

// WithPrompt 覆盖系统提示词
func WithPrompt(prompt string) Option {
	return func(s *Summarizer) {
		s.prompt = prompt
	}
}

// WithRequestOptions 设置每次请求的参数
func WithRequestOptions(opts ...llm.RequestOption) Option {
	return func(s *Summarizer) {
		s.reqOpts = append(s.reqOpts, opts...)
	}
}

// WithFactBook 在生成滚动摘要后，为窗口中被提及的 NPC 更新记忆摘要
func WithFactBook(book memory.FactBook, matcher memory.NameMatcher) Option {
	return func(s *Summarizer) {
		s.book = book
		s.matcher = matcher
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(m otel.Metrics) Option {
	return func(s *Summarizer) {
		s.metrics = m
	}
}

// WithLogger 设置日志器
func WithLogger(l otel.Logger) Option {
	return func(s *Summarizer) {
		s.logger = l
	}
}

// WithTracer 设置追踪器
func WithTracer(t otel.Tracer) Option {
	return func(s *Summarizer) {
		s.tracer = t
	}
}

// New 创建 Summarizer
func New(provider llm.Provider, mem memory.ConversationMemory, opts ...Option) *Summarizer {
	s := &Summarizer{
		provider:   provider,
		memory:     mem,
		store:      store.NewMemoryDocumentStore(),
		collection: DefaultCollection,
		every:      DefaultEvery,
		window:     DefaultWindow,
		prompt:     defaultPrompt,
		metrics:    otel.NewNoopMetrics(),
		logger:     otel.NewNoopLogger(),
		tracer:     otel.NewNoopTracer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.matcher == nil {
		s.matcher = memory.NewWordMatcher()
	}
	return s
}

// Due 距离上次生成是否已累计足够的用户发言
func (s *Summarizer) Due() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.every > 0 && s.memory.UserTurns()-s.lastTurn >= s.every
}

// MaybeSummarize 到达间隔时生成摘要，返回是否生成了新摘要
//
// 已有生成在进行时直接返回 false。
func (s *Summarizer) MaybeSummarize(ctx context.Context) (bool, error) {
	if !s.Due() {
		return false, nil
	}
	if !s.running.TryLock() {
		return false, nil
	}
	defer s.running.Unlock()

	if _, err := s.summarize(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Summarize 立即生成一份摘要
func (s *Summarizer) Summarize(ctx context.Context) (*Summary, error) {
	s.running.Lock()
	defer s.running.Unlock()
	return s.summarize(ctx)
}

func (s *Summarizer) summarize(ctx context.Context) (*Summary, error) {
	ctx, span := s.tracer.Start(ctx, "summary.generate")
	defer span.End()

	turn := s.memory.UserTurns()
	history, err := s.memory.GetHistory(ctx, s.window)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	if len(history) == 0 {
		return nil, ErrNoMessages
	}

	previous, err := s.Latest(ctx)
	if err != nil && !errors.Is(err, ErrNoSummary) {
		return nil, s.fail(ctx, span, err)
	}

	var input strings.Builder
	if previous != "" {
		input.WriteString("Previous summary:\n")
		input.WriteString(previous)
		input.WriteString("\n\n")
	}
	input.WriteString("Transcript:\n")
	input.WriteString(Transcript(history))

	text, err := s.generate(ctx, s.prompt, input.String())
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}

	sum := &Summary{ID: uuid.NewString(), Text: text, Turn: turn, CreatedAt: time.Now()}
	doc := store.Document{
		ID:        sum.ID,
		Content:   sum.Text,
		Metadata:  map[string]any{"turn": turn},
		CreatedAt: sum.CreatedAt,
	}
	if err := s.store.Put(ctx, s.collection, doc); err != nil {
		return nil, s.fail(ctx, span, fmt.Errorf("persist summary: %w", err))
	}

	s.mu.Lock()
	s.lastTurn = turn
	s.latest = sum
	s.mu.Unlock()

	s.metrics.Counter(otel.MetricSummaryRuns).Add(ctx, 1)
	s.logger.WithContext(ctx).Info("summary generated", "turn", turn, "messages", len(history))
	span.SetStatus(otel.StatusOK, "")

	if s.book != nil {
		s.summarizeNPCs(ctx, history)
	}
	return sum, nil
}

// summarizeNPCs 为窗口中被提及的 NPC 更新记忆摘要，单个 NPC 失败只记录日志
func (s *Summarizer) summarizeNPCs(ctx context.Context, history []message.Message) {
	npcs, err := s.book.NPCs(ctx)
	if err != nil {
		s.logger.WithContext(ctx).Warn("list npcs failed", "error", err)
		return
	}

	mentioned := make(map[string]bool)
	for _, msg := range history {
		for _, id := range s.matcher.Matches(msg.Content, npcs) {
			mentioned[id] = true
		}
	}

	for _, npc := range npcs {
		if !mentioned[npc.ID] {
			continue
		}
		if err := s.SummarizeNPC(ctx, npc, history); err != nil {
			s.logger.WithContext(ctx).Warn("npc summary failed", "npc", npc.ID, "error", err)
		}
	}
}

// SummarizeNPC 根据给定消息为一个 NPC 生成记忆摘要并写入事实簿
func (s *Summarizer) SummarizeNPC(ctx context.Context, npc memory.NPC, history []message.Message) error {
	if s.book == nil {
		return ErrNoFactBook
	}
	profile, err := s.book.Profile(ctx, npc.ID, 0)
	if err != nil {
		return err
	}

	var input strings.Builder
	if profile.Summary != "" {
		input.WriteString("Previous memory:\n")
		input.WriteString(profile.Summary)
		input.WriteString("\n\n")
	}
	input.WriteString("Transcript:\n")
	input.WriteString(Transcript(history))

	text, err := s.generate(ctx, fmt.Sprintf(defaultNPCPrompt, npc.Name), input.String())
	if err != nil {
		s.metrics.Counter(otel.MetricSummaryErrors).Add(ctx, 1, otel.NewAttr("npc", npc.ID))
		return err
	}
	s.metrics.Counter(otel.MetricSummaryRuns).Add(ctx, 1, otel.NewAttr("npc", npc.ID))
	return s.book.SetSummary(ctx, npc.ID, text)
}

func (s *Summarizer) generate(ctx context.Context, system, user string) (string, error) {
	req := llm.NewRequest([]message.Message{
		message.NewMessage(message.RoleSystem, system),
		message.NewUserMessage(user),
	}, s.reqOpts...)

	resp, err := s.provider.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", ErrEmptySummary
	}
	return text, nil
}

func (s *Summarizer) fail(ctx context.Context, span otel.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(otel.StatusError, err.Error())
	s.metrics.Counter(otel.MetricSummaryErrors).Add(ctx, 1)
	s.logger.WithContext(ctx).Warn("summary failed", "error", err)
	return err
}

// Latest 返回最新一份摘要，没有时返回 ErrNoSummary
func (s *Summarizer) Latest(ctx context.Context) (string, error) {
	s.mu.Lock()
	latest := s.latest
	s.mu.Unlock()
	if latest != nil {
		return latest.Text, nil
	}

	docs, err := s.store.Query(ctx, s.collection, store.Filter{}, store.WithNewestFirst(), store.WithQueryLimit(1))
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "", ErrNoSummary
	}

	sum := &Summary{ID: docs[0].ID, Text: docs[0].Content, CreatedAt: docs[0].CreatedAt}
	if turn, ok := docs[0].Metadata["turn"].(float64); ok {
		sum.Turn = int(turn)
	} else if turn, ok := docs[0].Metadata["turn"].(int); ok {
		sum.Turn = turn
	}
	s.mu.Lock()
	if s.latest == nil {
		s.latest = sum
	}
	s.mu.Unlock()
	return sum.Text, nil
}

// Reset 清空缓存的摘要和计数，已持久化的摘要保留
func (s *Summarizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = nil
	s.lastTurn = 0
}

// Transcript 把消息渲染为 "发言者: 内容" 形式的逐行文本
func Transcript(msgs []message.Message) string {
	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteByte('\n')
		}
		speaker := msg.Speaker
		if speaker == "" {
			speaker = string(msg.Role)
		}
		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(msg.Content)
	}
	return b.String()
}
