package main

import (
	"context"
	"errors"
	"fmt"

	agentctx "github.com/easyops/storyctx/pkg/context"
	"github.com/easyops/storyctx/pkg/core/config"
	"github.com/easyops/storyctx/pkg/manifest"
	"github.com/easyops/storyctx/pkg/memory"
	"github.com/easyops/storyctx/pkg/memory/store"
	"github.com/easyops/storyctx/pkg/otel"
	"github.com/easyops/storyctx/pkg/producer"
	"github.com/easyops/storyctx/pkg/rag"
	"github.com/easyops/storyctx/pkg/summary"
	"gopkg.in/yaml.v3"
)

// LoreCollection 场景设定片段保存的文档集合
const LoreCollection = "lore"

// pipelineDeps 构建流水线所需的外部依赖
type pipelineDeps struct {
	sink    agentctx.Sink
	tracer  otel.Tracer
	metrics otel.Metrics
	logger  otel.Logger
	// exact 为 true 时使用 tiktoken 精确计数
	exact bool
	// summarize 为 true 且配置了 LLM 时，运行前先生成一次摘要
	summarize bool
}

// pipeline 一次预览用的完整流水线
type pipeline struct {
	settings     *agentctx.Settings
	orchestrator *agentctx.Orchestrator
	journal      *agentctx.MemoryRecorder
	scene        *producer.SceneState
	memory       *memory.WorkingMemory
	summarizer   *summary.Summarizer

	closers []func() error
}

// buildPipeline 按配置和场景组装存储、生产者和编排器
func buildPipeline(ctx context.Context, cfg *config.Config, sc *Scenario, deps pipelineDeps) (p *pipeline, err error) {
	p = &pipeline{}
	defer func() {
		if err != nil {
			_ = p.Close()
		}
	}()

	budget := agentctx.MergeDefaults(overlayBudget(cfg.Budget, sc.Budget))
	if err := budget.Validate(); err != nil {
		return nil, err
	}
	p.settings = agentctx.NewSettings(budget)

	docs, err := store.NewDocumentStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, docs.Close)

	graph, err := store.NewGraphStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	if graph != nil {
		p.closers = append(p.closers, graph.Close)
	}

	p.memory = memory.NewWorkingMemory(memory.WithMaxSize(max(memory.DefaultMaxSize, len(sc.Messages))))
	for _, msg := range sc.Messages {
		if err := p.memory.AddMessage(ctx, msg); err != nil {
			return nil, fmt.Errorf("scenario message: %w", err)
		}
	}
	p.scene = producer.NewSceneState(sc.Scene)

	book, err := seedFactBook(ctx, docs, graph, sc)
	if err != nil {
		return nil, err
	}
	tracker := memory.NewPresenceTracker(
		memory.WithPresenceWindow(cfg.NPC.Window),
		memory.WithMaxPresent(cfg.NPC.MaxPresent),
	)
	for _, id := range sc.Present {
		tracker.Mark(id)
	}

	retriever, err := buildRetriever(ctx, docs, cfg.Retrieval, sc.Lore, deps.metrics)
	if err != nil {
		return nil, err
	}

	summaries, err := p.summarySource(ctx, cfg, sc, docs, book, deps)
	if err != nil {
		return nil, err
	}

	guard, err := producer.NewGuard(p.scene, "")
	if err != nil {
		return nil, err
	}
	header, err := producer.NewHeader(p.scene, "")
	if err != nil {
		return nil, err
	}
	combat, err := producer.NewCombatHeader(p.scene, "")
	if err != nil {
		return nil, err
	}

	estimator := agentctx.NewEstimator(nil)
	if deps.exact {
		estimator = agentctx.DefaultEstimator()
	}

	p.journal = agentctx.NewMemoryRecorder(16)
	p.orchestrator = agentctx.NewOrchestrator(p.settings, deps.sink,
		agentctx.WithProducers(
			guard,
			header,
			combat,
			producer.NewPrimer(manifestSource(cfg.Manifest, sc.Manifest, deps)),
			producer.NewSummary(summaries),
			producer.NewRetrieval(retriever, p.memory,
				producer.WithTopK(cfg.Retrieval.TopK),
				producer.WithScene(p.scene),
			),
			producer.NewNPCMemory(book, tracker, p.memory,
				producer.WithScanMessages(cfg.NPC.ScanMessages),
				producer.WithMaxFacts(cfg.NPC.MaxFacts),
				producer.WithNPCLogger(deps.logger),
			),
		),
		agentctx.WithEstimator(estimator),
		agentctx.WithRecorder(agentctx.MultiRecorder{p.journal, agentctx.NewStoreRecorder(docs, "")}),
		agentctx.WithTracer(deps.tracer),
		agentctx.WithMetrics(deps.metrics),
		agentctx.WithLogger(deps.logger),
	)
	return p, nil
}

// Run 运行一次流水线
func (p *pipeline) Run(ctx context.Context, trigger agentctx.Trigger) (*agentctx.RunReport, error) {
	return p.orchestrator.Run(ctx, trigger)
}

// Close 关闭所有存储
func (p *pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		errs = append(errs, p.closers[i]())
	}
	p.closers = nil
	return errors.Join(errs...)
}

// seedFactBook 选择事实簿后端并写入场景中的 NPC 和事实
//
// 配置了图存储时使用 GraphFactBook，否则使用 DocumentFactBook。
// 已存在的事实不会重复写入。
func seedFactBook(ctx context.Context, docs store.DocumentStore, graph store.GraphStore, sc *Scenario) (memory.FactBook, error) {
	var book memory.FactBook = memory.NewDocumentFactBook(docs)
	if graph != nil {
		book = memory.NewGraphFactBook(graph)
	}

	for _, npc := range sc.NPCs {
		if err := book.Register(ctx, npc); err != nil {
			return nil, fmt.Errorf("register npc %q: %w", npc.ID, err)
		}
	}
	for id, facts := range sc.Facts {
		profile, err := book.Profile(ctx, id, -1)
		if err != nil {
			return nil, fmt.Errorf("facts for npc %q: %w", id, err)
		}
		known := make(map[string]bool, len(profile.Facts))
		for _, f := range profile.Facts {
			known[f.Text] = true
		}
		for _, text := range facts {
			if known[text] {
				continue
			}
			if _, err := book.Remember(ctx, id, text); err != nil {
				return nil, fmt.Errorf("remember for npc %q: %w", id, err)
			}
		}
	}
	return book, nil
}

// buildRetriever 把场景设定写入文档存储，再与配置的知识库文件一起建立索引
func buildRetriever(ctx context.Context, docs store.DocumentStore, cfg config.RetrievalConfig, lore []rag.Document, metrics otel.Metrics) (rag.Retriever, error) {
	if len(lore) > 0 {
		if err := rag.SaveDocuments(ctx, docs, LoreCollection, lore); err != nil {
			return nil, err
		}
	}

	loaders := []rag.DocumentLoader{rag.NewStoreLoader(docs, LoreCollection)}
	for _, src := range cfg.Sources {
		loaders = append(loaders, rag.NewPathLoader(src))
	}
	index, err := rag.BuildIndex(ctx, rag.NewMultiLoader(loaders...))
	if err != nil {
		return nil, fmt.Errorf("build lore index: %w", err)
	}
	return rag.NewKeywordRetriever(index, rag.WithMetrics(metrics)), nil
}

// manifestSource 场景内联清单优先，其次是配置的来源，两者都没有时 Primer 输出为空
func manifestSource(cfg config.ManifestConfig, inline *manifest.Manifest, deps pipelineDeps) *manifest.Cache {
	var fetcher manifest.Fetcher = manifest.FetcherFunc(func(context.Context) ([]byte, error) {
		return nil, manifest.ErrNoSource
	})
	switch {
	case inline != nil:
		fetcher = manifest.FetcherFunc(func(context.Context) ([]byte, error) {
			return yaml.Marshal(inline)
		})
	case cfg.Source != "":
		if f, err := manifest.NewFetcher(cfg.Source, cfg.Timeout); err == nil {
			fetcher = f
		}
	}
	return manifest.NewCache(fetcher,
		manifest.WithTTL(cfg.TTL),
		manifest.WithMetrics(deps.metrics),
		manifest.WithLogger(deps.logger),
	)
}

// summarySource 场景给出的摘要优先；否则配置了 LLM 时使用滚动摘要器
func (p *pipeline) summarySource(ctx context.Context, cfg *config.Config, sc *Scenario, docs store.DocumentStore, book memory.FactBook, deps pipelineDeps) (producer.SummarySource, error) {
	if sc.Summary != "" {
		return staticSummary(sc.Summary), nil
	}
	if !cfg.LLM.Enabled() {
		return staticSummary(""), nil
	}

	provider, err := cfg.LLM.NewProvider()
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, provider.Close)

	p.summarizer = summary.New(
		otel.NewTracedProvider(provider,
			otel.WithTracedProviderTracer(deps.tracer),
			otel.WithTracedProviderMetrics(deps.metrics),
		),
		p.memory,
		summary.WithEvery(cfg.Summary.Every),
		summary.WithWindow(cfg.Summary.Window),
		summary.WithStore(docs, cfg.Summary.Collection),
		summary.WithFactBook(book, nil),
		summary.WithMetrics(deps.metrics),
		summary.WithLogger(deps.logger),
		summary.WithTracer(deps.tracer),
	)
	if deps.summarize {
		if _, err := p.summarizer.Summarize(ctx); err != nil && !errors.Is(err, summary.ErrNoMessages) {
			deps.logger.WithContext(ctx).Warn("summary generation failed", "error", err)
		}
	}
	return p.summarizer, nil
}

// staticSummary 固定文本的摘要来源
type staticSummary string

// Latest 实现 producer.SummarySource
func (s staticSummary) Latest(context.Context) (string, error) {
	if s == "" {
		return "", summary.ErrNoSummary
	}
	return string(s), nil
}

// 编译时接口检查
var _ producer.SummarySource = staticSummary("")
