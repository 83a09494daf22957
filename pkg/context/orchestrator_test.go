package context_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	agentctx "github.com/easyops/storyctx/pkg/context"
	"github.com/easyops/storyctx/pkg/otel"
)

func newTestOrchestrator(cfg agentctx.BudgetConfig, sink agentctx.Sink, opts ...agentctx.Option) *agentctx.Orchestrator {
	opts = append([]agentctx.Option{agentctx.WithEstimator(agentctx.NewEstimator(nil))}, opts...)
	return agentctx.NewOrchestrator(agentctx.NewSettings(cfg), sink, opts...)
}

func failing(name agentctx.ComponentName, err error) agentctx.Producer {
	return agentctx.NewProducerFunc(name, func(context.Context) (agentctx.Candidate, error) {
		return agentctx.Candidate{}, err
	})
}

func TestOrchestrator_Run(t *testing.T) {
	cfg := agentctx.DefaultBudgetConfig()
	sink := agentctx.NewMemorySink()
	recorder := agentctx.NewMemoryRecorder(4)

	o := newTestOrchestrator(cfg, sink,
		agentctx.WithProducers(
			agentctx.StaticText(agentctx.ComponentGuard, "Never speak for the user."),
			agentctx.StaticText(agentctx.ComponentHeader, "Scene: Ashen Gate | Time: dusk"),
			agentctx.StaticText(agentctx.ComponentPrimer, "Races: elves, dwarves"),
			agentctx.StaticText(agentctx.ComponentSummary, ""),
		),
		agentctx.WithRecorder(recorder),
	)

	report, err := o.Run(context.Background(), agentctx.TriggerMessageSent)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.ID == "" {
		t.Error("report ID should be set")
	}
	if report.Trigger != agentctx.TriggerMessageSent {
		t.Errorf("Trigger = %s, want message_sent", report.Trigger)
	}
	if len(report.Outputs) != 4 {
		t.Fatalf("got %d outputs, want 4", len(report.Outputs))
	}

	guard, ok := sink.Get("storyctx_guard")
	if !ok || guard.Text != "Never speak for the user." {
		t.Errorf("guard slot = %+v, %v", guard, ok)
	}
	if guard.Slot.Position != agentctx.PositionBeforePrompt {
		t.Errorf("guard position = %s, want before_prompt", guard.Slot.Position)
	}
	primer, ok := sink.Get("storyctx_primer")
	if !ok || primer.Slot.Position != agentctx.PositionInChat || primer.Slot.Depth != agentctx.DefaultInChatDepth {
		t.Errorf("primer slot = %+v, %v", primer, ok)
	}
	if _, ok := sink.Get("storyctx_summary"); ok {
		t.Error("empty summary should clear its slot")
	}
	if sink.Calls() != 4 {
		t.Errorf("sink called %d times, want 4", sink.Calls())
	}

	last, ok := recorder.Last()
	if !ok || last.ID != report.ID {
		t.Errorf("recorder last = %v, want run %s", last, report.ID)
	}
	if o.Phase() != agentctx.PhaseIdle {
		t.Errorf("Phase() = %s, want idle", o.Phase())
	}
}

func TestOrchestrator_DisabledProducerNotCalled(t *testing.T) {
	cfg := agentctx.DefaultBudgetConfig()
	cc := cfg.Components[agentctx.ComponentNPC]
	cc.Enabled = false
	cfg.Components[agentctx.ComponentNPC] = cc

	sink := agentctx.NewMemorySink()
	_ = sink.Publish(context.Background(), agentctx.DefaultSlot(agentctx.ComponentNPC), "stale npc memory")

	called := false
	npc := agentctx.NewProducerFunc(agentctx.ComponentNPC, func(context.Context) (agentctx.Candidate, error) {
		called = true
		return agentctx.Candidate{Text: "fresh"}, nil
	})

	o := newTestOrchestrator(cfg, sink, agentctx.WithProducers(npc), agentctx.WithParallel(false))
	report, err := o.Run(context.Background(), agentctx.TriggerManual)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if called {
		t.Error("disabled producer should not be called")
	}
	if _, ok := sink.Get("storyctx_npc"); ok {
		t.Error("disabled component should clear its slot")
	}
	out, _ := report.Output(agentctx.ComponentNPC)
	if out.Allowance != 0 || out.Text != "" {
		t.Errorf("npc output = %+v, want empty", out)
	}
}

func TestOrchestrator_ProducerFailures(t *testing.T) {
	cfg := agentctx.DefaultBudgetConfig()
	sink := agentctx.NewMemorySink()
	metrics := otel.NewInMemoryMetrics()
	boom := errors.New("manifest unreachable")

	o := newTestOrchestrator(cfg, sink,
		agentctx.WithMetrics(metrics),
		agentctx.WithProducers(
			failing(agentctx.ComponentPrimer, boom),
			agentctx.NewProducerFunc(agentctx.ComponentRetrieval, func(context.Context) (agentctx.Candidate, error) {
				panic("index corrupted")
			}),
			agentctx.StaticText(agentctx.ComponentGuard, "stay in character"),
		),
	)

	report, err := o.Run(context.Background(), agentctx.TriggerMessageReceived)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	primer, _ := report.Output(agentctx.ComponentPrimer)
	if !errors.Is(primer.PredictErr, boom) {
		t.Errorf("primer PredictErr = %v, want %v", primer.PredictErr, boom)
	}
	if primer.Predicted != 0 || primer.Text != "" {
		t.Errorf("failed primer output = %+v", primer)
	}

	retrieval, _ := report.Output(agentctx.ComponentRetrieval)
	if !errors.Is(retrieval.PredictErr, agentctx.ErrProducerPanic) {
		t.Errorf("retrieval PredictErr = %v, want ErrProducerPanic", retrieval.PredictErr)
	}

	if _, ok := sink.Get("storyctx_guard"); !ok {
		t.Error("healthy producer should still publish")
	}
	if got := metrics.GetCounterValue(otel.MetricProducerErrors); got != 2 {
		t.Errorf("producer errors = %d, want 2", got)
	}
	if got := metrics.GetCounterValue(otel.MetricRuns); got != 1 {
		t.Errorf("runs = %d, want 1", got)
	}
	if got := metrics.GetGaugeValue(otel.MetricTokensLimit); got != 1600 {
		t.Errorf("limit gauge = %v, want 1600", got)
	}

	data, err := json.Marshal(primer)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"predictError":"manifest unreachable"`) {
		t.Errorf("json = %s, want predictError", data)
	}
}

func TestOrchestrator_SinkFailures(t *testing.T) {
	cfg := agentctx.DefaultBudgetConfig()
	metrics := otel.NewInMemoryMetrics()
	var published []string

	sink := agentctx.SinkFunc(func(_ context.Context, slot agentctx.Slot, text string) error {
		switch slot.Key {
		case "storyctx_header":
			return errors.New("host rejected slot")
		case "storyctx_primer":
			panic("host crashed")
		}
		published = append(published, slot.Key)
		return nil
	})

	o := newTestOrchestrator(cfg, sink,
		agentctx.WithMetrics(metrics),
		agentctx.WithParallel(false),
		agentctx.WithProducers(
			agentctx.StaticText(agentctx.ComponentHeader, "Scene"),
			agentctx.StaticText(agentctx.ComponentPrimer, "Lore"),
			agentctx.StaticText(agentctx.ComponentGuard, "Guard"),
		),
	)

	report, err := o.Run(context.Background(), agentctx.TriggerGenerationEnded)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	header, _ := report.Output(agentctx.ComponentHeader)
	if header.PublishErr == nil {
		t.Error("header PublishErr should be set")
	}
	primer, _ := report.Output(agentctx.ComponentPrimer)
	if !errors.Is(primer.PublishErr, agentctx.ErrSinkPanic) {
		t.Errorf("primer PublishErr = %v, want ErrSinkPanic", primer.PublishErr)
	}
	if len(published) != 1 || published[0] != "storyctx_guard" {
		t.Errorf("published = %v, want [storyctx_guard]", published)
	}
	if got := metrics.GetCounterValue(otel.MetricSinkErrors); got != 2 {
		t.Errorf("sink errors = %d, want 2", got)
	}
}

func TestOrchestrator_TrimsToAllowance(t *testing.T) {
	cfg := agentctx.BudgetConfig{
		ContextTarget: 9,
		Components: map[agentctx.ComponentName]agentctx.ComponentConfig{
			agentctx.ComponentGuard:     {Enabled: true, MaxTokens: 5, Sticky: true},
			agentctx.ComponentRetrieval: {Enabled: true, MaxTokens: 50},
			agentctx.ComponentPrimer:    {Enabled: true, MaxTokens: 50},
		},
		DegradeOrder: []agentctx.ComponentName{agentctx.ComponentRetrieval, agentctx.ComponentPrimer},
	}
	sink := agentctx.NewMemorySink()

	o := newTestOrchestrator(cfg, sink, agentctx.WithProducers(
		agentctx.StaticText(agentctx.ComponentGuard, "0123456789"),
		agentctx.StaticText(agentctx.ComponentRetrieval, "line one\nline two\nline three"),
		agentctx.StaticText(agentctx.ComponentPrimer, "lore"),
	))

	report, err := o.Run(context.Background(), agentctx.TriggerManual)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.Allocation.Partial != agentctx.ComponentRetrieval {
		t.Fatalf("Partial = %q, want retrieval", report.Allocation.Partial)
	}
	retrieval, _ := report.Output(agentctx.ComponentRetrieval)
	if retrieval.Predicted != 7 || retrieval.Allowance != 6 {
		t.Errorf("retrieval predicted/allowance = %d/%d, want 7/6", retrieval.Predicted, retrieval.Allowance)
	}
	if !retrieval.Partial {
		t.Error("retrieval output should be marked partial")
	}
	got, _ := sink.Get("storyctx_retrieval")
	if got.Text != "line one\nline two" {
		t.Errorf("retrieval text = %q, want two whole lines", got.Text)
	}
	if _, ok := sink.Get("storyctx_primer"); ok {
		t.Error("primer should be dropped after the partial")
	}
}

func TestOrchestrator_CancelledBeforePublish(t *testing.T) {
	cfg := agentctx.DefaultBudgetConfig()
	sink := agentctx.NewMemorySink()
	metrics := otel.NewInMemoryMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o := newTestOrchestrator(cfg, sink,
		agentctx.WithMetrics(metrics),
		agentctx.WithProducers(agentctx.NewProducerFunc(agentctx.ComponentPrimer, func(context.Context) (agentctx.Candidate, error) {
			cancel()
			return agentctx.Candidate{Text: "late"}, nil
		})),
	)

	report, err := o.Run(ctx, agentctx.TriggerMessageSent)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if report != nil {
		t.Error("cancelled run should not return a report")
	}
	if sink.Calls() != 0 {
		t.Errorf("sink called %d times, want 0", sink.Calls())
	}
	if got := metrics.GetCounterValue(otel.MetricRunsSuperseded); got != 1 {
		t.Errorf("superseded = %d, want 1", got)
	}
}

func TestOrchestrator_DuplicateProducers(t *testing.T) {
	sink := agentctx.NewMemorySink()
	o := newTestOrchestrator(agentctx.DefaultBudgetConfig(), sink, agentctx.WithProducers(
		agentctx.StaticText(agentctx.ComponentGuard, "first"),
		agentctx.StaticText(agentctx.ComponentGuard, "second"),
	))

	if n := len(o.Components()); n != 1 {
		t.Fatalf("Components() = %d, want 1", n)
	}
	if _, err := o.Run(context.Background(), agentctx.TriggerManual); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got, _ := sink.Get("storyctx_guard"); got.Text != "first" {
		t.Errorf("guard text = %q, want first", got.Text)
	}
}

func TestOrchestrator_SettingsChangeAppliesNextRun(t *testing.T) {
	settings := agentctx.NewSettings(agentctx.DefaultBudgetConfig())
	sink := agentctx.NewMemorySink()
	o := agentctx.NewOrchestrator(settings, sink,
		agentctx.WithEstimator(agentctx.NewEstimator(nil)),
		agentctx.WithProducers(agentctx.StaticText(agentctx.ComponentPrimer, "Factions: Ashen Guild")),
		agentctx.WithSlot(agentctx.ComponentPrimer, agentctx.Slot{Key: "lore", Position: agentctx.PositionBeforePrompt}),
	)

	if _, err := o.Run(context.Background(), agentctx.TriggerManual); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, ok := sink.Get("lore"); !ok {
		t.Fatal("primer should publish to the custom slot")
	}

	if err := settings.SetEnabled(agentctx.ComponentPrimer, false); err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}
	if _, err := o.Run(context.Background(), agentctx.TriggerManual); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, ok := sink.Get("lore"); ok {
		t.Error("disabling primer should clear the slot on the next run")
	}
}
