package main

import (
	"encoding/json"
	"fmt"
	"io"

	agentctx "github.com/easyops/storyctx/pkg/context"
	"github.com/easyops/storyctx/pkg/otel"
	"github.com/spf13/cobra"
)

type previewOptions struct {
	scenario  string
	trigger   string
	exact     bool
	summarize bool
	json      bool
}

func newPreviewCmd(root *rootOptions) *cobra.Command {
	opts := &previewOptions{}

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Run the pipeline once against a scenario and print the slots and allocation",
		Long: `Run the pipeline once against a scenario file and print what would be injected.

The scenario is YAML with scene, messages, npcs, facts, present, lore, manifest,
summary and budget sections. Without --scenario the YAML is read from stdin
when stdin is a pipe.`,
		Example: `  storyctx preview --scenario tavern.yaml
  cat tavern.yaml | storyctx preview --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.scenario, "scenario", "s", "", "scenario YAML file (- for stdin)")
	cmd.Flags().StringVar(&opts.trigger, "trigger", string(agentctx.TriggerManual), "trigger recorded in the run report")
	cmd.Flags().BoolVar(&opts.exact, "exact", true, "count tokens with tiktoken (falls back to the character heuristic when unavailable)")
	cmd.Flags().BoolVar(&opts.summarize, "summarize", false, "generate a rolling summary with the configured LLM before the run")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the run report as JSON instead of slots and a table")
	return cmd
}

func runPreview(cmd *cobra.Command, root *rootOptions, opts *previewOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, err := root.load()
	if err != nil {
		return err
	}
	sc, err := openScenario(opts.scenario, cmd.InOrStdin())
	if err != nil {
		return err
	}

	provider, err := otel.NewProvider(ctx, cfg.Observability)
	if err != nil {
		return err
	}
	defer provider.Shutdown(ctx)

	logger := root.logger(cmd.ErrOrStderr(), cfg)

	var sink agentctx.Sink = agentctx.NewMemorySink()
	if !opts.json {
		sink = agentctx.NewWriterSink(out)
	}

	p, err := buildPipeline(ctx, cfg, sc, pipelineDeps{
		sink:      sink,
		tracer:    provider.Tracer(),
		metrics:   provider.Metrics(),
		logger:    logger,
		exact:     opts.exact,
		summarize: opts.summarize,
	})
	if err != nil {
		return err
	}
	defer p.Close()

	report, err := p.Run(ctx, agentctx.Trigger(opts.trigger))
	if err != nil {
		return err
	}

	if opts.json {
		return writeReportJSON(out, report)
	}
	_, err = fmt.Fprintln(out, renderAllocation(p.settings.Snapshot(), report))
	return err
}

func writeReportJSON(w io.Writer, report *agentctx.RunReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
