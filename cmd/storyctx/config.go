package main

import (
	"fmt"
	"strings"

	agentctx "github.com/easyops/storyctx/pkg/context"
	"github.com/easyops/storyctx/pkg/core/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and change the configuration file",
	}
	cmd.AddCommand(newConfigGetCmd(opts))
	cmd.AddCommand(newConfigSetCmd(opts))
	return cmd
}

func newConfigGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Print the effective configuration, or one dotted key of it",
		Example: `  storyctx config get
  storyctx config get budget.context_target
  storyctx config get budget.components.npc`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			tree, err := effectiveTree(cfg)
			if err != nil {
				return err
			}

			var value any = tree
			if len(args) == 1 {
				v, ok := lookup(tree, args[0])
				if !ok {
					return fmt.Errorf("%w: %s", config.ErrUnknownKey, args[0])
				}
				value = v
			}

			switch v := value.(type) {
			case map[string]any, []any:
				out, err := yaml.Marshal(v)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(out)
				return err
			default:
				_, err := fmt.Fprintln(cmd.OutOrStdout(), v)
				return err
			}
		},
	}
}

func newConfigSetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set one dotted key in the configuration file",
		Long:  "Set one dotted key in the configuration file. The value is parsed as YAML, so numbers, booleans and [a, b] lists keep their types. The whole configuration is validated before it is written.",
		Example: `  storyctx config set budget.context_target 3000
  storyctx config set budget.components.npc.enabled false
  storyctx config set budget.degrade_order "[npc, retrieval, summary, primer]"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Set(opts.configPath, args[0], args[1]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s = %s (%s)\n", args[0], args[1], opts.configPath)
			return err
		},
	}
}

// effectiveConfig 合并默认值后的完整配置视图
type effectiveConfig struct {
	Budget        agentctx.BudgetConfig `yaml:"budget"`
	LLM           any                   `yaml:"llm"`
	Summary       any                   `yaml:"summary"`
	Manifest      any                   `yaml:"manifest"`
	Retrieval     any                   `yaml:"retrieval"`
	NPC           any                   `yaml:"npc"`
	Store         any                   `yaml:"store"`
	Observability any                   `yaml:"observability"`
}

// effectiveTree 把配置转成以 YAML 键名索引的树
func effectiveTree(cfg *config.Config) (map[string]any, error) {
	llmCfg := cfg.LLM
	llmCfg.APIKey = maskSecret(llmCfg.APIKey)
	storeCfg := cfg.Store
	storeCfg.Neo4jPassword = maskSecret(storeCfg.Neo4jPassword)

	view := effectiveConfig{
		Budget:        cfg.BudgetConfig(),
		LLM:           llmCfg,
		Summary:       cfg.Summary,
		Manifest:      cfg.Manifest,
		Retrieval:     cfg.Retrieval,
		NPC:           cfg.NPC,
		Store:         storeCfg,
		Observability: cfg.Observability,
	}

	data, err := yaml.Marshal(view)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// lookup 按点分隔的键查找
func lookup(tree map[string]any, key string) (any, bool) {
	var cur any = tree
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
