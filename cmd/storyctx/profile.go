package main

import (
	"fmt"
	"strconv"

	agentctx "github.com/easyops/storyctx/pkg/context"
	"github.com/easyops/storyctx/pkg/core/config"
	"github.com/spf13/cobra"
)

func newProfileCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "List and apply budget profiles",
	}
	cmd.AddCommand(newProfileListCmd(opts))
	cmd.AddCommand(newProfileApplyCmd(opts))
	return cmd
}

func newProfileListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the built-in budget profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			current := cfg.BudgetConfig()

			rows := make([][]string, 0, len(agentctx.ProfileNames()))
			for _, name := range agentctx.ProfileNames() {
				p, _ := agentctx.LookupProfile(name)
				mark := ""
				if p.ContextTarget == current.ContextTarget && p.Cushion == current.Cushion && p.Reserve == current.Reserve {
					mark = "*"
				}
				rows = append(rows, []string{
					mark + name,
					strconv.Itoa(p.ContextTarget),
					strconv.Itoa(p.Cushion),
					strconv.Itoa(p.Reserve),
					strconv.Itoa(p.ContextTarget - p.Cushion - p.Reserve),
				})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"PROFILE", "TARGET", "CUSHION", "RESERVE", "LIMIT"}, rows))
			return err
		},
	}
}

func newProfileApplyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "apply <name>",
		Short:     "Apply a profile's numbers to the budget section of the config file",
		Long:      "Apply a profile's target, cushion, reserve and per-component caps. Enabled and sticky flags and the degrade order are kept.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: agentctx.ProfileNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			applied, err := agentctx.ApplyProfile(cfg.BudgetConfig(), args[0])
			if err != nil {
				return err
			}
			if err := config.SaveBudget(opts.configPath, applied); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "applied profile %s: target=%d cushion=%d reserve=%d limit=%d\n",
				args[0], applied.ContextTarget, applied.Cushion, applied.Reserve, applied.Limit())
			return err
		},
	}
}
