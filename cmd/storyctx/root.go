package main

import (
	"fmt"
	"io"

	"github.com/easyops/storyctx/pkg/core/config"
	"github.com/easyops/storyctx/pkg/otel"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
)

// rootOptions 所有子命令共享的全局参数
type rootOptions struct {
	configPath string
	envFiles   []string
	logLevel   string
	logFormat  string
}

// NewRootCmd 创建 storyctx 根命令
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "storyctx",
		Short:         "Context budget allocator for narrative chat",
		Long:          "storyctx assembles guard, scene, lore, summary and NPC fragments into a fixed token budget and publishes them to prompt slots.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "config file (YAML), ~ is expanded")
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil, "dotenv files loaded before the config (default .env, .env.local)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override observability.logging.level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "override observability.logging.format (text|json)")

	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newProfileCmd(opts))
	cmd.AddCommand(newPreviewCmd(opts))

	return cmd
}

// init 展开路径并加载 dotenv 文件
func (o *rootOptions) init() error {
	path, err := homedir.Expand(o.configPath)
	if err != nil {
		return fmt.Errorf("expand config path: %w", err)
	}
	o.configPath = path

	files := make([]string, 0, len(o.envFiles))
	for _, f := range o.envFiles {
		expanded, err := homedir.Expand(f)
		if err != nil {
			return fmt.Errorf("expand env file: %w", err)
		}
		files = append(files, expanded)
	}
	_, err = config.LoadDotEnv(files...)
	return err
}

// load 加载配置并应用命令行的日志覆盖
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Observability.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Observability.Logging.Format = o.logFormat
	}
	return cfg, nil
}

// logger 创建写到 w 的日志器
func (o *rootOptions) logger(w io.Writer, cfg *config.Config) otel.Logger {
	return otel.NewLogger(w, cfg.Observability.Logging)
}
