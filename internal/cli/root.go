// Package cli exposes the application as cobra commands.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"QAForge/internal/app"
	"QAForge/internal/config"
	"QAForge/internal/logging"
)

var version = "dev"

// Options lets callers replace how configuration and the application are built.
type Options struct {
	LoadConfig func(path string) config.Config
	Logger     *slog.Logger
	App        app.Options
}

type root struct {
	opts       Options
	configPath string
	logLevel   string
	provider   string
}

// NewRootCommand assembles the qaforge command tree.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.LoadConfig == nil {
		opts.LoadConfig = config.LoadFrom
	}
	r := &root{opts: opts}

	cmd := &cobra.Command{
		Use:   "qaforge",
		Short: "Turn documents into tiered question-answer datasets",
		Long: `qaforge chunks source documents, asks a language model for
question-answer pairs, scores and deduplicates them and writes the
accepted pairs as JSON lines.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&r.configPath, "config", os.Getenv("QAFORGE_CONFIG"), "path to the YAML configuration file")
	cmd.PersistentFlags().StringVar(&r.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&r.provider, "provider", "", "override llm.provider (openai, gemini, offline)")

	cmd.AddCommand(r.generateCommand(), r.runsCommand(), r.watchCommand(), versionCommand())
	return cmd
}

// Execute runs the command tree with ctx and returns the process exit code.
func Execute(ctx context.Context, opts Options) int {
	cmd := NewRootCommand(opts)
	if err := cmd.ExecuteContext(ctx); err != nil {
		cmd.PrintErrln("Error:", err)
		return 1
	}
	return 0
}

func (r *root) config() config.Config {
	cfg := r.opts.LoadConfig(r.configPath)
	if r.logLevel != "" {
		cfg.Logging.Level = r.logLevel
	}
	if r.provider != "" {
		cfg.LLM.Provider = r.provider
	}
	return cfg
}

// application builds the app from the effective configuration. The caller
// closes it.
func (r *root) application(cmd *cobra.Command, mutate func(*config.Config)) (*app.Application, error) {
	cfg := r.config()
	if mutate != nil {
		mutate(&cfg)
	}
	logger := r.opts.Logger
	if logger == nil {
		logger = logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	}
	return app.New(cmd.Context(), cfg, logger, r.opts.App)
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("qaforge version %s\n", version)
		},
	}
}
