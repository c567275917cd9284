package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"QAForge/internal/chunker"
	"QAForge/internal/config"
	"QAForge/internal/dataset"
	"QAForge/internal/dedup"
	"QAForge/internal/domain"
	"QAForge/internal/generation"
	"QAForge/internal/infrastructure/judge"
	"QAForge/internal/infrastructure/llm"
	"QAForge/internal/infrastructure/scheduler"
	infrasource "QAForge/internal/infrastructure/source"
	"QAForge/internal/infrastructure/storage"
	"QAForge/internal/infrastructure/telegram"
	"QAForge/internal/logging"
	"QAForge/internal/ports"
	"QAForge/internal/progress"
	"QAForge/internal/prompt"
	"QAForge/internal/quality"
	"QAForge/internal/source"
	"QAForge/internal/usecase"
)

const defaultGeminiModel = "gemini-2.5-flash"

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	pipeline *usecase.Pipeline
	source   ports.DocumentSource
	repo     *storage.SQLiteRepository
}

// Options overrides collaborators, mostly for tests.
type Options struct {
	Completer ports.Completer
	Listener  ports.ProgressListener
	Clock     func() time.Time
}

// New validates cfg and builds a runnable application instance.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger, opts Options) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	completer := opts.Completer
	if completer == nil {
		var err error
		if completer, err = newCompleter(ctx, cfg.LLM); err != nil {
			return nil, err
		}
	}

	a := &Application{cfg: cfg, logger: baseLogger}
	if cfg.Storage.Path != "" {
		repo, err := storage.OpenSQLite(ctx, cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("open run store: %w", err)
		}
		a.repo = repo
	}

	pipeline, err := a.buildPipeline(completer, opts)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.pipeline = pipeline
	return a, nil
}

func newCompleter(ctx context.Context, cfg config.LLMConfig) (ports.Completer, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return llm.NewChatGPTClient(cfg), nil
	case config.ProviderGemini:
		if cfg.Model == "" || cfg.Model == config.Default().LLM.Model {
			cfg.Model = defaultGeminiModel
		}
		return llm.NewGeminiClient(ctx, cfg)
	case config.ProviderOffline:
		return llm.NewOfflineClient(), nil
	default:
		return nil, &domain.ConfigError{Kind: domain.ConfigInvalidProvider, Field: "llm.provider", Reason: "unknown provider " + cfg.Provider}
	}
}

func (a *Application) buildPipeline(completer ports.Completer, opts Options) (*usecase.Pipeline, error) {
	cfg := a.cfg

	ch, err := chunker.New(cfg.Pipeline.MaxTokensPerChunk, cfg.Pipeline.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	prompts := prompt.NewBuilder(prompt.Options{PairsPerChunk: cfg.Pipeline.PairsPerChunk})
	gen, err := generation.NewClient(completer, prompts, generation.Options{
		Timeout:           cfg.Pipeline.ModelTimeout(),
		PairsPerChunk:     cfg.Pipeline.PairsPerChunk,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		Burst:             cfg.LLM.Burst,
		CacheSize:         cfg.LLM.CacheSize,
	}, a.logger)
	if err != nil {
		return nil, err
	}
	scorer, err := quality.New(quality.Options{
		RejectThreshold: cfg.Quality.RejectThreshold,
		HighThreshold:   cfg.Quality.HighThreshold,
		MinAnswerChars:  cfg.Quality.MinAnswerChars,
		MaxAnswerChars:  cfg.Quality.MaxAnswerChars,
		JudgeWeight:     cfg.Quality.JudgeWeight,
	})
	if err != nil {
		return nil, err
	}
	dd, err := dedup.New(dedup.Options{
		SimilarityThreshold: cfg.Dedup.SimilarityThreshold,
		PairwiseCutoff:      cfg.Dedup.PairwiseCutoff,
	})
	if err != nil {
		return nil, err
	}

	registry := source.NewRegistry(
		infrasource.NewTextSource(),
		infrasource.NewFileSource(0),
		infrasource.NewWebSource(nil),
	)

	listeners := []ports.ProgressListener{progress.NewLogListener(a.logger), opts.Listener}
	if tg := cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		listeners = append(listeners, telegram.NewNotifier(tg.BotToken, tg.ChatID, a.logger))
	}

	a.source = source.NewLoader(registry, a.logger)

	var judgeClient ports.Judge
	if cfg.Judge.Endpoint != "" {
		judgeClient = judge.NewClient(cfg.Judge.Endpoint, cfg.Judge.APIKey)
	}
	var repo ports.RunRepository
	if a.repo != nil {
		repo = a.repo
	}

	return usecase.NewPipeline(usecase.PipelineDeps{
		Source:    a.source,
		Chunker:   ch,
		Prompts:   prompts,
		Generator: gen,
		Scorer:    scorer,
		Dedup:     dd,
		Writer: dataset.NewWriter(dataset.Options{
			SplitTiers:    cfg.Output.SplitTiers,
			WriteMetadata: cfg.Output.WriteMetadata,
			Timeout:       cfg.Output.WriteTimeout,
		}, a.logger),
		Repository: repo,
		Judge:      judgeClient,
		Listener:   progress.NewMulti(listeners...),
		Logger:     a.logger.With("component", "pipeline"),
		Clock:      opts.Clock,
		Options: usecase.Options{
			WorkerConcurrency:   cfg.Pipeline.WorkerConcurrency,
			RetryAttempts:       cfg.Pipeline.RetryAttempts,
			RetryBaseDelay:      cfg.Pipeline.RetryBaseDelay,
			RetryMaxDelay:       cfg.Pipeline.RetryMaxDelay,
			OutputDir:           cfg.Output.Dir,
			SimilarityThreshold: cfg.Dedup.SimilarityThreshold,
			PersistQuestions:    cfg.Dedup.PersistAcrossRuns,
		},
	})
}

// GenerateRequest is one CLI invocation of the pipeline.
type GenerateRequest struct {
	Resources []string
	Type      domain.OriginType
	Name      string
	Output    string
}

// Generate runs one batch over the given resources.
func (a *Application) Generate(ctx context.Context, req GenerateRequest) (usecase.Result, error) {
	if len(req.Resources) == 0 {
		return usecase.Result{}, errors.New("no resources given")
	}
	run := usecase.RunRequest{Name: req.Name, OutputPath: req.Output}
	for _, ref := range req.Resources {
		run.Resources = append(run.Resources, usecase.Resource{Ref: ref, Type: req.Type})
	}
	return a.pipeline.Run(ctx, run)
}

// Runs lists recorded runs, newest first.
func (a *Application) Runs(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if a.repo == nil {
		return nil, errors.New("run history is disabled (storage.path is empty)")
	}
	return a.repo.ListRuns(ctx, limit)
}

// Watch scans dir every interval until ctx is cancelled. Zero values fall back
// to the configured inbox.
func (a *Application) Watch(ctx context.Context, dir string, interval time.Duration) error {
	if dir == "" {
		dir = a.cfg.Watch.Dir
	}
	if interval <= 0 {
		interval = a.cfg.Watch.Interval
	}

	w := usecase.NewWatcher(scheduler.NewTickerScheduler(interval), a.pipeline, a.source, dir, a.logger)
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	a.logger.Info("watching inbox", "dir", dir, "interval", interval)
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return w.Stop(stopCtx)
}

// Close releases the run store.
func (a *Application) Close() error {
	if a.repo == nil {
		return nil
	}
	return a.repo.Close()
}
