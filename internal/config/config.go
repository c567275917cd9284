package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"QAForge/internal/domain"
)

const (
	configPathEnv     = "QAFORGE_CONFIG"
	dbPathEnv         = "QAFORGE_DB_PATH"
	llmAPIKeyEnv      = "LLM_API_KEY"
	openAIAPIKeyEnv   = "OPENAI_API_KEY"
	geminiAPIKeyEnv   = "GEMINI_API_KEY"
	llmModelEnv       = "LLM_MODEL"
	llmProviderEnv    = "LLM_PROVIDER"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	logLevelEnv       = "LOG_LEVEL"
)

// Supported completion providers.
const (
	ProviderOpenAI  = "openai"
	ProviderGemini  = "gemini"
	ProviderOffline = "offline"
)

// Config holds high-level settings required across the application.
type Config struct {
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	Quality       QualityConfig      `yaml:"quality"`
	Dedup         DedupConfig        `yaml:"dedup"`
	Output        OutputConfig       `yaml:"output"`
	LLM           LLMConfig          `yaml:"llm"`
	Judge         JudgeConfig        `yaml:"judge"`
	Storage       StorageConfig      `yaml:"storage"`
	Notifications NotificationConfig `yaml:"notifications"`
	Watch         WatchConfig        `yaml:"watch"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// PipelineConfig sizes chunks and bounds generation work.
type PipelineConfig struct {
	MaxTokensPerChunk   int           `yaml:"maxTokensPerChunk"`
	ChunkOverlap        int           `yaml:"chunkOverlap"`
	PairsPerChunk       int           `yaml:"pairsPerChunk"`
	WorkerConcurrency   int           `yaml:"workerConcurrency"`
	ModelTimeoutSeconds int           `yaml:"modelTimeoutSeconds"`
	RetryAttempts       int           `yaml:"retryAttempts"`
	RetryBaseDelay      time.Duration `yaml:"retryBaseDelay"`
	RetryMaxDelay       time.Duration `yaml:"retryMaxDelay"`
}

// ModelTimeout is the per-call deadline for the completion service.
func (p PipelineConfig) ModelTimeout() time.Duration {
	return time.Duration(p.ModelTimeoutSeconds) * time.Second
}

// QualityConfig holds the scoring thresholds.
type QualityConfig struct {
	RejectThreshold float64 `yaml:"rejectThreshold"`
	HighThreshold   float64 `yaml:"highThreshold"`
	MinAnswerChars  int     `yaml:"minAnswerChars"`
	MaxAnswerChars  int     `yaml:"maxAnswerChars"`
	JudgeWeight     float64 `yaml:"judgeWeight"`
}

// DedupConfig tunes near-duplicate detection.
type DedupConfig struct {
	SimilarityThreshold float64 `yaml:"similarityThreshold"`
	PairwiseCutoff      int     `yaml:"pairwiseCutoff"`
	PersistAcrossRuns   bool    `yaml:"persistAcrossRuns"`
}

// OutputConfig describes where datasets land. WriteTimeout bounds one
// dataset write.
type OutputConfig struct {
	Dir           string        `yaml:"dir"`
	SplitTiers    bool          `yaml:"splitTiers"`
	WriteMetadata bool          `yaml:"writeMetadata"`
	WriteTimeout  time.Duration `yaml:"writeTimeout"`
}

// LLMConfig defines how to contact the completion service.
type LLMConfig struct {
	Provider          string  `yaml:"provider"`
	Endpoint          string  `yaml:"endpoint"`
	Model             string  `yaml:"model"`
	APIKey            string  `yaml:"apiKey"`
	SystemPrompt      string  `yaml:"systemPrompt"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
	CacheSize         int     `yaml:"cacheSize"`
}

// JudgeConfig points at the optional scoring service.
type JudgeConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
}

// StorageConfig locates the run history database.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// WatchConfig defines the inbox scanned in watch mode.
type WatchConfig struct {
	Dir      string        `yaml:"dir"`
	Interval time.Duration `yaml:"interval"`
}

// LoggingConfig selects level and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads .env, YAML configuration from $QAFORGE_CONFIG (if set) and
// applies environment overrides.
func Load() Config {
	return LoadFrom(os.Getenv(configPathEnv))
}

// LoadFrom is Load with an explicit YAML path; an empty path skips the file.
func LoadFrom(path string) Config {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(llmProviderEnv); v != "" {
		c.LLM.Provider = strings.ToLower(v)
	}
	if v := os.Getenv(llmModelEnv); v != "" {
		c.LLM.Model = v
	}

	keyEnvs := []string{llmAPIKeyEnv, openAIAPIKeyEnv}
	if c.LLM.Provider == ProviderGemini {
		keyEnvs = []string{llmAPIKeyEnv, geminiAPIKeyEnv}
	}
	for _, env := range keyEnvs {
		if v := os.Getenv(env); v != "" {
			c.LLM.APIKey = v
			break
		}
	}

	if v := os.Getenv(dbPathEnv); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	p, q, d := c.Pipeline, c.Quality, c.Dedup

	switch {
	case p.MaxTokensPerChunk <= 0:
		return configErr(domain.ConfigInvalidChunking, "pipeline.maxTokensPerChunk", "must be > 0")
	case p.ChunkOverlap < 0 || p.ChunkOverlap >= p.MaxTokensPerChunk:
		return configErr(domain.ConfigInvalidChunking, "pipeline.chunkOverlap", "must be >= 0 and < maxTokensPerChunk")
	case p.PairsPerChunk <= 0:
		return configErr(domain.ConfigInvalidChunking, "pipeline.pairsPerChunk", "must be > 0")
	case p.WorkerConcurrency < 1:
		return configErr(domain.ConfigInvalidConcurrency, "pipeline.workerConcurrency", "must be >= 1")
	case p.ModelTimeoutSeconds <= 0:
		return configErr(domain.ConfigInvalidTimeout, "pipeline.modelTimeoutSeconds", "must be > 0")
	case p.RetryAttempts < 1:
		return configErr(domain.ConfigInvalidRetry, "pipeline.retryAttempts", "must be >= 1")
	case p.RetryBaseDelay <= 0:
		return configErr(domain.ConfigInvalidRetry, "pipeline.retryBaseDelay", "must be > 0")
	case p.RetryMaxDelay < p.RetryBaseDelay:
		return configErr(domain.ConfigInvalidRetry, "pipeline.retryMaxDelay", "must be >= retryBaseDelay")
	case q.RejectThreshold < 0 || q.RejectThreshold > 1:
		return configErr(domain.ConfigInvalidThreshold, "quality.rejectThreshold", "must be within [0,1]")
	case q.HighThreshold < q.RejectThreshold || q.HighThreshold > 1:
		return configErr(domain.ConfigInvalidThreshold, "quality.highThreshold", "must be within [rejectThreshold,1]")
	case q.MinAnswerChars < 0 || q.MaxAnswerChars <= q.MinAnswerChars:
		return configErr(domain.ConfigInvalidThreshold, "quality.maxAnswerChars", "must be > minAnswerChars >= 0")
	case q.JudgeWeight < 0 || q.JudgeWeight > 1:
		return configErr(domain.ConfigInvalidThreshold, "quality.judgeWeight", "must be within [0,1]")
	case d.SimilarityThreshold <= 0 || d.SimilarityThreshold > 1:
		return configErr(domain.ConfigInvalidThreshold, "dedup.similarityThreshold", "must be within (0,1]")
	case d.PairwiseCutoff < 0:
		return configErr(domain.ConfigInvalidThreshold, "dedup.pairwiseCutoff", "must be >= 0")
	case c.Output.WriteTimeout <= 0:
		return configErr(domain.ConfigInvalidTimeout, "output.writeTimeout", "must be > 0")
	}

	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderGemini, ProviderOffline:
	default:
		return configErr(domain.ConfigInvalidProvider, "llm.provider", fmt.Sprintf("unknown provider %q", c.LLM.Provider))
	}
	return nil
}

func configErr(kind domain.ConfigErrorKind, field, reason string) error {
	return &domain.ConfigError{Kind: kind, Field: field, Reason: reason}
}

func mergeConfig(base, override Config) Config {
	p, op := &base.Pipeline, override.Pipeline
	if op.MaxTokensPerChunk != 0 {
		p.MaxTokensPerChunk = op.MaxTokensPerChunk
	}
	if op.ChunkOverlap != 0 {
		p.ChunkOverlap = op.ChunkOverlap
	}
	if op.PairsPerChunk != 0 {
		p.PairsPerChunk = op.PairsPerChunk
	}
	if op.WorkerConcurrency != 0 {
		p.WorkerConcurrency = op.WorkerConcurrency
	}
	if op.ModelTimeoutSeconds != 0 {
		p.ModelTimeoutSeconds = op.ModelTimeoutSeconds
	}
	if op.RetryAttempts != 0 {
		p.RetryAttempts = op.RetryAttempts
	}
	if op.RetryBaseDelay != 0 {
		p.RetryBaseDelay = op.RetryBaseDelay
	}
	if op.RetryMaxDelay != 0 {
		p.RetryMaxDelay = op.RetryMaxDelay
	}

	q, oq := &base.Quality, override.Quality
	if oq.RejectThreshold != 0 {
		q.RejectThreshold = oq.RejectThreshold
	}
	if oq.HighThreshold != 0 {
		q.HighThreshold = oq.HighThreshold
	}
	if oq.MinAnswerChars != 0 {
		q.MinAnswerChars = oq.MinAnswerChars
	}
	if oq.MaxAnswerChars != 0 {
		q.MaxAnswerChars = oq.MaxAnswerChars
	}
	if oq.JudgeWeight != 0 {
		q.JudgeWeight = oq.JudgeWeight
	}

	if override.Dedup.SimilarityThreshold != 0 {
		base.Dedup.SimilarityThreshold = override.Dedup.SimilarityThreshold
	}
	if override.Dedup.PairwiseCutoff != 0 {
		base.Dedup.PairwiseCutoff = override.Dedup.PairwiseCutoff
	}
	base.Dedup.PersistAcrossRuns = base.Dedup.PersistAcrossRuns || override.Dedup.PersistAcrossRuns

	if override.Output.Dir != "" {
		base.Output.Dir = override.Output.Dir
	}
	base.Output.SplitTiers = base.Output.SplitTiers || override.Output.SplitTiers
	base.Output.WriteMetadata = base.Output.WriteMetadata || override.Output.WriteMetadata
	if override.Output.WriteTimeout != 0 {
		base.Output.WriteTimeout = override.Output.WriteTimeout
	}

	l, ol := &base.LLM, override.LLM
	if ol.Provider != "" {
		l.Provider = strings.ToLower(ol.Provider)
	}
	if ol.Endpoint != "" {
		l.Endpoint = ol.Endpoint
	}
	if ol.Model != "" {
		l.Model = ol.Model
	}
	if ol.APIKey != "" {
		l.APIKey = ol.APIKey
	}
	if ol.SystemPrompt != "" {
		l.SystemPrompt = ol.SystemPrompt
	}
	if ol.RequestsPerSecond != 0 {
		l.RequestsPerSecond = ol.RequestsPerSecond
	}
	if ol.Burst != 0 {
		l.Burst = ol.Burst
	}
	if ol.CacheSize != 0 {
		l.CacheSize = ol.CacheSize
	}

	if override.Judge.Endpoint != "" {
		base.Judge.Endpoint = override.Judge.Endpoint
	}
	if override.Judge.APIKey != "" {
		base.Judge.APIKey = override.Judge.APIKey
	}

	if override.Storage.Path != "" {
		base.Storage.Path = override.Storage.Path
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if override.Watch.Dir != "" {
		base.Watch.Dir = override.Watch.Dir
	}
	if override.Watch.Interval != 0 {
		base.Watch.Interval = override.Watch.Interval
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	return base
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Pipeline: PipelineConfig{
			MaxTokensPerChunk:   800,
			ChunkOverlap:        100,
			PairsPerChunk:       3,
			WorkerConcurrency:   4,
			ModelTimeoutSeconds: 60,
			RetryAttempts:       3,
			RetryBaseDelay:      500 * time.Millisecond,
			RetryMaxDelay:       10 * time.Second,
		},
		Quality: QualityConfig{
			RejectThreshold: 0.6,
			HighThreshold:   0.8,
			MinAnswerChars:  2,
			MaxAnswerChars:  4000,
			JudgeWeight:     0.5,
		},
		Dedup: DedupConfig{
			SimilarityThreshold: 0.85,
			PairwiseCutoff:      2000,
		},
		Output: OutputConfig{Dir: "datasets", WriteTimeout: 5 * time.Minute},
		LLM: LLMConfig{
			Provider:     ProviderOpenAI,
			Endpoint:     "https://api.openai.com/v1/chat/completions",
			Model:        "gpt-4o-mini",
			SystemPrompt: "You generate question-answer pairs for training datasets and reply with JSON only.",
			Burst:        1,
			CacheSize:    256,
		},
		Storage: StorageConfig{Path: "qaforge.db"},
		Watch:   WatchConfig{Dir: "inbox", Interval: time.Minute},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}
