package ports

import (
	"context"
	"time"

	"QAForge/internal/domain"
)

// Completer is the opaque text-completion service (OpenAI-compatible, Gemini, offline).
type Completer interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// DocumentSource turns a resource reference into normalized text.
type DocumentSource interface {
	Load(ctx context.Context, resource string, originType domain.OriginType) (domain.SourceDocument, error)
}

// RunRepository persists run history and, optionally, question keys for cross-run dedup.
type RunRepository interface {
	SaveRun(ctx context.Context, run domain.RunRecord) error
	ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error)
	SeenQuestions(ctx context.Context, keys []string) (map[string]bool, error)
	RememberQuestions(ctx context.Context, runID string, keys []string) error
}

// Judge pushes a pair to an external model for a quality opinion in [0,1].
type Judge interface {
	Judge(ctx context.Context, pair domain.QAPair, chunkText string) (float64, error)
}

// ProgressListener receives pipeline events. Calls are delivered one at a time.
type ProgressListener interface {
	DocumentStarted(ev domain.DocumentEvent)
	ChunkCompleted(ev domain.ChunkEvent)
	DocumentCompleted(ev domain.DocumentEvent)
	RunCompleted(stats domain.Stats)
	RunFailed(err error, stats domain.Stats)
}

// Scheduler controls when inbox scans execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
