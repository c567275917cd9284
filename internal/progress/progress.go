// Package progress provides ProgressListener implementations that do not
// talk to external services.
package progress

import (
	"log/slog"

	"QAForge/internal/domain"
	"QAForge/internal/ports"
)

// Multi forwards every event to each listener in order.
type Multi []ports.ProgressListener

var _ ports.ProgressListener = Multi(nil)

// NewMulti drops nil listeners.
func NewMulti(listeners ...ports.ProgressListener) Multi {
	out := make(Multi, 0, len(listeners))
	for _, l := range listeners {
		if l != nil {
			out = append(out, l)
		}
	}
	return out
}

func (m Multi) DocumentStarted(ev domain.DocumentEvent) {
	for _, l := range m {
		l.DocumentStarted(ev)
	}
}

func (m Multi) ChunkCompleted(ev domain.ChunkEvent) {
	for _, l := range m {
		l.ChunkCompleted(ev)
	}
}

func (m Multi) DocumentCompleted(ev domain.DocumentEvent) {
	for _, l := range m {
		l.DocumentCompleted(ev)
	}
}

func (m Multi) RunCompleted(stats domain.Stats) {
	for _, l := range m {
		l.RunCompleted(stats)
	}
}

func (m Multi) RunFailed(err error, stats domain.Stats) {
	for _, l := range m {
		l.RunFailed(err, stats)
	}
}

// LogListener writes events to a structured logger. Chunk events are logged
// at debug level.
type LogListener struct {
	logger *slog.Logger
}

var _ ports.ProgressListener = (*LogListener)(nil)

func NewLogListener(logger *slog.Logger) *LogListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogListener{logger: logger.With("component", "progress")}
}

func (l *LogListener) DocumentStarted(ev domain.DocumentEvent) {
	l.logger.Info("document started", "document", ev.DocumentID, "source", ev.SourceID, "chunks", ev.Chunks)
}

func (l *LogListener) ChunkCompleted(ev domain.ChunkEvent) {
	if ev.Err != nil {
		l.logger.Warn("chunk failed", "document", ev.DocumentID, "chunk", ev.SequenceIndex, "error", ev.Err)
		return
	}
	l.logger.Debug("chunk completed", "document", ev.DocumentID, "chunk", ev.SequenceIndex, "pairs", ev.Pairs)
}

func (l *LogListener) DocumentCompleted(ev domain.DocumentEvent) {
	l.logger.Info("document completed",
		"document", ev.DocumentID,
		"chunks", ev.Chunks,
		"failed", ev.Failed,
		"pairs", ev.Pairs,
		"generated_total", ev.Stats.PairsGenerated,
	)
}

func (l *LogListener) RunCompleted(stats domain.Stats) {
	l.logger.Info("run summary",
		"written", stats.PairsWritten,
		"high", stats.HighWritten,
		"medium", stats.MediumWritten,
		"retention", stats.RetentionRate(),
	)
}

func (l *LogListener) RunFailed(err error, stats domain.Stats) {
	l.logger.Error("run aborted", "error", err, "chunks_processed", stats.ChunksProcessed, "chunks_failed", stats.ChunksFailed)
}
