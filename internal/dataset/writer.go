// Package dataset serializes accepted pairs as JSON lines. All records pass
// through one writer goroutine; each record is a single Write call and a
// failed write truncates the file back to the last complete record.
package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"QAForge/internal/domain"
)

const defaultBuffer = 64

// Options tunes the writer.
type Options struct {
	SplitTiers    bool
	WriteMetadata bool
	Buffer        int
	Timeout       time.Duration
}

// Input is one run's curated output.
type Input struct {
	Name       string
	Pairs      []domain.QAPair
	Origins    map[string]domain.Origin
	Timestamp  time.Time
	Thresholds map[string]float64
}

// Summary describes what Finalize produced.
type Summary struct {
	Path         string       `json:"path"`
	Records      int          `json:"records"`
	High         int          `json:"high"`
	Medium       int          `json:"medium"`
	Files        []string     `json:"files"`
	MetadataPath string       `json:"metadata_path,omitempty"`
	Stats        domain.Stats `json:"-"`
}

type file interface {
	io.Writer
	Truncate(size int64) error
	Sync() error
	Close() error
}

// Writer finalizes datasets.
type Writer struct {
	opts   Options
	logger *slog.Logger
	open   func(path string) (file, error)
}

// NewWriter returns a writer backed by the local filesystem.
func NewWriter(opts Options, logger *slog.Logger) *Writer {
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		opts:   opts,
		logger: logger.With("component", "dataset"),
		open:   openFile,
	}
}

func openFile(path string) (file, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

type sink struct {
	path   string
	f      file
	offset int64
}

func (s *sink) write(line []byte) error {
	n, err := s.f.Write(line)
	if err == nil && n < len(line) {
		err = io.ErrShortWrite
	}
	if err != nil {
		if terr := s.f.Truncate(s.offset); terr != nil {
			err = errors.Join(err, fmt.Errorf("truncate to %d: %w", s.offset, terr))
		}
		return &domain.IOError{Kind: domain.IOWriteFailure, Path: s.path, Err: err}
	}
	s.offset += int64(n)
	return nil
}

// Finalize writes every HIGH and MEDIUM pair of in to outputPath. REJECTED and
// unscored pairs are never written.
func (w *Writer) Finalize(ctx context.Context, in Input, outputPath string, stats *domain.RunStatistics) (Summary, error) {
	parent := ctx
	if w.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.opts.Timeout)
		defer cancel()
	}

	records := w.records(in)
	sum := Summary{Path: outputPath}
	if err := ctx.Err(); err != nil {
		return sum, w.budgetErr(parent, outputPath, fmt.Errorf("finalize dataset: %w", err))
	}

	sinks, err := w.openSinks(outputPath)
	if err != nil {
		return sum, err
	}
	for _, s := range sinks.all() {
		sum.Files = append(sum.Files, s.path)
	}

	ch := make(chan domain.DatasetRecord, w.opts.Buffer)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(ch)
		for _, rec := range records {
			select {
			case ch <- rec:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		for rec := range ch {
			if err := gctx.Err(); err != nil {
				return err
			}
			line, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal record %s: %w", rec.ID, err)
			}
			line = append(line, '\n')

			if err := sinks.main.write(line); err != nil {
				return err
			}
			if split := sinks.forTier(rec.Tier); split != nil {
				if err := split.write(line); err != nil {
					return err
				}
			}

			sum.Records++
			stats.PairsWritten.Add(1)
			if rec.Tier == domain.TierHigh {
				sum.High++
				stats.HighWritten.Add(1)
			} else {
				sum.Medium++
				stats.MediumWritten.Add(1)
			}
		}
		return nil
	})

	runErr := g.Wait()
	closeErr := sinks.close()
	if runErr == nil {
		runErr = closeErr
	}
	if runErr != nil {
		if ctx.Err() != nil {
			sinks.remove()
		}
		sum.Stats = stats.Snapshot()
		return sum, w.budgetErr(parent, outputPath, runErr)
	}

	sum.Stats = stats.Snapshot()
	if w.opts.WriteMetadata {
		path, err := w.writeMetadata(in, outputPath, sum)
		if err != nil {
			return sum, err
		}
		sum.MetadataPath = path
	}

	w.logger.Info("dataset written", "path", outputPath, "records", sum.Records, "high", sum.High, "medium", sum.Medium)
	return sum, nil
}

// budgetErr reports an expired write budget as a write failure. Cancellation
// of the caller's context is returned unchanged.
func (w *Writer) budgetErr(parent context.Context, path string, err error) error {
	if parent.Err() != nil || !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &domain.IOError{Kind: domain.IOWriteFailure, Path: path, Err: fmt.Errorf("write budget %s exceeded: %w", w.opts.Timeout, err)}
}

func (w *Writer) records(in Input) []domain.DatasetRecord {
	out := make([]domain.DatasetRecord, 0, len(in.Pairs))
	for _, p := range in.Pairs {
		if !p.Scored || p.Tier == domain.TierRejected || p.Tier == "" {
			continue
		}
		origin := in.Origins[p.DocumentID]
		sourceID := origin.SourceID
		if sourceID == "" {
			sourceID = p.DocumentID
		}
		out = append(out, domain.DatasetRecord{
			ID:           p.ID,
			Question:     p.Question,
			Answer:       p.Answer,
			QualityScore: p.QualityScore,
			Tier:         p.Tier,
			SourceID:     sourceID,
			OriginType:   origin.Type,
			ChunkIndex:   p.SequenceIndex,
			Timestamp:    in.Timestamp,
		})
	}
	return out
}

type sinkSet struct {
	main   *sink
	high   *sink
	medium *sink
}

func (s sinkSet) all() []*sink {
	out := []*sink{s.main}
	if s.high != nil {
		out = append(out, s.high, s.medium)
	}
	return out
}

func (s sinkSet) forTier(t domain.Tier) *sink {
	switch t {
	case domain.TierHigh:
		return s.high
	case domain.TierMedium:
		return s.medium
	default:
		return nil
	}
}

func (s sinkSet) close() error {
	var errs []error
	for _, sk := range s.all() {
		if err := sk.f.Sync(); err != nil {
			errs = append(errs, &domain.IOError{Kind: domain.IOWriteFailure, Path: sk.path, Err: err})
		}
		if err := sk.f.Close(); err != nil {
			errs = append(errs, &domain.IOError{Kind: domain.IOWriteFailure, Path: sk.path, Err: err})
		}
	}
	return errors.Join(errs...)
}

func (s sinkSet) remove() {
	for _, sk := range s.all() {
		_ = os.Remove(sk.path)
	}
}

func (w *Writer) openSinks(outputPath string) (sinkSet, error) {
	paths := []string{outputPath}
	if w.opts.SplitTiers {
		base := BasePath(outputPath)
		paths = append(paths, base+"_high.jsonl", base+"_medium.jsonl")
	}

	opened := make([]*sink, 0, len(paths))
	for _, p := range paths {
		f, err := w.open(p)
		if err != nil {
			for _, sk := range opened {
				_ = sk.f.Close()
				_ = os.Remove(sk.path)
			}
			return sinkSet{}, &domain.IOError{Kind: domain.IOPathUnwritable, Path: p, Err: err}
		}
		opened = append(opened, &sink{path: p, f: f})
	}

	set := sinkSet{main: opened[0]}
	if len(opened) == 3 {
		set.high, set.medium = opened[1], opened[2]
	}
	return set, nil
}

// BasePath strips the extension from a dataset path.
func BasePath(outputPath string) string {
	return strings.TrimSuffix(outputPath, filepath.Ext(outputPath))
}

// Metadata is the sidecar summary written next to the dataset.
type Metadata struct {
	Name          string             `json:"name"`
	CreatedAt     time.Time          `json:"created_at"`
	Records       int                `json:"records"`
	High          int                `json:"high"`
	Medium        int                `json:"medium"`
	RetentionRate float64            `json:"retention_rate"`
	Thresholds    map[string]float64 `json:"thresholds,omitempty"`
	Files         []string           `json:"files"`
	Statistics    domain.Stats       `json:"statistics"`
}

func (w *Writer) writeMetadata(in Input, outputPath string, sum Summary) (string, error) {
	meta := Metadata{
		Name:          in.Name,
		CreatedAt:     in.Timestamp,
		Records:       sum.Records,
		High:          sum.High,
		Medium:        sum.Medium,
		RetentionRate: sum.Stats.RetentionRate(),
		Thresholds:    in.Thresholds,
		Files:         sum.Files,
		Statistics:    sum.Stats,
	}
	body, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	path := BasePath(outputPath) + "_metadata.json"
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(body, '\n'), 0o644); err != nil {
		return "", &domain.IOError{Kind: domain.IOWriteFailure, Path: path, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", &domain.IOError{Kind: domain.IOWriteFailure, Path: path, Err: err}
	}
	return path, nil
}
