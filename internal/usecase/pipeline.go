package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"QAForge/internal/chunker"
	"QAForge/internal/dataset"
	"QAForge/internal/dedup"
	"QAForge/internal/domain"
	"QAForge/internal/generation"
	"QAForge/internal/ports"
	"QAForge/internal/prompt"
	"QAForge/internal/quality"
)

// Generator produces candidate pairs for one chunk in a single attempt.
type Generator interface {
	Generate(ctx context.Context, promptText string, chunk domain.Chunk, stats *domain.RunStatistics) (generation.Outcome, error)
}

// DatasetWriter persists the curated pairs.
type DatasetWriter interface {
	Finalize(ctx context.Context, in dataset.Input, outputPath string, stats *domain.RunStatistics) (dataset.Summary, error)
}

// Options tunes scheduling and retries.
type Options struct {
	WorkerConcurrency   int
	RetryAttempts       int
	RetryBaseDelay      time.Duration
	RetryMaxDelay       time.Duration
	OutputDir           string
	SimilarityThreshold float64
	PersistQuestions    bool
}

// PipelineDeps wires all collaborators into the orchestration pipeline.
type PipelineDeps struct {
	Source     ports.DocumentSource
	Chunker    *chunker.Chunker
	Prompts    *prompt.Builder
	Generator  Generator
	Scorer     *quality.Scorer
	Dedup      *dedup.Deduplicator
	Writer     DatasetWriter
	Repository ports.RunRepository
	Judge      ports.Judge
	Listener   ports.ProgressListener
	Logger     *slog.Logger
	Clock      func() time.Time
	Options    Options
}

// Pipeline implements the generation-and-curation workflow.
type Pipeline struct {
	source     ports.DocumentSource
	chunker    *chunker.Chunker
	prompts    *prompt.Builder
	generator  Generator
	scorer     *quality.Scorer
	dedup      *dedup.Deduplicator
	writer     DatasetWriter
	repository ports.RunRepository
	judge      ports.Judge
	listener   ports.ProgressListener
	logger     *slog.Logger
	clock      func() time.Time
	opts       Options
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) (*Pipeline, error) {
	switch {
	case deps.Chunker == nil:
		return nil, errors.New("pipeline: chunker is required")
	case deps.Prompts == nil:
		return nil, errors.New("pipeline: prompt builder is required")
	case deps.Generator == nil:
		return nil, errors.New("pipeline: generator is required")
	case deps.Scorer == nil:
		return nil, errors.New("pipeline: scorer is required")
	case deps.Dedup == nil:
		return nil, errors.New("pipeline: deduplicator is required")
	case deps.Writer == nil:
		return nil, errors.New("pipeline: writer is required")
	}

	opts := deps.Options
	if opts.WorkerConcurrency < 1 {
		return nil, &domain.ConfigError{Kind: domain.ConfigInvalidConcurrency, Field: "workerConcurrency", Reason: "must be >= 1"}
	}
	if opts.RetryAttempts < 1 || opts.RetryBaseDelay <= 0 || opts.RetryMaxDelay < opts.RetryBaseDelay {
		return nil, &domain.ConfigError{Kind: domain.ConfigInvalidRetry, Field: "retry", Reason: "need attempts >= 1 and 0 < base <= max"}
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	listener := deps.Listener
	if listener == nil {
		listener = nopListener{}
	}

	return &Pipeline{
		source:     deps.Source,
		chunker:    deps.Chunker,
		prompts:    deps.Prompts,
		generator:  deps.Generator,
		scorer:     deps.Scorer,
		dedup:      deps.Dedup,
		writer:     deps.Writer,
		repository: deps.Repository,
		judge:      deps.Judge,
		listener:   listener,
		logger:     logger,
		clock:      clock,
		opts:       opts,
	}, nil
}

// Resource is an input reference resolved by the document source.
type Resource struct {
	Ref  string
	Type domain.OriginType
}

// RunRequest describes one batch.
type RunRequest struct {
	Name       string
	OutputPath string
	Resources  []Resource
	Documents  []domain.SourceDocument
}

// Result is returned from every run, including failed ones.
type Result struct {
	RunID      string
	Name       string
	State      domain.RunState
	OutputPath string
	Stats      domain.Stats
	Summary    dataset.Summary
	Pairs      []domain.QAPair
}

// run carries the mutable state of one execution.
type run struct {
	id      string
	name    string
	output  string
	started time.Time
	state   domain.RunState
	stats   *domain.RunStatistics
	logger  *slog.Logger
}

func (p *Pipeline) transition(r *run, to domain.RunState) error {
	if err := domain.ValidateTransition(r.state, to); err != nil {
		return err
	}
	r.logger.Debug("run state", "from", r.state, "to", to)
	r.state = to
	return nil
}

// DefaultName is the dataset name used when the caller supplies none.
func DefaultName(t time.Time) string {
	return "training_dataset_" + t.Format("20060102_150405")
}

// Run executes the whole pipeline for req.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (Result, error) {
	started := p.clock()
	name := req.Name
	if name == "" {
		name = DefaultName(started)
	}
	output := req.OutputPath
	if output == "" {
		output = filepath.Join(p.opts.OutputDir, name+".jsonl")
	}
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("qaforge:run:"+name+":"+started.UTC().Format(time.RFC3339Nano))).String()

	r := &run{
		id:      id,
		name:    name,
		output:  output,
		started: started,
		state:   domain.StateIdle,
		stats:   &domain.RunStatistics{},
		logger:  p.logger.With("run", id, "name", name),
	}
	r.logger.Info("run started", "output", output)

	res, err := p.execute(ctx, r, req)
	res.RunID, res.Name, res.OutputPath = r.id, r.name, r.output
	res.Stats = r.stats.Snapshot()

	if err != nil {
		if terr := p.transition(r, domain.StateFailed); terr != nil {
			err = errors.Join(err, terr)
		}
		res.State = r.state
		r.logger.Error("run failed", "error", err, "chunks_failed", res.Stats.ChunksFailed)
		p.listener.RunFailed(err, res.Stats)
		p.saveRun(r, res, err)
		return res, err
	}

	res.State = r.state
	r.logger.Info("run completed",
		"written", res.Stats.PairsWritten,
		"generated", res.Stats.PairsGenerated,
		"rejected", res.Stats.PairsRejected,
		"duplicates", res.Stats.DuplicatesRemoved,
	)
	p.listener.RunCompleted(res.Stats)
	p.saveRun(r, res, nil)
	return res, nil
}

func (p *Pipeline) execute(ctx context.Context, r *run, req RunRequest) (Result, error) {
	var res Result

	if err := p.transition(r, domain.StateIngesting); err != nil {
		return res, err
	}
	docs, err := p.ingest(ctx, req)
	if err != nil {
		return res, err
	}
	r.stats.Documents.Add(int64(len(docs)))

	if err := p.transition(r, domain.StateChunking); err != nil {
		return res, err
	}
	chunks, perDoc := p.chunk(docs)

	if err := p.transition(r, domain.StateGenerating); err != nil {
		return res, err
	}
	candidates := p.generate(ctx, r, docs, chunks, perDoc)
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("generate: %w", err)
	}

	if err := p.transition(r, domain.StateScoring); err != nil {
		return res, err
	}
	accepted, err := p.score(ctx, r, chunks, candidates)
	if err != nil {
		return res, err
	}

	if err := p.transition(r, domain.StateDeduping); err != nil {
		return res, err
	}
	kept, err := p.deduplicate(ctx, r, accepted)
	if err != nil {
		return res, err
	}
	res.Pairs = kept

	if err := p.transition(r, domain.StateWriting); err != nil {
		return res, err
	}
	origins := make(map[string]domain.Origin, len(docs))
	for _, d := range docs {
		o := d.Origin
		o.SourceID = d.SourceID()
		origins[d.ID] = o
	}
	summary, err := p.writer.Finalize(ctx, dataset.Input{
		Name:       r.name,
		Pairs:      kept,
		Origins:    origins,
		Timestamp:  r.started,
		Thresholds: p.thresholds(),
	}, r.output, r.stats)
	res.Summary = summary
	if err != nil {
		return res, fmt.Errorf("write dataset: %w", err)
	}

	if err := p.transition(r, domain.StateDone); err != nil {
		return res, err
	}
	p.rememberQuestions(ctx, r, kept)
	return res, nil
}

func (p *Pipeline) ingest(ctx context.Context, req RunRequest) ([]domain.SourceDocument, error) {
	docs := make([]domain.SourceDocument, 0, len(req.Documents)+len(req.Resources))
	docs = append(docs, req.Documents...)

	for _, res := range req.Resources {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("ingest: %w", err)
		}
		if p.source == nil {
			return nil, errors.New("ingest: no document source configured")
		}
		doc, err := p.source.Load(ctx, res.Ref, res.Type)
		if err != nil {
			return nil, fmt.Errorf("ingest %s: %w", res.Ref, err)
		}
		docs = append(docs, doc)
	}

	seen := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		if d.ID == "" {
			return nil, errors.New("ingest: document without id")
		}
		if _, dup := seen[d.ID]; dup {
			return nil, fmt.Errorf("ingest: duplicate document id %s", d.ID)
		}
		seen[d.ID] = struct{}{}
	}
	return docs, nil
}

// chunk materializes every document's chunks in document order. perDoc[i] is
// the number of chunks of docs[i].
func (p *Pipeline) chunk(docs []domain.SourceDocument) ([]domain.Chunk, []int) {
	var chunks []domain.Chunk
	perDoc := make([]int, len(docs))
	for i, d := range docs {
		for c := range p.chunker.Chunks(d).All() {
			chunks = append(chunks, c)
			perDoc[i]++
		}
	}
	return chunks, perDoc
}

// generate runs the bounded worker pool over all chunks of the batch. Results
// are stored by global chunk index so output order never depends on timing.
func (p *Pipeline) generate(ctx context.Context, r *run, docs []domain.SourceDocument, chunks []domain.Chunk, perDoc []int) [][]domain.QAPair {
	results := make([][]domain.QAPair, len(chunks))
	events := newEmitter(p.listener, docs, perDoc, r.stats)

	g := new(errgroup.Group)
	g.SetLimit(p.opts.WorkerConcurrency)

	next := 0
	for di := range docs {
		if ctx.Err() != nil {
			break
		}
		events.documentStarted(di)
		for k := 0; k < perDoc[di]; k++ {
			if ctx.Err() != nil {
				break
			}
			idx := next + k
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				chunk := chunks[idx]
				pairs, err := p.generateChunk(ctx, chunk, r.stats)
				if ctx.Err() != nil {
					return nil
				}
				if err != nil {
					r.stats.ChunksFailed.Add(1)
					r.logger.Warn("chunk failed", "chunk", chunk.ID(), "error", err)
				} else {
					r.stats.ChunksProcessed.Add(1)
					results[idx] = pairs
				}
				events.chunkDone(di, chunk.SequenceIndex, len(pairs), err)
				return nil
			})
		}
		next += perDoc[di]
	}
	_ = g.Wait()
	return results
}

// generateChunk retries TIMEOUT and transient SERVICE_UNAVAILABLE failures with
// bounded exponential backoff. MALFORMED_OUTPUT is never retried here; the
// generator already made its repair attempt.
func (p *Pipeline) generateChunk(ctx context.Context, chunk domain.Chunk, stats *domain.RunStatistics) ([]domain.QAPair, error) {
	promptText := p.prompts.Build(chunk)

	var lastErr error
	for attempt := 1; attempt <= p.opts.RetryAttempts; attempt++ {
		out, err := p.generator.Generate(ctx, promptText, chunk, stats)
		if err == nil {
			return out.Pairs, nil
		}
		lastErr = err

		var genErr *domain.GenerationError
		if !errors.As(err, &genErr) || !genErr.Retryable() || attempt == p.opts.RetryAttempts {
			break
		}
		if err := sleep(ctx, p.backoff(attempt)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (p *Pipeline) backoff(attempt int) time.Duration {
	d := p.opts.RetryBaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.opts.RetryMaxDelay {
			return p.opts.RetryMaxDelay
		}
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// score assigns scores and tiers. Invalid pairs are counted and dropped;
// REJECTED pairs are counted and excluded from dedup and output.
func (p *Pipeline) score(ctx context.Context, r *run, chunks []domain.Chunk, candidates [][]domain.QAPair) ([]domain.QAPair, error) {
	type slot struct {
		pair  domain.QAPair
		valid bool
	}
	var slots []slot
	var texts []string
	for i, pairs := range candidates {
		for _, pair := range pairs {
			slots = append(slots, slot{pair: pair})
			texts = append(texts, chunks[i].Text)
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(p.opts.WorkerConcurrency)
	for i := range slots {
		g.Go(func() error {
			pair := slots[i].pair
			score, err := p.scorer.Score(pair, texts[i])
			if err != nil {
				var scoreErr *domain.ScoringError
				if errors.As(err, &scoreErr) {
					r.stats.PairsInvalid.Add(1)
					return nil
				}
				return fmt.Errorf("score pair %s: %w", pair.ID, err)
			}
			if p.judge != nil && score > 0 {
				opinion, err := p.judge.Judge(ctx, pair, texts[i])
				if err != nil {
					r.logger.Warn("judge unavailable, keeping heuristic score", "pair", pair.ID, "error", err)
				} else {
					score = p.scorer.Blend(score, opinion)
				}
			}
			pair.QualityScore = score
			pair.Scored = true
			pair.Tier = p.scorer.Classify(score)
			slots[i] = slot{pair: pair, valid: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}

	accepted := make([]domain.QAPair, 0, len(slots))
	for _, s := range slots {
		if !s.valid {
			continue
		}
		if s.pair.Tier == domain.TierRejected {
			r.stats.PairsRejected.Add(1)
			continue
		}
		accepted = append(accepted, s.pair)
	}
	return accepted, nil
}

func (p *Pipeline) deduplicate(ctx context.Context, r *run, pairs []domain.QAPair) ([]domain.QAPair, error) {
	if p.opts.PersistQuestions && p.repository != nil && len(pairs) > 0 {
		keys := questionKeys(pairs)
		seen, err := p.repository.SeenQuestions(ctx, keys)
		if err != nil {
			return nil, fmt.Errorf("load seen questions: %w", err)
		}
		fresh := pairs[:0:0]
		for i, pair := range pairs {
			if seen[keys[i]] {
				r.stats.DuplicatesRemoved.Add(1)
				continue
			}
			fresh = append(fresh, pair)
		}
		pairs = fresh
	}

	res := p.dedup.Dedupe(pairs)
	r.stats.DuplicatesRemoved.Add(int64(res.Removed))
	return res.Kept, nil
}

func (p *Pipeline) rememberQuestions(ctx context.Context, r *run, kept []domain.QAPair) {
	if !p.opts.PersistQuestions || p.repository == nil || len(kept) == 0 {
		return
	}
	if err := p.repository.RememberQuestions(ctx, r.id, questionKeys(kept)); err != nil {
		r.logger.Warn("remember questions", "error", err)
	}
}

func (p *Pipeline) saveRun(r *run, res Result, runErr error) {
	if p.repository == nil {
		return
	}
	rec := domain.RunRecord{
		ID:         r.id,
		Name:       r.name,
		State:      r.state,
		OutputPath: r.output,
		Stats:      res.Stats,
		StartedAt:  r.started,
		FinishedAt: p.clock(),
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	// The caller's context may already be cancelled; history is still recorded.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.repository.SaveRun(ctx, rec); err != nil {
		r.logger.Warn("save run", "error", err)
	}
}

func (p *Pipeline) thresholds() map[string]float64 {
	o := p.scorer.Options()
	t := map[string]float64{
		"reject_threshold": o.RejectThreshold,
		"high_threshold":   o.HighThreshold,
	}
	if p.opts.SimilarityThreshold > 0 {
		t["dedup_similarity_threshold"] = p.opts.SimilarityThreshold
	}
	if p.judge != nil {
		t["judge_weight"] = o.JudgeWeight
	}
	return t
}

func questionKeys(pairs []domain.QAPair) []string {
	keys := make([]string, len(pairs))
	for i, pair := range pairs {
		keys[i] = dedup.Key(pair.Question)
	}
	return keys
}

// emitter serializes progress callbacks and tracks per-document completion.
type emitter struct {
	mu        sync.Mutex
	listener  ports.ProgressListener
	docs      []domain.SourceDocument
	chunks    []int
	remaining []int
	failed    []int
	pairs     []int
	stats     *domain.RunStatistics
}

func newEmitter(l ports.ProgressListener, docs []domain.SourceDocument, perDoc []int, stats *domain.RunStatistics) *emitter {
	return &emitter{
		listener:  l,
		docs:      docs,
		chunks:    perDoc,
		remaining: append([]int(nil), perDoc...),
		failed:    make([]int, len(docs)),
		pairs:     make([]int, len(docs)),
		stats:     stats,
	}
}

func (e *emitter) docEvent(di int) domain.DocumentEvent {
	d := e.docs[di]
	return domain.DocumentEvent{
		DocumentID: d.ID,
		SourceID:   d.SourceID(),
		Chunks:     e.chunks[di],
		Failed:     e.failed[di],
		Pairs:      e.pairs[di],
		Stats:      e.stats.Snapshot(),
	}
}

func (e *emitter) documentStarted(di int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ev := e.docEvent(di)
	e.listener.DocumentStarted(ev)
	if e.remaining[di] == 0 {
		e.listener.DocumentCompleted(ev)
	}
}

func (e *emitter) chunkDone(di, seq, pairs int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.remaining[di]--
	e.pairs[di] += pairs
	if err != nil {
		e.failed[di]++
	}
	e.listener.ChunkCompleted(domain.ChunkEvent{
		DocumentID:    e.docs[di].ID,
		SequenceIndex: seq,
		Pairs:         pairs,
		Err:           err,
		Stats:         e.stats.Snapshot(),
	})
	if e.remaining[di] == 0 {
		e.listener.DocumentCompleted(e.docEvent(di))
	}
}

type nopListener struct{}

func (nopListener) DocumentStarted(domain.DocumentEvent)   {}
func (nopListener) ChunkCompleted(domain.ChunkEvent)       {}
func (nopListener) DocumentCompleted(domain.DocumentEvent) {}
func (nopListener) RunCompleted(domain.Stats)              {}
func (nopListener) RunFailed(error, domain.Stats)          {}
