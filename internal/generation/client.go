// Package generation drives the completion service for one chunk: it applies
// the call timeout, rate limit and cache, parses the reply into candidate
// pairs and makes a single repair attempt when the reply is malformed.
// Retrying transient failures is the caller's job.
package generation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"QAForge/internal/domain"
	"QAForge/internal/ports"
	"QAForge/internal/prompt"
)

// Options tunes a Client.
type Options struct {
	Timeout           time.Duration
	PairsPerChunk     int
	RequestsPerSecond float64
	Burst             int
	CacheSize         int
}

// Outcome is the result of a successful generation.
type Outcome struct {
	Pairs       []domain.QAPair
	Unparseable int
	Repaired    bool
	Cached      bool
}

// Client wraps a ports.Completer.
type Client struct {
	completer ports.Completer
	builder   *prompt.Builder
	limiter   *rate.Limiter
	cache     *lru.Cache[string, string]
	timeout   time.Duration
	maxPairs  int
	logger    *slog.Logger
}

// NewClient validates options and prepares the limiter and cache.
func NewClient(completer ports.Completer, builder *prompt.Builder, opts Options, logger *slog.Logger) (*Client, error) {
	if completer == nil {
		return nil, errors.New("generation: completer is required")
	}
	if builder == nil {
		return nil, errors.New("generation: prompt builder is required")
	}
	if opts.Timeout <= 0 {
		return nil, &domain.ConfigError{Kind: domain.ConfigInvalidTimeout, Field: "modelTimeoutSeconds", Reason: "must be > 0"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		completer: completer,
		builder:   builder,
		timeout:   opts.Timeout,
		maxPairs:  opts.PairsPerChunk,
		logger:    logger.With("component", "generation", "completer", completer.Name()),
	}
	if c.maxPairs <= 0 {
		c.maxPairs = builder.PairsPerChunk()
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[string, string](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create response cache: %w", err)
		}
		c.cache = cache
	}
	return c, nil
}

// Generate runs one attempt for promptText. A malformed reply triggers exactly
// one repair prompt before MALFORMED_OUTPUT is returned.
func (c *Client) Generate(ctx context.Context, promptText string, chunk domain.Chunk, stats *domain.RunStatistics) (Outcome, error) {
	key := cacheKey(c.completer.Name(), promptText)
	if raw, ok := c.cached(key); ok {
		items := Parse(raw)
		out := c.outcome(chunk, items, stats)
		out.Cached = true
		return out, nil
	}

	raw, err := c.complete(ctx, promptText, stats)
	if err != nil {
		return Outcome{}, err
	}
	items := Parse(raw)
	if CountParsed(items) > 0 {
		c.store(key, raw)
		return c.outcome(chunk, items, stats), nil
	}

	stats.GenerationFailures.Add(1)
	stats.RepairAttempts.Add(1)
	c.logger.Debug("malformed model output, repairing", "chunk", chunk.ID(), "bytes", len(raw))

	repaired, err := c.complete(ctx, c.builder.BuildRepair(chunk, raw), stats)
	if err != nil {
		return Outcome{}, err
	}
	items = Parse(repaired)
	if CountParsed(items) == 0 {
		stats.GenerationFailures.Add(1)
		return Outcome{}, &domain.GenerationError{
			Kind: domain.GenerationMalformedOutput,
			Err:  fmt.Errorf("no parseable pairs in reply for chunk %s", chunk.ID()),
		}
	}
	c.store(key, repaired)
	out := c.outcome(chunk, items, stats)
	out.Repaired = true
	return out, nil
}

func (c *Client) complete(ctx context.Context, promptText string, stats *domain.RunStatistics) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("wait for rate limiter: %w", err)
		}
	}

	stats.GenerationAttempts.Add(1)
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.completer.Complete(callCtx, promptText)
	if err == nil {
		return raw, nil
	}
	if ctx.Err() != nil {
		return "", fmt.Errorf("complete: %w", ctx.Err())
	}

	stats.GenerationFailures.Add(1)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		stats.Timeouts.Add(1)
		return "", &domain.GenerationError{Kind: domain.GenerationTimeout, Err: err}
	}
	return "", &domain.GenerationError{Kind: domain.GenerationServiceUnavailable, Err: err}
}

func (c *Client) outcome(chunk domain.Chunk, items []Item, stats *domain.RunStatistics) Outcome {
	var out Outcome
	for _, it := range items {
		if it.Kind != Parsed {
			out.Unparseable++
			continue
		}
		if len(out.Pairs) == c.maxPairs {
			continue
		}
		idx := len(out.Pairs)
		out.Pairs = append(out.Pairs, domain.QAPair{
			ID:             PairID(chunk, idx),
			ChunkID:        chunk.ID(),
			DocumentID:     chunk.DocumentID,
			SequenceIndex:  chunk.SequenceIndex,
			PairIndex:      idx,
			Question:       it.Question,
			Answer:         it.Answer,
			RawModelOutput: it.Raw,
		})
	}
	stats.PairsGenerated.Add(int64(len(out.Pairs)))
	stats.PairsUnparseable.Add(int64(out.Unparseable))
	return out
}

func (c *Client) cached(key string) (string, bool) {
	if c.cache == nil {
		return "", false
	}
	return c.cache.Get(key)
}

func (c *Client) store(key, raw string) {
	if c.cache != nil {
		c.cache.Add(key, raw)
	}
}

// PairID derives a stable pair identifier from its chunk and position.
func PairID(chunk domain.Chunk, index int) string {
	name := "qaforge:pair:" + chunk.ID() + ":" + strconv.Itoa(index)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func cacheKey(completer, promptText string) string {
	sum := sha256.Sum256([]byte(completer + "\x00" + promptText))
	return hex.EncodeToString(sum[:])
}
