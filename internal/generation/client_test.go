package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QAForge/internal/domain"
	"QAForge/internal/prompt"
)

type reply struct {
	text  string
	err   error
	block bool
}

type scriptedCompleter struct {
	mu      sync.Mutex
	replies []reply
	prompts []string
}

func (s *scriptedCompleter) Name() string { return "scripted" }

func (s *scriptedCompleter) Complete(ctx context.Context, p string) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, p)
	if len(s.replies) == 0 {
		s.mu.Unlock()
		return "", errors.New("script exhausted")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	s.mu.Unlock()

	if r.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return r.text, r.err
}

func (s *scriptedCompleter) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

func newClient(t *testing.T, c *scriptedCompleter, opts Options) *Client {
	t.Helper()
	if opts.Timeout == 0 {
		opts.Timeout = time.Second
	}
	client, err := NewClient(c, prompt.NewBuilder(prompt.Options{PairsPerChunk: 2}), opts, nil)
	require.NoError(t, err)
	return client
}

var testChunk = domain.Chunk{DocumentID: "doc", SequenceIndex: 1, Text: "The sky is blue."}

func TestGenerateParsesAndTruncates(t *testing.T) {
	t.Parallel()

	c := &scriptedCompleter{replies: []reply{{
		text: `[{"question":"A?","answer":"1"},{"question":"B?","answer":"2"},{"question":"C?","answer":"3"},{"bad":true}]`,
	}}}
	client := newClient(t, c, Options{})
	stats := &domain.RunStatistics{}

	out, err := client.Generate(context.Background(), "p", testChunk, stats)
	require.NoError(t, err)
	require.Len(t, out.Pairs, 2)
	assert.Equal(t, 1, out.Unparseable)
	assert.Equal(t, "doc#1", out.Pairs[0].ChunkID)
	assert.Equal(t, 1, out.Pairs[1].PairIndex)
	assert.Equal(t, PairID(testChunk, 0), out.Pairs[0].ID)
	assert.NotEqual(t, out.Pairs[0].ID, out.Pairs[1].ID)

	s := stats.Snapshot()
	assert.EqualValues(t, 1, s.GenerationAttempts)
	assert.EqualValues(t, 0, s.GenerationFailures)
	assert.EqualValues(t, 2, s.PairsGenerated)
	assert.EqualValues(t, 1, s.PairsUnparseable)
}

func TestGenerateRepairsOnce(t *testing.T) {
	t.Parallel()

	c := &scriptedCompleter{replies: []reply{
		{text: "Sure, here are questions about the sky."},
		{text: `[{"question":"What color is the sky?","answer":"Blue"}]`},
	}}
	client := newClient(t, c, Options{})
	stats := &domain.RunStatistics{}

	out, err := client.Generate(context.Background(), "p", testChunk, stats)
	require.NoError(t, err)
	assert.True(t, out.Repaired)
	require.Len(t, out.Pairs, 1)
	assert.Contains(t, c.prompts[1], "Sure, here are questions about the sky.")

	s := stats.Snapshot()
	assert.EqualValues(t, 2, s.GenerationAttempts)
	assert.EqualValues(t, 1, s.RepairAttempts)
}

func TestGenerateMalformedAfterRepair(t *testing.T) {
	t.Parallel()

	c := &scriptedCompleter{replies: []reply{{text: "nope"}, {text: "still nope"}, {text: "[]"}}}
	client := newClient(t, c, Options{})
	stats := &domain.RunStatistics{}

	_, err := client.Generate(context.Background(), "p", testChunk, stats)
	var genErr *domain.GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, domain.GenerationMalformedOutput, genErr.Kind)
	assert.False(t, genErr.Retryable())
	assert.Equal(t, 2, c.calls())
	assert.EqualValues(t, 1, stats.Snapshot().RepairAttempts)
}

func TestGenerateClassifiesTimeout(t *testing.T) {
	t.Parallel()

	c := &scriptedCompleter{replies: []reply{{block: true}}}
	client := newClient(t, c, Options{Timeout: 20 * time.Millisecond})
	stats := &domain.RunStatistics{}

	_, err := client.Generate(context.Background(), "p", testChunk, stats)
	var genErr *domain.GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, domain.GenerationTimeout, genErr.Kind)
	assert.True(t, genErr.Retryable())

	s := stats.Snapshot()
	assert.EqualValues(t, 1, s.Timeouts)
	assert.EqualValues(t, 1, s.GenerationFailures)
}

func TestGenerateClassifiesServiceErrors(t *testing.T) {
	t.Parallel()

	c := &scriptedCompleter{replies: []reply{
		{err: errors.New("502 bad gateway")},
		{err: fmt.Errorf("401 unauthorized: %w", domain.ErrPermanent)},
	}}
	client := newClient(t, c, Options{})
	stats := &domain.RunStatistics{}

	_, err := client.Generate(context.Background(), "p", testChunk, stats)
	var genErr *domain.GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, domain.GenerationServiceUnavailable, genErr.Kind)
	assert.True(t, genErr.Retryable())

	_, err = client.Generate(context.Background(), "p", testChunk, stats)
	require.True(t, errors.As(err, &genErr))
	assert.False(t, genErr.Retryable())
	assert.ErrorIs(t, err, domain.ErrPermanent)
}

func TestGenerateReturnsCancellation(t *testing.T) {
	t.Parallel()

	c := &scriptedCompleter{replies: []reply{{block: true}}}
	client := newClient(t, c, Options{Timeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := client.Generate(ctx, "p", testChunk, &domain.RunStatistics{})
	require.ErrorIs(t, err, context.Canceled)
	var genErr *domain.GenerationError
	assert.False(t, errors.As(err, &genErr))
}

func TestGenerateUsesCache(t *testing.T) {
	t.Parallel()

	c := &scriptedCompleter{replies: []reply{{text: `[{"question":"A?","answer":"1"}]`}}}
	client := newClient(t, c, Options{CacheSize: 8})
	stats := &domain.RunStatistics{}

	first, err := client.Generate(context.Background(), "same prompt", testChunk, stats)
	require.NoError(t, err)
	second, err := client.Generate(context.Background(), "same prompt", testChunk, stats)
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Equal(t, first.Pairs, second.Pairs)
	assert.Equal(t, 1, c.calls())
	assert.EqualValues(t, 1, stats.Snapshot().GenerationAttempts)
}

func TestNewClientValidatesTimeout(t *testing.T) {
	t.Parallel()

	_, err := NewClient(&scriptedCompleter{}, prompt.NewBuilder(prompt.Options{}), Options{}, nil)
	var cfgErr *domain.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, domain.ConfigInvalidTimeout, cfgErr.Kind)
}
