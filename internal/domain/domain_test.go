package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunTransitions(t *testing.T) {
	t.Parallel()

	path := []RunState{StateIdle, StateIngesting, StateChunking, StateGenerating, StateScoring, StateDeduping, StateWriting, StateDone}
	for i := 0; i+1 < len(path); i++ {
		require.NoError(t, ValidateTransition(path[i], path[i+1]), "%s -> %s", path[i], path[i+1])
		require.NoError(t, ValidateTransition(path[i], StateFailed), "%s -> FAILED", path[i])
	}

	assert.Error(t, ValidateTransition(StateIdle, StateChunking))
	assert.Error(t, ValidateTransition(StateScoring, StateGenerating))
	assert.Error(t, ValidateTransition(StateDone, StateFailed))
	assert.Error(t, ValidateTransition(StateFailed, StateIngesting))
	assert.True(t, StateDone.Terminal())
	assert.False(t, StateWriting.Terminal())
}

func TestGenerationErrorRetryable(t *testing.T) {
	t.Parallel()

	assert.True(t, (&GenerationError{Kind: GenerationTimeout}).Retryable())
	assert.True(t, (&GenerationError{Kind: GenerationServiceUnavailable, Err: errors.New("503")}).Retryable())
	assert.False(t, (&GenerationError{Kind: GenerationServiceUnavailable, Err: fmt.Errorf("401: %w", ErrPermanent)}).Retryable())
	assert.False(t, (&GenerationError{Kind: GenerationMalformedOutput}).Retryable())
}

func TestErrorsUnwrap(t *testing.T) {
	t.Parallel()

	ioErr := fmt.Errorf("write dataset: %w", &IOError{Kind: IOWriteFailure, Path: "x", Err: context.Canceled})
	var target *IOError
	require.True(t, errors.As(ioErr, &target))
	assert.Equal(t, IOWriteFailure, target.Kind)
	assert.ErrorIs(t, ioErr, context.Canceled)

	genErr := &GenerationError{Kind: GenerationTimeout, Err: context.DeadlineExceeded}
	assert.ErrorIs(t, genErr, context.DeadlineExceeded)
	assert.Contains(t, genErr.Error(), "TIMEOUT")
}

func TestStatsSnapshotAndRetention(t *testing.T) {
	t.Parallel()

	var s RunStatistics
	s.PairsGenerated.Add(8)
	s.PairsWritten.Add(6)
	snap := s.Snapshot()
	assert.EqualValues(t, 8, snap.PairsGenerated)
	assert.InDelta(t, 0.75, snap.RetentionRate(), 1e-9)
	assert.Zero(t, Stats{}.RetentionRate())

	var nilStats *RunStatistics
	assert.Equal(t, Stats{}, nilStats.Snapshot())
}

func TestSourceIDAndChunkID(t *testing.T) {
	t.Parallel()

	doc := SourceDocument{ID: "doc-1"}
	assert.Equal(t, "doc-1", doc.SourceID())
	doc.Origin.SourceID = "web_1a2b3c4d"
	assert.Equal(t, "web_1a2b3c4d", doc.SourceID())

	assert.Equal(t, "doc-1#2", Chunk{DocumentID: "doc-1", SequenceIndex: 2}.ID())
	assert.Equal(t, 5, Range{Start: 3, End: 8}.Len())
}
