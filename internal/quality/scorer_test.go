package quality

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QAForge/internal/domain"
)

const skyChunk = "The sky is blue. Water boils at 100°C."

func newScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := New(Options{RejectThreshold: 0.6, HighThreshold: 0.8, MinAnswerChars: 2, MaxAnswerChars: 4000, JudgeWeight: 0.5})
	require.NoError(t, err)
	return s
}

func pair(q, a string) domain.QAPair {
	return domain.QAPair{ID: "p", Question: q, Answer: a}
}

func TestScoreWellFormedPairIsHigh(t *testing.T) {
	t.Parallel()

	s := newScorer(t)
	score, err := s.Score(pair("What color is the sky?", "Blue"), skyChunk)
	require.NoError(t, err)
	assert.InDelta(t, 0.94, score, 1e-9)
	assert.Equal(t, domain.TierHigh, s.Classify(score))
}

func TestScoreHardRejects(t *testing.T) {
	t.Parallel()

	s := newScorer(t)
	tests := []struct {
		name string
		pair domain.QAPair
	}{
		{"refusal answer", pair("What color is the sky?", "I'm sorry, but I cannot answer that.")},
		{"not in text", pair("Who painted the sky?", "This is not mentioned in the text.")},
		{"placeholder", pair("[insert question here]", "Blue")},
		{"n/a answer", pair("What color is the sky?", "N/A")},
		{"garbage vague", pair("How does it work?", "It works well.")},
		{"garbage one word", pair("What is water?", "A liquid compound.")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			score, err := s.Score(tt.pair, skyChunk)
			require.NoError(t, err)
			assert.Zero(t, score)
			assert.Equal(t, domain.TierRejected, s.Classify(score))
		})
	}
}

func TestScoreInvalidPair(t *testing.T) {
	t.Parallel()

	s := newScorer(t)
	_, err := s.Score(pair("What color is the sky?", "   "), skyChunk)

	var scoreErr *domain.ScoringError
	require.True(t, errors.As(err, &scoreErr))
	assert.Equal(t, domain.ScoringInvalidPair, scoreErr.Kind)
	assert.Equal(t, "empty answer", scoreErr.Reason)

	_, err = s.Score(pair("", "Blue"), skyChunk)
	require.True(t, errors.As(err, &scoreErr))
	assert.Equal(t, "empty question", scoreErr.Reason)
}

func TestScorePenalizesVerbatimCopy(t *testing.T) {
	t.Parallel()

	s := newScorer(t)
	chunk := "The quick brown fox jumps over the lazy dog near the river bank."

	copied, err := s.Score(pair("The quick brown fox jumps over the lazy dog?", "It is about a fox."), chunk)
	require.NoError(t, err)
	rephrased, err := s.Score(pair("Which animal jumps over the lazy dog?", "A quick brown fox."), chunk)
	require.NoError(t, err)

	assert.InDelta(t, 0.695, copied, 1e-9)
	assert.Greater(t, rephrased, copied)
}

func TestScoreAnswerLengthBounds(t *testing.T) {
	t.Parallel()

	s, err := New(Options{RejectThreshold: 0.1, HighThreshold: 0.9, MinAnswerChars: 5, MaxAnswerChars: 50})
	require.NoError(t, err)

	short, err := s.Score(pair("What color is the sky?", "Blue"), skyChunk)
	require.NoError(t, err)
	long, err := s.Score(pair("What color is the sky?", strings.Repeat("blue ", 20)), skyChunk)
	require.NoError(t, err)
	ok, err := s.Score(pair("What color is the sky?", "It is blue today."), skyChunk)
	require.NoError(t, err)

	assert.Less(t, short, long)
	assert.Less(t, long, ok)
}

func TestScoreRangeAndTierConsistency(t *testing.T) {
	t.Parallel()

	s := newScorer(t)
	pairs := []domain.QAPair{
		pair("What color is the sky?", "Blue"),
		pair("sky", "blue"),
		pair("At what temperature does water boil at sea level?", "Water boils at 100°C."),
		pair("Tell me", strings.Repeat("x", 5000)),
		pair("Why?", "Because the text says so and nothing else applies here."),
		pair("Is the sky blue", "Yes"),
	}
	for _, p := range pairs {
		score, err := s.Score(p, skyChunk)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)

		tier := s.Classify(score)
		switch {
		case score < 0.6:
			assert.Equal(t, domain.TierRejected, tier)
		case score >= 0.8:
			assert.Equal(t, domain.TierHigh, tier)
		default:
			assert.Equal(t, domain.TierMedium, tier)
		}
	}
}

func TestClassifyBoundaries(t *testing.T) {
	t.Parallel()

	s := newScorer(t)
	assert.Equal(t, domain.TierRejected, s.Classify(0.5999))
	assert.Equal(t, domain.TierMedium, s.Classify(0.6))
	assert.Equal(t, domain.TierMedium, s.Classify(0.7999))
	assert.Equal(t, domain.TierHigh, s.Classify(0.8))
}

func TestBlend(t *testing.T) {
	t.Parallel()

	s := newScorer(t)
	assert.InDelta(t, 0.6, s.Blend(0.8, 0.4), 1e-9)
	assert.Zero(t, s.Blend(0, 1))
	assert.InDelta(t, 0.9, s.Blend(0.8, 7), 1e-9)
}

func TestNewRejectsBadThresholds(t *testing.T) {
	t.Parallel()

	_, err := New(Options{RejectThreshold: 0.9, HighThreshold: 0.5, MinAnswerChars: 1, MaxAnswerChars: 10})
	var cfgErr *domain.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, domain.ConfigInvalidThreshold, cfgErr.Kind)

	_, err = New(Options{RejectThreshold: 0.5, HighThreshold: 0.8, MinAnswerChars: 10, MaxAnswerChars: 10})
	require.Error(t, err)
}
