package dedup

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QAForge/internal/domain"
)

func newDedup(t *testing.T, threshold float64, cutoff int) *Deduplicator {
	t.Helper()
	d, err := New(Options{SimilarityThreshold: threshold, PairwiseCutoff: cutoff})
	require.NoError(t, err)
	return d
}

func qa(id, question string, score float64, seq int) domain.QAPair {
	return domain.QAPair{ID: id, Question: question, Answer: "a", QualityScore: score, SequenceIndex: seq}
}

func ids(pairs []domain.QAPair) []string {
	out := make([]string, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, p.ID)
	}
	return out
}

func TestDedupeIdenticalPairsKeepsOne(t *testing.T) {
	t.Parallel()

	d := newDedup(t, 0.85, 2000)
	res := d.Dedupe([]domain.QAPair{
		qa("first", "What color is the sky?", 0.94, 0),
		qa("second", "What color is the sky?", 0.94, 1),
	})

	assert.Equal(t, []string{"first"}, ids(res.Kept))
	assert.Equal(t, 1, res.Removed)
}

func TestDedupePrefersHigherScore(t *testing.T) {
	t.Parallel()

	d := newDedup(t, 0.85, 2000)
	res := d.Dedupe([]domain.QAPair{
		qa("low", "what color is the SKY", 0.7, 0),
		qa("other", "At what temperature does water boil?", 0.9, 0),
		qa("high", "What color is the sky?", 0.95, 3),
	})

	assert.Equal(t, []string{"other", "high"}, ids(res.Kept))
}

func TestDedupeTieGoesToLowestSequenceIndex(t *testing.T) {
	t.Parallel()

	d := newDedup(t, 0.85, 2000)
	late := qa("late", "What color is the sky?", 0.8, 3)
	late.DocumentID = "a"
	early := qa("early", "What color is the sky?", 0.8, 1)
	early.DocumentID = "b"

	res := d.Dedupe([]domain.QAPair{late, early})
	assert.Equal(t, []string{"early"}, ids(res.Kept))

	approx := newDedup(t, 0.85, 0).Dedupe([]domain.QAPair{late, early})
	assert.Equal(t, []string{"early"}, ids(approx.Kept))
}

func TestDedupeNearDuplicatesByJaccard(t *testing.T) {
	t.Parallel()

	pairs := []domain.QAPair{
		qa("a", "What color is the sky?", 0.9, 0),
		qa("b", "What color is the sky today?", 0.9, 1),
		qa("c", "Why is the sky blue during the day?", 0.9, 2),
	}

	loose := newDedup(t, 0.8, 2000).Dedupe(pairs)
	assert.Equal(t, []string{"a", "c"}, ids(loose.Kept))

	strict := newDedup(t, 0.85, 2000).Dedupe(pairs)
	assert.Equal(t, []string{"a", "b", "c"}, ids(strict.Kept))
}

func TestDedupeIsIdempotent(t *testing.T) {
	t.Parallel()

	d := newDedup(t, 0.6, 2000)
	pairs := []domain.QAPair{
		qa("1", "What is the boiling point of water?", 0.8, 0),
		qa("2", "What is the boiling point of pure water?", 0.9, 0),
		qa("3", "What is the freezing point of water?", 0.7, 1),
		qa("4", "Who discovered penicillin?", 0.85, 1),
		qa("5", "who discovered penicillin", 0.85, 2),
		qa("6", "Where is the boiling point of water defined?", 0.75, 2),
	}

	once := d.Dedupe(pairs)
	twice := d.Dedupe(once.Kept)
	assert.Equal(t, once.Kept, twice.Kept)
	assert.Zero(t, twice.Removed)
}

func TestDedupeEmpty(t *testing.T) {
	t.Parallel()

	res := newDedup(t, 0.85, 10).Dedupe(nil)
	assert.Empty(t, res.Kept)
	assert.Zero(t, res.Removed)
}

func lshFixture() []domain.QAPair {
	var pairs []domain.QAPair
	for i := 0; i < 300; i++ {
		q := fmt.Sprintf("Which value does item%d have in table%d column%d?", i, i*7, i*13)
		pairs = append(pairs, qa(fmt.Sprintf("orig-%d", i), q, 0.8, i))
	}
	for i := 0; i < 300; i += 2 {
		q := fmt.Sprintf("WHICH value does ITEM%d have in table%d, column%d", i, i*7, i*13)
		pairs = append(pairs, qa(fmt.Sprintf("case-%d", i), q, 0.8, 300+i))
	}
	for i := 1; i < 300; i += 2 {
		q := fmt.Sprintf("item%d: which value in column%d, table%d, does have?", i, i*13, i*7)
		pairs = append(pairs, qa(fmt.Sprintf("shuffled-%d", i), q, 0.7, 600+i))
	}
	return pairs
}

func TestDedupeMinHashPathAboveCutoff(t *testing.T) {
	t.Parallel()

	pairs := lshFixture()
	approx := newDedup(t, 0.85, 100).Dedupe(pairs)
	exact := newDedup(t, 0.85, 10_000).Dedupe(pairs)

	require.Len(t, exact.Kept, 300)
	assert.Equal(t, ids(exact.Kept), ids(approx.Kept))
	for _, p := range approx.Kept {
		assert.True(t, strings.HasPrefix(p.ID, "orig-"), p.ID)
	}

	again := newDedup(t, 0.85, 100).Dedupe(approx.Kept)
	assert.Zero(t, again.Removed)
}

func TestJaccard(t *testing.T) {
	t.Parallel()

	set := func(words ...string) map[string]struct{} {
		m := make(map[string]struct{})
		for _, w := range words {
			m[w] = struct{}{}
		}
		return m
	}
	assert.InDelta(t, 1.0, Jaccard(set("a", "b"), set("b", "a")), 1e-9)
	assert.InDelta(t, 1.0/3.0, Jaccard(set("a", "b"), set("b", "c")), 1e-9)
	assert.Zero(t, Jaccard(set(), set("a")))
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(Options{SimilarityThreshold: 0})
	require.Error(t, err)
	_, err = New(Options{SimilarityThreshold: 1.2})
	require.Error(t, err)
	_, err = New(Options{SimilarityThreshold: 0.5, PairwiseCutoff: -1})
	require.Error(t, err)
}
