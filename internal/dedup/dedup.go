// Package dedup removes near-duplicate questions from one run's pairs.
package dedup

import (
	"slices"

	"QAForge/internal/domain"
	"QAForge/internal/textutil"
)

// maxBucketScan bounds the candidates examined per LSH bucket. Buckets only
// hold kept pairs, so the bound is deterministic and keeps Dedupe idempotent.
const maxBucketScan = 256

// Options tunes duplicate detection.
type Options struct {
	SimilarityThreshold float64
	PairwiseCutoff      int
}

// Deduplicator is safe for concurrent use; Dedupe keeps no state between calls.
type Deduplicator struct {
	threshold float64
	cutoff    int
}

// New validates the similarity threshold.
func New(opts Options) (*Deduplicator, error) {
	if opts.SimilarityThreshold <= 0 || opts.SimilarityThreshold > 1 {
		return nil, &domain.ConfigError{Kind: domain.ConfigInvalidThreshold, Field: "similarityThreshold", Reason: "must be within (0,1]"}
	}
	if opts.PairwiseCutoff < 0 {
		return nil, &domain.ConfigError{Kind: domain.ConfigInvalidThreshold, Field: "pairwiseCutoff", Reason: "must be >= 0"}
	}
	return &Deduplicator{threshold: opts.SimilarityThreshold, cutoff: opts.PairwiseCutoff}, nil
}

// Key is the normalized question used for exact matching and persistence.
func Key(question string) string {
	return textutil.Normalize(question)
}

// Result lists the surviving pairs in input order.
type Result struct {
	Kept    []domain.QAPair
	Removed int
}

type entry struct {
	key    string
	tokens map[string]struct{}
}

// Dedupe keeps, for every group of duplicates, the pair with the highest
// score. Ties go to the lowest chunk sequence index, then to the earlier pair
// in input order.
func (d *Deduplicator) Dedupe(pairs []domain.QAPair) Result {
	n := len(pairs)
	if n == 0 {
		return Result{}
	}

	entries := make([]entry, n)
	for i, p := range pairs {
		toks := textutil.Tokens(p.Question)
		set := make(map[string]struct{}, len(toks))
		for _, t := range toks {
			set[t] = struct{}{}
		}
		entries[i] = entry{key: Key(p.Question), tokens: set}
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		pa, pb := pairs[a], pairs[b]
		switch {
		case pa.QualityScore > pb.QualityScore:
			return -1
		case pa.QualityScore < pb.QualityScore:
			return 1
		case pa.SequenceIndex != pb.SequenceIndex:
			return pa.SequenceIndex - pb.SequenceIndex
		default:
			return a - b
		}
	})

	var index candidateIndex
	if n > d.cutoff {
		index = newLSHIndex()
	} else {
		index = &linearIndex{}
	}

	keep := make([]bool, n)
	exact := make(map[string]struct{}, n)
	for _, i := range order {
		e := entries[i]
		if _, dup := exact[e.key]; dup {
			continue
		}
		if d.similarToKept(e, entries, index.candidates(e)) {
			continue
		}
		keep[i] = true
		exact[e.key] = struct{}{}
		index.add(i, e)
	}

	res := Result{Kept: make([]domain.QAPair, 0, n)}
	for i, p := range pairs {
		if keep[i] {
			res.Kept = append(res.Kept, p)
		}
	}
	res.Removed = n - len(res.Kept)
	return res
}

func (d *Deduplicator) similarToKept(e entry, entries []entry, candidates []int) bool {
	for _, j := range candidates {
		if Jaccard(e.tokens, entries[j].tokens) >= d.threshold {
			return true
		}
	}
	return false
}

// Jaccard is the token-set similarity |a∩b| / |a∪b|.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

type candidateIndex interface {
	candidates(e entry) []int
	add(i int, e entry)
}

// linearIndex compares against every kept pair.
type linearIndex struct {
	kept []int
}

func (l *linearIndex) candidates(entry) []int { return l.kept }

func (l *linearIndex) add(i int, _ entry) { l.kept = append(l.kept, i) }
