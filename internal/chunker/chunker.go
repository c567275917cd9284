// Package chunker splits normalized document text into prompt-sized windows.
package chunker

import (
	"iter"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"QAForge/internal/domain"
)

// CharsPerToken approximates the token budget from byte length.
const CharsPerToken = 4

// ApproxTokens estimates the token count of s.
func ApproxTokens(s string) int {
	return (len(s) + CharsPerToken - 1) / CharsPerToken
}

// Chunker cuts text at paragraph, sentence or word boundaries and falls back to
// hard cuts when no boundary lies in the back half of the window.
type Chunker struct {
	maxChars     int
	overlapChars int
}

// New validates the token budget and overlap.
func New(maxTokens, overlapTokens int) (*Chunker, error) {
	if maxTokens <= 0 {
		return nil, &domain.ConfigError{
			Kind:   domain.ConfigInvalidChunking,
			Field:  "maxTokensPerChunk",
			Reason: "must be > 0",
		}
	}
	if overlapTokens < 0 || overlapTokens >= maxTokens {
		return nil, &domain.ConfigError{
			Kind:   domain.ConfigInvalidChunking,
			Field:  "chunkOverlap",
			Reason: "must be >= 0 and < maxTokensPerChunk",
		}
	}
	return &Chunker{
		maxChars:     maxTokens * CharsPerToken,
		overlapChars: overlapTokens * CharsPerToken,
	}, nil
}

// MaxChars is the largest chunk length in bytes.
func (c *Chunker) MaxChars() int {
	return c.maxChars
}

// Chunks returns the lazy chunk sequence of doc.
func (c *Chunker) Chunks(doc domain.SourceDocument) *Sequence {
	return &Sequence{chunker: c, doc: doc}
}

// Sequence is a finite, deterministic chunk stream. It can be restarted from
// any index, which makes resuming after a failure safe.
type Sequence struct {
	chunker *Chunker
	doc     domain.SourceDocument
}

// All yields every chunk in order.
func (s *Sequence) All() iter.Seq[domain.Chunk] {
	return s.From(0)
}

// Collect materializes the whole sequence.
func (s *Sequence) Collect() []domain.Chunk {
	return slices.Collect(s.All())
}

// From yields chunks whose sequence index is >= index.
func (s *Sequence) From(index int) iter.Seq[domain.Chunk] {
	return func(yield func(domain.Chunk) bool) {
		text := s.doc.RawText
		if strings.TrimSpace(text) == "" {
			return
		}

		start, seq := 0, 0
		for start < len(text) {
			end := s.chunker.cut(text, start)
			if seq >= index {
				chunk := domain.Chunk{
					DocumentID:    s.doc.ID,
					SequenceIndex: seq,
					Text:          text[start:end],
					Range:         domain.Range{Start: start, End: end},
				}
				if !yield(chunk) {
					return
				}
			}
			if end >= len(text) {
				return
			}
			seq++
			start = s.chunker.advance(text, start, end)
		}
	}
}

func (c *Chunker) cut(text string, start int) int {
	limit := start + c.maxChars
	if limit >= len(text) {
		return len(text)
	}
	for limit > start && !utf8.RuneStart(text[limit]) {
		limit--
	}
	if limit == start {
		_, size := utf8.DecodeRuneInString(text[start:])
		return start + size
	}

	window := text[start:limit]
	minEnd := len(window) / 2

	if i := strings.LastIndex(window, "\n\n"); i >= minEnd && i > 0 {
		return start + i + 2
	}
	if i := lastSentenceEnd(window); i >= minEnd && i > 0 {
		return start + i
	}
	if i := strings.LastIndexFunc(window, unicode.IsSpace); i >= minEnd && i > 0 {
		_, size := utf8.DecodeRuneInString(window[i:])
		return start + i + size
	}
	return limit
}

// advance picks the next start inside the overlap region, snapped to a rune
// and, when possible, a word start. It never moves past end, so no gaps occur.
func (c *Chunker) advance(text string, start, end int) int {
	next := end - c.overlapChars
	if next <= start {
		return end
	}
	for next < end && !utf8.RuneStart(text[next]) {
		next++
	}
	if next < end && next > 0 && !isSpaceBefore(text, next) {
		if j := strings.IndexFunc(text[next:end], unicode.IsSpace); j >= 0 {
			_, size := utf8.DecodeRuneInString(text[next+j:])
			if next+j+size < end {
				next += j + size
			}
		}
	}
	return next
}

func isSpaceBefore(text string, i int) bool {
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return unicode.IsSpace(r)
}

// lastSentenceEnd returns the index just past the last ". ", "! " or "? " in s.
func lastSentenceEnd(s string) int {
	for i := len(s) - 2; i >= 0; i-- {
		switch s[i] {
		case '.', '!', '?':
			if s[i+1] == ' ' || s[i+1] == '\n' || s[i+1] == '\t' {
				return i + 2
			}
		}
	}
	return -1
}
