// Package quality scores candidate pairs and maps scores to tiers.
package quality

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"QAForge/internal/domain"
	"QAForge/internal/textutil"
)

// Component weights of the heuristic score. They sum to 1.
const (
	weightForm       = 0.35
	weightLength     = 0.20
	weightCopy       = 0.20
	weightRelevance  = 0.15
	weightComplexity = 0.10
)

// Options holds the tunable thresholds.
type Options struct {
	RejectThreshold float64
	HighThreshold   float64
	MinAnswerChars  int
	MaxAnswerChars  int
	JudgeWeight     float64
}

// Scorer is stateless after construction and safe for concurrent use.
type Scorer struct {
	opts Options
}

// New validates thresholds.
func New(opts Options) (*Scorer, error) {
	if opts.RejectThreshold < 0 || opts.RejectThreshold > 1 {
		return nil, &domain.ConfigError{Kind: domain.ConfigInvalidThreshold, Field: "rejectThreshold", Reason: "must be within [0,1]"}
	}
	if opts.HighThreshold < opts.RejectThreshold || opts.HighThreshold > 1 {
		return nil, &domain.ConfigError{Kind: domain.ConfigInvalidThreshold, Field: "highThreshold", Reason: "must be within [rejectThreshold,1]"}
	}
	if opts.MinAnswerChars < 0 || opts.MaxAnswerChars <= opts.MinAnswerChars {
		return nil, &domain.ConfigError{Kind: domain.ConfigInvalidThreshold, Field: "maxAnswerChars", Reason: "must be > minAnswerChars >= 0"}
	}
	if opts.JudgeWeight < 0 || opts.JudgeWeight > 1 {
		return nil, &domain.ConfigError{Kind: domain.ConfigInvalidThreshold, Field: "judgeWeight", Reason: "must be within [0,1]"}
	}
	return &Scorer{opts: opts}, nil
}

// Options returns the thresholds in use.
func (s *Scorer) Options() Options {
	return s.opts
}

var rejectPatterns = []*regexp.Regexp{
	// refusal and placeholder language
	regexp.MustCompile(`(?i)\b(i'?m sorry|i am sorry|i cannot|i can't|i am unable|as an ai|as a language model)\b`),
	regexp.MustCompile(`(?i)\b(not (mentioned|provided|stated|specified|given) in the (text|context|passage|document))\b`),
	regexp.MustCompile(`(?i)\b(lorem ipsum|placeholder text|insert (question|answer) here)\b`),
	regexp.MustCompile(`(?i)^\s*(n/?a|none|null|unknown|\.\.\.|-+|\?+)\s*$`),
	regexp.MustCompile(`\[(insert|your|question|answer)[^\]]*\]`),
}

// garbagePatterns are question shapes that never make useful training data.
var garbagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bwhat does i mean\b`),
	regexp.MustCompile(`\bhow do you execute what\b`),
	regexp.MustCompile(`\bwhat role does a play\b`),
	regexp.MustCompile(`\bwhat aspects of - are\b`),
	regexp.MustCompile(`\bwhat is explained about -`),
	regexp.MustCompile(`\bwhat does that mean\b`),
	regexp.MustCompile(`\bhow does it work\b`),
	regexp.MustCompile(`\bwhat is the purpose of it\b`),
	regexp.MustCompile(`^what is \w+\?$`),
	regexp.MustCompile(`^how does \w+ work\?$`),
}

var interrogatives = map[string]bool{
	"what": true, "who": true, "whom": true, "whose": true, "when": true, "where": true,
	"why": true, "how": true, "which": true, "is": true, "are": true, "was": true,
	"were": true, "do": true, "does": true, "did": true, "can": true, "could": true,
	"should": true, "would": true, "will": true, "has": true, "have": true, "had": true,
	"name": true, "list": true, "describe": true, "explain": true, "define": true,
}

// Score returns a value in [0,1]. Empty fields yield a ScoringError; refusal,
// placeholder and garbage patterns yield 0.
func (s *Scorer) Score(pair domain.QAPair, chunkText string) (float64, error) {
	question := strings.TrimSpace(pair.Question)
	answer := strings.TrimSpace(pair.Answer)
	if question == "" || answer == "" {
		field := "question"
		if question != "" {
			field = "answer"
		}
		return 0, &domain.ScoringError{Kind: domain.ScoringInvalidPair, PairID: pair.ID, Reason: "empty " + field}
	}
	if hardReject(question, answer) {
		return 0, nil
	}

	qTokens := textutil.Tokens(question)
	score := weightForm*formScore(question, qTokens) +
		weightLength*s.lengthScore(answer) +
		weightCopy*copyScore(qTokens, textutil.Tokens(chunkText)) +
		weightRelevance*relevanceScore(qTokens, chunkText) +
		weightComplexity*complexityScore(len(qTokens))

	return clamp(score), nil
}

// Blend mixes a judge opinion into a heuristic score. Hard rejects stay at 0.
func (s *Scorer) Blend(heuristic, judge float64) float64 {
	if heuristic == 0 {
		return 0
	}
	w := s.opts.JudgeWeight
	return clamp((1-w)*heuristic + w*clamp(judge))
}

// Classify maps a score to its tier.
func (s *Scorer) Classify(score float64) domain.Tier {
	switch {
	case score < s.opts.RejectThreshold:
		return domain.TierRejected
	case score >= s.opts.HighThreshold:
		return domain.TierHigh
	default:
		return domain.TierMedium
	}
}

func hardReject(question, answer string) bool {
	for _, re := range rejectPatterns {
		if re.MatchString(question) || re.MatchString(answer) {
			return true
		}
	}
	lower := strings.ToLower(question)
	for _, re := range garbagePatterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

func formScore(question string, tokens []string) float64 {
	var score float64
	if strings.HasSuffix(question, "?") {
		score += 0.5
	}
	if len(tokens) > 0 && interrogatives[tokens[0]] {
		score += 0.3
	}
	if first, _ := utf8.DecodeRuneInString(question); unicode.IsUpper(first) {
		score += 0.2
	}
	return score
}

func (s *Scorer) lengthScore(answer string) float64 {
	n := len([]rune(answer))
	switch {
	case n < s.opts.MinAnswerChars:
		return 0
	case n > s.opts.MaxAnswerChars:
		return 0.2
	case len(strings.Fields(answer)) < 3:
		return 0.7
	default:
		return 1
	}
}

// copyScore penalizes questions lifted verbatim from the chunk: up to half of
// the question trigrams may appear in the chunk, beyond that the score falls
// linearly to 0.
func copyScore(qTokens, chunkTokens []string) float64 {
	qGrams := trigrams(qTokens)
	if len(qGrams) == 0 {
		return 1
	}
	chunkGrams := make(map[string]struct{})
	for _, g := range trigrams(chunkTokens) {
		chunkGrams[g] = struct{}{}
	}
	hits := 0
	for _, g := range qGrams {
		if _, ok := chunkGrams[g]; ok {
			hits++
		}
	}
	ratio := float64(hits) / float64(len(qGrams))
	if ratio <= 0.5 {
		return 1
	}
	return clamp((1 - ratio) / 0.5)
}

func relevanceScore(qTokens []string, chunkText string) float64 {
	content := textutil.ContentWords(qTokens)
	if len(content) == 0 {
		return 0
	}
	chunkSet := make(map[string]struct{})
	for _, tok := range textutil.Tokens(chunkText) {
		chunkSet[tok] = struct{}{}
	}
	hits := 0
	for _, tok := range content {
		if _, ok := chunkSet[tok]; ok {
			hits++
		}
	}
	return math.Min(1, 2*float64(hits)/float64(len(content)))
}

func complexityScore(words int) float64 {
	switch {
	case words >= 4 && words <= 30:
		return 1
	case words >= 2 && words < 4, words > 30 && words <= 60:
		return 0.6
	default:
		return 0.2
	}
}

func trigrams(tokens []string) []string {
	if len(tokens) < 3 {
		return nil
	}
	out := make([]string, 0, len(tokens)-2)
	for i := 0; i+2 < len(tokens); i++ {
		out = append(out, tokens[i]+" "+tokens[i+1]+" "+tokens[i+2])
	}
	return out
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
