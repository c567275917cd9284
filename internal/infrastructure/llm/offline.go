package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"QAForge/internal/ports"
)

// OfflineClient derives pairs from the prompt's source text without calling a
// model. Output depends only on the prompt, which makes it useful for dry runs
// and reproducibility checks.
type OfflineClient struct{}

var _ ports.Completer = (*OfflineClient)(nil)

// NewOfflineClient returns the deterministic completer.
func NewOfflineClient() *OfflineClient {
	return &OfflineClient{}
}

func (o *OfflineClient) Name() string { return "offline" }

var (
	pairCountRe  = regexp.MustCompile(`(?:Generate|at most) (\d+)`)
	sentenceRe   = regexp.MustCompile(`[^.!?]+[.!?]`)
	copulaRe     = regexp.MustCompile(`^(.+?)\s+(is|are|was|were)\s+(.+?)[.!?]$`)
	textMarkerRe = regexp.MustCompile(`(?s)Text:\n<<<\n(.*)\n>>>`)
)

type offlinePair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Complete turns up to N sentences of the source text into pairs.
func (o *OfflineClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	want := 3
	if m := pairCountRe.FindStringSubmatch(prompt); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			want = n
		}
	}

	text := prompt
	if m := textMarkerRe.FindAllStringSubmatch(prompt, -1); len(m) > 0 {
		text = m[len(m)-1][1]
	}

	pairs := make([]offlinePair, 0, want)
	for _, s := range sentenceRe.FindAllString(text, -1) {
		if len(pairs) == want {
			break
		}
		if p, ok := pairFromSentence(strings.TrimSpace(s)); ok {
			pairs = append(pairs, p)
		}
	}

	out, err := json.Marshal(pairs)
	if err != nil {
		return "", fmt.Errorf("marshal offline pairs: %w", err)
	}
	return string(out), nil
}

func pairFromSentence(s string) (offlinePair, bool) {
	if len(strings.Fields(s)) < 3 {
		return offlinePair{}, false
	}
	if m := copulaRe.FindStringSubmatch(s); m != nil {
		return offlinePair{
			Question: fmt.Sprintf("What %s %s?", m[2], lowerFirst(m[1])),
			Answer:   upperFirst(m[3]),
		}, true
	}
	words := strings.Fields(s)
	topic := strings.Join(words[:min(3, len(words))], " ")
	return offlinePair{
		Question: fmt.Sprintf("What does the text state about %s?", strings.TrimRight(lowerFirst(topic), ",;:")),
		Answer:   s,
	}, true
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	// Keep acronyms and proper nouns that are fully upper-case.
	if next, _ := utf8.DecodeRuneInString(s[size:]); unicode.IsUpper(next) {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
