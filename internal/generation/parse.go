package generation

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ItemKind tags a parsed candidate.
type ItemKind int

const (
	// Parsed items carry a question and an answer.
	Parsed ItemKind = iota
	// Unparseable items are dropped and counted.
	Unparseable
)

// Item is one candidate extracted from a model reply.
type Item struct {
	Kind     ItemKind
	Question string
	Answer   string
	Raw      string
}

var (
	fenceRe    = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\n?(.*?)```")
	// A bare "Q" needs ":" or ")" unless numbered, so "Q-learning" or "Q." in
	// an answer does not start a new question.
	questionRe = regexp.MustCompile(`(?i)^\s*(?:[-*]\s*)?(?:\d+[.)]\s*)?(?:q\s*[:)]|q\s*\d+\s*[:.)-]|question\s*\d*\s*[:.)-])\s*(.*)$`)
	answerRe   = regexp.MustCompile(`(?i)^\s*(?:[-*]\s*)?(?:a|answer)\s*\d*\s*[:.)-]\s*(.*)$`)
)

// containerKeys are the object fields that may wrap the pair list.
var containerKeys = []string{"pairs", "qa_pairs", "questions", "items", "data"}

// Parse extracts candidates from free-form model output. It returns nil when
// nothing resembling a pair list was found, which callers treat as malformed.
func Parse(raw string) []Item {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil
	}
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	if items, ok := parseJSON(text); ok {
		return items
	}
	return parseLines(text)
}

// CountParsed returns the number of usable items.
func CountParsed(items []Item) int {
	n := 0
	for _, it := range items {
		if it.Kind == Parsed {
			n++
		}
	}
	return n
}

func parseJSON(text string) ([]Item, bool) {
	if start, end := strings.Index(text, "["), strings.LastIndex(text, "]"); start >= 0 && end > start {
		if items, ok := parseArray([]byte(text[start : end+1])); ok {
			return items, true
		}
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
			return nil, false
		}
		for _, key := range containerKeys {
			if list, found := obj[key]; found {
				return parseArray(list)
			}
		}
		if it, ok := itemFromObject(obj); ok {
			it.Raw = text[start : end+1]
			return []Item{it}, true
		}
	}
	return nil, false
}

func parseArray(data []byte) ([]Item, bool) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, false
	}
	items := make([]Item, 0, len(elems))
	for _, elem := range elems {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(elem, &obj); err != nil {
			items = append(items, Item{Kind: Unparseable, Raw: string(elem)})
			continue
		}
		it, ok := itemFromObject(obj)
		if !ok {
			items = append(items, Item{Kind: Unparseable, Raw: string(elem)})
			continue
		}
		it.Raw = string(elem)
		items = append(items, it)
	}
	return items, true
}

func itemFromObject(obj map[string]json.RawMessage) (Item, bool) {
	q, okQ := stringField(obj, "question", "q", "instruction")
	a, okA := stringField(obj, "answer", "a", "output")
	if !okQ || !okA {
		return Item{}, false
	}
	return Item{Kind: Parsed, Question: strings.TrimSpace(q), Answer: strings.TrimSpace(a)}, true
}

func stringField(obj map[string]json.RawMessage, keys ...string) (string, bool) {
	for _, key := range keys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	}
	return "", false
}

// parseLines reads "Q: ... / A: ..." transcripts. Answers may span lines.
func parseLines(text string) []Item {
	var (
		items   []Item
		current *Item
		lines   []string
		inAns   bool
	)
	flush := func() {
		if current == nil {
			return
		}
		current.Answer = strings.TrimSpace(current.Answer)
		current.Raw = strings.Join(lines, "\n")
		if !inAns {
			current.Kind = Unparseable
		}
		items = append(items, *current)
		current, lines, inAns = nil, nil, false
	}

	for _, line := range strings.Split(text, "\n") {
		if m := questionRe.FindStringSubmatch(line); m != nil {
			flush()
			current = &Item{Kind: Parsed, Question: strings.TrimSpace(m[1])}
			lines = append(lines, line)
			continue
		}
		if current == nil {
			continue
		}
		lines = append(lines, line)
		if m := answerRe.FindStringSubmatch(line); m != nil && !inAns {
			current.Answer = m[1]
			inAns = true
			continue
		}
		if inAns {
			current.Answer += "\n" + line
		} else if s := strings.TrimSpace(line); s != "" {
			current.Question += " " + s
		}
	}
	flush()
	return items
}
