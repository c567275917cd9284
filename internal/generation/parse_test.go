package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		raw         string
		parsed      int
		unparseable int
		firstQ      string
	}{
		{
			name:   "json array",
			raw:    `[{"question": "What color is the sky?", "answer": "Blue"}]`,
			parsed: 1, firstQ: "What color is the sky?",
		},
		{
			name:   "array with prose around it",
			raw:    "Here you go:\n[{\"question\": \"Q1?\", \"answer\": \"A1\"}, {\"question\": \"Q2?\", \"answer\": \"A2\"}]\nHope this helps.",
			parsed: 2, firstQ: "Q1?",
		},
		{
			name:   "fenced block",
			raw:    "```json\n[{\"question\": \"At what temperature does water boil?\", \"answer\": \"100°C\"}]\n```",
			parsed: 1, firstQ: "At what temperature does water boil?",
		},
		{
			name:   "wrapped object",
			raw:    `{"qa_pairs": [{"question": "Why?", "answer": "Because."}]}`,
			parsed: 1, firstQ: "Why?",
		},
		{
			name:   "single object",
			raw:    `{"question": "Who?", "answer": "Them."}`,
			parsed: 1, firstQ: "Who?",
		},
		{
			name:        "mixed good and bad elements",
			raw:         `[{"question": "Ok?", "answer": "Yes"}, {"q": 3}, "nonsense", {"foo": "bar"}]`,
			parsed:      1,
			unparseable: 3,
			firstQ:      "Ok?",
		},
		{
			name:   "alternate keys",
			raw:    `[{"instruction": "Define entropy?", "output": "Disorder measure"}]`,
			parsed: 1, firstQ: "Define entropy?",
		},
		{
			name:   "q and a lines",
			raw:    "1. Q: What is Go?\nA: A programming language\nthat compiles fast.\n\n2. Q: Who made it?\nA: Google.",
			parsed: 2, firstQ: "What is Go?",
		},
		{
			name:        "question without answer",
			raw:         "Q: Dangling?\nQ: Complete?\nA: Yes.",
			parsed:      1,
			unparseable: 1,
			firstQ:      "Dangling?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			items := Parse(tt.raw)
			require.NotEmpty(t, items)
			assert.Equal(t, tt.parsed, CountParsed(items))
			assert.Equal(t, tt.unparseable, len(items)-CountParsed(items))
			assert.Equal(t, tt.firstQ, items[0].Question)
		})
	}
}

func TestParseMultilineAnswer(t *testing.T) {
	t.Parallel()

	items := Parse("Q: What is Go?\nA: A programming language\nthat compiles fast.")
	require.Len(t, items, 1)
	assert.Equal(t, "A programming language\nthat compiles fast.", items[0].Answer)
}

func TestParseAnswerLinesStartingWithQ(t *testing.T) {
	t.Parallel()

	items := Parse("Q: What is Q-learning?\nA: A reinforcement learning method.\nQ-learning estimates action values.\nQ. values live in a table.\nQ2. Who introduced it?\nA: Watkins.")
	require.Len(t, items, 2)
	assert.Equal(t, 2, CountParsed(items))
	assert.Equal(t, "What is Q-learning?", items[0].Question)
	assert.Equal(t, "A reinforcement learning method.\nQ-learning estimates action values.\nQ. values live in a table.", items[0].Answer)
	assert.Equal(t, "Who introduced it?", items[1].Question)
	assert.Equal(t, "Watkins.", items[1].Answer)
}

func TestParseRejectsProse(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Parse(""))
	assert.Nil(t, Parse("Sure! I would be happy to help with that."))
	assert.Zero(t, CountParsed(Parse("[]")))
}
