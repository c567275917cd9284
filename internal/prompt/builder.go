// Package prompt renders generation and repair prompts for a chunk.
package prompt

import (
	"fmt"
	"strings"

	"QAForge/internal/domain"
)

// Schema is the output shape every prompt asks for.
const Schema = `[{"question": "...", "answer": "..."}]`

const defaultStyle = "Ask about facts stated in the text. Each question must be answerable from the text alone, " +
	"end with a question mark and not copy sentences verbatim. Answers are concise and complete."

// Options configures the builder.
type Options struct {
	PairsPerChunk int
	SystemPrompt  string
	Style         string
}

// Builder is a pure function of chunk text and options.
type Builder struct {
	opts Options
}

// NewBuilder fills unset options with defaults.
func NewBuilder(opts Options) *Builder {
	if opts.PairsPerChunk <= 0 {
		opts.PairsPerChunk = 3
	}
	if strings.TrimSpace(opts.Style) == "" {
		opts.Style = defaultStyle
	}
	return &Builder{opts: opts}
}

// PairsPerChunk is the number of pairs requested per prompt.
func (b *Builder) PairsPerChunk() int {
	return b.opts.PairsPerChunk
}

// Build returns the generation prompt for chunk.
func (b *Builder) Build(chunk domain.Chunk) string {
	var sb strings.Builder
	b.preamble(&sb)
	fmt.Fprintf(&sb, "Generate %d question-answer %s from the text below.\n", b.opts.PairsPerChunk, plural(b.opts.PairsPerChunk))
	sb.WriteString(b.opts.Style)
	sb.WriteString("\n\n")
	writeSchema(&sb)
	writeText(&sb, chunk.Text)
	return sb.String()
}

// BuildRepair asks the model to restate a previous unparseable answer in the
// required schema.
func (b *Builder) BuildRepair(chunk domain.Chunk, rawOutput string) string {
	var sb strings.Builder
	b.preamble(&sb)
	sb.WriteString("Your previous reply could not be parsed. Rewrite it as valid JSON.\n")
	fmt.Fprintf(&sb, "Keep at most %d pairs and do not add commentary.\n\n", b.opts.PairsPerChunk)
	writeSchema(&sb)
	sb.WriteString("Previous reply:\n<<<\n")
	sb.WriteString(strings.TrimSpace(rawOutput))
	sb.WriteString("\n>>>\n\n")
	writeText(&sb, chunk.Text)
	return sb.String()
}

func (b *Builder) preamble(sb *strings.Builder) {
	if p := strings.TrimSpace(b.opts.SystemPrompt); p != "" {
		sb.WriteString(p)
		sb.WriteString("\n\n")
	}
}

func writeSchema(sb *strings.Builder) {
	sb.WriteString("Respond with a JSON array only, using this schema:\n")
	sb.WriteString(Schema)
	sb.WriteString("\n\n")
}

func writeText(sb *strings.Builder, text string) {
	sb.WriteString("Text:\n<<<\n")
	sb.WriteString(strings.TrimSpace(text))
	sb.WriteString("\n>>>\n")
}

func plural(n int) string {
	if n == 1 {
		return "pair"
	}
	return "pairs"
}
