package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"QAForge/internal/domain"
	"QAForge/internal/source"
)

// TextSource treats the resource itself as the document text.
type TextSource struct{}

var _ source.Source = (*TextSource)(nil)

// NewTextSource returns the literal-text strategy.
func NewTextSource() *TextSource {
	return &TextSource{}
}

func (t *TextSource) Name() string {
	return string(domain.OriginText)
}

func (t *TextSource) Load(ctx context.Context, resource string) (domain.SourceDocument, error) {
	if err := ctx.Err(); err != nil {
		return domain.SourceDocument{}, err
	}
	return domain.SourceDocument{
		RawText: strings.TrimSpace(resource),
		Origin:  domain.Origin{Type: domain.OriginText},
	}, nil
}

// FileSource reads plain text and markdown files. Other formats need an
// external extractor and are rejected.
type FileSource struct {
	maxBytes int64
}

var _ source.Source = (*FileSource)(nil)

var textExtensions = map[string]bool{"": true, ".txt": true, ".text": true, ".md": true, ".markdown": true}

// NewFileSource limits reads to maxBytes; 0 means 32 MiB.
func NewFileSource(maxBytes int64) *FileSource {
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	return &FileSource{maxBytes: maxBytes}
}

func (f *FileSource) Name() string {
	return string(domain.OriginFile)
}

func (f *FileSource) Load(ctx context.Context, resource string) (domain.SourceDocument, error) {
	if err := ctx.Err(); err != nil {
		return domain.SourceDocument{}, err
	}
	ext := strings.ToLower(filepath.Ext(resource))
	if !textExtensions[ext] {
		return domain.SourceDocument{}, fmt.Errorf("unsupported file type %q", ext)
	}

	info, err := os.Stat(resource)
	if err != nil {
		return domain.SourceDocument{}, fmt.Errorf("stat file: %w", err)
	}
	if info.Size() > f.maxBytes {
		return domain.SourceDocument{}, fmt.Errorf("file %s is %d bytes, limit is %d", resource, info.Size(), f.maxBytes)
	}
	body, err := os.ReadFile(resource)
	if err != nil {
		return domain.SourceDocument{}, fmt.Errorf("read file: %w", err)
	}

	abs, err := filepath.Abs(resource)
	if err != nil {
		abs = resource
	}
	return domain.SourceDocument{
		RawText: strings.TrimSpace(string(body)),
		Origin: domain.Origin{
			Type:     domain.OriginFile,
			Location: abs,
			Title:    strings.TrimSuffix(filepath.Base(resource), ext),
		},
	}, nil
}
