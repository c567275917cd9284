// Package source resolves input resources into normalized documents through
// registered extraction strategies.
package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"QAForge/internal/domain"
	"QAForge/internal/ports"
)

// Source captures a single extraction strategy (text, file, web, etc.).
type Source interface {
	Name() string
	Load(ctx context.Context, resource string) (domain.SourceDocument, error)
}

// Registry keeps a mapping from origin types to their implementations.
type Registry struct {
	sources map[domain.OriginType]Source
}

// NewRegistry builds a registry with the given sources.
func NewRegistry(sources ...Source) *Registry {
	r := &Registry{sources: map[domain.OriginType]Source{}}
	for _, s := range sources {
		r.Register(s)
	}
	return r
}

// Register adds or replaces a source implementation.
func (r *Registry) Register(s Source) {
	if r.sources == nil {
		r.sources = map[domain.OriginType]Source{}
	}
	r.sources[domain.OriginType(s.Name())] = s
}

// Resolve returns a source by origin type or an error if it is absent.
func (r *Registry) Resolve(t domain.OriginType) (Source, error) {
	if s, ok := r.sources[t]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("source %s is not registered", t)
}

// Loader implements ports.DocumentSource on top of a Registry.
type Loader struct {
	registry *Registry
	logger   *slog.Logger
}

var _ ports.DocumentSource = (*Loader)(nil)

// NewLoader wires the registry.
func NewLoader(reg *Registry, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{registry: reg, logger: logger.With("component", "source")}
}

// Load resolves resource with the strategy for originType, detecting the type
// when originType is empty. Documents get a stable ID derived from the type
// and the resource reference.
func (l *Loader) Load(ctx context.Context, resource string, originType domain.OriginType) (domain.SourceDocument, error) {
	if l.registry == nil {
		return domain.SourceDocument{}, fmt.Errorf("source registry is not configured")
	}
	if originType == "" {
		originType = Detect(resource)
	}
	s, err := l.registry.Resolve(originType)
	if err != nil {
		return domain.SourceDocument{}, err
	}

	doc, err := s.Load(ctx, resource)
	if err != nil {
		return domain.SourceDocument{}, fmt.Errorf("load %s resource: %w", originType, err)
	}
	if strings.TrimSpace(doc.RawText) == "" {
		return domain.SourceDocument{}, fmt.Errorf("load %s resource: no text extracted", originType)
	}

	id := ResourceID(originType, resource)
	if doc.ID == "" {
		doc.ID = id
	}
	doc.Origin.Type = originType
	if doc.Origin.SourceID == "" {
		doc.Origin.SourceID = id
	}
	l.logger.Debug("resource loaded", "id", doc.ID, "type", originType, "bytes", len(doc.RawText))
	return doc, nil
}

// Detect guesses the origin type: URLs are web pages, existing paths are
// files, anything else is literal text.
func Detect(resource string) domain.OriginType {
	lower := strings.ToLower(strings.TrimSpace(resource))
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return domain.OriginWeb
	}
	if !strings.ContainsAny(resource, "\n") {
		if info, err := os.Stat(resource); err == nil && !info.IsDir() {
			return domain.OriginFile
		}
	}
	return domain.OriginText
}

// ResourceID is "<type>_<first 8 hex digits of sha256(resource)>".
func ResourceID(t domain.OriginType, resource string) string {
	sum := sha256.Sum256([]byte(resource))
	return string(t) + "_" + hex.EncodeToString(sum[:])[:8]
}
