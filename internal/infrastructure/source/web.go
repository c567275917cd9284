package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"QAForge/internal/domain"
	"QAForge/internal/source"
)

const maxPageBytes = 10 << 20

// blockSelector lists the elements whose text forms the document body.
const blockSelector = "h1, h2, h3, h4, h5, h6, p, li, pre, blockquote, td"

// WebSource fetches an HTML page and keeps its readable text.
type WebSource struct {
	client *http.Client
}

var _ source.Source = (*WebSource)(nil)

// NewWebSource wires an HTTP client; nil means a client with a 20s timeout.
func NewWebSource(client *http.Client) *WebSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &WebSource{client: client}
}

func (w *WebSource) Name() string {
	return string(domain.OriginWeb)
}

func (w *WebSource) Load(ctx context.Context, resource string) (domain.SourceDocument, error) {
	doc, err := w.fetchDocument(ctx, resource)
	if err != nil {
		return domain.SourceDocument{}, err
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	return domain.SourceDocument{
		RawText: extractText(doc),
		Origin: domain.Origin{
			Type:     domain.OriginWeb,
			Location: resource,
			Title:    title,
		},
	}, nil
}

func (w *WebSource) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "QAForge/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", pageURL, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// extractText joins the text of block elements in document order, one block
// per paragraph. Pages without such blocks fall back to the body text.
func extractText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, nav, header, footer, aside, form").Remove()

	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("main").First()
	}
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	var blocks []string
	root.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		// nested blocks (li > p) are emitted by the innermost element only
		if s.Find(blockSelector).Length() > 0 {
			return
		}
		if text := collapse(s.Text()); text != "" {
			blocks = append(blocks, text)
		}
	})
	if len(blocks) == 0 {
		return collapse(root.Text())
	}
	return strings.Join(blocks, "\n\n")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
