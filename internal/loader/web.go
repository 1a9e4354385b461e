// Package loader fetches web documents and extracts their text content.
package loader

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"webrag/internal/domain"
)

// Web loads a single web page and extracts text nodes matching a CSS
// selector into documents carrying the page URL as source metadata.
type Web struct {
	client *http.Client
}

// Ensure Web implements the Loader interface.
var _ domain.Loader = (*Web)(nil)

func NewWeb() *Web {
	return &Web{client: &http.Client{Timeout: 30 * time.Second}}
}

// DefaultSelector targets the main content blocks of the tutorial blog layout.
const DefaultSelector = ".post-title, .post-header, .post-content"

var multiSpaces = regexp.MustCompile(`\s+`)

// Load fetches the page at source and returns one document per selector
// match with non-empty text. A fetch or parse failure is fatal for the run.
func (w *Web) Load(ctx context.Context, source, selector string) ([]domain.Document, error) {
	if selector == "" {
		selector = DefaultSelector
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", source, resp.Status)
	}

	page, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", source, err)
	}

	var documents []domain.Document
	page.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		text := normalizeWhitespace(sel.Text())
		if text == "" {
			return
		}
		documents = append(documents, domain.Document{
			ID:     uuid.New().String(),
			Source: source,
			Text:   text,
		})
	})

	if len(documents) == 0 {
		return nil, fmt.Errorf("no text matched selector %q at %s", selector, source)
	}
	return documents, nil
}

func normalizeWhitespace(s string) string {
	return strings.TrimSpace(multiSpaces.ReplaceAllString(s, " "))
}
