package scrape

import (
	"context"

	"github.com/sells-group/insight-api/internal/model"
)

// PageContent is the normalized output of a fetch: plain text plus the
// link graph harvested from the page.
type PageContent struct {
	URL   string
	Title string
	Text  string
	Via   string // fetcher that produced the content
	Links []model.Link
}

// Fetcher retrieves a single URL and returns its content.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*PageContent, error)
	Name() string
	Supports(url string) bool
}
