// Package scrape fetches page content for analysis, preferring a rendering
// reader service and falling back to a static fetch.
package scrape

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Chain tries fetchers in priority order, returning the first success.
type Chain struct {
	filter   *PathFilter
	fetchers []Fetcher
}

// NewChain creates a Chain with the given path filter and fetchers.
// Fetchers are tried in order; the first successful result is returned.
func NewChain(filter *PathFilter, fetchers ...Fetcher) *Chain {
	if filter == nil {
		filter = NewPathFilter(nil)
	}
	return &Chain{filter: filter, fetchers: fetchers}
}

// Fetch tries each fetcher in order for a single URL. Links in the result
// are categorized relative to the fetched URL. Returns the first successful
// result, or an error when every fetcher fails.
func (c *Chain) Fetch(ctx context.Context, targetURL string) (*PageContent, error) {
	if c.filter.Excluded(targetURL) {
		return nil, eris.Errorf("scrape: url excluded: %s", targetURL)
	}

	var lastErr error
	for _, f := range c.fetchers {
		if !f.Supports(targetURL) {
			continue
		}
		content, err := f.Fetch(ctx, targetURL)
		if err == nil && content != nil {
			content.Links = CategorizeLinks(targetURL, content.Links)
			zap.L().Debug("scrape: fetched",
				zap.String("url", targetURL),
				zap.String("via", f.Name()),
				zap.Int("chars", len(content.Text)),
				zap.Int("links", len(content.Links)),
			)
			return content, nil
		}
		if err != nil {
			zap.L().Debug("scrape: fetcher failed, trying next",
				zap.String("fetcher", f.Name()),
				zap.String("url", targetURL),
				zap.Error(err),
			)
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "scrape: all fetchers failed")
	}
	return nil, eris.Errorf("scrape: no available fetcher for url: %s", targetURL)
}
