package scrape

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/insight-api/internal/model"
	"github.com/sells-group/insight-api/internal/resilience"
	"github.com/sells-group/insight-api/pkg/jina"
)

// ReaderFetcher wraps the Jina reader client as a Fetcher. A circuit
// breaker skips the reader after repeated failures so a dead rendering
// service degrades to static-only fetching without per-request probing.
type ReaderFetcher struct {
	client  jina.Client
	breaker *resilience.Breaker
}

// NewReaderFetcher creates a ReaderFetcher guarded by the default breaker
// (5 consecutive failures open the circuit for 30s).
func NewReaderFetcher(client jina.Client) *ReaderFetcher {
	return &ReaderFetcher{
		client:  client,
		breaker: resilience.NewBreaker(resilience.DefaultBreakerConfig()),
	}
}

func (r *ReaderFetcher) Name() string { return "reader" }

// Supports returns true for http(s) URLs while the breaker allows calls.
func (r *ReaderFetcher) Supports(rawURL string) bool {
	if !httpScheme(rawURL) {
		return false
	}
	return r.breaker.State() != resilience.BreakerOpen
}

// Fetch renders the page via the reader service. Challenge pages and
// near-empty bodies count as failures so the chain falls back and the
// breaker learns about them.
func (r *ReaderFetcher) Fetch(ctx context.Context, targetURL string) (*PageContent, error) {
	resp, err := resilience.ExecuteVal(ctx, r.breaker, func(ctx context.Context) (*jina.ReadResponse, error) {
		resp, err := r.client.Read(ctx, targetURL)
		if err != nil {
			return nil, err
		}
		if reason := challengeReason(resp); reason != "" {
			return nil, eris.Errorf("reader: unusable response (%s)", reason)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}

	pageURL := resp.Data.URL
	if pageURL == "" {
		pageURL = targetURL
	}

	return &PageContent{
		URL:   pageURL,
		Title: resp.Data.Title,
		Text:  resp.Data.Content,
		Via:   r.Name(),
		Links: markdownLinks(resp.Data.Content),
	}, nil
}

// challengeReason classifies a reader response that should not be used:
// a non-200 embedded code, a near-empty body, or a bot-challenge page
// rendered in place of the content.
func challengeReason(resp *jina.ReadResponse) string {
	if resp == nil {
		return "nil response"
	}
	if resp.Code != 0 && resp.Code != 200 {
		return "bad code"
	}

	content := strings.TrimSpace(resp.Data.Content)
	if len(content) < 100 {
		return "empty body"
	}

	lower := strings.ToLower(content)
	challengeSignatures := []string{
		"checking your browser",
		"enable javascript",
		"please enable cookies",
		"access denied",
		"403 forbidden",
		"just a moment",
		"cloudflare",
		"attention required",
	}
	for _, sig := range challengeSignatures {
		if strings.Contains(lower, sig) && len(content) < 1000 {
			return "challenge page"
		}
	}
	return ""
}

var mdLinkRe = regexp.MustCompile(`\[([^\]]*)\]\(([^)\s]+)(?:\s+"[^"]*")?\)`)

// markdownLinks harvests [anchor](target) links from rendered markdown.
// Absolute http(s), root-relative, and mailto targets are kept;
// categorization happens in the chain once the base URL is known.
func markdownLinks(markdown string) []model.Link {
	matches := mdLinkRe.FindAllStringSubmatch(markdown, -1)
	links := make([]model.Link, 0, len(matches))
	for _, m := range matches {
		target := strings.TrimSpace(m[2])
		if !strings.HasPrefix(target, "http://") &&
			!strings.HasPrefix(target, "https://") &&
			!strings.HasPrefix(target, "mailto:") &&
			!strings.HasPrefix(target, "/") {
			continue
		}
		links = append(links, model.Link{
			HRef:   target,
			Anchor: strings.TrimSpace(m[1]),
		})
	}
	return links
}

func httpScheme(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
