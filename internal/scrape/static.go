package scrape

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/insight-api/internal/model"
)

const staticUserAgent = "Mozilla/5.0 (compatible; InsightBot/1.0)"

// StaticFetcher fetches HTML via net/http, detects bot challenges, and
// extracts text and links with goquery. No rendering, no API cost.
type StaticFetcher struct {
	client  *http.Client
	maxBody int64
}

// NewStaticFetcher creates a StaticFetcher. maxBody caps the response size
// in bytes; non-positive values take the defaults (15s, 512 KiB).
func NewStaticFetcher(timeout time.Duration, maxBody int64) *StaticFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if maxBody <= 0 {
		maxBody = 512 * 1024
	}
	return &StaticFetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		maxBody: maxBody,
	}
}

func (s *StaticFetcher) Name() string { return "static" }

func (s *StaticFetcher) Supports(rawURL string) bool { return httpScheme(rawURL) }

// Fetch GETs the URL, decodes the declared charset, and extracts plain
// text plus the link graph.
func (s *StaticFetcher) Fetch(ctx context.Context, targetURL string) (*PageContent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "static: create request")
	}
	req.Header.Set("User-Agent", staticUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "static: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBody))
	if err != nil {
		return nil, eris.Wrap(err, "static: read body")
	}

	if blocked, reason := detectBlock(resp, body); blocked {
		return nil, eris.Errorf("static: blocked (%s)", reason)
	}
	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("static: status %d", resp.StatusCode)
	}
	if len(body) < 100 {
		return nil, eris.New("static: empty page")
	}

	body = decodeCharset(body, resp.Header.Get("Content-Type"))

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "static: parse html")
	}

	doc.Find("script, style, nav, footer, noscript").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	text := collapseWhitespace(doc.Find("body").Text())

	// Resolve links against the final URL so redirects do not break
	// relative hrefs.
	base := resp.Request.URL
	links := harvestLinks(doc, base)

	return &PageContent{
		URL:   targetURL,
		Title: title,
		Text:  text,
		Via:   s.Name(),
		Links: links,
	}, nil
}

// detectBlock checks a response for signs of anti-bot protection. The
// reason names the mechanism for the error message.
func detectBlock(resp *http.Response, body []byte) (bool, string) {
	// Cloudflare: 403/503 with cf-* headers.
	if resp.StatusCode == 403 || resp.StatusCode == 503 {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("cf-cache-status") != "" {
			return true, "cloudflare"
		}
		if resp.Header.Get("server") == "cloudflare" {
			return true, "cloudflare"
		}
	}

	lower := strings.ToLower(string(body))

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		(strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge")) {
		return true, "cloudflare"
	}

	if strings.Contains(lower, "captcha") ||
		strings.Contains(lower, "recaptcha") ||
		strings.Contains(lower, "hcaptcha") {
		return true, "captcha"
	}

	// JS-only shell: tiny body that demands javascript to render.
	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return true, "js_shell"
		}
		if strings.Contains(lower, `meta http-equiv="refresh"`) {
			return true, "js_shell"
		}
	}

	return false, ""
}

// decodeCharset converts the body to UTF-8 when the Content-Type header
// declares another encoding. Decoding failures fall back to the raw bytes.
func decodeCharset(body []byte, contentType string) []byte {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return body
	}
	name := strings.ToLower(params["charset"])
	if name == "" || name == "utf-8" || name == "utf8" {
		return body
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return body
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return body
	}
	return decoded
}

var (
	spaceRe   = regexp.MustCompile(`[ \t]+`)
	newlineRe = regexp.MustCompile(`\n{3,}`)
)

// collapseWhitespace squeezes the runs of spaces and blank lines left
// behind by tag removal.
func collapseWhitespace(text string) string {
	text = spaceRe.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = newlineRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// harvestLinks collects a[href] targets resolved against the base URL,
// keeping http(s) and mailto links.
func harvestLinks(doc *goquery.Document, base *url.URL) []model.Link {
	var links []model.Link
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
			return
		}
		anchor := strings.TrimSpace(sel.Text())

		if strings.HasPrefix(href, "mailto:") {
			links = append(links, model.Link{HRef: href, Anchor: anchor})
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		abs.Fragment = ""
		links = append(links, model.Link{HRef: abs.String(), Anchor: anchor})
	})
	return links
}
