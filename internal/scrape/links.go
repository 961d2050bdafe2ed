package scrape

import (
	"net"
	"net/url"
	"strings"

	"github.com/sells-group/insight-api/internal/model"
)

// socialDomains identify links to a company's profile pages elsewhere.
var socialDomains = []string{
	"linkedin.com",
	"twitter.com",
	"x.com",
	"facebook.com",
	"instagram.com",
	"youtube.com",
	"tiktok.com",
	"github.com",
}

// contactHints mark same-host pages that usually carry contact details.
var contactHints = []string{"about", "contact", "team", "support"}

// CategorizeLinks resolves each link against the base URL and assigns its
// category. Links that cannot be resolved are dropped. The mapping is
// deterministic: the same inputs always produce the same categories.
func CategorizeLinks(baseURL string, links []model.Link) []model.Link {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	baseHost := normalizeHost(base.Host)

	out := make([]model.Link, 0, len(links))
	for _, l := range links {
		href := strings.TrimSpace(l.HRef)
		if href == "" {
			continue
		}

		if strings.HasPrefix(strings.ToLower(href), "mailto:") {
			l.HRef = href
			l.Category = model.LinkEmail
			out = append(out, l)
			continue
		}

		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			continue
		}
		abs.Fragment = ""
		l.HRef = abs.String()
		l.Category = categorize(baseHost, abs, l.Anchor)
		out = append(out, l)
	}
	return out
}

// categorize applies the category rules: social platforms first, then
// same-host contact pages, then remaining same-host links, then external.
func categorize(baseHost string, u *url.URL, anchor string) model.LinkCategory {
	host := normalizeHost(u.Host)

	for _, domain := range socialDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return model.LinkSocial
		}
	}

	if host == baseHost {
		p := strings.ToLower(u.Path)
		a := strings.ToLower(anchor)
		for _, hint := range contactHints {
			if strings.Contains(p, hint) || strings.Contains(a, hint) {
				return model.LinkContact
			}
		}
		return model.LinkInternal
	}

	return model.LinkExternal
}

// normalizeHost strips the www prefix and port so host comparison survives
// both differences.
func normalizeHost(host string) string {
	host = strings.ToLower(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimPrefix(host, "www.")
}
