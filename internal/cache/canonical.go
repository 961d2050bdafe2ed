package cache

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// Canonicalize normalizes a raw URL into a cache key: scheme plus lowercased
// host plus path, with the query, fragment, and trailing slash stripped. A
// missing scheme defaults to https.
func Canonicalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", eris.New("cache: empty url")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", eris.Wrap(err, "cache: parse url")
	}
	if u.Scheme == "" {
		u, err = url.Parse("https://" + raw)
		if err != nil {
			return "", eris.Wrap(err, "cache: parse url")
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", eris.Errorf("cache: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", eris.Errorf("cache: url has no host: %s", raw)
	}

	path := strings.TrimSuffix(u.Path, "/")

	return u.Scheme + "://" + strings.ToLower(u.Host) + path, nil
}
