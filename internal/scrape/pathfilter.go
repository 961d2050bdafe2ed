package scrape

import (
	"net/url"
	"path"
	"strings"
)

// defaultExcludePatterns skip binary assets and media that yield no
// extractable text.
var defaultExcludePatterns = []string{
	"*.pdf", "*.zip", "*.gz", "*.tar",
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.svg", "*.webp", "*.ico",
	"*.mp3", "*.mp4", "*.webm",
	"*.css", "*.js",
}

// PathFilter skips URLs whose path matches a glob pattern. Extension
// patterns like "*.pdf" match at any depth; directory patterns like
// "/downloads/*" match the whole subtree.
type PathFilter struct {
	patterns []string
}

// NewPathFilter creates a PathFilter from glob patterns. Falls back to the
// default asset patterns when none are provided.
func NewPathFilter(patterns []string) *PathFilter {
	if len(patterns) == 0 {
		patterns = defaultExcludePatterns
	}
	return &PathFilter{patterns: patterns}
}

// Patterns returns the configured patterns.
func (f *PathFilter) Patterns() []string {
	return f.patterns
}

// Excluded checks whether a URL matches any exclude pattern. Unparseable
// URLs are excluded outright.
func (f *PathFilter) Excluded(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	p := strings.ToLower(u.Path)
	base := path.Base(p)
	for _, pattern := range f.patterns {
		if matchPattern(strings.ToLower(pattern), p, base) {
			return true
		}
	}
	return false
}

// matchPattern matches extension-style patterns against the path base name
// and directory patterns against the full path, including deeper segments
// (so "/downloads/*" matches "/downloads/a/b").
func matchPattern(pattern, urlPath, base string) bool {
	if !strings.Contains(pattern, "/") {
		ok, _ := path.Match(pattern, base)
		return ok
	}
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/") {
			return true
		}
	}
	return false
}
