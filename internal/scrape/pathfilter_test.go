package scrape

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathFilter_ExtensionAnyDepth(t *testing.T) {
	f := NewPathFilter(nil)

	assert.True(t, f.Excluded("https://acme.com/brochure.pdf"))
	assert.True(t, f.Excluded("https://acme.com/docs/deep/brochure.pdf"))
	assert.True(t, f.Excluded("https://acme.com/logo.PNG"))
	assert.True(t, f.Excluded("https://acme.com/assets/app.js"))
	assert.False(t, f.Excluded("https://acme.com/pricing"))
	assert.False(t, f.Excluded("https://acme.com/about-us"))
}

func TestPathFilter_DirectoryPattern(t *testing.T) {
	f := NewPathFilter([]string{"/downloads/*"})

	assert.True(t, f.Excluded("https://acme.com/downloads/file"))
	assert.True(t, f.Excluded("https://acme.com/downloads/a/b/c"))
	assert.False(t, f.Excluded("https://acme.com/download"))
	assert.False(t, f.Excluded("https://acme.com/brochure.pdf"))
}

func TestPathFilter_DefaultsWhenEmpty(t *testing.T) {
	f := NewPathFilter(nil)
	assert.NotEmpty(t, f.Patterns())
}

func TestPathFilter_UnparseableURL(t *testing.T) {
	f := NewPathFilter(nil)
	assert.True(t, f.Excluded("http://%zz"))
}
