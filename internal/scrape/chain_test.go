package scrape

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/insight-api/internal/model"
)

// mockFetcher implements Fetcher for testing.
type mockFetcher struct {
	name     string
	supports bool
	content  *PageContent
	err      error
	calls    int
}

func (m *mockFetcher) Name() string           { return m.name }
func (m *mockFetcher) Supports(_ string) bool { return m.supports }
func (m *mockFetcher) Fetch(_ context.Context, _ string) (*PageContent, error) {
	m.calls++
	return m.content, m.err
}

func TestChain_Fetch_FirstSuccess(t *testing.T) {
	f1 := &mockFetcher{
		name: "primary", supports: true,
		content: &PageContent{URL: "https://acme.com", Title: "Home", Text: "content", Via: "primary"},
	}
	f2 := &mockFetcher{name: "fallback", supports: true}

	chain := NewChain(nil, f1, f2)
	content, err := chain.Fetch(context.Background(), "https://acme.com")

	require.NoError(t, err)
	assert.Equal(t, "primary", content.Via)
	assert.Equal(t, "https://acme.com", content.URL)
	assert.Zero(t, f2.calls)
}

func TestChain_Fetch_FallbackOnError(t *testing.T) {
	f1 := &mockFetcher{name: "primary", supports: true, err: errors.New("failed")}
	f2 := &mockFetcher{
		name: "fallback", supports: true,
		content: &PageContent{URL: "https://acme.com", Title: "Home", Via: "fallback"},
	}

	chain := NewChain(nil, f1, f2)
	content, err := chain.Fetch(context.Background(), "https://acme.com")

	require.NoError(t, err)
	assert.Equal(t, "fallback", content.Via)
}

func TestChain_Fetch_AllFail(t *testing.T) {
	f1 := &mockFetcher{name: "f1", supports: true, err: errors.New("f1 error")}
	f2 := &mockFetcher{name: "f2", supports: true, err: errors.New("f2 error")}

	chain := NewChain(nil, f1, f2)
	content, err := chain.Fetch(context.Background(), "https://acme.com")

	assert.Error(t, err)
	assert.Nil(t, content)
	assert.Contains(t, err.Error(), "all fetchers failed")
}

func TestChain_Fetch_ExcludedURL(t *testing.T) {
	f1 := &mockFetcher{name: "f1", supports: true}

	chain := NewChain(NewPathFilter(nil), f1)
	content, err := chain.Fetch(context.Background(), "https://acme.com/brochure.pdf")

	assert.Error(t, err)
	assert.Nil(t, content)
	assert.Contains(t, err.Error(), "excluded")
	assert.Zero(t, f1.calls)
}

func TestChain_Fetch_SkipsUnsupported(t *testing.T) {
	f1 := &mockFetcher{name: "f1", supports: false}
	f2 := &mockFetcher{
		name: "f2", supports: true,
		content: &PageContent{URL: "https://acme.com", Via: "f2"},
	}

	chain := NewChain(nil, f1, f2)
	content, err := chain.Fetch(context.Background(), "https://acme.com")

	require.NoError(t, err)
	assert.Equal(t, "f2", content.Via)
	assert.Zero(t, f1.calls)
}

func TestChain_Fetch_NoFetcherAvailable(t *testing.T) {
	f1 := &mockFetcher{name: "f1", supports: false}

	chain := NewChain(nil, f1)
	_, err := chain.Fetch(context.Background(), "https://acme.com")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no available fetcher")
}

func TestChain_Fetch_CategorizesLinks(t *testing.T) {
	f1 := &mockFetcher{
		name: "f1", supports: true,
		content: &PageContent{
			URL: "https://acme.com", Text: "content", Via: "f1",
			Links: []model.Link{
				{HRef: "/pricing", Anchor: "Pricing"},
				{HRef: "https://linkedin.com/company/acme", Anchor: "LinkedIn"},
			},
		},
	}

	chain := NewChain(nil, f1)
	content, err := chain.Fetch(context.Background(), "https://acme.com")

	require.NoError(t, err)
	require.Len(t, content.Links, 2)
	assert.Equal(t, "https://acme.com/pricing", content.Links[0].HRef)
	assert.Equal(t, model.LinkInternal, content.Links[0].Category)
	assert.Equal(t, model.LinkSocial, content.Links[1].Category)
}
