// Package notion wraps the Notion API for publishing analysis results to a
// team database.
package notion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the Notion API operations used by the publisher.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

const (
	// defaultRPS tracks Notion's documented average request budget.
	defaultRPS = 3

	maxAttempts       = 3
	defaultRetryDelay = 400 * time.Millisecond
)

// ClientOption configures the Notion client.
type ClientOption func(*apiClient)

// WithRateLimit overrides the default request budget (3 req/s). A
// non-positive value disables client-side throttling.
func WithRateLimit(rps float64) ClientOption {
	return func(c *apiClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

// apiClient implements Client over jomei/notionapi with client-side
// throttling and bounded retries for rate-limit and server errors.
type apiClient struct {
	inner      *notionapi.Client
	limiter    *rate.Limiter
	retryDelay time.Duration
}

// NewClient creates a Notion client for the given integration token,
// throttled to Notion's request budget by default.
func NewClient(token string, opts ...ClientOption) Client {
	c := &apiClient{
		inner:      notionapi.NewClient(notionapi.Token(token)),
		limiter:    rate.NewLimiter(defaultRPS, 1),
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call runs one API operation through the limiter, retrying while Notion
// reports rate limiting or a server-side failure.
func (c *apiClient) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if c.limiter != nil {
			if werr := c.limiter.Wait(ctx); werr != nil {
				return eris.Wrap(werr, "notion: rate limit")
			}
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if !retryable(err) || attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return eris.Wrap(ctx.Err(), "notion: "+op)
		case <-time.After(time.Duration(attempt) * c.retryDelay):
		}
	}
	return eris.Wrap(err, "notion: "+op)
}

// retryable reports whether the API rejected the call in a way worth
// retrying.
func retryable(err error) bool {
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= http.StatusInternalServerError
	}
	return false
}

func (c *apiClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	var resp *notionapi.DatabaseQueryResponse
	err := c.call(ctx, fmt.Sprintf("query database %s", dbID), func(ctx context.Context) error {
		var qerr error
		resp, qerr = c.inner.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
		return qerr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *apiClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	var page *notionapi.Page
	err := c.call(ctx, "create page", func(ctx context.Context) error {
		var cerr error
		page, cerr = c.inner.Page.Create(ctx, req)
		return cerr
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (c *apiClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	var page *notionapi.Page
	err := c.call(ctx, fmt.Sprintf("update page %s", pageID), func(ctx context.Context) error {
		var uerr error
		page, uerr = c.inner.Page.Update(ctx, notionapi.PageID(pageID), req)
		return uerr
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// FindPageByURL returns the first page in the database whose URL property
// equals the given value, or nil when none exists. The publisher uses this
// to decide between creating a page and updating one in place.
func FindPageByURL(ctx context.Context, c Client, dbID, pageURL string) (*notionapi.Page, error) {
	resp, err := c.QueryDatabase(ctx, dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "URL",
			RichText: &notionapi.TextFilterCondition{
				Equals: pageURL,
			},
		},
		PageSize: 1,
	})
	if err != nil {
		return nil, eris.Wrap(err, "notion: find page by url")
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	return &resp.Results[0], nil
}
