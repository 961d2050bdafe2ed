package publish

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/insight-api/internal/model"
)

const testDB = "db-123"

func testSnapshot() *model.AnalysisSnapshot {
	return &model.AnalysisSnapshot{
		Key:    "https://acme.com",
		Status: model.StatusReady,
		Pages: []model.Page{
			{SourceURL: "https://acme.com", Title: "Acme Industrial", Text: "Protective coatings."},
		},
		Insights: map[string]model.Insight{
			"industry": {Answer: "Industrial coatings manufacturer serving Midwest factories"},
			"location": {Answer: "Columbus, Ohio, United States of America"},
			"summary":  {Answer: "Acme makes protective coatings for factory equipment and serves manufacturers."},
			"sentiment": {
				Answer: "Confident, technical tone throughout the site materials.",
			},
			"contact_info": {
				Answer:  "sales@acme.com, (415) 555-0134",
				Contact: &model.ContactProfile{Emails: []string{"sales@acme.com"}, Phones: []string{"(415) 555-0134"}},
			},
		},
		CreatedAt:  time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		ArchivedAt: time.Date(2026, 8, 1, 10, 5, 0, 0, time.UTC),
	}
}

func emptyQueryResponse() *notionapi.DatabaseQueryResponse {
	return &notionapi.DatabaseQueryResponse{}
}

func richTextContent(props notionapi.Properties, name string) string {
	prop, ok := props[name]
	if !ok {
		return ""
	}
	rtp, ok := prop.(notionapi.RichTextProperty)
	if !ok || len(rtp.RichText) == 0 {
		return ""
	}
	return rtp.RichText[0].Text.Content
}

func TestPublish_CreatesNewPage(t *testing.T) {
	client := new(mockNotionClient)
	client.On("QueryDatabase", mock.Anything, testDB, mock.Anything).Return(emptyQueryResponse(), nil)

	var created *notionapi.PageCreateRequest
	client.On("CreatePage", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		created = args.Get(1).(*notionapi.PageCreateRequest)
	}).Return(&notionapi.Page{ID: "new-page"}, nil)

	pub := NewNotion(client, testDB)
	require.NoError(t, pub.Publish(context.Background(), testSnapshot()))

	client.AssertExpectations(t)
	require.NotNil(t, created)
	assert.Equal(t, notionapi.DatabaseID(testDB), created.Parent.DatabaseID)

	title := created.Properties["Name"].(notionapi.TitleProperty)
	assert.Equal(t, "Acme Industrial", title.Title[0].Text.Content)

	urlProp := created.Properties["URL"].(notionapi.URLProperty)
	assert.Equal(t, "https://acme.com", urlProp.URL)

	assert.Contains(t, richTextContent(created.Properties, "Industry"), "coatings")
	assert.Contains(t, richTextContent(created.Properties, "Contact"), "sales@acme.com")
	assert.Contains(t, richTextContent(created.Properties, "Contact"), "(415) 555-0134")

	status := created.Properties["Status"].(notionapi.StatusProperty)
	assert.Equal(t, "Analyzed", status.Status.Name)

	pages := created.Properties["Pages Fetched"].(notionapi.NumberProperty)
	assert.Equal(t, float64(1), pages.Number)
}

func TestPublish_UpdatesExistingPage(t *testing.T) {
	client := new(mockNotionClient)
	client.On("QueryDatabase", mock.Anything, testDB, mock.Anything).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{{ID: "page-7"}},
	}, nil)

	var updated *notionapi.PageUpdateRequest
	client.On("UpdatePage", mock.Anything, "page-7", mock.Anything).Run(func(args mock.Arguments) {
		updated = args.Get(2).(*notionapi.PageUpdateRequest)
	}).Return(&notionapi.Page{ID: "page-7"}, nil)

	pub := NewNotion(client, testDB)
	require.NoError(t, pub.Publish(context.Background(), testSnapshot()))

	client.AssertExpectations(t)
	client.AssertNotCalled(t, "CreatePage", mock.Anything, mock.Anything)
	require.NotNil(t, updated)
	assert.Contains(t, richTextContent(updated.Properties, "Summary"), "protective coatings")
}

func TestPublish_SkipsUnusableInsights(t *testing.T) {
	snap := testSnapshot()
	snap.Insights["industry"] = model.Insight{Unavailable: true, FailureCause: "task timeout"}
	snap.Insights["location"] = model.Insight{Answer: "unable to determine"}

	client := new(mockNotionClient)
	client.On("QueryDatabase", mock.Anything, testDB, mock.Anything).Return(emptyQueryResponse(), nil)

	var created *notionapi.PageCreateRequest
	client.On("CreatePage", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		created = args.Get(1).(*notionapi.PageCreateRequest)
	}).Return(&notionapi.Page{ID: "new-page"}, nil)

	pub := NewNotion(client, testDB)
	require.NoError(t, pub.Publish(context.Background(), snap))

	require.NotNil(t, created)
	assert.NotContains(t, created.Properties, "Industry")
	assert.NotContains(t, created.Properties, "Location")
	assert.Contains(t, created.Properties, "Summary")
}

func TestPublish_ClipsLongAnswers(t *testing.T) {
	snap := testSnapshot()
	snap.Insights["summary"] = model.Insight{Answer: strings.Repeat("コーティング означает coating. ", 200)}

	client := new(mockNotionClient)
	client.On("QueryDatabase", mock.Anything, testDB, mock.Anything).Return(emptyQueryResponse(), nil)

	var created *notionapi.PageCreateRequest
	client.On("CreatePage", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		created = args.Get(1).(*notionapi.PageCreateRequest)
	}).Return(&notionapi.Page{ID: "new-page"}, nil)

	pub := NewNotion(client, testDB)
	require.NoError(t, pub.Publish(context.Background(), snap))

	require.NotNil(t, created)
	summary := richTextContent(created.Properties, "Summary")
	assert.Equal(t, notionTextLimit, len([]rune(summary)))
}

func TestPublish_TitleFallsBackToHost(t *testing.T) {
	snap := testSnapshot()
	snap.Pages[0].Title = "  "

	client := new(mockNotionClient)
	client.On("QueryDatabase", mock.Anything, testDB, mock.Anything).Return(emptyQueryResponse(), nil)

	var created *notionapi.PageCreateRequest
	client.On("CreatePage", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		created = args.Get(1).(*notionapi.PageCreateRequest)
	}).Return(&notionapi.Page{ID: "new-page"}, nil)

	pub := NewNotion(client, testDB)
	require.NoError(t, pub.Publish(context.Background(), snap))

	require.NotNil(t, created)
	title := created.Properties["Name"].(notionapi.TitleProperty)
	assert.Equal(t, "acme.com", title.Title[0].Text.Content)
}

func TestPublish_QueryFailure(t *testing.T) {
	client := new(mockNotionClient)
	client.On("QueryDatabase", mock.Anything, testDB, mock.Anything).Return(nil, errors.New("notion 502"))

	pub := NewNotion(client, testDB)
	err := pub.Publish(context.Background(), testSnapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish: find existing page")
}

func TestPublish_MissingKey(t *testing.T) {
	pub := NewNotion(new(mockNotionClient), testDB)
	require.Error(t, pub.Publish(context.Background(), &model.AnalysisSnapshot{}))
	require.Error(t, pub.Publish(context.Background(), nil))
}
