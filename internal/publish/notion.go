// Package publish pushes completed analyses into a Notion database so the
// team sees fresh company research without calling the API.
package publish

import (
	"context"
	"net/url"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/insight-api/internal/model"
	"github.com/sells-group/insight-api/pkg/notion"
)

// notionTextLimit is Notion's per-rich-text content cap.
const notionTextLimit = 2000

// insightProperties maps insight names to the database columns they fill.
var insightProperties = map[string]string{
	"industry":     "Industry",
	"company_size": "Company Size",
	"location":     "Location",
	"summary":      "Summary",
}

// Notion publishes analysis snapshots as pages in one database. Pages are
// keyed by the URL property: one page per analyzed site, updated in place
// when the site is re-analyzed.
type Notion struct {
	client notion.Client
	dbID   string
}

// NewNotion creates a publisher writing to the given database.
func NewNotion(client notion.Client, dbID string) *Notion {
	return &Notion{client: client, dbID: dbID}
}

// Publish creates or updates the page for the snapshot's URL.
func (n *Notion) Publish(ctx context.Context, snap *model.AnalysisSnapshot) error {
	if snap == nil || snap.Key == "" {
		return eris.New("publish: snapshot missing key")
	}

	props := pageProperties(snap)

	existing, err := notion.FindPageByURL(ctx, n.client, n.dbID, snap.Key)
	if err != nil {
		return eris.Wrap(err, "publish: find existing page")
	}

	if existing != nil {
		if _, err := n.client.UpdatePage(ctx, string(existing.ID), &notionapi.PageUpdateRequest{
			Properties: props,
		}); err != nil {
			return eris.Wrap(err, "publish: update page")
		}
		zap.L().Info("publish: page updated",
			zap.String("key", snap.Key),
			zap.String("page_id", string(existing.ID)))
		return nil
	}

	page, err := n.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(n.dbID),
		},
		Properties: props,
	})
	if err != nil {
		return eris.Wrap(err, "publish: create page")
	}
	zap.L().Info("publish: page created",
		zap.String("key", snap.Key),
		zap.String("page_id", string(page.ID)))
	return nil
}

// pageProperties renders the snapshot into database columns. Insights without
// a usable answer are left out so an update never overwrites a column with a
// placeholder.
func pageProperties(snap *model.AnalysisSnapshot) notionapi.Properties {
	analyzedAt := notionapi.Date(snap.CreatedAt)
	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Title: []notionapi.RichText{{Text: &notionapi.Text{Content: pageTitle(snap)}}},
		},
		"URL": notionapi.URLProperty{
			URL: snap.Key,
		},
		"Status": notionapi.StatusProperty{
			Status: notionapi.Status{Name: "Analyzed"},
		},
		"Pages Fetched": notionapi.NumberProperty{
			Number: float64(len(snap.Pages)),
		},
		"Analyzed At": notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &analyzedAt},
		},
	}

	for name, column := range insightProperties {
		ins, ok := snap.Insights[name]
		if !ok || !ins.Usable() {
			continue
		}
		props[column] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: clip(ins.Answer, notionTextLimit)}}},
		}
	}

	if contact := contactLine(snap); contact != "" {
		props["Contact"] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: clip(contact, notionTextLimit)}}},
		}
	}

	return props
}

// pageTitle prefers the homepage title and falls back to the site host.
func pageTitle(snap *model.AnalysisSnapshot) string {
	if len(snap.Pages) > 0 && strings.TrimSpace(snap.Pages[0].Title) != "" {
		return strings.TrimSpace(snap.Pages[0].Title)
	}
	if u, err := url.Parse(snap.Key); err == nil && u.Host != "" {
		return u.Host
	}
	return snap.Key
}

// contactLine joins the extracted emails and phones into one column value.
func contactLine(snap *model.AnalysisSnapshot) string {
	ins, ok := snap.Insights["contact_info"]
	if !ok || ins.Contact == nil || ins.Contact.Empty() {
		return ""
	}
	parts := append([]string(nil), ins.Contact.Emails...)
	parts = append(parts, ins.Contact.Phones...)
	return strings.Join(parts, ", ")
}

// clip bounds a string to limit runes.
func clip(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
