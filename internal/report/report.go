// Package report renders a completed analysis as a plain-text summary or an
// XLSX workbook.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/insight-api/internal/extract"
	"github.com/sells-group/insight-api/internal/model"
)

// FormatText generates a human-readable analysis report.
func FormatText(snap *model.AnalysisSnapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Analysis Report: %s\n", siteName(snap))
	fmt.Fprintf(&b, "URL: %s\n", snap.Key)
	fmt.Fprintf(&b, "Status: %s\n", snap.Status)
	if !snap.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "Analyzed: %s\n", snap.CreatedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Pages: %d | Chunks: %d | Links: %d\n\n",
		len(snap.Pages), len(snap.Chunks), snap.Links.Count())

	b.WriteString("## Insights\n")
	if len(snap.Insights) == 0 {
		b.WriteString("No insights extracted.\n")
	}
	for _, name := range insightOrder(snap.Insights) {
		ins := snap.Insights[name]
		switch {
		case ins.Unavailable:
			fmt.Fprintf(&b, "- **%s**: unavailable (%s)\n", name, ins.FailureCause)
		case len(ins.SupportingChunkIDs) > 0:
			fmt.Fprintf(&b, "- **%s**: %s [%d sources]\n", name, ins.Answer, len(ins.SupportingChunkIDs))
		default:
			fmt.Fprintf(&b, "- **%s**: %s\n", name, ins.Answer)
		}
	}
	b.WriteString("\n")

	if rows := contactRows(snap); len(rows) > 0 {
		b.WriteString("## Contact Details\n")
		for _, r := range rows {
			fmt.Fprintf(&b, "- %s: %s\n", r[0], r[1])
		}
		b.WriteString("\n")
	}

	b.WriteString("## Pages\n")
	for _, p := range snap.Pages {
		fmt.Fprintf(&b, "- %s (%s)\n", p.SourceURL, p.Via)
	}

	return b.String()
}

// WriteWorkbook saves the snapshot as an XLSX workbook with Insights,
// Contacts, and Chunks sheets.
func WriteWorkbook(snap *model.AnalysisSnapshot, path string) error {
	f := xlsx.NewFile()

	insights, err := f.AddSheet("Insights")
	if err != nil {
		return eris.Wrap(err, "report: add insights sheet")
	}
	addRow(insights, "Field", "Answer", "Supporting Chunks", "Failure")
	for _, name := range insightOrder(snap.Insights) {
		ins := snap.Insights[name]
		answer := ins.Answer
		if ins.Unavailable {
			answer = "unavailable"
		}
		addRow(insights, name, answer, strings.Join(ins.SupportingChunkIDs, ", "), ins.FailureCause)
	}

	contacts, err := f.AddSheet("Contacts")
	if err != nil {
		return eris.Wrap(err, "report: add contacts sheet")
	}
	addRow(contacts, "Type", "Value")
	for _, r := range contactRows(snap) {
		addRow(contacts, r[0], r[1])
	}

	chunks, err := f.AddSheet("Chunks")
	if err != nil {
		return eris.Wrap(err, "report: add chunks sheet")
	}
	addRow(chunks, "ID", "Source URL", "Seq", "Text")
	for _, c := range snap.Chunks {
		row := chunks.AddRow()
		row.AddCell().SetString(c.ID)
		row.AddCell().SetString(c.SourceURL)
		row.AddCell().SetInt(c.Seq)
		row.AddCell().SetString(c.Text)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "report: save workbook")
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, cells ...string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

// insightOrder lists the fixed fields in canonical order followed by custom
// questions sorted alphabetically.
func insightOrder(insights map[string]model.Insight) []string {
	fixed := extract.FieldNames()
	seen := make(map[string]bool, len(fixed))
	var order []string
	for _, name := range fixed {
		if _, ok := insights[name]; ok {
			order = append(order, name)
			seen[name] = true
		}
	}

	var custom []string
	for name := range insights {
		if !seen[name] {
			custom = append(custom, name)
		}
	}
	sort.Strings(custom)
	return append(order, custom...)
}

// contactRows flattens the contact profile into (type, value) pairs.
func contactRows(snap *model.AnalysisSnapshot) [][2]string {
	ins, ok := snap.Insights["contact_info"]
	if !ok || ins.Contact == nil {
		return nil
	}

	var rows [][2]string
	for _, e := range ins.Contact.Emails {
		rows = append(rows, [2]string{"email", e})
	}
	for _, p := range ins.Contact.Phones {
		rows = append(rows, [2]string{"phone", p})
	}

	networks := make([]string, 0, len(ins.Contact.Social))
	for n := range ins.Contact.Social {
		networks = append(networks, n)
	}
	sort.Strings(networks)
	for _, n := range networks {
		for _, u := range ins.Contact.Social[n] {
			rows = append(rows, [2]string{n, u})
		}
	}
	return rows
}

// siteName prefers the homepage title and falls back to the key.
func siteName(snap *model.AnalysisSnapshot) string {
	if len(snap.Pages) > 0 && strings.TrimSpace(snap.Pages[0].Title) != "" {
		return strings.TrimSpace(snap.Pages[0].Title)
	}
	return snap.Key
}
