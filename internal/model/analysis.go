package model

import (
	"strings"
	"time"
)

// AnalysisStatus represents the lifecycle state of an analysis record.
type AnalysisStatus string

const (
	StatusPending AnalysisStatus = "pending"
	StatusReady   AnalysisStatus = "ready"
	StatusFailed  AnalysisStatus = "failed"
)

// Insight holds the answer for one extraction field or custom question,
// together with the chunks that grounded it. The contact-info insight also
// carries the structured profile behind its rendered answer.
type Insight struct {
	Answer             string          `json:"answer"`
	SupportingChunkIDs []string        `json:"supporting_chunk_ids,omitempty"`
	RelevanceScores    []float64       `json:"relevance_scores,omitempty"`
	Contact            *ContactProfile `json:"contact,omitempty"`
	Unavailable        bool            `json:"unavailable,omitempty"`
	FailureCause       string          `json:"failure_cause,omitempty"`
}

// placeholderPhrases are answer fragments that indicate the model could not
// find the requested information in the provided content.
var placeholderPhrases = []string{
	"unable to determine",
	"not found",
	"unknown",
	"n/a",
	"not available",
	"no information",
}

// IsPlaceholderAnswer reports whether an answer carries no real content.
func IsPlaceholderAnswer(answer string) bool {
	a := strings.ToLower(strings.TrimSpace(answer))
	if a == "" {
		return true
	}
	for _, p := range placeholderPhrases {
		if a == p {
			return true
		}
	}
	// Short answers that merely contain a placeholder phrase are also empty
	// in practice ("Unknown." / "N/A - no details on the page").
	if len(a) < 60 {
		for _, p := range placeholderPhrases {
			if strings.Contains(a, p) {
				return true
			}
		}
	}
	return false
}

// Usable reports whether the insight holds a real answer worth presenting.
func (i Insight) Usable() bool {
	return !i.Unavailable && !IsPlaceholderAnswer(i.Answer)
}

// AnalysisRecord is the cached analysis for one canonical URL.
type AnalysisRecord struct {
	Key            string             `json:"key"`
	Status         AnalysisStatus     `json:"status"`
	Pages          []Page             `json:"pages"`
	Links          LinkIndex          `json:"links"`
	Chunks         []Chunk            `json:"chunks"`
	Insights       map[string]Insight `json:"insights"`
	FailureCause   string             `json:"failure_cause,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	LastAccessedAt time.Time          `json:"last_accessed_at"`
}

// HasPage reports whether a page with the given source URL has already been
// fetched into this record.
func (r *AnalysisRecord) HasPage(sourceURL string) bool {
	for _, p := range r.Pages {
		if p.SourceURL == sourceURL {
			return true
		}
	}
	return false
}

// ChunkByID returns the chunk with the given id, if present.
func (r *AnalysisRecord) ChunkByID(id string) (Chunk, bool) {
	for _, c := range r.Chunks {
		if c.ID == id {
			return c, true
		}
	}
	return Chunk{}, false
}

// AnalysisSnapshot is the archivable form of a completed analysis. Chunk
// vectors are not serialized; a warm-started record scores lexically until
// it is re-analyzed.
type AnalysisSnapshot struct {
	Key        string             `json:"key"`
	Status     AnalysisStatus     `json:"status"`
	Pages      []Page             `json:"pages"`
	Links      LinkIndex          `json:"links"`
	Chunks     []Chunk            `json:"chunks"`
	Insights   map[string]Insight `json:"insights"`
	CreatedAt  time.Time          `json:"created_at"`
	ArchivedAt time.Time          `json:"archived_at"`
}

// Snapshot converts the record into its archivable form.
func (r *AnalysisRecord) Snapshot() *AnalysisSnapshot {
	return &AnalysisSnapshot{
		Key:        r.Key,
		Status:     r.Status,
		Pages:      r.Pages,
		Links:      r.Links,
		Chunks:     r.Chunks,
		Insights:   r.Insights,
		CreatedAt:  r.CreatedAt,
		ArchivedAt: time.Now().UTC(),
	}
}

// Record converts an archived snapshot back into a live record.
func (s *AnalysisSnapshot) Record() *AnalysisRecord {
	return &AnalysisRecord{
		Key:            s.Key,
		Status:         s.Status,
		Pages:          s.Pages,
		Links:          s.Links,
		Chunks:         s.Chunks,
		Insights:       s.Insights,
		CreatedAt:      s.CreatedAt,
		LastAccessedAt: time.Now().UTC(),
	}
}
