package model

import "time"

// Page is one fetched page's normalized text, tagged with where it came from.
type Page struct {
	SourceURL string    `json:"source_url"`
	Title     string    `json:"title,omitempty"`
	Text      string    `json:"text"`
	Via       string    `json:"via,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Chunk is a bounded segment of normalized page text, the unit of retrieval
// and grounding. Seq is the record-wide append order; later chunks win score
// ties. Vectors are in-memory only.
type Chunk struct {
	ID        string    `json:"id"`
	SourceURL string    `json:"source_url"`
	Seq       int       `json:"seq"`
	Text      string    `json:"text"`
	Vector    []float32 `json:"-"`
}
