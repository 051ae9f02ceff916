// Package ingestion defines the request and response types of the document
// intake, which analyzes documents into journal entries for the indexer.
package ingestion

import "github.com/Adithya-Monish-Kumar-K/reverse-index/internal/lexicon"

// IngestRequest is the JSON body accepted by the intake endpoint.
type IngestRequest struct {
	DocID    int64    `json:"doc_id"`
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Subjects []string `json:"subjects,omitempty"`
	Links    []string `json:"links,omitempty"`
}

func (r *IngestRequest) Document() lexicon.Document {
	return lexicon.Document{
		DocID:    r.DocID,
		URL:      r.URL,
		Title:    r.Title,
		Body:     r.Body,
		Subjects: r.Subjects,
		Links:    r.Links,
	}
}

// IngestResponse is returned once the journal entry is on the journal topic.
type IngestResponse struct {
	DocID  int64  `json:"doc_id"`
	Terms  int    `json:"terms"`
	Status string `json:"status"`
}

const StatusQueued = "QUEUED"
