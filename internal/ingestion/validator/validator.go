// Package validator checks intake requests before analysis and returns
// per-field error details.
package validator

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/ingestion"
)

const (
	maxTitleLength = 1024
	maxBodyLength  = 1048576
	maxURLLength   = 2048
	maxSubjects    = 64
	maxLinks       = 1024
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	return strings.Join(parts, "; ")
}

func ValidateIngestRequest(req *ingestion.IngestRequest) error {
	errs := make(map[string]string)

	if req.DocID < 0 {
		errs["doc_id"] = "doc_id must not be negative"
	}
	title := strings.TrimSpace(req.Title)
	body := strings.TrimSpace(req.Body)
	if title == "" && body == "" {
		errs["body"] = "title or body is required"
	}
	if len(title) > maxTitleLength {
		errs["title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLength)
	}
	if len(body) > maxBodyLength {
		errs["body"] = fmt.Sprintf("body must be at most %d characters", maxBodyLength)
	}
	if req.URL != "" {
		if len(req.URL) > maxURLLength {
			errs["url"] = fmt.Sprintf("url must be at most %d characters", maxURLLength)
		} else if u, err := url.Parse(req.URL); err != nil || u.Host == "" {
			errs["url"] = "url must be absolute"
		}
	}
	if len(req.Subjects) > maxSubjects {
		errs["subjects"] = fmt.Sprintf("at most %d subjects", maxSubjects)
	}
	if len(req.Links) > maxLinks {
		errs["links"] = fmt.Sprintf("at most %d links", maxLinks)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
