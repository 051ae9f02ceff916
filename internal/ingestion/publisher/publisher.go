// Package publisher analyzes intake documents into journal entries and
// publishes them to the journal topic the indexer consumes.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/lexicon"
	apperrors "github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/kafka"
)

type Publisher struct {
	producer kafka.Publisher
	logger   *slog.Logger
}

func New(producer kafka.Publisher) *Publisher {
	return &Publisher{
		producer: producer,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Ingest analyzes the document and publishes its journal entry keyed by
// document ID, so updates to one document stay ordered on one partition.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	entry := lexicon.Analyze(req.Document())
	if len(entry.Terms) == 0 {
		return nil, apperrors.Invalidf("document %d has no indexable terms", req.DocID)
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	event := kafka.Event{Key: strconv.FormatInt(entry.DocID, 10), Value: entry}
	if err := p.producer.Publish(ctx, event); err != nil {
		return nil, fmt.Errorf("publishing journal entry for doc %d: %w", entry.DocID, err)
	}
	p.logger.Debug("journal entry published", "doc_id", entry.DocID, "terms", len(entry.Terms))
	return &ingestion.IngestResponse{
		DocID:  entry.DocID,
		Terms:  len(entry.Terms),
		Status: ingestion.StatusQueued,
	}, nil
}
