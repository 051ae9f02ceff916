// Package consumer reads journal entries from Kafka and appends them to the
// indexer engine.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/journal"
	apperrors "github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/kafka"
)

// Appender is the engine side of the pipeline.
type Appender interface {
	Append(entry journal.Entry) error
}

// HandleMessage returns a Kafka MessageHandler that appends every journal
// entry to a. Undecodable or invalid entries are logged and skipped so one
// bad record cannot stall the partition; write failures leave the message
// uncommitted.
func HandleMessage(a Appender) kafka.MessageHandler {
	logger := slog.Default().With("component", "journal-consumer")
	return func(ctx context.Context, msg kafka.Message) error {
		entry, err := kafka.DecodeJSON[journal.Entry](msg.Value)
		if err != nil {
			logger.Error("failed to decode journal entry",
				"error", err,
				"key", string(msg.Key),
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
			return nil
		}
		if err := a.Append(entry); err != nil {
			if errors.Is(err, apperrors.ErrInvalidInput) {
				logger.Warn("skipping invalid journal entry", "doc_id", entry.DocID, "error", err)
				return nil
			}
			return fmt.Errorf("appending doc %d: %w", entry.DocID, err)
		}
		logger.Debug("journal entry appended", "doc_id", entry.DocID, "terms", len(entry.Terms))
		return nil
	}
}
