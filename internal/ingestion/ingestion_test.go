package ingestion_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/journal"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/lexicon"
	apperrors "github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	events []kafka.Event
	err    error
}

func (c *captured) Publish(_ context.Context, events ...kafka.Event) error {
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, events...)
	return nil
}

func TestValidateIngestRequest(t *testing.T) {
	tests := []struct {
		name   string
		req    ingestion.IngestRequest
		fields []string
	}{
		{"valid", ingestion.IngestRequest{DocID: 1, Title: "Go", URL: "https://go.dev/doc"}, nil},
		{"body only", ingestion.IngestRequest{DocID: 2, Body: "text"}, nil},
		{"empty", ingestion.IngestRequest{DocID: 3}, []string{"body"}},
		{"negative id", ingestion.IngestRequest{DocID: -1, Body: "x"}, []string{"doc_id"}},
		{"relative url", ingestion.IngestRequest{DocID: 4, Body: "x", URL: "/docs"}, []string{"url"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateIngestRequest(&tt.req)
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			var verr *validator.ValidationError
			require.ErrorAs(t, err, &verr)
			for _, f := range tt.fields {
				assert.Contains(t, verr.Fields, f)
			}
		})
	}
}

func TestPublisherPublishesJournalEntry(t *testing.T) {
	sink := &captured{}
	pub := publisher.New(sink)
	resp, err := pub.Ingest(context.Background(), &ingestion.IngestRequest{DocID: 9, Title: "Go channels", Body: "buffered channels"})
	require.NoError(t, err)
	assert.Equal(t, ingestion.StatusQueued, resp.Status)
	assert.Equal(t, 3, resp.Terms)

	require.Len(t, sink.events, 1)
	assert.Equal(t, "9", sink.events[0].Key)
	entry, ok := sink.events[0].Value.(journal.Entry)
	require.True(t, ok)
	assert.Equal(t, lexicon.Analyze(lexicon.Document{DocID: 9, Title: "Go channels", Body: "buffered channels"}), entry)
}

func TestPublisherRejectsDocumentsWithoutTerms(t *testing.T) {
	pub := publisher.New(&captured{})
	_, err := pub.Ingest(context.Background(), &ingestion.IngestRequest{DocID: 1, Body: "the a of"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func post(h *handler.Handler, target string, body any) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.Register(mux)
	data, _ := json.Marshal(body)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, target, bytes.NewReader(data)))
	return rec
}

func TestHandler(t *testing.T) {
	sink := &captured{}
	h := handler.New(publisher.New(sink))

	rec := post(h, "/api/v1/documents", ingestion.IngestRequest{DocID: 1, Body: "rust ownership"})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = post(h, "/api/v1/documents", ingestion.IngestRequest{DocID: 2})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation failed")

	rec = post(h, "/api/v1/documents", ingestion.IngestRequest{DocID: 3, Body: "the"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(h, "/api/v1/documents/batch", []ingestion.IngestRequest{
		{DocID: 4, Body: "go"},
		{DocID: 5, Body: "java"},
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, sink.events, 3)

	rec = post(h, "/api/v1/documents/batch", []ingestion.IngestRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	sink.err = errors.New("broker down")
	rec = post(h, "/api/v1/documents", ingestion.IngestRequest{DocID: 6, Body: "go"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
