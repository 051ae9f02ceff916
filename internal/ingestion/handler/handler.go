package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/logger"
)

const (
	maxRequestBytes = 8 << 20
	maxBatch        = 500
)

type Ingester interface {
	Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error)
}

type Handler struct {
	ingester Ingester
	logger   *slog.Logger
}

func New(ing Ingester) *Handler {
	return &Handler{
		ingester: ing,
		logger:   slog.Default().With("component", "ingestion-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/documents", h.Ingest)
	mux.HandleFunc("POST /api/v1/documents/batch", h.IngestBatch)
}

func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var req ingestion.IngestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateIngestRequest(&req); err != nil {
		h.writeValidation(w, err)
		return
	}

	resp, err := h.ingester.Ingest(ctx, &req)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("ingestion failed", "doc_id", req.DocID, "error", err, "status_code", statusCode)
		h.writeError(w, statusCode, err.Error())
		return
	}
	log.Info("document ingested", "doc_id", resp.DocID, "terms", resp.Terms)
	h.writeJSON(w, http.StatusAccepted, resp)
}

// IngestBatch accepts a JSON array of documents. Every document is
// validated before any is published; the batch is all-or-nothing only up
// to validation.
func (h *Handler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var reqs []ingestion.IngestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&reqs); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(reqs) == 0 || len(reqs) > maxBatch {
		h.writeError(w, http.StatusBadRequest, "batch must hold between 1 and 500 documents")
		return
	}
	for i := range reqs {
		if err := validator.ValidateIngestRequest(&reqs[i]); err != nil {
			h.writeValidation(w, err)
			return
		}
	}

	accepted := make([]*ingestion.IngestResponse, 0, len(reqs))
	for i := range reqs {
		resp, err := h.ingester.Ingest(ctx, &reqs[i])
		if err != nil {
			statusCode := apperrors.HTTPStatusCode(err)
			log.Error("batch ingestion stopped", "doc_id", reqs[i].DocID, "accepted", len(accepted), "error", err)
			h.writeJSON(w, statusCode, map[string]any{
				"error":    err.Error(),
				"accepted": accepted,
			})
			return
		}
		accepted = append(accepted, resp)
	}
	log.Info("batch ingested", "documents", len(accepted))
	h.writeJSON(w, http.StatusAccepted, map[string]any{"accepted": accepted})
}

func (h *Handler) writeValidation(w http.ResponseWriter, err error) {
	var validationErr *validator.ValidationError
	if errors.As(err, &validationErr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": validationErr.Fields,
		})
		return
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
