package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/hubwatch/reputeer/internal/scoring"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// EventsHandler serves batch event ingestion.
type EventsHandler struct {
	processor *scoring.BatchProcessor
	logger    *zap.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(processor *scoring.BatchProcessor, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		processor: processor,
		logger:    logger.Named("rest_events"),
	}
}

// batchRequest is the ingestion payload from the upstream collector.
type batchRequest struct {
	Events []*scoring.Event `json:"events"`
}

// batchResponse carries one result per submitted event, in order.
type batchResponse struct {
	Results []*scoring.EventResult `json:"results"`
}

// ProcessBatch scores a batch of events and returns per-event results.
func (h *EventsHandler) ProcessBatch(w http.ResponseWriter, req bunrouter.Request) error {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return writeError(w, http.StatusBadRequest, "failed to read request body")
	}

	var batch batchRequest
	if err := sonic.Unmarshal(body, &batch); err != nil {
		return writeError(w, http.StatusBadRequest, "malformed JSON body")
	}

	results, err := h.processor.Process(req.Context(), batch.Events)
	if err != nil {
		if errors.Is(err, scoring.ErrBatchTooLarge) {
			return writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		}

		h.logger.Error("Batch processing failed", zap.Error(err))

		return writeError(w, http.StatusInternalServerError, "batch processing failed")
	}

	return writeJSON(w, http.StatusOK, batchResponse{Results: results})
}
