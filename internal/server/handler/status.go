package handler

import (
	"net/http"

	"github.com/alanyoungcy/betbridge/internal/pipeline"
)

// StatusSource reports the ingestor's progress.
type StatusSource interface {
	Status() pipeline.IngestStatus
}

// StatusHandler serves GET /api/status.
type StatusHandler struct {
	source  StatusSource
	symbol  string
	version string
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(source StatusSource, symbol, version string) *StatusHandler {
	return &StatusHandler{source: source, symbol: symbol, version: version}
}

// GetStatus responds with the ingestion state and watermark.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version": h.version,
		"symbol":  h.symbol,
		"ingest":  h.source.Status(),
	})
}
