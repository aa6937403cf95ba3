package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type Handler struct {
	stats  *ProcessingStats
	logger *slog.Logger
}

func NewHandler(stats *ProcessingStats) *Handler {
	return &Handler{
		stats:  stats,
		logger: slog.Default().With("component", "processing-stats-handler"),
	}
}

// Stats serves the processing statistics snapshot.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	snap := h.stats.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		h.logger.Error("failed to write processing stats", "error", err)
	}
}
