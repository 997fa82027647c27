package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// GetHealthSnapshot — GET /api/v1/health/{processorId}
//
// Возвращает снимок, записанный последней репликой процессора.
func (h *Handler) GetHealthSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "processorId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid processor id")
		return
	}

	if h.snapshots == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "health snapshots not available")
		return
	}

	entry, stale, err := h.snapshots.Get(r.Context(), id)
	if err != nil {
		writeReadError(w, h.logger, err)
		return
	}

	writeData(w, HealthSnapshotResponse{
		Snapshot: *entry,
		Stale:    stale,
		Age:      time.Since(entry.LastUpdated),
	})
}
