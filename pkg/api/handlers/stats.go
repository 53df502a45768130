package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sekuba/dvnstats-sub001/pkg/store"
)

// StatsHandler serves an application's aggregate packet counters.
type StatsHandler struct {
	store store.Store
}

func NewStatsHandler(s store.Store) *StatsHandler {
	return &StatsHandler{store: s}
}

// Get handles GET /oapps/{oappId}/stats.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	oAppID := chi.URLParam(r, "oappId")

	stats, err := h.store.GetOAppStats(r.Context(), oAppID)
	if err == store.ErrNotFound {
		writeError(w, http.StatusNotFound, "no stats recorded for this application")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	JSON(w, http.StatusOK, stats)
}
