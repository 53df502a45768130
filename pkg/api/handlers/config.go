package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sekuba/dvnstats-sub001/pkg/addr"
	"github.com/sekuba/dvnstats-sub001/pkg/store"
)

// ConfigHandler serves the current resolved OAppSecurityConfig for a route.
type ConfigHandler struct {
	store store.Store
}

func NewConfigHandler(s store.Store) *ConfigHandler {
	return &ConfigHandler{store: s}
}

// Get handles GET /oapps/{oappId}/routes/{srcEid}/config.
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	oAppID := chi.URLParam(r, "oappId")
	eid, ok := eidParam(w, r)
	if !ok {
		return
	}

	routeKey := addr.MakeOAppRouteKey(oAppID, eid)
	cfg, err := h.store.GetOAppSecurityConfig(r.Context(), routeKey)
	if err == store.ErrNotFound {
		writeError(w, http.StatusNotFound, "no resolved configuration for this route")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	JSON(w, http.StatusOK, cfg)
}
