package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sekuba/dvnstats-sub001/pkg/addr"
	"github.com/sekuba/dvnstats-sub001/pkg/store"
)

const defaultPacketPageSize = 50

// PacketsHandler serves paginated PacketDelivered history for a route.
type PacketsHandler struct {
	store store.Store
}

func NewPacketsHandler(s store.Store) *PacketsHandler {
	return &PacketsHandler{store: s}
}

// packetsPage is the response body shape: a page of packets plus the
// cursor to request the next page with, empty once exhausted.
type packetsPage struct {
	Packets    interface{} `json:"packets"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// List handles GET /oapps/{oappId}/routes/{srcEid}/packets?cursor=&limit=.
func (h *PacketsHandler) List(w http.ResponseWriter, r *http.Request) {
	oAppID := chi.URLParam(r, "oappId")
	eid, ok := eidParam(w, r)
	if !ok {
		return
	}

	limit := defaultPacketPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	cursor := r.URL.Query().Get("cursor")

	routeKey := addr.MakeOAppRouteKey(oAppID, eid)
	packets, next, err := h.store.ListPacketDeliveredByRoute(r.Context(), routeKey, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	JSON(w, http.StatusOK, packetsPage{Packets: packets, NextCursor: next})
}
