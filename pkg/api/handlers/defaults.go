package handlers

import (
	"net/http"

	"github.com/sekuba/dvnstats-sub001/pkg/addr"
	"github.com/sekuba/dvnstats-sub001/pkg/store"
)

// DefaultsHandler serves the current per-route default library and ULN
// configuration, independent of any application override.
type DefaultsHandler struct {
	store store.Store
}

func NewDefaultsHandler(s store.Store) *DefaultsHandler {
	return &DefaultsHandler{store: s}
}

type defaultsResponse struct {
	Library *string     `json:"library,omitempty"`
	Uln     interface{} `json:"uln,omitempty"`
}

// Get handles GET /defaults/{chainId}/{srcEid}.
func (h *DefaultsHandler) Get(w http.ResponseWriter, r *http.Request) {
	chainID, ok := chainIDParam(w, r)
	if !ok {
		return
	}
	eid, ok := eidParam(w, r)
	if !ok {
		return
	}

	routeKey := addr.MakeRouteKey(chainID, eid)

	lib, err := h.store.GetDefaultReceiveLibrary(r.Context(), routeKey)
	if err != nil && err != store.ErrNotFound {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	uln, err := h.store.GetDefaultUlnConfig(r.Context(), routeKey)
	if err != nil && err != store.ErrNotFound {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if lib == nil && uln == nil {
		writeError(w, http.StatusNotFound, "no default configuration for this route")
		return
	}

	resp := defaultsResponse{}
	if lib != nil {
		resp.Library = &lib.Library
	}
	if uln != nil {
		resp.Uln = uln
	}
	JSON(w, http.StatusOK, resp)
}
