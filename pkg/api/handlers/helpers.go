package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse(msg))
}

// eidParam parses the {srcEid} path parameter, writing a 400 response and
// returning ok=false on failure.
func eidParam(w http.ResponseWriter, r *http.Request) (eid int64, ok bool) {
	raw := chi.URLParam(r, "srcEid")
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid srcEid")
		return 0, false
	}
	return n, true
}

// chainIDParam parses the {chainId} path parameter.
func chainIDParam(w http.ResponseWriter, r *http.Request) (chainID int64, ok bool) {
	raw := chi.URLParam(r, "chainId")
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chainId")
		return 0, false
	}
	return n, true
}
