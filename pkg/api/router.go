// Package api implements the read-only REST projection over the derived
// entities: a concrete HTTP realization of downstream read access. The
// response envelope and per-endpoint handlers live in pkg/api/handlers,
// which this package wires into chi routes without importing back into it.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sekuba/dvnstats-sub001/internal/obslog"
	"github.com/sekuba/dvnstats-sub001/pkg/api/handlers"
	"github.com/sekuba/dvnstats-sub001/pkg/store"
)

// NewRouter builds the read-only REST API: health, resolved route
// configuration, packet history, application stats, and per-route
// defaults, all backed directly by s.
func NewRouter(s store.Store) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	health := handlers.NewHealthHandler()
	r.Get("/healthz", health.Liveness)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/healthz", http.StatusTemporaryRedirect)
	})

	config := handlers.NewConfigHandler(s)
	packets := handlers.NewPacketsHandler(s)
	stats := handlers.NewStatsHandler(s)
	defaults := handlers.NewDefaultsHandler(s)

	r.Route("/oapps/{oappId}", func(r chi.Router) {
		r.Get("/stats", stats.Get)
		r.Route("/routes/{srcEid}", func(r chi.Router) {
			r.Get("/config", config.Get)
			r.Get("/packets", packets.List)
		})
	})

	r.Get("/defaults/{chainId}/{srcEid}", defaults.Get)

	return r
}

// requestLogger logs every request at debug (start) and info (completion)
// level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		obslog.Debug("api request started", "request_id", requestID, "method", r.Method, "path", r.URL.Path)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		obslog.Info("api request completed",
			"request_id", requestID, "method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration", time.Since(start).String())
	})
}
