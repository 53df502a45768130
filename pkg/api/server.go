package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sekuba/dvnstats-sub001/internal/obslog"
	"github.com/sekuba/dvnstats-sub001/pkg/config"
	"github.com/sekuba/dvnstats-sub001/pkg/store"
)

// Server is the read API's HTTP server, supporting graceful shutdown.
type Server struct {
	server       *http.Server
	cfg          config.APIConfig
	shutdownOnce sync.Once
}

// NewServer builds a Server for cfg, serving s through NewRouter.
func NewServer(cfg config.APIConfig, s store.Store) *Server {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	return &Server{
		cfg: cfg,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
			Handler:      NewRouter(s),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Start listens and blocks until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		obslog.Info("api server listening", "port", s.cfg.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errCh <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("api server failed: %w", err)
	}
}

// Stop gracefully shuts down the server. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if shutdownErr := s.server.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("api server shutdown: %w", shutdownErr)
			return
		}
		obslog.Info("api server stopped gracefully")
	})
	return err
}
