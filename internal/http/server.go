package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"beam/internal/config"
)

// Server wraps the stdlib server with graceful shutdown.
type Server struct {
	srv *http.Server
	cfg config.HTTPConfig
	log zerolog.Logger
}

func NewServer(handler http.Handler, cfg config.HTTPConfig, log zerolog.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:    cfg.Addr,
			Handler: handler,
		},
		cfg: cfg,
		log: log,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.log.Info().Msg("http server shutting down")
	return s.srv.Shutdown(shutdownCtx)
}
