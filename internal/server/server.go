// Package server is the development push server: the other side of the live
// channel, the history API and the ingest pipeline in one process.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/webitel/im-live-notify/config"
	"github.com/webitel/im-live-notify/internal/server/auth"
	"github.com/webitel/im-live-notify/internal/server/handler/rest"
	"github.com/webitel/im-live-notify/internal/server/registry"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	http   *http.Server
	router *message.Router
	hub    registry.Hubber
	logger *slog.Logger
}

// Routes holds the endpoint handlers of the HTTP surface.
type Routes struct {
	Stream   http.Handler
	Socket   http.Handler
	History  *rest.Handler
	Verifier auth.Verifier
}

// NewMux builds the HTTP router. Every route except the health check requires
// an access token.
func NewMux(cfg config.APIConfig, routes Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(routes.Verifier))
		r.Get(cfg.StreamPath, routes.Stream.ServeHTTP)
		r.Get(cfg.SocketPath, routes.Socket.ServeHTTP)
		routes.History.Register(r, cfg.HistoryPath)
	})
	return r
}

func New(addr string, mux http.Handler, router *message.Router, hub registry.Hubber, logger *slog.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		router: router,
		hub:    hub,
		logger: logger,
	}
}

// Run serves HTTP and consumes the ingest topic until ctx ends or either
// side fails.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.router.Run(ctx); err != nil {
			return fmt.Errorf("ingest router: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-s.router.Running():
		case <-ctx.Done():
			return nil
		}

		s.logger.Info("SERVER_LISTENING", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		// [DRAIN] ends open streams so Shutdown does not wait on them
		s.hub.Shutdown()

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.http.Shutdown(sctx)
	})

	return g.Wait()
}
