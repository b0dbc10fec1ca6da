package server

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/fx"

	"github.com/webitel/im-live-notify/config"
	"github.com/webitel/im-live-notify/internal/server/auth"
	"github.com/webitel/im-live-notify/internal/server/handler/rest"
	ssehandler "github.com/webitel/im-live-notify/internal/server/handler/sse"
	wshandler "github.com/webitel/im-live-notify/internal/server/handler/ws"
	"github.com/webitel/im-live-notify/internal/server/ingest"
	"github.com/webitel/im-live-notify/internal/server/registry"
	"github.com/webitel/im-live-notify/internal/server/store"
)

var Module = fx.Module("server",
	registry.Module,

	fx.Provide(
		ProvideStore,
		ProvideVerifier,
		ProvideBus,
		func(bus *ingest.Bus, logger *slog.Logger) ingest.Dispatcher {
			return ingest.NewDispatcher(bus.Publisher, logger)
		},
		func(s *store.SQLiteStore, hub registry.Hubber, logger *slog.Logger) *ingest.Handler {
			return ingest.NewHandler(s, hub, logger)
		},
		ProvideRouter,
		ProvideServer,
	),

	fx.Invoke(func(lc fx.Lifecycle, s *Server, logger *slog.Logger) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					defer close(done)
					if err := s.Run(ctx); err != nil {
						logger.Error("SERVER_FAILED", "err", err)
					}
				}()
				return nil
			},
			OnStop: func(stopCtx context.Context) error {
				cancel()
				select {
				case <-done:
					return nil
				case <-stopCtx.Done():
					return stopCtx.Err()
				}
			},
		})
	}),
)

func ProvideStore(lc fx.Lifecycle, cfg *config.Config) (*store.SQLiteStore, error) {
	s, err := store.Open(cfg.Server.DBPath)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(s.Close))
	return s, nil
}

func ProvideAuthenticator(cfg *config.Config) (*auth.Authenticator, error) {
	return auth.NewAuthenticator(cfg.Server.JWTSecret)
}

func ProvideVerifier(cfg *config.Config, logger *slog.Logger) (auth.Verifier, error) {
	a, err := ProvideAuthenticator(cfg)
	if err != nil {
		return nil, err
	}
	return auth.NewVerifierMiddleware(a, logger), nil
}

func ProvideBus(lc fx.Lifecycle, cfg *config.Config, wlogger watermill.LoggerAdapter) (*ingest.Bus, error) {
	bus, err := ingest.NewBus(cfg.Server.AMQPURL, wlogger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(bus.Close))
	return bus, nil
}

func ProvideRouter(bus *ingest.Bus, h *ingest.Handler, logger *slog.Logger, wlogger watermill.LoggerAdapter) (*message.Router, error) {
	return ingest.NewRouter(bus, h, logger, wlogger)
}

func ProvideServer(
	cfg *config.Config,
	hub *registry.Hub,
	s *store.SQLiteStore,
	d ingest.Dispatcher,
	v auth.Verifier,
	router *message.Router,
	logger *slog.Logger,
) *Server {
	mux := NewMux(cfg.API, Routes{
		Stream:   ssehandler.NewHandler(hub, logger, cfg.Server.HeartbeatInterval, nil),
		Socket:   wshandler.NewHandler(hub, logger, cfg.Server.HeartbeatInterval, cfg.Server.PingInterval, nil),
		History:  rest.NewHandler(s, d, logger),
		Verifier: v,
	})
	return New(cfg.Server.Addr, mux, router, hub, logger)
}
