package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/webitel/im-live-notify/config"
	"github.com/webitel/im-live-notify/internal/reconnect"
	"github.com/webitel/im-live-notify/internal/transport"
)

// Module composes the live-notification client. It expects a transport.Driver,
// a reconnect.TokenSource, an Alerter, a Recorder and a HistoryStore.
var Module = fx.Module(
	"service",

	fx.Provide(
		ProvideCoordinator,
		ProvideInbox,
	),

	// [LIFECYCLE] the channel lives exactly as long as the app
	fx.Invoke(func(lc fx.Lifecycle, c *Coordinator) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				c.Enable()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				c.Close()
				return nil
			},
		})
	}),
)

type CoordinatorParams struct {
	fx.In

	Config   *config.Config
	Driver   transport.Driver
	Tokens   reconnect.TokenSource
	Alerter  Alerter
	Recorder Recorder
	Logger   *slog.Logger
	Tracer   trace.Tracer `optional:"true"`
}

func ProvideCoordinator(p CoordinatorParams) *Coordinator {
	path := p.Config.API.StreamPath
	if p.Driver.Kind() == transport.KindWS {
		path = p.Config.API.SocketPath
	}

	opts := []reconnect.Option{
		reconnect.WithEndpoint(p.Config.API.BaseURL, path),
		reconnect.WithBackoff(reconnect.Backoff{
			Base:   p.Config.Reconnect.BaseDelay,
			Max:    p.Config.Reconnect.MaxDelay,
			Jitter: p.Config.Reconnect.Jitter,
		}),
		reconnect.WithHeartbeatTimeout(p.Config.Heartbeat.Timeout),
	}
	if p.Tracer != nil {
		opts = append(opts, reconnect.WithTracer(p.Tracer))
	}

	return NewCoordinator(p.Driver, p.Tokens, p.Alerter, p.Recorder, p.Logger, opts...)
}

func ProvideInbox(cfg *config.Config, store HistoryStore, c *Coordinator, logger *slog.Logger) *Inbox {
	return NewInbox(store, c, cfg.History.PageSize, logger)
}
