package cmd

import (
	"go.uber.org/fx"

	"github.com/webitel/im-live-notify/config"
	adapterdi "github.com/webitel/im-live-notify/internal/adapter/di"
	"github.com/webitel/im-live-notify/internal/server"
	"github.com/webitel/im-live-notify/internal/service"
	transportdi "github.com/webitel/im-live-notify/internal/transport/di"
)

func common(cfg *config.Config, out LogOutput) fx.Option {
	return fx.Options(
		fx.Supply(cfg, out),
		fx.Provide(
			ProvideLogger,
			ProvideTracer,
		),
		fx.WithLogger(ProvideFxLogger),
	)
}

// NewClientApp composes the live-notification client. surface provides the
// service.Alerter and whatever drives the app (listen printer, dashboard).
func NewClientApp(cfg *config.Config, out LogOutput, surface ...fx.Option) *fx.App {
	return fx.New(
		common(cfg, out),
		adapterdi.Module,
		transportdi.Module,
		service.Module,
		fx.Options(surface...),
	)
}

func NewServerApp(cfg *config.Config, out LogOutput) *fx.App {
	return fx.New(
		common(cfg, out),
		fx.Provide(ProvideWatermillLogger),
		server.Module,
	)
}
