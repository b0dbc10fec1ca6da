package adapterdi

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/webitel/im-live-notify/config"
	"github.com/webitel/im-live-notify/internal/adapter/credential"
	"github.com/webitel/im-live-notify/internal/adapter/history"
	"github.com/webitel/im-live-notify/internal/adapter/metrics"
	"github.com/webitel/im-live-notify/internal/reconnect"
	"github.com/webitel/im-live-notify/internal/service"
)

var Module = fx.Module(
	"client_adapters",

	fx.Provide(
		credential.New,
		func(s credential.Store) reconnect.TokenSource { return s },
		ProvideHistory,
		func(c *history.Client) service.HistoryStore { return c },
		metrics.NewRecorder,
		func(r *metrics.Recorder) service.Recorder { return r },
	),

	// [LIFECYCLE] /metrics lives as long as the app when metrics.addr is set
	fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, r *metrics.Recorder, logger *slog.Logger) {
		if cfg.Metrics.Addr == "" {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					if err := r.Serve(ctx, cfg.Metrics.Addr, logger); err != nil {
						logger.Error("[METRICS] server failed", slog.Any("err", err))
					}
				}()
				return nil
			},
			OnStop: func(context.Context) error {
				cancel()
				return nil
			},
		})
	}),
)

func ProvideHistory(cfg *config.Config, tokens reconnect.TokenSource, logger *slog.Logger) (*history.Client, error) {
	b := cfg.History.Breaker
	return history.New(cfg.API.BaseURL, cfg.API.HistoryPath, cfg.API.Timeout, tokens, history.BreakerSettings{
		MaxRequests:  b.MaxRequests,
		Interval:     b.Interval,
		Timeout:      b.Timeout,
		FailureRatio: b.FailureRatio,
		MinRequests:  b.MinRequests,
	}, logger)
}
