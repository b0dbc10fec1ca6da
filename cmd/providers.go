package cmd

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/webitel/im-live-notify/config"
)

// LogOutput is where the local log handler writes.
type LogOutput struct {
	io.Writer
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// ProvideLogger builds the process logger. The level follows the config file
// while the process runs.
func ProvideLogger(cfg *config.Config, out LogOutput) *slog.Logger {
	if cfg.Log.Otel {
		return otelslog.NewLogger(ServiceName)
	}

	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Log.Level))

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Log.Format == "text" {
		h = slog.NewTextHandler(out, opts)
	} else {
		h = slog.NewJSONHandler(out, opts)
	}
	logger := slog.New(h).With(slog.String("service", ServiceName))

	cfg.Watch(func(next *config.Config) {
		lvl := parseLevel(next.Log.Level)
		if lvl != level.Level() {
			level.Set(lvl)
			logger.Info("LOG_LEVEL_CHANGED", "level", lvl.String())
		}
	})
	return logger
}

func ProvideFxLogger(logger *slog.Logger) fxevent.Logger {
	l := &fxevent.SlogLogger{Logger: logger}
	l.UseLogLevel(slog.LevelDebug)
	return l
}

func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger)
}

// ProvideTracer installs the SDK tracer provider as the global one and
// returns the tracer used for connection attempts.
func ProvideTracer(lc fx.Lifecycle) trace.Tracer {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(resource.NewWithAttributes("",
			attribute.String("service.name", ServiceName),
			attribute.String("service.namespace", ServiceNamespace),
			attribute.String("service.version", version),
		)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)
	otel.SetTracerProvider(tp)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
	return tp.Tracer(ServiceName)
}
