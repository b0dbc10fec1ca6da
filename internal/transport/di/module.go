package transportdi

import (
	"fmt"
	"log/slog"

	"go.uber.org/fx"

	"github.com/webitel/im-live-notify/config"
	"github.com/webitel/im-live-notify/internal/transport"
	"github.com/webitel/im-live-notify/internal/transport/sse"
	"github.com/webitel/im-live-notify/internal/transport/ws"
)

var Module = fx.Module("transport",
	fx.Provide(NewDriver),
)

// NewDriver selects the live channel driver named by transport.kind.
func NewDriver(cfg *config.Config, logger *slog.Logger) (transport.Driver, error) {
	kind, err := transport.ParseKind(cfg.Transport.Kind)
	if err != nil {
		return nil, err
	}

	switch kind {
	case transport.KindSSE:
		return sse.New(logger), nil
	case transport.KindWS:
		return ws.New(logger,
			ws.WithPingInterval(cfg.Transport.PingInterval),
			ws.WithWriteTimeout(cfg.Transport.WriteTimeout),
			ws.WithMaxAttempts(cfg.Transport.MaxReconnectAttempts),
		), nil
	}
	return nil, fmt.Errorf("%w: %s", transport.ErrUnsupported, kind)
}

