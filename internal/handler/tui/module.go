package tui

import (
	"go.uber.org/fx"

	"github.com/webitel/im-live-notify/internal/service"
)

// Module replaces the log toast surface with the dashboard's.
var Module = fx.Module("tui",
	fx.Provide(
		func() *Alerter { return NewAlerter(nil) },
		func(a *Alerter) service.Alerter { return a },
		NewDashboard,
	),
)
