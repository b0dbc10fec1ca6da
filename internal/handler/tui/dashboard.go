// Package tui renders the live channel as a terminal dashboard.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/webitel/im-live-notify/internal/domain/model"
	"github.com/webitel/im-live-notify/internal/service"
)

const (
	refreshInterval = 500 * time.Millisecond
	commandTimeout  = 10 * time.Second
	help            = "q quit · j/k move · enter read · a read all · d delete read · c connect/disconnect · h load history"
)

type Dashboard struct {
	coord   *service.Coordinator
	inbox   *service.Inbox
	alerter *Alerter
	logger  *slog.Logger

	status *widgets.Paragraph
	list   *widgets.List
	toasts *widgets.List
	footer *widgets.Paragraph
	grid   *ui.Grid

	items   []model.Notification
	enabled bool
}

func NewDashboard(coord *service.Coordinator, inbox *service.Inbox, alerter *Alerter, logger *slog.Logger) *Dashboard {
	return &Dashboard{coord: coord, inbox: inbox, alerter: alerter, logger: logger, enabled: true}
}

// Run owns the terminal until the user quits or ctx ends.
func (d *Dashboard) Run(ctx context.Context) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("tui: init terminal: %w", err)
	}
	defer ui.Close()

	d.build()

	// new notifications arrive on the connection loop; only signal here
	redraw := make(chan struct{}, 1)
	cancel := d.coord.Subscribe(func(model.Notification) {
		select {
		case redraw <- struct{}{}:
		default:
		}
	})
	defer cancel()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	events := ui.PollEvents()

	d.render()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-redraw:
		case <-d.alerter.Changed():
		case e := <-events:
			if quit := d.handle(ctx, e); quit {
				return nil
			}
		}
		d.render()
	}
}

func (d *Dashboard) build() {
	d.status = widgets.NewParagraph()
	d.status.Title = " Live channel "

	d.list = widgets.NewList()
	d.list.Title = " Notifications "
	d.list.SelectedRowStyle = ui.NewStyle(ui.ColorBlack, ui.ColorCyan)

	d.toasts = widgets.NewList()
	d.toasts.Title = " Toasts "

	d.footer = widgets.NewParagraph()
	d.footer.Text = help
	d.footer.Border = false

	d.grid = ui.NewGrid()
	d.grid.Set(
		ui.NewRow(0.15, ui.NewCol(1.0, d.status)),
		ui.NewRow(0.55, ui.NewCol(1.0, d.list)),
		ui.NewRow(0.25, ui.NewCol(1.0, d.toasts)),
		ui.NewRow(0.05, ui.NewCol(1.0, d.footer)),
	)
	d.resize()
}

func (d *Dashboard) resize() {
	w, h := ui.TerminalDimensions()
	d.grid.SetRect(0, 0, w, h)
}

func (d *Dashboard) render() {
	d.status.Text = formatStatus(d.coord.Snapshot(), d.coord.UnreadCount(), time.Now())

	d.items = d.coord.Notifications()
	rows := make([]string, len(d.items))
	for i, n := range d.items {
		rows[i] = formatNotification(n)
	}
	d.list.Rows = rows
	if d.list.SelectedRow >= len(rows) {
		d.list.SelectedRow = max(len(rows)-1, 0)
	}

	toasts := d.alerter.Toasts()
	lines := make([]string, len(toasts))
	for i, t := range toasts {
		lines[i] = formatToast(t)
	}
	d.toasts.Rows = lines

	ui.Render(d.grid)
}

func (d *Dashboard) handle(ctx context.Context, e ui.Event) (quit bool) {
	switch e.ID {
	case "q", "<C-c>":
		return true
	case "<Resize>":
		d.resize()
		ui.Clear()
	case "j", "<Down>":
		if len(d.list.Rows) > 0 {
			d.list.ScrollDown()
		}
	case "k", "<Up>":
		if len(d.list.Rows) > 0 {
			d.list.ScrollUp()
		}
	case "<Enter>":
		if row := d.list.SelectedRow; row < len(d.items) {
			d.command(ctx, "mark read", func(ctx context.Context) error {
				return d.inbox.MarkRead(ctx, d.items[row].ID)
			})
		}
	case "a":
		d.command(ctx, "mark all read", d.inbox.MarkAllRead)
	case "d":
		d.command(ctx, "delete read", func(ctx context.Context) error {
			_, err := d.inbox.DeleteRead(ctx)
			return err
		})
	case "h":
		d.command(ctx, "load history", func(ctx context.Context) error {
			_, err := d.inbox.LoadAll(ctx, 5)
			return err
		})
	case "c":
		if d.enabled {
			d.coord.Disable()
			d.alerter.Info("Live notifications turned off")
		} else {
			d.coord.Enable()
		}
		d.enabled = !d.enabled
	}
	return false
}

// command runs a REST-backed action; failures become toasts and leave the
// cache untouched.
func (d *Dashboard) command(ctx context.Context, name string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			d.logger.Warn("[TUI] command failed", slog.String("command", name), slog.Any("err", err))
			d.alerter.Error("Could not "+name, err)
			return
		}
		d.alerter.Info("Done: " + name)
	}()
}
