package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/fx"

	"github.com/webitel/im-live-notify/config"
	adapterdi "github.com/webitel/im-live-notify/internal/adapter/di"
	"github.com/webitel/im-live-notify/internal/adapter/credential"
	"github.com/webitel/im-live-notify/internal/adapter/history"
	"github.com/webitel/im-live-notify/internal/domain/event"
	"github.com/webitel/im-live-notify/internal/domain/model"
	"github.com/webitel/im-live-notify/internal/handler/tui"
	"github.com/webitel/im-live-notify/internal/server/auth"
	"github.com/webitel/im-live-notify/internal/service"
)

const (
	ServiceName      = "im-live-notify"
	ServiceNamespace = "webitel"

	lifecycleTimeout = 15 * time.Second
)

var (
	version        = "0.0.0"
	commit         = "hash"
	commitDate     = time.Now().String()
	branch         = "branch"
	buildTimestamp = ""
)

func Run() error {
	app := &cli.App{
		Name:    ServiceName,
		Usage:   "Live notification client and development push server",
		Version: fmt.Sprintf("%s (%s@%s, %s)", version, branch, commit, commitDate),
		Commands: []*cli.Command{
			listenCmd(),
			watchCmd(),
			inboxCmd(),
			tokenCmd(),
			serverCmd(),
		},
	}
	if buildTimestamp != "" {
		app.Version += " built " + buildTimestamp
	}

	return app.Run(os.Args)
}

// configFlag is for commands that parse their own flags; the others hand all
// arguments to config.LoadConfig.
var configFlag = &cli.StringFlag{
	Name:  "config_file",
	Usage: "Path to the configuration file",
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config_file"); path != "" {
		return config.LoadConfig([]string{"--config_file", path})
	}
	return config.LoadConfig(nil)
}

func listenCmd() *cli.Command {
	return &cli.Command{
		Name:            "listen",
		Aliases:         []string{"l"},
		Usage:           "Connect and log delivered notifications until interrupted",
		ArgsUsage:       "[--config_file path] [--transport.kind sse|ws] [...]",
		SkipFlagParsing: true,
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.Args().Slice())
			if err != nil {
				return err
			}

			app := NewClientApp(cfg, LogOutput{os.Stdout},
				fx.Provide(func(l *slog.Logger) service.Alerter { return service.NewLogAlerter(l) }),
				fx.Invoke(logDeliveries),
			)
			return runUntilSignal(c.Context, app)
		},
	}
}

func logDeliveries(coord *service.Coordinator, logger *slog.Logger) {
	coord.Subscribe(func(n model.Notification) {
		logger.Info("NOTIFICATION",
			"id", n.ID,
			"type", n.Type,
			"target", n.Target.Kind, "target_id", n.Target.ID,
			"message", n.Message,
			"unread", coord.UnreadCount(),
		)
	})
	coord.OnSystem(func(p event.SystemPayload) {
		logger.Info("SYSTEM_MESSAGE", "type", p.Type, "data", string(p.Data))
	})
}

func watchCmd() *cli.Command {
	return &cli.Command{
		Name:            "watch",
		Aliases:         []string{"w"},
		Usage:           "Connect and show a live terminal dashboard",
		SkipFlagParsing: true,
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.Args().Slice())
			if err != nil {
				return err
			}

			// the terminal belongs to the dashboard
			logPath := filepath.Join(os.TempDir(), ServiceName+"-watch.log")
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			defer logFile.Close()

			var dash *tui.Dashboard
			app := NewClientApp(cfg, LogOutput{logFile}, tui.Module, fx.Populate(&dash))
			if err := app.Err(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := start(app); err != nil {
				return err
			}
			runErr := dash.Run(ctx)
			return errors.Join(runErr, stopApp(app))
		},
	}
}

func inboxCmd() *cli.Command {
	withClient := func(fn func(c *cli.Context, client *history.Client) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.Log.Level)}))

			tokens, err := credential.New(cfg, logger)
			if err != nil {
				return err
			}
			client, err := adapterdi.ProvideHistory(cfg, tokens, logger)
			if err != nil {
				return err
			}
			return fn(c, client)
		}
	}

	return &cli.Command{
		Name:  "inbox",
		Usage: "Query and update the notification history",
		Flags: []cli.Flag{configFlag},
		Subcommands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List one page of notifications, newest first",
				ArgsUsage: "[cursor]",
				Flags: []cli.Flag{
					configFlag,
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "Page size"},
				},
				Action: withClient(func(c *cli.Context, client *history.Client) error {
					page, err := client.List(c.Context, c.Args().First(), c.Int("limit"))
					if err != nil {
						return err
					}

					w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "ID\tREAD\tTYPE\tCREATED\tMESSAGE")
					for _, n := range page.Items {
						fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%s\n",
							n.ID, n.IsRead, n.Type, n.CreatedAt.Local().Format(time.DateTime), n.Message)
					}
					if err := w.Flush(); err != nil {
						return err
					}
					if page.HasMore() {
						fmt.Fprintf(c.App.Writer, "\nnext cursor: %s\n", page.NextCursor)
					}
					return nil
				}),
			},
			{
				Name:      "read",
				Usage:     "Mark one notification as read",
				ArgsUsage: "<id>",
				Flags:     []cli.Flag{configFlag},
				Action: withClient(func(c *cli.Context, client *history.Client) error {
					id := c.Args().First()
					if id == "" {
						return errors.New("inbox read: missing notification id")
					}
					return client.MarkRead(c.Context, model.ID(id))
				}),
			},
			{
				Name:   "read-all",
				Usage:  "Mark every notification as read",
				Flags:  []cli.Flag{configFlag},
				Action: withClient(func(c *cli.Context, client *history.Client) error { return client.MarkAllRead(c.Context) }),
			},
			{
				Name:  "purge",
				Usage: "Delete every read notification",
				Flags: []cli.Flag{configFlag},
				Action: withClient(func(c *cli.Context, client *history.Client) error {
					n, err := client.DeleteRead(c.Context)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "deleted %d\n", n)
					return nil
				}),
			},
		},
	}
}

func tokenCmd() *cli.Command {
	return &cli.Command{
		Name:      "token",
		Usage:     "Mint a development access token for a user",
		ArgsUsage: "<user_id>",
		Flags: []cli.Flag{
			configFlag,
			&cli.BoolFlag{Name: "store", Usage: "Save the token to the configured credential store"},
			&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour, Usage: "Token lifetime"},
		},
		Action: func(c *cli.Context) error {
			userID := c.Args().First()
			if userID == "" {
				return errors.New("token: missing user id")
			}

			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			a, err := auth.NewAuthenticator(cfg.Server.JWTSecret, auth.WithTTL(c.Duration("ttl")))
			if err != nil {
				return err
			}
			token, err := a.Issue(userID)
			if err != nil {
				return err
			}

			if c.Bool("store") {
				store, err := credential.New(cfg, slog.New(slog.NewTextHandler(os.Stderr, nil)))
				if err != nil {
					return err
				}
				if err := store.Save(token); err != nil {
					return fmt.Errorf("token: save: %w", err)
				}
			}

			fmt.Fprintln(c.App.Writer, token)
			return nil
		},
	}
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:            "server",
		Aliases:         []string{"s"},
		Usage:           "Run the development push server",
		SkipFlagParsing: true,
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.Args().Slice())
			if err != nil {
				return err
			}
			return runUntilSignal(c.Context, NewServerApp(cfg, LogOutput{os.Stdout}))
		},
	}
}

func start(app *fx.App) error {
	ctx, cancel := context.WithTimeout(context.Background(), lifecycleTimeout)
	defer cancel()
	return app.Start(ctx)
}

func stopApp(app *fx.App) error {
	ctx, cancel := context.WithTimeout(context.Background(), lifecycleTimeout)
	defer cancel()
	return app.Stop(ctx)
}

func runUntilSignal(parent context.Context, app *fx.App) error {
	if err := app.Err(); err != nil {
		return err
	}
	if err := start(app); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	return stopApp(app)
}
