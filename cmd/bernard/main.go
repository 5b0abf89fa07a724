package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"

	"github.com/leviroth/bernard/config"
	"github.com/leviroth/bernard/engine"
	"github.com/leviroth/bernard/notify"
	"github.com/leviroth/bernard/reddit"
	"github.com/leviroth/bernard/store"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {
	app := cli.App{
		Name:    "bernard",
		Usage:   "moderator-report automation daemon",
		Version: versioninfo.Short(),
	}

	app.Commands = []*cli.Command{
		runCmd,
	}
	app.DefaultCommand = "run"

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the bot",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "config-dir",
			Usage:   "directory of per-subreddit rule files (<subreddit>.yaml)",
			Value:   "configs",
			EnvVars: []string{"BERNARD_CONFIG_DIR"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "sqlite://data/bernard/bernard.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			Usage:   "delay between report-queue poll cycles",
			Value:   30 * time.Second,
			EnvVars: []string{"BERNARD_POLL_INTERVAL"},
		},
		&cli.IntFlag{
			Name:    "metadata-every",
			Usage:   "refresh cached subreddit metadata every N cycles",
			Value:   20,
			EnvVars: []string{"BERNARD_METADATA_EVERY"},
		},
		&cli.StringFlag{
			Name:    "debug-listen",
			Usage:   "IP or address, and port, to listen on for metrics and debug APIs",
			Value:   ":2588",
			EnvVars: []string{"BERNARD_DEBUG_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "discord-webhook-url",
			Usage:   "forward warnings and errors to this Discord webhook",
			EnvVars: []string{"BERNARD_DISCORD_WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "reddit-api-host",
			Value:   "https://oauth.reddit.com",
			EnvVars: []string{"REDDIT_API_HOST"},
		},
		&cli.StringFlag{
			Name:    "reddit-site-host",
			Value:   "https://www.reddit.com",
			EnvVars: []string{"REDDIT_SITE_HOST"},
		},
		&cli.StringFlag{
			Name:     "reddit-token",
			Usage:    "OAuth bearer token for the bot account",
			Required: true,
			EnvVars:  []string{"REDDIT_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "reddit-user-agent",
			Value:   "bernard moderation bot (github.com/leviroth/bernard)",
			EnvVars: []string{"REDDIT_USER_AGENT"},
		},
		&cli.IntFlag{
			Name:    "reddit-requests-per-minute",
			Value:   60,
			EnvVars: []string{"REDDIT_REQUESTS_PER_MINUTE"},
		},
	},
	Action: func(cctx *cli.Context) error {
		var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
		if url := cctx.String("discord-webhook-url"); url != "" {
			handler = notify.NewDiscordHandler(handler, url, slog.LevelWarn)
		}
		logger := slog.New(handler)
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := store.SetupDatabase(cctx.String("database-url"), 40)
		if err != nil {
			return err
		}
		st := store.NewStore(db)
		if err := st.AutoMigrate(); err != nil {
			return err
		}

		client := reddit.NewClient(reddit.ClientConfig{
			APIHost:           cctx.String("reddit-api-host"),
			SiteHost:          cctx.String("reddit-site-host"),
			Token:             cctx.String("reddit-token"),
			UserAgent:         cctx.String("reddit-user-agent"),
			RequestsPerMinute: cctx.Int("reddit-requests-per-minute"),
			Logger:            logger,
		})

		browsers, err := config.LoadDirectory(ctx, cctx.String("config-dir"), config.Dependencies{
			Client: subredditOpener{client: client},
			Store:  st,
			Logger: logger,
		})
		if err != nil {
			return err
		}
		if len(browsers) == 0 {
			return cli.Exit("no subreddit configurations found", 1)
		}
		logger.Info("loaded", "subreddits", len(browsers))

		srv := &Server{store: st, logger: logger}
		go func() {
			if err := srv.RunAPI(cctx.String("debug-listen")); err != nil {
				logger.Error("debug server failed", "err", err)
			}
		}()

		interval := cctx.Duration("poll-interval")
		metadataEvery := cctx.Int("metadata-every")

		counter := 0
		for {
			for _, browser := range browsers {
				browser.Run(ctx)
				if ctx.Err() != nil {
					break
				}
			}
			counter++
			if counter >= metadataEvery {
				for _, browser := range browsers {
					if err := browser.RefreshMetadata(ctx); err != nil {
						logger.Error("failed to refresh subreddit metadata",
							"subreddit", browser.SubredditName(), "err", err)
					}
				}
				counter = 0
			}

			select {
			case <-ctx.Done():
				logger.Info("shutting down")
				return nil
			case <-time.After(interval):
			}
		}
	},
}

// subredditOpener adapts the concrete client to the loader's interface.
type subredditOpener struct {
	client *reddit.Client
}

func (o subredditOpener) Subreddit(name string) engine.SubredditClient {
	return o.client.Subreddit(name)
}
