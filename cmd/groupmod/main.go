package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/groupmeg/groupmod/automod/floodstore"
	"github.com/groupmeg/groupmod/automod/platform/telegram"
	"github.com/groupmeg/groupmod/automod/schedule"
	"github.com/groupmeg/groupmod/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
	"gorm.io/plugin/opentelemetry/tracing"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "groupmod",
		Usage:   "group chat moderation daemon",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"GROUPMOD_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format: 'json' or 'text'",
			EnvVars: []string{"GROUPMOD_LOG_FORMAT", "LOG_FORMAT"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		migrateCmd,
	}

	return app.Run(args)
}

func configLogger(cctx *cli.Context) (*slog.Logger, error) {
	logger, err := cliutil.SetupSlog(cliutil.LogOptions{
		LogLevel:  cctx.String("log-level"),
		LogFormat: cctx.String("log-format"),
	})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

var databaseFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "database-url",
		Usage:   "database connection string (sqlite:// or postgres://)",
		Value:   "sqlite://data/groupmod/groupmod.db",
		EnvVars: []string{"DATABASE_URL"},
	},
	&cli.IntFlag{
		Name:    "max-db-connections",
		EnvVars: []string{"MAX_DB_CONNECTIONS"},
		Value:   20,
	},
	&cli.BoolFlag{
		Name:    "db-tracing",
		Usage:   "emit OTEL spans for database queries",
		EnvVars: []string{"GROUPMOD_DB_TRACING"},
	},
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the moderation service",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:    "telegram-token",
			Usage:   "Telegram bot token; leave empty to run without connecting (dry mode)",
			EnvVars: []string{"GROUPMOD_TELEGRAM_TOKEN", "BOT_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL, for shared flood windows, group policies, and the update offset",
			EnvVars: []string{"GROUPMOD_REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "policy-file",
			Usage:   "JSON file of group policies",
			EnvVars: []string{"GROUPMOD_POLICY_FILE"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for the admin HTTP API",
			Value:   ":3989",
			EnvVars: []string{"GROUPMOD_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3988",
			EnvVars: []string{"GROUPMOD_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "Slack webhook URL for posting moderation action notifications",
			EnvVars: []string{"GROUPMOD_SLACK_WEBHOOK_URL", "SLACK_WEBHOOK_URL"},
		},
		&cli.DurationFlag{
			Name:    "tick-interval",
			Usage:   "how often the scheduled post dispatcher checks for due posts",
			Value:   schedule.DefaultTickInterval,
			EnvVars: []string{"GROUPMOD_TICK_INTERVAL"},
		},
		&cli.DurationFlag{
			Name:    "flood-window",
			Value:   floodstore.DefaultWindow,
			EnvVars: []string{"GROUPMOD_FLOOD_WINDOW"},
		},
		&cli.IntFlag{
			Name:    "flood-limit",
			Usage:   "messages allowed per user within the flood window",
			Value:   floodstore.DefaultLimit,
			EnvVars: []string{"GROUPMOD_FLOOD_LIMIT"},
		},
		&cli.DurationFlag{
			Name:    "policy-cache-ttl",
			Value:   time.Minute,
			EnvVars: []string{"GROUPMOD_POLICY_CACHE_TTL"},
		},
	}, databaseFlags...),
	Action: func(cctx *cli.Context) error {
		logger, err := configLogger(cctx)
		if err != nil {
			return err
		}

		shutdownOTEL := configOTEL("groupmod")
		defer shutdownOTEL()

		db, err := cliutil.SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"))
		if err != nil {
			return err
		}
		if cctx.Bool("db-tracing") {
			if err := db.Use(tracing.NewPlugin()); err != nil {
				return err
			}
		}

		tg, err := telegram.NewClient(telegram.Config{
			Token: cctx.String("telegram-token"),
		}, logger)
		if err != nil {
			return fmt.Errorf("connecting to telegram: %w", err)
		}

		srv, err := NewServer(
			db,
			tg,
			tg,
			Config{
				Logger:          logger,
				RedisURL:        cctx.String("redis-url"),
				PolicyFile:      cctx.String("policy-file"),
				Bind:            cctx.String("bind"),
				SlackWebhookURL: cctx.String("slack-webhook-url"),
				TickInterval:    cctx.Duration("tick-interval"),
				FloodWindow:     cctx.Duration("flood-window"),
				FloodLimit:      cctx.Int("flood-limit"),
				PolicyCacheTTL:  cctx.Duration("policy-cache-ttl"),
			},
		)
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := srv.Run(ctx, tg); err != nil {
			return fmt.Errorf("failed to run moderation service: %w", err)
		}
		return nil
	},
}

var migrateCmd = &cli.Command{
	Name:  "migrate",
	Usage: "create or update database tables, then exit",
	Flags: databaseFlags,
	Action: func(cctx *cli.Context) error {
		logger, err := configLogger(cctx)
		if err != nil {
			return err
		}
		db, err := cliutil.SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"))
		if err != nil {
			return err
		}
		if err := migrate(db); err != nil {
			return err
		}
		logger.Info("database migrated")
		return nil
	},
}
