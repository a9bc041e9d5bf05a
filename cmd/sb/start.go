package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/bot"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/dashboard"
	"github.com/zulandar/switchboard/internal/db"
	"github.com/zulandar/switchboard/internal/dialog"
	"github.com/zulandar/switchboard/internal/handoff"
	"github.com/zulandar/switchboard/internal/logger"
	"github.com/zulandar/switchboard/internal/messenger"
	"github.com/zulandar/switchboard/internal/messenger/discord"
	"github.com/zulandar/switchboard/internal/messenger/slack"
	"github.com/zulandar/switchboard/internal/messenger/telegram"
	"github.com/zulandar/switchboard/internal/store"
)

func newStartCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the Switchboard bot",
		Long:  "Connects to the configured messenger and relays chats between users and the manager until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	return cmd
}

func runStart(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	log := logger.Component("sb")

	token, err := cfg.PlatformToken()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	gormDB, err := db.Init(cfg.Database)
	if err != nil {
		return err
	}
	st := store.New(gormDB)

	adapter, err := createAdapter(cfg, token)
	if err != nil {
		return err
	}
	notifier := messenger.NewNotifier(adapter)

	mirror, err := createMirror(cfg)
	if err != nil {
		return err
	}

	sessions, closeSessions, err := createSessions(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSessions()

	engine, err := handoff.New(handoff.Opts{
		Store:    st,
		Notifier: notifier,
		Managers: cfg.Managers,
		Mirror:   mirror,
	})
	if err != nil {
		return err
	}
	controller, err := dialog.NewController(dialog.Opts{
		Engine:   engine,
		Sessions: sessions,
		Notifier: notifier,
	})
	if err != nil {
		return err
	}

	daemon, err := bot.NewDaemon(bot.DaemonOpts{
		Config:     cfg,
		Adapter:    adapter,
		Controller: controller,
		Store:      st,
		Out:        cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	if cfg.Admin.Port > 0 {
		go func() {
			err := dashboard.Start(ctx, dashboard.StartOpts{
				Store: st,
				Port:  cfg.Admin.Port,
				Out:   cmd.OutOrStdout(),
			})
			if err != nil {
				log.Error("admin api stopped", "error", err)
			}
		}()
	}

	return daemon.Run(ctx)
}

// createAdapter builds a platform adapter from the config.
func createAdapter(cfg *config.Config, token string) (messenger.Adapter, error) {
	switch cfg.Platform {
	case "telegram":
		return telegram.New(telegram.AdapterOpts{
			Token:       token,
			PollTimeout: cfg.Telegram.PollTimeoutSec,
			RatePerSec:  cfg.Telegram.RatePerSec,
		})
	case "discord":
		return discord.New(discord.AdapterOpts{BotToken: token})
	default:
		return nil, fmt.Errorf("start: unsupported platform %q", cfg.Platform)
	}
}

// createMirror returns the Slack mirror, or nil when no webhook is configured.
func createMirror(cfg *config.Config) (handoff.Mirror, error) {
	url := cfg.SlackWebhookURL()
	if url == "" {
		return nil, nil
	}
	return slack.New(slack.MirrorOpts{WebhookURL: url})
}

// createSessions builds the dialog session store selected by config. The
// returned func releases it.
func createSessions(ctx context.Context, cfg *config.Config) (dialog.SessionStore, func(), error) {
	if cfg.Sessions.Backend != "redis" {
		return dialog.NewMemoryStore(), func() {}, nil
	}
	ttl := time.Duration(cfg.Sessions.TTLHours) * time.Hour
	rs, err := dialog.NewRedisStore(ctx, cfg.Sessions.RedisURL, ttl)
	if err != nil {
		return nil, nil, err
	}
	return rs, func() { rs.Close() }, nil
}
