// Package bot runs the Switchboard process: it pumps messenger traffic into
// the dialog controller and schedules the manager digest.
package bot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/dialog"
	"github.com/zulandar/switchboard/internal/logger"
	"github.com/zulandar/switchboard/internal/messenger"
	"github.com/zulandar/switchboard/internal/store"
)

// StatsSource provides the chat activity figures the digest reports.
type StatsSource interface {
	Stats(ctx context.Context, since time.Time) (store.Stats, error)
}

// Daemon is the main bot process. It connects to a chat platform via an
// Adapter and hands inbound messages to the Controller one at a time.
type Daemon struct {
	cfg        *config.Config
	adapter    messenger.Adapter
	controller *dialog.Controller
	stats      StatsSource
	log        *slog.Logger
	out        io.Writer
}

// DaemonOpts holds parameters for creating a new Daemon.
type DaemonOpts struct {
	Config     *config.Config
	Adapter    messenger.Adapter
	Controller *dialog.Controller
	Store      StatsSource // optional; required only when digest.cron is set
	Logger     *slog.Logger
	Out        io.Writer // defaults to os.Stdout
}

// NewDaemon creates a Daemon with the given options.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bot: config is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("bot: adapter is required")
	}
	if opts.Controller == nil {
		return nil, fmt.Errorf("bot: controller is required")
	}
	if expr := opts.Config.Digest.Cron; expr != "" {
		if opts.Store == nil {
			return nil, fmt.Errorf("bot: store is required when digest.cron is set")
		}
		if err := ValidateCron(expr); err != nil {
			return nil, err
		}
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	log := opts.Logger
	if log == nil {
		log = logger.Component("bot")
	}
	return &Daemon{
		cfg:        opts.Config,
		adapter:    opts.Adapter,
		controller: opts.Controller,
		stats:      opts.Store,
		log:        log,
		out:        out,
	}, nil
}

// Run connects the adapter, starts the digest schedule and blocks until the
// context is cancelled or the adapter closes its inbound channel. On
// shutdown it closes the adapter.
func (d *Daemon) Run(ctx context.Context) error {
	fmt.Fprintf(d.out, "Switchboard connecting to %s...\n", d.cfg.Platform)
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("bot: connect: %w", err)
	}

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bot: listen: %w", err)
	}

	sched, err := d.startDigest(ctx)
	if err != nil {
		d.adapter.Close()
		return err
	}
	if sched != nil {
		defer func() { <-sched.Stop().Done() }()
	}

	fmt.Fprintf(d.out, "Switchboard online\n")

	// Main event loop: one message at a time, so handler logic for
	// different messages never runs in parallel.
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(d.out, "Switchboard shutting down...\n")
			if err := d.adapter.Close(); err != nil {
				d.log.Error("close adapter", "error", err)
			}
			fmt.Fprintf(d.out, "Switchboard stopped\n")
			return nil

		case msg, ok := <-inbound:
			if !ok {
				fmt.Fprintf(d.out, "Switchboard inbound channel closed\n")
				return nil
			}
			d.handle(ctx, msg)
		}
	}
}

func (d *Daemon) handle(ctx context.Context, msg messenger.InboundMessage) {
	d.log.Debug("inbound", "platform", msg.Platform, "from", msg.UserID)
	d.controller.Handle(ctx, dialog.Inbound{
		SenderID:  msg.UserID,
		FirstName: msg.FirstName,
		LastName:  msg.LastName,
		Username:  msg.Username,
		Phone:     msg.Phone,
		Text:      msg.Text,
	})
}

// startDigest schedules the manager digest. It returns nil when no cron
// expression is configured.
func (d *Daemon) startDigest(ctx context.Context) (*cron.Cron, error) {
	expr := d.cfg.Digest.Cron
	if expr == "" {
		return nil, nil
	}
	window := time.Duration(d.cfg.Digest.WindowHours) * time.Hour
	sched := cron.New(cron.WithParser(cronParser))
	if _, err := sched.AddFunc(expr, func() { d.fireDigest(ctx, window) }); err != nil {
		return nil, fmt.Errorf("bot: digest cron %q: %w", expr, err)
	}
	sched.Start()
	d.log.Info("digest scheduled", "cron", expr, "window", window)
	return sched, nil
}

// fireDigest builds and sends one digest to the primary manager.
func (d *Daemon) fireDigest(ctx context.Context, window time.Duration) {
	text, err := BuildDigest(ctx, d.stats, time.Now().Add(-window))
	if err != nil {
		d.log.Error("build digest", "error", err)
		return
	}
	if text == "" {
		// No activity.
		return
	}
	mgr := d.cfg.Managers[0]
	if err := d.adapter.Send(ctx, messenger.OutboundMessage{RecipientID: mgr, Text: text}); err != nil {
		d.log.Error("send digest", "manager", mgr, "error", err)
	}
}
