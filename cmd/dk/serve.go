package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/docket/internal/api"
	"github.com/zulandar/docket/internal/blob"
	"github.com/zulandar/docket/internal/config"
	"github.com/zulandar/docket/internal/notify"
	"github.com/zulandar/docket/internal/tracing"
)

func newServeCmd(g *globals) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Serves the issue API, runs the attachment janitor on its schedule and
posts committed events to the configured Slack and Discord webhooks.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, g, port)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, g *globals, port int) error {
	cfg, gormDB, err := g.connect()
	if err != nil {
		return err
	}
	log := g.logger(cmd)
	if port > 0 {
		cfg.Server.Port = port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := tracing.Setup(ctx, "docket", cfg.Tracing.Endpoint)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer shutdown(context.Background())

	svc, store, err := newService(g, cmd, cfg, gormDB)
	if err != nil {
		return err
	}

	if !cfg.Janitor.Disabled {
		janitor := &blob.Janitor{DB: gormDB, Store: store, Logger: log}
		stopJanitor, err := janitor.Start(ctx, cfg.Janitor.Schedule)
		if err != nil {
			return err
		}
		defer stopJanitor()
	}

	return api.Start(ctx, api.StartOpts{
		DB:        gormDB,
		Service:   svc,
		Blobs:     store,
		Logger:    log,
		Port:      cfg.Server.Port,
		MaxUpload: cfg.Storage.MaxUploadSize,
		Out:       cmd.OutOrStdout(),
	})
}

// notifySinks builds a sink for every configured webhook.
func notifySinks(cfg config.NotifyConfig) ([]notify.Sink, error) {
	var sinks []notify.Sink
	if cfg.SlackWebhook != "" {
		s, err := notify.NewSlack(cfg.SlackWebhook)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.DiscordWebhookID != "" {
		d, err := notify.NewDiscord(cfg.DiscordWebhookID, cfg.DiscordWebhookToken)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, d)
	}
	return sinks, nil
}
