package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hazz-dev/shipcheck/internal/bot"
	"github.com/hazz-dev/shipcheck/internal/fault"
	"github.com/hazz-dev/shipcheck/internal/server"
)

func botCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot that triggers verifications from chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd, f)
		},
	}
}

func runBot(cmd *cobra.Command, f *flags) error {
	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return err
	}
	if cfg.Bot.Token == "" {
		return fault.Newf(fault.Config, "bot", "bot.token is required (set TELEGRAM_BOT_TOKEN)")
	}
	if cfg.Bot.Mode == "webhook" && cfg.Bot.Listen == "" {
		return fault.Newf(fault.Config, "bot", "bot.listen is required in webhook mode (set BOT_LISTEN_ADDR)")
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmdContext(cmd), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	client := bot.NewClient(cfg.Bot.APIURL, cfg.Bot.Token, cfg.Bot.PollTimeout.Duration)
	b := bot.New(a.runner, a.writer, client, cfg.Phase, cfg.Bot.AllowedChats, a.logger)
	return serveBot(ctx, a, b, client)
}

// serveBot runs the poll loop in poll mode and the HTTP surface when
// bot.listen is set, until ctx is cancelled or the server fails.
func serveBot(ctx context.Context, a *app, b *bot.Bot, src bot.Source) error {
	cfg := a.cfg
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if cfg.Bot.Mode == "poll" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Poll(ctx, src, cfg.Bot.PollTimeout.Duration, cfg.Bot.RetryDelay.Duration)
		}()
	}

	var serveErr error
	if cfg.Bot.Listen != "" {
		srv := server.New(a.runner, a.writer, server.Options{
			Phase:         cfg.Phase,
			Bot:           b,
			WebhookSecret: cfg.Bot.WebhookSecret,
			Metrics:       a.recorder.Handler(),
		}, a.logger)
		a.logger.Info("serving webhook and metrics", zap.String("listen", cfg.Bot.Listen), zap.String("mode", cfg.Bot.Mode))
		serveErr = srv.ListenAndServe(ctx, cfg.Bot.Listen)
		cancel()
	} else {
		<-ctx.Done()
	}
	wg.Wait()

	if serveErr != nil {
		return fault.Wrap(fault.Transport, "serve", serveErr)
	}
	a.logger.Info("bot stopped")
	return nil
}
