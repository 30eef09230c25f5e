package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nidhogg/calcaro/internal/api"
	"github.com/nidhogg/calcaro/internal/gateway"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run one conversation behind the HTTP API and chat platform adapters",
	Long: `Run one conversation behind the HTTP API and chat platform adapters.

Messages arrive on POST /api/message and, when configured, from Slack and
Discord. Every reply goes back to whoever sent the message being answered.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw := gateway.NewGateway(a.history, a.commands, a.logger)
	restAdapter := gateway.NewRESTAdapter(a.logger)
	gw.Register(restAdapter)

	persona := &gateway.Persona{Name: a.speaker(), Emoji: ":red_car:"}
	gwCfg := a.cfg.Gateway
	if gwCfg.Slack.Enabled && gwCfg.Slack.BotToken != "" {
		slackAdapter := gateway.NewSlackAdapter(gwCfg.Slack.BotToken, gwCfg.Slack.AppToken, a.logger)
		slackAdapter.SetPersona(persona)
		gw.Register(slackAdapter)
	}
	if gwCfg.Discord.Enabled && gwCfg.Discord.BotToken != "" {
		discordAdapter := gateway.NewDiscordAdapter(gwCfg.Discord.BotToken, a.logger)
		discordAdapter.SetPersona(persona)
		gw.Register(discordAdapter)
	}

	handler := api.NewHandler(gw, restAdapter, a.history, a.tools, a.router, a.cfg.Server.AllowedOrigins, a.logger)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler: handler.Router(),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	engine := a.engine(gw, gw)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("calcaro listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := gw.ConnectAll(gctx); err != nil {
			a.logger.Warn("some gateway adapters failed to connect", zap.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		a.logger.Info("conversation started", zap.String("id", engine.ID()))
		return engine.Run(gctx, a.history)
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down calcaro")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("http shutdown", zap.Error(err))
		}
		return gw.Close()
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
