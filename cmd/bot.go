package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/musebot/internal/config"
	"github.com/nextlevelbuilder/musebot/internal/dataapi"
	"github.com/nextlevelbuilder/musebot/internal/delivery"
	"github.com/nextlevelbuilder/musebot/internal/derive"
	"github.com/nextlevelbuilder/musebot/internal/dispatch"
	"github.com/nextlevelbuilder/musebot/internal/features"
	"github.com/nextlevelbuilder/musebot/internal/identity"
	"github.com/nextlevelbuilder/musebot/internal/notifier"
	"github.com/nextlevelbuilder/musebot/internal/state"
	"github.com/nextlevelbuilder/musebot/internal/telegram"
	"github.com/nextlevelbuilder/musebot/internal/tools"
	"github.com/nextlevelbuilder/musebot/internal/tracing"
)

func runBot() {
	// Setup structured logging
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		if _, statErr := os.Stat(cfgPath); os.IsNotExist(statErr) {
			// No config file at all → first time, redirect to onboard wizard.
			fmt.Println("No configuration found. Starting setup wizard...")
			fmt.Println()
			runOnboard()
			return
		}
		slog.Error("invalid config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("graceful shutdown initiated", "signal", sig)
		cancel()
	}()

	snap := cfg.Snapshot()

	shutdownTracing, err := tracing.Setup(ctx, snap.Telemetry, Version)
	if err != nil {
		slog.Error("telemetry setup failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()

	api := dataapi.New(snap.DataAPI)
	resolver := identity.NewResolver(api)
	registry := tools.NewRegistry(api, cfg.ToolRefreshInterval())
	stores := state.New(cfg.ReplyContextTTL(), cfg.TweakSessionTTL())

	tg, err := telegram.NewClient(snap.Telegram)
	if err != nil {
		slog.Error("telegram client failed", "error", err)
		os.Exit(1)
	}

	submitter := derive.NewSubmitter(api, identity.Platform, func() bool {
		return cfg.Snapshot().Execution.LegacyWorkflowIDsEnabled()
	})
	deliverer := delivery.NewDeliverer(api, tg)
	dispatcher := dispatch.New(tg, resolver, stores.Replies)
	handlers := features.Register(dispatcher, features.Deps{
		Cfg:     cfg,
		API:     api,
		TG:      tg,
		Tools:   registry,
		State:   stores,
		Submit:  submitter,
		Deliver: deliverer,
	})
	poller := telegram.NewPoller(tg, dispatcher, snap.Telegram.Workers, snap.Telegram.PollTimeoutSec)

	// Warm the tool registry before the first update arrives; the command
	// menu is built from it, so the sync runs after.
	if err := registry.Refresh(ctx); err != nil {
		slog.Warn("initial tool refresh failed", "error", err)
	}
	if err := handlers.SyncCommands(ctx); err != nil {
		slog.Warn("command menu sync failed", "error", err)
	}

	// Config hot reload: edits to the config file apply without a restart.
	if watcher, err := config.NewWatcher(cfgPath, cfg, func(next *config.Config) {
		slog.Info("config reloaded", "hash", next.Hash())
	}); err != nil {
		slog.Warn("config watcher unavailable", "error", err)
	} else {
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return poller.Run(gctx) })
	g.Go(func() error { return registry.Run(gctx) })
	g.Go(func() error { return stores.Run(gctx) })
	if snap.Execution.NotifyURL != "" {
		events := notifier.New(snap.Execution.NotifyURL, snap.DataAPI.ClientKey, deliverer)
		g.Go(func() error { return events.Run(gctx) })
	} else {
		slog.Warn("execution.notify_url not set; completed generations will not be delivered")
	}

	slog.Info("musebot starting",
		"version", Version,
		"bot", "@"+tg.Username(),
		"workers", snap.Telegram.Workers,
		"tools", len(registry.All()),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("bot stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("musebot stopped")
}
