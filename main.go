package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"okx-signal-bot/internal/api"
	"okx-signal-bot/internal/engine"
	"okx-signal-bot/internal/events"
	"okx-signal-bot/internal/order"
	"okx-signal-bot/internal/reconciliation"
	"okx-signal-bot/internal/state"
	"okx-signal-bot/internal/trailing"
	"okx-signal-bot/pkg/config"
	"okx-signal-bot/pkg/exchanges/common"
	"okx-signal-bot/pkg/exchanges/okx"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// First load decides the log encoder, then the store re-loads with
	// the real logger attached for reload messages.
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := buildLogger(cfg.Server.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cfgStore, err := config.NewStore(configPath, logger.Named("config"))
	if err != nil {
		return err
	}
	cfg = cfgStore.Current()

	logger.Info("starting okx-signal-bot",
		zap.Strings("symbols", cfg.Trade.Symbols),
		zap.Int("leverage", cfg.Trade.Leverage),
		zap.String("margin_mode", cfg.Trade.MarginMode),
		zap.Bool("simulated", cfg.Exchange.Simulated))

	gateway := okx.NewClient(okx.Config{
		APIKey:     cfg.Exchange.APIKey,
		APISecret:  cfg.Exchange.APISecret,
		Passphrase: cfg.Exchange.Passphrase,
		BaseURL:    cfg.Exchange.BaseURL,
		Simulated:  cfg.Exchange.Simulated,
		Timeout:    cfg.Exchange.Timeout(),
	})

	// Sign requests with venue-aligned timestamps so local clock drift
	// cannot invalidate them.
	clock := common.NewClock(gateway.ServerTime, logger.Named("clock"))
	gateway.UseClock(clock)

	// Core services
	store := state.NewStore()
	locks := state.NewLocks()
	runtime := state.NewRuntime()
	bus := events.NewBus()

	rec := reconciliation.NewService(gateway, store, locks, runtime, cfgStore, bus, logger.Named("reconcile"))
	executor := order.NewExecutor(gateway, store, cfgStore, rec, bus, logger.Named("executor"))
	trailer := trailing.NewTrailer(gateway, store, locks, runtime, executor, cfgStore, bus, logger.Named("trailer"))
	eng := engine.New(store, locks, runtime, executor, rec, cfgStore, bus, logger.Named("engine"))

	server := api.NewServer(eng, cfgStore, bus, logger.Named("api"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgStore.Watch()

	if err := clock.Sync(ctx); err != nil {
		logger.Warn("venue clock sync failed, signing with local time", zap.Error(err))
	}

	// Adopt venue truth before accepting any signal.
	if rep := rec.Run(ctx, "startup"); !rep.OK {
		logger.Warn("startup reconciliation incomplete",
			zap.Strings("errors", rep.Errors))
	}

	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: server.Router,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		clock.Start(ctx)
		return nil
	})
	g.Go(func() error {
		trailer.Start(ctx)
		return nil
	})
	g.Go(func() error {
		rec.Start(ctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
