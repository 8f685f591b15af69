package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjannette/quote-relay/internal/api"
	"github.com/kjannette/quote-relay/internal/config"
	"github.com/kjannette/quote-relay/internal/external"
	"github.com/kjannette/quote-relay/internal/logging"
	"github.com/kjannette/quote-relay/internal/metrics"
	"github.com/kjannette/quote-relay/internal/notifications"
	"github.com/kjannette/quote-relay/internal/quote"
	"github.com/kjannette/quote-relay/internal/relay"
	"github.com/kjannette/quote-relay/internal/repository"
)

const banner = `
╔══════════════════════════════════════╗
║     Quote Relay - Streaming Mode     ║
╚══════════════════════════════════════╝
`

func main() {
	fmt.Print(banner)

	cfg, err := config.Load(config.ModeForwarder)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	// Checked before any feed connection is attempted.
	if err := cfg.Validate(config.ModeForwarder); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg.Print(config.ModeForwarder)

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New("forwarder")
	ticks := repository.NewTickRepo()
	sink := notifications.NewSender(cfg.WebhookURL, cfg.WebhookTimeout, logger.Named("webhook"))

	feed := external.NewTradingViewClient(external.TradingViewOptions{
		URL:       cfg.FeedURL,
		Origin:    cfg.FeedOrigin,
		AuthToken: cfg.FeedAuthToken,
	}, logger.Named("feed"))

	// 1. Feed session
	fwd := relay.NewForwarder(feed, ticks, sink, m, logger.Named("relay"), relay.Options{
		Symbol:            cfg.Symbol,
		Policy:            quote.PricePolicy(cfg.PricePolicy),
		KeepAliveInterval: cfg.KeepAliveInterval,
	})
	if err := fwd.Start(ctx); err != nil {
		logger.Fatal("feed start failed", zap.Error(err))
	}
	logger.Info("quote session open", zap.String("symbol", cfg.Symbol), zap.String("session", fwd.SessionID()))

	// 2. API server
	srv := api.NewForwarderServer(ticks, cfg.Symbol, api.Options{
		Port:            cfg.Port,
		CORSAllowOrigin: cfg.CORSAllowOrigin,
		Metrics:         m.Handler(),
	}, logger.Named("api"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully")

		fwd.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("api shutdown", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
