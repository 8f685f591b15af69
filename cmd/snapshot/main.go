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
	"github.com/kjannette/quote-relay/internal/quote"
	"github.com/kjannette/quote-relay/internal/snapshot"
)

const banner = `
╔══════════════════════════════════════╗
║     Quote Relay - On-Demand Mode     ║
╚══════════════════════════════════════╝
`

func main() {
	fmt.Print(banner)

	cfg, err := config.Load(config.ModeSnapshot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(config.ModeSnapshot); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg.Print(config.ModeSnapshot)

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New("snapshot")
	feed := external.NewTradingViewClient(external.TradingViewOptions{
		URL:       cfg.FeedURL,
		Origin:    cfg.FeedOrigin,
		AuthToken: cfg.FeedAuthToken,
	}, logger.Named("feed"))

	fetcher := snapshot.NewFetcher(feed, m, logger.Named("snapshot"), snapshot.Options{
		Timeout: cfg.SnapshotTimeout,
		Policy:  quote.PricePolicy(cfg.PricePolicy),
	})

	srv := api.NewSnapshotServer(fetcher, cfg.Symbol, api.Options{
		Port:            cfg.Port,
		CORSAllowOrigin: cfg.CORSAllowOrigin,
		WriteTimeout:    fetcher.Timeout() + 15*time.Second,
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

		// In-flight snapshots finish within their own timeout.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), fetcher.Timeout()+5*time.Second)
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
