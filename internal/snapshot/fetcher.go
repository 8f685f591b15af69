package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kjannette/quote-relay/internal/external"
	"github.com/kjannette/quote-relay/internal/metrics"
	"github.com/kjannette/quote-relay/internal/models"
	"github.com/kjannette/quote-relay/internal/quote"
)

const DefaultTimeout = 6 * time.Second

// ErrTimeout is matched by every *TimeoutError.
var ErrTimeout = errors.New("snapshot timed out")

type TimeoutError struct {
	Symbol string
	After  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no quote for %s within %s", e.Symbol, e.After)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

type Options struct {
	Timeout time.Duration
	Policy  quote.PricePolicy
	Now     func() time.Time
}

// Fetcher serves one fresh quote per call over a dedicated feed connection.
// Calls share nothing but configuration.
type Fetcher struct {
	dialer  external.FeedDialer
	opts    Options
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewFetcher(dialer external.FeedDialer, m *metrics.Metrics, logger *zap.Logger, opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Policy == "" {
		opts.Policy = quote.Strict
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{dialer: dialer, opts: opts, metrics: m, logger: logger}
}

func (f *Fetcher) Timeout() time.Duration { return f.opts.Timeout }

// pending settles exactly once: either an event resolves it or the waiter
// expires it. The loser of the race is a no-op.
type pending struct {
	done   atomic.Bool
	result chan models.Quote
}

func newPending() *pending {
	return &pending{result: make(chan models.Quote, 1)}
}

func (p *pending) resolve(q models.Quote) bool {
	if !p.done.CompareAndSwap(false, true) {
		return false
	}
	p.result <- q
	return true
}

func (p *pending) expire() bool {
	return p.done.CompareAndSwap(false, true)
}

// Fetch opens a connection, requests a snapshot for symbol and returns the
// first matching quote. It fails with a *TimeoutError if none arrives within
// the configured timeout. The connection is released exactly once on every
// path, and a failing release is only logged.
func (f *Fetcher) Fetch(ctx context.Context, symbol string) (models.Quote, error) {
	start := time.Now()
	q, outcome, err := f.fetch(ctx, symbol)
	if f.metrics != nil {
		f.metrics.SnapshotsTotal.WithLabelValues(outcome).Inc()
		f.metrics.SnapshotLatency.Observe(time.Since(start).Seconds())
	}
	return q, err
}

func (f *Fetcher) fetch(ctx context.Context, symbol string) (models.Quote, string, error) {
	log := f.logger.With(zap.String("symbol", symbol))

	// Connecting
	conn, err := f.dialer.Connect(ctx)
	if err != nil {
		return models.Quote{}, "connect_error", fmt.Errorf("connect feed for %s: %w", symbol, err)
	}

	var release sync.Once
	defer release.Do(func() {
		if err := conn.Close(); err != nil {
			log.Debug("feed close failed", zap.Error(err))
		}
	})

	decoder := quote.Decoder{Symbol: symbol, Policy: f.opts.Policy, Now: f.opts.Now}
	p := newPending()
	conn.Subscribe(func(evt external.Event) {
		if p.done.Load() {
			return
		}
		if q, ok := decoder.Decode(evt); ok {
			p.resolve(q)
		}
	})

	sid := external.NewSessionID()
	if err := external.OpenQuoteSession(conn, sid, symbol); err != nil {
		p.expire()
		return models.Quote{}, "connect_error", fmt.Errorf("open quote session for %s: %w", symbol, err)
	}

	// Awaiting
	timer := time.NewTimer(f.opts.Timeout)
	defer timer.Stop()

	select {
	case q := <-p.result:
		log.Debug("snapshot resolved", zap.Float64("price", q.Price))
		return q, "ok", nil

	case <-timer.C:
		if !p.expire() {
			// An event won the race while the timer fired.
			return <-p.result, "ok", nil
		}
		log.Info("snapshot timed out", zap.Duration("after", f.opts.Timeout))
		return models.Quote{}, "timeout", &TimeoutError{Symbol: symbol, After: f.opts.Timeout}

	case <-ctx.Done():
		if !p.expire() {
			return <-p.result, "ok", nil
		}
		return models.Quote{}, "canceled", ctx.Err()
	}
}
