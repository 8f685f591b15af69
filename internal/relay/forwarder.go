package relay

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjannette/quote-relay/internal/external"
	"github.com/kjannette/quote-relay/internal/metrics"
	"github.com/kjannette/quote-relay/internal/models"
	"github.com/kjannette/quote-relay/internal/quote"
	"github.com/kjannette/quote-relay/internal/repository"
	"github.com/kjannette/quote-relay/internal/scheduler"
)

// QuoteSink receives every decoded quote.
type QuoteSink interface {
	Deliver(ctx context.Context, q models.Quote) error
}

type Options struct {
	Symbol            string
	Policy            quote.PricePolicy
	KeepAliveInterval time.Duration
	// Now stamps capture time; tests pin it.
	Now func() time.Time
}

// Forwarder owns one long-lived feed connection subscribed to a single
// symbol. Every decoded quote overwrites the tick repo and is pushed to the
// sink.
type Forwarder struct {
	dialer  external.FeedDialer
	decoder quote.Decoder
	ticks   *repository.TickRepo
	sink    QuoteSink
	metrics *metrics.Metrics
	logger  *zap.Logger

	keepAliveInterval time.Duration

	mu        sync.Mutex
	conn      external.FeedConn
	keepAlive *scheduler.KeepAlive
	sessionID string

	// deliverMu orders deliveries.Add against the Wait in Stop.
	deliverMu     sync.Mutex
	stopped       bool
	deliverCtx    context.Context
	cancelDeliver context.CancelFunc
	deliveries    sync.WaitGroup
}

func NewForwarder(dialer external.FeedDialer, ticks *repository.TickRepo, sink QuoteSink,
	m *metrics.Metrics, logger *zap.Logger, opts Options,
) *Forwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Policy == "" {
		opts.Policy = quote.Fallback
	}
	return &Forwarder{
		dialer:            dialer,
		decoder:           quote.Decoder{Symbol: opts.Symbol, Policy: opts.Policy, Now: opts.Now},
		ticks:             ticks,
		sink:              sink,
		metrics:           m,
		logger:            logger,
		keepAliveInterval: opts.KeepAliveInterval,
	}
}

// Start connects, registers the event handler, opens the quote session and
// starts the keep-alive. It returns once the session commands are sent.
func (f *Forwarder) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.keepAlive != nil && f.keepAlive.Running() {
		f.logger.Info("forwarder already running")
		return nil
	}

	conn, err := f.dialer.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect feed: %w", err)
	}

	f.deliverMu.Lock()
	f.stopped = false
	f.deliverCtx, f.cancelDeliver = context.WithCancel(context.Background())
	f.deliverMu.Unlock()

	// Handler first so the forced snapshot cannot slip past us.
	conn.Subscribe(f.handle)

	sid := external.NewSessionID()
	if err := external.OpenQuoteSession(conn, sid, f.decoder.Symbol); err != nil {
		conn.Close()
		f.cancelDeliver()
		return fmt.Errorf("open quote session: %w", err)
	}

	ka := scheduler.NewKeepAlive(scheduler.KeepAliveConfig{
		Interval: f.keepAliveInterval,
		Send:     func() error { return external.Ping(conn) },
		OnFailure: func(error) {
			if f.metrics != nil {
				f.metrics.KeepAliveFailures.Inc()
			}
		},
	}, f.logger.Named("keepalive"))
	ka.Start()

	f.conn = conn
	f.keepAlive = ka
	f.sessionID = sid

	f.logger.Info("connected, subscribing",
		zap.String("symbol", f.decoder.Symbol),
		zap.String("session", sid))
	return nil
}

// Stop halts the keep-alive, closes the feed and waits for in-flight
// webhook deliveries.
func (f *Forwarder) Stop() {
	f.mu.Lock()
	conn, ka := f.conn, f.keepAlive
	f.conn, f.keepAlive = nil, nil
	f.mu.Unlock()

	if conn == nil {
		return
	}
	ka.Stop()
	if err := conn.Close(); err != nil {
		f.logger.Debug("feed close", zap.Error(err))
	}

	// Ticks still in dispatch after this point are dropped.
	f.deliverMu.Lock()
	f.stopped = true
	f.deliverMu.Unlock()
	f.deliveries.Wait()
	f.cancelDeliver()
	f.logger.Info("forwarder stopped", zap.Uint64("ticks", f.ticks.Count()))
}

func (f *Forwarder) SessionID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessionID
}

func (f *Forwarder) handle(evt external.Event) {
	q, ok := f.decoder.Decode(evt)
	if !ok {
		return
	}

	f.deliverMu.Lock()
	defer f.deliverMu.Unlock()
	if f.stopped {
		return
	}

	f.ticks.Record(q)
	if f.metrics != nil {
		f.metrics.TicksTotal.WithLabelValues(q.Symbol).Inc()
	}
	f.logger.Info(fmt.Sprintf("[%s] %s => %s",
		q.Time.Local().Format("15:04:05"), q.Symbol, strconv.FormatFloat(q.Price, 'f', -1, 64)))

	if f.sink == nil {
		return
	}

	// Deliveries run off the read goroutine so a slow webhook cannot stall
	// heartbeat echoes.
	f.deliveries.Add(1)
	ctx := f.deliverCtx
	go func() {
		defer f.deliveries.Done()
		result := "ok"
		if err := f.sink.Deliver(ctx, q); err != nil {
			result = "error"
		}
		if f.metrics != nil {
			f.metrics.WebhookDeliveries.WithLabelValues(result).Inc()
		}
	}()
}
