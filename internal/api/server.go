package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kjannette/quote-relay/internal/models"
)

const defaultWriteTimeout = 10 * time.Second

// TickSource is the read side of the forwarder's last-tick store.
type TickSource interface {
	GetLatest() (models.Quote, bool)
	HasTick() bool
}

// SnapshotFetcher produces one fresh quote per call.
type SnapshotFetcher interface {
	Fetch(ctx context.Context, symbol string) (models.Quote, error)
}

type Options struct {
	Port            int
	CORSAllowOrigin string
	// WriteTimeout must exceed the snapshot timeout in snapshot mode.
	WriteTimeout time.Duration
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

type Server struct {
	ticks      TickSource
	fetcher    SnapshotFetcher
	symbol     string
	httpServer *http.Server
	logger     *zap.Logger
}

// NewForwarderServer serves the cached last tick.
func NewForwarderServer(ticks TickSource, symbol string, opts Options, logger *zap.Logger) *Server {
	s := &Server{ticks: ticks, symbol: symbol, logger: orNop(logger)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /price", s.handleCachedPrice)
	mux.HandleFunc("GET /health", s.handleForwarderHealth)
	s.mount(mux, opts)
	return s
}

// NewSnapshotServer fetches a fresh quote per /price request.
func NewSnapshotServer(fetcher SnapshotFetcher, defaultSymbol string, opts Options, logger *zap.Logger) *Server {
	s := &Server{fetcher: fetcher, symbol: defaultSymbol, logger: orNop(logger)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /price", s.handleSnapshotPrice)
	mux.HandleFunc("GET /health", s.handleSnapshotHealth)
	s.mount(mux, opts)
	return s
}

func (s *Server) mount(mux *http.ServeMux, opts Options) {
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      corsMiddleware(mux, opts.CORSAllowOrigin),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: opts.WriteTimeout,
	}
}

// Handler exposes the routed handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	s.logger.Info(fmt.Sprintf("HTTP on %s -> GET /price", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func orNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// --- middleware ---

func corsMiddleware(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeSymbolError(w http.ResponseWriter, status int, msg, symbol string) {
	writeJSON(w, status, map[string]string{"error": msg, "symbol": symbol})
}
