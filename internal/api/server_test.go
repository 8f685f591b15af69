package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kjannette/quote-relay/internal/metrics"
	"github.com/kjannette/quote-relay/internal/models"
	"github.com/kjannette/quote-relay/internal/repository"
	"github.com/kjannette/quote-relay/internal/snapshot"
)

const sym = "BMFBOVESPA:WIN1!"

type stubFetcher struct {
	mu    sync.Mutex
	calls []string
	fn    func(ctx context.Context, symbol string) (models.Quote, error)
}

func (f *stubFetcher) Fetch(ctx context.Context, symbol string) (models.Quote, error) {
	f.mu.Lock()
	f.calls = append(f.calls, symbol)
	f.mu.Unlock()
	return f.fn(ctx, symbol)
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

// ---------- forwarder ----------

func TestForwarderPrice_NoDataYet(t *testing.T) {
	s := NewForwarderServer(repository.NewTickRepo(), sym, Options{Port: 3000}, nil)

	rr := get(t, s.Handler(), "/price")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if body := decode(t, rr); body["error"] == "" {
		t.Fatalf("expected error field, got %v", body)
	}
}

func TestForwarderPrice_ReturnsLastTick(t *testing.T) {
	ticks := repository.NewTickRepo()
	ticks.Record(models.Quote{Symbol: sym, Price: 125400, Source: models.SourceTradingView, Time: time.Now()})
	s := NewForwarderServer(ticks, sym, Options{}, nil)

	rr := get(t, s.Handler(), "/price")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decode(t, rr)
	if body["symbol"] != sym || body["price"] != 125400.0 {
		t.Fatalf("body: %v", body)
	}
	if v, ok := body["bid"]; !ok || v != nil {
		t.Fatalf("absent bid must be explicit null: %v", body)
	}
}

func TestForwarderHealth_HasTick(t *testing.T) {
	ticks := repository.NewTickRepo()
	s := NewForwarderServer(ticks, sym, Options{}, nil)

	body := decode(t, get(t, s.Handler(), "/health"))
	if body["ok"] != true || body["symbol"] != sym || body["hasTick"] != false {
		t.Fatalf("before tick: %v", body)
	}

	ticks.Record(models.Quote{Symbol: sym, Price: 1})
	body = decode(t, get(t, s.Handler(), "/health"))
	if body["hasTick"] != true {
		t.Fatalf("after tick: %v", body)
	}
}

// ---------- snapshot ----------

func TestSnapshotPrice_DefaultSymbol(t *testing.T) {
	f := &stubFetcher{fn: func(ctx context.Context, symbol string) (models.Quote, error) {
		return models.Quote{Symbol: symbol, Price: 101}, nil
	}}
	s := NewSnapshotServer(f, sym, Options{}, nil)

	for _, target := range []string{"/price", "/price?symbol=", "/price?symbol=%20%20"} {
		rr := get(t, s.Handler(), target)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", target, rr.Code)
		}
		if cc := rr.Header().Get("Cache-Control"); cc == "" {
			t.Fatalf("%s: response must be non-cacheable", target)
		}
	}
	for _, c := range f.calls {
		if c != sym {
			t.Fatalf("expected default symbol, got %s", c)
		}
	}
}

func TestSnapshotPrice_RequestedSymbol(t *testing.T) {
	f := &stubFetcher{fn: func(ctx context.Context, symbol string) (models.Quote, error) {
		return models.Quote{Symbol: symbol, Price: 190.5}, nil
	}}
	s := NewSnapshotServer(f, sym, Options{}, nil)

	body := decode(t, get(t, s.Handler(), "/price?symbol=NASDAQ:AAPL"))
	if body["symbol"] != "NASDAQ:AAPL" {
		t.Fatalf("body: %v", body)
	}
}

func TestSnapshotPrice_Timeout(t *testing.T) {
	f := &stubFetcher{fn: func(ctx context.Context, symbol string) (models.Quote, error) {
		return models.Quote{}, &snapshot.TimeoutError{Symbol: symbol, After: 6 * time.Second}
	}}
	s := NewSnapshotServer(f, sym, Options{}, nil)

	rr := get(t, s.Handler(), "/price?symbol=NASDAQ:MSFT")
	if rr.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rr.Code)
	}
	body := decode(t, rr)
	if body["symbol"] != "NASDAQ:MSFT" || body["error"] == "" {
		t.Fatalf("body: %v", body)
	}
	if rr.Header().Get("Cache-Control") == "" {
		t.Fatal("error responses must be non-cacheable too")
	}
}

func TestSnapshotPrice_FeedError(t *testing.T) {
	f := &stubFetcher{fn: func(ctx context.Context, symbol string) (models.Quote, error) {
		return models.Quote{}, errors.New("dial refused")
	}}
	s := NewSnapshotServer(f, sym, Options{}, nil)

	rr := get(t, s.Handler(), "/price")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
}

func TestSnapshotHealth(t *testing.T) {
	s := NewSnapshotServer(&stubFetcher{}, sym, Options{}, nil)

	body := decode(t, get(t, s.Handler(), "/health"))
	if body["ok"] != true || body["mode"] != "on-demand" || body["defaultSymbol"] != sym {
		t.Fatalf("body: %v", body)
	}
}

func TestMetricsRoute(t *testing.T) {
	m := metrics.New("api_test")
	s := NewForwarderServer(repository.NewTickRepo(), sym, Options{Metrics: m.Handler()}, nil)

	if rr := get(t, s.Handler(), "/metrics"); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rr.Code)
	}

	bare := NewForwarderServer(repository.NewTickRepo(), sym, Options{}, nil)
	if rr := get(t, bare.Handler(), "/metrics"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without metrics, got %d", rr.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := NewForwarderServer(repository.NewTickRepo(), sym, Options{}, nil)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/price", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestCorsMiddleware_Headers(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := corsMiddleware(inner, "https://myapp.example.com")

	rr := get(t, handler, "/price")
	if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "https://myapp.example.com" {
		t.Fatalf("expected custom origin, got %q", origin)
	}
}

func TestCorsMiddleware_Preflight(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("inner handler should not be called for OPTIONS")
	})
	handler := corsMiddleware(inner, "")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/price", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for preflight, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected wildcard origin by default")
	}
}
