package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Mode selects which delivery variant a process runs.
type Mode string

const (
	ModeForwarder Mode = "forwarder"
	ModeSnapshot  Mode = "snapshot"
)

const (
	PolicyFallback = "fallback"
	PolicyStrict   = "strict"
)

type Config struct {
	// Instrument
	Symbol string

	// Delivery
	WebhookURL     string
	WebhookTimeout time.Duration

	// HTTP
	Port            int
	CORSAllowOrigin string

	// Vendor feed
	FeedURL           string
	FeedOrigin        string
	FeedAuthToken     string
	KeepAliveInterval time.Duration
	SnapshotTimeout   time.Duration

	// Decoding
	PricePolicy string

	LogLevel string
}

func Load(mode Mode) (*Config, error) {
	// A missing .env is fine; a malformed one is not.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	defaultPolicy := PolicyFallback
	if mode == ModeSnapshot {
		defaultPolicy = PolicyStrict
	}

	cfg := &Config{
		Symbol: envStr("SYMBOL", "BMFBOVESPA:WIN1!"),

		WebhookURL:     envStr("WEBHOOK_URL", envStr("N8N_WEBHOOK", "")),
		WebhookTimeout: envMillis("WEBHOOK_TIMEOUT_MS", 5000),

		Port:            envInt("PORT", 3000),
		CORSAllowOrigin: envStr("CORS_ALLOW_ORIGIN", "*"),

		FeedURL:           envStr("FEED_URL", "wss://data.tradingview.com/socket.io/websocket"),
		FeedOrigin:        envStr("FEED_ORIGIN", "https://www.tradingview.com"),
		FeedAuthToken:     envStr("FEED_AUTH_TOKEN", "unauthorized_user_token"),
		KeepAliveInterval: time.Duration(envInt("KEEPALIVE_INTERVAL_SECONDS", 20)) * time.Second,
		SnapshotTimeout:   envMillis("SNAPSHOT_TIMEOUT_MS", 6000),

		PricePolicy: strings.ToLower(envStr("PRICE_POLICY", defaultPolicy)),

		LogLevel: envStr("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// Validate reports every configuration problem for the given mode at once.
// A forwarder without a webhook destination is fatal.
func (c *Config) Validate(mode Mode) error {
	var errs []string

	if strings.TrimSpace(c.Symbol) == "" {
		errs = append(errs, "SYMBOL must not be empty")
	}
	if mode == ModeForwarder && c.WebhookURL == "" {
		errs = append(errs, "WEBHOOK_URL (or N8N_WEBHOOK) is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT out of range: %d", c.Port))
	}
	if c.PricePolicy != PolicyFallback && c.PricePolicy != PolicyStrict {
		errs = append(errs, fmt.Sprintf("PRICE_POLICY must be %q or %q, got %q", PolicyFallback, PolicyStrict, c.PricePolicy))
	}
	if mode == ModeSnapshot && c.SnapshotTimeout <= 0 {
		errs = append(errs, "SNAPSHOT_TIMEOUT_MS must be positive")
	}
	if mode == ModeForwarder && c.KeepAliveInterval <= 0 {
		errs = append(errs, "KEEPALIVE_INTERVAL_SECONDS must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

func (c *Config) Print(mode Mode) {
	fmt.Printf("=== Quote Relay Configuration (%s) ===\n", mode)
	fmt.Printf("Symbol: %s\n", c.Symbol)
	fmt.Printf("Feed: %s\n", c.FeedURL)
	fmt.Printf("Price policy: %s\n", c.PricePolicy)
	fmt.Println("--------------------------------------")
	switch mode {
	case ModeForwarder:
		fmt.Printf("Webhook: %s\n", redactURL(c.WebhookURL))
		fmt.Printf("Webhook timeout: %s\n", c.WebhookTimeout)
		fmt.Printf("Keep-alive: every %s\n", c.KeepAliveInterval)
	case ModeSnapshot:
		fmt.Printf("Snapshot timeout: %s\n", c.SnapshotTimeout)
	}
	fmt.Printf("HTTP port: %d\n", c.Port)
	fmt.Println("======================================")
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

// redactURL keeps scheme and host only; webhook paths often embed tokens.
func redactURL(u string) string {
	if u == "" {
		return "not set"
	}
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "invalid URL"
	}
	out := parsed.Scheme + "://" + parsed.Host
	if (parsed.Path != "" && parsed.Path != "/") || parsed.RawQuery != "" {
		out += "/..."
	}
	return out
}
