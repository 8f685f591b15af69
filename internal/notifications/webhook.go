package notifications

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kjannette/quote-relay/internal/httputil"
	"github.com/kjannette/quote-relay/internal/models"
)

const defaultTimeout = 5 * time.Second

// Sender posts quotes to a webhook. Each delivery is a single bounded attempt.
type Sender struct {
	webhookURL string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewSender(webhookURL string, timeout time.Duration, logger *zap.Logger) *Sender {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Deliver posts q as JSON. Failures are logged and returned for accounting;
// callers are not expected to retry.
func (s *Sender) Deliver(ctx context.Context, q models.Quote) error {
	if !s.Enabled() {
		return nil
	}

	if err := httputil.PostJSON(ctx, s.httpClient, s.webhookURL, q); err != nil {
		s.logger.Error("webhook POST failed",
			zap.String("symbol", q.Symbol),
			zap.Float64("price", q.Price),
			zap.Error(err))
		return fmt.Errorf("deliver %s: %w", q.Symbol, err)
	}
	return nil
}

func (s *Sender) Enabled() bool {
	return s.webhookURL != ""
}
