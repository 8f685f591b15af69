package api

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kjannette/quote-relay/internal/snapshot"
)

func (s *Server) handleCachedPrice(w http.ResponseWriter, r *http.Request) {
	q, ok := s.ticks.GetLatest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no data yet")
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleSnapshotPrice(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Pragma", "no-cache")

	symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
	if symbol == "" {
		symbol = s.symbol
	}

	q, err := s.fetcher.Fetch(r.Context(), symbol)
	if err != nil {
		switch {
		case errors.Is(err, snapshot.ErrTimeout):
			writeSymbolError(w, http.StatusGatewayTimeout, "timeout waiting for quote", symbol)
		case r.Context().Err() != nil:
			// Caller went away; nobody to answer.
			s.logger.Debug("snapshot request canceled", zap.String("symbol", symbol))
		default:
			s.logger.Warn("snapshot failed", zap.String("symbol", symbol), zap.Error(err))
			writeSymbolError(w, http.StatusBadGateway, "feed unavailable", symbol)
		}
		return
	}
	writeJSON(w, http.StatusOK, q)
}
