package api

import (
	"net/http"

	"github.com/kjannette/quote-relay/internal/models"
)

func (s *Server) handleForwarderHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.ForwarderHealth{
		OK:      true,
		Symbol:  s.symbol,
		HasTick: s.ticks.HasTick(),
	})
}

func (s *Server) handleSnapshotHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.SnapshotHealth{
		OK:            true,
		Mode:          "on-demand",
		DefaultSymbol: s.symbol,
	})
}
