package repository

import (
	"sync"

	"github.com/kjannette/quote-relay/internal/models"
)

// TickRepo holds the most recent quote seen by the process. The feed handler
// is the only writer; HTTP handlers read concurrently. Quotes are stored by
// value so readers never observe a partially updated record.
type TickRepo struct {
	mu    sync.RWMutex
	last  models.Quote
	has   bool
	count uint64
}

func NewTickRepo() *TickRepo {
	return &TickRepo{}
}

// Record overwrites the last tick.
func (r *TickRepo) Record(q models.Quote) {
	r.mu.Lock()
	r.last = q
	r.has = true
	r.count++
	r.mu.Unlock()
}

// GetLatest returns the last tick, or false if none has arrived since startup.
func (r *TickRepo) GetLatest() (models.Quote, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last, r.has
}

func (r *TickRepo) HasTick() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.has
}

// Count is the number of ticks recorded since startup.
func (r *TickRepo) Count() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}
