// Package cache holds the reference-quote caches: in-process for a single
// instance, Redis when several instances share one odds quota.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

type entry struct {
	quotes    []domain.ReferenceQuote
	fetchedAt time.Time
}

// Memory implements ports.QuoteCache in process memory.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewMemory creates an empty cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry)}
}

// Get returns a copy of the cached quotes for the sport.
func (m *Memory) Get(_ context.Context, sport string) ([]domain.ReferenceQuote, time.Time, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[sport]
	m.mu.RUnlock()
	if !ok {
		return nil, time.Time{}, false, nil
	}
	return append([]domain.ReferenceQuote(nil), e.quotes...), e.fetchedAt, true, nil
}

// Put replaces the entry of the sport.
func (m *Memory) Put(_ context.Context, sport string, quotes []domain.ReferenceQuote, fetchedAt time.Time) error {
	cp := append([]domain.ReferenceQuote(nil), quotes...)
	m.mu.Lock()
	m.entries[sport] = entry{quotes: cp, fetchedAt: fetchedAt}
	m.mu.Unlock()
	return nil
}
