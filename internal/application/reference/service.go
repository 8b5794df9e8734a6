// Package reference serves sportsbook quotes cache-first, spending the shared
// request budget only when the cached copy expired.
package reference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyarb/internal/application/budget"
	"github.com/alejandrodnm/polyarb/internal/domain"
	"github.com/alejandrodnm/polyarb/internal/ports"
)

// Snapshot is the set of quotes a cycle works with.
type Snapshot struct {
	Quotes    []domain.ReferenceQuote
	FetchedAt time.Time
	FromCache bool
}

// Service combines the odds source, the cache and the budget limiter.
type Service struct {
	odds   ports.OddsProvider
	cache  ports.QuoteCache
	budget *budget.Limiter
	ttl    time.Duration
	now    func() time.Time
}

// New creates a Service. ttl is the freshness window of cached quotes.
func New(odds ports.OddsProvider, cache ports.QuoteCache, limiter *budget.Limiter, ttl time.Duration) *Service {
	return &Service{
		odds:   odds,
		cache:  cache,
		budget: limiter,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Quotes returns the sport's quotes. A fresh cache entry costs nothing; a
// miss acquires one budget unit and records the quota the source reports.
// When the budget refuses, the error wraps domain.ErrBudgetExhausted or
// budget.ErrMinInterval and callers fall back to structural detection.
func (s *Service) Quotes(ctx context.Context, sport domain.Sport) (Snapshot, error) {
	now := s.now()

	quotes, at, ok, err := s.cache.Get(ctx, sport.Name)
	if err != nil {
		slog.Warn("reference: cache read failed", "sport", sport.Name, "err", err)
		ok = false
	}
	if ok && now.Sub(at) < s.ttl {
		return Snapshot{Quotes: quotes, FetchedAt: at, FromCache: true}, nil
	}

	if err := s.budget.Acquire(sport.Name); err != nil {
		return Snapshot{}, fmt.Errorf("reference.Quotes: %s: %w", sport.Name, err)
	}

	batch, err := s.odds.FetchOdds(ctx, sport.OddsKey)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.budget.Refund()
		}
		return Snapshot{}, fmt.Errorf("reference.Quotes: fetch %s: %w", sport.OddsKey, err)
	}
	s.budget.Record(batch.Remaining)

	fetched := batch.FetchedAt
	if fetched.IsZero() {
		fetched = now
	}
	for i := range batch.Quotes {
		if batch.Quotes[i].FetchedAt.IsZero() {
			batch.Quotes[i].FetchedAt = fetched
		}
		if batch.Quotes[i].Sport == "" {
			batch.Quotes[i].Sport = sport.Name
		}
	}

	if err := s.cache.Put(ctx, sport.Name, batch.Quotes, fetched); err != nil {
		slog.Warn("reference: cache write failed", "sport", sport.Name, "err", err)
	}

	slog.Debug("reference: quotes fetched",
		"sport", sport.Name,
		"events", len(batch.Quotes),
		"remaining", batch.Remaining,
		"mode", s.budget.Mode(),
	)
	return Snapshot{Quotes: batch.Quotes, FetchedAt: fetched}, nil
}

// Unavailable reports whether err means "no quotes this cycle" rather than
// a failure worth surfacing.
func Unavailable(err error) bool {
	return errors.Is(err, domain.ErrBudgetExhausted) || errors.Is(err, budget.ErrMinInterval)
}
