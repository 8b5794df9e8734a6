package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

// OddsProvider fetches reference odds for one sport key.
type OddsProvider interface {
	// FetchOdds returns the quotes plus the remaining request quota reported
	// by the source on this response.
	FetchOdds(ctx context.Context, sportKey string) (domain.OddsBatch, error)
}

// QuoteCache stores the last successful batch per sport.
type QuoteCache interface {
	// Get returns the cached quotes and their fetch time. ok is false on miss.
	Get(ctx context.Context, sport string) (quotes []domain.ReferenceQuote, fetchedAt time.Time, ok bool, err error)

	// Put replaces the cached quotes for the sport.
	Put(ctx context.Context, sport string, quotes []domain.ReferenceQuote, fetchedAt time.Time) error
}
