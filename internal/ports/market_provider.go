package ports

import (
	"context"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

// MarketProvider discovers the active markets of a sport.
type MarketProvider interface {
	// FetchMarkets returns open markets with asks and depth already loaded
	// from the orderbook. Closed or inactive markets are left out.
	FetchMarkets(ctx context.Context, sport domain.Sport) ([]domain.Market, error)
}

// ResolutionProvider reports whether a market has resolved and which side won.
type ResolutionProvider interface {
	FetchResolution(ctx context.Context, marketID string) (domain.Resolution, error)
}
