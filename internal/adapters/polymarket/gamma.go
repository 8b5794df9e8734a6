package polymarket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

const (
	gammaEventsPath  = "/events"
	gammaMarketsPath = "/markets"
	eventsPageSize   = 100
	eventsMaxPages   = 5
)

// FetchMarkets discovers the sport's open games by tag_slug and loads asks
// and depth from the CLOB. Implements ports.MarketProvider.
func (c *Client) FetchMarkets(ctx context.Context, sport domain.Sport) ([]domain.Market, error) {
	events, err := c.fetchEvents(ctx, sport.TagSlug)
	if err != nil {
		return nil, fmt.Errorf("gamma.FetchMarkets: %w", err)
	}

	now := c.now()
	var markets []domain.Market
	for _, ev := range events {
		markets = append(markets, mapEvent(ev, sport, now)...)
	}
	if len(markets) == 0 {
		slog.Debug("gamma: no open markets", "sport", sport.Name, "events", len(events))
		return nil, nil
	}

	tokenIDs := make([]string, 0, len(markets)*2)
	for _, m := range markets {
		for _, o := range m.Outcomes {
			tokenIDs = append(tokenIDs, o.TokenID)
		}
	}
	books, err := c.FetchOrderBooks(ctx, tokenIDs)
	if err != nil {
		return nil, fmt.Errorf("gamma.FetchMarkets: books: %w", err)
	}
	applyBooks(markets, books)

	slog.Debug("gamma: markets discovered",
		"sport", sport.Name,
		"events", len(events),
		"markets", len(markets),
		"books", len(books),
	)
	return markets, nil
}

// fetchEvents pages through GET /events?tag_slug= until results run out.
func (c *Client) fetchEvents(ctx context.Context, tagSlug string) ([]gammaEvent, error) {
	var all []gammaEvent
	for page := 0; page < eventsMaxPages; page++ {
		q := url.Values{}
		q.Set("tag_slug", tagSlug)
		q.Set("active", "true")
		q.Set("closed", "false")
		q.Set("limit", strconv.Itoa(eventsPageSize))
		q.Set("offset", strconv.Itoa(page*eventsPageSize))

		var resp []gammaEvent
		if err := c.get(ctx, c.gammaLimiter, c.gammaBase+gammaEventsPath+"?"+q.Encode(), &resp); err != nil {
			return nil, fmt.Errorf("GET /events page %d: %w", page, err)
		}
		all = append(all, resp...)
		if len(resp) < eventsPageSize {
			break
		}
	}
	return all, nil
}

// FetchResolution reads GET /markets/{id}. A closed market without a winning
// price is still pending. Implements ports.ResolutionProvider.
func (c *Client) FetchResolution(ctx context.Context, marketID string) (domain.Resolution, error) {
	var gm gammaMarket
	err := c.get(ctx, c.gammaLimiter, c.gammaBase+gammaMarketsPath+"/"+url.PathEscape(marketID), &gm)
	if err != nil {
		var he *httpError
		if errors.As(err, &he) && he.Status == http.StatusNotFound {
			return domain.Resolution{}, fmt.Errorf("gamma.FetchResolution: market %s not found", marketID)
		}
		return domain.Resolution{}, fmt.Errorf("gamma.FetchResolution: %w", err)
	}
	if gm.ID == "" {
		gm.ID = marketID
	}
	return resolutionFromGamma(gm), nil
}
