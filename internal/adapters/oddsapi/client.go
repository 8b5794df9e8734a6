// Package oddsapi reads sportsbook odds from The Odds API (v4).
package oddsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

const (
	defaultBaseURL = "https://api.the-odds-api.com"

	// The free plan documents no per-second limit; 2/s covers one sport per
	// cycle.
	ratePerSec = 2

	maxRetries    = 2
	baseRetryWait = time.Second

	headerRemaining = "x-requests-remaining"
	headerUsed      = "x-requests-used"
)

var (
	defaultPreferred = []string{"pinnacle", "draftkings", "fanduel"}
	defaultSharp     = []string{"pinnacle"}
)

// Config selects the bookmakers the client trusts.
type Config struct {
	BaseURL   string
	APIKey    string
	Regions   string
	Preferred []string // preference order; the first book is used when none is present
	Sharp     []string
}

// Client implements ports.OddsProvider.
type Client struct {
	http      *http.Client
	base      string
	apiKey    string
	regions   string
	preferred []string
	sharp     map[string]bool
	limiter   *rate.Limiter
	retryWait time.Duration
	now       func() time.Time
}

// NewClient creates a Client. Empty fields fall back to production defaults.
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	regions := cfg.Regions
	if regions == "" {
		regions = "us,eu"
	}
	preferred := cfg.Preferred
	if len(preferred) == 0 {
		preferred = defaultPreferred
	}
	sharpList := cfg.Sharp
	if len(sharpList) == 0 {
		sharpList = defaultSharp
	}
	sharp := make(map[string]bool, len(sharpList))
	for _, b := range sharpList {
		sharp[strings.ToLower(b)] = true
	}
	return &Client{
		http:      &http.Client{Timeout: 15 * time.Second},
		base:      base,
		apiKey:    cfg.APIKey,
		regions:   regions,
		preferred: preferred,
		sharp:     sharp,
		limiter:   rate.NewLimiter(ratePerSec, 1),
		retryWait: baseRetryWait,
		now:       time.Now,
	}
}

// FetchOdds fetches h2h, spreads and totals for every upcoming game of the
// sport key. One call costs one request of the monthly quota.
func (c *Client) FetchOdds(ctx context.Context, sportKey string) (domain.OddsBatch, error) {
	q := url.Values{}
	q.Set("apiKey", c.apiKey)
	q.Set("regions", c.regions)
	q.Set("markets", "h2h,spreads,totals")
	q.Set("oddsFormat", "american")
	endpoint := fmt.Sprintf("%s/v4/sports/%s/odds?%s", c.base, url.PathEscape(sportKey), q.Encode())

	var games []apiGame
	hdr, err := c.get(ctx, endpoint, &games)
	if err != nil {
		return domain.OddsBatch{}, fmt.Errorf("oddsapi.FetchOdds %s: %w", sportKey, err)
	}

	now := c.now()
	batch := domain.OddsBatch{
		Quotes:    make([]domain.ReferenceQuote, 0, len(games)),
		Remaining: headerInt(hdr, headerRemaining),
		Used:      headerInt(hdr, headerUsed),
		FetchedAt: now,
	}
	for _, g := range games {
		quote, ok := c.mapGame(g, now)
		if !ok {
			continue
		}
		batch.Quotes = append(batch.Quotes, quote)
	}

	slog.Debug("oddsapi: odds fetched",
		"sport", sportKey,
		"games", len(games),
		"quotes", len(batch.Quotes),
		"remaining", batch.Remaining,
	)
	return batch, nil
}

// mapGame picks one bookmaker for the game and converts its markets.
func (c *Client) mapGame(g apiGame, now time.Time) (domain.ReferenceQuote, bool) {
	book, ok := c.pickBookmaker(g.Bookmakers)
	if !ok {
		return domain.ReferenceQuote{}, false
	}
	quote := domain.ReferenceQuote{
		EventID:    g.ID,
		HomeTeam:   g.HomeTeam,
		AwayTeam:   g.AwayTeam,
		Bookmaker:  book.Key,
		Provenance: domain.ProvenanceSoft,
		FetchedAt:  now,
	}
	if c.sharp[strings.ToLower(book.Key)] {
		quote.Provenance = domain.ProvenanceSharp
	}
	if t, err := time.Parse(time.RFC3339, g.CommenceTime); err == nil {
		quote.CommenceTime = t.UTC()
	}
	for _, m := range book.Markets {
		outcomes := mapOutcomes(m.Outcomes)
		switch m.Key {
		case "h2h":
			quote.H2H = outcomes
		case "spreads":
			quote.Spreads = outcomes
		case "totals":
			quote.Totals = outcomes
		}
	}
	return quote, true
}

// pickBookmaker returns the first preferred bookmaker present, else the first listed.
func (c *Client) pickBookmaker(books []apiBookmaker) (apiBookmaker, bool) {
	if len(books) == 0 {
		return apiBookmaker{}, false
	}
	for _, key := range c.preferred {
		for _, b := range books {
			if strings.EqualFold(b.Key, key) {
				return b, true
			}
		}
	}
	return books[0], true
}

func mapOutcomes(raw []apiOutcome) []domain.OutcomeOdds {
	out := make([]domain.OutcomeOdds, 0, len(raw))
	for _, o := range raw {
		odds := domain.OutcomeOdds{Name: o.Name, Price: o.Price}
		if o.Point != nil {
			odds.Point = *o.Point
		}
		out = append(out, odds)
	}
	return out
}

// headerInt parses a quota header; -1 when missing or malformed.
func headerInt(h http.Header, key string) int {
	v := strings.TrimSpace(h.Get(key))
	if v == "" {
		return -1
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return -1
	}
	return int(n)
}

// get runs a rate-limited GET with retries and returns the headers of the
// successful response. 429 and 5xx are retried, other 4xx are not.
func (c *Client) get(ctx context.Context, endpoint string, out any) (http.Header, error) {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries || ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", domain.ErrTransientNetwork, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return nil, fmt.Errorf("%w: status %d after %d retries", domain.ErrTransientNetwork, resp.StatusCode, maxRetries)
			}
			slog.Warn("oddsapi: retrying", "status", resp.StatusCode, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			// 401 = bad key, 422 = unknown sport
			return nil, fmt.Errorf("client error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return resp.Header, nil
	}
	return nil, fmt.Errorf("exhausted %d retries", maxRetries)
}

func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
