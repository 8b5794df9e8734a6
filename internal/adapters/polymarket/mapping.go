package polymarket

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

var (
	totalLineRe  = regexp.MustCompile(`(?:o/u|over/under|total)\s+(\d+(?:\.\d+)?)`)
	spreadLineRe = regexp.MustCompile(`\(([+-]?\d+(?:\.\d+)?)\)`)
	teamsSplitRe = regexp.MustCompile(`(?i)\s+(?:vs\.?|v\.?|@|at)\s+`)
)

// mapEvent converts a Gamma event into domain markets, still unpriced.
// Closed markets, markets without tokens and unsupported types are dropped.
func mapEvent(ev gammaEvent, sport domain.Sport, now time.Time) []domain.Market {
	first, second := splitTeams(ev.Title)
	out := make([]domain.Market, 0, len(ev.Markets))
	for _, gm := range ev.Markets {
		if gm.Closed {
			continue
		}
		m, ok := mapMarket(gm, ev, sport)
		if !ok {
			continue
		}
		if !m.EndDate.After(now) {
			continue
		}
		m.HomeTeam, m.AwayTeam = first, second
		out = append(out, m)
	}
	return out
}

func mapMarket(gm gammaMarket, ev gammaEvent, sport domain.Sport) (domain.Market, bool) {
	names := parseStringArray(gm.Outcomes)
	tokens := parseStringArray(gm.ClobTokenIDs)
	if len(names) != 2 || len(tokens) != 2 {
		return domain.Market{}, false
	}

	typ, ok := marketType(gm.Question, gm.SportsMarketType, names, sport.ThreeWay)
	if !ok {
		return domain.Market{}, false
	}

	end := parseDate(gm.EndDate)
	if end.IsZero() {
		end = parseDate(ev.EndDate)
	}

	m := domain.Market{
		ID:       gm.ID,
		EventID:  ev.ID,
		Sport:    sport.Name,
		Question: gm.Question,
		Type:     typ,
		Outcomes: []domain.Outcome{
			{Name: names[0], TokenID: tokens[0]},
			{Name: names[1], TokenID: tokens[1]},
		},
		Line:    marketLine(gm, typ),
		EndDate: end,
		NegRisk: gm.NegRisk || ev.NegRisk || ev.EnableNegRisk,
	}
	return m, true
}

// marketType infers the market type. Outcomes other than Yes/No mean a
// head-to-head market (team against team). Gamma sometimes reports
// sportsMarketType; otherwise the question decides.
func marketType(question, sportsType string, outcomes []string, threeWay bool) (domain.MarketType, bool) {
	if !isYesNo(outcomes) {
		return domain.MarketPaired, true
	}

	moneyline := domain.MarketMoneyline
	if threeWay {
		moneyline = domain.MarketThreeWay
	}

	if t, ok := domain.ParseMarketType(sportsType); ok {
		if t == domain.MarketMoneyline {
			return moneyline, true
		}
		return t, true
	}

	q := strings.ToLower(question)
	switch {
	case strings.Contains(q, "o/u"), strings.Contains(q, "over/under"), strings.Contains(q, "total"):
		return domain.MarketTotal, true
	case strings.Contains(q, "spread"):
		return domain.MarketSpread, true
	case strings.Contains(q, "both teams"), strings.Contains(q, "btts"):
		// no sportsbook reference
		return 0, false
	}
	return moneyline, true
}

func isYesNo(outcomes []string) bool {
	return len(outcomes) == 2 &&
		strings.EqualFold(outcomes[0], "yes") &&
		strings.EqualFold(outcomes[1], "no")
}

// marketLine returns the spread or total point from Gamma's "line", or
// from the question when missing.
func marketLine(gm gammaMarket, typ domain.MarketType) float64 {
	if v, err := gm.Line.Float64(); err == nil && v != 0 {
		return v
	}
	q := strings.ToLower(gm.Question)
	var re *regexp.Regexp
	switch typ {
	case domain.MarketTotal:
		re = totalLineRe
	case domain.MarketSpread:
		re = spreadLineRe
	default:
		return 0
	}
	match := re.FindStringSubmatch(q)
	if match == nil {
		return 0
	}
	v, _ := strconv.ParseFloat(match[1], 64)
	return v
}

// splitTeams splits "Lakers vs. Celtics" into its two teams.
func splitTeams(title string) (string, string) {
	parts := teamsSplitRe.Split(strings.TrimSpace(title), 2)
	if len(parts) != 2 {
		return "", ""
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

// parseStringArray decodes Gamma's JSON-in-a-string arrays.
func parseStringArray(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

// parseDate accepts Gamma's date layouts.
func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05Z",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// resolutionFromGamma reads a closed market: the winning side trades near 1.
func resolutionFromGamma(gm gammaMarket) domain.Resolution {
	res := domain.Resolution{MarketID: gm.ID}
	if !gm.Closed {
		return res
	}
	prices := parseStringArray(gm.OutcomePrices)
	if len(prices) < 2 {
		return res
	}
	yes, _ := strconv.ParseFloat(prices[0], 64)
	no, _ := strconv.ParseFloat(prices[1], 64)
	switch {
	case yes >= 0.99:
		res.Resolved, res.Winner = true, domain.SideYes
	case no >= 0.99:
		res.Resolved, res.Winner = true, domain.SideNo
	}
	return res
}

// applyBooks loads best ask, best bid and depth from the books.
func applyBooks(markets []domain.Market, books map[string]domain.OrderBook) {
	for i := range markets {
		for j := range markets[i].Outcomes {
			o := &markets[i].Outcomes[j]
			ob, ok := books[o.TokenID]
			if !ok {
				continue
			}
			o.Ask = ob.BestAsk()
			o.Bid = ob.BestBid()
			o.Depth = ob.BestAskDepth()
		}
	}
}

// mapOrderBooks turns the /books batch response into tokenID→OrderBook.
func mapOrderBooks(raw []orderBookResponse) map[string]domain.OrderBook {
	result := make(map[string]domain.OrderBook, len(raw))
	for _, r := range raw {
		result[r.AssetID] = domain.OrderBook{
			TokenID: r.AssetID,
			Bids:    mapBookEntries(r.Bids, false),
			Asks:    mapBookEntries(r.Asks, true),
		}
	}
	return result
}

// mapBookEntries converts raw entries to sorted domain.BookEntry.
// ascending=true → menor a mayor (asks), ascending=false → mayor a menor (bids).
func mapBookEntries(raw []bookEntryRaw, ascending bool) []domain.BookEntry {
	entries := make([]domain.BookEntry, 0, len(raw))
	for _, r := range raw {
		price := domain.ParsePrice(r.Price)
		size := domain.ParsePrice(r.Size)
		if price <= 0 || size <= 0 {
			continue
		}
		entries = append(entries, domain.BookEntry{Price: price, Size: size})
	}

	sort.Slice(entries, func(i, j int) bool {
		if ascending {
			return entries[i].Price < entries[j].Price
		}
		return entries[i].Price > entries[j].Price
	})

	return entries
}
