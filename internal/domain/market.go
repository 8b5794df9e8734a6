package domain

import (
	"strings"
	"time"
)

// MarketType is the market shape. Normalizer and detector dispatch on it.
type MarketType int

const (
	MarketMoneyline MarketType = iota
	MarketSpread
	MarketTotal
	MarketThreeWay
	MarketPaired
)

// String returns the config/log tag of the market type.
func (t MarketType) String() string {
	switch t {
	case MarketMoneyline:
		return "moneyline"
	case MarketSpread:
		return "spread"
	case MarketTotal:
		return "total"
	case MarketThreeWay:
		return "three_way"
	case MarketPaired:
		return "paired"
	default:
		return "unknown"
	}
}

// ParseMarketType is the inverse of String. ok is false for unknown tags.
func ParseMarketType(s string) (MarketType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "moneyline", "h2h":
		return MarketMoneyline, true
	case "spread", "spreads":
		return MarketSpread, true
	case "total", "totals":
		return MarketTotal, true
	case "three_way", "three-way", "3way":
		return MarketThreeWay, true
	case "paired", "paired_arbitrage":
		return MarketPaired, true
	}
	return 0, false
}

// Outcome is one tradable side of a venue market.
type Outcome struct {
	Name    string
	TokenID string
	Ask     float64 // best ask
	Bid     float64 // best bid
	Depth   float64 // shares available at the best ask
}

// Market is a binary venue instrument as returned by discovery.
// Outcomes[0] is YES and Outcomes[1] is NO.
type Market struct {
	ID       string
	EventID  string
	Sport    string
	Question string
	Type     MarketType
	Outcomes []Outcome
	HomeTeam string
	AwayTeam string
	Line     float64 // spread/total point, 0 when not applicable
	EndDate  time.Time
	NegRisk  bool
}

// Yes returns the YES outcome, or a zero Outcome when the market is malformed.
func (m Market) Yes() Outcome {
	if len(m.Outcomes) == 0 {
		return Outcome{}
	}
	return m.Outcomes[0]
}

// No returns the NO outcome, or a zero Outcome when the market is malformed.
func (m Market) No() Outcome {
	if len(m.Outcomes) < 2 {
		return Outcome{}
	}
	return m.Outcomes[1]
}

// Outcome returns the venue outcome for a side.
func (m Market) Outcome(side Side) Outcome {
	if side == SideNo {
		return m.No()
	}
	return m.Yes()
}

// HoursToResolution returns the hours from now until resolution, or 0 when
// EndDate is unset or past.
func (m Market) HoursToResolution(now time.Time) float64 {
	if m.EndDate.IsZero() {
		return 0
	}
	h := m.EndDate.Sub(now).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// IsStale reports whether the market resolves before now+buffer.
// A missing end date counts as stale.
func (m Market) IsStale(now time.Time, buffer time.Duration) bool {
	if m.EndDate.IsZero() {
		return true
	}
	return !m.EndDate.After(now.Add(buffer))
}

// TruncateQuestion cuts the question to maxLen characters, falling back to
// the market id when empty.
func TruncateQuestion(question, marketID string, maxLen int) string {
	q := question
	if q == "" {
		if len(marketID) > 20 {
			q = marketID[:20] + "..."
		} else {
			q = marketID
		}
	}
	if len(q) > maxLen && maxLen > 3 {
		q = q[:maxLen-3] + "..."
	}
	return q
}

// Sport is a market class scanned by its own loop.
type Sport struct {
	Name         string
	DisplayName  string
	OddsKey      string // The Odds API sport key
	TagSlug      string // Gamma tag used for discovery
	ThreeWay     bool
	ScanInterval time.Duration
	MinEdge      float64
	MaxPerGame   float64
	TeamAliases  map[string][]string // canonical name -> aliases
}
