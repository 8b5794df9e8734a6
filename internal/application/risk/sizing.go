package risk

import (
	"fmt"
	"math"
	"strings"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

// SizingMode selects how much of the bankroll an admitted opportunity gets.
type SizingMode string

const (
	SizingFixed  SizingMode = "fixed"
	SizingKelly  SizingMode = "kelly"
	SizingCapped SizingMode = "capped"
)

// ParseSizingMode validates a config value.
func ParseSizingMode(s string) (SizingMode, error) {
	switch m := SizingMode(strings.ToLower(strings.TrimSpace(s))); m {
	case SizingFixed, SizingKelly, SizingCapped:
		return m, nil
	case "":
		return SizingFixed, nil
	default:
		return "", fmt.Errorf("risk: unknown sizing mode %q", s)
	}
}

// kellySize returns fraction × edge / (1 − price) × bankroll raised to min,
// then cut to min(max, maxPct × bankroll). The ceiling wins when the two
// cross. price is the cost of one share.
func kellySize(cfg Config, edge, price, bankroll float64) float64 {
	if price <= 0 || price >= 1 || edge <= 0 {
		return 0
	}
	f := cfg.KellyFraction * edge / (1 - price)
	size := f * bankroll

	upper := cfg.KellyMax
	if cfg.KellyMaxBankrollPct > 0 {
		pctCap := cfg.KellyMaxBankrollPct * bankroll
		if upper <= 0 || pctCap < upper {
			upper = pctCap
		}
	}
	size = math.Max(size, cfg.KellyMin)
	if upper > 0 {
		size = math.Min(size, upper)
	}
	return size
}

// baseSize is the mode's request before the per-market, daily and game caps.
func (m *Manager) baseSize(opp domain.Opportunity, dailyRemaining float64) float64 {
	switch m.cfg.Sizing {
	case SizingKelly:
		return kellySize(m.cfg, opp.Edge, opp.CostPerShare(), m.ledger.Bankroll)
	case SizingCapped:
		size := m.cfg.PerMarketCap
		if dailyRemaining >= 0 && (size <= 0 || dailyRemaining < size) {
			size = dailyRemaining
		}
		return size
	default:
		return m.cfg.FixedSize
	}
}

func roundCents(v float64) float64 {
	return math.Floor(v*100+1e-9) / 100
}
