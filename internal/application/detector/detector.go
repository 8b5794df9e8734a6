// Package detector turns priced markets into ranked opportunities.
package detector

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

// Config holds the detection thresholds.
type Config struct {
	MinEdge            float64                       // default fair-value threshold
	MinEdgeByType      map[domain.MarketType]float64 // per-type override
	DisabledTypes      []domain.MarketType
	Threshold          float64 // structural: ask_yes + ask_no must be below this
	ThresholdInclusive bool    // use <= instead of <
	MinDepthShares     float64
	FeeRate            float64 // taker fee peak charged per leg, 0 for none
	StaleBuffer        time.Duration
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		MinEdge:        0.03,
		Threshold:      0.96,
		MinDepthShares: 5,
		FeeRate:        DefaultTakerFeeRate,
		StaleBuffer:    time.Hour,
	}
}

// Detector evaluates markets. It holds no mutable state.
type Detector struct {
	cfg      Config
	disabled map[domain.MarketType]bool
	newID    func() string
}

// New creates a Detector.
func New(cfg Config) *Detector {
	d := &Detector{
		cfg:      cfg,
		disabled: make(map[domain.MarketType]bool, len(cfg.DisabledTypes)),
		newID:    uuid.NewString,
	}
	for _, t := range cfg.DisabledTypes {
		d.disabled[t] = true
	}
	return d
}

// Enabled reports whether fair-value detection runs for t.
func (d *Detector) Enabled(t domain.MarketType) bool {
	return !d.disabled[t]
}

// MinEdgeFor returns the fair-value threshold for a market type. A per-type
// value wins, then the sport's own threshold, then the global default.
func (d *Detector) MinEdgeFor(t domain.MarketType, sport domain.Sport) float64 {
	if v, ok := d.cfg.MinEdgeByType[t]; ok && v > 0 {
		return v
	}
	if sport.MinEdge > 0 {
		return sport.MinEdge
	}
	return d.cfg.MinEdge
}

// FairValue compares the fair YES probability against both asks and returns
// the better side when its edge clears the threshold. The error carries the
// skip reason when there is no opportunity.
func (d *Detector) FairValue(m domain.Market, fairYes float64, sport domain.Sport, now time.Time) (domain.Opportunity, error) {
	if m.IsStale(now, d.cfg.StaleBuffer) {
		return domain.Opportunity{}, fmt.Errorf("detector.FairValue: %s: %w", m.ID, domain.ErrStaleMarket)
	}
	if d.disabled[m.Type] {
		return domain.Opportunity{}, errSkip(domain.ReasonTypeDisabled, "%s disabled", m.Type)
	}
	yes, no := m.Yes(), m.No()
	if yes.Ask <= 0 || no.Ask <= 0 {
		return domain.Opportunity{}, errSkip(domain.ReasonThinBook, "missing ask on %s", m.ID)
	}

	edgeYes := round6(fairYes - yes.Ask)
	edgeNo := round6((1 - fairYes) - no.Ask)

	side, out, fair, edge := domain.SideYes, yes, fairYes, edgeYes
	if edgeNo > edgeYes {
		side, out, fair, edge = domain.SideNo, no, 1-fairYes, edgeNo
	}

	minEdge := d.MinEdgeFor(m.Type, sport)
	if edge < minEdge {
		return domain.Opportunity{}, errSkip(domain.ReasonNoEdge, "edge %.4f < %.4f", edge, minEdge)
	}

	return domain.Opportunity{
		ID:       d.newID(),
		Market:   m,
		Strategy: domain.StrategyFairValue,
		Legs: []domain.Leg{
			{Side: side, TokenID: out.TokenID, Price: out.Ask, Depth: out.Depth},
		},
		FairProb:   fair,
		Edge:       edge,
		ROI:        edge / out.Ask,
		Liquidity:  out.Depth,
		DetectedAt: now,
	}, nil
}

// Structural checks the paired condition ask_yes + ask_no < threshold (or <=
// when inclusive) with enough depth on both legs. Edge is the margin per
// share net of both taker fees: 1 - sum - fees. A pair whose fees eat the
// whole margin is not an opportunity.
func (d *Detector) Structural(m domain.Market, now time.Time) (domain.Opportunity, error) {
	if m.IsStale(now, d.cfg.StaleBuffer) {
		return domain.Opportunity{}, fmt.Errorf("detector.Structural: %s: %w", m.ID, domain.ErrStaleMarket)
	}
	yes, no := m.Yes(), m.No()
	if yes.Ask <= 0 || no.Ask <= 0 {
		return domain.Opportunity{}, errSkip(domain.ReasonThinBook, "missing ask on %s", m.ID)
	}

	// round away float noise so 0.45+0.48 compares as 0.93
	sum := round6(yes.Ask + no.Ask)
	if !d.below(sum) {
		return domain.Opportunity{}, errSkip(domain.ReasonNoEdge, "sum %.4f vs threshold %.4f", sum, d.cfg.Threshold)
	}
	if yes.Depth < d.cfg.MinDepthShares || no.Depth < d.cfg.MinDepthShares {
		return domain.Opportunity{}, errSkip(domain.ReasonThinBook, "depth %.1f/%.1f < %.1f",
			yes.Depth, no.Depth, d.cfg.MinDepthShares)
	}

	fees := PairFees(yes.Ask, no.Ask, d.cfg.FeeRate)
	margin := round6(1 - sum - fees)
	if margin <= 0 {
		return domain.Opportunity{}, errSkip(domain.ReasonNoEdge, "net margin %.5f after fees %.5f", margin, fees)
	}
	depth := math.Min(yes.Depth, no.Depth)
	return domain.Opportunity{
		ID:       d.newID(),
		Market:   m,
		Strategy: domain.StrategyStructural,
		Legs: []domain.Leg{
			{Side: domain.SideYes, TokenID: yes.TokenID, Price: yes.Ask, Depth: yes.Depth},
			{Side: domain.SideNo, TokenID: no.TokenID, Price: no.Ask, Depth: no.Depth},
		},
		Edge:       margin,
		ROI:        margin / sum,
		Liquidity:  depth,
		DetectedAt: now,
	}, nil
}

func (d *Detector) below(sum float64) bool {
	th := round6(d.cfg.Threshold)
	if d.cfg.ThresholdInclusive {
		return sum <= th
	}
	return sum < th
}

// Rank orders opportunities by edge descending, then liquidity descending.
func Rank(opps []domain.Opportunity) []domain.Opportunity {
	domain.RankOpportunities(opps)
	return opps
}

// SkipError is a non-opportunity with its reason code.
type SkipError struct {
	Reason domain.ReasonCode
	Detail string
}

func (e *SkipError) Error() string { return string(e.Reason) + ": " + e.Detail }

// ReasonOf returns the skip reason of err, falling back to the taxonomy.
func ReasonOf(err error) domain.ReasonCode {
	var s *SkipError
	if errors.As(err, &s) {
		return s.Reason
	}
	return domain.ReasonOf(err)
}

func errSkip(reason domain.ReasonCode, format string, args ...any) error {
	return &SkipError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
