// Package normalizer turns sportsbook odds into de-vigged fair probabilities
// for venue markets, guarded by source, plausibility and staleness gates.
package normalizer

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

// Config controls the de-vig method and the gates.
type Config struct {
	PowerExponent float64
	ProbMin       float64
	ProbMax       float64
	SumMin        float64
	SumMax        float64
	DrawMin       float64
	DrawMax       float64
	RequireSharp  bool
	StaleBuffer   time.Duration
	LineTolerance float64
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		PowerExponent: 1.15,
		ProbMin:       0.01,
		ProbMax:       0.99,
		SumMin:        0.99,
		SumMax:        1.01,
		DrawMin:       0.05,
		DrawMax:       0.45,
		RequireSharp:  true,
		StaleBuffer:   time.Hour,
		LineTolerance: 0.01,
	}
}

// Normalizer is stateless apart from its config and is safe for concurrent use.
type Normalizer struct {
	cfg Config
}

// New creates a Normalizer. Zero values in cfg fall back to DefaultConfig.
func New(cfg Config) *Normalizer {
	def := DefaultConfig()
	if cfg.PowerExponent <= 0 {
		cfg.PowerExponent = def.PowerExponent
	}
	if cfg.ProbMax <= 0 {
		cfg.ProbMin, cfg.ProbMax = def.ProbMin, def.ProbMax
	}
	if cfg.SumMax <= 0 {
		cfg.SumMin, cfg.SumMax = def.SumMin, def.SumMax
	}
	if cfg.DrawMax <= 0 {
		cfg.DrawMin, cfg.DrawMax = def.DrawMin, def.DrawMax
	}
	if cfg.LineTolerance <= 0 {
		cfg.LineTolerance = def.LineTolerance
	}
	return &Normalizer{cfg: cfg}
}

// Config returns the effective configuration.
func (n *Normalizer) Config() Config { return n.cfg }

// Fair is the result of pricing one market against the reference.
type Fair struct {
	Prob  float64 // fair probability of YES
	Quote domain.ReferenceQuote
}

// FairProbability returns the fair YES probability of m using the matching
// quote. Gates run in order: staleness, matching, source quality, then the
// per-type de-vig with its plausibility check.
func (n *Normalizer) FairProbability(m domain.Market, quotes []domain.ReferenceQuote, sport domain.Sport, now time.Time) (Fair, error) {
	if m.IsStale(now, n.cfg.StaleBuffer) {
		return Fair{}, fmt.Errorf("market %s ends %s: %w", m.ID, m.EndDate.Format(time.RFC3339), domain.ErrStaleMarket)
	}

	teams := newTeamIndex(sport.TeamAliases)
	q, ok := matchQuote(m, quotes, teams)
	if !ok {
		return Fair{}, fmt.Errorf("market %s: %w", m.ID, domain.ErrNoReference)
	}
	if n.cfg.RequireSharp && q.Provenance != domain.ProvenanceSharp {
		return Fair{}, fmt.Errorf("bookmaker %s is %s: %w", q.Bookmaker, q.Provenance, domain.ErrUntrustedSource)
	}

	var (
		p   float64
		err error
	)
	switch m.Type {
	case domain.MarketMoneyline, domain.MarketThreeWay:
		p, err = n.h2h(m, q, teams)
	case domain.MarketSpread:
		p, err = n.spread(m, q, teams)
	case domain.MarketTotal:
		p, err = n.total(m, q)
	default:
		err = fmt.Errorf("market type %s has no reference: %w", m.Type, domain.ErrNoReference)
	}
	if err != nil {
		return Fair{}, err
	}
	return Fair{Prob: p, Quote: q}, nil
}

func (n *Normalizer) h2h(m domain.Market, q domain.ReferenceQuote, teams teamIndex) (float64, error) {
	if len(q.H2H) < 2 {
		return 0, fmt.Errorf("quote %s has %d h2h outcomes: %w", q.EventID, len(q.H2H), domain.ErrNoReference)
	}
	raw := make([]float64, len(q.H2H))
	drawIdx := -1
	for i, o := range q.H2H {
		raw[i] = o.ImpliedProb()
		if isDraw(o.Name) {
			drawIdx = i
		}
	}
	probs, err := n.Normalize(raw)
	if err != nil {
		return 0, err
	}
	if err := n.CheckPlausible(probs, drawIdx); err != nil {
		return 0, fmt.Errorf("event %s: %w", q.EventID, err)
	}

	if mentionsDraw(m.Question) {
		if drawIdx < 0 {
			return 0, fmt.Errorf("draw market without draw price: %w", domain.ErrNoReference)
		}
		return probs[drawIdx], nil
	}
	team := teams.firstMentioned(m.Question, q.HomeTeam, q.AwayTeam)
	if team == "" {
		return 0, fmt.Errorf("no team in %q: %w", m.Question, domain.ErrNoReference)
	}
	for i, o := range q.H2H {
		if teams.canonical(o.Name) == team {
			return probs[i], nil
		}
	}
	return 0, fmt.Errorf("team %s not priced: %w", team, domain.ErrNoReference)
}

func (n *Normalizer) spread(m domain.Market, q domain.ReferenceQuote, teams teamIndex) (float64, error) {
	team := teams.firstMentioned(m.Question, q.HomeTeam, q.AwayTeam)
	if team == "" {
		return 0, fmt.Errorf("no team in %q: %w", m.Question, domain.ErrNoReference)
	}
	sel, other := -1, -1
	for i, o := range q.Spreads {
		if teams.canonical(o.Name) == team && n.sameLine(o.Point, m.Line) {
			sel = i
		}
	}
	if sel < 0 {
		return 0, fmt.Errorf("no %s spread at %.1f: %w", team, m.Line, domain.ErrNoReference)
	}
	for i, o := range q.Spreads {
		if i != sel && teams.canonical(o.Name) != team && n.sameLine(o.Point, -m.Line) {
			other = i
		}
	}
	if other < 0 {
		return 0, fmt.Errorf("no counter spread at %.1f: %w", -m.Line, domain.ErrNoReference)
	}
	return n.pair(q.Spreads[sel], q.Spreads[other])
}

// total prices Over as YES.
func (n *Normalizer) total(m domain.Market, q domain.ReferenceQuote) (float64, error) {
	over, under := -1, -1
	for i, o := range q.Totals {
		if !n.sameLine(o.Point, m.Line) {
			continue
		}
		switch strings.ToLower(o.Name) {
		case "over":
			over = i
		case "under":
			under = i
		}
	}
	if over < 0 || under < 0 {
		return 0, fmt.Errorf("no total at %.1f: %w", m.Line, domain.ErrNoReference)
	}
	p, err := n.pair(q.Totals[over], q.Totals[under])
	if err != nil {
		return 0, err
	}
	if mentionsUnder(m.Question) {
		return 1 - p, nil
	}
	return p, nil
}

// pair de-vigs a two-outcome pair and returns the first outcome's probability.
func (n *Normalizer) pair(sel, other domain.OutcomeOdds) (float64, error) {
	probs, err := DevigTwoWay([]float64{sel.ImpliedProb(), other.ImpliedProb()})
	if err != nil {
		return 0, err
	}
	if err := n.CheckPlausible(probs, -1); err != nil {
		return 0, err
	}
	return probs[0], nil
}

func (n *Normalizer) sameLine(a, b float64) bool {
	return math.Abs(a-b) <= n.cfg.LineTolerance
}

func isDraw(name string) bool {
	s := strings.ToLower(strings.TrimSpace(name))
	return s == "draw" || s == "tie"
}

func mentionsDraw(question string) bool {
	q := " " + canonicalize(question) + " "
	return strings.Contains(q, " draw ") || strings.Contains(q, " tie ")
}

func mentionsUnder(question string) bool {
	q := " " + canonicalize(question) + " "
	return strings.Contains(q, " under ") && !strings.Contains(q, " over ")
}
