package normalizer

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

var now = time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)

func nba() domain.Sport {
	return domain.Sport{
		Name: "nba",
		TeamAliases: map[string][]string{
			"Los Angeles Lakers": {"Lakers", "LA Lakers"},
			"Boston Celtics":     {"Celtics"},
		},
	}
}

func lakersQuote() domain.ReferenceQuote {
	return domain.ReferenceQuote{
		EventID:    "ev1",
		HomeTeam:   "Los Angeles Lakers",
		AwayTeam:   "Boston Celtics",
		Bookmaker:  "pinnacle",
		Provenance: domain.ProvenanceSharp,
		H2H: []domain.OutcomeOdds{
			{Name: "Los Angeles Lakers", Price: -150},
			{Name: "Boston Celtics", Price: 130},
		},
		Spreads: []domain.OutcomeOdds{
			{Name: "Los Angeles Lakers", Price: -110, Point: -5.5},
			{Name: "Boston Celtics", Price: -110, Point: 5.5},
		},
		Totals: []domain.OutcomeOdds{
			{Name: "Over", Price: -120, Point: 220.5},
			{Name: "Under", Price: 100, Point: 220.5},
		},
		FetchedAt: now,
	}
}

func lakersMarket(t domain.MarketType, question string, line float64) domain.Market {
	return domain.Market{
		ID:       "m1",
		Question: question,
		Type:     t,
		HomeTeam: "Lakers",
		AwayTeam: "Celtics",
		Line:     line,
		EndDate:  now.Add(6 * time.Hour),
	}
}

func TestDevigTwoWay(t *testing.T) {
	// 0.60 / (0.60 + 0.4348) = 0.5798
	probs, err := DevigTwoWay([]float64{0.60, 100.0 / 230.0})
	require.NoError(t, err)
	assert.InDelta(t, 0.5798, probs[0], 1e-4)
	assert.InDelta(t, 1.0, probs[0]+probs[1], 1e-9)

	_, err = DevigTwoWay([]float64{0.5, 0.5, 0.1})
	assert.ErrorIs(t, err, domain.ErrImplausibleProbability)
}

func TestDevigPower_ThreeWaySumsToOne(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		raw := make([]float64, 3)
		var sum float64
		for j := range raw {
			raw[j] = 0.05 + rng.Float64()*0.6
			sum += raw[j]
		}
		overround := 1.02 + rng.Float64()*0.08
		for j := range raw {
			raw[j] = raw[j] / sum * overround
		}

		probs, err := DevigPower(raw, 1.15)
		require.NoError(t, err)

		var total float64
		for _, p := range probs {
			assert.Greater(t, p, 0.0)
			assert.Less(t, p, 1.0)
			total += p
		}
		assert.GreaterOrEqual(t, total, 0.99)
		assert.LessOrEqual(t, total, 1.01)
	}
}

func TestDevigPower_ShrinksLongshot(t *testing.T) {
	raw := []float64{0.50, 0.28, 0.27}
	power, err := DevigPower(raw, 1.15)
	require.NoError(t, err)
	mult, err := DevigPower(raw, 1)
	require.NoError(t, err)

	assert.Greater(t, power[0], mult[0], "favourite gains under k > 1")
	assert.Less(t, power[2], mult[2], "longshot loses under k > 1")
}

func TestFairProbability_Moneyline(t *testing.T) {
	n := New(DefaultConfig())
	m := lakersMarket(domain.MarketMoneyline, "Will the Lakers beat the Celtics?", 0)

	fair, err := n.FairProbability(m, []domain.ReferenceQuote{lakersQuote()}, nba(), now)
	require.NoError(t, err)
	assert.InDelta(t, 0.5798, fair.Prob, 1e-4)
	assert.Equal(t, "pinnacle", fair.Quote.Bookmaker)

	m.Question = "Celtics vs. Lakers: who wins?"
	fair, err = n.FairProbability(m, []domain.ReferenceQuote{lakersQuote()}, nba(), now)
	require.NoError(t, err)
	assert.InDelta(t, 1-0.5798, fair.Prob, 1e-4)
}

func TestFairProbability_Spread(t *testing.T) {
	n := New(DefaultConfig())
	m := lakersMarket(domain.MarketSpread, "Spread: Lakers (-5.5)", -5.5)

	fair, err := n.FairProbability(m, []domain.ReferenceQuote{lakersQuote()}, nba(), now)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, fair.Prob, 1e-9)

	m.Line = -6.5
	_, err = n.FairProbability(m, []domain.ReferenceQuote{lakersQuote()}, nba(), now)
	assert.ErrorIs(t, err, domain.ErrNoReference)
}

func TestFairProbability_Total(t *testing.T) {
	n := New(DefaultConfig())
	m := lakersMarket(domain.MarketTotal, "Lakers vs. Celtics: O/U 220.5", 220.5)

	// over 0.5455, under 0.5000 -> 0.5455 / 1.0455 = 0.5217
	fair, err := n.FairProbability(m, []domain.ReferenceQuote{lakersQuote()}, nba(), now)
	require.NoError(t, err)
	assert.InDelta(t, 0.5217, fair.Prob, 1e-4)
}

func TestFairProbability_ThreeWay(t *testing.T) {
	n := New(DefaultConfig())
	sport := domain.Sport{Name: "epl", ThreeWay: true}
	q := domain.ReferenceQuote{
		EventID:    "ev2",
		HomeTeam:   "Arsenal",
		AwayTeam:   "Chelsea",
		Provenance: domain.ProvenanceSharp,
		H2H: []domain.OutcomeOdds{
			{Name: "Arsenal", Price: -120},
			{Name: "Draw", Price: 260},
			{Name: "Chelsea", Price: 320},
		},
	}
	win := domain.Market{ID: "w", Question: "Will Arsenal win against Chelsea?", Type: domain.MarketThreeWay,
		HomeTeam: "Arsenal", AwayTeam: "Chelsea", EndDate: now.Add(5 * time.Hour)}
	draw := win
	draw.Question = "Arsenal vs. Chelsea: will it end in a draw?"

	pw, err := n.FairProbability(win, []domain.ReferenceQuote{q}, sport, now)
	require.NoError(t, err)
	pd, err := n.FairProbability(draw, []domain.ReferenceQuote{q}, sport, now)
	require.NoError(t, err)

	assert.Greater(t, pw.Prob, 0.5)
	assert.GreaterOrEqual(t, pd.Prob, 0.05)
	assert.LessOrEqual(t, pd.Prob, 0.45)
}

func TestFairProbability_RejectsImplausibleDraw(t *testing.T) {
	n := New(DefaultConfig())
	q := domain.ReferenceQuote{
		HomeTeam:   "Arsenal",
		AwayTeam:   "Chelsea",
		Provenance: domain.ProvenanceSharp,
		H2H: []domain.OutcomeOdds{
			{Name: "Arsenal", Price: 400},
			{Name: "Draw", Price: -186}, // ~65% raw
			{Name: "Chelsea", Price: 500},
		},
	}
	m := domain.Market{ID: "w", Question: "Will Arsenal win?", Type: domain.MarketThreeWay,
		HomeTeam: "Arsenal", AwayTeam: "Chelsea", EndDate: now.Add(5 * time.Hour)}

	_, err := n.FairProbability(m, []domain.ReferenceQuote{q}, domain.Sport{}, now)
	assert.ErrorIs(t, err, domain.ErrImplausibleProbability)
}

func TestFairProbability_Gates(t *testing.T) {
	n := New(DefaultConfig())

	past := lakersMarket(domain.MarketMoneyline, "Will the Lakers beat the Celtics?", 0)
	past.EndDate = now.Add(-time.Minute)
	_, err := n.FairProbability(past, []domain.ReferenceQuote{lakersQuote()}, nba(), now)
	assert.ErrorIs(t, err, domain.ErrStaleMarket)

	soon := lakersMarket(domain.MarketMoneyline, "Will the Lakers beat the Celtics?", 0)
	soon.EndDate = now.Add(30 * time.Minute)
	_, err = n.FairProbability(soon, []domain.ReferenceQuote{lakersQuote()}, nba(), now)
	assert.ErrorIs(t, err, domain.ErrStaleMarket, "inside the one hour buffer")

	soft := lakersQuote()
	soft.Provenance = domain.ProvenanceSoft
	m := lakersMarket(domain.MarketMoneyline, "Will the Lakers beat the Celtics?", 0)
	_, err = n.FairProbability(m, []domain.ReferenceQuote{soft}, nba(), now)
	assert.ErrorIs(t, err, domain.ErrUntrustedSource)

	other := lakersMarket(domain.MarketMoneyline, "Will the Knicks beat the Nets?", 0)
	other.HomeTeam, other.AwayTeam = "Knicks", "Nets"
	_, err = n.FairProbability(other, []domain.ReferenceQuote{lakersQuote()}, nba(), now)
	assert.ErrorIs(t, err, domain.ErrNoReference)

	paired := lakersMarket(domain.MarketPaired, "Lakers vs. Celtics", 0)
	_, err = n.FairProbability(paired, []domain.ReferenceQuote{lakersQuote()}, nba(), now)
	assert.True(t, errors.Is(err, domain.ErrNoReference))
}

func TestFairProbability_SoftAllowedWhenNotRequired(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireSharp = false
	n := New(cfg)

	soft := lakersQuote()
	soft.Provenance = domain.ProvenanceSoft
	m := lakersMarket(domain.MarketMoneyline, "Will the Lakers beat the Celtics?", 0)
	_, err := n.FairProbability(m, []domain.ReferenceQuote{soft}, nba(), now)
	assert.NoError(t, err)
}

func TestCanonicalize(t *testing.T) {
	assert.Equal(t, "st louis blues", canonicalize("St. Louis  Blues!"))
	assert.Equal(t, "o u 220 5", canonicalize("O/U 220.5"))
}
