package polymarket

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

func TestMarketType(t *testing.T) {
	yesNo := []string{"Yes", "No"}
	tests := []struct {
		name     string
		question string
		sport    string
		outcomes []string
		threeWay bool
		want     domain.MarketType
		ok       bool
	}{
		{"team outcomes are paired", "Lakers vs. Celtics", "", []string{"Lakers", "Celtics"}, false, domain.MarketPaired, true},
		{"gamma type wins", "Lakers vs. Celtics", "spreads", yesNo, false, domain.MarketSpread, true},
		{"o/u in question", "Arsenal vs. Chelsea: O/U 2.5", "", yesNo, true, domain.MarketTotal, true},
		{"spread in question", "Spread: Lakers (-5.5)", "", yesNo, false, domain.MarketSpread, true},
		{"btts unsupported", "Both teams to score?", "", yesNo, true, 0, false},
		{"moneyline", "Will the Lakers win?", "", yesNo, false, domain.MarketMoneyline, true},
		{"soccer moneyline is three-way", "Will Arsenal win?", "moneyline", yesNo, true, domain.MarketThreeWay, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := marketType(tt.question, tt.sport, tt.outcomes, tt.threeWay)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestMarketLine(t *testing.T) {
	assert.InDelta(t, 2.5, marketLine(gammaMarket{Question: "Arsenal vs. Chelsea: O/U 2.5"}, domain.MarketTotal), 1e-9)
	assert.InDelta(t, 221.5, marketLine(gammaMarket{Question: "Over/Under 221.5 points"}, domain.MarketTotal), 1e-9)
	assert.InDelta(t, 3.5, marketLine(gammaMarket{Question: "Spread: Celtics (+3.5)"}, domain.MarketSpread), 1e-9)
	assert.InDelta(t, -1.5, marketLine(gammaMarket{Question: "anything", Line: "-1.5"}, domain.MarketSpread), 1e-9)
	assert.Zero(t, marketLine(gammaMarket{Question: "Will the Lakers win?"}, domain.MarketMoneyline))
}

func TestSplitTeams(t *testing.T) {
	a, b := splitTeams("Lakers vs. Celtics")
	assert.Equal(t, "Lakers", a)
	assert.Equal(t, "Celtics", b)

	a, b = splitTeams("Real Madrid vs Barcelona")
	assert.Equal(t, "Real Madrid", a)
	assert.Equal(t, "Barcelona", b)

	a, b = splitTeams("NBA Champion 2026")
	assert.Empty(t, a)
	assert.Empty(t, b)
}

func TestOrderAmounts(t *testing.T) {
	// BUY 21.50 shares at 0.45: paga 9.675 USDC, recibe 21.50 shares
	maker, taker, err := orderAmounts(domain.OrderBuy, 0.45, 21.505)
	require.NoError(t, err)
	assert.Equal(t, "9675000", maker.String())
	assert.Equal(t, "21500000", taker.String())

	// SELL 10 shares at 0.42: entrega shares, recibe 4.20 USDC
	maker, taker, err = orderAmounts(domain.OrderSell, 0.42, 10)
	require.NoError(t, err)
	assert.Equal(t, "10000000", maker.String())
	assert.Equal(t, "4200000", taker.String())

	// 0.001 tick: 0.673 * 10.55 = 7.10015 exactly
	maker, _, err = orderAmounts(domain.OrderBuy, 0.673, 10.555)
	require.NoError(t, err)
	assert.Equal(t, "7100150", maker.String())

	_, _, err = orderAmounts(domain.OrderBuy, 0.5, 0.001)
	assert.Error(t, err)
}

func TestMapOrderStatus(t *testing.T) {
	st := mapOrderStatus("o1", clobOrder{Status: "MATCHED", SizeMatched: "21.5", Price: "0.45"})
	assert.Equal(t, domain.VenueMatched, st.Status)
	assert.InDelta(t, 21.5, st.FilledSize, 1e-9)
	assert.Zero(t, st.AvgPrice, "limit price is not a fill price")

	assert.Equal(t, domain.VenueOpen, mapOrderStatus("o1", clobOrder{Status: "LIVE"}).Status)
	assert.Equal(t, domain.VenueCancelled, mapOrderStatus("o1", clobOrder{Status: "CANCELED"}).Status)
	assert.Equal(t, domain.VenueRejected, mapOrderStatus("o1", clobOrder{Status: "INVALID"}).Status)
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(&httpError{Status: 400}), domain.ErrVenueRejection)
	assert.ErrorIs(t, classify(fmt.Errorf("server error 502 after 3 retries")), domain.ErrTransientNetwork)
	assert.ErrorIs(t, classify(fmt.Errorf("wrapped: %w", &httpError{Status: 422})), domain.ErrVenueRejection)
	assert.False(t, errors.Is(classify(errors.New("dial")), domain.ErrVenueRejection))
	assert.Nil(t, classify(nil))
}
