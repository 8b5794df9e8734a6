package paper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

func TestVenue_FillsAtRequestedPrice(t *testing.T) {
	ctx := context.Background()
	v := NewVenue(100)

	id, err := v.Submit(ctx, domain.OrderRequest{
		MarketID: "m1", TokenID: "tok", Side: domain.OrderBuy, Price: 0.45, Shares: 20,
	})
	require.NoError(t, err)

	st, err := v.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.VenueMatched, st.Status)
	assert.Equal(t, 20.0, st.FilledSize)
	assert.Equal(t, 0.45, st.AvgPrice)

	// 100 - 0.45*20 = 91
	bal, err := v.Balance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 91.0, bal, 1e-9)

	ok, err := v.Cancel(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, v.Orders())
}

func TestVenue_SellCreditsCash(t *testing.T) {
	ctx := context.Background()
	v := NewVenue(0)

	_, err := v.Submit(ctx, domain.OrderRequest{Side: domain.OrderSell, Price: 0.40, Shares: 10})
	require.NoError(t, err)

	bal, _ := v.Balance(ctx)
	assert.InDelta(t, 4.0, bal, 1e-9)
}

func TestVenue_Rejections(t *testing.T) {
	ctx := context.Background()
	v := NewVenue(5)

	_, err := v.Submit(ctx, domain.OrderRequest{Side: domain.OrderBuy, Price: 0.50, Shares: 20})
	assert.ErrorIs(t, err, domain.ErrVenueRejection, "$10 order with $5 balance")

	_, err = v.Submit(ctx, domain.OrderRequest{Side: domain.OrderBuy, Price: 1.2, Shares: 1})
	assert.ErrorIs(t, err, domain.ErrVenueRejection)

	_, err = v.Status(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrVenueRejection)
	assert.Equal(t, 0, v.Orders())
}
