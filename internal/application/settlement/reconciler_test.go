package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

type fakeBook struct {
	mu       sync.Mutex
	open     map[string]domain.Position
	bankroll float64
}

func (b *fakeBook) OpenPositions() []domain.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Position
	for _, p := range b.open {
		out = append(out, p)
	}
	return out
}

func (b *fakeBook) Settle(_ context.Context, id string, winner domain.Side) (domain.SettlementResult, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.open[id]
	if !ok {
		return domain.SettlementResult{}, false, nil
	}
	delete(b.open, id)
	payout := p.PayoutFor(winner)
	b.bankroll += payout
	return domain.SettlementResult{MarketID: id, Winner: winner, Cost: p.Cost, Payout: payout,
		PnL: payout - p.Cost, Bankroll: b.bankroll}, true, nil
}

type fakeResolver map[string]domain.Resolution

func (f fakeResolver) FetchResolution(_ context.Context, id string) (domain.Resolution, error) {
	r, ok := f[id]
	if !ok {
		return domain.Resolution{}, errors.New("not found")
	}
	return r, nil
}

type recorder struct{ events []domain.Event }

func (r *recorder) Notify(_ context.Context, e domain.Event) error {
	r.events = append(r.events, e)
	return errors.New("telegram down")
}

func position(id string, end time.Time) domain.Position {
	return domain.Position{
		MarketID: id,
		Question: "Q " + id,
		Legs:     []domain.PositionLeg{{Side: domain.SideYes, Shares: 40, EntryPrice: 0.5, Cost: 20}},
		Cost:     20,
		EndDate:  end,
		Status:   domain.PositionOpen,
	}
}

func TestRunOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	book := &fakeBook{bankroll: 980, open: map[string]domain.Position{
		"won":     position("won", now.Add(-time.Hour)),
		"lost":    position("lost", now.Add(-time.Hour)),
		"pending": position("pending", now.Add(-time.Hour)),
		"future":  position("future", now.Add(time.Hour)),
		"missing": position("missing", now.Add(-time.Hour)),
	}}
	resolver := fakeResolver{
		"won":     {MarketID: "won", Resolved: true, Winner: domain.SideYes},
		"lost":    {MarketID: "lost", Resolved: true, Winner: domain.SideNo},
		"pending": {MarketID: "pending"},
	}
	rec := &recorder{}
	r := New(book, resolver, rec)
	r.now = func() time.Time { return now }

	s, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, s.Checked)
	assert.Equal(t, 2, s.Settled)
	assert.Equal(t, 1, s.Pending)
	assert.Equal(t, 1, s.Errors)
	// +20 on the win, -20 on the loss
	assert.InDelta(t, 0.0, s.PnL, 1e-9)
	assert.Len(t, rec.events, 2, "notifier errors do not stop settlement")
	assert.Equal(t, domain.EventSettled, rec.events[0].Type)

	s, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, s.Settled, "second run is a no-op")
	assert.InDelta(t, 1020.0, book.bankroll, 1e-9)
}
