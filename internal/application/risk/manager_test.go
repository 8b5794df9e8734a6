package risk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

type memStore struct {
	mu        sync.Mutex
	ledger    *domain.Ledger
	positions map[string]domain.Position
	daily     []domain.DailySummary
	halts     map[string]string
}

func newMemStore() *memStore {
	return &memStore{positions: map[string]domain.Position{}, halts: map[string]string{}}
}

func (s *memStore) LoadLedger(context.Context) (domain.Ledger, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ledger == nil {
		return domain.Ledger{}, false, nil
	}
	return s.ledger.Clone(), true, nil
}

func (s *memStore) SaveLedger(ctx context.Context, l domain.Ledger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := l.Clone()
	s.ledger = &c
	return nil
}

func (s *memStore) SavePosition(ctx context.Context, p domain.Position) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[p.MarketID] = p
	return nil
}

func (s *memStore) OpenPositions(context.Context) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, p := range s.positions {
		if p.Status == domain.PositionOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) SettledPositions(_ context.Context, from, to time.Time) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, p := range s.positions {
		if p.Status == domain.PositionSettled && p.SettledAt != nil &&
			!p.SettledAt.Before(from) && p.SettledAt.Before(to) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) SaveDaily(ctx context.Context, d domain.DailySummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.daily = append(s.daily, d)
	return nil
}

func (s *memStore) SetHalt(ctx context.Context, id, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.halts[id] = reason
	return nil
}

func (s *memStore) ClearHalt(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.halts, id)
	return nil
}

func (s *memStore) Halts(context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.halts))
	for k, v := range s.halts {
		out[k] = v
	}
	return out, nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.FixedSize = 20
	cfg.DailyCap = 100
	cfg.MaxEntriesPerCycle = 0
	return cfg
}

func newTestManager(t *testing.T, cfg Config, store *memStore, c *clock) *Manager {
	t.Helper()
	m, err := newManager(context.Background(), cfg, store, c.now)
	require.NoError(t, err)
	return m
}

func opp(market string, edge, price float64) domain.Opportunity {
	return domain.Opportunity{
		ID: "opp-" + market,
		Market: domain.Market{
			ID:       market,
			Question: "Q " + market,
			Sport:    "nba",
			EndDate:  time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
		},
		Strategy: domain.StrategyFairValue,
		Legs:     []domain.Leg{{Side: domain.SideYes, TokenID: "tok-" + market, Price: price}},
		Edge:     edge,
	}
}

func fill(side domain.Side, os domain.OrderSide, shares, price float64) domain.OrderAttempt {
	a := domain.NewOrderAttempt("a", domain.OrderRequest{
		TokenID: "tok-" + string(side),
		Outcome: side,
		Side:    os,
		Price:   price,
		Shares:  shares,
	}, time.Time{})
	a.RecordFill(shares, price)
	return *a
}

func TestAdmit_DailyCapAndUTCReset(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	m := newTestManager(t, testConfig(), newMemStore(), c)

	markets := []string{"m1", "m2", "m3", "m4", "m5"}
	for _, id := range markets {
		res, err := m.Admit(ctx, "nba", opp(id, 0.05, 0.50))
		require.NoError(t, err, id)
		assert.Equal(t, 20.0, res.Amount)
		_, err = m.Commit(ctx, res, []domain.OrderAttempt{fill(domain.SideYes, domain.OrderBuy, 40, 0.50)})
		require.NoError(t, err)
	}

	_, err := m.Admit(ctx, "nba", opp("m6", 0.05, 0.50))
	require.Error(t, err)
	assert.Equal(t, domain.ReasonDailyCap, domain.ReasonOf(err))
	assert.ErrorIs(t, err, domain.ErrCapitalCapExceeded)

	c.set(time.Date(2026, 3, 2, 0, 0, 1, 0, time.UTC))
	res, err := m.Admit(ctx, "nba", opp("m6", 0.05, 0.50))
	require.NoError(t, err)
	assert.Equal(t, 20.0, res.Amount)

	summary, ok := m.Rollover(ctx, c.now())
	require.True(t, ok, "the roll inside Admit is reported once")
	assert.Equal(t, 5, summary.Entries)
	assert.InDelta(t, 100.0, summary.Deployed, 1e-9)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), summary.Date)

	_, ok = m.Rollover(ctx, c.now())
	assert.False(t, ok)
}

func TestAdmit_ConcurrentRemainingBudget(t *testing.T) {
	for _, mode := range []SizingMode{SizingCapped, SizingFixed} {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
			c := &clock{t: day.Add(12 * time.Hour)}
			store := newMemStore()
			store.ledger = &domain.Ledger{Bankroll: 1000, Day: day, DeployedToday: 85}

			cfg := testConfig()
			cfg.Sizing = mode
			cfg.PerMarketCap = 20
			m := newTestManager(t, cfg, store, c)

			var wg sync.WaitGroup
			results := make([]Reservation, 2)
			errs := make([]error, 2)
			for i, id := range []string{"a", "b"} {
				wg.Add(1)
				go func(i int, id string) {
					defer wg.Done()
					results[i], errs[i] = m.Admit(ctx, "nba", opp(id, 0.05, 0.50))
				}(i, id)
			}
			wg.Wait()

			var total float64
			admitted := 0
			for i := range results {
				if errs[i] == nil {
					admitted++
					total += results[i].Amount
				}
			}
			assert.LessOrEqual(t, total, 15.0+1e-9)
			assert.LessOrEqual(t, admitted, 1)
			if mode == SizingCapped {
				assert.Equal(t, 1, admitted)
				assert.InDelta(t, 15.0, total, 1e-9)
			} else {
				assert.Equal(t, 0, admitted, "fixed requests above the remaining budget are denied")
			}
		})
	}
}

func TestAdmit_GateOrder(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}

	t.Run("already open", func(t *testing.T) {
		m := newTestManager(t, testConfig(), newMemStore(), c)
		res, err := m.Admit(ctx, "nba", opp("m1", 0.05, 0.5))
		require.NoError(t, err)

		_, err = m.Admit(ctx, "nba", opp("m1", 0.05, 0.5))
		assert.Equal(t, domain.ReasonAlreadyOpen, domain.ReasonOf(err), "pending attempt")

		_, err = m.Commit(ctx, res, []domain.OrderAttempt{fill(domain.SideYes, domain.OrderBuy, 40, 0.5)})
		require.NoError(t, err)
		_, err = m.Admit(ctx, "nba", opp("m1", 0.05, 0.5))
		assert.Equal(t, domain.ReasonAlreadyOpen, domain.ReasonOf(err))
	})

	t.Run("bankroll floor", func(t *testing.T) {
		store := newMemStore()
		store.ledger = &domain.Ledger{Bankroll: 500, Day: domain.UTCDay(c.now())}
		m := newTestManager(t, testConfig(), store, c)
		_, err := m.Admit(ctx, "nba", opp("m1", 0.05, 0.5))
		assert.Equal(t, domain.ReasonBankrollFloor, domain.ReasonOf(err))
	})

	t.Run("floor wins over daily cap", func(t *testing.T) {
		store := newMemStore()
		store.ledger = &domain.Ledger{Bankroll: 400, Day: domain.UTCDay(c.now()), DeployedToday: 100}
		m := newTestManager(t, testConfig(), store, c)
		_, err := m.Admit(ctx, "nba", opp("m1", 0.05, 0.5))
		assert.Equal(t, domain.ReasonBankrollFloor, domain.ReasonOf(err))
	})

	t.Run("cycle cap", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxEntriesPerCycle = 1
		m := newTestManager(t, cfg, newMemStore(), c)
		m.BeginCycle("nba")
		_, err := m.Admit(ctx, "nba", opp("m1", 0.05, 0.5))
		require.NoError(t, err)
		_, err = m.Admit(ctx, "nba", opp("m2", 0.05, 0.5))
		assert.Equal(t, domain.ReasonCycleCap, domain.ReasonOf(err))

		_, err = m.Admit(ctx, "nhl", opp("m3", 0.05, 0.5))
		assert.NoError(t, err, "classes count separately")

		m.BeginCycle("nba")
		_, err = m.Admit(ctx, "nba", opp("m2", 0.05, 0.5))
		assert.NoError(t, err)
	})

	t.Run("game cap", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxPerGame = map[string]float64{"nba": 30}
		m := newTestManager(t, cfg, newMemStore(), c)

		a := opp("m1", 0.05, 0.5)
		a.Market.EventID = "ev1"
		b := opp("m2", 0.05, 0.5)
		b.Market.EventID = "ev1"
		d := opp("m3", 0.05, 0.5)
		d.Market.EventID = "ev1"

		_, err := m.Admit(ctx, "nba", a)
		require.NoError(t, err)
		res, err := m.Admit(ctx, "nba", b)
		require.NoError(t, err)
		assert.Equal(t, 10.0, res.Amount, "clamped to what the game has left")
		_, err = m.Admit(ctx, "nba", d)
		assert.Equal(t, domain.ReasonGameCap, domain.ReasonOf(err))
	})

	t.Run("size too small", func(t *testing.T) {
		cfg := testConfig()
		cfg.FixedSize = 0.5
		m := newTestManager(t, cfg, newMemStore(), c)
		_, err := m.Admit(ctx, "nba", opp("m1", 0.05, 0.5))
		assert.Equal(t, domain.ReasonSizeTooSmall, domain.ReasonOf(err))
	})
}

func TestKellySizing(t *testing.T) {
	cfg := testConfig()
	cfg.Sizing = SizingKelly
	cfg.PerMarketCap = 100
	cfg.DailyCap = 0

	// 0.25 * 0.05 / (1 - 0.55) * 1000 = 27.78
	assert.InDelta(t, 27.777, kellySize(cfg, 0.05, 0.55, 1000), 1e-3)
	// 0.25 * 0.20 / 0.50 * 1000 = 100 -> capped at min(50, 5% of 1000)
	assert.InDelta(t, 50.0, kellySize(cfg, 0.20, 0.50, 1000), 1e-9)
	// 5% of 600 = 30 is tighter than kelly_max
	assert.InDelta(t, 30.0, kellySize(cfg, 0.20, 0.50, 600), 1e-9)
	// tiny edge floors at kelly_min
	assert.InDelta(t, 5.0, kellySize(cfg, 0.001, 0.50, 1000), 1e-9)
	// 5% of 60 = 3 is below kelly_min: the bankroll ceiling still holds
	assert.InDelta(t, 3.0, kellySize(cfg, 0.001, 0.50, 60), 1e-9)
	assert.InDelta(t, 3.0, kellySize(cfg, 0.20, 0.50, 60), 1e-9)

	c := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	m := newTestManager(t, cfg, newMemStore(), c)
	res, err := m.Admit(context.Background(), "nba", opp("m1", 0.05, 0.55))
	require.NoError(t, err)
	assert.Equal(t, 27.77, res.Amount)
}

func TestCommitAndRelease(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	m := newTestManager(t, testConfig(), newMemStore(), c)

	res, err := m.Admit(ctx, "nba", opp("m1", 0.05, 0.5))
	require.NoError(t, err)
	assert.InDelta(t, 980.0, m.Snapshot().Bankroll, 1e-9)

	// 38 shares at 0.50 = $19, $1 goes back
	p, err := m.Commit(ctx, res, []domain.OrderAttempt{fill(domain.SideYes, domain.OrderBuy, 38, 0.5)})
	require.NoError(t, err)
	assert.Equal(t, domain.PositionOpen, p.Status)
	assert.InDelta(t, 19.0, p.Cost, 1e-9)
	assert.InDelta(t, 981.0, m.Snapshot().Bankroll, 1e-9)
	assert.InDelta(t, 19.0, m.Snapshot().DeployedToday, 1e-9)

	res2, err := m.Admit(ctx, "nba", opp("m2", 0.05, 0.5))
	require.NoError(t, err)
	m.Release(ctx, res2, domain.ReasonTimeout)
	assert.InDelta(t, 981.0, m.Snapshot().Bankroll, 1e-9)
	assert.InDelta(t, 19.0, m.Snapshot().DeployedToday, 1e-9)
	assert.Len(t, m.OpenPositions(), 1)

	res3, err := m.Admit(ctx, "nba", opp("m2", 0.05, 0.5))
	require.NoError(t, err, "a released market can be retried")
	p, err = m.Commit(ctx, res3, nil)
	require.NoError(t, err)
	assert.Empty(t, p.MarketID, "no fill means no position")
	assert.Len(t, m.OpenPositions(), 1)
}

func TestSettle_Idempotent(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	store := newMemStore()
	m := newTestManager(t, testConfig(), store, c)

	var observed []domain.SettlementResult
	m.OnSettle(func(r domain.SettlementResult) { observed = append(observed, r) })

	res, err := m.Admit(ctx, "nba", opp("m1", 0.05, 0.5))
	require.NoError(t, err)
	_, err = m.Commit(ctx, res, []domain.OrderAttempt{fill(domain.SideYes, domain.OrderBuy, 40, 0.5)})
	require.NoError(t, err)

	// payout 40 shares x $1, cost $20
	r, ok, err := m.Settle(ctx, "m1", domain.SideYes)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 40.0, r.Payout, 1e-9)
	assert.InDelta(t, 20.0, r.PnL, 1e-9)
	assert.InDelta(t, 1020.0, r.Bankroll, 1e-9)

	_, ok, err = m.Settle(ctx, "m1", domain.SideYes)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.InDelta(t, 1020.0, m.Snapshot().Bankroll, 1e-9, "no double credit")
	assert.Len(t, observed, 1)
	assert.Equal(t, domain.PositionSettled, store.positions["m1"].Status)
	assert.Empty(t, m.OpenPositions())
}

func TestSettle_LossesTripCooldown(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	m := newTestManager(t, testConfig(), newMemStore(), c)

	for _, id := range []string{"l1", "l2", "l3"} {
		res, err := m.Admit(ctx, "nba", opp(id, 0.05, 0.5))
		require.NoError(t, err)
		_, err = m.Commit(ctx, res, []domain.OrderAttempt{fill(domain.SideYes, domain.OrderBuy, 20, 0.5)})
		require.NoError(t, err)
	}
	for _, id := range []string{"l1", "l2", "l3"} {
		r, ok, err := m.Settle(ctx, id, domain.SideNo)
		require.NoError(t, err)
		require.True(t, ok)
		assert.InDelta(t, -10.0, r.PnL, 1e-9)
	}

	_, err := m.Admit(ctx, "nba", opp("m9", 0.05, 0.5))
	assert.Equal(t, domain.ReasonCooldown, domain.ReasonOf(err))

	c.set(c.now().Add(5*time.Minute + time.Second))
	_, err = m.Admit(ctx, "nba", opp("m9", 0.05, 0.5))
	assert.NoError(t, err)
}

func TestRecordLegRisk(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	store := newMemStore()
	m := newTestManager(t, testConfig(), store, c)

	t.Run("exposure remains", func(t *testing.T) {
		res, err := m.Admit(ctx, "nba", opp("p1", 0.07, 0.93))
		require.NoError(t, err)

		p, err := m.RecordLegRisk(ctx, res, []domain.OrderAttempt{
			fill(domain.SideYes, domain.OrderBuy, 20, 0.45),
		}, "NO leg timed out")
		require.NoError(t, err)
		assert.True(t, p.LegRisk)
		assert.Equal(t, domain.PositionOpen, p.Status)
		assert.InDelta(t, 20.0, p.Shares(domain.SideYes), 1e-9)

		_, halted := m.Halted("p1")
		assert.True(t, halted)
		assert.Equal(t, "NO leg timed out", store.halts["p1"])
	})

	t.Run("fully unwound", func(t *testing.T) {
		before := m.Snapshot().Bankroll
		res, err := m.Admit(ctx, "nba", opp("p2", 0.07, 0.93))
		require.NoError(t, err)

		// bought 20 at 0.50 ($10), sold 20 at 0.475 ($9.50)
		p, err := m.RecordLegRisk(ctx, res, []domain.OrderAttempt{
			fill(domain.SideYes, domain.OrderBuy, 20, 0.50),
			fill(domain.SideYes, domain.OrderSell, 20, 0.475),
		}, "NO leg rejected")
		require.NoError(t, err)
		assert.Equal(t, domain.PositionSettled, p.Status)
		assert.InDelta(t, -0.5, p.PnL, 1e-9)
		assert.InDelta(t, before-0.5, m.Snapshot().Bankroll, 1e-9)
		assert.Equal(t, 1, m.Snapshot().LossesToday)
		assert.Equal(t, 1, m.Snapshot().SettledToday)

		_, err = m.Admit(ctx, "nba", opp("p2", 0.07, 0.93))
		assert.Equal(t, domain.ReasonMarketHalted, domain.ReasonOf(err))
		assert.ErrorIs(t, err, domain.ErrLegRisk)

		require.NoError(t, m.ClearHalt(ctx, "p2"))
		_, err = m.Admit(ctx, "nba", opp("p2", 0.07, 0.93))
		assert.NoError(t, err)
	})
}

func TestRecordLegRisk_UnwindLossFeedsStreak(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	m := newTestManager(t, testConfig(), newMemStore(), c)

	var observed []domain.SettlementResult
	m.OnSettle(func(r domain.SettlementResult) { observed = append(observed, r) })

	// bought 10 at 0.45, dumped at 0.30
	res, err := m.Admit(ctx, "nba", opp("u1", 0.07, 0.93))
	require.NoError(t, err)
	_, err = m.RecordLegRisk(ctx, res, []domain.OrderAttempt{
		fill(domain.SideYes, domain.OrderBuy, 10, 0.45),
		fill(domain.SideYes, domain.OrderSell, 10, 0.30),
	}, "NO leg rejected")
	require.NoError(t, err)

	snap := m.Snapshot()
	assert.Equal(t, 1, snap.LossesToday)
	assert.Equal(t, 0, snap.WinsToday)
	assert.Equal(t, 1, snap.Cooldown.ConsecutiveLosses)
	assert.InDelta(t, -1.5, snap.RealizedToday, 1e-9)
	require.Len(t, observed, 1)
	assert.Equal(t, "u1", observed[0].MarketID)
	assert.InDelta(t, -1.5, observed[0].PnL, 1e-9)

	// two more unwound losses trip the cooldown like settled ones do
	for _, id := range []string{"u2", "u3"} {
		res, err := m.Admit(ctx, "nba", opp(id, 0.07, 0.93))
		require.NoError(t, err)
		_, err = m.RecordLegRisk(ctx, res, []domain.OrderAttempt{
			fill(domain.SideYes, domain.OrderBuy, 10, 0.45),
			fill(domain.SideYes, domain.OrderSell, 10, 0.30),
		}, "NO leg rejected")
		require.NoError(t, err)
	}
	_, err = m.Admit(ctx, "nba", opp("u4", 0.07, 0.93))
	assert.Equal(t, domain.ReasonCooldown, domain.ReasonOf(err))
	assert.Len(t, observed, 3)
}

func TestCommit_PersistsAfterCallerCancel(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	store := newMemStore()
	m := newTestManager(t, testConfig(), store, c)

	ctx, cancel := context.WithCancel(context.Background())
	res, err := m.Admit(ctx, "nba", opp("m1", 0.05, 0.5))
	require.NoError(t, err)
	cancel()

	_, err = m.Commit(ctx, res, []domain.OrderAttempt{fill(domain.SideYes, domain.OrderBuy, 20, 0.5)})
	require.NoError(t, err)

	m2 := newTestManager(t, testConfig(), store, c)
	assert.Len(t, m2.OpenPositions(), 1)
	assert.InDelta(t, 990.0, m2.Snapshot().Bankroll, 1e-9)
}

func TestRestartKeepsStateWithoutReservations(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	store := newMemStore()
	m := newTestManager(t, testConfig(), store, c)

	res, err := m.Admit(ctx, "nba", opp("m1", 0.05, 0.5))
	require.NoError(t, err)
	_, err = m.Commit(ctx, res, []domain.OrderAttempt{fill(domain.SideYes, domain.OrderBuy, 40, 0.5)})
	require.NoError(t, err)
	_, err = m.Admit(ctx, "nba", opp("m2", 0.05, 0.5)) // still in flight at "crash"
	require.NoError(t, err)

	m2 := newTestManager(t, testConfig(), store, c)
	snap := m2.Snapshot()
	assert.InDelta(t, 980.0, snap.Bankroll, 1e-9)
	assert.InDelta(t, 20.0, snap.DeployedToday, 1e-9)
	assert.Len(t, m2.OpenPositions(), 1)
}

func TestParseSizingMode(t *testing.T) {
	m, err := ParseSizingMode("Kelly")
	require.NoError(t, err)
	assert.Equal(t, SizingKelly, m)

	m, err = ParseSizingMode("")
	require.NoError(t, err)
	assert.Equal(t, SizingFixed, m)

	_, err = ParseSizingMode("martingale")
	assert.Error(t, err)
}
