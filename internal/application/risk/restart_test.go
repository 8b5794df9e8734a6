package risk_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyarb/internal/adapters/storage"
	"github.com/alejandrodnm/polyarb/internal/application/risk"
	"github.com/alejandrodnm/polyarb/internal/domain"
)

func TestCommitDuringShutdown_SurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "polyarb.db")
	store, err := storage.NewSQLiteStorage(path)
	require.NoError(t, err)

	cfg := risk.DefaultConfig()
	cfg.FixedSize = 20
	cfg.DailyCap = 100

	ctx, cancel := context.WithCancel(context.Background())
	m, err := risk.New(ctx, cfg, store)
	require.NoError(t, err)

	res, err := m.Admit(ctx, "nba", domain.Opportunity{
		ID: "opp-m1",
		Market: domain.Market{
			ID:      "m1",
			EventID: "ev-1",
			Sport:   "nba",
			EndDate: time.Now().Add(6 * time.Hour),
		},
		Strategy: domain.StrategyFairValue,
		Legs:     []domain.Leg{{Side: domain.SideYes, TokenID: "tok-y", Price: 0.5}},
		Edge:     0.05,
	})
	require.NoError(t, err)

	// SIGTERM lands while the order is confirming
	cancel()
	a := domain.NewOrderAttempt("a1", domain.OrderRequest{
		TokenID: "tok-y",
		Outcome: domain.SideYes,
		Side:    domain.OrderBuy,
		Price:   0.5,
		Shares:  20,
	}, time.Now())
	a.RecordFill(20, 0.5)
	_, err = m.Commit(ctx, res, []domain.OrderAttempt{*a})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := storage.NewSQLiteStorage(path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	m2, err := risk.New(context.Background(), cfg, reopened)
	require.NoError(t, err)
	open := m2.OpenPositions()
	require.Len(t, open, 1)
	assert.Equal(t, "m1", open[0].MarketID)
	assert.InDelta(t, 990.0, m2.Snapshot().Bankroll, 1e-9)
	assert.InDelta(t, 10.0, m2.Snapshot().DeployedToday, 1e-9)
}
