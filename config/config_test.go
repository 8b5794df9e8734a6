package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LOG_LEVEL", "LOG_FORMAT", "ODDS_API_KEY", "POLY_PRIVATE_KEY", "POLYGON_RPC_URL",
		"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "REDIS_URL", "POLYARB_DSN",
	} {
		t.Setenv(k, "")
	}
}

func TestParse_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)

	require.Len(t, cfg.Sports, 7)
	nba := cfg.Sports[0]
	assert.Equal(t, "nba", nba.Name)
	assert.Equal(t, "basketball_nba", nba.OddsKey)
	assert.Equal(t, 5*time.Minute, nba.ScanInterval())
	assert.Contains(t, nba.Aliases["Los Angeles Lakers"], "lakers")

	epl := cfg.Sports[2]
	assert.True(t, epl.ThreeWay)
	assert.Equal(t, 0.05, epl.MinEdge)

	assert.Equal(t, 20*time.Second, cfg.Stagger())
	assert.True(t, cfg.FairValueEnabled())
	assert.True(t, cfg.StructuralEnabled())
	assert.True(t, cfg.RequireSharp())
	assert.True(t, cfg.ConsoleEnabled())
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 5*time.Minute, cfg.QuoteTTL())
	assert.Equal(t, 500, cfg.Budget.Monthly)
	assert.Equal(t, 50, cfg.Budget.EmergencyReserve)
	assert.Equal(t, "GTC", cfg.Execution.TimeInForce)
	assert.Equal(t, "fixed", cfg.Risk.Sizing)
	assert.Equal(t, "data/KILL_SWITCH", cfg.KillSwitch.File)
	assert.Equal(t, cfg.Risk.InitialBankroll, cfg.Paper.InitialCash)
	assert.Equal(t, "polyarb.db", cfg.Storage.DSN)

	events := cfg.TelegramEvents()
	assert.NotContains(t, events, domain.EventOpportunity)
	assert.Contains(t, events, domain.EventKillSwitch)
}

func TestParse_ExplicitValues(t *testing.T) {
	clearEnv(t)
	cfg, err := Parse([]byte(`
sports:
  - name: NBA
    odds_key: basketball_nba
    min_edge: 0.04
    aliases:
      Boston Celtics: [celtics]
strategies:
  structural: false
normalizer:
  require_sharp: false
detector:
  min_edge_by_type:
    totals: 0.06
  disabled_types: [spread]
risk:
  sizing: Kelly
execution:
  time_in_force: gtd
notify:
  telegram_events: [kill_switch]
`))
	require.NoError(t, err)

	require.Len(t, cfg.Sports, 1)
	s := cfg.Sports[0]
	assert.Equal(t, "nba", s.Name)
	assert.Equal(t, "NBA", s.DisplayName)
	assert.Equal(t, "nba", s.TagSlug)
	assert.Equal(t, 0.04, s.MinEdge)
	assert.Equal(t, map[string][]string{"Boston Celtics": {"celtics"}}, s.Aliases)

	assert.True(t, cfg.FairValueEnabled())
	assert.False(t, cfg.StructuralEnabled())
	assert.False(t, cfg.RequireSharp())
	assert.Equal(t, map[domain.MarketType]float64{domain.MarketTotal: 0.06}, cfg.MinEdgeByType())
	assert.Equal(t, []domain.MarketType{domain.MarketSpread}, cfg.DisabledTypes())
	assert.Equal(t, "kelly", cfg.Risk.Sizing)
	assert.Equal(t, "GTD", cfg.Execution.TimeInForce)
	assert.Equal(t, []domain.EventType{domain.EventKillSwitch}, cfg.TelegramEvents())
}

func TestParse_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ODDS_API_KEY", "odds-key")
	t.Setenv("TELEGRAM_CHAT_ID", " 12345 ")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("POLYARB_DSN", ":memory:")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Parse([]byte("log:\n  level: warn\n"))
	require.NoError(t, err)

	assert.Equal(t, "odds-key", cfg.API.OddsAPIKey)
	assert.Equal(t, int64(12345), cfg.Notify.TelegramChatID)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Cache.RedisURL)
	assert.Equal(t, ":memory:", cfg.Storage.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestParse_Invalid(t *testing.T) {
	clearEnv(t)
	cases := map[string]string{
		"duplicate sport":    "sports:\n  - {name: nba, odds_key: a}\n  - {name: NBA, odds_key: b}\n",
		"missing odds key":   "sports:\n  - {name: nba}\n",
		"redis without url":  "cache:\n  backend: redis\n",
		"unknown backend":    "cache:\n  backend: memcached\n",
		"time in force":      "execution:\n  time_in_force: FOK\n",
		"unknown type":       "detector:\n  disabled_types: [btts]\n",
		"unknown event":      "notify:\n  telegram_events: [everything]\n",
		"sizing":             "risk:\n  sizing: martingale\n",
		"inverted sum range": "normalizer:\n  sum_min: 1.02\n  sum_max: 1.01\n",
		"bad yaml":           "sports: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParse_StructuralOnlyNeedsNoOddsKey(t *testing.T) {
	clearEnv(t)
	cfg, err := Parse([]byte("strategies:\n  fair_value: false\nsports:\n  - {name: nba}\n"))
	require.NoError(t, err)
	assert.False(t, cfg.FairValueEnabled())
}

func TestLoad_ExampleFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("config.example.yaml")
	require.NoError(t, err)

	require.Len(t, cfg.Sports, 3)
	assert.Equal(t, 0.03, cfg.Sports[1].MinEdge)
	assert.Equal(t, 0.05, cfg.Sports[2].MinEdge)
	assert.Equal(t, []string{"man city"}, cfg.Sports[2].Aliases["Manchester City"])
	assert.Equal(t, 0.04, cfg.MinEdgeByType()[domain.MarketTotal])
	assert.Equal(t, 10*time.Second, cfg.KillWatchInterval())
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval())
}

func TestParse_StructuralFees(t *testing.T) {
	clearEnv(t)
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, 0.96, cfg.Detector.Threshold)
	assert.Equal(t, 0.0315, cfg.FeeRate())

	cfg, err = Parse([]byte("detector:\n  fee_rate: 0\n"))
	require.NoError(t, err)
	assert.Zero(t, cfg.FeeRate(), "explicit zero turns fees off")

	_, err = Parse([]byte("detector:\n  fee_rate: -0.01\n"))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("does-not-exist.yaml")
	assert.Error(t, err)
}
