package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

// Config is the full bot configuration.
type Config struct {
	Sports     []SportConfig    `yaml:"sports"`
	Runner     RunnerConfig     `yaml:"runner"`
	Strategies StrategiesConfig `yaml:"strategies"`
	API        APIConfig        `yaml:"api"`
	Budget     BudgetConfig     `yaml:"budget"`
	Cache      CacheConfig      `yaml:"cache"`
	Normalizer NormalizerConfig `yaml:"normalizer"`
	Detector   DetectorConfig   `yaml:"detector"`
	Risk       RiskConfig       `yaml:"risk"`
	Execution  ExecutionConfig  `yaml:"execution"`
	KillSwitch KillSwitchConfig `yaml:"kill_switch"`
	Settlement SettlementConfig `yaml:"settlement"`
	Paper      PaperConfig      `yaml:"paper"`
	Storage    StorageConfig    `yaml:"storage"`
	Notify     NotifyConfig     `yaml:"notify"`
	Log        LogConfig        `yaml:"log"`
}

// SportConfig is one league scanned by its own loop.
type SportConfig struct {
	Name                string              `yaml:"name"`
	DisplayName         string              `yaml:"display_name"`
	OddsKey             string              `yaml:"odds_key"`
	TagSlug             string              `yaml:"tag_slug"`
	ThreeWay            bool                `yaml:"three_way"`
	ScanIntervalSeconds int                 `yaml:"scan_interval_seconds"`
	MinEdge             float64             `yaml:"min_edge"`
	MaxPerGame          float64             `yaml:"max_per_game"`
	Aliases             map[string][]string `yaml:"aliases"`
}

// ScanInterval returns the loop interval as a time.Duration.
func (s SportConfig) ScanInterval() time.Duration {
	return time.Duration(s.ScanIntervalSeconds) * time.Second
}

// RunnerConfig controls the concurrent loops.
type RunnerConfig struct {
	StaggerSeconds         int `yaml:"stagger_seconds"`
	SummaryIntervalSeconds int `yaml:"summary_interval_seconds"`
}

// StrategiesConfig toggles the detectors. Absent = on.
type StrategiesConfig struct {
	FairValue  *bool `yaml:"fair_value"`
	Structural *bool `yaml:"structural"`
}

// APIConfig holds API base URLs and credentials.
type APIConfig struct {
	CLOBBase       string   `yaml:"clob_base"`
	GammaBase      string   `yaml:"gamma_base"`
	OddsBase       string   `yaml:"odds_base"`
	OddsAPIKey     string   `yaml:"odds_api_key"`
	OddsRegions    string   `yaml:"odds_regions"`
	PreferredBooks []string `yaml:"preferred_books"`
	SharpBooks     []string `yaml:"sharp_books"`
	PolygonRPC     string   `yaml:"polygon_rpc"`
	PrivateKey     string   `yaml:"-"` // only from POLY_PRIVATE_KEY
}

// BudgetConfig sizes the monthly The Odds API quota.
type BudgetConfig struct {
	Monthly            int `yaml:"monthly"`
	EmergencyReserve   int `yaml:"emergency_reserve"`
	MinIntervalSeconds int `yaml:"min_interval_seconds"`
}

// CacheConfig picks where reference quotes live.
type CacheConfig struct {
	Backend    string `yaml:"backend"` // memory | redis
	RedisURL   string `yaml:"redis_url"`
	KeyPrefix  string `yaml:"key_prefix"`
	TTLSeconds int    `yaml:"ttl_seconds"`
	// RetentionSeconds is how long Redis keeps a snapshot; never below the TTL.
	RetentionSeconds int `yaml:"retention_seconds"`
}

// NormalizerConfig holds the probability gates.
type NormalizerConfig struct {
	PowerExponent      float64 `yaml:"power_exponent"`
	ProbMin            float64 `yaml:"prob_min"`
	ProbMax            float64 `yaml:"prob_max"`
	SumMin             float64 `yaml:"sum_min"`
	SumMax             float64 `yaml:"sum_max"`
	DrawMin            float64 `yaml:"draw_min"`
	DrawMax            float64 `yaml:"draw_max"`
	RequireSharp       *bool   `yaml:"require_sharp"`
	StaleBufferMinutes int     `yaml:"stale_buffer_minutes"`
	LineTolerance      float64 `yaml:"line_tolerance"`
}

// DetectorConfig holds the detection thresholds.
type DetectorConfig struct {
	MinEdge            float64            `yaml:"min_edge"`
	MinEdgeByType      map[string]float64 `yaml:"min_edge_by_type"`
	DisabledTypes      []string           `yaml:"disabled_types"`
	Threshold          float64            `yaml:"threshold"`
	ThresholdInclusive bool               `yaml:"threshold_inclusive"`
	MinDepthShares     float64            `yaml:"min_depth_shares"`
	FeeRate            *float64           `yaml:"fee_rate"`
}

// RiskConfig holds the capital controls.
type RiskConfig struct {
	InitialBankroll     float64 `yaml:"initial_bankroll"`
	BankrollFloor       float64 `yaml:"bankroll_floor"`
	DailyCap            float64 `yaml:"daily_cap"` // 0 = unlimited
	MaxEntriesPerCycle  int     `yaml:"max_entries_per_cycle"`
	PerMarketCap        float64 `yaml:"per_market_cap"`
	MinOrderUSD         float64 `yaml:"min_order_usd"`
	Sizing              string  `yaml:"sizing"` // fixed | kelly | capped
	FixedSize           float64 `yaml:"fixed_size"`
	KellyFraction       float64 `yaml:"kelly_fraction"`
	KellyMin            float64 `yaml:"kelly_min"`
	KellyMax            float64 `yaml:"kelly_max"`
	KellyMaxBankrollPct float64 `yaml:"kelly_max_bankroll_pct"`
	CooldownLosses      int     `yaml:"cooldown_losses"`
	CooldownSeconds     int     `yaml:"cooldown_seconds"`
}

// ExecutionConfig holds the executor timings.
type ExecutionConfig struct {
	PollIntervalMs     int     `yaml:"poll_interval_ms"`
	PollTimeoutSeconds int     `yaml:"poll_timeout_seconds"`
	SubmitRetries      int     `yaml:"submit_retries"`
	RetryBackoffMs     int     `yaml:"retry_backoff_ms"`
	CancelRetries      int     `yaml:"cancel_retries"`
	CallTimeoutSeconds int     `yaml:"call_timeout_seconds"`
	SlippageWarn       float64 `yaml:"slippage_warn"`
	TimeInForce        string  `yaml:"time_in_force"` // GTC | GTD
	ExpirationSeconds  int     `yaml:"expiration_seconds"`
	UnwindAttempts     int     `yaml:"unwind_attempts"`
	UnwindSlippage     float64 `yaml:"unwind_slippage"`
}

// KillSwitchConfig controls the global order block.
type KillSwitchConfig struct {
	File         string  `yaml:"file"`
	MaxDailyLoss float64 `yaml:"max_daily_loss"`
	WatchSeconds int     `yaml:"watch_seconds"`
}

// SettlementConfig controls the reconciler.
type SettlementConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// PaperConfig controls the simulated -dry-run venue.
type PaperConfig struct {
	InitialCash float64 `yaml:"initial_cash"`
}

// StorageConfig controls where state is persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // SQLite file path, or ":memory:"
}

// NotifyConfig controls the event sinks.
type NotifyConfig struct {
	Console        *bool    `yaml:"console"`
	TelegramToken  string   `yaml:"telegram_token"`
	TelegramChatID int64    `yaml:"telegram_chat_id"`
	TelegramEvents []string `yaml:"telegram_events"` // empty = all
}

// LogConfig controls log format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file and the .env file if present.
// .env values override the YAML for the keys they cover.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML, then applies the environment and the defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Stagger is the offset between consecutive loop starts.
func (c *Config) Stagger() time.Duration {
	return time.Duration(c.Runner.StaggerSeconds) * time.Second
}

// SummaryInterval is how often the UTC day change is checked.
func (c *Config) SummaryInterval() time.Duration {
	return time.Duration(c.Runner.SummaryIntervalSeconds) * time.Second
}

// FairValueEnabled reports whether fair-value detection runs.
func (c *Config) FairValueEnabled() bool { return boolOr(c.Strategies.FairValue, true) }

// StructuralEnabled reports whether structural detection runs.
func (c *Config) StructuralEnabled() bool { return boolOr(c.Strategies.Structural, true) }

// RequireSharp reports whether only sharp-book quotes are accepted.
func (c *Config) RequireSharp() bool { return boolOr(c.Normalizer.RequireSharp, true) }

// ConsoleEnabled reports whether events are printed to stdout.
func (c *Config) ConsoleEnabled() bool { return boolOr(c.Notify.Console, true) }

// QuoteTTL is the freshness window of the quote cache.
func (c *Config) QuoteTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// CacheRetention is the TTL of the Redis keys.
func (c *Config) CacheRetention() time.Duration {
	return time.Duration(c.Cache.RetentionSeconds) * time.Second
}

// BudgetMinInterval is the minimum gap between fetches for one sport.
func (c *Config) BudgetMinInterval() time.Duration {
	return time.Duration(c.Budget.MinIntervalSeconds) * time.Second
}

// StaleBuffer is the minimum time left before a market resolves.
func (c *Config) StaleBuffer() time.Duration {
	return time.Duration(c.Normalizer.StaleBufferMinutes) * time.Minute
}

// CooldownDuration is the pause after consecutive losses.
func (c *Config) CooldownDuration() time.Duration {
	return time.Duration(c.Risk.CooldownSeconds) * time.Second
}

// PollInterval, PollTimeout, RetryBackoff, CallTimeout and Expiration are
// the executor timings.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Execution.PollIntervalMs) * time.Millisecond
}

func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Execution.PollTimeoutSeconds) * time.Second
}

func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Execution.RetryBackoffMs) * time.Millisecond
}

func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Execution.CallTimeoutSeconds) * time.Second
}

func (c *Config) Expiration() time.Duration {
	return time.Duration(c.Execution.ExpirationSeconds) * time.Second
}

// KillWatchInterval is how often the kill file is checked.
func (c *Config) KillWatchInterval() time.Duration {
	return time.Duration(c.KillSwitch.WatchSeconds) * time.Second
}

// SettlementInterval is how often the reconciler runs.
func (c *Config) SettlementInterval() time.Duration {
	return time.Duration(c.Settlement.IntervalSeconds) * time.Second
}

// MinEdgeByType maps min_edge_by_type onto market types.
func (c *Config) MinEdgeByType() map[domain.MarketType]float64 {
	out := make(map[domain.MarketType]float64, len(c.Detector.MinEdgeByType))
	for tag, edge := range c.Detector.MinEdgeByType {
		if t, ok := domain.ParseMarketType(tag); ok {
			out[t] = edge
		}
	}
	return out
}

// DisabledTypes maps disabled_types onto market types.
func (c *Config) DisabledTypes() []domain.MarketType {
	out := make([]domain.MarketType, 0, len(c.Detector.DisabledTypes))
	for _, tag := range c.Detector.DisabledTypes {
		if t, ok := domain.ParseMarketType(tag); ok {
			out = append(out, t)
		}
	}
	return out
}

// TelegramEvents are the types sent to Telegram. Unset means everything but
// opportunity_found, which is too chatty for a chat.
func (c *Config) TelegramEvents() []domain.EventType {
	if len(c.Notify.TelegramEvents) == 0 {
		return []domain.EventType{
			domain.EventFilled, domain.EventRejected, domain.EventLegRisk, domain.EventSettled,
			domain.EventError, domain.EventDailySummary, domain.EventKillSwitch,
		}
	}
	out := make([]domain.EventType, 0, len(c.Notify.TelegramEvents))
	for _, e := range c.Notify.TelegramEvents {
		out = append(out, domain.EventType(e))
	}
	return out
}

// ─── Env, defaults, validation ───────────────────────────────────────────────

// applyEnvOverrides overrides values with environment variables when set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("ODDS_API_KEY"); v != "" {
		cfg.API.OddsAPIKey = v
	}
	if v := os.Getenv("POLY_PRIVATE_KEY"); v != "" {
		cfg.API.PrivateKey = v
	}
	if v := os.Getenv("POLYGON_RPC_URL"); v != "" {
		cfg.API.PolygonRPC = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notify.TelegramToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.Notify.TelegramChatID = id
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.RedisURL = v
		if cfg.Cache.Backend == "" {
			cfg.Cache.Backend = "redis"
		}
	}
	if v := os.Getenv("POLYARB_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
}

// setDefaults fills required values with sane defaults.
func setDefaults(cfg *Config) {
	if len(cfg.Sports) == 0 {
		cfg.Sports = DefaultSports()
	}
	for i := range cfg.Sports {
		s := &cfg.Sports[i]
		s.Name = strings.ToLower(strings.TrimSpace(s.Name))
		if s.DisplayName == "" {
			s.DisplayName = strings.ToUpper(s.Name)
		}
		if s.TagSlug == "" {
			s.TagSlug = s.Name
		}
		if s.ScanIntervalSeconds <= 0 {
			s.ScanIntervalSeconds = 300
		}
		if s.MinEdge <= 0 {
			s.MinEdge = 0.03
			if s.ThreeWay {
				s.MinEdge = 0.05
			}
		}
		if s.MaxPerGame <= 0 {
			s.MaxPerGame = 500
		}
		if len(s.Aliases) == 0 {
			s.Aliases = defaultAliases[s.Name]
		}
	}

	if cfg.Runner.StaggerSeconds <= 0 {
		cfg.Runner.StaggerSeconds = 20
	}
	if cfg.Runner.SummaryIntervalSeconds <= 0 {
		cfg.Runner.SummaryIntervalSeconds = 60
	}

	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.API.OddsBase == "" {
		cfg.API.OddsBase = "https://api.the-odds-api.com"
	}
	if cfg.API.OddsRegions == "" {
		cfg.API.OddsRegions = "us,eu"
	}
	if len(cfg.API.PreferredBooks) == 0 {
		cfg.API.PreferredBooks = []string{"pinnacle", "draftkings", "fanduel"}
	}
	if len(cfg.API.SharpBooks) == 0 {
		cfg.API.SharpBooks = []string{"pinnacle"}
	}
	if cfg.API.PolygonRPC == "" {
		cfg.API.PolygonRPC = "https://polygon-rpc.com"
	}

	if cfg.Budget.Monthly <= 0 {
		cfg.Budget.Monthly = 500
	}
	if cfg.Budget.EmergencyReserve <= 0 {
		cfg.Budget.EmergencyReserve = 50
	}
	if cfg.Budget.MinIntervalSeconds <= 0 {
		cfg.Budget.MinIntervalSeconds = 300
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "polyarb:quotes:"
	}
	if cfg.Cache.TTLSeconds <= 0 {
		cfg.Cache.TTLSeconds = 300
	}
	if cfg.Cache.RetentionSeconds < cfg.Cache.TTLSeconds {
		cfg.Cache.RetentionSeconds = 12 * cfg.Cache.TTLSeconds
	}

	n := &cfg.Normalizer
	if n.PowerExponent <= 0 {
		n.PowerExponent = 1.15
	}
	if n.ProbMax <= 0 {
		n.ProbMin, n.ProbMax = 0.01, 0.99
	}
	if n.SumMax <= 0 {
		n.SumMin, n.SumMax = 0.99, 1.01
	}
	if n.DrawMax <= 0 {
		n.DrawMin, n.DrawMax = 0.05, 0.45
	}
	if n.StaleBufferMinutes <= 0 {
		n.StaleBufferMinutes = 60
	}
	if n.LineTolerance <= 0 {
		n.LineTolerance = 0.01
	}

	d := &cfg.Detector
	if d.MinEdge <= 0 {
		d.MinEdge = 0.03
	}
	if d.Threshold <= 0 {
		d.Threshold = 0.96
	}
	if d.MinDepthShares <= 0 {
		d.MinDepthShares = 5
	}

	r := &cfg.Risk
	if r.InitialBankroll <= 0 {
		r.InitialBankroll = 1000
	}
	if r.BankrollFloor <= 0 {
		r.BankrollFloor = 500
	}
	if r.MaxEntriesPerCycle <= 0 {
		r.MaxEntriesPerCycle = 3
	}
	if r.PerMarketCap <= 0 {
		r.PerMarketCap = 25
	}
	if r.MinOrderUSD <= 0 {
		r.MinOrderUSD = 1
	}
	r.Sizing = strings.ToLower(strings.TrimSpace(r.Sizing))
	if r.Sizing == "" {
		r.Sizing = "fixed"
	}
	if r.FixedSize <= 0 {
		r.FixedSize = 10
	}
	if r.KellyFraction <= 0 {
		r.KellyFraction = 0.25
	}
	if r.KellyMin <= 0 {
		r.KellyMin = 5
	}
	if r.KellyMax <= 0 {
		r.KellyMax = 50
	}
	if r.KellyMaxBankrollPct <= 0 {
		r.KellyMaxBankrollPct = 0.05
	}
	if r.CooldownLosses <= 0 {
		r.CooldownLosses = 3
	}
	if r.CooldownSeconds <= 0 {
		r.CooldownSeconds = 300
	}

	e := &cfg.Execution
	if e.PollIntervalMs <= 0 {
		e.PollIntervalMs = 500
	}
	if e.PollTimeoutSeconds <= 0 {
		e.PollTimeoutSeconds = 30
	}
	if e.SubmitRetries <= 0 {
		e.SubmitRetries = 2
	}
	if e.RetryBackoffMs <= 0 {
		e.RetryBackoffMs = 500
	}
	if e.CancelRetries <= 0 {
		e.CancelRetries = 2
	}
	if e.CallTimeoutSeconds <= 0 {
		e.CallTimeoutSeconds = 10
	}
	if e.SlippageWarn <= 0 {
		e.SlippageWarn = 0.02
	}
	if e.TimeInForce == "" {
		e.TimeInForce = "GTC"
	}
	e.TimeInForce = strings.ToUpper(e.TimeInForce)
	if e.ExpirationSeconds <= 0 {
		e.ExpirationSeconds = 300
	}
	if e.UnwindAttempts <= 0 {
		e.UnwindAttempts = 3
	}
	if e.UnwindSlippage <= 0 {
		e.UnwindSlippage = 0.05
	}

	if cfg.KillSwitch.File == "" {
		cfg.KillSwitch.File = "data/KILL_SWITCH"
	}
	if cfg.KillSwitch.MaxDailyLoss <= 0 {
		cfg.KillSwitch.MaxDailyLoss = 500
	}
	if cfg.KillSwitch.WatchSeconds <= 0 {
		cfg.KillSwitch.WatchSeconds = 10
	}

	if cfg.Settlement.IntervalSeconds <= 0 {
		cfg.Settlement.IntervalSeconds = 300
	}

	if cfg.Paper.InitialCash <= 0 {
		cfg.Paper.InitialCash = cfg.Risk.InitialBankroll
	}

	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polyarb.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Sports))
	for _, s := range c.Sports {
		if s.Name == "" {
			return fmt.Errorf("config: sport without name")
		}
		if seen[s.Name] {
			return fmt.Errorf("config: duplicate sport %q", s.Name)
		}
		seen[s.Name] = true
		if s.OddsKey == "" && c.FairValueEnabled() {
			return fmt.Errorf("config: sport %q needs odds_key when fair_value is enabled", s.Name)
		}
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("config: cache backend redis needs redis_url or REDIS_URL")
		}
	default:
		return fmt.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}
	switch c.Execution.TimeInForce {
	case "GTC", "GTD":
	default:
		return fmt.Errorf("config: time_in_force must be GTC or GTD, got %q", c.Execution.TimeInForce)
	}
	for tag := range c.Detector.MinEdgeByType {
		if _, ok := domain.ParseMarketType(tag); !ok {
			return fmt.Errorf("config: unknown market type %q in min_edge_by_type", tag)
		}
	}
	for _, tag := range c.Detector.DisabledTypes {
		if _, ok := domain.ParseMarketType(tag); !ok {
			return fmt.Errorf("config: unknown market type %q in disabled_types", tag)
		}
	}
	for _, e := range c.Notify.TelegramEvents {
		if !knownEvents[domain.EventType(e)] {
			return fmt.Errorf("config: unknown telegram event %q", e)
		}
	}
	switch c.Risk.Sizing {
	case "fixed", "kelly", "capped":
	default:
		return fmt.Errorf("config: sizing must be fixed, kelly or capped, got %q", c.Risk.Sizing)
	}
	if r := c.FeeRate(); r < 0 || r >= 1 {
		return fmt.Errorf("config: detector fee_rate must be in [0, 1), got %.4f", r)
	}
	if c.Normalizer.SumMin > c.Normalizer.SumMax {
		return fmt.Errorf("config: normalizer sum_min %.3f > sum_max %.3f", c.Normalizer.SumMin, c.Normalizer.SumMax)
	}
	return nil
}

var knownEvents = map[domain.EventType]bool{
	domain.EventOpportunity: true, domain.EventFilled: true, domain.EventRejected: true,
	domain.EventLegRisk: true, domain.EventSettled: true, domain.EventError: true,
	domain.EventDailySummary: true, domain.EventKillSwitch: true,
}

// FeeRate is the taker fee peak charged per structural leg. Unset means the
// venue's 3.15%; 0 disables fees.
func (c *Config) FeeRate() float64 {
	if c.Detector.FeeRate == nil {
		return 0.0315
	}
	return *c.Detector.FeeRate
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
