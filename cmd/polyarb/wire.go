package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alejandrodnm/polyarb/config"
	"github.com/alejandrodnm/polyarb/internal/adapters/cache"
	"github.com/alejandrodnm/polyarb/internal/adapters/notify"
	"github.com/alejandrodnm/polyarb/internal/adapters/oddsapi"
	"github.com/alejandrodnm/polyarb/internal/adapters/paper"
	"github.com/alejandrodnm/polyarb/internal/adapters/polymarket"
	"github.com/alejandrodnm/polyarb/internal/adapters/storage"
	"github.com/alejandrodnm/polyarb/internal/application/budget"
	"github.com/alejandrodnm/polyarb/internal/application/detector"
	"github.com/alejandrodnm/polyarb/internal/application/execution"
	"github.com/alejandrodnm/polyarb/internal/application/normalizer"
	"github.com/alejandrodnm/polyarb/internal/application/pipeline"
	"github.com/alejandrodnm/polyarb/internal/application/reference"
	"github.com/alejandrodnm/polyarb/internal/application/risk"
	"github.com/alejandrodnm/polyarb/internal/application/settlement"
	"github.com/alejandrodnm/polyarb/internal/domain"
	"github.com/alejandrodnm/polyarb/internal/ports"
)

// app groups the built components and what must be closed on exit.
type app struct {
	runner  *pipeline.Runner
	risk    *risk.Manager
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, cfg *config.Config, dryRun bool) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	sports := sportsFrom(cfg)

	store, err := storage.NewSQLiteStorage(storageDSN(cfg, dryRun))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.closers = append(a.closers, func() { store.Close() })

	quoteCache, err := newQuoteCache(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if c, ok := quoteCache.(interface{ Close() error }); ok {
		a.closers = append(a.closers, func() { c.Close() })
	}

	notifier, closeNotifier, err := newNotifier(cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeNotifier)

	venue, err := newVenue(ctx, cfg, dryRun, a)
	if err != nil {
		return nil, err
	}

	kill := execution.NewKillSwitch(cfg.KillSwitch.File, cfg.KillSwitch.MaxDailyLoss)
	kill.OnChange(func(active bool, reason string) {
		msg := "deactivated"
		if active {
			msg = "activated: " + reason
		}
		notifyBackground(notifier, domain.Event{Type: domain.EventKillSwitch, At: time.Now(), Message: msg})
	})
	if err := kill.Poll(); err != nil {
		slog.Warn("execution: kill file check failed", "err", err)
	}

	riskCfg, err := riskConfig(cfg)
	if err != nil {
		return nil, err
	}
	rm, err := risk.New(ctx, riskCfg, store)
	if err != nil {
		return nil, fmt.Errorf("risk manager: %w", err)
	}
	rm.OnSettle(func(r domain.SettlementResult) { kill.RecordPnL(r.PnL) })
	a.risk = rm

	market := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase)
	odds := oddsapi.NewClient(oddsapi.Config{
		BaseURL:   cfg.API.OddsBase,
		APIKey:    cfg.API.OddsAPIKey,
		Regions:   cfg.API.OddsRegions,
		Preferred: cfg.API.PreferredBooks,
		Sharp:     cfg.API.SharpBooks,
	})
	limiter := budget.New(budget.Config{
		MonthlyBudget:    cfg.Budget.Monthly,
		EmergencyReserve: cfg.Budget.EmergencyReserve,
		MinInterval:      cfg.BudgetMinInterval(),
	})
	quotes := reference.New(odds, quoteCache, limiter, cfg.QuoteTTL())

	norm := normalizer.New(normalizer.Config{
		PowerExponent: cfg.Normalizer.PowerExponent,
		ProbMin:       cfg.Normalizer.ProbMin,
		ProbMax:       cfg.Normalizer.ProbMax,
		SumMin:        cfg.Normalizer.SumMin,
		SumMax:        cfg.Normalizer.SumMax,
		DrawMin:       cfg.Normalizer.DrawMin,
		DrawMax:       cfg.Normalizer.DrawMax,
		RequireSharp:  cfg.RequireSharp(),
		StaleBuffer:   cfg.StaleBuffer(),
		LineTolerance: cfg.Normalizer.LineTolerance,
	})
	det := detector.New(detectorConfig(cfg))
	exec := execution.New(venue, store, kill, execution.Config{
		PollInterval:   cfg.PollInterval(),
		PollTimeout:    cfg.PollTimeout(),
		SubmitRetries:  cfg.Execution.SubmitRetries,
		RetryBackoff:   cfg.RetryBackoff(),
		CancelRetries:  cfg.Execution.CancelRetries,
		CallTimeout:    cfg.CallTimeout(),
		SlippageWarn:   cfg.Execution.SlippageWarn,
		TimeInForce:    domain.TimeInForce(cfg.Execution.TimeInForce),
		Expiration:     cfg.Expiration(),
		UnwindAttempts: cfg.Execution.UnwindAttempts,
		UnwindSlippage: cfg.Execution.UnwindSlippage,
	})

	pipe := pipeline.New(
		pipeline.Config{FairValue: cfg.FairValueEnabled(), Structural: cfg.StructuralEnabled()},
		market, quotes, norm, det, rm, exec, kill, notifier,
	)

	reconciler := settlement.New(rm, market, notifier)
	a.runner = pipeline.NewRunner(
		pipeline.RunnerConfig{
			Stagger:         cfg.Stagger(),
			DefaultInterval: 5 * time.Minute,
			SummaryInterval: cfg.SummaryInterval(),
		},
		pipe, sports, rm, notifier,
		func(ctx context.Context) error { return reconciler.Run(ctx, cfg.SettlementInterval()) },
		func(ctx context.Context) error { return kill.Watch(ctx, cfg.KillWatchInterval()) },
	)
	return a, nil
}

func sportsFrom(cfg *config.Config) []domain.Sport {
	out := make([]domain.Sport, 0, len(cfg.Sports))
	for _, s := range cfg.Sports {
		out = append(out, domain.Sport{
			Name:         s.Name,
			DisplayName:  s.DisplayName,
			OddsKey:      s.OddsKey,
			TagSlug:      s.TagSlug,
			ThreeWay:     s.ThreeWay,
			ScanInterval: s.ScanInterval(),
			MinEdge:      s.MinEdge,
			MaxPerGame:   s.MaxPerGame,
			TeamAliases:  s.Aliases,
		})
	}
	return out
}

func detectorConfig(cfg *config.Config) detector.Config {
	return detector.Config{
		MinEdge:            cfg.Detector.MinEdge,
		MinEdgeByType:      cfg.MinEdgeByType(),
		DisabledTypes:      cfg.DisabledTypes(),
		Threshold:          cfg.Detector.Threshold,
		ThresholdInclusive: cfg.Detector.ThresholdInclusive,
		MinDepthShares:     cfg.Detector.MinDepthShares,
		FeeRate:            cfg.FeeRate(),
		StaleBuffer:        cfg.StaleBuffer(),
	}
}

func riskConfig(cfg *config.Config) (risk.Config, error) {
	mode, err := risk.ParseSizingMode(cfg.Risk.Sizing)
	if err != nil {
		return risk.Config{}, err
	}
	perGame := make(map[string]float64, len(cfg.Sports))
	for _, s := range cfg.Sports {
		perGame[s.Name] = s.MaxPerGame
	}
	r := cfg.Risk
	return risk.Config{
		InitialBankroll:     r.InitialBankroll,
		BankrollFloor:       r.BankrollFloor,
		DailyCap:            r.DailyCap,
		MaxEntriesPerCycle:  r.MaxEntriesPerCycle,
		PerMarketCap:        r.PerMarketCap,
		MinOrderUSD:         r.MinOrderUSD,
		Sizing:              mode,
		FixedSize:           r.FixedSize,
		KellyFraction:       r.KellyFraction,
		KellyMin:            r.KellyMin,
		KellyMax:            r.KellyMax,
		KellyMaxBankrollPct: r.KellyMaxBankrollPct,
		CooldownLosses:      r.CooldownLosses,
		CooldownDuration:    cfg.CooldownDuration(),
		MaxPerGame:          perGame,
	}, nil
}

// storageDSN keeps the paper trading ledger apart from the live one.
func storageDSN(cfg *config.Config, dryRun bool) string {
	dsn := cfg.Storage.DSN
	if !dryRun || dsn == ":memory:" {
		return dsn
	}
	return strings.TrimSuffix(dsn, ".db") + "_paper.db"
}

func newQuoteCache(ctx context.Context, cfg *config.Config) (ports.QuoteCache, error) {
	if cfg.Cache.Backend != "redis" {
		return cache.NewMemory(), nil
	}
	c, err := cache.NewRedis(ctx, cfg.Cache.RedisURL, cfg.Cache.KeyPrefix, cfg.CacheRetention())
	if err != nil {
		return nil, fmt.Errorf("quote cache: %w", err)
	}
	slog.Info("cache: using redis", "prefix", cfg.Cache.KeyPrefix, "retention", cfg.CacheRetention())
	return c, nil
}

func newNotifier(cfg *config.Config) (ports.Notifier, func(), error) {
	var sinks notify.Multi
	closeFn := func() {}
	if cfg.ConsoleEnabled() {
		sinks = append(sinks, notify.NewConsole())
	}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != 0 {
		tg, err := notify.NewTelegram(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID, cfg.TelegramEvents())
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, tg)
		closeFn = tg.Close
	}
	if len(sinks) == 0 {
		return notify.Nop{}, closeFn, nil
	}
	return sinks, closeFn, nil
}

// newVenue returns the simulated venue under -dry-run; otherwise it
// authenticates against the CLOB and checks the balance.
func newVenue(ctx context.Context, cfg *config.Config, dryRun bool, a *app) (ports.Venue, error) {
	if dryRun {
		slog.Info("paper: simulated venue", "cash", fmt.Sprintf("$%.2f", cfg.Paper.InitialCash))
		return paper.NewVenue(cfg.Paper.InitialCash), nil
	}
	if cfg.API.PrivateKey == "" {
		return nil, fmt.Errorf("live trading needs POLY_PRIVATE_KEY (or run with -dry-run)")
	}

	auth, err := polymarket.NewAuthClient(cfg.API.CLOBBase, cfg.API.GammaBase, cfg.API.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("auth client: %w", err)
	}
	if err := auth.EnsureCreds(ctx); err != nil {
		return nil, fmt.Errorf("derive API credentials, check POLY_PRIVATE_KEY: %w", err)
	}
	slog.Info("live: authenticated with Polymarket CLOB", "address", auth.Address())

	trading, err := polymarket.NewTradingClient(auth, cfg.API.PolygonRPC)
	if err != nil {
		return nil, fmt.Errorf("trading client: %w", err)
	}
	a.closers = append(a.closers, trading.Close)

	balance, err := trading.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("venue balance: %w", err)
	}
	slog.Info("live: CLOB balance", "usdc", fmt.Sprintf("$%.2f", balance))
	if balance < cfg.Risk.MinOrderUSD*2 {
		return nil, fmt.Errorf("insufficient CLOB balance $%.2f", balance)
	}
	return trading, nil
}

// notifyBackground delivers events that belong to no cycle.
func notifyBackground(n ports.Notifier, e domain.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.Notify(ctx, e); err != nil {
		slog.Warn("notify: event failed", "event", e.Type, "err", err)
	}
}
