package main

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/polyarb/config"
	"github.com/alejandrodnm/polyarb/internal/adapters/notify"
	"github.com/alejandrodnm/polyarb/internal/adapters/storage"
	"github.com/alejandrodnm/polyarb/internal/domain"
)

const (
	reportDays        = 30
	reportSettledDays = 7
)

// runReport reads persisted state without starting any loop.
func runReport(ctx context.Context, cfg *config.Config, dryRun bool) error {
	store, err := storage.NewSQLiteStorage(storageDSN(cfg, dryRun))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	now := time.Now().UTC()
	ledger, ok, err := store.LoadLedger(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	if !ok {
		ledger = domain.Ledger{Bankroll: cfg.Risk.InitialBankroll, Day: domain.UTCDay(now)}
	}
	open, err := store.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("open positions: %w", err)
	}
	settled, err := store.SettledPositions(ctx, now.AddDate(0, 0, -reportSettledDays), now)
	if err != nil {
		return fmt.Errorf("settled positions: %w", err)
	}
	dailies, err := store.Dailies(ctx, reportDays)
	if err != nil {
		return fmt.Errorf("dailies: %w", err)
	}
	halts, err := store.Halts(ctx)
	if err != nil {
		return fmt.Errorf("halts: %w", err)
	}

	notify.NewConsole().PrintReport(notify.ReportInput{
		Ledger:   ledger,
		Open:     open,
		Dailies:  dailies,
		Halts:    halts,
		Settled:  settled,
		Reported: now,
	})
	return nil
}
