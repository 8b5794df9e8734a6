// Package settlement closes positions whose markets resolved.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyarb/internal/domain"
	"github.com/alejandrodnm/polyarb/internal/ports"
)

// Positions is the part of the risk manager the reconciler drives.
type Positions interface {
	OpenPositions() []domain.Position
	Settle(ctx context.Context, marketID string, winner domain.Side) (domain.SettlementResult, bool, error)
}

// Summary counts one reconciliation run.
type Summary struct {
	Checked int
	Settled int
	Pending int
	Errors  int
	PnL     float64
}

// Reconciler asks the resolution source about every expired open position.
type Reconciler struct {
	positions Positions
	resolver  ports.ResolutionProvider
	notifier  ports.Notifier
	now       func() time.Time
}

// New creates a Reconciler. notifier may be nil.
func New(positions Positions, resolver ports.ResolutionProvider, notifier ports.Notifier) *Reconciler {
	return &Reconciler{
		positions: positions,
		resolver:  resolver,
		notifier:  notifier,
		now:       time.Now,
	}
}

// RunOnce settles every open position past its end date whose market
// resolved. Positions still unresolved are left for the next run.
func (r *Reconciler) RunOnce(ctx context.Context) (Summary, error) {
	var s Summary
	now := r.now()
	for _, p := range r.positions.OpenPositions() {
		if ctx.Err() != nil {
			return s, ctx.Err()
		}
		if p.EndDate.IsZero() || p.EndDate.After(now) {
			continue
		}
		s.Checked++

		res, err := r.resolver.FetchResolution(ctx, p.MarketID)
		if err != nil {
			s.Errors++
			slog.Warn("settlement: resolution lookup failed", "market", p.MarketID, "err", err)
			continue
		}
		if !res.Resolved {
			s.Pending++
			continue
		}

		result, ok, err := r.positions.Settle(ctx, p.MarketID, res.Winner)
		if err != nil {
			s.Errors++
			slog.Warn("settlement: settle failed", "market", p.MarketID, "err", err)
			continue
		}
		if !ok {
			continue
		}
		s.Settled++
		s.PnL += result.PnL
		r.notify(ctx, p, result)
	}

	if s.Checked > 0 {
		slog.Info("settlement: run complete",
			"checked", s.Checked,
			"settled", s.Settled,
			"pending", s.Pending,
			"errors", s.Errors,
			"pnl", fmt.Sprintf("$%+.2f", s.PnL),
		)
	}
	return s, nil
}

// Run reconciles every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("settlement: run failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Reconciler) notify(ctx context.Context, p domain.Position, result domain.SettlementResult) {
	if r.notifier == nil {
		return
	}
	ev := domain.Event{
		Type:       domain.EventSettled,
		At:         r.now(),
		Sport:      p.Sport,
		MarketID:   p.MarketID,
		Question:   p.Question,
		Settlement: &result,
	}
	if err := r.notifier.Notify(ctx, ev); err != nil {
		slog.Warn("settlement: notify failed", "market", p.MarketID, "err", err)
	}
}
