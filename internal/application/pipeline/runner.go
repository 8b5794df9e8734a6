package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/polyarb/internal/domain"
	"github.com/alejandrodnm/polyarb/internal/ports"
)

// Cycler runs one scan cycle for a sport.
type Cycler interface {
	RunCycle(ctx context.Context, sport domain.Sport) (CycleResult, error)
}

// Background is a long-running loop that returns when ctx is done.
type Background func(ctx context.Context) error

// Roller closes the UTC day.
type Roller interface {
	Rollover(ctx context.Context, now time.Time) (domain.DailySummary, bool)
}

// RunnerConfig controls scheduling.
type RunnerConfig struct {
	// Stagger offsets the first cycle of the i-th sport by i*Stagger so the
	// loops do not hit the venue and the reference source at the same instant.
	Stagger time.Duration
	// DefaultInterval is used by sports without their own ScanInterval.
	DefaultInterval time.Duration
	// SummaryInterval is how often the UTC rollover is checked.
	SummaryInterval time.Duration
}

// Runner drives one scan loop per sport plus the background loops.
type Runner struct {
	cfg        RunnerConfig
	cycler     Cycler
	sports     []domain.Sport
	background []Background
	roller     Roller
	notifier   ports.Notifier
	now        func() time.Time
}

// NewRunner creates a Runner. roller and notifier may be nil.
func NewRunner(cfg RunnerConfig, cycler Cycler, sports []domain.Sport, roller Roller, notifier ports.Notifier, background ...Background) *Runner {
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = time.Minute
	}
	if cfg.SummaryInterval <= 0 {
		cfg.SummaryInterval = time.Minute
	}
	return &Runner{
		cfg:        cfg,
		cycler:     cycler,
		sports:     sports,
		background: background,
		roller:     roller,
		notifier:   notifier,
		now:        time.Now,
	}
}

// RunOnce runs a single cycle per sport sequentially.
func (r *Runner) RunOnce(ctx context.Context) ([]CycleResult, error) {
	results := make([]CycleResult, 0, len(r.sports))
	for _, s := range r.sports {
		res, err := r.cycler.RunCycle(ctx, s)
		if err != nil {
			return results, fmt.Errorf("runner.RunOnce: %s: %w", s.Name, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// Run blocks until ctx is cancelled. A failed cycle is logged and the loop
// keeps going; only background loop errors stop the runner.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for i, s := range r.sports {
		offset := time.Duration(i) * r.cfg.Stagger
		g.Go(func() error {
			return r.scanLoop(ctx, s, offset)
		})
	}
	for _, bg := range r.background {
		g.Go(func() error {
			return bg(ctx)
		})
	}
	if r.roller != nil {
		g.Go(func() error {
			return r.summaryLoop(ctx)
		})
	}

	slog.Info("runner: started", "sports", len(r.sports), "background", len(r.background))
	err := g.Wait()
	slog.Info("runner: stopped")
	return err
}

func (r *Runner) scanLoop(ctx context.Context, sport domain.Sport, offset time.Duration) error {
	if offset > 0 {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(offset):
		}
	}

	interval := sport.ScanInterval
	if interval <= 0 {
		interval = r.cfg.DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r.cycle(ctx, sport)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Runner) cycle(ctx context.Context, sport domain.Sport) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("runner: cycle panic", "sport", sport.Name, "panic", rec)
		}
	}()
	res, err := r.cycler.RunCycle(ctx, sport)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("runner: cycle failed", "sport", sport.Name, "err", err)
		}
		return
	}
	slog.Debug("runner: cycle done", "sport", sport.Name, "duration", res.Duration.Round(time.Millisecond))
}

func (r *Runner) summaryLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.SummaryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.rollover(ctx)
		}
	}
}

func (r *Runner) rollover(ctx context.Context) {
	sum, ok := r.roller.Rollover(ctx, r.now())
	if !ok {
		return
	}
	slog.Info("runner: daily summary",
		"day", sum.Date.Format("2006-01-02"),
		"entries", sum.Entries,
		"pnl", fmt.Sprintf("$%+.2f", sum.RealizedPnL),
	)
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(ctx, domain.Event{Type: domain.EventDailySummary, At: r.now(), Summary: &sum}); err != nil {
		slog.Warn("runner: notify failed", "err", err)
	}
}
